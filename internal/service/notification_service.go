package service

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dujiao-next/affiliate-settlement/internal/cache"
	"github.com/dujiao-next/affiliate-settlement/internal/config"
	"github.com/dujiao-next/affiliate-settlement/internal/logger"
	"github.com/dujiao-next/affiliate-settlement/internal/models"
	"github.com/dujiao-next/affiliate-settlement/internal/queue"
	"github.com/dujiao-next/affiliate-settlement/internal/repository"

	"github.com/hibiken/asynq"
)

const (
	notificationDefaultTimeout = 5 * time.Second
	notificationDedupeTTL      = 24 * time.Hour
)

// NotifyInput 通知输入
type NotifyInput struct {
	UserID uint
	Email  string
	Type   string
	Title  string
	Data   map[string]interface{}
}

// NotificationService 通知服务（投递失败不影响业务流程）
type NotificationService struct {
	repo        repository.NotificationRepository
	queueClient *queue.Client
	endpoint    string
	authToken   string
	httpClient  *http.Client
	email       *EmailService
}

// NewNotificationService 创建通知服务
func NewNotificationService(repo repository.NotificationRepository, queueClient *queue.Client, cfg config.NotificationConfig, email *EmailService) *NotificationService {
	timeout := notificationDefaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &NotificationService{
		repo:        repo,
		queueClient: queueClient,
		endpoint:    strings.TrimSpace(cfg.Endpoint),
		authToken:   strings.TrimSpace(cfg.AuthToken),
		httpClient:  &http.Client{Timeout: timeout},
		email:       email,
	}
}

// Notify 投递通知：队列启用时入队，否则同步派发；任何错误只记录日志
func (s *NotificationService) Notify(ctx context.Context, input NotifyInput) {
	if s == nil || strings.TrimSpace(input.Type) == "" {
		return
	}
	if input.UserID == 0 && strings.TrimSpace(input.Email) == "" {
		return
	}
	payload := queue.NotificationDispatchPayload{
		UserID:    input.UserID,
		Email:     strings.TrimSpace(input.Email),
		Type:      input.Type,
		Title:     input.Title,
		Data:      input.Data,
		CreatedAt: time.Now().UnixNano(),
	}
	log := logger.FromContext(ctx)
	if s.queueClient.Enabled() {
		if err := s.queueClient.EnqueueNotification(payload, asynq.MaxRetry(5)); err != nil {
			log.Warnw("notification_enqueue_failed", "type", input.Type, "user_id", input.UserID, "error", err)
		}
		return
	}
	if err := s.Dispatch(ctx, payload); err != nil {
		log.Warnw("notification_dispatch_failed", "type", input.Type, "user_id", input.UserID, "error", err)
	}
}

// Dispatch 处理通知派发：写入站内通知并推送到外部投递服务
func (s *NotificationService) Dispatch(ctx context.Context, payload queue.NotificationDispatchPayload) error {
	if s == nil {
		return nil
	}
	if payload.UserID != 0 && s.repo != nil {
		stored, err := cache.SetNX(ctx, buildNotificationDedupeKey(payload), "1", notificationDedupeTTL)
		if err != nil {
			logger.FromContext(ctx).Warnw("notification_dedupe_failed", "error", err)
			stored = true
		}
		if stored {
			item := &models.Notification{
				UserID:  payload.UserID,
				Type:    payload.Type,
				Title:   payload.Title,
				Payload: models.JSON(payload.Data),
			}
			if err := s.repo.Create(item); err != nil {
				return err
			}
		}
	}
	if s.endpoint != "" {
		return s.post(ctx, payload)
	}
	if payload.Email != "" && s.email.Enabled() {
		return s.email.SendNotificationEmail(payload.Email, payload.Type, payload.Title, payload.Data)
	}
	logger.FromContext(ctx).Infow("notification_dispatched_locally", "type", payload.Type, "user_id", payload.UserID, "email", payload.Email)
	return nil
}

// ListByUser 查询用户站内通知
func (s *NotificationService) ListByUser(userID uint, page, pageSize int) ([]models.Notification, int64, error) {
	return s.repo.ListByUser(userID, page, pageSize)
}

func (s *NotificationService) post(ctx context.Context, payload queue.NotificationDispatchPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.authToken)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint status %d", resp.StatusCode)
	}
	return nil
}

func buildNotificationDedupeKey(payload queue.NotificationDispatchPayload) string {
	signature := fmt.Sprintf("%d|%s|%s|%d", payload.UserID, payload.Type, payload.Email, payload.CreatedAt)
	hash := sha1.Sum([]byte(signature))
	return "notification:dedupe:" + hex.EncodeToString(hash[:])
}
