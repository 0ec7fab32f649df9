package admin

import (
	"strconv"
	"strings"

	handlershared "github.com/dujiao-next/affiliate-settlement/internal/http/handlers/shared"
	"github.com/dujiao-next/affiliate-settlement/internal/http/response"
	"github.com/dujiao-next/affiliate-settlement/internal/models"
	"github.com/dujiao-next/affiliate-settlement/internal/repository"

	"github.com/gin-gonic/gin"
)

// WithdrawalReviewRequest 提现审核请求
type WithdrawalReviewRequest struct {
	Notes string `json:"notes"`
}

type withdrawalAction func(c *gin.Context, adminID, id uint, notes string) (*models.WithdrawalRequest, error)

// ListWithdrawals 提现申请列表
func (h *Handler) ListWithdrawals(c *gin.Context) {
	page, pageSize := handlershared.ParsePagination(c)
	userID, _ := strconv.ParseUint(strings.TrimSpace(c.Query("user_id")), 10, 64)
	items, total, err := h.WithdrawalService.List(repository.WithdrawalListFilter{
		Page:     page,
		PageSize: pageSize,
		UserID:   uint(userID),
		Status:   strings.TrimSpace(c.Query("status")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "withdrawal fetch failed", err)
		return
	}
	response.SuccessWithPage(c, items, response.BuildPagination(page, pageSize, total))
}

// ApproveWithdrawal 审核通过（扣减余额）
func (h *Handler) ApproveWithdrawal(c *gin.Context) {
	h.reviewWithdrawal(c, func(c *gin.Context, adminID, id uint, notes string) (*models.WithdrawalRequest, error) {
		return h.WithdrawalService.Approve(c.Request.Context(), adminID, id, notes)
	})
}

// RejectWithdrawal 拒绝提现
func (h *Handler) RejectWithdrawal(c *gin.Context) {
	h.reviewWithdrawal(c, func(c *gin.Context, adminID, id uint, notes string) (*models.WithdrawalRequest, error) {
		return h.WithdrawalService.Reject(c.Request.Context(), adminID, id, notes)
	})
}

// CompleteWithdrawal 确认打款完成
func (h *Handler) CompleteWithdrawal(c *gin.Context) {
	h.reviewWithdrawal(c, func(c *gin.Context, adminID, id uint, notes string) (*models.WithdrawalRequest, error) {
		return h.WithdrawalService.Complete(c.Request.Context(), adminID, id, notes)
	})
}

func (h *Handler) reviewWithdrawal(c *gin.Context, action withdrawalAction) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}
	id, ok := parsePathUint(c, "id")
	if !ok {
		respondError(c, response.CodeBadRequest, "withdrawal id invalid", nil)
		return
	}
	var req WithdrawalReviewRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, response.CodeBadRequest, "bad request", err)
			return
		}
	}
	withdrawal, err := action(c, adminID, id, req.Notes)
	if err != nil {
		respondAdminError(c, err, "withdrawal review failed")
		return
	}
	response.Success(c, withdrawal)
}
