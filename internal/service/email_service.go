package service

import (
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dujiao-next/affiliate-settlement/internal/config"
	"github.com/dujiao-next/affiliate-settlement/internal/constants"
)

var (
	// ErrEmailServiceDisabled 邮件服务未启用
	ErrEmailServiceDisabled = errors.New("email service disabled")
	// ErrEmailServiceNotConfigured 邮件服务配置不完整
	ErrEmailServiceNotConfigured = errors.New("email service not configured")
	// ErrInvalidEmail 邮箱格式无效
	ErrInvalidEmail = errors.New("invalid email")
	// ErrEmailRecipientRejected 收件人被拒收
	ErrEmailRecipientRejected = errors.New("email recipient rejected")
)

const smtpDialTimeout = 10 * time.Second

// emailTemplate 通知邮件正文：开头说明 + 字段（fields 为空时输出全部字段并按键名排序）
type emailTemplate struct {
	intro  string
	fields []string
}

var notificationEmailTemplates = map[string]emailTemplate{
	constants.NotificationTypePaymentReceipt: {
		intro:  "Thank you for your purchase.",
		fields: []string{"product_name", "amount", "currency", "tx_ref"},
	},
	constants.NotificationTypeCommissionEarned:   {intro: "You earned a commission on a referred sale."},
	constants.NotificationTypeSaleCompleted:      {intro: "A sale of your product has been settled to your wallet."},
	constants.NotificationTypeWithdrawalApproved: {intro: "Your withdrawal request was approved and the amount debited from your wallet."},
	constants.NotificationTypeWithdrawalRejected: {intro: "Your withdrawal request was rejected. Your balance is unchanged."},
	constants.NotificationTypeWithdrawalComplete: {intro: "Your withdrawal has been paid out."},
}

// EmailService SMTP 邮件发送服务，只发送纯文本通知
type EmailService struct {
	cfg *config.EmailConfig
}

// NewEmailService 创建邮件服务
func NewEmailService(cfg *config.EmailConfig) *EmailService {
	return &EmailService{cfg: cfg}
}

// Enabled 是否可发送
func (s *EmailService) Enabled() bool {
	return s != nil && s.cfg != nil && s.cfg.Enabled
}

// SendNotificationEmail 按通知类型渲染并发送邮件
func (s *EmailService) SendNotificationEmail(toEmail, notifyType, title string, data map[string]interface{}) error {
	if !s.Enabled() {
		return ErrEmailServiceDisabled
	}
	if s.cfg.Host == "" || s.cfg.Port == 0 || s.cfg.From == "" {
		return ErrEmailServiceNotConfigured
	}
	if _, err := mail.ParseAddress(toEmail); err != nil {
		return ErrInvalidEmail
	}
	subject, body := buildNotificationContent(notifyType, title, data)
	msg := buildEmailMessage(buildFromAddress(s.cfg.From, s.cfg.FromName), toEmail, subject, body)
	return normalizeEmailSendError(s.deliver(toEmail, []byte(msg)))
}

func (s *EmailService) deliver(to string, msg []byte) error {
	client, err := s.dial()
	if err != nil {
		return err
	}
	defer client.Close()

	if s.cfg.Username != "" || s.cfg.Password != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)); err != nil {
				return err
			}
		}
	}
	if err := client.Mail(s.cfg.From); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

// dial 按配置建立连接：UseSSL 为隐式 TLS（465），UseTLS 为 STARTTLS（587），否则明文
func (s *EmailService) dial() (*smtp.Client, error) {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	tlsCfg := &tls.Config{ServerName: s.cfg.Host}
	dialer := &net.Dialer{Timeout: smtpDialTimeout}

	if s.cfg.UseSSL {
		conn, err := tls.DialWithDialer(dialer, "tcp", addr, tlsCfg)
		if err != nil {
			return nil, err
		}
		client, err := smtp.NewClient(conn, s.cfg.Host)
		if err != nil {
			conn.Close()
			return nil, err
		}
		return client, nil
	}

	conn, err := dialer.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if s.cfg.UseTLS {
		if err := client.StartTLS(tlsCfg); err != nil {
			client.Close()
			return nil, err
		}
	}
	return client, nil
}

func buildNotificationContent(notifyType, title string, data map[string]interface{}) (string, string) {
	subject := strings.TrimSpace(title)
	if subject == "" {
		subject = strings.ReplaceAll(notifyType, "_", " ")
	}
	tpl, ok := notificationEmailTemplates[notifyType]
	if !ok {
		tpl = emailTemplate{intro: subject}
	}
	fields := tpl.fields
	if len(fields) == 0 {
		fields = make([]string, 0, len(data))
		for key := range data {
			fields = append(fields, key)
		}
		sort.Strings(fields)
	}

	var body strings.Builder
	body.WriteString(tpl.intro)
	body.WriteString("\n\n")
	for _, key := range fields {
		if value, ok := data[key]; ok {
			fmt.Fprintf(&body, "%s: %v\n", key, value)
		}
	}
	return subject, body.String()
}

func buildFromAddress(from, name string) string {
	if strings.TrimSpace(name) == "" {
		return from
	}
	return (&mail.Address{Name: name, Address: from}).String()
}

func buildEmailMessage(from, to, subject, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(body)
	return b.String()
}

func normalizeEmailSendError(err error) error {
	if isEmailRecipientRejected(err) {
		return fmt.Errorf("%w: %v", ErrEmailRecipientRejected, err)
	}
	return err
}

var recipientRejectedPhrases = []string{
	"no such recipient",
	"no such user",
	"recipient not found",
	"recipient address rejected",
	"invalid recipient",
	"user unknown",
	"unknown user",
	"unknown mailbox",
	"mailbox unavailable",
}

// isEmailRecipientRejected 识别 SMTP 5xx 收件人类错误，这类错误重试无意义
func isEmailRecipientRejected(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(err.Error())
	for _, phrase := range recipientRejectedPhrases {
		if strings.Contains(message, phrase) {
			return true
		}
	}
	if !strings.Contains(message, "550") {
		return false
	}
	for _, hint := range []string{"recipient", "user", "mailbox", "address", "rcpt"} {
		if strings.Contains(message, hint) {
			return true
		}
	}
	return false
}
