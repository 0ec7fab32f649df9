package public

import (
	"errors"
	"io"
	"net/http"

	"github.com/dujiao-next/affiliate-settlement/internal/http/response"
	"github.com/dujiao-next/affiliate-settlement/internal/service"

	"github.com/gin-gonic/gin"
)

const maxWebhookBodyBytes = 1 << 20

// VerifyPaymentRequest 客户端支付校验请求
type VerifyPaymentRequest struct {
	TransactionID string `json:"transaction_id" binding:"required"`
	TxRef         string `json:"tx_ref" binding:"required"`
}

// GetPublicConfig 前端可见的支付配置（仅公钥）
func (h *Handler) GetPublicConfig(c *gin.Context) {
	response.Success(c, gin.H{
		"flutterwave_public_key": h.GatewayService.PublicKey(),
		"currency":               h.Config.Flutterwave.Currency,
	})
}

// VerifyPayment 客户端支付完成后请求服务端校验并结算
func (h *Handler) VerifyPayment(c *gin.Context) {
	var req VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "transaction_id and tx_ref are required", nil)
		return
	}
	result, err := h.SettlementService.VerifyAndSettle(c.Request.Context(), req.TransactionID, req.TxRef)
	if err != nil {
		requestLog(c).Warnw("payment_verify_failed", "tx_ref", req.TxRef, "error", err)
		respondSettlementError(c, err)
		return
	}
	response.Success(c, result)
}

// FlutterwaveCallback 托管收银台跳转回调
func (h *Handler) FlutterwaveCallback(c *gin.Context) {
	query := map[string]string{
		"status":         c.Query("status"),
		"tx_ref":         c.Query("tx_ref"),
		"transaction_id": c.Query("transaction_id"),
	}
	result, err := h.SettlementService.HandleCheckoutCallback(c.Request.Context(), query)
	if err != nil {
		respondSettlementError(c, err)
		return
	}
	response.Success(c, result)
}

// FlutterwaveWebhook Flutterwave Webhook：使用真实 HTTP 状态码控制网关重投
func (h *Handler) FlutterwaveWebhook(c *gin.Context) {
	log := requestLog(c)
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		log.Warnw("flutterwave_webhook_body_read_failed", "error", err)
		webhookReply(c, http.StatusBadRequest, response.CodeBadRequest, "bad request", nil)
		return
	}
	headers := make(map[string]string, len(c.Request.Header))
	for key, values := range c.Request.Header {
		if len(values) > 0 {
			headers[key] = values[0]
		}
	}
	log.Infow("flutterwave_webhook_received", "client_ip", c.ClientIP(), "body_size", len(body))

	outcome, err := h.SettlementService.HandleWebhook(c.Request.Context(), headers, body)
	switch {
	case err == nil:
		webhookReply(c, http.StatusOK, response.CodeOK, "success", outcome)
	case errors.Is(err, service.ErrWebhookSignatureInvalid):
		webhookReply(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid signature", nil)
	case service.IsVerificationError(err) || errors.Is(err, service.ErrSaleInvalid):
		webhookReply(c, http.StatusBadRequest, response.CodeBadRequest, "webhook payload rejected", nil)
	default:
		log.Errorw("flutterwave_webhook_handle_failed", "error", err)
		webhookReply(c, http.StatusInternalServerError, response.CodeInternal, "webhook processing failed", nil)
	}
}

func webhookReply(c *gin.Context, httpStatus, code int, msg string, data interface{}) {
	c.JSON(httpStatus, response.Response{StatusCode: code, Msg: msg, Data: data})
}
