package public

import (
	"strings"

	"github.com/dujiao-next/affiliate-settlement/internal/http/response"
	"github.com/dujiao-next/affiliate-settlement/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const referralBindingHeader = "X-Referral-Binding"

// CreateSaleRequest 创建销售请求
type CreateSaleRequest struct {
	ProductID     uint   `json:"product_id" binding:"required"`
	Amount        string `json:"amount"`
	CustomerEmail string `json:"customer_email"`
	CustomerName  string `json:"customer_name"`
	BindingToken  string `json:"binding_token"`
	RedirectURL   string `json:"redirect_url"`
}

// CreateSale 创建待支付销售并返回托管收银台链接
func (h *Handler) CreateSale(c *gin.Context) {
	var req CreateSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}
	input := service.CreatePendingSaleInput{
		BindingToken:  strings.TrimSpace(c.GetHeader(referralBindingHeader)),
		ProductID:     req.ProductID,
		CustomerEmail: req.CustomerEmail,
		CustomerName:  req.CustomerName,
		RedirectURL:   strings.TrimSpace(req.RedirectURL),
	}
	if input.BindingToken == "" {
		input.BindingToken = strings.TrimSpace(req.BindingToken)
	}
	if raw := strings.TrimSpace(req.Amount); raw != "" {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			respondError(c, response.CodeBadRequest, "amount invalid", nil)
			return
		}
		input.Amount = &amount
	}

	result, err := h.SaleService.Checkout(c.Request.Context(), input)
	if err != nil {
		respondSaleCreateError(c, err)
		return
	}
	response.Success(c, result)
}

// GetSale 按 tx_ref 查询销售状态
func (h *Handler) GetSale(c *gin.Context) {
	sale, err := h.SaleService.GetSaleByReference(c.Param("tx_ref"))
	if err != nil {
		respondWithMappedError(c, err, settlementErrorRules, response.CodeInternal, "sale fetch failed")
		return
	}
	response.Success(c, gin.H{
		"sale_id":           sale.ID,
		"tx_ref":            sale.TransactionReference,
		"status":            sale.Status,
		"amount":            sale.Amount,
		"currency":          sale.Currency,
		"commission_rate":   sale.CommissionRate,
		"commission_amount": sale.CommissionAmount,
		"completed_at":      sale.CompletedAt,
		"cancelled_at":      sale.CancelledAt,
	})
}
