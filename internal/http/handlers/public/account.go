package public

import (
	"strings"

	handlershared "github.com/dujiao-next/affiliate-settlement/internal/http/handlers/shared"
	"github.com/dujiao-next/affiliate-settlement/internal/http/response"
	"github.com/dujiao-next/affiliate-settlement/internal/repository"
	"github.com/dujiao-next/affiliate-settlement/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// CreateReferralLinkRequest 创建推广链接请求
type CreateReferralLinkRequest struct {
	ProductID uint `json:"product_id" binding:"required"`
}

// CreateProductRequest 创建商品请求
type CreateProductRequest struct {
	Name           string `json:"name" binding:"required"`
	Description    string `json:"description"`
	Price          string `json:"price" binding:"required"`
	Currency       string `json:"currency"`
	CommissionRate string `json:"commission_rate" binding:"required"`
}

// UpdateCommissionRateRequest 更新佣金比例请求
type UpdateCommissionRateRequest struct {
	CommissionRate string `json:"commission_rate" binding:"required"`
}

// WithdrawalApplyRequest 提现申请请求
type WithdrawalApplyRequest struct {
	Amount        string `json:"amount" binding:"required"`
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
}

// CreateReferralLink 推广者为商品生成推广链接
func (h *Handler) CreateReferralLink(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	var req CreateReferralLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "product_id is required", nil)
		return
	}
	link, created, err := h.AttributionService.CreateReferralLink(c.Request.Context(), uid, req.ProductID)
	if err != nil {
		respondLinkError(c, err)
		return
	}
	response.Success(c, gin.H{"link": link, "created": created})
}

// ListReferralLinks 推广者的链接与点击/成交统计
func (h *Handler) ListReferralLinks(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	page, pageSize := handlershared.ParsePagination(c)
	links, total, err := h.AttributionService.ListAffiliateLinks(uid, page, pageSize)
	if err != nil {
		respondError(c, response.CodeInternal, "referral link fetch failed", err)
		return
	}
	response.SuccessWithPage(c, links, response.BuildPagination(page, pageSize, total))
}

// CreateProduct 商家创建商品
func (h *Handler) CreateProduct(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	var req CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}
	price, err := decimal.NewFromString(strings.TrimSpace(req.Price))
	if err != nil {
		respondError(c, response.CodeBadRequest, "price invalid", nil)
		return
	}
	rate, err := decimal.NewFromString(strings.TrimSpace(req.CommissionRate))
	if err != nil {
		respondError(c, response.CodeBadRequest, "commission rate invalid", nil)
		return
	}
	product, err := h.ProductService.CreateProduct(c.Request.Context(), service.CreateProductInput{
		BusinessID:     uid,
		Name:           req.Name,
		Description:    req.Description,
		Price:          price,
		Currency:       req.Currency,
		CommissionRate: rate,
	})
	if err != nil {
		respondProductError(c, err)
		return
	}
	response.Success(c, product)
}

// UpdateCommissionRate 商家调整佣金比例（已有销售的快照不变）
func (h *Handler) UpdateCommissionRate(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	productID, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		respondError(c, response.CodeBadRequest, "product id invalid", nil)
		return
	}
	var req UpdateCommissionRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "commission_rate is required", nil)
		return
	}
	rate, err := decimal.NewFromString(strings.TrimSpace(req.CommissionRate))
	if err != nil {
		respondError(c, response.CodeBadRequest, "commission rate invalid", nil)
		return
	}
	product, err := h.ProductService.UpdateCommissionRate(c.Request.Context(), uid, productID, rate)
	if err != nil {
		respondProductError(c, err)
		return
	}
	response.Success(c, product)
}

// GetMyWallet 当前用户钱包
func (h *Handler) GetMyWallet(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	account, err := h.WalletService.GetAccount(uid)
	if err != nil {
		respondError(c, response.CodeInternal, "wallet fetch failed", err)
		return
	}
	response.Success(c, account)
}

// GetMyWalletTransactions 当前用户钱包流水
func (h *Handler) GetMyWalletTransactions(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	page, pageSize := handlershared.ParsePagination(c)
	transactions, total, err := h.WalletService.ListTransactions(repository.WalletTransactionListFilter{
		Page:     page,
		PageSize: pageSize,
		UserID:   uid,
		Type:     strings.TrimSpace(c.Query("type")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "wallet transactions fetch failed", err)
		return
	}
	response.SuccessWithPage(c, transactions, response.BuildPagination(page, pageSize, total))
}

// ApplyWithdrawal 提交提现申请
func (h *Handler) ApplyWithdrawal(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	var req WithdrawalApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "amount is required", nil)
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		respondError(c, response.CodeBadRequest, "amount invalid", nil)
		return
	}
	withdrawal, err := h.WithdrawalService.Request(c.Request.Context(), service.WithdrawalApplyInput{
		UserID:        uid,
		Amount:        amount,
		BankName:      req.BankName,
		AccountNumber: req.AccountNumber,
		AccountName:   req.AccountName,
	})
	if err != nil {
		respondWithdrawalError(c, err)
		return
	}
	response.Success(c, withdrawal)
}

// ListMyWithdrawals 当前用户提现记录
func (h *Handler) ListMyWithdrawals(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	page, pageSize := handlershared.ParsePagination(c)
	items, total, err := h.WithdrawalService.ListMine(uid, c.Query("status"), page, pageSize)
	if err != nil {
		respondError(c, response.CodeInternal, "withdrawal fetch failed", err)
		return
	}
	response.SuccessWithPage(c, items, response.BuildPagination(page, pageSize, total))
}

// ListMyNotifications 当前用户站内通知
func (h *Handler) ListMyNotifications(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	page, pageSize := handlershared.ParsePagination(c)
	items, total, err := h.NotificationService.ListByUser(uid, page, pageSize)
	if err != nil {
		respondError(c, response.CodeInternal, "notification fetch failed", err)
		return
	}
	response.SuccessWithPage(c, items, response.BuildPagination(page, pageSize, total))
}
