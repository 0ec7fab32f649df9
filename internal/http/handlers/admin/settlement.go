package admin

import (
	"strconv"
	"strings"

	handlershared "github.com/dujiao-next/affiliate-settlement/internal/http/handlers/shared"
	"github.com/dujiao-next/affiliate-settlement/internal/http/response"
	"github.com/dujiao-next/affiliate-settlement/internal/repository"

	"github.com/gin-gonic/gin"
)

// CancelSaleRequest 取消销售请求
type CancelSaleRequest struct {
	Reason string `json:"reason"`
}

// PurgeReferralLinksRequest 批量清理推广链接请求
type PurgeReferralLinksRequest struct {
	LinkIDs []uint `json:"link_ids" binding:"required"`
}

// ListSales 销售列表
func (h *Handler) ListSales(c *gin.Context) {
	page, pageSize := handlershared.ParsePagination(c)
	productID, _ := strconv.ParseUint(strings.TrimSpace(c.Query("product_id")), 10, 64)
	affiliateID, _ := strconv.ParseUint(strings.TrimSpace(c.Query("affiliate_id")), 10, 64)
	businessID, _ := strconv.ParseUint(strings.TrimSpace(c.Query("business_id")), 10, 64)
	sales, total, err := h.SaleService.ListSales(repository.SaleListFilter{
		Page:        page,
		PageSize:    pageSize,
		Status:      strings.TrimSpace(c.Query("status")),
		ProductID:   uint(productID),
		AffiliateID: uint(affiliateID),
		BusinessID:  uint(businessID),
		Keyword:     strings.TrimSpace(c.Query("keyword")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "sale fetch failed", err)
		return
	}
	response.SuccessWithPage(c, sales, response.BuildPagination(page, pageSize, total))
}

// CancelSale 管理端取消待支付销售
func (h *Handler) CancelSale(c *gin.Context) {
	id, ok := parsePathUint(c, "id")
	if !ok {
		respondError(c, response.CodeBadRequest, "sale id invalid", nil)
		return
	}
	var req CancelSaleRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, response.CodeBadRequest, "bad request", err)
			return
		}
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "admin_cancelled"
	}
	sale, err := h.SettlementService.CancelPendingSale(c.Request.Context(), id, reason)
	if err != nil {
		respondAdminError(c, err, "sale cancel failed")
		return
	}
	response.Success(c, sale)
}

// ListReconciliationTasks 对账任务列表
func (h *Handler) ListReconciliationTasks(c *gin.Context) {
	page, pageSize := handlershared.ParsePagination(c)
	saleID, _ := strconv.ParseUint(strings.TrimSpace(c.Query("sale_id")), 10, 64)
	tasks, total, err := h.SettlementService.ListReconciliationTasks(repository.ReconciliationTaskListFilter{
		Page:     page,
		PageSize: pageSize,
		Status:   strings.TrimSpace(c.Query("status")),
		Step:     strings.TrimSpace(c.Query("step")),
		SaleID:   uint(saleID),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "reconciliation task fetch failed", err)
		return
	}
	response.SuccessWithPage(c, tasks, response.BuildPagination(page, pageSize, total))
}

// RetryReconciliationTask 手动重试对账任务
func (h *Handler) RetryReconciliationTask(c *gin.Context) {
	id, ok := parsePathUint(c, "id")
	if !ok {
		respondError(c, response.CodeBadRequest, "task id invalid", nil)
		return
	}
	task, err := h.SettlementService.RetryReconciliationTask(c.Request.Context(), id)
	if err != nil {
		respondAdminError(c, err, "reconciliation retry failed")
		return
	}
	response.Success(c, task)
}

// PurgeReferralLinks 批量清理推广链接及其销售与流水
func (h *Handler) PurgeReferralLinks(c *gin.Context) {
	adminID, ok := getAdminID(c)
	if !ok {
		return
	}
	var req PurgeReferralLinksRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.LinkIDs) == 0 {
		respondError(c, response.CodeBadRequest, "link_ids is required", nil)
		return
	}
	result, err := h.AttributionService.PurgeLinks(c.Request.Context(), adminID, req.LinkIDs)
	if err != nil {
		respondAdminError(c, err, "referral link purge failed")
		return
	}
	requestLog(c).Infow("admin_referral_links_purged", "admin_id", adminID, "links", result.Links, "sales", result.Sales)
	response.Success(c, result)
}

// AuditWallet 核对用户余额与流水汇总
func (h *Handler) AuditWallet(c *gin.Context) {
	userID, ok := parsePathUint(c, "user_id")
	if !ok {
		respondError(c, response.CodeBadRequest, "user id invalid", nil)
		return
	}
	audit, err := h.WalletService.AuditBalance(userID)
	if err != nil {
		respondError(c, response.CodeInternal, "wallet audit failed", err)
		return
	}
	response.Success(c, audit)
}
