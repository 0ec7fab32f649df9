package public

import (
	"github.com/dujiao-next/affiliate-settlement/internal/http/response"

	"github.com/gin-gonic/gin"
)

// ResolveReferral 解析推广码：累加点击并返回归因绑定令牌
func (h *Handler) ResolveReferral(c *gin.Context) {
	resolved, err := h.AttributionService.ResolveCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondResolveError(c, err)
		return
	}
	response.Success(c, gin.H{
		"code":               resolved.Link.Code,
		"product":            resolved.Product,
		"binding_token":      resolved.BindingToken,
		"binding_expires_at": resolved.Binding.ExpiresAt,
	})
}
