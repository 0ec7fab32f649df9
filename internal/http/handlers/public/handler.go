package public

import "github.com/dujiao-next/affiliate-settlement/internal/provider"

// Handler 公开接口与登录用户接口处理器入口
// 说明：买家结算流程与推广者/商家自助接口都挂在这里，管理端在 admin 包。
type Handler struct {
	*provider.Container
}

// New 创建前台处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
