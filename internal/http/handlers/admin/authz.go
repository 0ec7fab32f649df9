package admin

import (
	"strconv"
	"strings"

	"github.com/dujiao-next/affiliate-settlement/internal/constants"
	handlershared "github.com/dujiao-next/affiliate-settlement/internal/http/handlers/shared"
	"github.com/dujiao-next/affiliate-settlement/internal/http/response"
	"github.com/dujiao-next/affiliate-settlement/internal/models"
	"github.com/dujiao-next/affiliate-settlement/internal/repository"
	"github.com/dujiao-next/affiliate-settlement/internal/service"

	"github.com/gin-gonic/gin"
)

// SetAdminRolesRequest 设置管理员角色请求
type SetAdminRolesRequest struct {
	Roles []string `json:"roles"`
}

// GetAdminRoles 查询管理员角色
func (h *Handler) GetAdminRoles(c *gin.Context) {
	userID, ok := parsePathUint(c, "id")
	if !ok {
		respondError(c, response.CodeBadRequest, "user id invalid", nil)
		return
	}
	roles, err := h.AuthzService.GetUserRoles(userID)
	if err != nil {
		respondError(c, response.CodeInternal, "role fetch failed", err)
		return
	}
	response.Success(c, gin.H{"user_id": userID, "roles": roles})
}

// SetAdminRoles 覆盖设置管理员角色
func (h *Handler) SetAdminRoles(c *gin.Context) {
	operatorID, ok := getAdminID(c)
	if !ok {
		return
	}
	userID, ok := parsePathUint(c, "id")
	if !ok {
		respondError(c, response.CodeBadRequest, "user id invalid", nil)
		return
	}
	var req SetAdminRolesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}
	user, err := h.UserRepo.GetByID(userID)
	if err != nil {
		respondError(c, response.CodeInternal, "user fetch failed", err)
		return
	}
	if user == nil {
		respondError(c, response.CodeNotFound, "user not found", nil)
		return
	}
	if user.Role != constants.UserRoleAdmin {
		respondError(c, response.CodeBadRequest, "roles can only be assigned to admins", nil)
		return
	}
	if err := h.AuthzService.SetUserRoles(userID, req.Roles); err != nil {
		respondError(c, response.CodeBadRequest, "role update failed", err)
		return
	}
	roles, err := h.AuthzService.GetUserRoles(userID)
	if err != nil {
		respondError(c, response.CodeInternal, "role fetch failed", err)
		return
	}
	if err := h.AuthzAuditService.Record(service.AuthzAuditRecordInput{
		OperatorUserID: operatorID,
		OperatorEmail:  c.GetString(handlershared.ContextUserEmail),
		TargetUserID:   &userID,
		Action:         service.AuthzAuditActionSetUserRoles,
		Role:           strings.Join(roles, ","),
		Object:         c.FullPath(),
		Method:         c.Request.Method,
		RequestID:      c.GetString("request_id"),
		Detail:         models.JSON{"requested": req.Roles, "applied": roles},
	}); err != nil {
		requestLog(c).Warnw("admin_authz_audit_record_failed", "target_user_id", userID, "error", err)
	}
	requestLog(c).Infow("admin_roles_updated", "operator_id", operatorID, "user_id", userID, "roles", roles)
	response.Success(c, gin.H{"user_id": userID, "roles": roles})
}

// ListRoles 角色列表
func (h *Handler) ListRoles(c *gin.Context) {
	roles, err := h.AuthzService.ListRoles()
	if err != nil {
		respondError(c, response.CodeInternal, "role fetch failed", err)
		return
	}
	response.Success(c, roles)
}

// ListAuthzAuditLogs 权限审计日志
func (h *Handler) ListAuthzAuditLogs(c *gin.Context) {
	page, pageSize := handlershared.ParsePagination(c)
	operatorID, _ := strconv.ParseUint(strings.TrimSpace(c.Query("operator_user_id")), 10, 64)
	targetID, _ := strconv.ParseUint(strings.TrimSpace(c.Query("target_user_id")), 10, 64)
	logs, total, err := h.AuthzAuditService.List(repository.AuthzAuditLogListFilter{
		Page:           page,
		PageSize:       pageSize,
		OperatorUserID: uint(operatorID),
		TargetUserID:   uint(targetID),
		Action:         strings.TrimSpace(c.Query("action")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "audit log fetch failed", err)
		return
	}
	response.SuccessWithPage(c, logs, response.BuildPagination(page, pageSize, total))
}
