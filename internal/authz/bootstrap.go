package authz

import "fmt"

// RoleSeed 预置角色定义；Role 不含 role: 前缀
type RoleSeed struct {
	Role     string
	Inherits []string
	Policies []Policy
}

// BuiltinRoleSeeds 系统预置角色矩阵
func BuiltinRoleSeeds() []RoleSeed {
	return []RoleSeed{
		{
			Role: "readonly_auditor",
			Policies: []Policy{
				{Object: "/admin/*", Action: "GET"},
			},
		},
		{
			Role:     "finance",
			Inherits: []string{"readonly_auditor"},
			Policies: []Policy{
				{Object: "/admin/withdrawals/:id/approve", Action: "POST"},
				{Object: "/admin/withdrawals/:id/reject", Action: "POST"},
				{Object: "/admin/withdrawals/:id/complete", Action: "POST"},
				{Object: "/admin/reconciliation-tasks/:id/retry", Action: "POST"},
			},
		},
		{
			Role:     "operations",
			Inherits: []string{"readonly_auditor"},
			Policies: []Policy{
				{Object: "/admin/sales/:id/cancel", Action: "POST"},
				{Object: "/admin/referral-links/purge", Action: "POST"},
				{Object: "/admin/reconciliation-tasks/:id/retry", Action: "POST"},
			},
		},
	}
}

// BootstrapBuiltinRoles 写入预置角色的继承关系与策略，可重复执行
func (s *Service) BootstrapBuiltinRoles() error {
	if !s.ready() {
		return ErrUnavailable
	}
	for _, seed := range BuiltinRoleSeeds() {
		role := rolePrefix + seed.Role
		for _, parent := range seed.Inherits {
			if _, err := s.enforcer.AddNamedGroupingPolicy("g", role, rolePrefix+parent); err != nil {
				return fmt.Errorf("link %s to %s: %w", role, parent, err)
			}
		}
		for _, policy := range seed.Policies {
			action := NormalizeAction(policy.Action)
			if action == "" {
				return fmt.Errorf("builtin policy %s has no action", policy.Object)
			}
			if _, err := s.enforcer.AddPolicy(role, NormalizeObject(policy.Object), action); err != nil {
				return fmt.Errorf("add policy for %s: %w", role, err)
			}
		}
	}
	return nil
}
