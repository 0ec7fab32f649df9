package authz

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/casbin/casbin/v3"
	"github.com/casbin/casbin/v3/model"
	"github.com/casbin/casbin/v3/util"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"gorm.io/gorm"
)

const (
	apiV1Prefix     = "/api/v1"
	casbinTableName = "casbin_rule"
	rolePrefix      = "role:"
)

var (
	// ErrUnavailable 授权服务未初始化
	ErrUnavailable = errors.New("authz service unavailable")
	// ErrUnknownRole 角色不在预置矩阵中
	ErrUnknownRole = errors.New("unknown role")
)

// 主体为 user:<id> 或 role:<name>；资源按 keyMatch2 匹配 gin 路由参数
const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch2(r.obj, p.obj) && (r.act == p.act || p.act == "*")
`

// Policy 权限策略
type Policy struct {
	Object string `json:"object"`
	Action string `json:"action"`
}

// Service Casbin 授权服务，约束管理端的结算、提现与对账操作
// 角色集合固定为 BuiltinRoleSeeds，超级管理员在中间件层直接放行
type Service struct {
	enforcer *casbin.SyncedEnforcer
	roles    map[string]struct{}
}

// NewService 创建授权服务，策略持久化在 casbin_rule 表
func NewService(db *gorm.DB) (*Service, error) {
	if db == nil {
		return nil, errors.New("authz db is nil")
	}
	adapter, err := gormadapter.NewAdapterByDBUseTableName(db, "", casbinTableName)
	if err != nil {
		return nil, fmt.Errorf("create authz adapter: %w", err)
	}
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("load authz model: %w", err)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, fmt.Errorf("init authz enforcer: %w", err)
	}
	enforcer.AddFunction("keyMatch2", util.KeyMatch2Func)
	enforcer.EnableAutoSave(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, fmt.Errorf("load authz policy: %w", err)
	}

	roles := make(map[string]struct{})
	for _, seed := range BuiltinRoleSeeds() {
		roles[rolePrefix+seed.Role] = struct{}{}
	}
	return &Service{enforcer: enforcer, roles: roles}, nil
}

func (s *Service) ready() bool {
	return s != nil && s.enforcer != nil
}

// Enforce 执行授权判断
func (s *Service) Enforce(sub, obj, act string) (bool, error) {
	if !s.ready() {
		return false, ErrUnavailable
	}
	return s.enforcer.Enforce(strings.TrimSpace(sub), NormalizeObject(obj), NormalizeAction(act))
}

// EnforceUser 按管理员用户 ID 判定授权
func (s *Service) EnforceUser(userID uint, obj, act string) (bool, error) {
	return s.Enforce(SubjectForUser(userID), obj, act)
}

// ListRoles 列出可分配的角色
func (s *Service) ListRoles() ([]string, error) {
	if !s.ready() {
		return nil, ErrUnavailable
	}
	out := make([]string, 0, len(s.roles))
	for role := range s.roles {
		out = append(out, role)
	}
	sort.Strings(out)
	return out, nil
}

// SetUserRoles 覆盖设置管理员角色；任一角色未知时不做任何修改
func (s *Service) SetUserRoles(userID uint, roles []string) error {
	if userID == 0 {
		return errors.New("user id is required")
	}
	if !s.ready() {
		return ErrUnavailable
	}
	normalized := make([]string, 0, len(roles))
	for _, role := range roles {
		name, err := NormalizeRole(role)
		if err != nil {
			return err
		}
		if _, ok := s.roles[name]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownRole, name)
		}
		normalized = append(normalized, name)
	}

	subject := SubjectForUser(userID)
	if _, err := s.enforcer.RemoveFilteredNamedGroupingPolicy("g", 0, subject); err != nil {
		return fmt.Errorf("clear user roles: %w", err)
	}
	for _, role := range normalized {
		if _, err := s.enforcer.AddNamedGroupingPolicy("g", subject, role); err != nil {
			return fmt.Errorf("assign user role: %w", err)
		}
	}
	return nil
}

// GetUserRoles 查询管理员直接持有的角色
func (s *Service) GetUserRoles(userID uint) ([]string, error) {
	if userID == 0 {
		return nil, errors.New("user id is required")
	}
	if !s.ready() {
		return nil, ErrUnavailable
	}
	roles, err := s.enforcer.GetRolesForUser(SubjectForUser(userID))
	if err != nil {
		return nil, fmt.Errorf("get user roles: %w", err)
	}
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		if strings.HasPrefix(role, rolePrefix) {
			out = append(out, role)
		}
	}
	sort.Strings(out)
	return out, nil
}

// SubjectForUser 生成管理员主体标识
func SubjectForUser(userID uint) string {
	return fmt.Sprintf("user:%d", userID)
}

// NormalizeRole 统一角色名称（补 role: 前缀，空格转下划线，小写）
func NormalizeRole(role string) (string, error) {
	name := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(role), " ", "_"))
	name = strings.TrimPrefix(name, rolePrefix)
	if name == "" {
		return "", errors.New("role is required")
	}
	return rolePrefix + name, nil
}

// NormalizeObject 统一授权资源路径（去掉 /api/v1 前缀）
func NormalizeObject(object string) string {
	path := strings.TrimSpace(object)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	path = strings.TrimPrefix(path, apiV1Prefix)
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		return apiV1Prefix + path
	}
	return path
}

// NormalizeAction 统一授权动作
func NormalizeAction(action string) string {
	return strings.ToUpper(strings.TrimSpace(action))
}
