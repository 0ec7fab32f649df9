package repository

import (
	"github.com/dujiao-next/affiliate-settlement/internal/models"

	"gorm.io/gorm"
)

// AuthzAuditLogRepository 角色变更审计记录
type AuthzAuditLogRepository interface {
	Create(log *models.AuthzAuditLog) error
	List(filter AuthzAuditLogListFilter) ([]models.AuthzAuditLog, int64, error)
}

// GormAuthzAuditLogRepository GORM 实现
type GormAuthzAuditLogRepository struct {
	db *gorm.DB
}

// NewAuthzAuditLogRepository 创建审计仓库
func NewAuthzAuditLogRepository(db *gorm.DB) *GormAuthzAuditLogRepository {
	return &GormAuthzAuditLogRepository{db: db}
}

func (r *GormAuthzAuditLogRepository) Create(log *models.AuthzAuditLog) error {
	if log == nil {
		return nil
	}
	return r.db.Create(log).Error
}

// List 按操作人、目标管理员、动作与时间范围筛选，新记录在前
func (r *GormAuthzAuditLogRepository) List(filter AuthzAuditLogListFilter) ([]models.AuthzAuditLog, int64, error) {
	query := r.db.Model(&models.AuthzAuditLog{}).Scopes(filter.scope)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	logs := make([]models.AuthzAuditLog, 0)
	err := applyPagination(query, filter.Page, filter.PageSize).Order("id DESC").Find(&logs).Error
	if err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

func (f AuthzAuditLogListFilter) scope(db *gorm.DB) *gorm.DB {
	conds := map[string]interface{}{}
	if f.OperatorUserID != 0 {
		conds["operator_user_id"] = f.OperatorUserID
	}
	if f.TargetUserID != 0 {
		conds["target_user_id"] = f.TargetUserID
	}
	if f.Action != "" {
		conds["action"] = f.Action
	}
	if len(conds) > 0 {
		db = db.Where(conds)
	}
	if f.CreatedFrom != nil {
		db = db.Where("created_at >= ?", *f.CreatedFrom)
	}
	if f.CreatedTo != nil {
		db = db.Where("created_at <= ?", *f.CreatedTo)
	}
	return db
}
