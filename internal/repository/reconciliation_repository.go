package repository

import (
	"time"

	"github.com/dujiao-next/affiliate-settlement/internal/constants"
	"github.com/dujiao-next/affiliate-settlement/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReconciliationRepository 对账任务数据访问接口
type ReconciliationRepository interface {
	Record(task *models.ReconciliationTask) error
	GetByID(id uint) (*models.ReconciliationTask, error)
	GetBySaleStep(saleID uint, step string) (*models.ReconciliationTask, error)
	ListRetryable(maxAttempts, limit int) ([]models.ReconciliationTask, error)
	MarkResolved(id uint, at time.Time) error
	RecordFailure(id uint, lastError string) error
	DeleteBySaleIDs(saleIDs []uint) error
	List(filter ReconciliationTaskListFilter) ([]models.ReconciliationTask, int64, error)
	WithTx(tx *gorm.DB) *GormReconciliationRepository
}

// GormReconciliationRepository GORM 实现
type GormReconciliationRepository struct {
	db *gorm.DB
}

// NewReconciliationRepository 创建对账任务仓库
func NewReconciliationRepository(db *gorm.DB) *GormReconciliationRepository {
	return &GormReconciliationRepository{db: db}
}

// WithTx 绑定事务
func (r *GormReconciliationRepository) WithTx(tx *gorm.DB) *GormReconciliationRepository {
	if tx == nil {
		return r
	}
	return &GormReconciliationRepository{db: tx}
}

// Record 记录失败步骤；同一 (销售, 步骤) 已存在时重新打开并刷新错误
func (r *GormReconciliationRepository) Record(task *models.ReconciliationTask) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "sale_id"}, {Name: "step"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"status":      task.Status,
			"last_error":  task.LastError,
			"resolved_at": nil,
			"updated_at":  time.Now(),
		}),
	}).Create(task).Error
}

// GetByID 获取对账任务
func (r *GormReconciliationRepository) GetByID(id uint) (*models.ReconciliationTask, error) {
	if id == 0 {
		return nil, nil
	}
	return firstOrNil[models.ReconciliationTask](r.db, id)
}

// GetBySaleStep 按 (销售, 步骤) 获取对账任务
func (r *GormReconciliationRepository) GetBySaleStep(saleID uint, step string) (*models.ReconciliationTask, error) {
	return firstOrNil[models.ReconciliationTask](r.db.Where("sale_id = ? AND step = ?", saleID, step))
}

// ListRetryable 查询可自动重试的对账任务
func (r *GormReconciliationRepository) ListRetryable(maxAttempts, limit int) ([]models.ReconciliationTask, error) {
	if limit <= 0 {
		limit = 50
	}
	query := r.db.Where("status = ?", constants.ReconcileStatusOpen)
	if maxAttempts > 0 {
		query = query.Where("attempts < ?", maxAttempts)
	}
	var tasks []models.ReconciliationTask
	err := query.Order("id asc").Limit(limit).Find(&tasks).Error
	return tasks, err
}

// MarkResolved 标记已解决
func (r *GormReconciliationRepository) MarkResolved(id uint, at time.Time) error {
	return r.db.Model(&models.ReconciliationTask{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      constants.ReconcileStatusResolved,
			"resolved_at": at,
			"attempts":    gorm.Expr("attempts + ?", 1),
		}).Error
}

// RecordFailure 记录一次重试失败
func (r *GormReconciliationRepository) RecordFailure(id uint, lastError string) error {
	return r.db.Model(&models.ReconciliationTask{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_error": lastError,
			"attempts":   gorm.Expr("attempts + ?", 1),
		}).Error
}

// DeleteBySaleIDs 删除销售关联的对账任务
func (r *GormReconciliationRepository) DeleteBySaleIDs(saleIDs []uint) error {
	if len(saleIDs) == 0 {
		return nil
	}
	return r.db.Where("sale_id IN ?", saleIDs).Delete(&models.ReconciliationTask{}).Error
}

// List 分页查询对账任务
func (r *GormReconciliationRepository) List(filter ReconciliationTaskListFilter) ([]models.ReconciliationTask, int64, error) {
	query := r.db.Model(&models.ReconciliationTask{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Step != "" {
		query = query.Where("step = ?", filter.Step)
	}
	if filter.SaleID != 0 {
		query = query.Where("sale_id = ?", filter.SaleID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var tasks []models.ReconciliationTask
	if err := query.Order("id desc").Find(&tasks).Error; err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}
