package models

import "time"

// ReconciliationTask 结算部分失败待补偿任务
type ReconciliationTask struct {
	ID                   uint       `gorm:"primarykey" json:"id"`                                                    // 主键
	SaleID               uint       `gorm:"not null;uniqueIndex:uk_reconcile_sale_step,priority:1" json:"sale_id"`   // 销售ID
	TransactionReference string     `gorm:"type:varchar(64);index" json:"transaction_reference"`                     // 支付关联号
	Step                 string     `gorm:"type:varchar(32);not null;uniqueIndex:uk_reconcile_sale_step,priority:2" json:"step"` // 失败步骤
	Status               string     `gorm:"type:varchar(20);not null;index" json:"status"`                           // 状态 open/resolved/manual
	Attempts             int        `gorm:"not null;default:0" json:"attempts"`                                      // 已重试次数
	LastError            string     `gorm:"type:text" json:"last_error"`                                             // 最近错误
	ResolvedAt           *time.Time `json:"resolved_at"`                                                             // 解决时间
	CreatedAt            time.Time  `gorm:"index" json:"created_at"`                                                 // 创建时间
	UpdatedAt            time.Time  `json:"updated_at"`                                                              // 更新时间
}

// TableName 指定表名
func (ReconciliationTask) TableName() string {
	return "reconciliation_tasks"
}
