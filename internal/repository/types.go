package repository

import "time"

// ReferralLinkListFilter 推广链接列表过滤条件
type ReferralLinkListFilter struct {
	Page        int
	PageSize    int
	AffiliateID uint
	ProductID   uint
}

// SaleListFilter 销售列表过滤条件
type SaleListFilter struct {
	Page           int
	PageSize       int
	Status         string
	ProductID      uint
	ReferralLinkID uint
	AffiliateID    uint
	BusinessID     uint
	Keyword        string
	CreatedFrom    *time.Time
	CreatedTo      *time.Time
}

// WalletTransactionListFilter 钱包流水过滤条件
type WalletTransactionListFilter struct {
	Page      int
	PageSize  int
	UserID    uint
	SaleID    uint
	Type      string
	Direction string
}

// WithdrawalListFilter 提现申请过滤条件
type WithdrawalListFilter struct {
	Page     int
	PageSize int
	UserID   uint
	Status   string
}

// ReconciliationTaskListFilter 对账任务过滤条件
type ReconciliationTaskListFilter struct {
	Page     int
	PageSize int
	Status   string
	Step     string
	SaleID   uint
}

// AuthzAuditLogListFilter 权限审计日志过滤条件
type AuthzAuditLogListFilter struct {
	Page           int
	PageSize       int
	OperatorUserID uint
	TargetUserID   uint
	Action         string
	CreatedFrom    *time.Time
	CreatedTo      *time.Time
}
