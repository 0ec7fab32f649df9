package models

import "time"

// WalletAccount 用户钱包账户（余额为流水汇总的缓存值）
type WalletAccount struct {
	ID        uint      `gorm:"primarykey" json:"id"`                                  // 主键
	UserID    uint      `gorm:"uniqueIndex;not null" json:"user_id"`                   // 用户ID
	Balance   Money     `gorm:"type:decimal(20,2);not null;default:0" json:"balance"`  // 余额
	Currency  string    `gorm:"type:varchar(8);not null;default:'NGN'" json:"currency"` // 币种
	CreatedAt time.Time `json:"created_at"`                                            // 创建时间
	UpdatedAt time.Time `json:"updated_at"`                                            // 更新时间
}

// TableName 指定表名
func (WalletAccount) TableName() string {
	return "wallet_accounts"
}

// WalletTransaction 钱包流水（只追加，不修改）
type WalletTransaction struct {
	ID              uint      `gorm:"primarykey" json:"id"`                                                      // 主键
	WalletID        uint      `gorm:"not null;uniqueIndex:uk_wallet_sale_type,priority:1" json:"wallet_id"`      // 钱包ID
	UserID          uint      `gorm:"not null;index" json:"user_id"`                                             // 用户ID
	SaleID          *uint     `gorm:"uniqueIndex:uk_wallet_sale_type,priority:2" json:"sale_id"`                 // 关联销售
	TransactionType string    `gorm:"type:varchar(32);not null;uniqueIndex:uk_wallet_sale_type,priority:3" json:"transaction_type"` // 流水类型
	Direction       string    `gorm:"type:varchar(8);not null" json:"direction"`                                 // 方向 in/out
	Amount          Money     `gorm:"type:decimal(20,2);not null" json:"amount"`                                 // 金额（入账为正，出账为负）
	BalanceBefore   Money     `gorm:"type:decimal(20,2);not null" json:"balance_before"`                         // 变动前余额
	BalanceAfter    Money     `gorm:"type:decimal(20,2);not null" json:"balance_after"`                          // 变动后余额
	Reference       string    `gorm:"type:varchar(64);index" json:"reference"`                                   // 业务关联号
	Description     string    `gorm:"type:varchar(255)" json:"description"`                                      // 描述
	CreatedAt       time.Time `gorm:"index" json:"created_at"`                                                   // 创建时间
}

// TableName 指定表名
func (WalletTransaction) TableName() string {
	return "wallet_transactions"
}
