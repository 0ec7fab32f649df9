package models

import "time"

// WithdrawalRequest 提现申请
type WithdrawalRequest struct {
	ID            uint       `gorm:"primarykey" json:"id"`                               // 主键
	UserID        uint       `gorm:"not null;index" json:"user_id"`                      // 申请人
	Amount        Money      `gorm:"type:decimal(20,2);not null" json:"amount"`          // 提现金额
	Currency      string     `gorm:"type:varchar(8);not null;default:'NGN'" json:"currency"` // 币种
	BankName      string     `gorm:"type:varchar(120);not null" json:"bank_name"`        // 银行名称
	AccountNumber string     `gorm:"type:varchar(32);not null" json:"account_number"`    // 收款账号
	AccountName   string     `gorm:"type:varchar(120);not null" json:"account_name"`     // 收款户名
	Status        string     `gorm:"type:varchar(20);not null;index" json:"status"`      // 状态 pending/approved/rejected/completed
	Notes         string     `gorm:"type:text" json:"notes"`                             // 管理员备注
	ProcessedBy   *uint      `gorm:"index" json:"processed_by"`                          // 处理管理员
	ApprovedAt    *time.Time `json:"approved_at"`                                        // 审核通过时间
	ProcessedAt   *time.Time `json:"processed_at"`                                       // 最近处理时间
	CompletedAt   *time.Time `json:"completed_at"`                                       // 打款完成时间
	CreatedAt     time.Time  `gorm:"index" json:"created_at"`                            // 创建时间
	UpdatedAt     time.Time  `json:"updated_at"`                                         // 更新时间

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"` // 申请人信息
}

// TableName 指定表名
func (WithdrawalRequest) TableName() string {
	return "withdrawal_requests"
}
