package models

import "time"

// PaymentTransaction 支付流水影子记录（与 Sale 通过 transaction_reference 关联）
type PaymentTransaction struct {
	ID                    uint       `gorm:"primarykey" json:"id"`                                               // 主键
	SaleID                *uint      `gorm:"index" json:"sale_id"`                                               // 销售ID
	TransactionReference  string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_reference"` // 支付关联号
	Provider              string     `gorm:"type:varchar(32);not null;default:'flutterwave'" json:"provider"`    // 支付网关
	Amount                Money      `gorm:"type:decimal(20,2);not null" json:"amount"`                          // 金额
	Currency              string     `gorm:"type:varchar(8);not null" json:"currency"`                           // 币种
	CustomerEmail         string     `gorm:"type:varchar(255)" json:"customer_email"`                            // 买家邮箱
	CustomerName          string     `gorm:"type:varchar(255)" json:"customer_name"`                             // 买家姓名
	ProviderTransactionID string     `gorm:"type:varchar(64);index" json:"provider_transaction_id"`              // 网关交易ID
	Status                string     `gorm:"type:varchar(20);not null;index" json:"status"`                      // 状态 pending/completed/failed
	PaymentMethod         string     `gorm:"type:varchar(50)" json:"payment_method"`                             // 支付方式
	ProviderPayload       JSON       `gorm:"type:json" json:"-"`                                                 // 网关原始报文
	PaidAt                *time.Time `json:"paid_at"`                                                            // 支付时间
	CreatedAt             time.Time  `gorm:"index" json:"created_at"`                                            // 创建时间
	UpdatedAt             time.Time  `json:"updated_at"`                                                         // 更新时间
}

// TableName 指定表名
func (PaymentTransaction) TableName() string {
	return "payment_transactions"
}
