package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sale 推广销售表
type Sale struct {
	ID                   uint            `gorm:"primarykey" json:"id"`                                           // 主键
	ProductID            uint            `gorm:"not null;index" json:"product_id"`                               // 商品ID
	ReferralLinkID       uint            `gorm:"not null;index" json:"referral_link_id"`                         // 推广链接ID
	Amount               Money           `gorm:"type:decimal(20,2);not null" json:"amount"`                      // 成交金额
	CommissionRate       decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0" json:"commission_rate"`    // 下单时佣金比例快照
	CommissionAmount     Money           `gorm:"type:decimal(20,2);not null;default:0" json:"commission_amount"` // 下单时佣金快照
	Currency             string          `gorm:"type:varchar(8);not null;default:'NGN'" json:"currency"`         // 币种
	Status               string          `gorm:"type:varchar(20);not null;index" json:"status"`                  // 状态 pending/completed/cancelled
	TransactionReference string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_reference"` // 支付关联号
	BindingID            string          `gorm:"type:varchar(64);index" json:"-"`                                // 归因绑定ID
	CustomerEmail        string          `gorm:"type:varchar(255)" json:"customer_email"`                        // 买家邮箱
	CustomerName         string          `gorm:"type:varchar(255)" json:"customer_name"`                         // 买家姓名
	ConversionCounted    bool            `gorm:"not null;default:false" json:"conversion_counted"`               // 是否已计入成交数
	CompletedAt          *time.Time      `json:"completed_at"`                                                   // 结算时间
	CancelledAt          *time.Time      `json:"cancelled_at"`                                                   // 取消时间
	CancelReason         string          `gorm:"type:varchar(255)" json:"cancel_reason,omitempty"`               // 取消原因
	CreatedAt            time.Time       `gorm:"index" json:"created_at"`                                        // 创建时间
	UpdatedAt            time.Time       `json:"updated_at"`                                                     // 更新时间

	Product      *Product      `gorm:"foreignKey:ProductID" json:"product,omitempty"`           // 商品信息
	ReferralLink *ReferralLink `gorm:"foreignKey:ReferralLinkID" json:"referral_link,omitempty"` // 推广链接
}

// TableName 指定表名
func (Sale) TableName() string {
	return "sales"
}
