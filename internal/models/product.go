package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product 商家商品表
type Product struct {
	ID             uint            `gorm:"primarykey" json:"id"`                                         // 主键
	BusinessID     uint            `gorm:"not null;index" json:"business_id"`                            // 所属商家用户ID
	Name           string          `gorm:"type:varchar(255);not null" json:"name"`                       // 商品名称
	Description    string          `gorm:"type:text" json:"description"`                                 // 描述
	Price          Money           `gorm:"type:decimal(20,2);not null;default:0" json:"price"`           // 价格
	Currency       string          `gorm:"type:varchar(8);not null;default:'NGN'" json:"currency"`       // 币种
	CommissionRate decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0" json:"commission_rate"`  // 佣金比例（百分比）
	IsActive       bool            `gorm:"default:true;index" json:"is_active"`                          // 是否上架
	CreatedAt      time.Time       `gorm:"index" json:"created_at"`                                      // 创建时间
	UpdatedAt      time.Time       `json:"updated_at"`                                                   // 更新时间
	DeletedAt      gorm.DeletedAt  `gorm:"index" json:"-"`                                               // 软删除时间

	Business *User `gorm:"foreignKey:BusinessID" json:"business,omitempty"` // 商家信息
}

// TableName 指定表名
func (Product) TableName() string {
	return "products"
}
