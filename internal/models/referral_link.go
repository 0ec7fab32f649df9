package models

import "time"

// ReferralLink 推广链接表（推广者 + 商品）
type ReferralLink struct {
	ID              uint      `gorm:"primarykey" json:"id"`                                  // 主键
	ProductID       uint      `gorm:"not null;index:idx_referral_affiliate_product,priority:2" json:"product_id"`   // 商品ID
	AffiliateID     uint      `gorm:"not null;index:idx_referral_affiliate_product,priority:1" json:"affiliate_id"` // 推广者用户ID
	Code            string    `gorm:"type:varchar(32);uniqueIndex;not null" json:"code"`     // 推广码
	ClickCount      int64     `gorm:"not null;default:0" json:"click_count"`                 // 点击次数
	ConversionCount int64     `gorm:"not null;default:0" json:"conversion_count"`            // 成交次数
	CreatedAt       time.Time `gorm:"index" json:"created_at"`                               // 创建时间
	UpdatedAt       time.Time `json:"updated_at"`                                            // 更新时间

	Product *Product `gorm:"foreignKey:ProductID" json:"product,omitempty"` // 商品信息
}

// TableName 指定表名
func (ReferralLink) TableName() string {
	return "referral_links"
}
