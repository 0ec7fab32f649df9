package models

import (
	"time"

	"gorm.io/gorm"
)

// User 用户资料表（认证服务维护，本服务只读）
type User struct {
	ID          uint           `gorm:"primarykey" json:"id"`                                         // 主键
	Email       string         `gorm:"uniqueIndex;not null" json:"email"`                            // 邮箱
	DisplayName string         `gorm:"default:''" json:"display_name"`                               // 名称
	Role        string         `gorm:"type:varchar(20);not null;default:'affiliate';index" json:"role"` // 角色 affiliate/business/admin
	IsSuper     bool           `gorm:"not null;default:false" json:"is_super"`                       // 超级管理员（免 RBAC 校验）
	IsVerified  bool           `gorm:"not null;default:false;index" json:"is_verified"`              // 商家是否已认证
	VerifiedAt  *time.Time     `json:"verified_at"`                                                  // 认证时间
	Status      string         `gorm:"type:varchar(20);default:'active'" json:"status"`              // 账号状态
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`                                      // 创建时间
	UpdatedAt   time.Time      `json:"updated_at"`                                                   // 更新时间
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`                                               // 软删除时间
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}
