package models

import (
	"strings"
	"time"

	"github.com/dujiao-next/affiliate-settlement/internal/logger"
)

// EnsureSuperAdmin 确保存在一个超级管理员资料（首次部署时由配置指定邮箱）
func EnsureSuperAdmin(email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil
	}
	var count int64
	if err := DB.Model(&User{}).Where("role = ? AND is_super = ?", "admin", true).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	var existing User
	err := DB.Where("email = ?", email).Limit(1).Find(&existing).Error
	if err != nil {
		return err
	}
	if existing.ID != 0 {
		if err := DB.Model(&existing).Updates(map[string]interface{}{"role": "admin", "is_super": true}).Error; err != nil {
			return err
		}
		logger.Warnw("super_admin_promoted", "user_id", existing.ID, "email", email)
		return nil
	}

	now := time.Now()
	admin := User{
		Email:       email,
		DisplayName: "admin",
		Role:        "admin",
		IsSuper:     true,
		Status:      "active",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := DB.Create(&admin).Error; err != nil {
		return err
	}
	logger.Warnw("super_admin_created", "user_id", admin.ID, "email", email)
	return nil
}
