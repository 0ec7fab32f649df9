package models

import "time"

// Notification 站内通知记录
type Notification struct {
	ID        uint       `gorm:"primarykey" json:"id"`                      // 主键
	UserID    uint       `gorm:"not null;index" json:"user_id"`             // 接收用户
	Type      string     `gorm:"type:varchar(50);not null;index" json:"type"` // 通知类型
	Title     string     `gorm:"type:varchar(255)" json:"title"`            // 标题
	Payload   JSON       `gorm:"type:json" json:"payload"`                  // 结构化数据
	ReadAt    *time.Time `json:"read_at"`                                   // 已读时间
	CreatedAt time.Time  `gorm:"index" json:"created_at"`                   // 创建时间
}

// TableName 指定表名
func (Notification) TableName() string {
	return "notifications"
}
