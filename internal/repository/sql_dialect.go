package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// sqlite: "UNIQUE constraint failed"; postgres: "duplicate key value ... (SQLSTATE 23505)"
var uniqueViolationMarkers = []string{"unique constraint", "duplicate key", "23505"}

// isPostgres 当前连接是否为 postgres
func isPostgres(db *gorm.DB) bool {
	if db == nil || db.Dialector == nil {
		return false
	}
	return isPostgresDialect(db.Dialector.Name())
}

func isPostgresDialect(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql":
		return true
	}
	return false
}

// caseInsensitiveLike postgres 使用 ILIKE，sqlite 的 LIKE 本身对 ASCII 不区分大小写
func caseInsensitiveLike(db *gorm.DB) string {
	if isPostgres(db) {
		return "ILIKE"
	}
	return "LIKE"
}

// IsUniqueViolation 判断是否违反唯一约束
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range uniqueViolationMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
