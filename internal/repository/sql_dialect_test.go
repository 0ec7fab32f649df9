package repository

import (
	"errors"
	"fmt"
	"testing"

	"gorm.io/gorm"
)

func TestIsPostgresDialect(t *testing.T) {
	for _, name := range []string{"postgres", "PostgreSQL", " postgres "} {
		if !isPostgresDialect(name) {
			t.Fatalf("%q should be postgres", name)
		}
	}
	for _, name := range []string{"sqlite", ""} {
		if isPostgresDialect(name) {
			t.Fatalf("%q should not be postgres", name)
		}
	}
	if got := caseInsensitiveLike(nil); got != "LIKE" {
		t.Fatalf("nil db should fall back to LIKE, got %s", got)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if IsUniqueViolation(nil) {
		t.Fatalf("nil error should not be unique violation")
	}
	if !IsUniqueViolation(gorm.ErrDuplicatedKey) {
		t.Fatalf("gorm duplicated key should be unique violation")
	}
	if !IsUniqueViolation(fmt.Errorf("wrap: %w", errors.New("UNIQUE constraint failed: referral_links.code"))) {
		t.Fatalf("sqlite unique message should match")
	}
	if !IsUniqueViolation(errors.New(`ERROR: duplicate key value violates unique constraint "idx_sales_transaction_reference"`)) {
		t.Fatalf("postgres duplicate message should match")
	}
	if IsUniqueViolation(errors.New("connection refused")) {
		t.Fatalf("unrelated error should not match")
	}
}
