package cache

import (
	"context"
	"testing"
	"time"

	"github.com/dujiao-next/affiliate-settlement/internal/config"
	"github.com/dujiao-next/affiliate-settlement/internal/models"
)

func TestDisabledCacheIsTransparent(t *testing.T) {
	if err := InitRedis(&config.RedisConfig{Enabled: false}); err != nil {
		t.Fatalf("init redis failed: %v", err)
	}
	ctx := context.Background()
	if Enabled() {
		t.Fatalf("cache should be disabled")
	}
	state := BuildUserProfileState(&models.User{ID: 3, Role: "affiliate", Status: "active"})
	if err := SetUserProfileState(ctx, state); err != nil {
		t.Fatalf("set on disabled cache failed: %v", err)
	}
	got, hit, err := GetUserProfileState(ctx, 3)
	if err != nil || hit || got != nil {
		t.Fatalf("disabled cache should miss: got=%v hit=%v err=%v", got, hit, err)
	}
	ok, err := SetNX(ctx, "dedupe", "1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("disabled SetNX should report success: ok=%v err=%v", ok, err)
	}
}

func TestBuildKeyUsesPrefix(t *testing.T) {
	old := current
	current = store{prefix: "afs"}
	t.Cleanup(func() { current = old })
	if got := buildKey(" profile:user:1 "); got != "afs:profile:user:1" {
		t.Fatalf("unexpected key: %s", got)
	}
	if got := buildKey(""); got != "afs" {
		t.Fatalf("unexpected empty key: %s", got)
	}
}
