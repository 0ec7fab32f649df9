package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dujiao-next/affiliate-settlement/internal/config"
	"github.com/dujiao-next/affiliate-settlement/internal/constants"

	"github.com/redis/go-redis/v9"
)

// store 进程级 Redis 状态；未启用时所有操作退化为 no-op
type store struct {
	client *redis.Client
	prefix string
}

var current store

// InitRedis 初始化 Redis 客户端并做一次连通性检查
func InitRedis(cfg *config.RedisConfig) error {
	if cfg == nil || !cfg.Enabled {
		current = store{}
		return nil
	}
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port <= 0 {
		port = 6379
	}
	prefix := strings.TrimSpace(cfg.Prefix)
	if prefix == "" {
		prefix = constants.RedisPrefixDefault
	}
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("redis ping %s: %w", client.Options().Addr, err)
	}
	current = store{client: client, prefix: prefix}
	return nil
}

// Enabled 判断缓存是否启用
func Enabled() bool {
	return current.client != nil
}

// Client 获取 Redis 客户端，未启用时为 nil
func Client() *redis.Client {
	return current.client
}

// GetJSON 读取 JSON 缓存，返回是否命中
func GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !Enabled() {
		return false, nil
	}
	raw, err := current.client.Get(ctx, buildKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON 写入 JSON 缓存
func SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !Enabled() {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return current.client.Set(ctx, buildKey(key), payload, ttl).Err()
}

// SetNX 仅在键不存在时写入，返回是否写入成功（未启用缓存时视为成功）
func SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	if !Enabled() {
		return true, nil
	}
	return current.client.SetNX(ctx, buildKey(key), value, ttl).Result()
}

// Close 关闭 Redis 客户端
func Close() error {
	client := current.client
	current = store{}
	if client == nil {
		return nil
	}
	return client.Close()
}

func buildKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return current.prefix
	}
	return current.prefix + ":" + key
}
