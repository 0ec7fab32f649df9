package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dujiao-next/affiliate-settlement/internal/http/response"
	"github.com/dujiao-next/affiliate-settlement/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimitKeyFunc 生成限流 key 的函数
type RateLimitKeyFunc func(*gin.Context) string

// RateLimitRule 固定窗口限流规则
type RateLimitRule struct {
	Prefix        string
	WindowSeconds int
	MaxRequests   int
	Message       string // 可含一个 %d 占位（剩余秒数）
}

func (r RateLimitRule) active() bool {
	return r.WindowSeconds > 0 && r.MaxRequests > 0
}

func (r RateLimitRule) key(raw string) string {
	if r.Prefix == "" {
		return raw
	}
	return r.Prefix + ":" + raw
}

// 返回 {当前计数, 剩余 TTL}
var fixedWindowScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return {n, redis.call("TTL", KEYS[1])}
`)

// RateLimitMiddleware Redis 固定窗口限流；未配置 Redis 时放行
func RateLimitMiddleware(client *redis.Client, rule RateLimitRule, keyFunc RateLimitKeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if client == nil || !rule.active() {
			c.Next()
			return
		}

		raw := ""
		if keyFunc != nil {
			raw = strings.TrimSpace(keyFunc(c))
		}
		if raw == "" {
			raw = c.ClientIP()
		}

		window, err := fixedWindowScript.Run(c.Request.Context(), client, []string{rule.key(raw)}, rule.WindowSeconds).Int64Slice()
		if err != nil || len(window) < 2 {
			logger.FromContext(c.Request.Context()).Errorw("rate_limit_check_failed", "prefix", rule.Prefix, "error", err)
			response.Error(c, response.CodeInternal, "rate limiter unavailable")
			c.Abort()
			return
		}
		if window[0] <= int64(rule.MaxRequests) {
			c.Next()
			return
		}

		wait := retryAfterSeconds(window[1], rule.WindowSeconds)
		c.Header("Retry-After", strconv.Itoa(wait))
		response.Error(c, response.CodeTooManyRequests, rateLimitMessage(rule.Message, wait))
		c.Abort()
	}
}

// retryAfterSeconds TTL 为 -1/-2（无过期或已过期）时退回窗口长度
func retryAfterSeconds(ttl int64, window int) int {
	if ttl > 0 {
		return int(ttl)
	}
	if window > 0 {
		return window
	}
	return 1
}

func rateLimitMessage(template string, waitSeconds int) string {
	template = strings.TrimSpace(template)
	if template == "" {
		template = "too many requests, retry in %d seconds"
	}
	if !strings.Contains(template, "%d") {
		return template
	}
	return fmt.Sprintf(template, waitSeconds)
}

// KeyByIP 使用 IP 作为限流 key
func KeyByIP(c *gin.Context) string {
	return c.ClientIP()
}

// KeyByIPAndJSONField 按 JSON 字段 + IP 限流（如 tx_ref），读取后恢复请求体
func KeyByIPAndJSONField(field string) RateLimitKeyFunc {
	return func(c *gin.Context) string {
		value := strings.ToLower(peekJSONString(c, field))
		if value == "" {
			return c.ClientIP()
		}
		return value + "|" + c.ClientIP()
	}
}

func peekJSONString(c *gin.Context, field string) string {
	if c == nil || c.Request == nil || c.Request.Body == nil {
		return ""
	}
	body, err := io.ReadAll(c.Request.Body)
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil || len(body) == 0 {
		return ""
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	var text string
	if err := json.Unmarshal(payload[field], &text); err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}
