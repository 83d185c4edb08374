package router

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/lotecorto/storefront/internal/http/response"
	"github.com/lotecorto/storefront/internal/logger"

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
	Message       string
}

func (r RateLimitRule) active() bool {
	return r.WindowSeconds > 0 && r.MaxRequests > 0
}

// 返回 {当前窗口计数, 剩余秒数}
var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return {current, redis.call("TTL", KEYS[1])}
`)

// windowLimiter 基于 Redis 的固定窗口计数
type windowLimiter struct {
	client *redis.Client
	rule   RateLimitRule
}

// allow 返回是否放行以及被拒绝时建议的等待秒数
func (l windowLimiter) allow(ctx context.Context, key string) (bool, int, error) {
	result, err := fixedWindowScript.Run(ctx, l.client, []string{key}, l.rule.WindowSeconds).Result()
	if err != nil {
		return true, 0, err
	}
	count, ttl, err := parseWindowResult(result)
	if err != nil {
		return true, 0, err
	}
	if count <= int64(l.rule.MaxRequests) {
		return true, 0, nil
	}
	wait := int(ttl)
	if wait < 1 {
		wait = max(l.rule.WindowSeconds, 1)
	}
	return false, wait, nil
}

func parseWindowResult(result interface{}) (int64, int64, error) {
	values, ok := result.([]interface{})
	if !ok || len(values) != 2 {
		return 0, 0, fmt.Errorf("unexpected rate limit result %v", result)
	}
	count, ok := values[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected rate limit count %v", values[0])
	}
	// 键无过期时间时 TTL 为 -1
	ttl, _ := values[1].(int64)
	return count, ttl, nil
}

// RateLimitMiddleware 按 key 限制请求频率；Redis 未启用或出错时放行
func RateLimitMiddleware(client *redis.Client, rule RateLimitRule, keyFunc RateLimitKeyFunc) gin.HandlerFunc {
	if client == nil || !rule.active() {
		return func(c *gin.Context) { c.Next() }
	}
	limiter := windowLimiter{client: client, rule: rule}
	msg := strings.TrimSpace(rule.Message)
	if msg == "" {
		msg = "too many requests"
	}

	return func(c *gin.Context) {
		key := ""
		if keyFunc != nil {
			key = strings.TrimSpace(keyFunc(c))
		}
		if key == "" {
			key = c.ClientIP()
		}
		if rule.Prefix != "" {
			key = rule.Prefix + ":" + key
		}

		allowed, wait, err := limiter.allow(c.Request.Context(), key)
		if err != nil {
			logger.Warnw("rate_limit_unavailable", "key", key, "error", err)
		}
		if !allowed {
			logger.Debugw("rate_limit_rejected", "key", key, "retry_after", wait)
			c.Header("Retry-After", strconv.Itoa(wait))
			response.ErrorWithStatus(c, http.StatusTooManyRequests, response.CodeTooManyRequests,
				fmt.Sprintf("%s, retry in %ds", msg, wait), nil)
			c.Abort()
			return
		}
		c.Next()
	}
}

// KeyByIP 使用 IP 作为限流 key
func KeyByIP(c *gin.Context) string {
	return c.ClientIP()
}
