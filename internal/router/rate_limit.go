package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pixvend/internal/http/response"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimitKeyFunc 生成限流 key 的函数
type RateLimitKeyFunc func(*gin.Context) string

// RateLimitRule 限流规则
type RateLimitRule struct {
	Prefix        string
	WindowSeconds int
	MaxRequests   int
	Message       string
}

var rateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("TTL", KEYS[1])
return {current, ttl}
`)

// memoryWindow 单 key 的固定窗口计数
type memoryWindow struct {
	count     int64
	expiresAt time.Time
}

// memoryWindowCounter 进程内固定窗口限流计数器。
// Redis 未启用时的降级实现，仅覆盖单实例部署。
type memoryWindowCounter struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
}

func newMemoryWindowCounter() *memoryWindowCounter {
	return &memoryWindowCounter{windows: make(map[string]*memoryWindow)}
}

func (m *memoryWindowCounter) incr(key string, window time.Duration) int64 {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[key]
	if !ok || now.After(w.expiresAt) {
		w = &memoryWindow{expiresAt: now.Add(window)}
		m.windows[key] = w
	}
	w.count++
	// 顺带清理过期窗口，避免 key 无限增长
	if len(m.windows) > 4096 {
		for k, v := range m.windows {
			if now.After(v.expiresAt) {
				delete(m.windows, k)
			}
		}
	}
	return w.count
}

// RateLimitMiddleware 固定窗口频率限制中间件。
// 优先走 Redis（多实例共享计数），Redis 未启用时退化为进程内计数。
func RateLimitMiddleware(client *redis.Client, rule RateLimitRule, keyFunc RateLimitKeyFunc) gin.HandlerFunc {
	memory := newMemoryWindowCounter()
	return func(c *gin.Context) {
		if rule.WindowSeconds <= 0 || rule.MaxRequests <= 0 {
			c.Next()
			return
		}

		key := ""
		if keyFunc != nil {
			key = strings.TrimSpace(keyFunc(c))
		}
		if key == "" {
			key = c.ClientIP()
		}
		if rule.Prefix != "" {
			key = fmt.Sprintf("%s:%s", rule.Prefix, key)
		}

		var count int64
		if client == nil {
			count = memory.incr(key, time.Duration(rule.WindowSeconds)*time.Second)
		} else {
			result, err := rateLimitScript.Run(c.Request.Context(), client, []string{key}, rule.WindowSeconds).Result()
			if err != nil {
				response.Error(c, response.CodeInternal, "限流服务不可用")
				c.Abort()
				return
			}
			values, ok := result.([]interface{})
			if !ok || len(values) < 2 {
				response.Error(c, response.CodeInternal, "限流服务不可用")
				c.Abort()
				return
			}
			count, ok = toInt64(values[0])
			if !ok {
				response.Error(c, response.CodeInternal, "限流服务不可用")
				c.Abort()
				return
			}
		}

		if count > int64(rule.MaxRequests) {
			msg := strings.TrimSpace(rule.Message)
			if msg == "" {
				msg = "请求过于频繁，请稍后再试"
			}
			response.Error(c, response.CodeTooManyRequests, msg)
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

// KeyByIPAndPath 使用 IP + 路由路径作为限流 key，
// 回调限流按来源与网关端点分别计数。
func KeyByIPAndPath(c *gin.Context) string {
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	return fmt.Sprintf("%s|%s", c.ClientIP(), path)
}

// KeyByIPAndJSONField 使用 IP + JSON 字段作为限流 key
func KeyByIPAndJSONField(field string) RateLimitKeyFunc {
	return func(c *gin.Context) string {
		value := strings.ToLower(strings.TrimSpace(readJSONField(c, field)))
		if value == "" {
			return c.ClientIP()
		}
		return fmt.Sprintf("%s|%s", value, c.ClientIP())
	}
}

func readJSONField(c *gin.Context, field string) string {
	if c == nil || c.Request == nil || c.Request.Body == nil {
		return ""
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return ""
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
	if len(body) == 0 {
		return ""
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	value, ok := payload[field]
	if !ok {
		return ""
	}
	if text, ok := value.(string); ok {
		return strings.TrimSpace(text)
	}
	return ""
}

func toInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int16:
		return int64(v), true
	case int8:
		return int64(v), true
	case uint64:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint8:
		return int64(v), true
	case float64:
		return int64(v), true
	case float32:
		return int64(v), true
	default:
		return 0, false
	}
}
