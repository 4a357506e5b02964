package middleware

import (
	"sync"
	"time"

	"opsdash/internal/common"

	"github.com/gin-gonic/gin"
)

// RateLimiterConfig 限流配置
type RateLimiterConfig struct {
	RequestsPerSecond int           // 每秒补充令牌数
	RequestsPerMinute int           // 每分钟上限，0 表示不限
	BurstSize         int           // 突发容量
	IdleTTL           time.Duration // 空闲多久后清理
}

// DefaultRateLimiterConfig 默认配置：刷新与登录接口每秒 1 次，突发 5 次
func DefaultRateLimiterConfig() *RateLimiterConfig {
	return &RateLimiterConfig{
		RequestsPerSecond: 1,
		RequestsPerMinute: 30,
		BurstSize:         5,
		IdleTTL:           10 * time.Minute,
	}
}

// NewRateLimiterConfig 由配置项构造限流配置，非正值使用默认值
func NewRateLimiterConfig(rps, rpm, burst int) *RateLimiterConfig {
	cfg := DefaultRateLimiterConfig()
	if rps > 0 {
		cfg.RequestsPerSecond = rps
	}
	if rpm > 0 {
		cfg.RequestsPerMinute = rpm
	}
	if burst > 0 {
		cfg.BurstSize = burst
	}
	return cfg
}

// bucket 单个键的令牌桶与分钟计数
type bucket struct {
	tokens      float64
	refilledAt  time.Time
	minuteStart time.Time
	minuteCount int
}

func (b *bucket) take(now time.Time, cfg *RateLimiterConfig) bool {
	b.tokens += now.Sub(b.refilledAt).Seconds() * float64(cfg.RequestsPerSecond)
	if limit := float64(cfg.BurstSize); b.tokens > limit {
		b.tokens = limit
	}
	b.refilledAt = now

	if now.Sub(b.minuteStart) >= time.Minute {
		b.minuteStart, b.minuteCount = now, 0
	}
	if cfg.RequestsPerMinute > 0 && b.minuteCount >= cfg.RequestsPerMinute {
		return false
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	b.minuteCount++
	return true
}

// RateLimiter 按键限流器
type RateLimiter struct {
	config  *RateLimiterConfig
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

// NewRateLimiter 创建限流器
func NewRateLimiter(config *RateLimiterConfig) *RateLimiter {
	if config == nil {
		config = DefaultRateLimiterConfig()
	}
	return &RateLimiter{
		config:  config,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow 检查 key 是否允许再发起一次请求
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(rl.config.BurstSize), refilledAt: now, minuteStart: now}
		rl.buckets[key] = b
	}
	allowed := b.take(now, rl.config)

	// 清理空闲键
	for k, other := range rl.buckets {
		if now.Sub(other.refilledAt) > rl.config.IdleTTL {
			delete(rl.buckets, k)
		}
	}
	return allowed
}

// RateLimitByEndpoint 按端点限流中间件（刷新、登录等会触发上游重操作的接口）
func RateLimitByEndpoint(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "endpoint:" + c.FullPath() + ":" + c.ClientIP()

		if !limiter.Allow(key) {
			c.Header("Retry-After", "1")
			common.AbortWithError(c, common.CodeTooManyRequests, "")
			return
		}

		c.Next()
	}
}
