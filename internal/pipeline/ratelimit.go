package pipeline

import (
	"context"
	"sync"
	"time"
)

// RateLimiter 是按滚动分钟补充的令牌桶，约束新管线尝试的启动速率。
// 超出速率的任务排队等待，不会被拒绝。
type RateLimiter struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // 每秒补充的令牌数
	lastRefill time.Time
}

// NewRateLimiter 创建每分钟允许 perMinute 次启动的限速器。
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	return &RateLimiter{
		tokens:     float64(perMinute),
		maxTokens:  float64(perMinute),
		refillRate: float64(perMinute) / 60.0,
		lastRefill: time.Now(),
	}
}

// Wait 阻塞直到获得一个令牌，ctx 取消时返回其错误。
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		if r.TryAcquire() {
			return nil
		}

		wait := time.Duration(float64(time.Second) / r.refillRate)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// TryAcquire 非阻塞地尝试获取一个令牌。
func (r *RateLimiter) TryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()

	if r.tokens >= 1 {
		r.tokens--
		return true
	}
	return false
}

// refill 按流逝时间补充令牌。调用方必须持有锁。
func (r *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(r.lastRefill).Seconds()
	r.tokens += elapsed * r.refillRate

	if r.tokens > r.maxTokens {
		r.tokens = r.maxTokens
	}

	r.lastRefill = now
}
