// Package sim 提供模拟核心使用的随机源与延迟器。
// 价格扰动、gas 区间、网络延迟全部经由这两个接口注入，
// 测试可以替换为确定性实现。
package sim

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Rand 是模拟用随机源。
type Rand interface {
	// Float64 返回 [0,1) 区间的随机数。
	Float64() float64
	// Intn 返回 [0,n) 区间的随机整数。
	Intn(n int) int
}

// Sleeper 是可被取消的延迟器。
type Sleeper interface {
	// Sleep 阻塞 d 时长，ctx 取消时立刻返回 ctx 的错误。
	Sleep(ctx context.Context, d time.Duration) error
}

// lockedRand 在共享的 *rand.Rand 外加锁，允许多条管线并发取数。
type lockedRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRand 创建以 seed 初始化的并发安全随机源。
func NewRand(seed int64) Rand {
	return &lockedRand{rng: rand.New(rand.NewSource(seed))}
}

func (r *lockedRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

func (r *lockedRand) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Intn(n)
}

// Uniform 返回 [lo,hi) 区间的随机数。
func Uniform(r Rand, lo, hi float64) float64 {
	return lo + r.Float64()*(hi-lo)
}

type realSleeper struct{}

// NewSleeper 创建真实计时的延迟器。
func NewSleeper() Sleeper {
	return realSleeper{}
}

func (realSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NopSleeper 不产生任何延迟，供测试使用。
type NopSleeper struct{}

func (NopSleeper) Sleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}
