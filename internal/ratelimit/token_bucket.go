// Package ratelimit 按协作服务操作限流，避免匹配和题目生成等昂贵调用被刷爆
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// TokenBucket 每分钟 qpm 个令牌的令牌桶。nil 的 *TokenBucket 表示不限流。
type TokenBucket struct {
	mu       sync.Mutex
	perSec   float64
	capacity float64
	tokens   float64
	last     time.Time
	now      func() time.Time
}

// NewTokenBucket qpm <= 0 时返回 nil。capacity <= 0 时取 qpm 的一半，至少为 1。
func NewTokenBucket(qpm int, capacity int) *TokenBucket {
	if qpm <= 0 {
		return nil
	}
	if capacity <= 0 {
		capacity = max(qpm/2, 1)
	}
	return &TokenBucket{
		perSec:   float64(qpm) / 60,
		capacity: float64(capacity),
		tokens:   float64(capacity),
		last:     time.Now(),
		now:      time.Now,
	}
}

// WithClock 替换时钟，测试用
func (tb *TokenBucket) WithClock(now func() time.Time) *TokenBucket {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.now = now
	tb.last = now()
	return tb
}

// take 尝试取一个令牌。取不到时返回还需等待的时间。
func (tb *TokenBucket) take() time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	if elapsed := now.Sub(tb.last).Seconds(); elapsed > 0 {
		tb.tokens = min(tb.capacity, tb.tokens+elapsed*tb.perSec)
		tb.last = now
	}
	if tb.tokens >= 1 {
		tb.tokens--
		return 0
	}
	return time.Duration((1 - tb.tokens) / tb.perSec * float64(time.Second))
}

// Allow 不等待，有令牌就消耗一个
func (tb *TokenBucket) Allow() bool {
	return tb == nil || tb.take() == 0
}

// Wait 阻塞到取得令牌或 ctx 结束
func (tb *TokenBucket) Wait(ctx context.Context) error {
	if tb == nil {
		return ctx.Err()
	}
	for {
		wait := tb.take()
		if wait == 0 {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Limits 每个操作一个令牌桶，未登记的操作不限流
type Limits map[string]*TokenBucket

// NewLimits 按操作名和 QPM 创建，QPM <= 0 的操作不限流
func NewLimits(qpm map[string]int) Limits {
	out := make(Limits, len(qpm))
	for op, n := range qpm {
		if tb := NewTokenBucket(n, 0); tb != nil {
			out[op] = tb
		}
	}
	return out
}

// Wait 等待 op 的令牌
func (l Limits) Wait(ctx context.Context, op string) error {
	return l[op].Wait(ctx)
}
