package smtp

import (
	"sync"

	"golang.org/x/time/rate"
)

// ConnectionLimiter SMTP 会话限流器
type ConnectionLimiter struct {
	maxConns int
	current  int
	mu       sync.Mutex
	rate     *rate.Limiter
}

// NewConnectionLimiter 创建会话限流器
//
// 参数:
//   - maxConns: 最大并发会话数，0 表示不限制
//   - perSecond: 每秒新建会话数，0 表示不限制
//   - burst: 突发上限
func NewConnectionLimiter(maxConns int, perSecond float64, burst int) *ConnectionLimiter {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return &ConnectionLimiter{
		maxConns: maxConns,
		rate:     rate.NewLimiter(limit, burst),
	}
}

// Acquire 获取会话许可
//
// 返回值:
//   - bool: 是否获取成功
func (l *ConnectionLimiter) Acquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	// 检查并发限制
	if l.maxConns > 0 && l.current >= l.maxConns {
		return false
	}

	// 检查速率限制
	if !l.rate.Allow() {
		return false
	}

	l.current++
	return true
}

// Release 释放会话
func (l *ConnectionLimiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current > 0 {
		l.current--
	}
}

// Current 当前会话数
func (l *ConnectionLimiter) Current() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}
