package tcpserver

import (
	"sync/atomic"

	"golang.org/x/time/rate"
)

// LineRateLimiter 基于 Token Bucket 的每连接行速率限流器
type LineRateLimiter struct {
	limiter       *rate.Limiter
	linesPerSec   float64
	burst         int
	allowedCount  atomic.Int64
	rejectedCount atomic.Int64
}

// NewLineRateLimiter 创建行速率限流器
// linesPerSec: 每秒允许的日志行数（稳定速率）
// burst: 突发容量（桶的大小）
func NewLineRateLimiter(linesPerSec float64, burst int) *LineRateLimiter {
	if linesPerSec <= 0 {
		linesPerSec = 1000
	}
	if burst <= 0 {
		burst = int(linesPerSec) * 2
	}

	return &LineRateLimiter{
		limiter:     rate.NewLimiter(rate.Limit(linesPerSec), burst),
		linesPerSec: linesPerSec,
		burst:       burst,
	}
}

// Allow 检查是否允许本行（非阻塞，超速行丢弃）
func (l *LineRateLimiter) Allow() bool {
	if l.limiter.Allow() {
		l.allowedCount.Add(1)
		return true
	}
	l.rejectedCount.Add(1)
	return false
}

// AllowedCount 放行的行数（累计）
func (l *LineRateLimiter) AllowedCount() int64 {
	return l.allowedCount.Load()
}

// RejectedCount 丢弃的行数（累计）
func (l *LineRateLimiter) RejectedCount() int64 {
	return l.rejectedCount.Load()
}

// Stats 获取统计信息
func (l *LineRateLimiter) Stats() RateLimiterStats {
	return RateLimiterStats{
		LinesPerSecond: l.linesPerSec,
		Burst:          l.burst,
		AllowedTotal:   l.AllowedCount(),
		RejectedTotal:  l.RejectedCount(),
	}
}

// RateLimiterStats 速率限流器统计信息
type RateLimiterStats struct {
	LinesPerSecond float64 `json:"lines_per_second"`
	Burst          int     `json:"burst"`
	AllowedTotal   int64   `json:"allowed_total"`
	RejectedTotal  int64   `json:"rejected_total"`
}
