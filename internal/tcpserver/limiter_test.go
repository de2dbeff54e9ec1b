package tcpserver

import (
	"testing"
	"time"
)

func TestConnGate(t *testing.T) {
	t.Run("上限内放行，满则立即拒绝", func(t *testing.T) {
		gate := NewConnGate(3)

		for i := 0; i < 3; i++ {
			if !gate.TryAcquire() {
				t.Fatalf("第%d个连接应被放行", i+1)
			}
		}

		// 满员：不等待，直接拒绝
		if gate.TryAcquire() {
			t.Fatal("超出上限的连接应被拒绝")
		}
		if gate.Rejected() != 1 {
			t.Errorf("期望拒绝计数1，实际: %d", gate.Rejected())
		}

		// 释放一个名额后恢复放行
		gate.Release()
		if !gate.TryAcquire() {
			t.Fatal("释放名额后应恢复放行")
		}
	})

	t.Run("统计功能", func(t *testing.T) {
		gate := NewConnGate(10)

		for i := 0; i < 5; i++ {
			gate.TryAcquire()
		}

		stats := gate.Stats()
		if stats.Active != 5 {
			t.Errorf("期望5个活跃连接，实际: %d", stats.Active)
		}
		if stats.MaxConnections != 10 {
			t.Errorf("期望上限10，实际: %d", stats.MaxConnections)
		}
		if stats.RejectedTotal != 0 {
			t.Errorf("期望无拒绝，实际: %d", stats.RejectedTotal)
		}
	})
}

func TestLineRateLimiter(t *testing.T) {
	t.Run("速率限流", func(t *testing.T) {
		limiter := NewLineRateLimiter(10, 20) // 每秒10行，突发20行

		// 突发消费20个
		for i := 0; i < 20; i++ {
			if !limiter.Allow() {
				t.Fatalf("突发第%d行被拒绝", i+1)
			}
		}

		// 第21个应该被拒绝
		if limiter.Allow() {
			t.Fatal("第21个请求应该被拒绝")
		}

		// 等待100ms，应该能补充1个token
		time.Sleep(150 * time.Millisecond)
		if !limiter.Allow() {
			t.Fatal("等待后的请求应该成功")
		}
	})

	t.Run("统计功能", func(t *testing.T) {
		limiter := NewLineRateLimiter(100, 200)

		// 消费10个
		for i := 0; i < 10; i++ {
			limiter.Allow()
		}

		stats := limiter.Stats()
		if stats.AllowedTotal != 10 {
			t.Errorf("期望允许10个，实际: %d", stats.AllowedTotal)
		}
	})
}
