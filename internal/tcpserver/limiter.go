package tcpserver

import "sync/atomic"

// ConnGate 接入连接门禁。日志推送端数量达到上限时立即拒绝新连接，
// 不排队等待：推送端断开后会自行重连，挂起等待只会堆积半开连接。
type ConnGate struct {
	sem      chan struct{}
	max      int
	active   atomic.Int64
	rejected atomic.Int64
}

// NewConnGate 创建门禁。max<=0 时取默认上限
func NewConnGate(max int) *ConnGate {
	if max <= 0 {
		max = 200
	}
	return &ConnGate{sem: make(chan struct{}, max), max: max}
}

// TryAcquire 尝试占用一个连接名额，满则立即返回 false
func (g *ConnGate) TryAcquire() bool {
	select {
	case g.sem <- struct{}{}:
		g.active.Add(1)
		return true
	default:
		g.rejected.Add(1)
		return false
	}
}

// Release 归还名额
func (g *ConnGate) Release() {
	select {
	case <-g.sem:
		g.active.Add(-1)
	default:
	}
}

// Current 当前活跃连接数
func (g *ConnGate) Current() int { return int(g.active.Load()) }

// Max 连接数上限
func (g *ConnGate) Max() int { return g.max }

// Rejected 因上限被拒绝的连接数（累计）
func (g *ConnGate) Rejected() int64 { return g.rejected.Load() }

// Stats 门禁统计
func (g *ConnGate) Stats() ConnGateStats {
	return ConnGateStats{
		MaxConnections: g.max,
		Active:         g.Current(),
		RejectedTotal:  g.Rejected(),
	}
}

// ConnGateStats 门禁统计信息
type ConnGateStats struct {
	MaxConnections int   `json:"max_connections"`
	Active         int   `json:"active"`
	RejectedTotal  int64 `json:"rejected_total"`
}
