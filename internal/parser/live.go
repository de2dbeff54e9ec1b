package parser

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/lanford-code/cdzparse/internal/decode"
	"github.com/lanford-code/cdzparse/internal/scanner"
)

// Live 在线解析管道：TCP 接收的日志行按连接维护提取状态机，
// 帧一收尾立即解码并累计统计。
type Live struct {
	p  *Parser
	sc *scanner.Scanner

	mu      sync.Mutex
	streams map[string]*scanner.Stream
	stats   Stats
}

// NewLive 创建在线解析管道
func NewLive(p *Parser, sc *scanner.Scanner) *Live {
	return &Live{
		p:       p,
		sc:      sc,
		streams: make(map[string]*scanner.Stream),
		stats: Stats{
			PerCmd: make(map[int64]int),
			Errors: make(map[string]int),
		},
	}
}

// HandleLine 处理一行日志文本（tcpserver.LineHandler）
func (l *Live) HandleLine(connID, line string) {
	l.mu.Lock()
	st, ok := l.streams[connID]
	if !ok {
		st = l.sc.NewStream()
		l.streams[connID] = st
	}
	frames := st.Feed(line)
	l.mu.Unlock()

	l.decode(frames)
}

// CloseConn 连接断开：收尾该连接残留的帧并清理状态
func (l *Live) CloseConn(connID string) {
	l.mu.Lock()
	st, ok := l.streams[connID]
	delete(l.streams, connID)
	l.mu.Unlock()
	if !ok {
		return
	}
	l.decode(st.Flush())
}

func (l *Live) decode(frames []scanner.RawFrame) {
	for i := range frames {
		res := l.p.parseOne(frames[i])
		l.record(&res)
	}
}

func (l *Live) record(r *FrameResult) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stats.Total++
	switch {
	case r.Err != nil:
		l.stats.Failed++
		kind := decode.ErrorKind(r.Err)
		l.stats.Errors[kind]++
		if l.p.m != nil {
			l.p.m.DecodeErrors.WithLabelValues(kind).Inc()
		}
		l.p.log.Warn("帧解码失败",
			zap.String("stamp", r.Frame.Stamp),
			zap.String("kind", kind),
			zap.Error(r.Err))
	case r.Skipped:
		l.stats.Skipped++
		if l.p.m != nil {
			l.p.m.FramesSkipped.WithLabelValues(r.SkipReason).Inc()
		}
	default:
		l.stats.Decoded++
		l.stats.PerCmd[r.Cmd]++
		if l.p.m != nil {
			l.p.m.FramesDecoded.WithLabelValues(fmt.Sprintf("0x%02X", r.Cmd)).Inc()
		}
		l.p.log.Info("帧解码成功",
			zap.String("stamp", r.Frame.Stamp),
			zap.String("cmd", fmt.Sprintf("0x%02X", r.Cmd)),
			zap.Int("fields", len(r.Payload)))
	}
}

// Snapshot 当前累计统计的拷贝（/api/v1/stats 用）
func (l *Live) Snapshot() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := Stats{
		Total:   l.stats.Total,
		Decoded: l.stats.Decoded,
		Skipped: l.stats.Skipped,
		Failed:  l.stats.Failed,
		PerCmd:  make(map[int64]int, len(l.stats.PerCmd)),
		Errors:  make(map[string]int, len(l.stats.Errors)),
	}
	for k, v := range l.stats.PerCmd {
		out.PerCmd[k] = v
	}
	for k, v := range l.stats.Errors {
		out.Errors[k] = v
	}
	return out
}
