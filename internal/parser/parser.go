// Package parser 逐帧解析编排：头部、过滤、分发与统计。
// 单帧失败记录错误后继续下一帧，整体解析不中断。
package parser

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/lanford-code/cdzparse/internal/decode"
	"github.com/lanford-code/cdzparse/internal/metrics"
	"github.com/lanford-code/cdzparse/internal/scanner"
	"github.com/lanford-code/cdzparse/internal/schema"
	"github.com/lanford-code/cdzparse/internal/timefilter"
)

// FrameResult 单帧解析结果。Err 非空表示该帧解码失败。
type FrameResult struct {
	Frame      scanner.RawFrame
	Cmd        int64
	Header     decode.Record
	Payload    decode.Record
	Skipped    bool
	SkipReason string // filter / time_range
	Err        error
}

// Stats 本次解析的汇总计数
type Stats struct {
	Total   int            `json:"total"`
	Decoded int            `json:"decoded"`
	Skipped int            `json:"skipped"`
	Failed  int            `json:"failed"`
	PerCmd  map[int64]int  `json:"per_cmd"` // 命令 -> 成功解码帧数
	Errors  map[string]int `json:"errors"`  // 错误分类 -> 次数
}

// Parser 帧解析编排器。协议描述只读共享，可并发解析。
type Parser struct {
	proto   *schema.Protocol
	interp  *decode.Interpreter
	tr      *timefilter.Range
	m       *metrics.AppMetrics
	log     *zap.Logger
	workers int
}

// Option 解析器可选项
type Option func(*Parser)

// WithTimeRange 设置时间过滤区间
func WithTimeRange(r *timefilter.Range) Option {
	return func(p *Parser) { p.tr = r }
}

// WithMetrics 接入 Prometheus 计数
func WithMetrics(m *metrics.AppMetrics) Option {
	return func(p *Parser) { p.m = m }
}

// WithWorkers 并发解码协程数，<=1 为串行
func WithWorkers(n int) Option {
	return func(p *Parser) { p.workers = n }
}

// New 创建解析编排器
func New(proto *schema.Protocol, logger *zap.Logger, opts ...Option) *Parser {
	p := &Parser{
		proto:   proto,
		interp:  decode.NewInterpreter(proto),
		log:     logger,
		workers: 1,
	}
	if p.log == nil {
		p.log = zap.NewNop()
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// ParseAll 解析提取出的全部帧。结果与输入同序；
// workers>1 时并发解码后按输入顺序重组。
func (p *Parser) ParseAll(ctx context.Context, frames []scanner.RawFrame) ([]FrameResult, *Stats) {
	results := make([]FrameResult, len(frames))

	undone := len(frames)
	if p.workers <= 1 || len(frames) < 2 {
		for i := range frames {
			if ctx.Err() != nil {
				undone = i
				break
			}
			results[i] = p.parseOne(frames[i])
		}
	} else {
		jobs := make(chan int)
		var wg sync.WaitGroup
		for w := 0; w < p.workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range jobs {
					results[i] = p.parseOne(frames[i])
				}
			}()
		}
	feed:
		for i := range frames {
			select {
			case jobs <- i:
			case <-ctx.Done():
				undone = i
				break feed
			}
		}
		close(jobs)
		wg.Wait()
	}
	// 取消后未投递的帧按跳过计
	for i := undone; i < len(frames); i++ {
		results[i] = FrameResult{Frame: frames[i], Skipped: true, SkipReason: "cancelled"}
	}

	return results, p.tally(results)
}

// parseOne 单帧：时间过滤 -> 长度检查 -> 头部/分发
func (p *Parser) parseOne(f scanner.RawFrame) FrameResult {
	res := FrameResult{Frame: f}

	if p.m != nil {
		p.m.FramesExtracted.Inc()
	}

	if !p.tr.ContainsStamp(f.Stamp) {
		res.Skipped = true
		res.SkipReason = "time_range"
		return res
	}

	if len(f.Data) < p.proto.HeadLen {
		res.Err = fmt.Errorf("%w: frame %d bytes, head needs %d",
			decode.ErrBufferUnderrun, len(f.Data), p.proto.HeadLen)
		return res
	}

	out, err := p.interp.DecodeFrame(f.Data)
	if err != nil {
		res.Err = err
		return res
	}
	res.Header = out.Header.Fields
	res.Cmd = out.Header.Cmd
	if out.Skipped {
		res.Skipped = true
		res.SkipReason = "filter"
		return res
	}
	res.Payload = out.Payload
	return res
}

// tally 汇总计数并打点
func (p *Parser) tally(results []FrameResult) *Stats {
	st := &Stats{
		PerCmd: make(map[int64]int),
		Errors: make(map[string]int),
	}
	for i := range results {
		r := &results[i]
		st.Total++
		switch {
		case r.Err != nil:
			st.Failed++
			kind := decode.ErrorKind(r.Err)
			st.Errors[kind]++
			if p.m != nil {
				p.m.DecodeErrors.WithLabelValues(kind).Inc()
			}
			p.log.Warn("帧解码失败",
				zap.String("stamp", r.Frame.Stamp),
				zap.Int("line", r.Frame.Line),
				zap.String("kind", kind),
				zap.Error(r.Err))
		case r.Skipped:
			st.Skipped++
			if p.m != nil {
				p.m.FramesSkipped.WithLabelValues(r.SkipReason).Inc()
			}
		default:
			st.Decoded++
			st.PerCmd[r.Cmd]++
			if p.m != nil {
				p.m.FramesDecoded.WithLabelValues(fmt.Sprintf("0x%02X", r.Cmd)).Inc()
			}
		}
	}
	return st
}
