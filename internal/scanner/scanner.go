// Package scanner 从设备文本日志中提取报文帧。
// 日志的形态：一行带毫秒时间戳与 Send/Recv 方向的描述行，
// 其后若干行十六进制字节文本（可能换行续写），直到下一条时间戳行。
package scanner

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// RawFrame 提取出的一帧：时间戳文本、方向与十六进制字节
type RawFrame struct {
	Stamp     string // 原始时间戳文本，如 2023-12-14 10:30:45:123
	Direction string // Send/Recv，缺失为空串
	HexText   string // 收集到的十六进制文本（空白分隔）
	Data      []byte
	Line      int // 时间戳所在行号
}

var (
	stampRe     = regexp.MustCompile(`\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}[:.]\d{3}`)
	directionRe = regexp.MustCompile(`(Send|Recv)`)
	hexTokenRe  = regexp.MustCompile(`^[0-9A-Fa-f]{2}$`)
)

// Scanner 日志帧提取器
type Scanner struct {
	frameHeadRe *regexp.Regexp
	log         *zap.Logger
}

// New 创建提取器。frameHead 为帧头字节样式的正则文本，
// 如 "AA F5"；为空则对每条时间戳后的全部十六进制行收集。
func New(frameHead string, logger *zap.Logger) (*Scanner, error) {
	s := &Scanner{log: logger}
	if logger == nil {
		s.log = zap.NewNop()
	}
	if frameHead != "" {
		re, err := regexp.Compile(frameHead)
		if err != nil {
			return nil, fmt.Errorf("compile frame head pattern %q: %w", frameHead, err)
		}
		s.frameHeadRe = re
	}
	return s, nil
}

// ScanFile 提取整个日志文件中的帧
func (s *Scanner) ScanFile(path string) ([]RawFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	return s.Scan(f)
}

// Scan 逐行提取整个输入流
func (s *Scanner) Scan(r io.Reader) ([]RawFrame, error) {
	var frames []RawFrame
	st := s.NewStream()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		frames = append(frames, st.Feed(sc.Text())...)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	return append(frames, st.Flush()...), nil
}

// Stream 增量提取状态机。TCP 接收等逐行到达的场景按行喂入，
// 每当上一帧收尾（遇到下一条时间戳行）时产出。
type Stream struct {
	s          *Scanner
	cur        *RawFrame
	collecting bool
	lineNo     int
}

// NewStream 创建增量提取器
func (s *Scanner) NewStream() *Stream {
	return &Stream{s: s}
}

// Feed 喂入一行。时间戳行开启新的一帧，帧头样式命中后开始收集
// 十六进制文本；返回因此收尾的帧（0或1个）。
func (st *Stream) Feed(line string) []RawFrame {
	st.lineNo++
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	if m := stampRe.FindString(line); m != "" {
		done := st.Flush()
		st.cur = &RawFrame{Stamp: m, Line: st.lineNo}
		if d := directionRe.FindString(line); d != "" {
			st.cur.Direction = d
		}
		return done
	}

	if st.s.frameHeadRe != nil {
		if loc := st.s.frameHeadRe.FindStringIndex(line); loc != nil {
			st.collecting = true
			line = line[loc[0]:]
		}
	} else {
		st.collecting = true
	}

	if st.collecting && st.cur != nil {
		st.cur.HexText += line + " "
	}
	return nil
}

// Flush 收尾当前累积中的帧（流结束或连接断开时调用）。
// 十六进制文本混入非字节词元的帧丢弃并告警，不中断整体提取。
func (st *Stream) Flush() []RawFrame {
	cur := st.cur
	st.cur = nil
	st.collecting = false
	if cur == nil {
		return nil
	}
	text := strings.TrimSpace(cur.HexText)
	if text == "" {
		return nil
	}
	data, err := ParseHexText(text)
	if err != nil {
		st.s.log.Warn("丢弃无法还原为字节的数据组",
			zap.String("stamp", cur.Stamp),
			zap.Int("line", cur.Line),
			zap.Error(err))
		return nil
	}
	cur.Data = data
	return []RawFrame{*cur}
}

// ParseHexText 将空白分隔的十六进制词元序列还原为字节
func ParseHexText(text string) ([]byte, error) {
	tokens := strings.Fields(text)
	data := make([]byte, 0, len(tokens))
	for _, tok := range tokens {
		if !hexTokenRe.MatchString(tok) {
			return nil, fmt.Errorf("bad hex token %q", tok)
		}
		b, err := strconv.ParseUint(tok, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("bad hex token %q: %w", tok, err)
		}
		data = append(data, byte(b))
	}
	return data, nil
}
