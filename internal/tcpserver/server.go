// Package tcpserver 行式 TCP 日志接收器。设备或采集端把文本日志
// 按行推送上来，逐行交给回调进入提取/解析流水线。
package tcpserver

import (
	"bufio"
	"context"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	cfgpkg "github.com/lanford-code/cdzparse/internal/config"
)

// LineHandler 收到一行日志文本时的回调。connID 标识来源连接。
type LineHandler func(connID string, line string)

// Server TCP 日志接收器
type Server struct {
	cfg     cfgpkg.TCPConfig
	ln      net.Listener
	wg      sync.WaitGroup
	stopC   chan struct{}
	handler LineHandler
	gate    *ConnGate
	log     *zap.Logger

	onAccept func()
	onLine   func()
	onReject func()
	onClose  func(connID string)
}

// New 创建接收器
func New(cfg cfgpkg.TCPConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:   cfg,
		stopC: make(chan struct{}),
		gate:  NewConnGate(cfg.MaxConnections),
		log:   logger,
	}
}

// SetHandler 设置行回调
func (s *Server) SetHandler(h LineHandler) { s.handler = h }

// SetCloseHandler 设置连接关闭回调（收尾该连接残留的解析状态）
func (s *Server) SetCloseHandler(h func(connID string)) { s.onClose = h }

// SetMetricsCallbacks 设置指标回调
func (s *Server) SetMetricsCallbacks(onAccept, onLine, onReject func()) {
	s.onAccept, s.onLine, s.onReject = onAccept, onLine, onReject
}

// Start 监听并接受连接（非阻塞，内部 goroutine）
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.log.Info("TCP 日志接收器已启动", zap.String("addr", s.cfg.Addr))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.ln.Accept()
			if err != nil {
				select {
				case <-s.stopC:
					return
				default:
				}
				time.Sleep(50 * time.Millisecond)
				continue
			}

			if !s.gate.TryAcquire() {
				if s.onReject != nil {
					s.onReject()
				}
				s.log.Warn("连接数达到上限，拒绝新连接",
					zap.String("remote", conn.RemoteAddr().String()),
					zap.Int64("rejected_total", s.gate.Rejected()))
				_ = conn.Close()
				continue
			}
			if s.onAccept != nil {
				s.onAccept()
			}

			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				defer s.gate.Release()
				defer c.Close()
				s.serveConn(c)
			}(conn)
		}
	}()
	return nil
}

// serveConn 单连接：按行读取，超速行直接丢弃
func (s *Server) serveConn(c net.Conn) {
	connID := uuid.NewString()
	remote := c.RemoteAddr().String()
	s.log.Info("连接建立", zap.String("conn", connID), zap.String("remote", remote))

	lim := NewLineRateLimiter(s.cfg.LinesPerSecond, s.cfg.LineBurst)
	sc := bufio.NewScanner(c)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		if s.cfg.ReadTimeout > 0 {
			_ = c.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		if !sc.Scan() {
			break
		}
		select {
		case <-s.stopC:
			return
		default:
		}
		if !lim.Allow() {
			continue
		}
		if s.onLine != nil {
			s.onLine()
		}
		if s.handler != nil {
			s.handler(connID, sc.Text())
		}
	}

	if s.onClose != nil {
		s.onClose(connID)
	}
	s.log.Info("连接关闭",
		zap.String("conn", connID),
		zap.String("remote", remote),
		zap.Int64("dropped_lines", lim.RejectedCount()),
		zap.Error(sc.Err()))
}

// Conns 当前活跃连接数
func (s *Server) Conns() int { return s.gate.Current() }

// Shutdown 优雅关闭监听并等待连接退出
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.stopC)
	if s.ln != nil {
		_ = s.ln.Close()
	}
	ch := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(ch)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}
