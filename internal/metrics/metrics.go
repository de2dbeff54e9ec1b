package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics 解析过程指标
type AppMetrics struct {
	FramesExtracted prometheus.Counter     // 日志中提取出的帧数
	FramesDecoded   *prometheus.CounterVec // labels: cmd
	FramesSkipped   *prometheus.CounterVec // labels: reason=filter|time_range
	DecodeErrors    *prometheus.CounterVec // labels: kind（错误分类名）
	TCPAccepted     prometheus.Counter
	TCPRejected     prometheus.Counter // 达到连接上限被拒绝的连接数
	TCPLinesTotal   prometheus.Counter
}

// NewAppMetrics 注册并返回解析指标
func NewAppMetrics(reg *prometheus.Registry) *AppMetrics {
	m := &AppMetrics{
		FramesExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "frames_extracted_total",
			Help: "Frames extracted from log text.",
		}),
		FramesDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frames_decoded_total",
			Help: "Successfully decoded frames by command.",
		}, []string{"cmd"}),
		FramesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frames_skipped_total",
			Help: "Frames skipped before decode.",
		}, []string{"reason"}),
		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "decode_errors_total",
			Help: "Frame decode failures by error kind.",
		}, []string{"kind"}),
		TCPAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tcp_accept_total",
			Help: "Total accepted TCP connections.",
		}),
		TCPRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tcp_rejected_total",
			Help: "TCP connections rejected at the connection limit.",
		}),
		TCPLinesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tcp_lines_received_total",
			Help: "Log lines received over TCP.",
		}),
	}
	reg.MustRegister(m.FramesExtracted, m.FramesDecoded, m.FramesSkipped, m.DecodeErrors, m.TCPAccepted, m.TCPRejected, m.TCPLinesTotal)
	return m
}
