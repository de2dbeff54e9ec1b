package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	cfgpkg "github.com/lanford-code/cdzparse/internal/config"
	"github.com/lanford-code/cdzparse/internal/httpserver"
	"github.com/lanford-code/cdzparse/internal/logging"
	"github.com/lanford-code/cdzparse/internal/metrics"
	"github.com/lanford-code/cdzparse/internal/parser"
	"github.com/lanford-code/cdzparse/internal/report"
	"github.com/lanford-code/cdzparse/internal/scanner"
	"github.com/lanford-code/cdzparse/internal/schema"
	"github.com/lanford-code/cdzparse/internal/tcpserver"
	"github.com/lanford-code/cdzparse/internal/timefilter"
)

func main() {
	var (
		configPath = flag.String("config", "", "应用配置文件路径（默认 configs/example.yaml）")
		schemaPath = flag.String("schema", "", "协议描述 YAML（覆盖配置）")
		inputPath  = flag.String("input", "", "待解析的日志文件（文件模式）")
		timeSpec   = flag.String("time", "", "时间范围：30m/24h/7d 或 'start ~ end'")
		serve      = flag.Bool("serve", false, "启动 TCP 接收 + HTTP 服务")
	)
	flag.Parse()

	// 1) 加载配置
	cfg, err := cfgpkg.Load(*configPath)
	if err != nil {
		panic(err)
	}
	if *schemaPath != "" {
		cfg.Parse.SchemaFile = *schemaPath
	}
	if *inputPath != "" {
		cfg.Parse.InputFile = *inputPath
	}
	if *timeSpec != "" {
		cfg.Parse.TimeRange = *timeSpec
	}

	// 2) 初始化日志
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)
	log := zap.L()

	// 3) 加载协议描述
	proto, err := schema.LoadFile(cfg.Parse.SchemaFile)
	if err != nil {
		log.Fatal("协议描述加载失败", zap.String("path", cfg.Parse.SchemaFile), zap.Error(err))
	}
	applyCmdFilter(proto, cfg.Parse)
	log.Info("协议描述已加载",
		zap.String("protocol", proto.Meta.Protocol),
		zap.Int("version", proto.Meta.Version),
		zap.Int("cmds", len(proto.Cmds)))

	// 4) 时间过滤
	tr, err := timefilter.ParseRange(cfg.Parse.TimeRange, time.Now())
	if err != nil {
		log.Fatal("时间范围参数不合法", zap.String("spec", cfg.Parse.TimeRange), zap.Error(err))
	}
	if tr != nil {
		log.Info("启用时间过滤", zap.String("range", tr.String()))
	}

	sc, err := scanner.New(proto.FrameHead, log)
	if err != nil {
		log.Fatal("帧头样式不合法", zap.Error(err))
	}

	if *serve {
		runServe(cfg, proto, sc, tr, log)
		return
	}
	runFile(cfg, proto, sc, tr, log)
}

// applyCmdFilter 配置中的命令过滤覆盖协议文件内置的过滤
func applyCmdFilter(p *schema.Protocol, pc cfgpkg.ParseConfig) {
	if len(pc.IncludeCmds) > 0 {
		p.Filter.Include = make(map[int64]struct{}, len(pc.IncludeCmds))
		p.Filter.Exclude = nil
		for _, id := range pc.IncludeCmds {
			p.Filter.Include[id] = struct{}{}
		}
	} else if len(pc.ExcludeCmds) > 0 {
		p.Filter.Exclude = make(map[int64]struct{}, len(pc.ExcludeCmds))
		p.Filter.Include = nil
		for _, id := range pc.ExcludeCmds {
			p.Filter.Exclude[id] = struct{}{}
		}
	}
}

// runFile 文件模式：提取 -> 解析 -> 报告
func runFile(cfg *cfgpkg.Config, proto *schema.Protocol, sc *scanner.Scanner,
	tr *timefilter.Range, log *zap.Logger) {

	if cfg.Parse.InputFile == "" {
		fmt.Fprintln(os.Stderr, "用法: cdzparse -schema <协议.yaml> -input <日志文件> [-time 24h] 或 cdzparse -serve")
		os.Exit(2)
	}

	frames, err := sc.ScanFile(cfg.Parse.InputFile)
	if err != nil {
		log.Fatal("日志提取失败", zap.String("path", cfg.Parse.InputFile), zap.Error(err))
	}
	log.Info("提取完成", zap.Int("frames", len(frames)))
	if len(frames) == 0 {
		log.Warn("没有提取到数据")
		return
	}

	p := parser.New(proto, log,
		parser.WithTimeRange(tr),
		parser.WithWorkers(cfg.Parse.Workers))
	results, st := p.ParseAll(context.Background(), frames)

	w := report.NewWriter(proto, log)
	path, err := w.WriteFile(cfg.Parse.OutputDir, results, st)
	if err != nil {
		log.Fatal("报告写入失败", zap.Error(err))
	}
	fmt.Println(w.Render(results, st))
	log.Info("解析完成",
		zap.Int("decoded", st.Decoded),
		zap.Int("failed", st.Failed),
		zap.Int("skipped", st.Skipped),
		zap.String("report", path))
}

// runServe 服务模式：TCP 行接收 -> 在线解析，HTTP 暴露健康/指标/统计
func runServe(cfg *cfgpkg.Config, proto *schema.Protocol, sc *scanner.Scanner,
	tr *timefilter.Range, log *zap.Logger) {

	reg := metrics.NewRegistry()
	m := metrics.NewAppMetrics(reg)

	p := parser.New(proto, log,
		parser.WithTimeRange(tr),
		parser.WithMetrics(m))
	live := parser.NewLive(p, sc)

	tcpSrv := tcpserver.New(cfg.TCP, log)
	tcpSrv.SetHandler(live.HandleLine)
	tcpSrv.SetCloseHandler(live.CloseConn)
	tcpSrv.SetMetricsCallbacks(
		func() { m.TCPAccepted.Inc() },
		func() { m.TCPLinesTotal.Inc() },
		func() { m.TCPRejected.Inc() },
	)

	httpSrv := httpserver.New(cfg.HTTP, cfg.Metrics.Path, metrics.Handler(reg),
		func() bool { return true },
		func() any { return live.Snapshot() })

	go func() {
		if err := httpSrv.Start(); err != nil {
			log.Error("http server error", zap.Error(err))
		}
	}()
	if err := tcpSrv.Start(); err != nil {
		log.Fatal("tcp server start error", zap.Error(err))
	}

	// 信号处理，优雅关闭
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)
	_ = tcpSrv.Shutdown(ctx)
	log.Info("已退出", zap.Any("stats", live.Snapshot()))
}
