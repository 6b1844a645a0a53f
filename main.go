package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sauropod/sauropod/internal/cache"
	"github.com/sauropod/sauropod/internal/catalog"
	"github.com/sauropod/sauropod/internal/config"
	"github.com/sauropod/sauropod/internal/events"
	"github.com/sauropod/sauropod/internal/logging"
	"github.com/sauropod/sauropod/internal/server"
	"github.com/sauropod/sauropod/internal/store"
	"github.com/sauropod/sauropod/internal/syncer"
	"github.com/sauropod/sauropod/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	kv, err := store.Open(cfg.DataPath)
	if err != nil {
		fmt.Fprintf(stdErr, "打开数据库失败: %v\n", err)
		return 1
	}
	defer kv.Close()

	// 装配顺序：事件总线 → catalog → 媒体缓存 → 同步引擎 → HTTP 服务，
	// 所有组件共享同一个 bus 与 kv 实例。
	bus := events.NewBus(logger)
	cat := catalog.New(kv, bus, logger)

	httpClient := &http.Client{}
	mediaCache, err := cache.New(cfg.CachePath, kv, httpClient, logger,
		cfg.FetchConcurrency, cfg.FetchTimeout.DurationValue())
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存失败: %v\n", err)
		return 1
	}

	feedSyncer := syncer.New(cat, bus, logger, httpClient,
		cfg.SyncConcurrency, cfg.FeedTimeout.DurationValue(), cfg.PlaceholderImage)

	registerListeners(bus, cat, mediaCache, logger)

	app, err := server.NewApp(server.AppOptions{
		Logger:  logger,
		Catalog: cat,
		Cache:   mediaCache,
		Syncer:  feedSyncer,
	})
	if err != nil {
		fmt.Fprintf(stdErr, "构建 HTTP 应用失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen_port"] = cfg.ListenPort
	fields["cache_path"] = cfg.CachePath
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go runScheduler(ctx, feedSyncer, mediaCache, logger,
		cfg.SyncInterval.DurationValue(), cfg.CleanInterval.DurationValue())

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"action": "listen",
			"port":   cfg.ListenPort,
		}).Info("Fiber 服务启动")
		errCh <- app.Listen(fmt.Sprintf(":%d", cfg.ListenPort))
	}()

	select {
	case err := <-errCh:
		if err != nil {
			fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
			return 1
		}
		return 0
	case <-ctx.Done():
	}

	// 关停顺序：先停止接收请求，再中止在途抓取，最后等事件处理器排空。
	logger.Info("收到退出信号，开始关停")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.WithError(err).Warn("HTTP 关停超时")
	}
	mediaCache.Close()
	bus.Wait()
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("sauropod", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 SAUROPOD_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("SAUROPOD_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

// runScheduler 驱动周期任务：订阅源同步与缓存清理。启动后先做一轮
// 全量同步，让新部署立即可用。
func runScheduler(ctx context.Context, feedSyncer *syncer.Syncer, mediaCache *cache.Cache, logger *logrus.Logger, syncEvery, cleanEvery time.Duration) {
	if err := feedSyncer.SyncAll(ctx); err != nil {
		logger.WithError(err).Warn("初始同步失败")
	}

	syncTicker := time.NewTicker(syncEvery)
	cleanTicker := time.NewTicker(cleanEvery)
	defer syncTicker.Stop()
	defer cleanTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-syncTicker.C:
			if err := feedSyncer.SyncAll(ctx); err != nil {
				logger.WithError(err).Warn("周期同步失败")
			}
		case <-cleanTicker.C:
			if err := mediaCache.Clean(); err != nil {
				logger.WithError(err).Warn("缓存清理失败")
			}
		}
	}
}
