package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"binance-market-sentry/internal/hub"
	"binance-market-sentry/internal/monitor"
	"binance-market-sentry/internal/retention"
	"binance-market-sentry/internal/server"
	"binance-market-sentry/internal/storage"
	"binance-market-sentry/internal/stream"
	"binance-market-sentry/internal/stub"
	"binance-market-sentry/pkg/types"
)

// App 应用程序管理器。监控器在进程入口显式构造并只启动一次，
// 所有后台任务持有同一个根上下文，便于统一优雅关闭
type App struct {
	config *types.Config
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	store        *storage.MySQLStore
	priceCache   *storage.PriceCache
	marketMon    *monitor.MarketMonitor
	broadcastHub *hub.Hub
}

// NewApp 创建应用程序实例并装配各模块
func NewApp(config *types.Config) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	store, err := storage.NewMySQLStore(config.MySQL, config.Monitor.RetentionSeconds, config.Monitor.WindowSizeMinutes)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("初始化持久层失败: %w", err)
	}

	priceCache := storage.NewPriceCache(config.Redis)

	app := &App{
		config:     config,
		ctx:        ctx,
		cancel:     cancel,
		store:      store,
		priceCache: priceCache,
	}

	// 广播中心的快照来源在监控器创建后补上
	app.broadcastHub = hub.New(func(ctx context.Context) types.SnapshotPayload {
		return app.marketMon.SnapshotPayload(ctx)
	})

	marketMon, err := monitor.NewMarketMonitor(config.Monitor, store, app.broadcastHub, priceCache)
	if err != nil {
		cancel()
		store.Close()
		return nil, fmt.Errorf("初始化行情监控器失败: %w", err)
	}
	app.marketMon = marketMon

	return app, nil
}

// Start 启动所有后台任务
func (app *App) Start() {
	zap.L().Info("🚀 Binance Market Sentry 启动中...",
		zap.Strings("symbols", app.config.Monitor.Symbols),
		zap.Int("window_minutes", app.config.Monitor.WindowSizeMinutes),
		zap.Float64s("thresholds", app.config.Monitor.AlertThresholds))

	// 上游行情流或模拟行情，二选一
	if app.config.Stub.Enabled {
		generator := stub.NewGenerator(app.marketMon, app.config.Monitor, app.config.Stub.Seed)
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			generator.Run(app.ctx)
		}()
	} else {
		listener := stream.NewListener(app.config.Stream, app.marketMon.HandleStreamMessage)
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			listener.Run(app.ctx)
		}()
	}

	// 数据清理任务
	worker := retention.NewWorker(app.store, app.config.Monitor.RetentionSeconds, 0)
	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		worker.Run(app.ctx)
	}()

	// 对外WebSocket/HTTP服务
	srv := server.New(app.config.Server, app.broadcastHub, app.store, app.config.Monitor.RecentAlertLimit)
	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		if err := srv.Run(app.ctx); err != nil {
			zap.L().Error("对外服务异常退出", zap.Error(err))
		}
	}()

	zap.L().Info("✅ Binance Market Sentry 已启动")
}

// Stop 停止应用程序
func (app *App) Stop() {
	zap.L().Info("🛑 收到停止信号，正在优雅关闭...")
	app.cancel()

	// 等待所有goroutine结束，最多等待30秒
	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("✅ Binance Market Sentry 已安全关闭")
	case <-time.After(30 * time.Second):
		zap.L().Warn("⚠️ 强制关闭超时")
	}

	if err := app.store.Close(); err != nil {
		zap.L().Error("关闭数据库连接失败", zap.Error(err))
	}
	if err := app.priceCache.Close(); err != nil {
		zap.L().Error("关闭Redis连接失败", zap.Error(err))
	}
}

// WaitForShutdown 等待关闭信号
func (app *App) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}
