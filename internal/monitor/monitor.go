package monitor

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"binance-market-sentry/internal/stream"
	"binance-market-sentry/pkg/types"
)

// Store 持久化端口。所有写入失败只记日志，不中断行情处理
type Store interface {
	InsertKline(ctx context.Context, kline types.ClosedKline) error
	InsertWindowStats(ctx context.Context, symbol string, stats *types.WindowStats) error
	InsertAlert(ctx context.Context, event *types.AlertEvent) error
	FetchRecentAlerts(ctx context.Context, limit int) ([]types.AlertEvent, error)
}

// Broadcaster 推送端口，由广播中心实现
type Broadcaster interface {
	Broadcast(payload interface{})
}

// PriceRecorder 最新价旁路备份端口，可选
type PriceRecorder interface {
	Record(symbol string, price float64, tsMs int64)
}

// MarketMonitor 行情监控核心。独占持有窗口、当日开盘价、去重和最新价状态，
// 真实行情与模拟行情可能并发调入，所有可变状态由单个互斥锁保护
type MarketMonitor struct {
	config types.MonitorConfig

	store       Store
	broadcaster Broadcaster
	recorder    PriceRecorder

	// tracked 构造后只读，消息路由时无锁判断交易对是否被跟踪
	tracked map[string]struct{}

	mu        sync.Mutex
	windows   map[string]*Window
	daily     *DailyOpenTracker
	alerts    *AlertEngine
	lastPrice map[string]*float64

	processedKlines int64
	emittedAlerts   int64
}

// NewMarketMonitor 创建行情监控器，recorder可为nil
func NewMarketMonitor(config types.MonitorConfig, store Store, broadcaster Broadcaster, recorder PriceRecorder) (*MarketMonitor, error) {
	daily, err := NewDailyOpenTracker(config.Timezones, config.Symbols)
	if err != nil {
		return nil, err
	}

	tracked := make(map[string]struct{}, len(config.Symbols))
	windows := make(map[string]*Window, len(config.Symbols))
	lastPrice := make(map[string]*float64, len(config.Symbols))
	for _, symbol := range config.Symbols {
		tracked[symbol] = struct{}{}
		windows[symbol] = NewWindow(config.WindowSizeMinutes)
		lastPrice[symbol] = nil
	}

	return &MarketMonitor{
		config:      config,
		store:       store,
		broadcaster: broadcaster,
		recorder:    recorder,
		tracked:     tracked,
		windows:     windows,
		daily:       daily,
		alerts:      NewAlertEngine(config.AlertThresholds, config.AlertDedupSeconds, config.WindowSizeMinutes),
		lastPrice:   lastPrice,
	}, nil
}

// HandleStreamMessage 处理一条上游行情流消息。
// 未收盘K线和未跟踪的交易对直接丢弃，解码失败只做低级别日志
func (m *MarketMonitor) HandleStreamMessage(ctx context.Context, raw []byte) {
	event, err := stream.ParseEvent(raw)
	if err != nil {
		zap.L().Debug("丢弃无法解析的行情消息", zap.Error(err))
		return
	}

	switch {
	case event.Kline != nil:
		if _, ok := m.tracked[event.Kline.Symbol]; !ok {
			return
		}
		m.HandleClosedKline(ctx, *event.Kline)
	case event.Tick != nil:
		if _, ok := m.tracked[event.Tick.Symbol]; !ok {
			return
		}
		m.HandlePriceTick(ctx, event.Tick.Symbol, event.Tick.Price, event.Tick.EventTime)
	}
}

// HandleClosedKline 已收盘K线主路径：入库、更新当日开盘价、追加窗口、
// 计算统计、评估预警、推送价格。持久化失败记日志后继续，内存状态始终权威
func (m *MarketMonitor) HandleClosedKline(ctx context.Context, kline types.ClosedKline) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.InsertKline(ctx, kline); err != nil {
		zap.L().Error("保存K线失败", zap.String("symbol", kline.Symbol), zap.Error(err))
	}

	m.daily.Update(kline)

	window := m.windows[kline.Symbol]
	window.Append(kline)
	atomic.AddInt64(&m.processedKlines, 1)

	if stats := window.ComputeStats(); stats != nil {
		if err := m.store.InsertWindowStats(ctx, kline.Symbol, stats); err != nil {
			zap.L().Error("保存窗口统计失败", zap.String("symbol", kline.Symbol), zap.Error(err))
		}
		for _, event := range m.alerts.Check(kline.Symbol, stats) {
			m.emitAlert(ctx, event)
		}
	}

	m.publishPrice(kline.Symbol, kline.Close, kline.CloseTime)
}

// HandlePriceTick 最新价路径：只更新最新价并推送，不触碰窗口
func (m *MarketMonitor) HandlePriceTick(ctx context.Context, symbol string, price float64, tsMs int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.publishPrice(symbol, price, tsMs)
}

// PublishPrice 供模拟行情直接推送价格
func (m *MarketMonitor) PublishPrice(symbol string, price float64, tsMs int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.publishPrice(symbol, price, tsMs)
}

// SetDailyOpen 供模拟行情预置当日开盘价
func (m *MarketMonitor) SetDailyOpen(tzKey, symbol, day string, open float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.daily.SetOpen(tzKey, strings.ToLower(symbol), day, open)
}

// EmitAlert 供模拟行情触发预警，force为true时先清除去重记录
func (m *MarketMonitor) EmitAlert(ctx context.Context, alertType string, threshold float64, symbol string, stats *types.WindowStats, force bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var event *types.AlertEvent
	if force {
		event = m.alerts.Force(alertType, threshold, symbol, stats)
	} else {
		event = m.alerts.tryFire(alertType, threshold, symbol, stats)
	}
	if event != nil {
		m.emitAlert(ctx, event)
	}
}

// emitAlert 持久化并广播一条通过去重的预警，调用方需持有锁
func (m *MarketMonitor) emitAlert(ctx context.Context, event *types.AlertEvent) {
	if err := m.store.InsertAlert(ctx, event); err != nil {
		zap.L().Error("保存预警失败",
			zap.String("symbol", event.Symbol),
			zap.String("alert_type", event.AlertType),
			zap.Error(err))
	}
	m.broadcaster.Broadcast(event)
	atomic.AddInt64(&m.emittedAlerts, 1)
	zap.L().Info("🚨 触发预警",
		zap.String("symbol", event.Symbol),
		zap.String("alert_type", event.AlertType),
		zap.Float64("magnitude", event.Magnitude),
		zap.Float64("move_from_anchor", event.Reference.MoveFromAnchor))
}

// publishPrice 更新最新价并广播价格消息，调用方需持有锁
func (m *MarketMonitor) publishPrice(symbol string, price float64, tsMs int64) {
	p := price
	m.lastPrice[symbol] = &p

	if m.recorder != nil {
		m.recorder.Record(symbol, price, tsMs)
	}

	dayOpen := m.daily.OpenMap(symbol)
	pctFromOpen := m.daily.PctMap(symbol, &p)
	m.broadcaster.Broadcast(&types.PricePayload{
		Type:             "price",
		Symbol:           strings.ToUpper(symbol),
		Price:            price,
		DayOpen:          dayOpen,
		PctFromDayOpen:   pctFromOpen,
		TodayOpen:        dayOpen["utc"],
		PctFromTodayOpen: pctFromOpen["utc"],
		Ts:               tsMs,
	})
}

// Snapshot 每个交易对的最新状态
func (m *MarketMonitor) Snapshot() map[string]types.SymbolSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make(map[string]types.SymbolSnapshot, len(m.config.Symbols))
	for _, symbol := range m.config.Symbols {
		price := m.lastPrice[symbol]
		dayOpen := m.daily.OpenMap(symbol)
		pctFromOpen := m.daily.PctMap(symbol, price)
		result[strings.ToUpper(symbol)] = types.SymbolSnapshot{
			Price:            price,
			DayOpen:          dayOpen,
			PctFromDayOpen:   pctFromOpen,
			TodayOpen:        dayOpen["utc"],
			PctFromTodayOpen: pctFromOpen["utc"],
		}
	}
	return result
}

// SnapshotPayload 新订阅者的一次性快照：最新状态加最近的历史预警。
// 历史预警读取失败时降级为空列表，订阅方不感知内部错误
func (m *MarketMonitor) SnapshotPayload(ctx context.Context) types.SnapshotPayload {
	alerts, err := m.store.FetchRecentAlerts(ctx, m.config.RecentAlertLimit)
	if err != nil {
		zap.L().Error("读取历史预警失败", zap.Error(err))
		alerts = nil
	}
	if alerts == nil {
		alerts = []types.AlertEvent{}
	}
	return types.SnapshotPayload{
		Type:   "snapshot",
		Data:   m.Snapshot(),
		Alerts: alerts,
	}
}

// Stats 运行统计
func (m *MarketMonitor) Stats() (processedKlines, emittedAlerts int64) {
	return atomic.LoadInt64(&m.processedKlines), atomic.LoadInt64(&m.emittedAlerts)
}
