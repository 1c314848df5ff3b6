package stub

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"binance-market-sentry/internal/monitor"
	"binance-market-sentry/pkg/types"
)

// Generator 模拟行情发生器，用于无上游环境下的本地联调：
// 每秒发布随机游走价格，周期性强制触发一条预警
type Generator struct {
	monitor *monitor.MarketMonitor
	config  types.MonitorConfig
	rng     *rand.Rand
}

// NewGenerator 创建模拟行情发生器，seed固定时序列可复现
func NewGenerator(m *monitor.MarketMonitor, config types.MonitorConfig, seed int64) *Generator {
	return &Generator{
		monitor: m,
		config:  config,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Run 启动模拟行情，仅在ctx取消时返回
func (g *Generator) Run(ctx context.Context) {
	zap.L().Info("🧪 模拟行情启动", zap.Strings("symbols", g.config.Symbols))

	basePrices := map[string]float64{"btcusdt": 85000.0, "ethusdt": 3000.0}
	prices := make(map[string]float64, len(g.config.Symbols))
	openPrices := make(map[string]float64, len(g.config.Symbols))
	for _, symbol := range g.config.Symbols {
		price, ok := basePrices[symbol]
		if !ok {
			price = 100.0
		}
		prices[symbol] = price
		openPrices[symbol] = price
	}

	// 预置各时区的当日开盘价，让价格推送立刻带上涨跌幅
	for tzKey, tzName := range g.config.Timezones {
		loc, err := time.LoadLocation(tzName)
		if err != nil {
			continue
		}
		day := time.Now().In(loc).Format("2006-01-02")
		for _, symbol := range g.config.Symbols {
			g.monitor.SetDailyOpen(tzKey, symbol, day, prices[symbol])
		}
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var lastAlertMs int64

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("📴 模拟行情已停止")
			return
		case <-ticker.C:
			tsMs := time.Now().UnixMilli()
			for _, symbol := range g.config.Symbols {
				drift := prices[symbol] * (g.rng.Float64()*0.0012 - 0.0006)
				prices[symbol] = maxFloat(1.0, prices[symbol]+drift)
				g.monitor.PublishPrice(symbol, prices[symbol], tsMs)
			}

			if len(g.config.AlertThresholds) > 0 && tsMs-lastAlertMs >= 12000 {
				lastAlertMs = tsMs
				g.emitSyntheticAlert(ctx, prices, openPrices, tsMs)
			}
		}
	}
}

// emitSyntheticAlert 强制触发一条与锚点语义一致的合成预警
func (g *Generator) emitSyntheticAlert(ctx context.Context, prices, openPrices map[string]float64, tsMs int64) {
	symbol := g.config.Symbols[g.rng.Intn(len(g.config.Symbols))]
	alertType := types.AlertRapidDrop
	if g.rng.Intn(2) == 1 {
		alertType = types.AlertRapidRebound
	}
	threshold := g.config.AlertThresholds[g.rng.Intn(len(g.config.AlertThresholds))]

	stats := buildStubStats(openPrices[symbol], prices[symbol], threshold, alertType, tsMs, g.config.WindowSizeMinutes)
	g.monitor.EmitAlert(ctx, alertType, threshold, symbol, stats, true)
}

// buildStubStats 按预警类型构造刚好越过阈值的窗口统计
func buildStubStats(openPrice, currentPrice, threshold float64, alertType string, tsMs int64, windowMinutes int) *types.WindowStats {
	var peakPrice, troughPrice float64
	if alertType == types.AlertRapidDrop {
		peakPrice = currentPrice * (1 + threshold + 0.001)
		troughPrice = currentPrice * (1 - 0.001)
	} else {
		troughPrice = currentPrice * (1 - threshold - 0.001)
		peakPrice = currentPrice * (1 + 0.001)
	}

	return &types.WindowStats{
		WindowEnd:          tsMs,
		ChangeClose:        (currentPrice - openPrice) / openPrice,
		ChangeLow:          (troughPrice - openPrice) / openPrice,
		ChangeHigh:         (peakPrice - openPrice) / openPrice,
		Length:             windowMinutes,
		ReferenceOpen:      openPrice,
		ReferenceClose:     currentPrice,
		ReferenceLow:       minFloat(troughPrice, currentPrice),
		ReferenceHigh:      maxFloat(peakPrice, currentPrice),
		PeakPrice:          peakPrice,
		PeakTs:             tsMs,
		PeakPctFromOpen:    (peakPrice - openPrice) / openPrice,
		TroughPrice:        troughPrice,
		TroughTs:           tsMs,
		TroughPctFromOpen:  (troughPrice - openPrice) / openPrice,
		CurrentPrice:       currentPrice,
		CurrentTs:          tsMs,
		CurrentPctFromOpen: (currentPrice - openPrice) / openPrice,
		DropFromPeak:       (peakPrice - currentPrice) / openPrice,
		RiseFromTrough:     (currentPrice - troughPrice) / openPrice,
	}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
