package monitor

import (
	"strings"
	"time"

	"binance-market-sentry/pkg/types"
)

// dedupKey 预警去重键：同一(交易对, 预警类型, 阈值)在去重窗口内只触发一次
type dedupKey struct {
	symbol    string
	alertType string
	threshold float64
}

// AlertEngine 按阈值评估窗口统计并负责预警去重
type AlertEngine struct {
	thresholds    []float64
	dedupWindow   time.Duration
	windowMinutes int
	lastFiredAt   map[dedupKey]time.Time
	now           func() time.Time // 可注入时钟，方便测试去重窗口
}

// NewAlertEngine 创建预警引擎
func NewAlertEngine(thresholds []float64, dedupSeconds, windowMinutes int) *AlertEngine {
	return &AlertEngine{
		thresholds:    thresholds,
		dedupWindow:   time.Duration(dedupSeconds) * time.Second,
		windowMinutes: windowMinutes,
		lastFiredAt:   make(map[dedupKey]time.Time),
		now:           time.Now,
	}
}

// Check 评估一次窗口统计，返回通过去重的预警事件。
// 回撤和反弹独立判断，同一轮里不同阈值可以分别触发
func (e *AlertEngine) Check(symbol string, stats *types.WindowStats) []*types.AlertEvent {
	var fired []*types.AlertEvent
	for _, threshold := range e.thresholds {
		if stats.DropFromPeak >= threshold {
			if event := e.tryFire(types.AlertRapidDrop, threshold, symbol, stats); event != nil {
				fired = append(fired, event)
			}
		}
		if stats.RiseFromTrough >= threshold {
			if event := e.tryFire(types.AlertRapidRebound, threshold, symbol, stats); event != nil {
				fired = append(fired, event)
			}
		}
	}
	return fired
}

// Force 清除去重记录后直接触发，供模拟行情使用
func (e *AlertEngine) Force(alertType string, threshold float64, symbol string, stats *types.WindowStats) *types.AlertEvent {
	delete(e.lastFiredAt, dedupKey{symbol: symbol, alertType: alertType, threshold: threshold})
	return e.tryFire(alertType, threshold, symbol, stats)
}

// tryFire 去重检查通过则构造事件并记录触发时间，否则返回nil且不产生任何副作用
func (e *AlertEngine) tryFire(alertType string, threshold float64, symbol string, stats *types.WindowStats) *types.AlertEvent {
	key := dedupKey{symbol: symbol, alertType: alertType, threshold: threshold}
	now := e.now()
	if lastAt, ok := e.lastFiredAt[key]; ok && now.Sub(lastAt) < e.dedupWindow {
		return nil
	}
	e.lastFiredAt[key] = now
	return e.buildEvent(alertType, threshold, symbol, stats)
}

// buildEvent 构造预警事件。锚点与预警类型对应：回撤锚定峰值，反弹锚定谷值
func (e *AlertEngine) buildEvent(alertType string, threshold float64, symbol string, stats *types.WindowStats) *types.AlertEvent {
	var anchorPrice, anchorPct, moveFromAnchor float64
	var anchorTs int64
	anchorType := types.AnchorPeak
	if alertType == types.AlertRapidDrop {
		anchorPrice = stats.PeakPrice
		anchorTs = stats.PeakTs
		anchorPct = stats.PeakPctFromOpen
		moveFromAnchor = stats.DropFromPeak
	} else {
		anchorType = types.AnchorTrough
		anchorPrice = stats.TroughPrice
		anchorTs = stats.TroughTs
		anchorPct = stats.TroughPctFromOpen
		moveFromAnchor = stats.RiseFromTrough
	}

	return &types.AlertEvent{
		Type:          "alert",
		Symbol:        strings.ToUpper(symbol),
		AlertType:     alertType,
		Magnitude:     threshold,
		WindowMinutes: e.windowMinutes,
		Ts:            stats.CurrentTs,
		Reference: types.AlertReference{
			Open:               stats.ReferenceOpen,
			Close:              stats.CurrentPrice,
			Low:                stats.ReferenceLow,
			High:               stats.PeakPrice,
			PeakPrice:          stats.PeakPrice,
			PeakTs:             stats.PeakTs,
			CurrentPrice:       stats.CurrentPrice,
			CurrentTs:          stats.CurrentTs,
			DropFromPeak:       stats.DropFromPeak,
			RiseFromTrough:     stats.RiseFromTrough,
			AnchorType:         anchorType,
			AnchorPrice:        anchorPrice,
			AnchorTs:           anchorTs,
			AnchorPctFromOpen:  anchorPct,
			CurrentPctFromOpen: stats.CurrentPctFromOpen,
			MoveFromAnchor:     moveFromAnchor,
		},
	}
}
