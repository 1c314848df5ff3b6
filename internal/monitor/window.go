package monitor

import (
	"binance-market-sentry/pkg/types"
)

// Window 单个交易对的固定容量滑动窗口，保存最近N根已收盘K线
type Window struct {
	size int
	data []types.ClosedKline
}

// NewWindow 创建滑动窗口，size为窗口长度（分钟，一根K线一分钟）
func NewWindow(size int) *Window {
	return &Window{
		size: size,
		data: make([]types.ClosedKline, 0, size),
	}
}

// Append 追加一根已收盘K线，超过容量时淘汰最老的一根
func (w *Window) Append(kline types.ClosedKline) {
	w.data = append(w.data, kline)
	if len(w.data) > w.size {
		w.data = w.data[1:]
	}
}

// Length 当前窗口内的K线数量
func (w *Window) Length() int {
	return len(w.data)
}

// ComputeStats 整体重新计算窗口统计。窗口未满或基准开盘价为0时返回nil，
// 此时不产生统计也不触发预警评估
func (w *Window) ComputeStats() *types.WindowStats {
	if len(w.data) < w.size {
		return nil
	}

	openBase := w.data[0].Open
	if openBase == 0 {
		return nil
	}

	latest := w.data[len(w.data)-1]

	// 峰值取最高价最大的一根，谷值取最低价最小的一根，平价时取最早出现的
	peak := w.data[0]
	trough := w.data[0]
	minLow := w.data[0].Low
	for _, k := range w.data[1:] {
		if k.High > peak.High {
			peak = k
		}
		if k.Low < trough.Low {
			trough = k
		}
		if k.Low < minLow {
			minLow = k.Low
		}
	}

	closeLast := latest.Close

	return &types.WindowStats{
		WindowEnd:          latest.CloseTime,
		ChangeClose:        (closeLast - openBase) / openBase,
		ChangeLow:          (minLow - openBase) / openBase,
		ChangeHigh:         (peak.High - openBase) / openBase,
		Length:             len(w.data),
		ReferenceOpen:      openBase,
		ReferenceClose:     closeLast,
		ReferenceLow:       minLow,
		ReferenceHigh:      peak.High,
		PeakPrice:          peak.High,
		PeakTs:             peak.CloseTime,
		PeakPctFromOpen:    (peak.High - openBase) / openBase,
		TroughPrice:        trough.Low,
		TroughTs:           trough.CloseTime,
		TroughPctFromOpen:  (trough.Low - openBase) / openBase,
		CurrentPrice:       closeLast,
		CurrentTs:          latest.CloseTime,
		CurrentPctFromOpen: (closeLast - openBase) / openBase,
		DropFromPeak:       (peak.High - closeLast) / openBase,
		RiseFromTrough:     (closeLast - trough.Low) / openBase,
	}
}
