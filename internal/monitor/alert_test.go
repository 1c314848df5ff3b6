package monitor

import (
	"testing"
	"time"

	"binance-market-sentry/pkg/types"
)

func dropStats(dropFromPeak, riseFromTrough float64) *types.WindowStats {
	return &types.WindowStats{
		WindowEnd:      1700000359999,
		Length:         5,
		ReferenceOpen:  100,
		ReferenceClose: 100,
		ReferenceLow:   99.9,
		ReferenceHigh:  101.2,
		PeakPrice:      101.2,
		PeakTs:         1700000119999,
		TroughPrice:    99.9,
		TroughTs:       1700000059999,
		CurrentPrice:   100,
		CurrentTs:      1700000359999,
		DropFromPeak:   dropFromPeak,
		RiseFromTrough: riseFromTrough,
	}
}

func newTestEngine(thresholds []float64) (*AlertEngine, *time.Time) {
	engine := NewAlertEngine(thresholds, 180, 5)
	current := time.Unix(1700000000, 0)
	engine.now = func() time.Time { return current }
	return engine, &current
}

func TestAlertAnchorMatchesType(t *testing.T) {
	engine, _ := newTestEngine([]float64{0.01})

	events := engine.Check("btcusdt", dropStats(0.012, 0.001))
	if len(events) != 1 {
		t.Fatalf("应触发1条预警，实际 %d", len(events))
	}
	event := events[0]
	if event.AlertType != types.AlertRapidDrop {
		t.Fatalf("预警类型应为rapid_drop，实际 %s", event.AlertType)
	}
	if event.Reference.AnchorType != types.AnchorPeak {
		t.Fatalf("回撤预警应锚定峰值，实际 %s", event.Reference.AnchorType)
	}
	if event.Reference.AnchorPrice != 101.2 || event.Reference.AnchorTs != 1700000119999 {
		t.Fatalf("锚点应为峰值价格和时间，实际 %v/%v", event.Reference.AnchorPrice, event.Reference.AnchorTs)
	}
	if !almostEqual(event.Reference.MoveFromAnchor, 0.012) {
		t.Fatalf("move_from_anchor 应等于drop_from_peak，实际 %v", event.Reference.MoveFromAnchor)
	}
}

func TestAlertReboundAnchorsTrough(t *testing.T) {
	engine, _ := newTestEngine([]float64{0.01})

	events := engine.Check("btcusdt", dropStats(0.001, 0.015))
	if len(events) != 1 {
		t.Fatalf("应触发1条预警，实际 %d", len(events))
	}
	event := events[0]
	if event.AlertType != types.AlertRapidRebound {
		t.Fatalf("预警类型应为rapid_rebound，实际 %s", event.AlertType)
	}
	if event.Reference.AnchorType != types.AnchorTrough {
		t.Fatalf("反弹预警应锚定谷值，实际 %s", event.Reference.AnchorType)
	}
	if event.Reference.AnchorPrice != 99.9 {
		t.Fatalf("锚点价格应为谷值99.9，实际 %v", event.Reference.AnchorPrice)
	}
	if !almostEqual(event.Reference.MoveFromAnchor, 0.015) {
		t.Fatalf("move_from_anchor 应等于rise_from_trough，实际 %v", event.Reference.MoveFromAnchor)
	}
}

func TestAlertMultipleThresholdsFireIndependently(t *testing.T) {
	engine, _ := newTestEngine([]float64{0.01, 0.005})

	events := engine.Check("btcusdt", dropStats(0.012, 0.001))
	if len(events) != 2 {
		t.Fatalf("两个阈值都应触发，实际 %d", len(events))
	}
	for _, event := range events {
		if event.AlertType != types.AlertRapidDrop {
			t.Fatalf("应全部为rapid_drop，实际 %s", event.AlertType)
		}
	}
}

func TestAlertDedupWithinWindow(t *testing.T) {
	engine, current := newTestEngine([]float64{0.01})

	if events := engine.Check("btcusdt", dropStats(0.012, 0.001)); len(events) != 1 {
		t.Fatalf("首次应触发，实际 %d", len(events))
	}

	// 去重窗口内再次满足条件，不产生第二条
	*current = current.Add(60 * time.Second)
	if events := engine.Check("btcusdt", dropStats(0.02, 0.001)); len(events) != 0 {
		t.Fatalf("去重窗口内不应重复触发，实际 %d", len(events))
	}

	// 超过180秒后可以再次触发
	*current = current.Add(121 * time.Second)
	if events := engine.Check("btcusdt", dropStats(0.02, 0.001)); len(events) != 1 {
		t.Fatalf("去重窗口过后应再次触发，实际 %d", len(events))
	}
}

func TestAlertDedupKeyIncludesThreshold(t *testing.T) {
	engine, _ := newTestEngine([]float64{0.01})

	engine.Check("btcusdt", dropStats(0.012, 0.001))

	// 不同交易对不受影响
	if events := engine.Check("ethusdt", dropStats(0.012, 0.001)); len(events) != 1 {
		t.Fatalf("不同交易对应独立去重，实际 %d", len(events))
	}
}

func TestAlertForceBypassesDedup(t *testing.T) {
	engine, _ := newTestEngine([]float64{0.01})

	engine.Check("btcusdt", dropStats(0.012, 0.001))
	if event := engine.Force(types.AlertRapidDrop, 0.01, "btcusdt", dropStats(0.012, 0.001)); event == nil {
		t.Fatal("强制触发应绕过去重")
	}
}
