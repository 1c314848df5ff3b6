package hub

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"binance-market-sentry/pkg/types"
)

type fakeSink struct {
	messages [][]byte
	failSend bool
	closed   bool
}

func (s *fakeSink) Send(payload []byte) error {
	if s.failSend {
		return errors.New("连接已断开")
	}
	s.messages = append(s.messages, payload)
	return nil
}

func (s *fakeSink) Close() error {
	s.closed = true
	return nil
}

func testSnapshot(_ context.Context) types.SnapshotPayload {
	price := 85000.0
	return types.SnapshotPayload{
		Type: "snapshot",
		Data: map[string]types.SymbolSnapshot{
			"BTCUSDT": {Price: &price},
		},
		Alerts: []types.AlertEvent{},
	}
}

func TestRegisterSendsSnapshotFirst(t *testing.T) {
	h := New(testSnapshot)
	sink := &fakeSink{}

	h.Register(context.Background(), sink)
	if h.Count() != 1 {
		t.Fatalf("订阅者数量应为1，实际 %d", h.Count())
	}
	if len(sink.messages) != 1 {
		t.Fatalf("注册时应先收到快照，实际 %d 条", len(sink.messages))
	}

	var payload types.SnapshotPayload
	if err := json.Unmarshal(sink.messages[0], &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Type != "snapshot" {
		t.Fatalf("首条消息应为snapshot，实际 %s", payload.Type)
	}
	if snap, ok := payload.Data["BTCUSDT"]; !ok || snap.Price == nil || *snap.Price != 85000.0 {
		t.Fatalf("快照内容错误: %+v", payload.Data)
	}
}

func TestBroadcastDeliversToAll(t *testing.T) {
	h := New(nil)
	first := &fakeSink{}
	second := &fakeSink{}
	h.Register(context.Background(), first)
	h.Register(context.Background(), second)

	h.Broadcast(&types.AlertEvent{Type: "alert", Symbol: "BTCUSDT", AlertType: types.AlertRapidDrop})

	for _, sink := range []*fakeSink{first, second} {
		if len(sink.messages) != 1 {
			t.Fatalf("每个订阅者都应收到广播，实际 %d", len(sink.messages))
		}
		var event types.AlertEvent
		if err := json.Unmarshal(sink.messages[0], &event); err != nil {
			t.Fatal(err)
		}
		if event.AlertType != types.AlertRapidDrop {
			t.Fatalf("广播内容错误: %+v", event)
		}
	}
}

func TestBroadcastPrunesFailedSink(t *testing.T) {
	h := New(nil)
	healthy := &fakeSink{}
	broken := &fakeSink{failSend: true}
	h.Register(context.Background(), healthy)
	h.Register(context.Background(), broken)

	h.Broadcast(map[string]string{"type": "price"})

	if h.Count() != 1 {
		t.Fatalf("失败的订阅者应被移除，剩余 %d", h.Count())
	}
	if !broken.closed {
		t.Fatal("被移除的订阅者应被关闭")
	}
	if len(healthy.messages) != 1 {
		t.Fatal("健康订阅者不应受影响")
	}

	// 后续广播不再投递给已移除的订阅者
	h.Broadcast(map[string]string{"type": "price"})
	if len(healthy.messages) != 2 {
		t.Fatalf("健康订阅者应继续收到广播，实际 %d", len(healthy.messages))
	}
}

func TestUnregister(t *testing.T) {
	h := New(nil)
	sink := &fakeSink{}
	h.Register(context.Background(), sink)
	h.Unregister(sink)

	if h.Count() != 0 {
		t.Fatalf("注销后订阅者数量应为0，实际 %d", h.Count())
	}
	h.Broadcast(map[string]string{"type": "price"})
	if len(sink.messages) != 0 {
		t.Fatal("注销后不应再收到广播")
	}
}
