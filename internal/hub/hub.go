package hub

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"binance-market-sentry/pkg/types"
)

// Sink 一个广播输出端，通常是一条下游WebSocket连接
type Sink interface {
	Send(payload []byte) error
	Close() error
}

// SnapshotSource 新订阅者连接时的一次性快照来源
type SnapshotSource func(ctx context.Context) types.SnapshotPayload

// Hub 广播中心。订阅集合会被连接生命周期和广播并发读写，由互斥锁保护。
// 单个订阅者发送失败只移除它自己，不影响其余订阅者
type Hub struct {
	mu       sync.Mutex
	sinks    map[Sink]struct{}
	snapshot SnapshotSource
}

// New 创建广播中心
func New(snapshot SnapshotSource) *Hub {
	return &Hub{
		sinks:    make(map[Sink]struct{}),
		snapshot: snapshot,
	}
}

// Register 注册订阅者，开始接收广播前先下发一次快照
func (h *Hub) Register(ctx context.Context, sink Sink) {
	if h.snapshot != nil {
		payload, err := json.Marshal(h.snapshot(ctx))
		if err == nil {
			if err := sink.Send(payload); err != nil {
				zap.L().Warn("下发快照失败", zap.Error(err))
			}
		} else {
			zap.L().Error("序列化快照失败", zap.Error(err))
		}
	}

	h.mu.Lock()
	h.sinks[sink] = struct{}{}
	count := len(h.sinks)
	h.mu.Unlock()

	zap.L().Info("📡 新订阅者接入", zap.Int("subscribers", count))
}

// Unregister 移除订阅者
func (h *Hub) Unregister(sink Sink) {
	h.mu.Lock()
	delete(h.sinks, sink)
	h.mu.Unlock()
}

// Broadcast 序列化一次后投递给所有订阅者，失败的在本轮结束后移除
func (h *Hub) Broadcast(payload interface{}) {
	message, err := json.Marshal(payload)
	if err != nil {
		zap.L().Error("序列化广播消息失败", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var stale []Sink
	for sink := range h.sinks {
		if err := sink.Send(message); err != nil {
			stale = append(stale, sink)
		}
	}
	for _, sink := range stale {
		delete(h.sinks, sink)
		_ = sink.Close()
	}
	if len(stale) > 0 {
		zap.L().Info("清理失效订阅者", zap.Int("removed", len(stale)), zap.Int("remaining", len(h.sinks)))
	}
}

// Count 当前订阅者数量
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sinks)
}
