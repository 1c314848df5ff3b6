package stream

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"binance-market-sentry/pkg/types"
)

// MessageHandler 行情消息处理函数。每条消息同步调用，
// 处理完成前不会读取下一条，保证单连接内严格按到达顺序处理
type MessageHandler func(ctx context.Context, raw []byte)

// Listener 上游行情流监听器，断线后固定间隔重连，直到进程退出。
// 不做指数退避，固定间隔是刻意的简化
type Listener struct {
	config  types.StreamConfig
	handler MessageHandler
}

// NewListener 创建监听器
func NewListener(config types.StreamConfig, handler MessageHandler) *Listener {
	return &Listener{
		config:  config,
		handler: handler,
	}
}

// Run 持续消费上游行情流，仅在ctx取消时返回
func (l *Listener) Run(ctx context.Context) {
	for {
		if err := l.consumeOnce(ctx); err != nil {
			zap.L().Error("行情流中断，等待重连",
				zap.String("url", l.config.URL),
				zap.Duration("delay", l.config.ReconnectDelay),
				zap.Error(err))
		}

		select {
		case <-ctx.Done():
			zap.L().Info("📴 行情监听器已停止")
			return
		case <-time.After(l.config.ReconnectDelay):
		}
	}
}

// consumeOnce 建立一次连接并循环读取，任何失败都返回交给外层重连
func (l *Listener) consumeOnce(ctx context.Context) error {
	zap.L().Info("连接上游行情流", zap.String("url", l.config.URL))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, l.config.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	zap.L().Info("✅ 行情流连接建立成功")

	// ctx取消时主动关连接，解除ReadMessage阻塞
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	go l.pingLoop(connCtx, conn)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		l.handler(ctx, message)
	}
}

// pingLoop 心跳循环，发送失败交给读循环统一处理断线
func (l *Listener) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(l.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				zap.L().Warn("发送心跳失败", zap.Error(err))
				return
			}
		}
	}
}
