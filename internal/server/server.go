package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"binance-market-sentry/internal/hub"
	"binance-market-sentry/pkg/types"
)

// AlertReader 历史预警读取端口
type AlertReader interface {
	FetchRecentAlerts(ctx context.Context, limit int) ([]types.AlertEvent, error)
}

// Server 对外服务：/ws 实时推送订阅，/alerts/recent 历史预警查询
type Server struct {
	listenAddr string
	hub        *hub.Hub
	alerts     AlertReader
	alertLimit int
	upgrader   websocket.Upgrader
}

// New 创建对外服务
func New(config types.ServerConfig, broadcastHub *hub.Hub, alerts AlertReader, alertLimit int) *Server {
	return &Server{
		listenAddr: config.ListenAddr,
		hub:        broadcastHub,
		alerts:     alerts,
		alertLimit: alertLimit,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Run 启动HTTP/WebSocket服务，ctx取消时优雅关闭
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/alerts/recent", s.handleRecentAlerts)

	httpServer := &http.Server{
		Addr:    s.listenAddr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	zap.L().Info("🌐 对外服务启动", zap.String("listen_addr", s.listenAddr))

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// handleWebSocket 升级连接并注册到广播中心，入站消息忽略
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.L().Warn("WebSocket升级失败", zap.Error(err))
		return
	}

	sink := newWSSink(conn)
	s.hub.Register(r.Context(), sink)

	defer func() {
		s.hub.Unregister(sink)
		_ = sink.Close()
	}()

	// 读循环只用于感知断开，客户端发来的内容不处理
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// handleRecentAlerts 历史预警查询。持久层完全不可用时返回尽力而为的错误响应
func (s *Server) handleRecentAlerts(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	alerts, err := s.alerts.FetchRecentAlerts(r.Context(), s.alertLimit)
	if err != nil {
		zap.L().Error("查询历史预警失败", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"alerts": []types.AlertEvent{},
			"error":  err.Error(),
		})
		return
	}
	if alerts == nil {
		alerts = []types.AlertEvent{}
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"alerts": alerts})
}

// wsSink 把一条下游WebSocket连接适配成广播输出端。
// gorilla连接不允许并发写，用互斥锁串行化
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newWSSink(conn *websocket.Conn) *wsSink {
	return &wsSink{conn: conn}
}

func (s *wsSink) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *wsSink) Close() error {
	return s.conn.Close()
}
