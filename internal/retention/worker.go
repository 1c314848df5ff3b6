package retention

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Pruner 清理端口，由持久化适配器实现
type Pruner interface {
	PruneOlderThan(ctx context.Context, cutoffMs int64) error
}

// Worker 周期性清理超过保留期的持久化数据。
// 清理失败只记日志，循环继续，仅在进程关闭时退出
type Worker struct {
	pruner           Pruner
	retentionSeconds int
	interval         time.Duration
}

// NewWorker 创建清理任务，interval为0时使用默认的10分钟
func NewWorker(pruner Pruner, retentionSeconds int, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Worker{
		pruner:           pruner,
		retentionSeconds: retentionSeconds,
		interval:         interval,
	}
}

// Run 启动清理循环，仅在ctx取消时返回
func (w *Worker) Run(ctx context.Context) {
	zap.L().Info("🧹 数据清理任务启动",
		zap.Int("retention_seconds", w.retentionSeconds),
		zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.pruneOnce(ctx)

		select {
		case <-ctx.Done():
			zap.L().Info("📴 数据清理任务已停止")
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) pruneOnce(ctx context.Context) {
	cutoffMs := time.Now().Add(-time.Duration(w.retentionSeconds) * time.Second).UnixMilli()
	if err := w.pruner.PruneOlderThan(ctx, cutoffMs); err != nil {
		zap.L().Error("清理过期数据失败", zap.Error(err))
	}
}
