package retention

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakePruner struct {
	mu      sync.Mutex
	cutoffs []int64
	err     error
}

func (p *fakePruner) PruneOlderThan(_ context.Context, cutoffMs int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cutoffs = append(p.cutoffs, cutoffMs)
	return p.err
}

func (p *fakePruner) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cutoffs)
}

func TestWorkerPrunesImmediatelyAndPeriodically(t *testing.T) {
	pruner := &fakePruner{}
	worker := NewWorker(pruner, 3600, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for pruner.calls() < 3 {
		select {
		case <-deadline:
			t.Fatalf("等待周期清理超时，调用次数 %d", pruner.calls())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	// 截止时间戳在过去约1小时
	pruner.mu.Lock()
	first := pruner.cutoffs[0]
	pruner.mu.Unlock()
	expected := time.Now().Add(-3600 * time.Second).UnixMilli()
	if first > expected+5000 || first < expected-5000 {
		t.Fatalf("截止时间不在预期范围: %d vs %d", first, expected)
	}
}

func TestWorkerContinuesAfterPruneFailure(t *testing.T) {
	pruner := &fakePruner{err: errors.New("数据库不可用")}
	worker := NewWorker(pruner, 3600, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for pruner.calls() < 2 {
		select {
		case <-deadline:
			t.Fatal("清理失败后循环应继续")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestWorkerDefaultInterval(t *testing.T) {
	worker := NewWorker(&fakePruner{}, 3600, 0)
	if worker.interval != 10*time.Minute {
		t.Fatalf("interval为0时应回退到10分钟，实际 %v", worker.interval)
	}
}
