package workerpool

import (
	"context"
	"testing"
	"time"
)

func TestDynamicRunReturnsResult(t *testing.T) {
	handler := func(ctx context.Context, task CPUTask) CPUResult {
		n := task.Payload.(int)
		return CPUResult{TaskID: task.ID, Output: n * 2}
	}

	cfg := DefaultDynamicConfig()
	cfg.MinWorkers = 2
	cfg.MaxWorkers = 2

	pool := NewDynamic(context.Background(), cfg, handler)
	defer pool.Stop()

	res, err := pool.Run(context.Background(), CPUTask{ID: "a", Payload: 21})
	if err != nil {
		t.Fatal(err)
	}
	if res.Output.(int) != 42 {
		t.Fatalf("expected 42, got %v", res.Output)
	}
}

func TestDynamicRunRespectsCancellation(t *testing.T) {
	handler := func(ctx context.Context, task CPUTask) CPUResult {
		<-ctx.Done()
		return CPUResult{}
	}
	cfg := DefaultDynamicConfig()
	cfg.MinWorkers = 0
	cfg.MaxWorkers = 0
	cfg.QueueSize = 1

	pool := NewDynamic(context.Background(), cfg, handler)
	defer pool.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := pool.Run(ctx, CPUTask{ID: "a"})
	if err == nil {
		t.Fatal("expected context deadline error when no workers are running")
	}
}
