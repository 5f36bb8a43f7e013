// Package workerpool hosts the two concurrency primitives the query and
// build pipelines run on: a dynamically-scaling pool for CPU-bound stages
// (tokenize, SimHash, winnow) and an ants-backed bounded pool for the
// IO-bound stages (band/shard recall, document fetch, bulk insert).
package workerpool

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// CPUTask is a unit of CPU-bound work submitted to a Dynamic pool.
type CPUTask struct {
	ID      string
	Payload any
}

// CPUResult is the outcome of running a CPUTask.
type CPUResult struct {
	TaskID  string
	Output  any
	Err     error
	Latency time.Duration
}

// CPUHandler executes one CPUTask.
type CPUHandler func(ctx context.Context, task CPUTask) CPUResult

// CPUStats reports Dynamic pool activity.
type CPUStats struct {
	TasksSubmitted int64
	TasksCompleted int64
	TasksDropped   int64
	CurrentWorkers int32
}

// DynamicConfig configures a Dynamic pool.
type DynamicConfig struct {
	MinWorkers         int
	MaxWorkers         int
	QueueSize          int
	ScaleInterval      time.Duration
	ScaleUpThreshold   float64
	ScaleDownThreshold float64
}

// DefaultDynamicConfig scales between NumCPU and 4xNumCPU workers, matching
// the CPU-bound concurrency budget for tokenize/SimHash/winnow stages.
func DefaultDynamicConfig() DynamicConfig {
	n := runtime.NumCPU()
	return DynamicConfig{
		MinWorkers:         n,
		MaxWorkers:         n * 4,
		QueueSize:          4096,
		ScaleInterval:      time.Second,
		ScaleUpThreshold:   0.8,
		ScaleDownThreshold: 0.2,
	}
}

// Dynamic is a worker pool that starts MinWorkers goroutines and adds one
// per ScaleInterval tick while queue utilization exceeds ScaleUpThreshold,
// up to MaxWorkers. It does not shrink; ScaleDownThreshold is not read.
type Dynamic struct {
	cfg            DynamicConfig
	currentWorkers int32
	taskQueue      chan CPUTask
	resultQueue    chan CPUResult
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	stats          CPUStats
}

// NewDynamic creates and starts a Dynamic pool running handler.
func NewDynamic(ctx context.Context, cfg DynamicConfig, handler CPUHandler) *Dynamic {
	ctx, cancel := context.WithCancel(ctx)
	d := &Dynamic{
		cfg:         cfg,
		taskQueue:   make(chan CPUTask, cfg.QueueSize),
		resultQueue: make(chan CPUResult, cfg.QueueSize),
		ctx:         ctx,
		cancel:      cancel,
	}
	for i := 0; i < cfg.MinWorkers; i++ {
		d.spawn(handler)
	}
	go d.autoScale(handler)
	return d
}

// Submit enqueues a task without waiting, dropping it if the queue is full.
func (d *Dynamic) Submit(task CPUTask) bool {
	select {
	case d.taskQueue <- task:
		atomic.AddInt64(&d.stats.TasksSubmitted, 1)
		return true
	default:
		atomic.AddInt64(&d.stats.TasksDropped, 1)
		return false
	}
}

// Run submits a task and blocks for its result, honoring ctx cancellation.
func (d *Dynamic) Run(ctx context.Context, task CPUTask) (CPUResult, error) {
	done := make(chan CPUResult, 1)
	wrapped := CPUTask{ID: task.ID, Payload: callbackTask{task: task, done: done}}

	select {
	case d.taskQueue <- wrapped:
		atomic.AddInt64(&d.stats.TasksSubmitted, 1)
	case <-ctx.Done():
		return CPUResult{}, ctx.Err()
	}

	select {
	case res := <-done:
		return res, nil
	case <-ctx.Done():
		return CPUResult{}, ctx.Err()
	}
}

type callbackTask struct {
	task CPUTask
	done chan<- CPUResult
}

// Results returns the channel fire-and-forget Submit results are posted to.
func (d *Dynamic) Results() <-chan CPUResult { return d.resultQueue }

// Stop cancels all workers and waits for them to exit.
func (d *Dynamic) Stop() {
	d.cancel()
	d.wg.Wait()
}

// Stats returns a snapshot of pool activity.
func (d *Dynamic) Stats() CPUStats {
	return CPUStats{
		TasksSubmitted: atomic.LoadInt64(&d.stats.TasksSubmitted),
		TasksCompleted: atomic.LoadInt64(&d.stats.TasksCompleted),
		TasksDropped:   atomic.LoadInt64(&d.stats.TasksDropped),
		CurrentWorkers: atomic.LoadInt32(&d.currentWorkers),
	}
}

func (d *Dynamic) spawn(handler CPUHandler) {
	atomic.AddInt32(&d.currentWorkers, 1)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer atomic.AddInt32(&d.currentWorkers, -1)
		for {
			select {
			case <-d.ctx.Done():
				return
			case task, ok := <-d.taskQueue:
				if !ok {
					return
				}
				start := time.Now()
				if cb, ok := task.Payload.(callbackTask); ok {
					res := handler(d.ctx, cb.task)
					res.Latency = time.Since(start)
					select {
					case cb.done <- res:
					default:
					}
				} else {
					res := handler(d.ctx, task)
					res.Latency = time.Since(start)
					select {
					case d.resultQueue <- res:
					default:
					}
				}
				atomic.AddInt64(&d.stats.TasksCompleted, 1)
			}
		}
	}()
}

func (d *Dynamic) autoScale(handler CPUHandler) {
	ticker := time.NewTicker(d.cfg.ScaleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			utilization := float64(len(d.taskQueue)) / float64(cap(d.taskQueue))
			current := int(atomic.LoadInt32(&d.currentWorkers))
			if utilization > d.cfg.ScaleUpThreshold && current < d.cfg.MaxWorkers {
				d.spawn(handler)
			}
		}
	}
}
