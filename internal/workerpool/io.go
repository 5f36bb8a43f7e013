package workerpool

import (
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
)

// IOPool bounds concurrent IO-bound work (band/shard recall calls,
// document fetches, bulk inserts) to a fixed number of goroutines using
// ants, so a single query or rebuild run cannot open unbounded concurrent
// connections to the index store.
type IOPool struct {
	pool       *ants.Pool
	wg         sync.WaitGroup
	isShutdown atomic.Bool

	submitted atomic.Int64
	completed atomic.Int64
	errors    atomic.Int64
}

// IOPoolOptions configures an IOPool.
type IOPoolOptions struct {
	Size        int
	PreAlloc    bool
	MaxBlocking int
}

// DefaultIOPoolOptions bounds the pool to 100 concurrent IO operations,
// enough to saturate RECALL_BATCH-sized shard fan-out without overwhelming
// the store.
func DefaultIOPoolOptions() IOPoolOptions {
	return IOPoolOptions{Size: 100, PreAlloc: true, MaxBlocking: 1000}
}

// NewIOPool creates an IOPool.
func NewIOPool(opts IOPoolOptions) (*IOPool, error) {
	pool, err := ants.NewPool(opts.Size,
		ants.WithPreAlloc(opts.PreAlloc),
		ants.WithMaxBlockingTasks(opts.MaxBlocking),
	)
	if err != nil {
		return nil, err
	}
	return &IOPool{pool: pool}, nil
}

// Submit runs task on the pool, blocking the caller's wg tracking until
// Wait is called, not the task itself.
func (p *IOPool) Submit(task func()) error {
	if p.isShutdown.Load() {
		return ants.ErrPoolClosed
	}
	p.submitted.Add(1)
	p.wg.Add(1)
	return p.pool.Submit(func() {
		defer p.wg.Done()
		defer p.completed.Add(1)
		task()
	})
}

// SubmitWithError runs task on the pool and records whether it failed.
func (p *IOPool) SubmitWithError(task func() error) error {
	return p.Submit(func() {
		if err := task(); err != nil {
			p.errors.Add(1)
		}
	})
}

// Wait blocks until every submitted task has completed.
func (p *IOPool) Wait() { p.wg.Wait() }

// IOStats reports IOPool activity.
type IOStats struct {
	Running   int
	Capacity  int
	Submitted int64
	Completed int64
	Errors    int64
}

// Stats returns a snapshot of pool activity.
func (p *IOPool) Stats() IOStats {
	return IOStats{
		Running:   p.pool.Running(),
		Capacity:  p.pool.Cap(),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Errors:    p.errors.Load(),
	}
}

// Shutdown waits for in-flight work then releases the pool.
func (p *IOPool) Shutdown() {
	p.isShutdown.Store(true)
	p.Wait()
	p.pool.Release()
}
