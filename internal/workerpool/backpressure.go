package workerpool

import (
	"sync"
	"sync/atomic"
	"time"
)

// BackpressureStrategy selects how Backpressure reacts once the queue
// crosses HighWatermark.
type BackpressureStrategy int

const (
	StrategyBlock BackpressureStrategy = iota
	StrategyDrop
	StrategyAdaptive
)

// BackpressureConfig configures a Backpressure controller.
type BackpressureConfig struct {
	Strategy      BackpressureStrategy
	HighWatermark float64
	LowWatermark  float64
	MinRate       time.Duration
	MaxRate       time.Duration
}

// DefaultBackpressureConfig throttles the builder's bulk-insert submission
// adaptively once its pending queue crosses 80% of capacity.
func DefaultBackpressureConfig() BackpressureConfig {
	return BackpressureConfig{
		Strategy:      StrategyAdaptive,
		HighWatermark: 0.8,
		LowWatermark:  0.5,
		MinRate:       time.Millisecond,
		MaxRate:       100 * time.Millisecond,
	}
}

// Backpressure throttles a producer's submission rate based on observed
// queue pressure, used by the index builder to slow bulk inserts when the
// store's write queue backs up rather than unboundedly growing memory.
type Backpressure struct {
	cfg         BackpressureConfig
	currentRate int64
	isPressured int32
	mu          sync.RWMutex

	itemsProcessed int64
	pressureEvents int64
}

// NewBackpressure creates a Backpressure controller.
func NewBackpressure(cfg BackpressureConfig) *Backpressure {
	return &Backpressure{cfg: cfg, currentRate: cfg.MinRate.Nanoseconds()}
}

// CheckPressure inspects queue occupancy and, for StrategyAdaptive, sleeps
// proportionally to pressure before returning. It returns false only for
// StrategyDrop when the queue is above HighWatermark.
func (b *Backpressure) CheckPressure(queueLen, queueCap int) bool {
	if queueCap == 0 {
		return true
	}
	pressure := float64(queueLen) / float64(queueCap)

	if pressure > b.cfg.HighWatermark {
		if atomic.CompareAndSwapInt32(&b.isPressured, 0, 1) {
			atomic.AddInt64(&b.pressureEvents, 1)
		}
		b.adjustRate(true)
		if b.cfg.Strategy == StrategyDrop {
			return false
		}
		if b.cfg.Strategy == StrategyAdaptive {
			time.Sleep(time.Duration(atomic.LoadInt64(&b.currentRate)))
		}
		return true
	}

	if pressure < b.cfg.LowWatermark {
		atomic.StoreInt32(&b.isPressured, 0)
		b.adjustRate(false)
	}
	return true
}

func (b *Backpressure) adjustRate(increase bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	current := atomic.LoadInt64(&b.currentRate)
	maxRate := b.cfg.MaxRate.Nanoseconds()
	minRate := b.cfg.MinRate.Nanoseconds()

	var next int64
	if increase {
		next = current * 2
		if next > maxRate {
			next = maxRate
		}
	} else {
		next = current / 2
		if next < minRate {
			next = minRate
		}
	}
	atomic.StoreInt64(&b.currentRate, next)
}

// IsPressured reports whether the controller currently considers the queue
// under pressure.
func (b *Backpressure) IsPressured() bool {
	return atomic.LoadInt32(&b.isPressured) == 1
}

// RecordProcessed records that one item finished processing.
func (b *Backpressure) RecordProcessed() {
	atomic.AddInt64(&b.itemsProcessed, 1)
}

// PressureEvents returns how many times the controller has transitioned
// into a pressured state.
func (b *Backpressure) PressureEvents() int64 {
	return atomic.LoadInt64(&b.pressureEvents)
}
