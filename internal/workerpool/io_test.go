package workerpool

import (
	"sync/atomic"
	"testing"
)

func TestIOPoolRunsSubmittedTasks(t *testing.T) {
	pool, err := NewIOPool(DefaultIOPoolOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Shutdown()

	var count int64
	for i := 0; i < 50; i++ {
		if err := pool.Submit(func() { atomic.AddInt64(&count, 1) }); err != nil {
			t.Fatal(err)
		}
	}
	pool.Wait()

	if atomic.LoadInt64(&count) != 50 {
		t.Fatalf("expected 50 completions, got %d", count)
	}
	if pool.Stats().Completed != 50 {
		t.Fatalf("expected stats to report 50 completions, got %d", pool.Stats().Completed)
	}
}

func TestIOPoolSubmitWithErrorTracksFailures(t *testing.T) {
	pool, err := NewIOPool(DefaultIOPoolOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Shutdown()

	_ = pool.SubmitWithError(func() error { return nil })
	_ = pool.SubmitWithError(func() error { return assertError{} })
	pool.Wait()

	if pool.Stats().Errors != 1 {
		t.Fatalf("expected 1 recorded error, got %d", pool.Stats().Errors)
	}
}

type assertError struct{}

func (assertError) Error() string { return "boom" }
