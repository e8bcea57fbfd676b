package tasks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/multimind-ai/multimind/internal/logger"
)

func TestSubmitRunsTask(t *testing.T) {
	e := NewExecutor(2, 16, time.Second, logger.NewNop())

	var ran atomic.Int32
	done := make(chan struct{})
	e.Submit("test", func(ctx context.Context) error {
		ran.Add(1)
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("task never ran")
	}
	if ran.Load() != 1 {
		t.Fatalf("expected 1 run, got %d", ran.Load())
	}
	e.Close()
}

func TestPanicAndErrorDoNotKillWorkers(t *testing.T) {
	e := NewExecutor(1, 16, time.Second, logger.NewNop())

	e.Submit("panics", func(ctx context.Context) error {
		panic("boom")
	})
	e.Submit("fails", func(ctx context.Context) error {
		return errors.New("nope")
	})

	done := make(chan struct{})
	e.Submit("after", func(ctx context.Context) error {
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker died after panic")
	}
	e.Close()
}

func TestCloseWaitsAndIsIdempotent(t *testing.T) {
	e := NewExecutor(2, 16, time.Second, logger.NewNop())

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		e.Submit("work", func(ctx context.Context) error {
			time.Sleep(10 * time.Millisecond)
			ran.Add(1)
			return nil
		})
	}

	e.Close()
	if ran.Load() != 5 {
		t.Fatalf("close returned before tasks finished: %d of 5", ran.Load())
	}
	// second close is a no-op
	e.Close()
}

func TestSubmitDropsWhenFull(t *testing.T) {
	e := NewExecutor(1, 1, time.Second, logger.NewNop())

	block := make(chan struct{})
	e.Submit("blocker", func(ctx context.Context) error {
		<-block
		return nil
	})
	// give the worker a beat to pick up the blocker
	time.Sleep(20 * time.Millisecond)

	var ran atomic.Int32
	// fills the buffer
	e.Submit("queued", func(ctx context.Context) error {
		ran.Add(1)
		return nil
	})
	// dropped, Submit must not block
	submitted := make(chan struct{})
	go func() {
		e.Submit("dropped", func(ctx context.Context) error {
			ran.Add(1)
			return nil
		})
		close(submitted)
	}()
	select {
	case <-submitted:
	case <-time.After(time.Second):
		t.Fatalf("submit blocked on a full queue")
	}

	close(block)
	e.Close()
	if ran.Load() != 1 {
		t.Fatalf("expected only the queued task to run, got %d", ran.Load())
	}
}
