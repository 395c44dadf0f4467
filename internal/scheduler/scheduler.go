// Package scheduler wraps time.Ticker loops in cancellable handles so that
// "no dangling interval" is checkable rather than a cleanup convention.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

var active atomic.Int64

// Active returns the number of running tasks process-wide.
func Active() int64 { return active.Load() }

type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Every runs fn now-aligned on the given interval until the task is cancelled
// or parent is done. fn must respect its context.
func Every(parent context.Context, interval time.Duration, fn func(ctx context.Context)) *Task {
	ctx, cancel := context.WithCancel(parent)
	t := &Task{cancel: cancel, done: make(chan struct{})}
	active.Add(1)

	go func() {
		defer func() {
			active.Add(-1)
			close(t.done)
		}()
		tick := time.NewTicker(interval)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				fn(ctx)
			}
		}
	}()
	return t
}

// Cancel stops the task and waits for its loop to exit. Idempotent.
func (t *Task) Cancel() {
	t.once.Do(func() {
		t.cancel()
		<-t.done
	})
}

// Running reports whether the task loop is still alive.
func (t *Task) Running() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}
