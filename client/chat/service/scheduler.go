package service

import (
	"context"
	"sync/atomic"
	"time"

	"msg_client/client/common/metrics"
)

// Task is the cancellation handle of one recurring job.
type Task struct {
	name    string
	cancel  context.CancelFunc
	done    chan struct{}
	stopped atomic.Bool
}

// Stop cancels the job and its in-flight tick. Safe on nil and when called
// more than once. It does not wait for the goroutine to exit; use Done.
func (t *Task) Stop() {
	if t == nil {
		return
	}
	if t.stopped.CompareAndSwap(false, true) {
		t.cancel()
	}
}

func (t *Task) Stopped() bool {
	return t == nil || t.stopped.Load()
}

// Done is closed once the job goroutine has returned.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

func (t *Task) Name() string {
	return t.name
}

// Scheduler starts recurring jobs. fn runs on the job's own goroutine, one
// tick at a time; ticks that elapse while fn is running are dropped.
type Scheduler interface {
	Every(ctx context.Context, name string, period time.Duration, fn func(ctx context.Context)) *Task
}

type tickerScheduler struct{}

func NewScheduler() Scheduler {
	return tickerScheduler{}
}

func (tickerScheduler) Every(ctx context.Context, name string, period time.Duration, fn func(ctx context.Context)) *Task {
	taskCtx, cancel := context.WithCancel(ctx)
	t := &Task{name: name, cancel: cancel, done: make(chan struct{})}

	metrics.ActiveTimers.WithLabelValues(name).Inc()
	go func() {
		defer close(t.done)
		defer metrics.ActiveTimers.WithLabelValues(name).Dec()
		// a parent cancellation stops the task as well
		defer t.stopped.Store(true)

		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-taskCtx.Done():
				return
			case <-ticker.C:
				if taskCtx.Err() != nil {
					return
				}
				metrics.RefreshTicksTotal.WithLabelValues(name).Inc()
				fn(taskCtx)
			}
		}
	}()
	return t
}
