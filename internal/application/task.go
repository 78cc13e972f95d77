package application

import (
	"context"
	"fmt"
	"sync"

	"gitlab.com/timkado/api/post-loader-service/internal/domain"
	"gitlab.com/timkado/api/post-loader-service/pkg/safego"
)

// CancellableTask guards the completion of a single asynchronous load.
// Whichever of Complete or Cancel reaches the completion slot first wins; the
// other becomes a no-op, so the completion is delivered at most once.
type CancellableTask[T any] struct {
	mu         sync.Mutex
	completion func(domain.Result[T])
	wrapped    func()
	cancelled  bool
}

// NewCancellableTask returns a task that will deliver to completion.
func NewCancellableTask[T any](completion func(domain.Result[T])) *CancellableTask[T] {
	return &CancellableTask[T]{completion: completion}
}

// SetWrapped registers the handle that Cancel forwards to. If the task was
// already cancelled the handle is invoked immediately.
func (t *CancellableTask[T]) SetWrapped(cancel func()) {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return
	}
	t.wrapped = cancel
	t.mu.Unlock()
}

// Complete delivers result unless the task was cancelled or already completed.
func (t *CancellableTask[T]) Complete(result domain.Result[T]) {
	t.mu.Lock()
	completion := t.completion
	t.completion = nil
	t.mu.Unlock()

	if completion != nil {
		completion(result)
	}
}

// Cancel is idempotent.
func (t *CancellableTask[T]) Cancel() {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return
	}
	t.cancelled = true
	t.completion = nil
	wrapped := t.wrapped
	t.wrapped = nil
	t.mu.Unlock()

	if wrapped != nil {
		wrapped()
	}
}

// Cancelled reports whether Cancel has been called.
func (t *CancellableTask[T]) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Await runs a callback-style load and blocks until it delivers or ctx ends.
// When ctx ends first the task is cancelled and ctx.Err() is returned.
func Await[T any](ctx context.Context, start func(ctx context.Context, completion func(domain.Result[T])) domain.Task) (T, error) {
	done := make(chan domain.Result[T], 1)
	task := start(ctx, func(r domain.Result[T]) {
		done <- r
	})

	select {
	case r := <-done:
		return r.Value, r.Err
	case <-ctx.Done():
		if task != nil {
			task.Cancel()
		}
		var zero T
		return zero, ctx.Err()
	}
}

// runTask is the common body of every loader: it derives a cancellable context,
// runs work on a recovered goroutine and routes the outcome through the task.
func runTask[T any](ctx context.Context, logger domain.Logger, name string, completion func(domain.Result[T]), work func(ctx context.Context) domain.Result[T]) domain.Task {
	task := NewCancellableTask(completion)
	workCtx, cancel := context.WithCancel(ctx)
	task.SetWrapped(cancel)

	safego.ExecuteWithRecover(workCtx, logger, name, func() {
		defer cancel()
		result := work(workCtx)
		task.Complete(result)
	}, func(recovered any) {
		task.Complete(domain.Result[T]{Err: fmt.Errorf("%s panicked: %v", name, recovered)})
	})
	return task
}
