package relay

import (
	"context"
	"sync"
)

// Waiter is a single-resolution handle for a caller awaiting a durable send's
// terminal result. It resolves exactly once: success, failure, or forwarded to
// a superseding task's result.
type Waiter struct {
	taskID string
	done   chan struct{}
	once   sync.Once
	err    error
}

func newWaiter(taskID string) *Waiter {
	return &Waiter{taskID: taskID, done: make(chan struct{})}
}

// failedWaiter returns a waiter already resolved with err.
func failedWaiter(err error) *Waiter {
	w := newWaiter("")
	w.resolve(err)
	return w
}

// TaskID returns the transport task identifier this waiter is attached to, or
// "" for waiters that never reached submission.
func (w *Waiter) TaskID() string {
	return w.taskID
}

// resolve records the terminal result. Later calls are no-ops.
func (w *Waiter) resolve(err error) {
	w.once.Do(func() {
		w.err = err
		close(w.done)
	})
}

// chainTo forwards src's eventual result into w. Used when w's task is
// superseded: the original caller observes the superseding task's outcome.
func (w *Waiter) chainTo(src *Waiter) {
	go func() {
		<-src.done
		w.resolve(src.err)
	}()
}

// Done is closed when the waiter has resolved.
func (w *Waiter) Done() <-chan struct{} {
	return w.done
}

// Err returns the terminal result. Valid only after Done is closed.
func (w *Waiter) Err() error {
	return w.err
}

// Wait blocks until the waiter resolves or ctx is done.
func (w *Waiter) Wait(ctx context.Context) error {
	select {
	case <-w.done:
		return w.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
