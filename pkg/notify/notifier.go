package notify

import "context"

// Notifier is the interface for posting notifications. Posting is
// fire-and-forget from the caller's perspective: failures are logged by the
// dispatch path, never propagated to waiters.
type Notifier interface {
	Post(ctx context.Context, n *Notification) error
}

// NoOpNotifier is a Notifier that does nothing (for in-process usage without
// a notification sink).
type NoOpNotifier struct{}

// Post is a no-op.
func (p *NoOpNotifier) Post(_ context.Context, _ *Notification) error {
	return nil
}

// CallbackNotifier is a Notifier that calls a callback function (for testing).
type CallbackNotifier struct {
	callback func(ctx context.Context, n *Notification) error
}

// NewCallbackNotifier creates a new CallbackNotifier.
func NewCallbackNotifier(cb func(ctx context.Context, n *Notification) error) *CallbackNotifier {
	return &CallbackNotifier{callback: cb}
}

// Post calls the callback.
func (p *CallbackNotifier) Post(ctx context.Context, n *Notification) error {
	return p.callback(ctx, n)
}
