package relay

import (
	"context"
	"encoding/json"

	"github.com/driftware/hookrelay/pkg/notify"
	"github.com/driftware/hookrelay/pkg/session"
	"github.com/driftware/hookrelay/pkg/wire"
)

// KindUnhandled is the handler kind used for requests submitted with no
// explicit kind. A no-op handler is registered for it at construction time.
const KindUnhandled = "unhandled"

// Result is the normalized terminal outcome of a transfer handed to handlers:
// either a decoded JSON value or the error that terminated the transfer.
type Result struct {
	Value json.RawMessage
	Err   error
}

// HandlerOutcome is what a handler returns after processing a result. It may
// carry a notification to post as a side effect.
type HandlerOutcome struct {
	Notification *notify.Notification
}

// Handler processes the terminal result of a durable send of its kind.
type Handler interface {
	Handle(ctx context.Context, req wire.Request, res Result) (HandlerOutcome, error)
}

// HandlerFactory constructs a handler with the connection context current at
// dispatch time. The connection may be nil when the session lapsed between
// submission and completion.
type HandlerFactory func(conn *session.Connection) Handler

// ReplacePolicy decides whether a newly submitted request supersedes an older
// in-flight request of the same kind. The decision must be pure.
type ReplacePolicy interface {
	ShouldReplace(newReq, oldReq wire.Request) bool
}

// ReplacePolicyFunc adapts a function to the ReplacePolicy interface.
type ReplacePolicyFunc func(newReq, oldReq wire.Request) bool

// ShouldReplace calls the function.
func (f ReplacePolicyFunc) ShouldReplace(newReq, oldReq wire.Request) bool {
	return f(newReq, oldReq)
}

// HandlerRegistration binds a handler factory to an optional replacement
// policy. A nil Policy never replaces.
type HandlerRegistration struct {
	Factory HandlerFactory
	Policy  ReplacePolicy
}

// unhandledHandler resolves successfully with no outcome, so requests without
// an explicit kind still complete.
type unhandledHandler struct{}

func (unhandledHandler) Handle(_ context.Context, _ wire.Request, _ Result) (HandlerOutcome, error) {
	return HandlerOutcome{}, nil
}
