package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/driftware/hookrelay/pkg/notify"
	"github.com/driftware/hookrelay/pkg/relay"
	"github.com/driftware/hookrelay/pkg/session"
	"github.com/driftware/hookrelay/pkg/wire"
)

// KindWebhook is the handler kind for generic webhook deliveries submitted
// over the dispatch subject.
const KindWebhook = "webhook"

// registerHandlers installs the server's built-in handler set.
func registerHandlers(c *relay.Coordinator) {
	c.RegisterHandler(KindWebhook, relay.HandlerRegistration{
		Factory: func(conn *session.Connection) relay.Handler {
			return &webhookHandler{conn: conn}
		},
		Policy: dedupeKeyPolicy{},
	})
}

// webhookHandler emits a notification for every terminal webhook delivery.
type webhookHandler struct {
	conn *session.Connection
}

func (h *webhookHandler) Handle(_ context.Context, req wire.Request, res relay.Result) (relay.HandlerOutcome, error) {
	n := &notify.Notification{
		Kind:      req.Kind,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if res.Err != nil {
		n.Title = "webhook delivery failed"
		n.Body = res.Err.Error()
	} else {
		n.Title = "webhook delivered"
		n.Body = fmt.Sprintf("%d response bytes", len(res.Value))
	}
	return relay.HandlerOutcome{Notification: n}, nil
}

// dedupeKeyPolicy supersedes an older in-flight delivery when both payloads
// carry the same non-empty "dedupeKey" value: only the latest delivery for a
// key is worth completing.
type dedupeKeyPolicy struct{}

func (dedupeKeyPolicy) ShouldReplace(newReq, oldReq wire.Request) bool {
	newKey := dedupeKey(newReq.Payload)
	return newKey != "" && newKey == dedupeKey(oldReq.Payload)
}

func dedupeKey(payload json.RawMessage) string {
	var p struct {
		DedupeKey string `json:"dedupeKey"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return ""
	}
	return p.DedupeKey
}
