package relay

import (
	"context"
	"encoding/json"

	"github.com/driftware/hookrelay/pkg/wire"
)

// SendEphemeral uploads req with no durability guarantee and returns the
// decoded response value. Ephemeral sends never touch the task registry and
// run fully concurrently with each other and with durable sends.
// Transport-layer errors are surfaced unchanged; the status-code contract and
// decode failures surface as typed wire errors.
func (c *Coordinator) SendEphemeral(ctx context.Context, req wire.Request) (json.RawMessage, error) {
	conn := c.provider.CurrentConnection()
	if conn == nil {
		return nil, NewRelayError(CodeNoActiveSession, "no active session")
	}

	wreq, err := wire.NewBuilder(conn.BaseURL, conn.AuthToken).Build(req)
	if err != nil {
		return nil, err
	}

	status, body, err := c.ephemeral.Do(ctx, wreq)
	if err != nil {
		return nil, err
	}

	return wire.DecodeResponse(status, body)
}

// EphemeralObject sends req ephemerally and maps the response onto a single
// object of type T.
func EphemeralObject[T any](ctx context.Context, c *Coordinator, req wire.Request) (*T, error) {
	raw, err := c.SendEphemeral(ctx, req)
	if err != nil {
		return nil, err
	}
	return wire.DecodeObject[T](raw)
}

// EphemeralList sends req ephemerally and maps the response onto a list of
// objects of type T.
func EphemeralList[T any](ctx context.Context, c *Coordinator, req wire.Request) ([]T, error) {
	raw, err := c.SendEphemeral(ctx, req)
	if err != nil {
		return nil, err
	}
	return wire.DecodeList[T](raw)
}

// EphemeralVoid sends req ephemerally and discards the response value.
func EphemeralVoid(ctx context.Context, c *Coordinator, req wire.Request) error {
	_, err := c.SendEphemeral(ctx, req)
	return err
}
