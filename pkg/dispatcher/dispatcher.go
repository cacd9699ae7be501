package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/driftware/hookrelay/pkg/relay"
	"github.com/driftware/hookrelay/pkg/wire"
)

const logPrefix = "dispatcher:dispatch"

// Dispatcher routes COMMS requests to coordinator operations.
type Dispatcher struct {
	coordinator *relay.Coordinator
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(coord *relay.Coordinator) *Dispatcher {
	return &Dispatcher{coordinator: coord}
}

// Dispatch routes a request to the appropriate coordinator operation and
// returns a response.
func (d *Dispatcher) Dispatch(ctx context.Context, req *RelayRequest) *RelayResponse {
	slog.Debug(fmt.Sprintf("%s - method=%s id=%s", logPrefix, req.Method, req.ID))

	switch req.Method {
	case "send":
		return d.handleSend(ctx, req)
	case "sendEphemeral":
		return d.handleSendEphemeral(ctx, req)
	case "status":
		return d.handleStatus(req)
	case "health":
		return d.handleHealth(ctx, req)
	default:
		return &RelayResponse{
			ID: req.ID,
			Ok: false,
			Error: &ErrorDetail{
				Code:      "METHOD_NOT_FOUND",
				Message:   fmt.Sprintf("Unknown method: %s", req.Method),
				Retryable: false,
			},
		}
	}
}

func (d *Dispatcher) handleSend(ctx context.Context, req *RelayRequest) *RelayResponse {
	var input SendInput
	if err := json.Unmarshal(req.Params, &input); err != nil {
		return errorResponse(req.ID, "INVALID_ARGUMENT", "Failed to parse send params", false)
	}

	waiter := d.coordinator.Send(wire.Request{Kind: input.Kind, Payload: input.Payload}, input.Kind)

	if input.WaitMs <= 0 {
		// Already-failed submissions (unregistered kind, no session) report
		// their error instead of a submitted state.
		select {
		case <-waiter.Done():
			if err := waiter.Err(); err != nil {
				return relayErrorToResponse(req.ID, err)
			}
			return &RelayResponse{ID: req.ID, Ok: true, Result: SendOutput{TaskID: waiter.TaskID(), State: StateCompleted}}
		default:
			return &RelayResponse{ID: req.ID, Ok: true, Result: SendOutput{TaskID: waiter.TaskID(), State: StateSubmitted}}
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, time.Duration(input.WaitMs)*time.Millisecond)
	defer cancel()
	if err := waiter.Wait(waitCtx); err != nil {
		if waitCtx.Err() != nil {
			return &RelayResponse{ID: req.ID, Ok: true, Result: SendOutput{TaskID: waiter.TaskID(), State: StateSubmitted}}
		}
		return relayErrorToResponse(req.ID, err)
	}
	return &RelayResponse{ID: req.ID, Ok: true, Result: SendOutput{TaskID: waiter.TaskID(), State: StateCompleted}}
}

func (d *Dispatcher) handleSendEphemeral(ctx context.Context, req *RelayRequest) *RelayResponse {
	var input SendInput
	if err := json.Unmarshal(req.Params, &input); err != nil {
		return errorResponse(req.ID, "INVALID_ARGUMENT", "Failed to parse sendEphemeral params", false)
	}

	value, err := d.coordinator.SendEphemeral(ctx, wire.Request{Kind: input.Kind, Payload: input.Payload})
	if err != nil {
		return relayErrorToResponse(req.ID, err)
	}
	return &RelayResponse{ID: req.ID, Ok: true, Result: value}
}

func (d *Dispatcher) handleStatus(req *RelayRequest) *RelayResponse {
	return &RelayResponse{ID: req.ID, Ok: true, Result: d.coordinator.Status()}
}

func (d *Dispatcher) handleHealth(ctx context.Context, req *RelayRequest) *RelayResponse {
	if err := d.coordinator.Health(ctx); err != nil {
		return errorResponse(req.ID, "UNHEALTHY", err.Error(), true)
	}
	return &RelayResponse{ID: req.ID, Ok: true, Result: map[string]string{"status": "ok"}}
}

// --- helpers ---

func errorResponse(id, code, message string, retryable bool) *RelayResponse {
	return &RelayResponse{
		ID: id,
		Ok: false,
		Error: &ErrorDetail{
			Code:      code,
			Message:   message,
			Retryable: retryable,
		},
	}
}

func relayErrorToResponse(id string, err error) *RelayResponse {
	code := relay.ErrCode(err)
	if code == "" {
		return errorResponse(id, relay.CodeInternalError, err.Error(), true)
	}
	retryable := code == relay.CodeTransportError || code == relay.CodeInternalError
	resp := &RelayResponse{
		ID: id,
		Ok: false,
		Error: &ErrorDetail{
			Code:      code,
			Message:   err.Error(),
			Retryable: retryable,
		},
	}
	if rerr, ok := err.(*relay.RelayError); ok {
		resp.Error.Message = rerr.Message
		resp.Error.Details = rerr.Details
	}
	return resp
}
