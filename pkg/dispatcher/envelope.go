// Package dispatcher routes incoming COMMS messages to relay operations.
package dispatcher

import "encoding/json"

// RelayRequest is the JSON envelope for incoming COMMS relay requests.
type RelayRequest struct {
	ID     string             `json:"id"`
	Method string             `json:"method"`
	Params json.RawMessage    `json:"params"`
	Ctx    *InvocationContext `json:"ctx,omitempty"`
}

// RelayResponse is the JSON envelope for COMMS relay responses.
type RelayResponse struct {
	ID     string       `json:"id"`
	Ok     bool         `json:"ok"`
	Result interface{}  `json:"result,omitempty"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail holds structured error information.
type ErrorDetail struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	Retryable bool        `json:"retryable"`
}

// InvocationContext holds context from the caller.
type InvocationContext struct {
	UserID        string `json:"userId,omitempty"`
	RequestID     string `json:"requestId,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
	TimeoutMs     int    `json:"timeoutMs,omitempty"`
}

// SendInput holds parameters for the send and sendEphemeral methods.
type SendInput struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
	// WaitMs optionally blocks the response until the durable task reaches a
	// terminal state, bounded by this many milliseconds.
	WaitMs int `json:"waitMs,omitempty"`
}

// SendOutput holds the result of the send method.
type SendOutput struct {
	TaskID string `json:"taskId"`
	State  string `json:"state"`
}

// Send states reported to callers.
const (
	StateSubmitted = "submitted"
	StateCompleted = "completed"
)
