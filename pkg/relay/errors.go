package relay

import "github.com/driftware/hookrelay/pkg/wire"

// Error codes for relay-level failures. Wire-level codes (STATUS_ERROR,
// MALFORMED_RESPONSE, UNEXPECTED_TYPE, UNMAPPABLE_VALUE, MALFORMED_PAYLOAD)
// are defined in pkg/wire and pass through unchanged.
const (
	CodeNoActiveSession  = "NO_ACTIVE_SESSION"
	CodeUnregisteredKind = "UNREGISTERED_KIND"
	CodeTransportError   = "TRANSPORT_ERROR"
	CodeInternalError    = "INTERNAL_ERROR"
)

// RelayError is a structured error from the relay.
type RelayError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *RelayError) Error() string {
	return e.Code + ": " + e.Message
}

// NewRelayError creates a new RelayError.
func NewRelayError(code, message string) *RelayError {
	return &RelayError{Code: code, Message: message}
}

// ErrCode extracts the structured code from a relay or wire error, or "" when
// err carries no code.
func ErrCode(err error) string {
	if err == nil {
		return ""
	}
	if rerr, ok := err.(*RelayError); ok {
		return rerr.Code
	}
	return wire.ErrorCode(err)
}
