package wire

import "fmt"

// Error codes for wire-level failures.
const (
	CodeStatusError       = "STATUS_ERROR"
	CodeMalformedResponse = "MALFORMED_RESPONSE"
	CodeUnexpectedType    = "UNEXPECTED_TYPE"
	CodeUnmappableValue   = "UNMAPPABLE_VALUE"
	CodeMalformedPayload  = "MALFORMED_PAYLOAD"
)

// Error holds structured wire-level error information.
type Error struct {
	Code       string
	Message    string
	StatusCode int
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrorCode extracts the wire error code from err, or "" if err is not a wire error.
func ErrorCode(err error) string {
	if werr, ok := err.(*Error); ok {
		return werr.Code
	}
	return ""
}
