package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DecodeResponse applies the status-code contract: any non-2xx status is an
// error regardless of body content; a 2xx body must be valid JSON (an empty
// body decodes as JSON null).
func DecodeResponse(status int, body []byte) (json.RawMessage, error) {
	if status < 200 || status > 299 {
		return nil, &Error{
			Code:       CodeStatusError,
			Message:    fmt.Sprintf("unexpected status %d", status),
			StatusCode: status,
		}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(body) {
		return nil, &Error{Code: CodeMalformedResponse, Message: "response body is not valid JSON", StatusCode: status}
	}
	return json.RawMessage(body), nil
}

// Validatable lets decoded models enforce their required fields. A failed
// Validate surfaces as UNMAPPABLE_VALUE.
type Validatable interface {
	Validate() error
}

// DecodeObject maps a decoded value onto a single object of type T. A value
// that is not a JSON object fails with UNEXPECTED_TYPE; a value that does not
// satisfy T's schema fails with UNMAPPABLE_VALUE.
func DecodeObject[T any](raw json.RawMessage) (*T, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, &Error{Code: CodeUnexpectedType, Message: "expected a JSON object"}
	}
	var v T
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return nil, &Error{Code: CodeUnmappableValue, Message: err.Error()}
	}
	if err := validate(&v); err != nil {
		return nil, &Error{Code: CodeUnmappableValue, Message: err.Error()}
	}
	return &v, nil
}

// DecodeList maps a decoded value onto a list of objects of type T. A value
// that is not a JSON array fails with UNEXPECTED_TYPE; an element that does
// not satisfy T's schema fails with UNMAPPABLE_VALUE.
func DecodeList[T any](raw json.RawMessage) ([]T, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, &Error{Code: CodeUnexpectedType, Message: "expected a JSON array"}
	}
	var vs []T
	if err := json.Unmarshal(trimmed, &vs); err != nil {
		return nil, &Error{Code: CodeUnmappableValue, Message: err.Error()}
	}
	for i := range vs {
		if err := validate(&vs[i]); err != nil {
			return nil, &Error{Code: CodeUnmappableValue, Message: fmt.Sprintf("element %d: %v", i, err)}
		}
	}
	return vs, nil
}

func validate(v any) error {
	if val, ok := v.(Validatable); ok {
		return val.Validate()
	}
	return nil
}
