// Package wire defines outbound request values, wire-format construction,
// and the status-code-driven response decoding contract.
package wire

import (
	"encoding/json"
	"net/http"
)

// Request is an immutable outbound request value. Kind discriminates which
// handler processes the eventual response; Payload is an opaque JSON document
// produced by the caller and carried unmodified to the wire.
type Request struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WireRequest is a fully built HTTP request description, ready to hand to a
// transport. It is serializable so durable transports can persist it across
// process restarts.
type WireRequest struct {
	Method string      `json:"method"`
	URL    string      `json:"url"`
	Header http.Header `json:"header,omitempty"`
	Body   []byte      `json:"body,omitempty"`
}
