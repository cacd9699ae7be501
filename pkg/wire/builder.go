package wire

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Builder constructs wire requests against a single destination endpoint.
type Builder struct {
	BaseURL   string
	AuthToken string
	UserAgent string
}

// NewBuilder creates a Builder for the given endpoint.
func NewBuilder(baseURL, authToken string) *Builder {
	return &Builder{BaseURL: baseURL, AuthToken: authToken, UserAgent: "hookrelay"}
}

// Build serializes req into a WireRequest. The payload bytes are the JSON
// encoding of the request itself so they can be decoded back byte-identical
// after a trip through the task store. A payload that is not valid JSON fails
// with MALFORMED_PAYLOAD before any network activity.
func (b *Builder) Build(req Request) (*WireRequest, error) {
	if req.Kind == "" {
		return nil, &Error{Code: CodeMalformedPayload, Message: "request kind is required"}
	}
	if len(req.Payload) > 0 && !json.Valid(req.Payload) {
		return nil, &Error{Code: CodeMalformedPayload, Message: fmt.Sprintf("payload for kind %q is not valid JSON", req.Kind)}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, &Error{Code: CodeMalformedPayload, Message: err.Error()}
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	if b.UserAgent != "" {
		header.Set("User-Agent", b.UserAgent)
	}
	if b.AuthToken != "" {
		header.Set("Authorization", "Bearer "+b.AuthToken)
	}

	url := strings.TrimSuffix(b.BaseURL, "/") + "/hooks/" + req.Kind
	return &WireRequest{
		Method: http.MethodPost,
		URL:    url,
		Header: header,
		Body:   body,
	}, nil
}

// DecodeBuiltPayload decodes the payload bytes produced by Build back into a
// Request. Used by durable transports when re-driving persisted tasks.
func DecodeBuiltPayload(body []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return Request{}, &Error{Code: CodeMalformedPayload, Message: err.Error()}
	}
	return req, nil
}
