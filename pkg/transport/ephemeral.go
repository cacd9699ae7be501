package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/driftware/hookrelay/pkg/wire"
)

const ephemeralLogPrefix = "transport:ephemeral"

// Ephemeral uploads wire requests with no durability guarantee: an exchange
// is lost if the process terminates mid-flight. Independent ephemeral sends
// never interact with each other or with the task store.
type Ephemeral struct {
	client *http.Client
}

// NewEphemeral creates an Ephemeral transport. Pass nil to use a default
// client with a 60s timeout.
func NewEphemeral(client *http.Client) *Ephemeral {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Ephemeral{client: client}
}

// Do uploads the wire request and returns the status code and full response
// body. Transport-layer errors (network, TLS, timeout) are surfaced unchanged.
func (e *Ephemeral) Do(ctx context.Context, wreq *wire.WireRequest) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, wreq.Method, wreq.URL, bytes.NewReader(wreq.Body))
	if err != nil {
		return 0, nil, fmt.Errorf("%s - build request: %w", ephemeralLogPrefix, err)
	}
	for k, vs := range wreq.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}
