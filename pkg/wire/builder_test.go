package wire

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestBuild_RoundTrip(t *testing.T) {
	b := NewBuilder("https://api.example.com/", "tok-123")
	req := Request{Kind: "location.update", Payload: json.RawMessage(`{"lat":1.5,"lng":-2.25}`)}

	wreq, err := b.Build(req)
	if err != nil {
		t.Fatalf("wire:builder_test - Build failed: %v", err)
	}
	if wreq.Method != "POST" {
		t.Errorf("wire:builder_test - expected POST, got %s", wreq.Method)
	}
	if wreq.URL != "https://api.example.com/hooks/location.update" {
		t.Errorf("wire:builder_test - unexpected URL %s", wreq.URL)
	}
	if got := wreq.Header.Get("Authorization"); got != "Bearer tok-123" {
		t.Errorf("wire:builder_test - unexpected auth header %q", got)
	}

	// The built payload must decode back byte-identical.
	decoded, err := DecodeBuiltPayload(wreq.Body)
	if err != nil {
		t.Fatalf("wire:builder_test - DecodeBuiltPayload failed: %v", err)
	}
	if decoded.Kind != req.Kind {
		t.Errorf("wire:builder_test - kind mutated in transit: %s", decoded.Kind)
	}
	if !bytes.Equal(decoded.Payload, req.Payload) {
		t.Errorf("wire:builder_test - payload mutated in transit: %s != %s", decoded.Payload, req.Payload)
	}
}

func TestBuild_InvalidInputs(t *testing.T) {
	b := NewBuilder("https://api.example.com", "")

	tests := []struct {
		name string
		req  Request
	}{
		{"missing kind", Request{Payload: json.RawMessage(`{}`)}},
		{"invalid payload JSON", Request{Kind: "message", Payload: json.RawMessage(`{"broken`)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Build(tt.req)
			if err == nil {
				t.Fatal("wire:builder_test - expected error")
			}
			if ErrorCode(err) != CodeMalformedPayload {
				t.Errorf("wire:builder_test - expected MALFORMED_PAYLOAD, got %v", err)
			}
		})
	}
}
