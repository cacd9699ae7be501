package main

import (
	"strings"
	"testing"
)

const mainTestPrefix = "cmd/relayctl:main_test"

func TestUsage_ContainsCommands(t *testing.T) {
	required := []string{"send", "ephemeral", "status", "health", "COMMS_URL"}
	for _, word := range required {
		if !strings.Contains(usage, word) {
			t.Errorf("%s - usage should contain %q", mainTestPrefix, word)
		}
	}
}

func TestNewRequestID_Unique(t *testing.T) {
	a := newRequestID()
	b := newRequestID()
	if a == "" || a == b {
		t.Errorf("%s - request IDs should be non-empty and distinct, got %q and %q", mainTestPrefix, a, b)
	}
}
