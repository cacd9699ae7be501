package commsutil

import (
	"encoding/json"
	"fmt"
)

// EncodePayload serializes a value to JSON bytes for publishing on a COMMS
// subject.
func EncodePayload(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("commsutil:codec - encode payload: %w", err)
	}
	return data, nil
}

// DecodePayload deserializes JSON bytes received from a COMMS subject into
// the given target.
func DecodePayload(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("commsutil:codec - decode payload: %w", err)
	}
	return nil
}
