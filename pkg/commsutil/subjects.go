package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	SubjectDispatch = "relay.dispatch.v1"
	SubjectNotify   = "relay.notify"
)

// BuildNotifySubject builds a granular notification subject for a handler kind.
func BuildNotifySubject(kind string) string {
	safe := strings.ReplaceAll(kind, ".", "_")
	return fmt.Sprintf("relay.notify.%s", safe)
}
