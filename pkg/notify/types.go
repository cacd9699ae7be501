// Package notify defines notification content and dispatcher interfaces for
// handler side effects.
package notify

// Notification is a user-visible side effect emitted by a handler after a
// completed transfer.
type Notification struct {
	Kind      string            `json:"kind"`
	TaskID    string            `json:"taskId,omitempty"`
	Title     string            `json:"title"`
	Body      string            `json:"body,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	Timestamp string            `json:"timestamp"`
}
