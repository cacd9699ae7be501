// Package transport performs HTTP uploads for the relay. Two adapters exist:
// an ephemeral one with no persistence across process restarts, and a durable
// one whose transfers are backed by the task store and report completion via
// asynchronous delegate callbacks.
package transport

// Outcome is the terminal result of a durable transfer.
type Outcome struct {
	StatusCode int
	Cancelled  bool
	Err        error
}

// Delegate receives asynchronous transfer callbacks from the durable
// transport. TaskData may be called multiple times per task (append-only
// chunks); TaskDone is called exactly once per started task.
// EventsDelivered fires when the transport has finished delivering all
// pending events following a NotifyWhenDrained request.
type Delegate interface {
	TaskData(taskID string, chunk []byte)
	TaskDone(taskID string, outcome Outcome)
	EventsDelivered()
}
