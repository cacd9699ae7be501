// Package store provides persisted task metadata storage. Durable transfers
// attach their metadata here at submission time so it survives process
// restarts between submission and completion.
package store

import (
	"context"
	"time"

	"github.com/driftware/hookrelay/pkg/wire"
)

// Task states.
const (
	StatePending   = "pending"
	StateCompleted = "completed"
)

// TaskMeta is the metadata attached to a durable transfer: the original
// request, its handler kind, and the built wire request used to (re)drive the
// transfer. Exactly one instance exists per task; it is destroyed when the
// task completes or is explicitly discarded.
type TaskMeta struct {
	TaskID      string           `json:"taskId"`
	Kind        string           `json:"kind"`
	Request     wire.Request     `json:"request"`
	WireRequest wire.WireRequest `json:"wireRequest"`
	State       string           `json:"state"`
	Created     time.Time        `json:"created"`
}

// TaskStore persists task metadata for the lifetime of a durable transfer.
type TaskStore interface {
	// InsertTask records metadata for a newly created task.
	InsertTask(ctx context.Context, meta *TaskMeta) error
	// GetTask returns the metadata for a task, or nil when none is recorded.
	GetTask(ctx context.Context, taskID string) (*TaskMeta, error)
	// DeleteTask discards a task's metadata. Deleting an absent task is not an error.
	DeleteTask(ctx context.Context, taskID string) error
	// ListPending returns metadata for all tasks not yet completed, oldest first.
	ListPending(ctx context.Context) ([]TaskMeta, error)
}
