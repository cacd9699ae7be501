package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/driftware/hookrelay/pkg/wire"
)

const repoLogPrefix = "store:repository"

// Repository is the Postgres-backed TaskStore.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertTask records metadata for a newly created task.
func (r *Repository) InsertTask(ctx context.Context, meta *TaskMeta) error {
	slog.Debug(fmt.Sprintf("%s - InsertTask id=%s kind=%s", repoLogPrefix, meta.TaskID, meta.Kind))

	reqJSON, err := json.Marshal(meta.Request)
	if err != nil {
		return fmt.Errorf("%s - encode request: %w", repoLogPrefix, err)
	}
	wreqJSON, err := json.Marshal(meta.WireRequest)
	if err != nil {
		return fmt.Errorf("%s - encode wire request: %w", repoLogPrefix, err)
	}

	state := meta.State
	if state == "" {
		state = StatePending
	}
	created := meta.Created
	if created.IsZero() {
		created = time.Now().UTC()
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO relay_tasks (task_id, kind, request, wire_request, state, created)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		meta.TaskID, meta.Kind, reqJSON, wreqJSON, state, created)
	if err != nil {
		return fmt.Errorf("%s - insert task %s: %w", repoLogPrefix, meta.TaskID, err)
	}
	return nil
}

// GetTask returns the metadata for a task, or nil when none is recorded.
func (r *Repository) GetTask(ctx context.Context, taskID string) (*TaskMeta, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT task_id, kind, request, wire_request, state, created
		 FROM relay_tasks
		 WHERE task_id = $1
		 LIMIT 1`, taskID)

	meta, err := scanTask(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s - get task %s: %w", repoLogPrefix, taskID, err)
	}
	return meta, nil
}

// DeleteTask discards a task's metadata. Deleting an absent task is not an error.
func (r *Repository) DeleteTask(ctx context.Context, taskID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM relay_tasks WHERE task_id = $1`, taskID)
	if err != nil {
		return fmt.Errorf("%s - delete task %s: %w", repoLogPrefix, taskID, err)
	}
	return nil
}

// ListPending returns metadata for all tasks not yet completed, oldest first.
func (r *Repository) ListPending(ctx context.Context) ([]TaskMeta, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT task_id, kind, request, wire_request, state, created
		 FROM relay_tasks
		 WHERE state = $1
		 ORDER BY created ASC`, StatePending)
	if err != nil {
		return nil, fmt.Errorf("%s - list pending: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	var out []TaskMeta
	for rows.Next() {
		meta, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("%s - scan pending task: %w", repoLogPrefix, err)
		}
		out = append(out, *meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s - list pending rows: %w", repoLogPrefix, err)
	}
	return out, nil
}

// rowScanner covers both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*TaskMeta, error) {
	var (
		meta     TaskMeta
		reqJSON  []byte
		wreqJSON []byte
	)
	if err := row.Scan(&meta.TaskID, &meta.Kind, &reqJSON, &wreqJSON, &meta.State, &meta.Created); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(reqJSON, &meta.Request); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	var wreq wire.WireRequest
	if err := json.Unmarshal(wreqJSON, &wreq); err != nil {
		return nil, fmt.Errorf("decode wire request: %w", err)
	}
	meta.WireRequest = wreq
	return &meta, nil
}
