package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/driftware/hookrelay/pkg/store"
)

const durableLogPrefix = "transport:durable"

const dataChunkSize = 32 * 1024

// Durable runs transfers whose metadata is persisted in the task store before
// any network activity, so they can be re-driven after a process restart.
// Completion is reported asynchronously through the Delegate.
type Durable struct {
	client *http.Client
	store  store.TaskStore

	mu             sync.Mutex
	delegate       Delegate
	inflight       map[string]context.CancelFunc
	created        map[string]bool
	cancelled      map[string]bool
	pending        int
	drainRequested bool
}

// NewDurable creates a Durable transport over the given task store. Pass nil
// for client to use a default with a 5 minute timeout (durable uploads may be
// large).
func NewDurable(ts store.TaskStore, client *http.Client) *Durable {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Durable{
		client:    client,
		store:     ts,
		inflight:  make(map[string]context.CancelFunc),
		created:   make(map[string]bool),
		cancelled: make(map[string]bool),
	}
}

// SetDelegate installs the completion delegate. Must be called before any
// task is created or resumed.
func (d *Durable) SetDelegate(del Delegate) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delegate = del
}

// CreateTask persists the task's metadata and registers it as pending. The
// transfer does not run until StartTask.
func (d *Durable) CreateTask(ctx context.Context, meta *store.TaskMeta) error {
	if err := d.store.InsertTask(ctx, meta); err != nil {
		return fmt.Errorf("%s - create task %s: %w", durableLogPrefix, meta.TaskID, err)
	}
	d.mu.Lock()
	d.created[meta.TaskID] = true
	d.pending++
	d.mu.Unlock()
	return nil
}

// StartTask begins the transfer for a previously created task. It returns
// immediately; the outcome arrives through the delegate.
func (d *Durable) StartTask(taskID string) {
	go d.run(taskID)
}

// CancelTask requests cooperative cancellation. A task that already delivered
// bytes still terminates with a cancelled outcome; a task unknown to this
// process (e.g. a discovered orphan) is reported cancelled directly so its
// store row can be discarded.
func (d *Durable) CancelTask(taskID string) {
	d.mu.Lock()
	if cancel, ok := d.inflight[taskID]; ok {
		d.mu.Unlock()
		cancel()
		return
	}
	if d.created[taskID] {
		// Created but not yet running: flag it so run() terminates immediately.
		d.cancelled[taskID] = true
		d.mu.Unlock()
		return
	}
	del := d.delegate
	d.mu.Unlock()

	slog.Debug(fmt.Sprintf("%s - cancelling unknown task %s", durableLogPrefix, taskID))
	if del != nil {
		del.TaskDone(taskID, Outcome{Cancelled: true})
	}
}

// ListTasks returns the identifiers of all tasks currently known to the
// transport. The inventory is read from the store and may lag tasks submitted
// concurrently.
func (d *Durable) ListTasks(ctx context.Context) ([]string, error) {
	metas, err := d.store.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s - list tasks: %w", durableLogPrefix, err)
	}
	seen := make(map[string]bool, len(metas))
	ids := make([]string, 0, len(metas))
	for _, m := range metas {
		seen[m.TaskID] = true
		ids = append(ids, m.TaskID)
	}
	d.mu.Lock()
	for id := range d.created {
		if !seen[id] {
			ids = append(ids, id)
		}
	}
	d.mu.Unlock()
	return ids, nil
}

// Resume re-drives all pending tasks found in the store. Call once at
// startup, after the delegate is installed.
func (d *Durable) Resume(ctx context.Context) error {
	metas, err := d.store.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("%s - resume: %w", durableLogPrefix, err)
	}
	for _, m := range metas {
		d.mu.Lock()
		if d.created[m.TaskID] {
			d.mu.Unlock()
			continue
		}
		d.created[m.TaskID] = true
		d.pending++
		d.mu.Unlock()
		slog.Info(fmt.Sprintf("%s - Resuming task %s kind=%s", durableLogPrefix, m.TaskID, m.Kind))
		d.StartTask(m.TaskID)
	}
	return nil
}

// NotifyWhenDrained requests an EventsDelivered callback once all pending
// deliveries have completed. Fires immediately when nothing is pending.
func (d *Durable) NotifyWhenDrained() {
	d.mu.Lock()
	if d.pending == 0 {
		del := d.delegate
		d.mu.Unlock()
		if del != nil {
			del.EventsDelivered()
		}
		return
	}
	d.drainRequested = true
	d.mu.Unlock()
}

func (d *Durable) run(taskID string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d.mu.Lock()
	if d.cancelled[taskID] {
		d.mu.Unlock()
		d.finish(taskID, Outcome{Cancelled: true})
		return
	}
	d.inflight[taskID] = cancel
	del := d.delegate
	d.mu.Unlock()

	meta, err := d.store.GetTask(ctx, taskID)
	if err != nil {
		d.finish(taskID, Outcome{Err: fmt.Errorf("%s - load task %s: %w", durableLogPrefix, taskID, err)})
		return
	}
	if meta == nil {
		d.finish(taskID, Outcome{Err: fmt.Errorf("%s - task %s has no metadata", durableLogPrefix, taskID)})
		return
	}

	wreq := meta.WireRequest
	req, err := http.NewRequestWithContext(ctx, wreq.Method, wreq.URL, bytes.NewReader(wreq.Body))
	if err != nil {
		d.finish(taskID, Outcome{Err: err})
		return
	}
	for k, vs := range wreq.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() == context.Canceled {
			d.finish(taskID, Outcome{Cancelled: true})
			return
		}
		d.finish(taskID, Outcome{Err: err})
		return
	}
	defer resp.Body.Close()

	buf := make([]byte, dataChunkSize)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 && del != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			del.TaskData(taskID, chunk)
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				break
			}
			if ctx.Err() == context.Canceled {
				d.finish(taskID, Outcome{Cancelled: true})
				return
			}
			d.finish(taskID, Outcome{Err: rerr})
			return
		}
	}

	d.finish(taskID, Outcome{StatusCode: resp.StatusCode})
}

// finish delivers the terminal outcome and releases the task's slot in the
// pending count, firing EventsDelivered when a requested drain completes.
func (d *Durable) finish(taskID string, out Outcome) {
	d.mu.Lock()
	delete(d.inflight, taskID)
	delete(d.created, taskID)
	delete(d.cancelled, taskID)
	del := d.delegate
	d.mu.Unlock()

	if del != nil {
		del.TaskDone(taskID, out)
	}

	d.mu.Lock()
	if d.pending > 0 {
		d.pending--
	}
	fire := d.pending == 0 && d.drainRequested
	if fire {
		d.drainRequested = false
	}
	d.mu.Unlock()

	if fire && del != nil {
		del.EventsDelivered()
	}
}
