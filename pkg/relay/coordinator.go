// Package relay implements the webhook dispatch and background-completion
// coordinator: ephemeral and durable send paths, handler and task registries,
// replacement of stale in-flight requests, response dispatch, and the
// wake-window completion gate.
package relay

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/driftware/hookrelay/pkg/notify"
	"github.com/driftware/hookrelay/pkg/session"
	"github.com/driftware/hookrelay/pkg/store"
	"github.com/driftware/hookrelay/pkg/transport"
	"github.com/driftware/hookrelay/pkg/wire"
)

const logPrefix = "relay:coordinator"

// DurableTransport is the durable transfer surface the coordinator drives.
// Satisfied by transport.Durable.
type DurableTransport interface {
	CreateTask(ctx context.Context, meta *store.TaskMeta) error
	StartTask(taskID string)
	CancelTask(taskID string)
	ListTasks(ctx context.Context) ([]string, error)
	NotifyWhenDrained()
}

// EphemeralTransport is the fire-and-forget upload surface. Satisfied by
// transport.Ephemeral.
type EphemeralTransport interface {
	Do(ctx context.Context, wreq *wire.WireRequest) (int, []byte, error)
}

// taskEntry is the task registry record for one in-flight durable transfer.
type taskEntry struct {
	buf     bytes.Buffer
	waiter  *Waiter
	chained bool
}

// Params holds dependencies for NewCoordinator.
type Params struct {
	Provider  session.Provider
	Durable   DurableTransport
	Ephemeral EphemeralTransport
	Store     store.TaskStore
	Notifier  notify.Notifier
}

// Coordinator owns the handler and task registries and implements the
// transport delegate. Create one per process and keep it alive for the
// process's entire life: the durable transport can deliver completions at
// arbitrary future wake-ups.
type Coordinator struct {
	provider  session.Provider
	durable   DurableTransport
	ephemeral EphemeralTransport
	store     store.TaskStore
	notifier  notify.Notifier

	mu       sync.Mutex
	handlers map[string]HandlerRegistration
	tasks    map[string]*taskEntry

	gate completionGate
	seq  atomic.Uint64
}

// NewCoordinator creates a Coordinator. A no-op handler for KindUnhandled is
// registered at construction.
func NewCoordinator(params Params) *Coordinator {
	notifier := params.Notifier
	if notifier == nil {
		notifier = &notify.NoOpNotifier{}
	}
	c := &Coordinator{
		provider:  params.Provider,
		durable:   params.Durable,
		ephemeral: params.Ephemeral,
		store:     params.Store,
		notifier:  notifier,
		handlers:  make(map[string]HandlerRegistration),
		tasks:     make(map[string]*taskEntry),
	}
	c.handlers[KindUnhandled] = HandlerRegistration{
		Factory: func(_ *session.Connection) Handler { return unhandledHandler{} },
	}
	return c
}

// RegisterHandler installs the handler registration for a kind. Registering
// the same kind twice is a programmer error and panics. Must be called before
// any request of that kind is dispatched.
func (c *Coordinator) RegisterHandler(kind string, reg HandlerRegistration) {
	if kind == "" || reg.Factory == nil {
		panic(fmt.Sprintf("%s - RegisterHandler requires a kind and a factory", logPrefix))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.handlers[kind]; exists {
		panic(fmt.Sprintf("%s - handler kind %q registered twice", logPrefix, kind))
	}
	c.handlers[kind] = reg
}

func (c *Coordinator) lookupHandler(kind string) (HandlerRegistration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	reg, ok := c.handlers[kind]
	return reg, ok
}

// Send dispatches req through the durable transport and returns a waiter for
// its terminal result. It never blocks past task creation. An empty kind maps
// to KindUnhandled; an unregistered kind fails immediately with zero network
// activity. Build failures after kind validation are routed through the
// response dispatcher so the handler still reacts and the waiter resolves.
func (c *Coordinator) Send(req wire.Request, kind string) *Waiter {
	if kind == "" {
		kind = KindUnhandled
	}
	if _, ok := c.lookupHandler(kind); !ok {
		slog.Warn(fmt.Sprintf("%s - Send rejected: no handler registered for kind %q", logPrefix, kind))
		return failedWaiter(NewRelayError(CodeUnregisteredKind, fmt.Sprintf("no handler registered for kind %q", kind)))
	}

	taskID := c.nextTaskID()
	waiter := newWaiter(taskID)

	conn := c.provider.CurrentConnection()
	if conn == nil {
		c.dispatchFailure(taskID, req, kind, waiter, NewRelayError(CodeNoActiveSession, "no active session"))
		return waiter
	}

	wreq, err := wire.NewBuilder(conn.BaseURL, conn.AuthToken).Build(req)
	if err != nil {
		c.dispatchFailure(taskID, req, kind, waiter, err)
		return waiter
	}

	meta := &store.TaskMeta{
		TaskID:      taskID,
		Kind:        kind,
		Request:     req,
		WireRequest: *wreq,
		State:       store.StatePending,
		Created:     time.Now().UTC(),
	}

	c.mu.Lock()
	c.tasks[taskID] = &taskEntry{waiter: waiter}
	c.mu.Unlock()

	if err := c.durable.CreateTask(context.Background(), meta); err != nil {
		c.mu.Lock()
		delete(c.tasks, taskID)
		c.mu.Unlock()
		c.dispatchFailure(taskID, req, kind, waiter, &RelayError{Code: CodeInternalError, Message: "create task failed", Details: err.Error()})
		return waiter
	}

	go func() {
		c.replaceStale(taskID, req, kind)
		c.durable.StartTask(taskID)
	}()

	return waiter
}

// replaceStale runs the replacement pass for a newly submitted task: every
// other in-flight task of the same kind whose policy says the new request
// supersedes it gets its waiter chained onto the new task's result and is
// cancelled. Tasks with no retrievable metadata are orphans and are cancelled
// unconditionally. Tasks submitted between the listing and the decision are
// not seen by this pass.
func (c *Coordinator) replaceStale(newID string, newReq wire.Request, kind string) {
	ctx := context.Background()
	ids, err := c.durable.ListTasks(ctx)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - replacement pass could not list tasks: %v", logPrefix, err))
		return
	}

	reg, _ := c.lookupHandler(kind)

	for _, id := range ids {
		if id == newID {
			continue
		}
		meta, err := c.store.GetTask(ctx, id)
		if err != nil {
			slog.Error(fmt.Sprintf("%s - replacement pass could not load task %s: %v", logPrefix, id, err))
			continue
		}
		if meta == nil {
			slog.Warn(fmt.Sprintf("%s - cancelling orphaned task %s (no metadata)", logPrefix, id))
			c.durable.CancelTask(id)
			continue
		}
		if meta.Kind != kind {
			continue
		}
		if reg.Policy == nil || !reg.Policy.ShouldReplace(newReq, meta.Request) {
			continue
		}

		c.mu.Lock()
		if entry, ok := c.tasks[id]; ok && entry.waiter != nil && !entry.chained {
			// Mark chained only once the forwarding subscription is installed.
			// When the superseding task is already gone (itself cancelled
			// before this pass ran), the entry stays unchained so the
			// cancelled terminal path still resolves its waiter.
			if newEntry, ok := c.tasks[newID]; ok {
				entry.chained = true
				entry.waiter.chainTo(newEntry.waiter)
			}
		}
		c.mu.Unlock()

		slog.Info(fmt.Sprintf("%s - task %s kind=%s superseded by %s", logPrefix, id, kind, newID))
		c.durable.CancelTask(id)
	}
}

// TaskData appends a delivered chunk to the task's accumulated buffer. A task
// unknown to the registry (resumed from a previous process) gets an entry
// with no waiter.
func (c *Coordinator) TaskData(taskID string, chunk []byte) {
	c.mu.Lock()
	entry, ok := c.tasks[taskID]
	if !ok {
		entry = &taskEntry{}
		c.tasks[taskID] = entry
	}
	entry.buf.Write(chunk)
	c.mu.Unlock()
}

// TaskDone processes a transfer's terminal outcome. The registry entry is
// popped exactly once regardless of success or failure; a cancelled outcome
// dispatches nothing because its waiter was chained by the replacement pass.
func (c *Coordinator) TaskDone(taskID string, out transport.Outcome) {
	c.mu.Lock()
	entry := c.tasks[taskID]
	delete(c.tasks, taskID)
	c.mu.Unlock()

	var body []byte
	var waiter *Waiter
	var chained bool
	if entry != nil {
		body = entry.buf.Bytes()
		waiter = entry.waiter
		chained = entry.chained
	}

	ctx := context.Background()

	if out.Cancelled {
		if err := c.store.DeleteTask(ctx, taskID); err != nil {
			slog.Error(fmt.Sprintf("%s - could not discard cancelled task %s: %v", logPrefix, taskID, err))
		}
		if waiter != nil && !chained {
			// Cancellation outside the replacement pass. Resolving here keeps
			// the invariant that no waiter is left permanently unresolved.
			waiter.resolve(NewRelayError(CodeInternalError, "task cancelled"))
		}
		slog.Debug(fmt.Sprintf("%s - task %s cancelled, dropped %d buffered bytes", logPrefix, taskID, len(body)))
		return
	}

	var result Result
	if out.Err != nil {
		result.Err = &RelayError{Code: CodeTransportError, Message: out.Err.Error()}
	} else {
		value, derr := wire.DecodeResponse(out.StatusCode, body)
		result = Result{Value: value, Err: derr}
	}

	meta, err := c.store.GetTask(ctx, taskID)
	if err != nil || meta == nil {
		slog.Error(fmt.Sprintf("%s - task %s completed with no retrievable metadata, abandoning dispatch", logPrefix, taskID))
		if waiter != nil && !chained {
			waiter.resolve(NewRelayError(CodeInternalError, "task metadata unavailable"))
		}
		return
	}
	if err := c.store.DeleteTask(ctx, taskID); err != nil {
		slog.Error(fmt.Sprintf("%s - could not delete metadata for task %s: %v", logPrefix, taskID, err))
	}

	if chained {
		waiter = nil
	}
	c.dispatch(taskID, meta.Request, meta.Kind, waiter, result)
}

// EventsDelivered records the durable transport's signal that all pending
// events have been delivered, one of the two conditions closing a wake window.
func (c *Coordinator) EventsDelivered() {
	slog.Info(fmt.Sprintf("%s - transport reports all events delivered", logPrefix))
	c.gate.eventsDelivered()
}

// dispatchFailure routes a pre-submission failure through the dispatch path
// as a completed-with-error task: the handler still gets a chance to react
// and the waiter still resolves.
func (c *Coordinator) dispatchFailure(taskID string, req wire.Request, kind string, waiter *Waiter, err error) {
	slog.Warn(fmt.Sprintf("%s - task %s kind=%s failed before submission: %v", logPrefix, taskID, kind, err))
	c.dispatch(taskID, req, kind, waiter, Result{Err: err})
}

// dispatch invokes the handler for a terminal result and resolves the waiter.
// The completion gate is entered before handler invocation and left
// unconditionally afterward.
func (c *Coordinator) dispatch(taskID string, req wire.Request, kind string, waiter *Waiter, result Result) {
	reg, ok := c.lookupHandler(kind)
	if !ok {
		slog.Error(fmt.Sprintf("%s - task %s completed for unregistered kind %q, abandoning dispatch", logPrefix, taskID, kind))
		if waiter != nil {
			waiter.resolve(NewRelayError(CodeInternalError, fmt.Sprintf("no handler registered for kind %q", kind)))
		}
		return
	}

	c.gate.enter()
	defer c.gate.leave()

	ctx := context.Background()
	handler := reg.Factory(c.provider.CurrentConnection())
	outcome, herr := handler.Handle(ctx, req, result)

	if outcome.Notification != nil {
		if err := c.notifier.Post(ctx, outcome.Notification); err != nil {
			slog.Error(fmt.Sprintf("%s - notification for task %s failed: %v", logPrefix, taskID, err))
		}
	}

	final := herr
	if final == nil {
		final = result.Err
	}
	if waiter != nil {
		waiter.resolve(final)
	}
}

// OnWake arms the host wake-window callback. It fires exactly once, after all
// in-flight handler work has drained and the durable transport has delivered
// every pending event.
func (c *Coordinator) OnWake(completion func()) {
	c.gate.arm(completion)
	c.durable.NotifyWhenDrained()
}

// StatusInfo is a point-in-time snapshot of coordinator state.
type StatusInfo struct {
	InFlight    int      `json:"inFlight"`
	TaskIDs     []string `json:"taskIds"`
	Handlers    []string `json:"handlers"`
	Outstanding int      `json:"outstanding"`
}

// Status reports the in-flight tasks, registered handler kinds, and
// outstanding background work count.
func (c *Coordinator) Status() StatusInfo {
	c.mu.Lock()
	ids := make([]string, 0, len(c.tasks))
	for id := range c.tasks {
		ids = append(ids, id)
	}
	kinds := make([]string, 0, len(c.handlers))
	for k := range c.handlers {
		kinds = append(kinds, k)
	}
	c.mu.Unlock()
	sort.Strings(ids)
	sort.Strings(kinds)
	return StatusInfo{
		InFlight:    len(ids),
		TaskIDs:     ids,
		Handlers:    kinds,
		Outstanding: c.gate.outstandingCount(),
	}
}

// Health verifies the coordinator's dependencies are reachable by exercising
// the task inventory.
func (c *Coordinator) Health(ctx context.Context) error {
	if _, err := c.durable.ListTasks(ctx); err != nil {
		return fmt.Errorf("%s - health check failed: %w", logPrefix, err)
	}
	return nil
}

func (c *Coordinator) nextTaskID() string {
	return fmt.Sprintf("task-%d-%d", time.Now().UnixNano(), c.seq.Add(1))
}
