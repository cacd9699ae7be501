package dispatcher

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/driftware/hookrelay/pkg/relay"
	"github.com/driftware/hookrelay/pkg/session"
	"github.com/driftware/hookrelay/pkg/store"
	"github.com/driftware/hookrelay/pkg/transport"
	"github.com/driftware/hookrelay/pkg/wire"
)

// autoDurable completes every started task immediately with a canned response.
type autoDurable struct {
	ts       store.TaskStore
	delegate transport.Delegate
	status   int
	body     []byte
}

func (a *autoDurable) CreateTask(ctx context.Context, meta *store.TaskMeta) error {
	return a.ts.InsertTask(ctx, meta)
}

func (a *autoDurable) StartTask(taskID string) {
	go func() {
		if len(a.body) > 0 {
			a.delegate.TaskData(taskID, a.body)
		}
		a.delegate.TaskDone(taskID, transport.Outcome{StatusCode: a.status})
	}()
}

func (a *autoDurable) CancelTask(taskID string) {
	a.delegate.TaskDone(taskID, transport.Outcome{Cancelled: true})
}

func (a *autoDurable) ListTasks(ctx context.Context) ([]string, error) {
	metas, err := a.ts.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(metas))
	for _, m := range metas {
		ids = append(ids, m.TaskID)
	}
	return ids, nil
}

func (a *autoDurable) NotifyWhenDrained() {
	a.delegate.EventsDelivered()
}

type fakeEphemeral struct {
	status int
	body   []byte
}

func (f *fakeEphemeral) Do(_ context.Context, _ *wire.WireRequest) (int, []byte, error) {
	return f.status, f.body, nil
}

type noopHandler struct{}

func (noopHandler) Handle(_ context.Context, _ wire.Request, _ relay.Result) (relay.HandlerOutcome, error) {
	return relay.HandlerOutcome{}, nil
}

func newTestDispatcher(t *testing.T, withSession bool) *Dispatcher {
	t.Helper()
	ts := store.NewMemStore()
	ad := &autoDurable{ts: ts, status: 200, body: []byte(`{"ok":true}`)}
	provider := session.ProviderFunc(func() *session.Connection {
		if !withSession {
			return nil
		}
		return &session.Connection{BaseURL: "https://hooks.example.com", AuthToken: "tok"}
	})
	coord := relay.NewCoordinator(relay.Params{
		Provider:  provider,
		Durable:   ad,
		Ephemeral: &fakeEphemeral{status: 200, body: []byte(`{"pong":true}`)},
		Store:     ts,
	})
	ad.delegate = coord
	coord.RegisterHandler("message", relay.HandlerRegistration{
		Factory: func(_ *session.Connection) relay.Handler { return noopHandler{} },
	})
	return NewDispatcher(coord)
}

func TestDispatch_UnknownMethod(t *testing.T) {
	d := newTestDispatcher(t, true)
	resp := d.Dispatch(context.Background(), &RelayRequest{ID: "1", Method: "explode"})
	if resp.Ok || resp.Error == nil || resp.Error.Code != "METHOD_NOT_FOUND" {
		t.Errorf("dispatcher:dispatcher_test - resp = %+v", resp)
	}
}

func TestDispatch_SendSubmitted(t *testing.T) {
	d := newTestDispatcher(t, true)
	resp := d.Dispatch(context.Background(), &RelayRequest{
		ID:     "2",
		Method: "send",
		Params: json.RawMessage(`{"kind":"message","payload":{"text":"hi"}}`),
	})
	if !resp.Ok {
		t.Fatalf("dispatcher:dispatcher_test - resp = %+v", resp)
	}
	out, ok := resp.Result.(SendOutput)
	if !ok || out.TaskID == "" {
		t.Errorf("dispatcher:dispatcher_test - result = %+v", resp.Result)
	}
}

func TestDispatch_SendWaitsForCompletion(t *testing.T) {
	d := newTestDispatcher(t, true)
	resp := d.Dispatch(context.Background(), &RelayRequest{
		ID:     "3",
		Method: "send",
		Params: json.RawMessage(`{"kind":"message","waitMs":5000}`),
	})
	if !resp.Ok {
		t.Fatalf("dispatcher:dispatcher_test - resp = %+v", resp)
	}
	out := resp.Result.(SendOutput)
	if out.State != StateCompleted {
		t.Errorf("dispatcher:dispatcher_test - state = %s, want completed", out.State)
	}
}

func TestDispatch_SendUnregisteredKind(t *testing.T) {
	d := newTestDispatcher(t, true)
	resp := d.Dispatch(context.Background(), &RelayRequest{
		ID:     "4",
		Method: "send",
		Params: json.RawMessage(`{"kind":"unknown-kind"}`),
	})
	if resp.Ok || resp.Error == nil {
		t.Fatalf("dispatcher:dispatcher_test - resp = %+v", resp)
	}
	if resp.Error.Code != relay.CodeUnregisteredKind || resp.Error.Retryable {
		t.Errorf("dispatcher:dispatcher_test - error = %+v", resp.Error)
	}
}

func TestDispatch_SendInvalidParams(t *testing.T) {
	d := newTestDispatcher(t, true)
	resp := d.Dispatch(context.Background(), &RelayRequest{
		ID:     "5",
		Method: "send",
		Params: json.RawMessage(`not json`),
	})
	if resp.Ok || resp.Error.Code != "INVALID_ARGUMENT" {
		t.Errorf("dispatcher:dispatcher_test - resp = %+v", resp)
	}
}

func TestDispatch_SendEphemeral(t *testing.T) {
	d := newTestDispatcher(t, true)
	resp := d.Dispatch(context.Background(), &RelayRequest{
		ID:     "6",
		Method: "sendEphemeral",
		Params: json.RawMessage(`{"kind":"message"}`),
	})
	if !resp.Ok {
		t.Fatalf("dispatcher:dispatcher_test - resp = %+v", resp)
	}
	raw, ok := resp.Result.(json.RawMessage)
	if !ok || string(raw) != `{"pong":true}` {
		t.Errorf("dispatcher:dispatcher_test - result = %v", resp.Result)
	}
}

func TestDispatch_SendEphemeralNoSession(t *testing.T) {
	d := newTestDispatcher(t, false)
	resp := d.Dispatch(context.Background(), &RelayRequest{
		ID:     "7",
		Method: "sendEphemeral",
		Params: json.RawMessage(`{"kind":"message"}`),
	})
	if resp.Ok || resp.Error.Code != relay.CodeNoActiveSession {
		t.Errorf("dispatcher:dispatcher_test - resp = %+v", resp)
	}
}

func TestDispatch_Status(t *testing.T) {
	d := newTestDispatcher(t, true)
	resp := d.Dispatch(context.Background(), &RelayRequest{ID: "8", Method: "status"})
	if !resp.Ok {
		t.Fatalf("dispatcher:dispatcher_test - resp = %+v", resp)
	}
	st, ok := resp.Result.(relay.StatusInfo)
	if !ok || len(st.Handlers) != 2 {
		t.Errorf("dispatcher:dispatcher_test - result = %+v", resp.Result)
	}
}

func TestDispatch_Health(t *testing.T) {
	d := newTestDispatcher(t, true)
	resp := d.Dispatch(context.Background(), &RelayRequest{ID: "9", Method: "health"})
	if !resp.Ok {
		t.Errorf("dispatcher:dispatcher_test - resp = %+v", resp)
	}
}
