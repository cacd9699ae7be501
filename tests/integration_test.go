//go:build integration

package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"
	comms "github.com/nats-io/nats.go"

	"github.com/driftware/hookrelay/pkg/dispatcher"
	"github.com/driftware/hookrelay/pkg/notify"
	"github.com/driftware/hookrelay/pkg/relay"
	"github.com/driftware/hookrelay/pkg/session"
	"github.com/driftware/hookrelay/pkg/store"
	"github.com/driftware/hookrelay/pkg/transport"
	"github.com/driftware/hookrelay/pkg/wire"
)

// handlerFunc adapts a side-effect function to the relay.Handler interface.
type handlerFunc func(ctx context.Context)

func (f handlerFunc) Handle(ctx context.Context, _ wire.Request, _ relay.Result) (relay.HandlerOutcome, error) {
	f(ctx)
	return relay.HandlerOutcome{}, nil
}

const integrationTestPrefix = "tests:integration_test"
const integrationNatsPort = 14241

// Integration tests use DATABASE_URL (e.g. .../hookrelay_test on platform
// Postgres). Create DBs once: hookrelay ensure-db

func TestIntegration_DurableSendWithDB(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skipf("%s - DATABASE_URL not set (e.g. .../hookrelay_test; create with hookrelay ensure-db), skipping", integrationTestPrefix)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := store.NewPool(ctx, url)
	if err != nil {
		t.Fatalf("%s - NewPool failed: %v", integrationTestPrefix, err)
	}
	defer pool.Close()

	migrationPath := "migrations"
	if _, err := os.Stat(migrationPath); os.IsNotExist(err) {
		migrationPath = filepath.Join("..", "migrations")
	}
	migrationSQL, err := store.LoadMigrationFiles(migrationPath)
	if err != nil {
		t.Fatalf("%s - LoadMigrationFiles failed: %v", integrationTestPrefix, err)
	}
	if err := store.RunMigrations(ctx, pool, migrationSQL); err != nil {
		t.Fatalf("%s - RunMigrations failed: %v", integrationTestPrefix, err)
	}
	if err := store.ClearTasks(ctx, pool); err != nil {
		t.Fatalf("%s - ClearTasks failed: %v", integrationTestPrefix, err)
	}

	opts := &commsserver.Options{
		Host:   "127.0.0.1",
		Port:   integrationNatsPort,
		NoLog:  true,
		NoSigs: true,
	}
	ns, err := commsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("%s - failed to create NATS server: %v", integrationTestPrefix, err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatalf("%s - NATS server failed to start", integrationTestPrefix)
	}
	defer func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	}()

	nc, err := comms.Connect(ns.ClientURL(), comms.Timeout(5*time.Second))
	if err != nil {
		t.Fatalf("%s - failed to connect to NATS: %v", integrationTestPrefix, err)
	}
	defer nc.Close()

	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"received":true}`))
	}))
	defer target.Close()

	provider, err := session.NewProvider(&session.Profile{
		BaseURL:    target.URL,
		APIVersion: "1.0.0",
	}, ">= 1.0.0, < 2.0.0")
	if err != nil {
		t.Fatalf("%s - NewProvider failed: %v", integrationTestPrefix, err)
	}

	repo := store.NewRepository(pool)
	durable := transport.NewDurable(repo, &http.Client{Timeout: 10 * time.Second})
	ephemeral := transport.NewEphemeral(&http.Client{Timeout: 10 * time.Second})
	notifier := notify.NewCommsNotifier(nc, nil)

	coordinator := relay.NewCoordinator(relay.Params{
		Provider:  provider,
		Durable:   durable,
		Ephemeral: ephemeral,
		Store:     repo,
		Notifier:  notifier,
	})
	coordinator.RegisterHandler("webhook", relay.HandlerRegistration{
		Factory: func(_ *session.Connection) relay.Handler {
			return e2eHandler{}
		},
	})
	durable.SetDelegate(coordinator)
	if err := durable.Resume(ctx); err != nil {
		t.Fatalf("%s - Resume failed: %v", integrationTestPrefix, err)
	}

	disp := dispatcher.NewDispatcher(coordinator)

	subject := "relay.test.dispatch.integration.v1"
	_, err = nc.Subscribe(subject, func(msg *comms.Msg) {
		var req dispatcher.RelayRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			resp := &dispatcher.RelayResponse{
				Ok:    false,
				Error: &dispatcher.ErrorDetail{Code: "INVALID_REQUEST", Message: "Failed to decode request"},
			}
			data, _ := json.Marshal(resp)
			msg.Respond(data)
			return
		}
		reqCtx, reqCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer reqCancel()
		resp := disp.Dispatch(reqCtx, &req)
		data, _ := json.Marshal(resp)
		msg.Respond(data)
	})
	if err != nil {
		t.Fatalf("%s - subscribe failed: %v", integrationTestPrefix, err)
	}

	send := func(req *dispatcher.RelayRequest) *dispatcher.RelayResponse {
		data, _ := json.Marshal(req)
		msg, err := nc.Request(subject, data, 10*time.Second)
		if err != nil {
			t.Fatalf("%s - request failed: %v", integrationTestPrefix, err)
		}
		var resp dispatcher.RelayResponse
		if err := json.Unmarshal(msg.Data, &resp); err != nil {
			t.Fatalf("%s - unmarshal response: %v", integrationTestPrefix, err)
		}
		return &resp
	}

	// 1. Durable send, blocking until terminal
	sendJSON, _ := json.Marshal(dispatcher.SendInput{
		Kind:    "webhook",
		Payload: json.RawMessage(`{"event":"integration.test"}`),
		WaitMs:  10000,
	})
	resp := send(&dispatcher.RelayRequest{
		ID:     "int-send-1",
		Method: "send",
		Params: sendJSON,
		Ctx:    &dispatcher.InvocationContext{UserID: "00000000-0000-0000-0000-000000000001"},
	})
	if !resp.Ok {
		t.Fatalf("%s - send failed: %v", integrationTestPrefix, resp.Error)
	}
	result, _ := json.Marshal(resp.Result)
	var sendOut dispatcher.SendOutput
	if err := json.Unmarshal(result, &sendOut); err != nil {
		t.Fatalf("%s - send result unmarshal: %v", integrationTestPrefix, err)
	}
	if sendOut.State != dispatcher.StateCompleted {
		t.Errorf("%s - State = %q, want completed", integrationTestPrefix, sendOut.State)
	}

	// Terminal task metadata must be discarded from the store
	meta, err := repo.GetTask(ctx, sendOut.TaskID)
	if err != nil {
		t.Fatalf("%s - GetTask failed: %v", integrationTestPrefix, err)
	}
	if meta != nil {
		t.Errorf("%s - completed task %s still has store metadata", integrationTestPrefix, sendOut.TaskID)
	}

	// 2. Ephemeral send: no store row before, during, or after
	ephJSON, _ := json.Marshal(dispatcher.SendInput{
		Kind:    "ping",
		Payload: json.RawMessage(`{"seq":1}`),
	})
	resp = send(&dispatcher.RelayRequest{
		ID:     "int-eph-1",
		Method: "sendEphemeral",
		Params: ephJSON,
	})
	if !resp.Ok {
		t.Fatalf("%s - sendEphemeral failed: %v", integrationTestPrefix, resp.Error)
	}
	pending, err := repo.ListPending(ctx)
	if err != nil {
		t.Fatalf("%s - ListPending failed: %v", integrationTestPrefix, err)
	}
	if len(pending) != 0 {
		t.Errorf("%s - ephemeral send left %d pending rows", integrationTestPrefix, len(pending))
	}

	// 3. Status
	resp = send(&dispatcher.RelayRequest{
		ID:     "int-status-1",
		Method: "status",
		Params: json.RawMessage(`{}`),
	})
	if !resp.Ok {
		t.Fatalf("%s - status failed: %v", integrationTestPrefix, resp.Error)
	}
	var statusOut relay.StatusInfo
	result, _ = json.Marshal(resp.Result)
	if err := json.Unmarshal(result, &statusOut); err != nil {
		t.Fatalf("%s - status result unmarshal: %v", integrationTestPrefix, err)
	}
	if statusOut.InFlight != 0 {
		t.Errorf("%s - status InFlight = %d, want 0", integrationTestPrefix, statusOut.InFlight)
	}

	// 4. Health
	resp = send(&dispatcher.RelayRequest{
		ID:     "int-health-1",
		Method: "health",
		Params: json.RawMessage(`{}`),
	})
	if !resp.Ok {
		t.Fatalf("%s - health failed: %v", integrationTestPrefix, resp.Error)
	}
}

func TestIntegration_ResumeReDrivesPendingTasks(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skipf("%s - DATABASE_URL not set, skipping", integrationTestPrefix)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := store.NewPool(ctx, url)
	if err != nil {
		t.Fatalf("%s - NewPool failed: %v", integrationTestPrefix, err)
	}
	defer pool.Close()

	migrationPath := "migrations"
	if _, err := os.Stat(migrationPath); os.IsNotExist(err) {
		migrationPath = filepath.Join("..", "migrations")
	}
	migrationSQL, err := store.LoadMigrationFiles(migrationPath)
	if err != nil {
		t.Fatalf("%s - LoadMigrationFiles failed: %v", integrationTestPrefix, err)
	}
	if err := store.RunMigrations(ctx, pool, migrationSQL); err != nil {
		t.Fatalf("%s - RunMigrations failed: %v", integrationTestPrefix, err)
	}

	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"resumed":true}`))
	}))
	defer target.Close()

	repo := store.NewRepository(pool)

	// Seed a pending task as if a previous process died mid-flight.
	provider, err := session.NewProvider(&session.Profile{BaseURL: target.URL, APIVersion: "1.0.0"}, "")
	if err != nil {
		t.Fatalf("%s - NewProvider failed: %v", integrationTestPrefix, err)
	}
	seedDurable := transport.NewDurable(repo, nil)
	seedCoord := relay.NewCoordinator(relay.Params{
		Provider: provider,
		Durable:  seedDurable,
		Store:    repo,
	})
	seedCoord.RegisterHandler("webhook", relay.HandlerRegistration{
		Factory: func(_ *session.Connection) relay.Handler { return e2eHandler{} },
	})
	// No delegate on the seed transport: the transfer may run, but nothing
	// deletes the store row, leaving it pending as after a process death.
	waiter := seedCoord.Send(wire.Request{
		Kind:    "webhook",
		Payload: json.RawMessage(`{"event":"orphaned"}`),
	}, "webhook")
	taskID := waiter.TaskID()

	meta, err := repo.GetTask(ctx, taskID)
	if err != nil {
		t.Fatalf("%s - GetTask failed: %v", integrationTestPrefix, err)
	}
	if meta == nil {
		t.Fatalf("%s - seeded task %s not persisted", integrationTestPrefix, taskID)
	}

	// A fresh pipeline over the same store resumes and completes the task.
	done := make(chan string, 4)
	durable := transport.NewDurable(repo, &http.Client{Timeout: 10 * time.Second})
	coordinator := relay.NewCoordinator(relay.Params{
		Provider: provider,
		Durable:  durable,
		Store:    repo,
	})
	coordinator.RegisterHandler("webhook", relay.HandlerRegistration{
		Factory: func(_ *session.Connection) relay.Handler {
			return handlerFunc(func(_ context.Context) { done <- taskID })
		},
	})
	durable.SetDelegate(coordinator)
	if err := durable.Resume(ctx); err != nil {
		t.Fatalf("%s - Resume failed: %v", integrationTestPrefix, err)
	}

	select {
	case <-done:
	case <-time.After(15 * time.Second):
		t.Fatalf("%s - resumed task %s never completed", integrationTestPrefix, taskID)
	}

	meta, err = repo.GetTask(ctx, taskID)
	if err != nil {
		t.Fatalf("%s - GetTask after resume failed: %v", integrationTestPrefix, err)
	}
	if meta != nil {
		t.Errorf("%s - resumed task %s still has store metadata", integrationTestPrefix, taskID)
	}
}
