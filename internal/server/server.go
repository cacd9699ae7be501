// Package server orchestrates all components: NATS client, DB, coordinator, dispatcher, HTTP status.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"

	"github.com/driftware/hookrelay/internal/config"
	"github.com/driftware/hookrelay/pkg/commsutil"
	"github.com/driftware/hookrelay/pkg/dispatcher"
	"github.com/driftware/hookrelay/pkg/notify"
	"github.com/driftware/hookrelay/pkg/relay"
	"github.com/driftware/hookrelay/pkg/session"
	"github.com/driftware/hookrelay/pkg/store"
	"github.com/driftware/hookrelay/pkg/transport"
)

const logPrefix = "server:server"

// coordinatorForServer is the coordinator surface HTTP handlers use.
type coordinatorForServer interface {
	Status() relay.StatusInfo
	Health(ctx context.Context) error
}

// Server is the hookrelay orchestrator.
type Server struct {
	cfg        *config.Config
	nc         *comms.Conn
	pool       *pgxpool.Pool
	httpServer *http.Server
	coord      coordinatorForServer
	tasks      store.TaskStore
}

// Run starts the server, blocks until shutdown signal, then drains the wake
// window and cleans up.
func Run() error {
	// Setup structured logging
	var logLevel slog.Level
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}

	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info(fmt.Sprintf("%s - Starting hookrelay", logPrefix))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &Server{cfg: cfg}

	// Step 1: Load endpoint profile and build connection provider
	profile, err := session.LoadProfile(cfg.ProfileFile)
	if err != nil {
		return fmt.Errorf("%s - failed to load endpoint profile: %w", logPrefix, err)
	}
	provider, err := session.NewProvider(profile, cfg.APIConstraint)
	if err != nil {
		return fmt.Errorf("%s - failed to build session provider: %w", logPrefix, err)
	}
	if provider.CurrentConnection() == nil {
		slog.Warn(fmt.Sprintf("%s - No active session: sends will fail until a profile is configured", logPrefix))
	}

	// Determine dispatch subject
	dispatchSubject := cfg.DispatchSubject
	if dispatchSubject == "" {
		dispatchSubject = commsutil.SubjectDispatch
	}
	slog.Info(fmt.Sprintf("%s - Dispatch subject: %s", logPrefix, dispatchSubject))

	// Step 2: Connect to NATS
	nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to NATS: %w", logPrefix, err)
	}
	s.nc = nc
	slog.Info(fmt.Sprintf("%s - Connected to NATS at %s", logPrefix, cfg.COMMSURL))

	// Step 3: Connect to database
	pool, err := store.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		nc.Close()
		return fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
	}
	s.pool = pool

	// Step 3b: Run migrations if enabled
	if cfg.RunMigrations {
		migrationSQL, err := store.LoadMigrationFiles(cfg.MigrationPath)
		if err != nil {
			pool.Close()
			nc.Close()
			return fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
		}
		if err := store.RunMigrations(ctx, pool, migrationSQL); err != nil {
			pool.Close()
			nc.Close()
			return fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
		}
	}

	// Step 4: Wire transports, notifier, and coordinator
	repo := store.NewRepository(pool)
	s.tasks = repo

	notifierOpts := &notify.CommsNotifierOpts{}
	if cfg.NotifySubjectGlobal != "" {
		notifierOpts.GlobalSubject = cfg.NotifySubjectGlobal
	}
	notifier := notify.NewCommsNotifier(nc, notifierOpts)

	durable := transport.NewDurable(repo, &http.Client{Timeout: 5 * time.Minute})
	ephemeral := transport.NewEphemeral(&http.Client{Timeout: cfg.RequestTimeout})

	coordinator := relay.NewCoordinator(relay.Params{
		Provider:  provider,
		Durable:   durable,
		Ephemeral: ephemeral,
		Store:     repo,
		Notifier:  notifier,
	})
	s.coord = coordinator
	registerHandlers(coordinator)

	// Completions from transfers that outlived a previous process arrive
	// through the same delegate path as fresh ones.
	durable.SetDelegate(coordinator)
	if err := durable.Resume(ctx); err != nil {
		pool.Close()
		nc.Close()
		return fmt.Errorf("%s - failed to resume pending tasks: %w", logPrefix, err)
	}

	// Step 5: Create dispatcher and subscribe
	disp := dispatcher.NewDispatcher(coordinator)

	requestTimeout := cfg.RequestTimeout
	sub, err := nc.Subscribe(dispatchSubject, func(msg *comms.Msg) {
		var req dispatcher.RelayRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to decode request: %v", logPrefix, err))
			resp := &dispatcher.RelayResponse{
				Ok: false,
				Error: &dispatcher.ErrorDetail{
					Code:    "INVALID_REQUEST",
					Message: "Failed to decode request",
				},
			}
			data, _ := json.Marshal(resp)
			msg.Respond(data)
			return
		}

		// Per-request context with timeout; optionally respect client deadline
		reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		if req.Ctx != nil && req.Ctx.TimeoutMs > 0 {
			ms := req.Ctx.TimeoutMs
			if time.Duration(ms)*time.Millisecond < requestTimeout {
				reqCtx, cancel = context.WithTimeout(ctx, time.Duration(ms)*time.Millisecond)
			}
		}
		defer cancel()

		// Dispatch
		resp := disp.Dispatch(reqCtx, &req)

		// Respond
		data, err := json.Marshal(resp)
		if err != nil {
			slog.Error(fmt.Sprintf("%s - failed to encode response: %v", logPrefix, err))
			return
		}
		msg.Respond(data)
	})
	if err != nil {
		pool.Close()
		nc.Close()
		return fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, dispatchSubject, err)
	}
	slog.Info(fmt.Sprintf("%s - Subscribed to %s", logPrefix, dispatchSubject))

	// Step 6: Start HTTP status server
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHome())
	mux.HandleFunc("/health", s.handleHealth())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	})
	mux.HandleFunc("/tasks", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(s.coord.Status())
	})

	httpAddr := s.cfg.HTTPAddr
	if httpAddr == "" {
		httpAddr = fmt.Sprintf(":%d", cfg.HTTPPort)
	}
	s.httpServer = &http.Server{Addr: httpAddr, Handler: mux}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP status server listening on %s", logPrefix, httpAddr))
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()

	slog.Info(fmt.Sprintf("%s - hookrelay is ready", logPrefix))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, draining", logPrefix, sig))

	// Wake window: stop accepting new sends, then wait for outstanding
	// deliveries and handler work, bounded by DrainTimeout.
	sub.Unsubscribe()
	drained := make(chan struct{})
	coordinator.OnWake(func() { close(drained) })
	select {
	case <-drained:
		slog.Info(fmt.Sprintf("%s - All pending work drained", logPrefix))
	case <-time.After(cfg.DrainTimeout):
		slog.Warn(fmt.Sprintf("%s - Drain timeout after %s, shutting down with work pending", logPrefix, cfg.DrainTimeout))
	}

	// Graceful shutdown
	s.httpServer.Shutdown(ctx)
	nc.Drain()
	pool.Close()

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}

// homePageTemplate is the HTML for the relay home page (white bg, black/blue text).
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Hookrelay</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    a { color: #0066cc; }
    h1, h2, h3 { color: #0066cc; }
    .status-healthy { color: #0066cc; font-weight: bold; }
    .status-unhealthy { color: #cc0000; font-weight: bold; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; color: #0066cc; }
    .stat { font-weight: bold; color: #0066cc; }
    .meta { color: #333; font-size: 0.9rem; margin-top: 1rem; }
    section { margin-bottom: 2rem; }
    .error { color: #cc0000; }
  </style>
</head>
<body>
  <h1>Hookrelay</h1>
  <p class="meta">Relay health, statistics, and in-flight deliveries.</p>

  <section>
    <h2>Health</h2>
    <p>Status: <span class="status-{{.HealthStatus}}">{{.HealthStatus}}</span></p>
    {{if .HealthError}}<p class="error">{{.HealthError}}</p>{{end}}
    <p>Timestamp: {{.Timestamp}}</p>
  </section>

  <section>
    <h2>Statistics</h2>
    <p>In-flight deliveries: <span class="stat">{{.Status.InFlight}}</span></p>
    <p>Outstanding handler work: <span class="stat">{{.Status.Outstanding}}</span></p>
    <p>Registered handler kinds: <span class="stat">{{len .Status.Handlers}}</span> ({{range .Status.Handlers}}{{.}} {{end}})</p>
  </section>

  <section>
    <h2>In-flight deliveries</h2>
    {{if .TasksError}}
    <p class="error">Could not load deliveries: {{.TasksError}}</p>
    {{else}}
    {{if not .Tasks}}
    <p>No deliveries in flight.</p>
    {{else}}
    <table>
      <thead>
        <tr><th>Task</th><th>Kind</th><th>State</th><th>Created</th></tr>
      </thead>
      <tbody>
        {{range .Tasks}}
        <tr>
          <td>{{.TaskID}}</td>
          <td>{{.Kind}}</td>
          <td>{{.State}}</td>
          <td>{{.Created}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
    {{end}}
  </section>
</body>
</html>
`

// homeData is the data passed to the home page template.
type homeData struct {
	HealthStatus string
	HealthError  string
	Timestamp    string
	Status       relay.StatusInfo
	Tasks        []store.TaskMeta
	TasksError   string
}

// handleHome returns an HTTP handler for the relay home page.
func (s *Server) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Parse(homePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()

		data := homeData{
			HealthStatus: "healthy",
			Timestamp:    time.Now().UTC().Format(time.RFC3339),
			Status:       s.coord.Status(),
		}
		if err := s.coord.Health(ctx); err != nil {
			data.HealthStatus = "unhealthy"
			data.HealthError = err.Error()
		}

		tasks, err := s.tasks.ListPending(ctx)
		if err != nil {
			data.TasksError = err.Error()
		} else {
			data.Tasks = tasks
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", logPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}

// healthOutput is the JSON shape of the /health endpoint.
type healthOutput struct {
	Status    string          `json:"status"`
	Checks    map[string]bool `json:"checks"`
	Error     string          `json:"error,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// handleHealth returns an HTTP handler reporting store and coordinator health.
func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()

		out := healthOutput{
			Status:    "healthy",
			Checks:    map[string]bool{"store": true},
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		if err := s.coord.Health(ctx); err != nil {
			out.Status = "unhealthy"
			out.Checks["store"] = false
			out.Error = err.Error()
		}

		w.Header().Set("Content-Type", "application/json")
		if out.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(out)
	}
}
