// Package server implements the message bridge between UI surfaces and
// the orchestrator.
//
// UI surfaces speak a request/response envelope over a single POST
// endpoint and receive live task events over a WebSocket. Every request
// yields exactly one response; broadcasts are fire-and-forget, so a
// surface that was closed simply misses them and re-syncs by listing
// tasks when it reopens.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/drivehop/drivehop/internal/models"
	"github.com/drivehop/drivehop/internal/shared"
	"github.com/drivehop/drivehop/internal/tasks"
)

// Orchestrator is the task surface the bridge exposes to UI clients.
type Orchestrator interface {
	Enqueue(ctx context.Context, sourceURL, accessCode string) (*models.Task, error)
	Cancel(ctx context.Context, id string) (*models.Task, error)
	Delete(ctx context.Context, id string) error
	List() ([]*models.Task, error)
	ClearCompleted() (int, error)
	Events() *tasks.Broadcaster
}

// Sessions is the credential surface the bridge exposes to UI clients.
type Sessions interface {
	Get(provider models.Provider) (*models.Session, error)
	Refresh(ctx context.Context, provider models.Provider) (*models.Session, error)
	Push(provider models.Provider, token string) (*models.Session, error)
}

// Bridge serves the message endpoint and the event stream.
type Bridge struct {
	orchestrator Orchestrator
	sessions     Sessions
	config       *shared.Config
	configMu     sync.Mutex
	configPath   string
	logger       *log.Logger
	hub          *Hub
	server       *http.Server
}

// BridgeOpts configures a new Bridge.
type BridgeOpts struct {
	Orchestrator Orchestrator
	Sessions     Sessions
	Config       *shared.Config
	ConfigPath   string // where save_config persists; empty keeps changes in memory
	Logger       *log.Logger
}

// NewBridge creates the bridge and wires its routes.
func NewBridge(opts BridgeOpts) *Bridge {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	b := &Bridge{
		orchestrator: opts.Orchestrator,
		sessions:     opts.Sessions,
		config:       opts.Config,
		configPath:   opts.ConfigPath,
		logger:       shared.WithLogger(opts.Logger, "component", "bridge"),
		hub:          NewHub(opts.Logger),
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))
	router.Post("/api/message", b.handleMessage)
	router.Get("/ws", b.hub.handleWS)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	b.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return b
}

// Run serves the bridge at addr until ctx is cancelled, pumping
// orchestrator events to connected listeners the whole time.
func (b *Bridge) Run(ctx context.Context, addr string) error {
	events, unsubscribe := b.orchestrator.Events().Subscribe()
	defer unsubscribe()
	go b.hub.Pump(ctx, events)

	b.server.Addr = addr

	errCh := make(chan error, 1)
	go func() {
		b.logger.Info("bridge listening", "addr", addr)
		errCh <- b.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		b.hub.CloseAll()
		if err := b.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
