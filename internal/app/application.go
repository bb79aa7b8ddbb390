package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"codeshare/internal/api"
	"codeshare/internal/config"
	"codeshare/internal/cursor"
	"codeshare/internal/database"
	"codeshare/internal/hub"
	"codeshare/internal/metrics"
	"codeshare/internal/presence"
	"codeshare/internal/router"
	"codeshare/internal/session"
	"codeshare/internal/websocket"
	dbconfig "codeshare/pkg/database"
)

// Application owns every component and starts/stops them in dependency order.
type Application struct {
	config *config.Config

	db        *database.Manager
	sessions  *session.Store
	registry  *websocket.Registry
	router    *router.Router
	apiServer *api.Server
	wsHandler *websocket.Handler
	httpSrv   *http.Server
}

// New wires the full dependency graph: storage first, then session state,
// then the realtime layer, then the HTTP surface on top.
func New(cfg *config.Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dbCfg := dbconfig.DefaultConfig()
	dbCfg.DatabasePath = cfg.Database.Path
	db, err := database.NewManager(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	sessions := session.NewStore(db)
	registry := websocket.NewRegistry()
	broadcaster := websocket.NewBroadcaster(registry)
	presenceTracker := presence.NewTracker()
	cursorTracker := cursor.NewTracker()

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectorsForProcess()...)
	m := metrics.New(promRegistry)

	lifecycle := hub.NewHub(registry, presenceTracker, cursorTracker, broadcaster, m)
	eventRouter := router.NewRouter(
		sessions, db, cursorTracker, presenceTracker,
		lifecycle, broadcaster, m, cfg.Router.EventsPerMinute,
	)

	apiServer := api.NewServer(sessions, db, db, registry, db, cfg.Reset.Secret)
	wsHandler := websocket.NewHandler(registry, eventRouter, cfg.WebSocket.PingInterval, cfg.WebSocket.ReadTimeout)

	muxRouter := apiServer.Router()
	muxRouter.HandleFunc("/ws", wsHandler.HandleWebSocket)
	muxRouter.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      muxRouter,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:    cfg,
		db:        db,
		sessions:  sessions,
		registry:  registry,
		router:    eventRouter,
		apiServer: apiServer,
		wsHandler: wsHandler,
		httpSrv:   httpSrv,
	}, nil
}

// Start brings up the router and then the HTTP listener. It blocks until the
// listener stops.
func (a *Application) Start() error {
	if err := a.router.Start(context.Background()); err != nil {
		return fmt.Errorf("failed to start event router: %w", err)
	}

	log.Printf("app=start addr=%s database=%s", a.httpSrv.Addr, a.config.Database.Path)
	if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server error: %w", err)
	}
	return nil
}

// Stop shuts components down in reverse order: stop accepting traffic, stop
// the router, flush pending session writes, close the database.
func (a *Application) Stop(ctx context.Context) error {
	log.Printf("app=stop")

	if err := a.httpSrv.Shutdown(ctx); err != nil {
		log.Printf("app=stop component=http error=%v", err)
	}
	if err := a.router.Stop(); err != nil {
		log.Printf("app=stop component=router error=%v", err)
	}
	a.sessions.Close()
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// ShutdownTimeout is how long Stop waits for in-flight requests and writes.
const ShutdownTimeout = 30 * time.Second

func collectorsForProcess() []prometheus.Collector {
	return []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
}
