// Package server is the local report server: it keeps the aggregated
// series of a set of trace inputs in memory, reloads them periodically and
// serves them as JSON, CSV, an HTML index and a websocket feed.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/nicktill/tracedump/pkg/aggregate"
	"github.com/nicktill/tracedump/pkg/config"
	"github.com/nicktill/tracedump/pkg/export"
	"github.com/nicktill/tracedump/pkg/series"
	"github.com/nicktill/tracedump/pkg/server/monitor"
	"github.com/nicktill/tracedump/pkg/storage"
)

// Loader builds a fresh aggregator from the server's inputs.
type Loader func(ctx context.Context) (*aggregate.Aggregator, error)

// Config holds server configuration.
type Config struct {
	Load           Loader
	ReloadInterval time.Duration

	// Store, when set, enables the store stats and export/import routes
	Store     storage.Storage
	StorePath string // measured for disk usage when set

	// Addr is the listen address, used for the CORS allow list
	Addr string
}

// Server serves one aggregator at a time and swaps in a new one on every
// reload.
type Server struct {
	cfg     Config
	hub     *Hub
	reloads *monitor.ReloadMonitor
	usage   *monitor.DiskUsage
	started time.Time

	mu       sync.RWMutex
	agg      *aggregate.Aggregator
	loadedAt time.Time
}

// New creates a server. Call Reload once before serving.
func New(cfg Config) (*Server, error) {
	if cfg.Load == nil {
		return nil, fmt.Errorf("server needs a loader")
	}
	if cfg.ReloadInterval <= 0 {
		cfg.ReloadInterval = config.DefaultReloadInterval
	}
	s := &Server{
		cfg:     cfg,
		hub:     NewHub(),
		reloads: &monitor.ReloadMonitor{StaleAfter: 4 * cfg.ReloadInterval},
		started: time.Now(),
		agg:     aggregate.New(),
	}
	if cfg.StorePath != "" {
		s.usage = monitor.NewDiskUsage(cfg.StorePath)
	}
	return s, nil
}

// Update is the websocket message sent after every reload.
type Update struct {
	Type     string       `json:"type"`
	LoadedAt time.Time    `json:"loaded_at"`
	Keys     []string     `json:"keys"`
	Global   []series.Row `json:"global"`
	Error    string       `json:"error,omitempty"` // set when the global series cannot be folded
}

// Reload rebuilds the aggregator. On failure the previous one is kept.
func (s *Server) Reload(ctx context.Context) error {
	start := time.Now()
	agg, err := s.cfg.Load(ctx)
	if err != nil {
		s.reloads.RecordFailure(err)
		return fmt.Errorf("failed to reload inputs: %w", err)
	}

	s.mu.Lock()
	s.agg = agg
	s.loadedAt = time.Now()
	s.mu.Unlock()
	s.reloads.RecordSuccess(time.Since(start))

	if s.hub.HasClients() {
		if u := s.update(); u.Error != "" {
			log.Printf("⚠️  Not broadcasting reload: %s", u.Error)
		} else if err := s.hub.Broadcast(u); err != nil {
			log.Printf("❌ Failed to broadcast update: %v", err)
		}
	}
	return nil
}

func (s *Server) update() Update {
	agg, loadedAt := s.current()
	u := Update{
		Type:     "reload",
		LoadedAt: loadedAt,
		Keys:     agg.Keys(),
	}
	global, err := agg.FinalizeGlobal()
	if err != nil {
		u.Error = err.Error()
		return u
	}
	u.Global = global
	return u
}

func (s *Server) current() (*aggregate.Aggregator, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.agg, s.loadedAt
}

// Run drives the websocket hub and the reload ticker until ctx is done.
// Reload failures are logged and retried on the next tick.
func (s *Server) Run(ctx context.Context) {
	go s.hub.Run(ctx)

	ticker := time.NewTicker(s.cfg.ReloadInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Stopping reload loop")
			return
		case <-ticker.C:
			if err := s.Reload(ctx); err != nil {
				status := s.reloads.Status()
				log.Printf("⚠️  %v (consecutive errors: %d)", err, status.ConsecutiveErrors)
			}
		}
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(corsMiddleware(s.cfg.Addr))

	api := router.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/series", s.handleSeriesList).Methods("GET")
	api.HandleFunc("/series/global", s.handleGlobal).Methods("GET")
	api.HandleFunc("/series/{key:.+}", s.handleSeries).Methods("GET")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
	api.HandleFunc("/ws", s.hub.ServeWS(func() any { return s.update() })).Methods("GET")

	if s.cfg.Store != nil {
		exportHandler := export.NewHandler(s.cfg.Store)
		api.HandleFunc("/export", exportHandler.HandleExport).Methods("GET")
		api.HandleFunc("/import", exportHandler.HandleImport).Methods("POST")
	}

	router.HandleFunc("/", s.handleIndex).Methods("GET")
	return router
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("🚀 Report server listening on http://%s", s.cfg.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	log.Println("✅ Report server stopped")
	return nil
}

// corsMiddleware allows the localhost origins of the listen port only.
func corsMiddleware(addr string) mux.MiddlewareFunc {
	_, port, err := net.SplitHostPort(addr)
	if err != nil || port == "" {
		port = "8080"
	}
	allowed := map[string]bool{
		"http://localhost:" + port: true,
		"http://127.0.0.1:" + port: true,
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); allowed[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
