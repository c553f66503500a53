// Package streak wires the streak service runtime: storage, compute
// service, and the HTTP lifecycle.
package streak

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/morningpages/streakd/internal/platform/timeouts"
	"github.com/morningpages/streakd/internal/services/streak/api/httpapi"
	"github.com/morningpages/streakd/internal/services/streak/app"
	"github.com/morningpages/streakd/internal/services/streak/storage/sqlite"
)

// Config configures a streak server.
type Config struct {
	// HTTPAddr is the listen address, e.g. ":8080".
	HTTPAddr string
	// DBPath locates the SQLite database file.
	DBPath string
}

// Server hosts the streak HTTP API and storage lifecycle.
type Server struct {
	httpAddr   string
	httpServer *http.Server
	store      *sqlite.Store
	service    *app.Service
}

// New creates a configured streak server.
func New(config Config) (*Server, error) {
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	dbPath := strings.TrimSpace(config.DBPath)
	if dbPath == "" {
		dbPath = filepath.Join("data", "streak.db")
	}

	store, err := openStreakStore(dbPath)
	if err != nil {
		return nil, err
	}

	service := app.NewService(store)
	mux := http.NewServeMux()
	httpapi.RegisterRoutes(mux, service)

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           mux,
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	return &Server{
		httpAddr:   httpAddr,
		httpServer: httpServer,
		store:      store,
		service:    service,
	}, nil
}

// Service exposes the compute service, for commands sharing the runtime.
func (s *Server) Service() *app.Service {
	if s == nil {
		return nil
	}
	return s.service
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("streak server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	serveErr := make(chan error, 1)
	log.Printf("streak listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		s.service.Flush()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close releases storage held by the server.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.service != nil {
		s.service.Flush()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close streak store: %v", err)
		}
	}
}

// Run creates and serves a streak server until context cancellation.
func Run(ctx context.Context, config Config) error {
	server, err := New(config)
	if err != nil {
		return err
	}
	defer server.Close()
	return server.ListenAndServe(ctx)
}

func openStreakStore(path string) (*sqlite.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	return sqlite.Open(path)
}
