package daemon

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tabwarden/tabwarden/internal/config"
	"github.com/tabwarden/tabwarden/internal/logger"
	"github.com/tabwarden/tabwarden/internal/track"
)

// Server is the loopback messaging daemon: the command API plus the
// served block/nudge/prompt pages.
type Server struct {
	httpServer *http.Server
	handlers   *Handlers
	lifecycle  *Lifecycle
	poller     *Poller
	port       int
}

// PagesBase returns the daemon's own origin for the given config. Pages
// under this origin are never tracked.
func PagesBase(cfg *config.Config) string {
	port := cfg.Settings.Daemon.Port
	if port == 0 {
		port = 8746
	}
	return fmt.Sprintf("http://127.0.0.1:%d", port)
}

// NewServer creates the daemon server around a running engine.
func NewServer(cfg *config.Config, engine *track.Engine, version string) *Server {
	handlers := NewHandlers(engine, cfg, version)
	lifecycle := NewLifecycle(cfg.Settings.Daemon)

	port := cfg.Settings.Daemon.Port
	if port == 0 {
		port = 8746
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handlers.Health)
	mux.HandleFunc("POST /api/message", handlers.Message)
	mux.HandleFunc("GET /blocked", serveBlocked)
	mux.HandleFunc("GET /prompt", servePrompt)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("127.0.0.1:%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		handlers:  handlers,
		lifecycle: lifecycle,
		poller:    NewPoller(cfg, engine),
		port:      port,
	}
}

// Start writes the PID file, starts the HTTP listener and the tick and
// tab pollers. Non-blocking.
func (s *Server) Start(ctx context.Context) error {
	if err := s.lifecycle.WritePID(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	logger.Info().
		Int("port", s.port).
		Str("url", fmt.Sprintf("http://127.0.0.1:%d", s.port)).
		Msg("Starting tabwarden daemon")

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("Server error")
		}
	}()

	s.poller.Start(ctx)
	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	logger.Info().Msg("Stopping tabwarden daemon")

	s.poller.Stop()
	_ = s.lifecycle.RemovePID()
	return s.httpServer.Shutdown(ctx)
}

// Port returns the server port
func (s *Server) Port() int {
	return s.port
}

// Lifecycle returns the lifecycle manager
func (s *Server) Lifecycle() *Lifecycle {
	return s.lifecycle
}
