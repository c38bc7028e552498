package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Closer releases a dependency during shutdown
type Closer struct {
	Name  string
	Close func(ctx context.Context) error
}

// ServerConfig holds listener settings
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server represents the API server
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	logger     *slog.Logger
	closers    []Closer
}

func NewServer(cfg ServerConfig, handler http.Handler, logger *slog.Logger, closers ...Closer) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	return &Server{
		config: cfg,
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       2 * time.Minute,
			ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		},
		logger:  logger,
		closers: closers,
	}
}

// Start serves until the listener fails or SIGINT/SIGTERM arrives, then
// shuts down gracefully.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Addr, err)
	}
	s.logger.Info("starting API server", "address", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		s.closeDependencies()
		return fmt.Errorf("server failed: %w", err)
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown()
	}
}

// Shutdown drains in-flight requests, then closes dependencies in reverse
// registration order
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down server")
	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		s.logger.Error("failed to shutdown server", "error", err)
	}
	s.closeDependencies()

	s.logger.Info("server shutdown complete")
	return err
}

func (s *Server) closeDependencies() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	for i := len(s.closers) - 1; i >= 0; i-- {
		c := s.closers[i]
		if err := c.Close(ctx); err != nil {
			s.logger.Error("failed to close dependency", "dependency", c.Name, "error", err)
		}
	}
}
