package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/marmos91/fixgate/internal/logger"
	"github.com/marmos91/fixgate/pkg/api/auth"
	"github.com/marmos91/fixgate/pkg/engine"
)

// Config for the admin API server.
type Config struct {
	Port int

	JWTSecret         string
	AdminUser         string
	AdminPasswordHash string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

func (c *Config) applyDefaults() {
	if c.Port <= 0 {
		c.Port = 9879
	}
	if c.AdminUser == "" {
		c.AdminUser = "admin"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 120 * time.Second
	}
}

// Server is the admin HTTP server. Create with NewServer, run with
// Start; Stop is driven by context cancellation.
type Server struct {
	server       *http.Server
	config       Config
	shutdownOnce sync.Once
}

// NewServer builds the server around an engine.
func NewServer(config Config, eng *engine.Engine) *Server {
	config.applyDefaults()

	jwtService := auth.NewJWTService(config.JWTSecret, time.Hour)
	router := NewRouter(eng, jwtService, config)

	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.Port),
			Handler:      router,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
		config: config,
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("admin API listening",
			logger.KeyComponent, "api",
			logger.KeyAddr, s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api: serve: %w", err)
	case <-ctx.Done():
		return s.Stop(context.Background())
	}
}

// Stop shuts the server down gracefully with a bounded deadline.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		err = s.server.Shutdown(shutdownCtx)
		logger.Info("admin API stopped")
	})
	return err
}
