// Package server exposes the fulfillment service over HTTP: the raw-body
// webhook endpoint and the admin issue endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-fulfillment/core"
)

const defaultShutdownTimeout = 10 * time.Second

// Server wraps the HTTP listener lifecycle around the router.
type Server struct {
	httpServer *http.Server
	logger     core.Logger
}

type ServerOption func(*Server)

func WithServerLogger(logger core.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithReadTimeout(timeout time.Duration) ServerOption {
	return func(s *Server) {
		if timeout > 0 {
			s.httpServer.ReadTimeout = timeout
		}
	}
}

func NewServer(addr string, handler *Handler, opts ...ServerOption) (*Server, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("server: listen address is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("server: handler is required")
	}
	server := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(handler),
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(server)
		}
	}
	server.logger = glog.Ensure(server.logger)
	return server, nil
}

// Start blocks until the listener stops. ErrServerClosed from a graceful
// shutdown is not an error.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen on %s: %w", s.httpServer.Addr, err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return nil
	}
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
	}
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
