package server

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// ServerConfig holds configuration for the settlement API server.
type ServerConfig struct {
	Addr    string // bind address, e.g. ":8090"
	DevMode bool   // include error details in responses
	APIKey  string // optional X-API-Key requirement
}

// ServerDeps wires the handlers and config into a Server.
type ServerDeps struct {
	Handlers *Handlers
	Config   ServerConfig
}

// Server wraps the echo instance with lifecycle management so the daemon
// can drain in-flight settlement queries before exiting.
type Server struct {
	e      *echo.Echo
	cfg    ServerConfig
	closed chan struct{}
}

// NewServer builds the HTTP surface for the settlement engine. Write
// timeouts are generous because stats and fill queries may hit ClickHouse.
func NewServer(deps ServerDeps) (*Server, error) {
	if deps.Handlers == nil {
		return nil, fmt.Errorf("server handlers are required")
	}
	if deps.Config.Addr == "" {
		deps.Config.Addr = ":8090"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.Logger())

	e.Server.ReadTimeout = 15 * time.Second
	e.Server.WriteTimeout = 75 * time.Second
	e.Server.IdleTimeout = 60 * time.Second

	RegisterRoutes(e, deps.Handlers, deps.Config)

	return &Server{e: e, cfg: deps.Config, closed: make(chan struct{})}, nil
}

// Start begins serving until Shutdown or a listener error.
func (s *Server) Start() error {
	return s.e.Start(s.cfg.Addr)
}

// Shutdown drains the server with a 10-second ceiling.
func (s *Server) Shutdown(ctx context.Context) error {
	defer close(s.closed)
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.e.Shutdown(ctx)
}

// WaitClosed blocks until Shutdown completes or the context expires.
func (s *Server) WaitClosed(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
		return nil
	}
}

// SetNoCacheHeaders keeps order status and registry responses out of
// intermediary caches.
func SetNoCacheHeaders(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set("Cache-Control", "no-store")
		return next(c)
	}
}

// SetJSONContentType ensures every response carries the JSON content type.
func SetJSONContentType(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		return next(c)
	}
}
