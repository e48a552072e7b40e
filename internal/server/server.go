// Package server exposes the desk over HTTP: the websocket transport for
// customers and agents, the dashboard event stream, REST re-fetch endpoints
// and Prometheus metrics.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/zulandar/switchboard/internal/desk"
	"github.com/zulandar/switchboard/internal/events"
	"github.com/zulandar/switchboard/internal/router"
)

const (
	defaultSendBuffer = 64
	shutdownTimeout   = 10 * time.Second
)

// StartOpts holds configuration for the HTTP server.
type StartOpts struct {
	Desk   *desk.Desk
	Hub    *events.Hub
	Router *router.Router
	Port   int
	// AllowedOrigins restricts websocket origins. Empty allows any.
	AllowedOrigins []string
	SendBuffer     int
	Logger         zerolog.Logger
	Out            io.Writer
}

func (o *StartOpts) check() error {
	if o.Desk == nil {
		return fmt.Errorf("server: desk is required")
	}
	if o.Hub == nil {
		return fmt.Errorf("server: hub is required")
	}
	if o.Router == nil {
		return fmt.Errorf("server: router is required")
	}
	if o.Port <= 0 {
		o.Port = 8080
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = defaultSendBuffer
	}
	return nil
}

// Handler builds the gin engine without starting a listener.
func Handler(opts StartOpts) (http.Handler, error) {
	if err := opts.check(); err != nil {
		return nil, err
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	registerRoutes(engine, newServer(opts))
	return engine, nil
}

// Start launches the HTTP server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if err := opts.check(); err != nil {
		return err
	}
	handler, err := Handler(opts)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Switchboard listening on http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// server carries the handler dependencies.
type server struct {
	desk       *desk.Desk
	hub        *events.Hub
	router     *router.Router
	origins    []string
	sendBuffer int
	log        zerolog.Logger
}

func newServer(opts StartOpts) *server {
	return &server{
		desk:       opts.Desk,
		hub:        opts.Hub,
		router:     opts.Router,
		origins:    opts.AllowedOrigins,
		sendBuffer: opts.SendBuffer,
		log:        opts.Logger.With().Str("component", "server").Logger(),
	}
}
