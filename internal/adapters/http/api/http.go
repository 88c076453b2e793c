// Package api exposes the push endpoint for security event tokens plus the
// operational routes around it.
package api

import (
	"context"
	"fmt"
	"net/http"
)

const defaultMaxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	EventDependencies
	StatsProvider
}

// Server wires HTTP routes for the receiver.
type Server struct {
	eventsPath    string
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	eventsHandler *EventsHandler
}

// Option applies a configuration option to the Server.
type Option func(*serverOptions)

type serverOptions struct {
	eventsPath   string
	maxBodyBytes int64
}

// WithEventsPath sets the path tokens are pushed to.
func WithEventsPath(path string) Option {
	return func(o *serverOptions) {
		if path != "" {
			o.eventsPath = path
		}
	}
}

// WithMaxBodyBytes caps the size of a pushed token.
func WithMaxBodyBytes(n int64) Option {
	return func(o *serverOptions) {
		if n > 0 {
			o.maxBodyBytes = n
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, auth Authenticator, opts ...Option) (*Server, error) {
	if deps == nil {
		return nil, fmt.Errorf("%w: dependencies", ErrNilDependency)
	}
	if auth == nil {
		return nil, fmt.Errorf("%w: authenticator", ErrNilDependency)
	}
	o := serverOptions{eventsPath: "/events", maxBodyBytes: defaultMaxBodyBytes}
	for _, opt := range opts {
		opt(&o)
	}
	return &Server{
		eventsPath:    o.eventsPath,
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(deps),
		eventsHandler: NewEventsHandler(deps, auth, o.maxBodyBytes),
	}, nil
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", instrument("healthz", s.healthHandler.HandleHealth))
	mux.HandleFunc("/metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("/stats", instrument("stats", s.statsHandler.HandleStats))
	mux.HandleFunc(s.eventsPath, instrument("events", s.eventsHandler.HandlePostEvent))
}
