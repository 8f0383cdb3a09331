// Package httpserver builds the API and metrics listeners.
package httpserver

import (
	"log/slog"
	"net/http"
	"time"
)

// Option adjusts the server before it starts.
type Option func(*http.Server)

// WithWriteTimeout bounds how long a response may take. Keep it above the
// per-request handler timeout so the handler's own error reaches the client.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *http.Server) {
		if d > 0 {
			s.WriteTimeout = d
		}
	}
}

// WithLogger routes net/http's internal errors (TLS, bad headers) to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *http.Server) {
		s.ErrorLog = slog.NewLogLogger(logger.Handler(), slog.LevelWarn)
	}
}

// New builds a server with conservative read and idle timeouts.
func New(addr string, handler http.Handler, opts ...Option) *http.Server {
	s := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
