// Package httptransport assembles the HTTP server for the event
// service API.
package httptransport

import (
	"net/http"
	"time"
)

// ServerConfig bounds how long the server waits on slow clients. Zero
// values leave the corresponding timeout disabled.
type ServerConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// NewServer builds the API server around the fully wrapped handler
// chain (auth, request logging, per-request timeout).
func NewServer(cfg ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Address,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}
