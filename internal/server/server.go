package server

import (
	"net/http"
	"time"

	"github.com/asteroid-belt/fieldsync/internal/config"
)

// NewHTTPServer builds the http.Server for the sync API.
func NewHTTPServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Run serves the API until the listener fails.
func Run(cfg config.ServerConfig, handler http.Handler) error {
	return NewHTTPServer(cfg, handler).ListenAndServe()
}
