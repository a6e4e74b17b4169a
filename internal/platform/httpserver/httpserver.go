// Package httpserver builds the API server with timeouts suited to the
// short, CPU-bound requests this service handles.
package httpserver

import (
	"net/http"
	"time"
)

// New returns a server for the given handler. Scoring and loan operations
// finish well inside a second, so anything slower is a stuck client.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
