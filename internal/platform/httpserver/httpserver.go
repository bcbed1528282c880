package httpserver

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// New builds an HTTP server with timeouts suited to short JSON requests.
// Server-level errors go to logger and every request context derives from
// base, so cancelling base aborts in-flight work on shutdown.
func New(base context.Context, addr string, handler http.Handler, logger *slog.Logger) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
	if logger != nil {
		srv.ErrorLog = slog.NewLogLogger(logger.Handler(), slog.LevelWarn)
	}
	return srv
}
