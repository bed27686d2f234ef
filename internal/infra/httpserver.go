package infra

import (
	"context"
	"log"
	"net/http"
	"time"
)

// HTTPServer owns the gateway listener.
type HTTPServer struct {
	server *http.Server
}

// NewHTTPServer builds the listener. Server-level errors such as broken
// connections are written to logger instead of stderr.
func NewHTTPServer(cfg *Config, handler http.Handler, logger Logger) *HTTPServer {
	errLog := logger.With().Str("component", "http").Logger()
	return &HTTPServer{server: &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		MaxHeaderBytes:    1 << 20,
		ErrorLog:          log.New(errLog, "", 0),
	}}
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return nil
	}
	return s.server.ListenAndServe()
}

// Shutdown stops accepting connections and waits for open requests.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
