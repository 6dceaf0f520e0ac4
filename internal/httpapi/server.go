// Package httpapi exposes the ingestion service over HTTP: single video
// ingestion and existence checks against the video table, direct file
// uploads, and xiaohongshu note, author and goods parsing.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/ernestzhang-11/StreamForge/internal/logging"
)

// Server wraps http.Server around the handler's routes.
type Server struct {
	log     logging.Logger
	handler http.Handler
	server  *http.Server
	port    int
}

func NewServer(h *Handler, port int, log logging.Logger) *Server {
	if log == nil {
		log = logging.Nop()
	}
	return &Server{log: log, handler: h.Routes(), port: port}
}

// Start blocks until the server stops. A clean Stop returns nil.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", s.port),
		Handler:     s.handler,
		ReadTimeout: 60 * time.Second,
		// ingestion downloads and uploads a whole video inside the request
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info(context.Background(), "http server listening", "port", s.port)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "http server")
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.log.Info(ctx, "http server shutting down")
	return s.server.Shutdown(ctx)
}
