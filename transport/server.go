package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Server wraps an http.Server around a gorilla/mux router, serving either
// an AuthorityHandlers or a DistributorHandlers set of routes depending on
// which binary registers them.
type Server struct {
	Addr   string
	Logger zerolog.Logger

	router *mux.Router
	srv    *http.Server
}

// NewServer returns a Server with routes registered via register.
func NewServer(addr string, logger zerolog.Logger, register func(*mux.Router)) *Server {
	router := mux.NewRouter()
	register(router)
	return &Server{
		Addr:   addr,
		Logger: logger,
		router: router,
	}
}

// ListenAndServe starts the HTTP server and blocks until it stops.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("transport: listen: %w", err)
	}
	s.srv = &http.Server{
		Handler:      loggingMiddleware(s.Logger, s.router),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	s.Logger.Info().Str("addr", s.Addr).Msg("http server listening")
	if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("transport: serve: %w", err)
	}
	return nil
}

// Close shuts the server down gracefully.
func (s *Server) Close() error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

func loggingMiddleware(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("handled request")
	})
}
