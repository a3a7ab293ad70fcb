// Package server provides the HTTP API for localsearch.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hyperjump/localsearch/internal/config"
	"github.com/hyperjump/localsearch/internal/search"
	"github.com/hyperjump/localsearch/pkg/utils"
)

// ErrNoFreePort is returned by Listen when every port in the configured range is taken.
var ErrNoFreePort = errors.New("no free port")

// Server is the HTTP server for the localsearch API.
type Server struct {
	svc         *search.Service
	config      *config.ServerConfig
	defaultTopK int
	logger      *zap.Logger

	mu     sync.Mutex
	server *http.Server
	addr   net.Addr
}

// NewServer creates a server that answers requests with svc.
func NewServer(svc *search.Service, cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		svc:         svc,
		config:      &cfg.Server,
		defaultTopK: cfg.Search.DefaultTopK,
		logger:      utils.OrNop(logger),
	}
}

// Handler returns the router with all routes and middleware mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	if s.config.RequestTimeoutSec > 0 {
		r.Use(middleware.Timeout(time.Duration(s.config.RequestTimeoutSec) * time.Second))
	}
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc:  allowLocalOrigin,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Post("/api/embed", s.handleEmbed)
	r.Post("/api/search", s.handleSearch)
	return r
}

// allowLocalOrigin accepts http and https origins on localhost or 127.0.0.1, any port.
func allowLocalOrigin(_ *http.Request, origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1":
		return true
	}
	return false
}

// Listen binds the first free port in [Port, MaxPort] on the configured host.
// Port 0 lets the kernel pick one.
func (s *Server) Listen() (net.Listener, error) {
	first, last := s.config.Port, s.config.MaxPort
	if last < first {
		last = first
	}
	var lastErr error
	for port := first; port <= last; port++ {
		ln, err := net.Listen("tcp", net.JoinHostPort(s.config.Host, strconv.Itoa(port)))
		if err == nil {
			return ln, nil
		}
		lastErr = err
		s.logger.Debug("port unavailable", zap.Int("port", port), zap.Error(err))
	}
	return nil, fmt.Errorf("%w in %s:%d-%d: %v", ErrNoFreePort, s.config.Host, first, last, lastErr)
}

// Start binds a port and serves until Stop is called.
func (s *Server) Start() error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves HTTP on ln until Stop is called. A graceful stop returns nil.
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: time.Duration(s.config.ReadHeaderTimeoutSec) * time.Second,
	}
	s.mu.Lock()
	s.server = srv
	s.addr = ln.Addr()
	s.mu.Unlock()

	s.logger.Info("Starting server", zap.String("addr", ln.Addr().String()))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the bound address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}
