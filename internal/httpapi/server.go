// Package httpapi exposes record gateways over HTTP: one collection per
// record kind for reads and writes, plus a websocket endpoint per kind that
// streams the kind's change feed.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mesh-intelligence/obay/internal/gateway"
	"github.com/mesh-intelligence/obay/internal/metrics"
	"github.com/mesh-intelligence/obay/internal/schema"
	"github.com/mesh-intelligence/obay/pkg/types"
)

// Socket timing defaults.
const (
	DefaultPingInterval = 25 * time.Second
	DefaultPongWait     = 60 * time.Second
	DefaultWriteWait    = 10 * time.Second
)

const maxBodyBytes = 1 << 20

// Server routes HTTP and websocket requests to gateways.
type Server struct {
	router  chi.Router
	store   types.Store
	metrics *metrics.Metrics
	logger  *slog.Logger

	pingInterval time.Duration
	pongWait     time.Duration
	writeWait    time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithStore enables /healthz against s.
func WithStore(s types.Store) Option {
	return func(srv *Server) { srv.store = s }
}

// WithMetrics serves m on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(srv *Server) { srv.metrics = m }
}

// WithLogger sets the server's logger.
func WithLogger(l *slog.Logger) Option {
	return func(srv *Server) {
		if l != nil {
			srv.logger = l
		}
	}
}

// WithPingInterval sets how often idle sockets are pinged. The pong wait is
// set to twice the interval.
func WithPingInterval(d time.Duration) Option {
	return func(srv *Server) {
		if d > 0 {
			srv.pingInterval = d
			srv.pongWait = 2 * d
		}
	}
}

// New builds the router for gws.
func New(gws []*gateway.Gateway, opts ...Option) *Server {
	s := &Server{
		logger:       slog.Default(),
		pingInterval: DefaultPingInterval,
		pongWait:     DefaultPongWait,
		writeWait:    DefaultWriteWait,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	for _, g := range gws {
		s.mount(r, g)
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeNotFound(w)
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) mount(r chi.Router, g *gateway.Gateway) {
	h := &kindHandler{server: s, g: g}
	path := "/" + g.Kind().Table

	r.Route(path, func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.get)
		r.Put("/{id}", h.update)
		r.Post("/{id}", h.update)
		r.Delete("/{id}", h.delete)
	})
	r.Get("/ws"+path, h.watch)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.store.WaitReady(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, errorBody{Err: err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

type errorBody struct {
	Err string `json:"err"`
}

type validationBody struct {
	Err        string             `json:"err"`
	Kind       string             `json:"kind"`
	Violations []schema.Violation `json:"violations"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeNotFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, errorBody{Err: "Not found"})
}

// writeError maps gateway errors onto status codes. Store failures are
// logged as route errors.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *schema.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, validationBody{
			Err:        "validation failed",
			Kind:       ve.Kind,
			Violations: ve.Violations,
		})
	case errors.Is(err, types.ErrDuplicateID):
		writeJSON(w, http.StatusConflict, errorBody{Err: types.ErrDuplicateID.Error()})
	case errors.Is(err, types.ErrInvalidID):
		writeJSON(w, http.StatusBadRequest, errorBody{Err: types.ErrInvalidID.Error()})
	default:
		s.logger.Error("route error",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, errorBody{Err: err.Error()})
	}
}
