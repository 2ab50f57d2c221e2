package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/docresolver/internal/document"
	"github.com/JakeFAU/docresolver/internal/metrics"
)

// DefaultRequestTimeout bounds a single API request, resolution included.
const DefaultRequestTimeout = 2 * time.Minute

// Saver resolves and stores documents.
type Saver interface {
	Save(ctx context.Context, identifier, name string) (string, error)
	Mirrors() []string
}

// Server wires HTTP handlers to the download service.
type Server struct {
	router chi.Router
	saver  Saver
	logger *zap.Logger
}

type resolveRequest struct {
	Identifier string `json:"identifier"`
	Name       string `json:"name,omitempty"`
}

type resolveResponse struct {
	Identifier string `json:"identifier"`
	Kind       string `json:"kind"`
	Path       string `json:"path"`
}

// NewServer constructs a Server with middleware and routes. A zero timeout
// uses DefaultRequestTimeout.
func NewServer(saver Saver, timeout time.Duration, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	s := &Server{saver: saver, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(timeoutMiddleware(timeout))
		r.Post("/resolve", s.resolve)
		r.Get("/mirrors", s.mirrors)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if len(s.saver.Mirrors()) == 0 {
		s.writeError(w, http.StatusServiceUnavailable, "no mirrors available")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Identifier = strings.TrimSpace(req.Identifier)
	if req.Identifier == "" {
		s.writeError(w, http.StatusBadRequest, "identifier required")
		return
	}
	if strings.ContainsAny(req.Name, `/\`) {
		s.writeError(w, http.StatusBadRequest, "name must not contain path separators")
		return
	}

	path, err := s.saver.Save(r.Context(), req.Identifier, req.Name)
	// A save cut short by the deadline may surface as a miss.
	if ctxErr := r.Context().Err(); ctxErr != nil {
		s.writeError(w, statusFor(ctxErr), "request timed out")
		return
	}
	if err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	if path == "" {
		s.writeError(w, http.StatusNotFound, "identifier not found")
		return
	}
	s.writeJSON(w, http.StatusOK, resolveResponse{
		Identifier: req.Identifier,
		Kind:       string(document.Classify(req.Identifier)),
		Path:       path,
	})
}

func (s *Server) mirrors(w http.ResponseWriter, _ *http.Request) {
	mirrors := s.saver.Mirrors()
	if mirrors == nil {
		mirrors = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"mirrors": mirrors})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case document.KindOf(err) == document.ErrorKindSiteAccess:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		reqID, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Info("request completed",
			zap.String("request_id", reqID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// timeoutMiddleware bounds the request context. Handlers observe the
// deadline and answer for themselves.
func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
