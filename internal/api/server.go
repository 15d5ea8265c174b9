// Package api exposes the HTTP interface for the crawler service.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/tulashvilimindia/batumi.work/internal/crawler"
	"github.com/tulashvilimindia/batumi.work/internal/metrics"
	"github.com/tulashvilimindia/batumi.work/internal/runner"
	"github.com/tulashvilimindia/batumi.work/internal/store"
)

// Runs starts crawl work in the background. *runner.Runner implements it.
type Runs interface {
	Submit(ctx context.Context, req runner.Request) (crawler.CrawlJob, error)
	SubmitBatch(ctx context.Context, req runner.BatchRequest) (crawler.CrawlBatch, error)
	SubmitReparse(ctx context.Context, req runner.ReparseRequest) (crawler.CrawlJob, error)
}

// Config controls server behavior.
type Config struct {
	// APIKeys are accepted bearer tokens. Empty disables auth.
	APIKeys        []string
	RequestTimeout time.Duration
}

// Server wires HTTP handlers to the runner and stores.
type Server struct {
	router   chi.Router
	runs     Runs
	controls store.ControlStore
	listings store.ListingStore
	clock    crawler.Clock
	validate *validator.Validate
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	runs Runs,
	controls store.ControlStore,
	listings store.ListingStore,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	s := &Server{
		runs:     runs,
		controls: controls,
		listings: listings,
		clock:    clock,
		validate: validator.New(),
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(echoRequestID)
	r.Use(middleware.RealIP)
	r.Use(loggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
		if len(cfg.APIKeys) > 0 {
			r.Use(apiKeyMiddleware(cfg.APIKeys))
		}
		r.Route("/runs", func(r chi.Router) {
			r.Post("/", s.submitRun)
			r.Get("/", s.listRuns)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/", s.getRun)
				r.Get("/items", s.listItems)
				r.Post("/{action}", s.controlRun)
			})
		})
		r.Post("/reparse", s.submitReparse)
		r.Get("/batches/{batch_id}", s.getBatch)
		r.Get("/listings/unqueued-count", s.unqueuedCount)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decode reads a JSON body into dst and runs struct validation.
func (s *Server) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.New("invalid JSON")
	}
	if err := s.validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// echoRequestID returns the request id to the caller.
func echoRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			w.Header().Set(middleware.RequestIDHeader, id)
		}
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				logger.Info("request completed",
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", status),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Int64("duration_ms", time.Since(start).Milliseconds()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// apiKeyMiddleware accepts "Authorization: Bearer <key>" or X-API-Key.
func apiKeyMiddleware(keys []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				key = strings.TrimPrefix(auth, "Bearer ")
			}
			if !validKey(keys, key) {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func validKey(keys []string, key string) bool {
	if key == "" {
		return false
	}
	for _, k := range keys {
		if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
