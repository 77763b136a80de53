// Package server exposes the HTTP API: line status, immediate watering,
// stop, the program document and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gardend/gardend/internal/garden"
	"github.com/gardend/gardend/internal/logger"
	"github.com/gardend/gardend/internal/program"
)

const shutdownTimeout = 5 * time.Second

// Controller is the orchestrator surface the API needs.
type Controller interface {
	Status(ctx context.Context) garden.Status
	RequestImmediate(zones []int, minutes int) error
	Stop(ctx context.Context) error
	Document() *program.Document
	SetConfig(doc *program.Document) error
}

// Options configures the HTTP server.
type Options struct {
	Logger     *logger.Logger
	Controller Controller
	Gatherer   prometheus.Gatherer
	Addr       string
}

// Server is the HTTP front end.
type Server struct {
	logger *logger.Logger
	ctrl   Controller
	http   *http.Server
}

// New builds the server and its router.
func New(opts Options) *Server {
	s := &Server{logger: opts.Logger, ctrl: opts.Controller}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/immediate", s.handleImmediate)
		r.Post("/stop", s.handleStop)
		r.Get("/config", s.handleGetConfig)
		r.Put("/config", s.handlePutConfig)
	})

	s.http = &http.Server{
		Addr:         opts.Addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router, used directly in tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start begins serving and returns immediately. Listen errors other than a
// clean close are reported on the returned channel.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening",
			logger.Field{Key: "addr", Value: s.http.Addr})
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Error("http server shutdown failed", err)
	}
	s.logger.Info("http server stopped")
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			logger.Field{Key: "method", Value: r.Method},
			logger.Field{Key: "path", Value: r.URL.Path},
			logger.Field{Key: "status", Value: ww.Status()},
			logger.Field{Key: "duration", Value: time.Since(start).String()})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status(r.Context()))
}

// immediateRequest is the POST /api/immediate body.
type immediateRequest struct {
	Zones   []int `json:"zones"`
	Minutes int   `json:"minutes"`
}

func (s *Server) handleImmediate(w http.ResponseWriter, r *http.Request) {
	var req immediateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	if err := s.ctrl.RequestImmediate(req.Zones, req.Minutes); err != nil {
		if errors.Is(err, garden.ErrEmptyProgram) {
			writeError(w, http.StatusBadRequest, "empty_program", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Stop(r.Context()); err != nil {
		if errors.Is(err, garden.ErrNoSink) {
			writeError(w, http.StatusConflict, "no_sink", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Document())
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var doc program.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	if err := s.ctrl.SetConfig(&doc); err != nil {
		if errors.Is(err, garden.ErrDocumentStore) {
			writeError(w, http.StatusInternalServerError, "internal", err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_program", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

// errorBody is the error envelope all failures share.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]errorBody{"error": {Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
