// SPDX-License-Identifier: EPL-2.0

// Package server exposes a database over a read-only HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/ik5/uwloc/formats/wav"
	"github.com/ik5/uwloc/internal/database"
	"github.com/ik5/uwloc/internal/metrics"
	"github.com/ik5/uwloc/internal/samplestore"
	"go.uber.org/zap"
)

// RequestIDHeader carries the request id on requests and responses.
const RequestIDHeader = "X-Request-ID"

// DefaultMaxSpan is the longest range one samples request may read unless
// WithMaxSpan says otherwise.
const DefaultMaxSpan = 10 * time.Minute

const (
	apiPrefix       = "/api/v1"
	shutdownTimeout = 10 * time.Second
)

// Config holds the listener settings.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server routes API requests to one database.
type Server struct {
	db      *database.Database
	metrics *metrics.Metrics
	log     *zap.Logger
	router  *mux.Router
	maxSpan int64
}

// Option configures a Server.
type Option func(*Server)

// WithMaxSpan bounds the range of a samples request. Values under one second
// keep the default.
func WithMaxSpan(d time.Duration) Option {
	return func(s *Server) {
		if d >= time.Second {
			s.maxSpan = int64(d / time.Second)
		}
	}
}

// New builds the router. m and log may be nil.
func New(db *database.Database, m *metrics.Metrics, log *zap.Logger, opts ...Option) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	s := &Server{
		db:      db,
		metrics: m,
		log:     log.Named("server"),
		router:  mux.NewRouter(),
		maxSpan: int64(DefaultMaxSpan / time.Second),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.routes()

	return s
}

func (s *Server) routes() {
	s.router.Use(s.requestID, s.accessLog)
	s.router.MethodNotAllowedHandler = s.requestID(http.HandlerFunc(handleMethodNotAllowed))

	// Routes stay on the root router; a mux subrouter answers a wrong method
	// with 404.
	s.router.HandleFunc(apiPrefix+"/info", s.handleInfo).Methods(http.MethodGet)
	s.router.HandleFunc(apiPrefix+"/devices", s.handleDevices).Methods(http.MethodGet)
	s.router.HandleFunc(apiPrefix+"/devices/{id}/samples", s.handleSamples).Methods(http.MethodGet)

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run listens on cfg.Addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context, cfg Config) error {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      s,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errc := make(chan error, 1)

	go func() {
		s.log.Info("listening", zap.String("addr", cfg.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)

	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.log.Info("stopped")

	return nil
}

func handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	respondError(w, http.StatusMethodNotAllowed, fmt.Sprintf("method %s not allowed on %s", r.Method, r.URL.Path))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.db.Info(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	entries, err := s.db.Entries(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, entries)
}

// samplesResponse is the JSON form of a device slice.
type samplesResponse struct {
	DeviceID   string  `json:"device_id"`
	RowID      int64   `json:"row_id"`
	SampleRate int     `json:"sample_rate"`
	Start      int64   `json:"start"`
	End        int64   `json:"end"`
	Samples    []int16 `json:"samples"`
}

// handleSamples serves GET /devices/{id}/samples?start=&end=[&format=json].
// start and end are whole seconds after the start date. start defaults to 0
// and end to start plus the maximum span, clipped to the deployment. A range
// longer than the maximum span is refused. The body is a mono WAV unless
// format=json.
func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	cfg := s.db.Deployment()

	start, err := queryInt(r, "start", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	end, err := queryInt(r, "end", min(start+s.maxSpan, cfg.MaxHours*3600))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if end-start > s.maxSpan {
		respondError(w, http.StatusBadRequest,
			fmt.Sprintf("range [%d, %d) is longer than the %ds limit", start, end, s.maxSpan))
		return
	}

	format := r.URL.Query().Get("format")
	if format != "" && format != "json" && format != "wav" {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown format %q", format))
		return
	}

	row, ok, err := s.db.RowFor(r.Context(), id)
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	if !ok {
		respondError(w, http.StatusNotFound, fmt.Sprintf("unknown device %q", id))
		return
	}

	samples, err := s.db.ReadDevice(r.Context(), id, start, end)
	switch {
	case errors.Is(err, samplestore.ErrInvalidRange):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.internalError(w, r, err)
		return
	}

	if format == "json" {
		respondJSON(w, http.StatusOK, samplesResponse{
			DeviceID:   id,
			RowID:      row,
			SampleRate: cfg.SampleRate,
			Start:      start,
			End:        end,
			Samples:    samples,
		})
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("%s_%d_%d.wav", id, start, end)))
	w.WriteHeader(http.StatusOK)

	if err := wav.WriteWAV16(w, cfg.SampleRate, samples); err != nil {
		s.log.Warn("write wav", zap.String("device", id), zap.Error(err))
	}
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Error("request failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", w.Header().Get(RequestIDHeader)),
		zap.Error(err))
	respondError(w, http.StatusInternalServerError, err.Error())
}

func queryInt(r *http.Request, key string, def int64) (int64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}

	return v, nil
}

// requestID tags every request and response with an id.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// statusWriter captures the status code for logging.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		s.log.Debug("request",
			zap.String("request_id", w.Header().Get(RequestIDHeader)),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Duration("duration", time.Since(start)))
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
