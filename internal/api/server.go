// Package api exposes the booking coordinator over HTTP/JSON.
//
// Callers authenticate with the shared X-Api-Key and identify the acting user
// with X-User-ID, which the upstream identity provider has already verified.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"testdrive/internal/booking"
	"testdrive/internal/metrics"
	"testdrive/internal/ratelimit"
	"testdrive/internal/schedule"
)

const (
	headerAPIKey = "X-Api-Key"
	headerUserID = "X-User-ID"
)

type Options struct {
	APIKey string
	// Insecure accepts requests without an API key. Without it an empty
	// APIKey rejects every request.
	Insecure     bool
	DealershipID string
	// Limiter throttles booking creation per user; nil disables it.
	Limiter ratelimit.Limiter
}

type Server struct {
	coordinator  *booking.Coordinator
	schedules    schedule.Store
	dealershipID string
	limiter      ratelimit.Limiter
	apiKey       string
	insecure     bool
	logger       *zerolog.Logger
	mux          *http.ServeMux
}

func NewServer(coordinator *booking.Coordinator, schedules schedule.Store, opts Options, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "api").Logger()
	s := &Server{
		coordinator:  coordinator,
		schedules:    schedules,
		dealershipID: opts.DealershipID,
		limiter:      opts.Limiter,
		apiKey:       opts.APIKey,
		insecure:     opts.Insecure,
		logger:       &l,
		mux:          http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/v1/schedule", s.handleGetSchedule)
	s.mux.HandleFunc("PUT /api/v1/schedule", s.handleReplaceSchedule)

	s.mux.HandleFunc("GET /api/v1/resources/{id}/slots", s.handleSlots)
	s.mux.HandleFunc("GET /api/v1/resources/{id}/bookings", s.handleResourceBookings)

	s.mux.HandleFunc("POST /api/v1/bookings", s.handleCreateBooking)
	s.mux.HandleFunc("GET /api/v1/bookings/mine", s.handleMyBookings)
	s.mux.HandleFunc("GET /api/v1/bookings/{id}", s.handleGetBooking)
	s.mux.HandleFunc("POST /api/v1/bookings/{id}/cancel", s.handleCancelBooking)
	s.mux.HandleFunc("PATCH /api/v1/bookings/{id}/status", s.handleUpdateStatus)

	s.mux.HandleFunc("GET /api/v1/admin/bookings", s.handleAdminBookings)
	s.mux.HandleFunc("GET /api/v1/admin/bookings/export", s.handleExport)
}

// Handler is the full middleware chain.
func (s *Server) Handler() http.Handler {
	return s.observe(s.authenticate(s.mux))
}

// NewHTTPServer wraps the handler with the configured timeouts.
func (s *Server) NewHTTPServer(addr string, readTimeout, writeTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
	}
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.insecure && !s.validKey(r.Header.Get(headerAPIKey)) {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		if r.Header.Get(headerUserID) == "" {
			writeError(w, http.StatusUnauthorized, headerUserID+" header is required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) validKey(key string) bool {
	if s.apiKey == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) == 1
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		metrics.ObserveRequest(route, rec.status, elapsed)

		event := s.logger.Debug()
		if rec.status >= http.StatusInternalServerError {
			event = s.logger.Error()
		}
		event.Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("user_id", r.Header.Get(headerUserID)).
			Int("status", rec.status).
			Dur("elapsed", elapsed).
			Msg("request")
	})
}

func userID(r *http.Request) string {
	return r.Header.Get(headerUserID)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
