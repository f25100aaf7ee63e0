// Package server exposes the analytics and counters over HTTP
package server

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/manishdashsharma/gitview/internal/api"
	"github.com/manishdashsharma/gitview/internal/cache"
	"github.com/manishdashsharma/gitview/internal/counters"
	"github.com/manishdashsharma/gitview/internal/models"
	"lukechampine.com/blake3"
)

// Analytics serves analytics records
type Analytics interface {
	Get(ctx context.Context, username string) (*cache.Result, error)
}

// Counters serves the day counters
type Counters interface {
	Increment(ctx context.Context, scope counters.Scope) (*counters.Tick, error)
	ReadRange(ctx context.Context, scope counters.Scope, days int) (*counters.Series, error)
}

// Pinger reports whether the store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the HTTP handler
type Options struct {
	// RequestTimeout bounds each request. Zero disables the timeout.
	RequestTimeout time.Duration
}

// Server holds the handler dependencies
type Server struct {
	analytics Analytics
	counters  Counters
	store     Pinger
	logger    *log.Logger
	opts      Options
}

// New creates a Server
func New(analytics Analytics, counters Counters, store Pinger, logger *log.Logger, opts Options) *Server {
	return &Server{
		analytics: analytics,
		counters:  counters,
		store:     store,
		logger:    logger.With("component", "http"),
		opts:      opts,
	}
}

// Handler builds the router
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if s.opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.opts.RequestTimeout))
	}

	r.Get("/healthz", s.handleHealth)

	r.Get("/analytics/", s.handleMissingUsername)
	r.Get("/analytics/{username}", s.handleAnalytics)

	r.Route("/counters", func(r chi.Router) {
		r.Get("/visits", s.handleGetVisits)
		r.Post("/visits", s.handlePostVisit)
		r.Get("/profile-views/", s.handleMissingUsername)
		r.Post("/profile-views/", s.handleMissingUsername)
		r.Get("/profile-views/{username}", s.handleGetProfileViews)
		r.Post("/profile-views/{username}", s.handlePostProfileView)
	})

	// Legacy web app paths
	r.Route("/api", func(r chi.Router) {
		r.Get("/github/{username}", s.handleAnalytics)
		r.Get("/visitors", s.handleGetVisits)
		r.Post("/visitors", s.handlePostVisit)
		r.Get("/profile-views/{username}", s.handleGetProfileViews)
		r.Post("/profile-views/{username}", s.handlePostProfileView)
	})

	return r
}

// Failure messages shown by the frontend, one per endpoint
const (
	msgAnalyticsFailed    = "Failed to fetch user data"
	msgVisitsFailed       = "Failed to update visitor count"
	msgVisitFailed        = "Failed to track visitor"
	msgProfileViewsFailed = "Failed to fetch profile views"
	msgProfileViewFailed  = "Failed to track profile view"
)

type analyticsResponse struct {
	UserData *models.AnalyticsRecord `json:"userData"`
	Cached   bool                    `json:"cached"`
	CachedAt *time.Time              `json:"cachedAt,omitempty"`
}

type visitsResponse struct {
	Count      int64             `json:"count"`
	Daily      []models.DayCount `json:"daily"`
	TodayCount int64             `json:"todayCount"`
}

type visitResponse struct {
	Success bool   `json:"success"`
	Count   int64  `json:"count,omitempty"`
	Error   string `json:"error,omitempty"`
}

type profileViewsResponse struct {
	Username   string            `json:"username"`
	TotalViews int64             `json:"totalViews"`
	Daily      []models.DayCount `json:"daily"`
	TodayViews int64             `json:"todayViews"`
}

type profileViewResponse struct {
	Username string `json:"username"`
	Date     string `json:"date"`
	Count    int64  `json:"count"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	res, err := s.analytics.Get(r.Context(), username)
	if err != nil {
		s.writeError(w, r, err, msgAnalyticsFailed)
		return
	}

	resp := analyticsResponse{UserData: res.Record, Cached: res.Cached}
	if res.Cached {
		resp.CachedAt = &res.Record.CachedAt
	}

	body, err := json.Marshal(resp)
	if err != nil {
		s.writeError(w, r, err, msgAnalyticsFailed)
		return
	}

	etag := `"` + hashBytes(body) + `"`
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (s *Server) handleGetVisits(w http.ResponseWriter, r *http.Request) {
	days := counters.ParseDays(r.URL.Query().Get("days"))

	series, err := s.counters.ReadRange(r.Context(), counters.Visits(), days)
	if err != nil {
		s.writeError(w, r, err, msgVisitsFailed)
		return
	}

	writeJSON(w, http.StatusOK, visitsResponse{
		Count:      series.Total,
		Daily:      series.Daily,
		TodayCount: series.Today,
	})
}

func (s *Server) handlePostVisit(w http.ResponseWriter, r *http.Request) {
	tick, err := s.counters.Increment(r.Context(), counters.Visits())
	if err != nil {
		s.logger.Error("failed to record visit", "err", err)
		msg := msgVisitFailed
		if errors.Is(err, counters.ErrStoreUnavailable) {
			msg = "Database unavailable"
		}
		writeJSON(w, http.StatusInternalServerError, visitResponse{Error: msg})
		return
	}
	writeJSON(w, http.StatusOK, visitResponse{Success: true, Count: tick.Count})
}

func (s *Server) handleGetProfileViews(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	days := counters.ParseDays(r.URL.Query().Get("days"))

	series, err := s.counters.ReadRange(r.Context(), counters.ProfileViews(username), days)
	if err != nil {
		s.writeError(w, r, err, msgProfileViewsFailed)
		return
	}

	writeJSON(w, http.StatusOK, profileViewsResponse{
		Username:   username,
		TotalViews: series.Total,
		Daily:      series.Daily,
		TodayViews: series.Today,
	})
}

func (s *Server) handlePostProfileView(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	tick, err := s.counters.Increment(r.Context(), counters.ProfileViews(username))
	if err != nil {
		s.writeError(w, r, err, msgProfileViewFailed)
		return
	}

	writeJSON(w, http.StatusOK, profileViewResponse{
		Username: username,
		Date:     tick.Date,
		Count:    tick.Count,
	})
}

func (s *Server) handleMissingUsername(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, cache.ErrUsernameRequired, "")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Error("health check failed", "request_id", requestID(r.Context()), "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeError maps an error to its status code. Unexpected errors are logged
// and answered with the endpoint's failure message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, failure string) {
	switch {
	case errors.Is(err, cache.ErrUsernameRequired), errors.Is(err, counters.ErrUsernameRequired):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Username is required"})
	case errors.Is(err, api.ErrUserNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "User not found"})
	default:
		s.logger.Error("request failed", "path", r.URL.Path, "request_id", requestID(r.Context()), "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: failure})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// hashBytes returns the hex BLAKE3 digest of b
func hashBytes(b []byte) string {
	h := blake3.New(32, nil)
	h.Write(b)
	return hex.EncodeToString(h.Sum(nil))
}
