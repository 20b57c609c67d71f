// Package api exposes HTTP handlers for the wellness service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"example.com/wellness/internal/auth"
	"example.com/wellness/internal/dataset"
	"example.com/wellness/internal/domain"
	"example.com/wellness/internal/syncer"
	"example.com/wellness/internal/watermark"
)

// Syncer is the orchestrator surface used by the sync endpoints.
type Syncer interface {
	Run(ctx context.Context, req syncer.Request) (syncer.Result, error)
	Status() syncer.Status
	Watermark(ctx context.Context) (time.Time, bool, error)
}

// Option configures optional behaviour for the Handler.
type Option func(*Handler)

// WithLogger overrides the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithSyncTimeout bounds manual sync requests.
func WithSyncTimeout(d time.Duration) Option {
	return func(h *Handler) {
		h.syncTimeout = d
	}
}

// Handler coordinates HTTP requests with the domain service and orchestrator.
type Handler struct {
	service     *domain.Service
	sync        Syncer
	logger      *zap.Logger
	syncTimeout time.Duration
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, sync Syncer, opts ...Option) *Handler {
	h := &Handler{
		service:     service,
		sync:        sync,
		logger:      zap.NewNop(),
		syncTimeout: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes builds the router. authn wraps every route; it is expected to skip
// the health and metrics probes.
func (h *Handler) Routes(authn func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if authn != nil {
		r.Use(authn)
	}

	r.Get("/healthz", healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/trends", h.listTrends)
		r.Get("/trends/latest", h.latestTrend)
		r.Get("/recommendation", h.recommendation)
		r.Post("/sync", h.triggerSync)
		r.Get("/sync/status", h.syncStatus)
	})
	return r
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) listTrends(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeRead) {
		return
	}

	from, err := optionalDay(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	to, err := optionalDay(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		writeError(w, http.StatusBadRequest, "validation_failed", "to must not be before from")
		return
	}

	records, err := h.service.Trends(r.Context(), from, to)
	if err != nil {
		h.serverError(w, "list trends", err)
		return
	}
	if records == nil {
		records = []domain.DailyMetricRecord{}
	}
	writeJSON(w, http.StatusOK, TrendsResponse{Items: records, Count: len(records)})
}

func (h *Handler) latestTrend(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeRead) {
		return
	}

	rec, err := h.service.Latest(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrTrendNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "no trends stored")
			return
		}
		h.serverError(w, "latest trend", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) recommendation(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeRead) {
		return
	}

	q := r.URL.Query()
	day, err := dataset.ParseDay(q.Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "date must be YYYY-MM-DD")
		return
	}

	input := domain.RecommendationInput{Day: day}
	if raw := q.Get("stress"); raw != "" {
		stress, err := strconv.Atoi(raw)
		if err != nil || stress < 0 || stress > 5 {
			writeError(w, http.StatusBadRequest, "validation_failed", "stress must be an integer between 0 and 5")
			return
		}
		input.Stress = stress
	}
	if raw := q.Get("sleep_hours"); raw != "" {
		hours, err := strconv.ParseFloat(raw, 64)
		if err != nil || hours < 0 || hours > 24 {
			writeError(w, http.StatusBadRequest, "validation_failed", "sleep_hours must be between 0 and 24")
			return
		}
		input.SleepHours = &hours
	}

	rec, err := h.service.Recommend(r.Context(), input)
	switch {
	case errors.Is(err, domain.ErrTrendNotFound):
		writeError(w, http.StatusNotFound, "not_found", "no trend stored for "+day.Format(dataset.DayLayout))
	case errors.Is(err, domain.ErrInsufficientSignals):
		writeError(w, http.StatusUnprocessableEntity, "insufficient_signals", err.Error())
	case err != nil:
		h.serverError(w, "recommendation", err)
	default:
		writeJSON(w, http.StatusOK, rec)
	}
}

func (h *Handler) triggerSync(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeSync) {
		return
	}

	var body SyncRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
			return
		}
	}
	window, err := body.Window()
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.syncTimeout)
	defer cancel()

	result, err := h.sync.Run(ctx, syncer.Request{Window: window, Trigger: syncer.TriggerManual})
	if err != nil {
		if errors.Is(err, syncer.ErrSyncInProgress) {
			writeError(w, http.StatusConflict, "sync_in_progress", err.Error())
			return
		}
		h.logger.Warn("manual sync failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, syncer.AsFailure(err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) syncStatus(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeRead, auth.ScopeSync) {
		return
	}

	resp := SyncStatusResponse{Status: h.sync.Status()}
	ts, ok, err := h.sync.Watermark(r.Context())
	if err != nil {
		h.logger.Warn("load watermark", zap.Error(err))
	}
	if ok {
		formatted := watermark.Format(ts)
		resp.Watermark = &formatted
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) serverError(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "server_error", err.Error())
}

// requireScope writes 401/403 and returns false unless the caller holds one
// of scopes. Requests that reached the handler without claims pass when auth
// is disabled for the router.
func requireScope(w http.ResponseWriter, r *http.Request, scopes ...string) bool {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		if authDisabled(r.Context()) {
			return true
		}
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return false
	}
	for _, scope := range scopes {
		if claims.HasScope(scope) {
			return true
		}
	}
	writeError(w, http.StatusForbidden, "forbidden", "scope "+strings.Join(scopes, " or ")+" required")
	return false
}

func optionalDay(r *http.Request, key string) (time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return time.Time{}, nil
	}
	day, err := dataset.ParseDay(raw)
	if err != nil {
		return time.Time{}, errors.New(key + " must be YYYY-MM-DD")
	}
	return day, nil
}

// SyncRequest is the optional payload for POST /v1/sync.
type SyncRequest struct {
	Start string `json:"start_date"`
	End   string `json:"end_date"`
}

// Window returns the explicit window, or nil when neither bound is set.
func (s SyncRequest) Window() (*dataset.Window, error) {
	if s.Start == "" && s.End == "" {
		return nil, nil
	}
	if s.Start == "" || s.End == "" {
		return nil, errors.New("start_date and end_date must be provided together")
	}
	start, err := dataset.ParseDay(s.Start)
	if err != nil {
		return nil, errors.New("start_date must be YYYY-MM-DD")
	}
	end, err := dataset.ParseDay(s.End)
	if err != nil {
		return nil, errors.New("end_date must be YYYY-MM-DD")
	}
	w := dataset.Window{Start: start, End: end}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &w, nil
}

// TrendsResponse packages list results.
type TrendsResponse struct {
	Items []domain.DailyMetricRecord `json:"items"`
	Count int                        `json:"count"`
}

// SyncStatusResponse merges orchestrator state with the persisted watermark.
type SyncStatusResponse struct {
	syncer.Status
	Watermark *string `json:"watermark,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
