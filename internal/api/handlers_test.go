package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/wellness/internal/auth"
	"example.com/wellness/internal/domain"
	"example.com/wellness/internal/syncer"
)

func june(d int) time.Time { return time.Date(2024, 6, d, 0, 0, 0, 0, time.UTC) }

func int64p(v int64) *int64 { return &v }

type memReader struct {
	records []domain.DailyMetricRecord
	from    time.Time
	to      time.Time
	err     error
}

func (m *memReader) ListTrends(_ context.Context, from, to time.Time) ([]domain.DailyMetricRecord, error) {
	m.from, m.to = from, to
	return m.records, m.err
}

func (m *memReader) GetTrend(_ context.Context, day time.Time) (*domain.DailyMetricRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.records {
		if m.records[i].Date.Equal(day) {
			rec := m.records[i]
			return &rec, nil
		}
	}
	return nil, nil
}

func (m *memReader) LatestTrend(context.Context) (*domain.DailyMetricRecord, error) {
	if m.err != nil || len(m.records) == 0 {
		return nil, m.err
	}
	rec := m.records[len(m.records)-1]
	return &rec, nil
}

type stubSyncer struct {
	mu        sync.Mutex
	requests  []syncer.Request
	result    syncer.Result
	err       error
	status    syncer.Status
	watermark time.Time
}

func (s *stubSyncer) Run(_ context.Context, req syncer.Request) (syncer.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	return s.result, s.err
}

func (s *stubSyncer) Status() syncer.Status { return s.status }

func (s *stubSyncer) Watermark(context.Context) (time.Time, bool, error) {
	return s.watermark, !s.watermark.IsZero(), nil
}

func withScopes(scopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := &auth.Claims{Subject: "tester", Scopes: map[string]struct{}{}}
			for _, s := range scopes {
				claims.Scopes[s] = struct{}{}
			}
			next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
		})
	}
}

func newRouter(reader *memReader, runner *stubSyncer, authn func(http.Handler) http.Handler) http.Handler {
	return NewHandler(domain.NewService(reader), runner).Routes(authn)
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestListTrends(t *testing.T) {
	reader := &memReader{records: []domain.DailyMetricRecord{
		{Date: june(1), SleepScore: int64p(80)},
		{Date: june(2), Steps: int64p(9000)},
	}}
	router := newRouter(reader, &stubSyncer{}, withScopes(auth.ScopeRead))

	rr := do(t, router, http.MethodGet, "/v1/trends?from=2024-06-01&to=2024-06-30", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, june(1), reader.from)
	require.Equal(t, june(30), reader.to)

	var resp struct {
		Items []map[string]any `json:"items"`
		Count int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Count)
	require.Equal(t, 80.0, resp.Items[0]["sleep_score"])
	require.Nil(t, resp.Items[0]["steps"])
}

func TestListTrendsValidation(t *testing.T) {
	router := newRouter(&memReader{}, &stubSyncer{}, withScopes(auth.ScopeRead))

	rr := do(t, router, http.MethodGet, "/v1/trends?from=June", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, http.MethodGet, "/v1/trends?from=2024-06-10&to=2024-06-01", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, http.MethodGet, "/v1/trends", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"items":[],"count":0}`, rr.Body.String())
}

func TestScopes(t *testing.T) {
	reader := &memReader{}

	rr := do(t, newRouter(reader, &stubSyncer{}, withScopes("other")), http.MethodGet, "/v1/trends", "")
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(t, newRouter(reader, &stubSyncer{}, withScopes(auth.ScopeRead)), http.MethodPost, "/v1/sync", "")
	require.Equal(t, http.StatusForbidden, rr.Code)

	authn := auth.NewMiddleware(auth.Config{Secret: "s", Issuer: "i"}, auth.PublicPaths).Wrap
	router := newRouter(reader, &stubSyncer{}, authn)
	require.Equal(t, http.StatusUnauthorized, do(t, router, http.MethodGet, "/v1/trends", "").Code)
	require.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/healthz", "").Code)
	require.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/metrics", "").Code)

	rr = do(t, newRouter(reader, &stubSyncer{}, NoAuth), http.MethodGet, "/v1/trends", "")
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestLatestTrend(t *testing.T) {
	router := newRouter(&memReader{}, &stubSyncer{}, NoAuth)
	require.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/v1/trends/latest", "").Code)

	reader := &memReader{records: []domain.DailyMetricRecord{{Date: june(1)}, {Date: june(2), ActivityScore: int64p(70)}}}
	rr := do(t, newRouter(reader, &stubSyncer{}, NoAuth), http.MethodGet, "/v1/trends/latest", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var rec domain.DailyMetricRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	require.Equal(t, june(2), rec.Date.UTC())
	require.Equal(t, int64(70), *rec.ActivityScore)

	failing := &memReader{err: errors.New("db down")}
	require.Equal(t, http.StatusInternalServerError, do(t, newRouter(failing, &stubSyncer{}, NoAuth), http.MethodGet, "/v1/trends/latest", "").Code)
}

func TestRecommendation(t *testing.T) {
	reader := &memReader{records: []domain.DailyMetricRecord{
		{Date: june(1), Steps: int64p(9000), LowestRestingHeartRate: int64p(55), TotalSleepDuration: int64p(8 * 3600)},
		{Date: june(2), ActivityScore: int64p(70)},
	}}
	router := newRouter(reader, &stubSyncer{}, NoAuth)

	rr := do(t, router, http.MethodGet, "/v1/recommendation?date=2024-06-01", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var rec domain.Recommendation
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	require.Equal(t, domain.WorkoutCardio, rec.Workout)

	rr = do(t, router, http.MethodGet, "/v1/recommendation?date=2024-06-01&stress=4", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	require.Equal(t, domain.WorkoutRest, rec.Workout)

	require.Equal(t, http.StatusUnprocessableEntity, do(t, router, http.MethodGet, "/v1/recommendation?date=2024-06-02", "").Code)
	require.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/v1/recommendation?date=2024-06-03", "").Code)
	require.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/v1/recommendation", "").Code)
	require.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/v1/recommendation?date=2024-06-01&stress=9", "").Code)
	require.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/v1/recommendation?date=2024-06-01&sleep_hours=x", "").Code)
}

func TestTriggerSync(t *testing.T) {
	runner := &stubSyncer{result: syncer.Result{RunID: "run-1", Table: "oura_trends", Rows: 3}}
	router := newRouter(&memReader{}, runner, withScopes(auth.ScopeSync))

	rr := do(t, router, http.MethodPost, "/v1/sync", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var result syncer.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	require.Equal(t, "run-1", result.RunID)
	require.Equal(t, 3, result.Rows)
	require.Len(t, runner.requests, 1)
	require.Nil(t, runner.requests[0].Window)
	require.Equal(t, syncer.TriggerManual, runner.requests[0].Trigger)

	rr = do(t, router, http.MethodPost, "/v1/sync", `{"start_date":"2024-06-01","end_date":"2024-06-30"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, runner.requests[1].Window)
	require.Equal(t, june(1), runner.requests[1].Window.Start)
	require.Equal(t, june(30), runner.requests[1].Window.End)

	require.Equal(t, http.StatusBadRequest, do(t, router, http.MethodPost, "/v1/sync", `{"start_date":"2024-06-01"}`).Code)
	require.Equal(t, http.StatusBadRequest, do(t, router, http.MethodPost, "/v1/sync", `{"start_date":"2024-06-30","end_date":"2024-06-01"}`).Code)
	require.Equal(t, http.StatusBadRequest, do(t, router, http.MethodPost, "/v1/sync", `{`).Code)
}

func TestTriggerSyncFailures(t *testing.T) {
	runner := &stubSyncer{err: syncer.ErrSyncInProgress}
	router := newRouter(&memReader{}, runner, NoAuth)

	rr := do(t, router, http.MethodPost, "/v1/sync", "")
	require.Equal(t, http.StatusConflict, rr.Code)

	runner.err = &syncer.SyncError{Stage: syncer.StateFetching, Cause: errors.New("fetch daily_sleep: status 502: upstream down")}
	rr = do(t, router, http.MethodPost, "/v1/sync", "")
	require.Equal(t, http.StatusBadGateway, rr.Code)
	require.JSONEq(t, `{"stage":"fetching","cause":"fetch daily_sleep: status 502: upstream down"}`, rr.Body.String())
}

func TestSyncStatus(t *testing.T) {
	finished := time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)
	runner := &stubSyncer{
		status: syncer.Status{
			State:          syncer.StateFailed,
			LastFailure:    &syncer.Failure{Stage: syncer.StateWriting, Cause: "boom"},
			LastFinishedAt: &finished,
		},
		watermark: time.Date(2024, 6, 2, 6, 30, 0, 0, time.UTC),
	}
	rr := do(t, newRouter(&memReader{}, runner, withScopes(auth.ScopeSync)), http.MethodGet, "/v1/sync/status", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "failed", resp["state"])
	require.Equal(t, "2024-06-02 06:30:00", resp["watermark"])
	require.Equal(t, map[string]any{"stage": "writing", "cause": "boom"}, resp["last_failure"])
}
