package syncer

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/wellness/internal/dataset"
	"example.com/wellness/internal/domain"
	"example.com/wellness/internal/events"
	"example.com/wellness/internal/oura"
)

var testNow = time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)

func june(d int) time.Time { return time.Date(2024, 6, d, 0, 0, 0, 0, time.UTC) }

type stubFetcher struct {
	mu      sync.Mutex
	sets    map[string]dataset.RecordSet
	errs    map[string][]error
	delays  map[string]time.Duration
	calls   map[string]int
	windows []dataset.Window
	block   chan struct{}
}

func (f *stubFetcher) Fetch(ctx context.Context, endpoint string, window dataset.Window) (dataset.RecordSet, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[endpoint]++
	f.windows = append(f.windows, window)
	var err error
	if queue := f.errs[endpoint]; len(queue) > 0 {
		err = queue[0]
		f.errs[endpoint] = queue[1:]
	}
	delay := f.delays[endpoint]
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return dataset.RecordSet{Endpoint: endpoint}, err
	}
	return f.sets[endpoint], nil
}

type stubWriter struct {
	mu      sync.Mutex
	err     error
	tables  []string
	records [][]domain.DailyMetricRecord
	events  []*events.Envelope
}

func (w *stubWriter) ReplaceAll(_ context.Context, table string, records []domain.DailyMetricRecord, event *events.Envelope) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.tables = append(w.tables, table)
	w.records = append(w.records, records)
	w.events = append(w.events, event)
	return nil
}

type memWatermarks struct {
	saved []time.Time
	err   error
}

func (m *memWatermarks) Save(_ context.Context, ts time.Time) error {
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, ts)
	return nil
}

func (m *memWatermarks) Load(context.Context) (time.Time, bool, error) {
	if len(m.saved) == 0 {
		return time.Time{}, false, nil
	}
	return m.saved[len(m.saved)-1], true, nil
}

type countingInvalidator struct{ n int }

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.n++
	return nil
}

func defaultSets() map[string]dataset.RecordSet {
	return map[string]dataset.RecordSet{
		oura.EndpointActivity: {Endpoint: oura.EndpointActivity, Rows: []dataset.Row{
			{Day: june(1), Fields: map[string]any{"steps": 8500.0, "score": 70.0, "timestamp": "2024-06-01T04:00:00+00:00"}},
		}},
		oura.EndpointSleep: {Endpoint: oura.EndpointSleep, Rows: []dataset.Row{
			{Day: june(1), Fields: map[string]any{"score": 85.0, "contributors.efficiency": 90.5, "timestamp": "2024-06-01T06:30:00+00:00"}},
		}},
		oura.EndpointReadiness: {Endpoint: oura.EndpointReadiness},
	}
}

func newOrchestrator(f Fetcher, w Writer, opts ...Option) *Orchestrator {
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return New(f, w, Config{Table: "oura_trends", RetryDelay: time.Millisecond}, opts...)
}

func TestRunWritesMergedGeneration(t *testing.T) {
	fetcher := &stubFetcher{sets: defaultSets()}
	writer := &stubWriter{}
	marks := &memWatermarks{}
	inv := &countingInvalidator{}
	o := newOrchestrator(fetcher, writer, WithWatermarkStore(marks), WithInvalidator(inv))

	res, err := o.Run(context.Background(), Request{Trigger: TriggerStartup})
	require.NoError(t, err)

	require.Equal(t, TriggerStartup, res.Trigger)
	require.Equal(t, 1, res.Rows)
	require.Equal(t, "2024-05-31", res.WindowStart)
	require.Equal(t, "2024-06-30", res.WindowEnd)
	require.Equal(t, []EndpointResult{
		{Endpoint: oura.EndpointActivity, Rows: 1},
		{Endpoint: oura.EndpointSleep, Rows: 1},
		{Endpoint: oura.EndpointReadiness, Rows: 0},
	}, res.Endpoints)

	require.Len(t, writer.records, 1)
	rec := writer.records[0][0]
	require.Equal(t, june(1), rec.Date)
	require.Equal(t, int64(70), *rec.ActivityScore)
	require.Equal(t, int64(8500), *rec.Steps)
	require.Equal(t, int64(85), *rec.SleepScore)
	require.Equal(t, 90.5, *rec.SleepEfficiency)
	require.Equal(t, "oura_trends", writer.tables[0])

	event := writer.events[0]
	require.Equal(t, events.TypeSyncCompleted, event.Type)
	require.Equal(t, res.RunID, event.AggregateID)
	payload := event.Payload.(events.SyncCompleted)
	require.Equal(t, 1, payload.Rows)

	wantMark := time.Date(2024, 6, 1, 6, 30, 0, 0, time.UTC)
	require.NotNil(t, res.Watermark)
	require.True(t, res.Watermark.Equal(wantMark))
	require.Len(t, marks.saved, 1)
	require.True(t, marks.saved[0].Equal(wantMark))
	require.Equal(t, 1, inv.n)

	status := o.Status()
	require.Equal(t, StateIdle, status.State)
	require.False(t, status.Running)
	require.NotNil(t, status.LastResult)
	require.Nil(t, status.LastFailure)
}

func TestRunUsesExplicitWindow(t *testing.T) {
	fetcher := &stubFetcher{sets: defaultSets()}
	o := newOrchestrator(fetcher, &stubWriter{})
	window := dataset.Window{Start: june(1), End: june(7)}

	_, err := o.Run(context.Background(), Request{Window: &window})
	require.NoError(t, err)
	for _, w := range fetcher.windows {
		require.Equal(t, window, w)
	}
}

func TestRunPreservesEndpointOrderDespiteCompletionOrder(t *testing.T) {
	fetcher := &stubFetcher{
		sets: defaultSets(),
		delays: map[string]time.Duration{
			oura.EndpointActivity: 30 * time.Millisecond,
		},
	}
	writer := &stubWriter{}
	o := newOrchestrator(fetcher, writer)

	_, err := o.Run(context.Background(), Request{})
	require.NoError(t, err)

	rec := writer.records[0][0]
	require.Equal(t, int64(70), *rec.ActivityScore, "activity owns the bare score column")
	require.Equal(t, int64(85), *rec.SleepScore)
}

func TestRunFetchFailureLeavesStoreUntouched(t *testing.T) {
	fetchErr := &oura.EndpointFetchError{Endpoint: oura.EndpointSleep, StatusCode: http.StatusUnauthorized, Body: "bad token"}
	fetcher := &stubFetcher{sets: defaultSets(), errs: map[string][]error{oura.EndpointSleep: {fetchErr}}}
	writer := &stubWriter{}
	marks := &memWatermarks{}
	o := newOrchestrator(fetcher, writer, WithWatermarkStore(marks))

	_, err := o.Run(context.Background(), Request{})
	require.Error(t, err)

	var syncErr *SyncError
	require.True(t, errors.As(err, &syncErr))
	require.Equal(t, StateFetching, syncErr.Stage)
	var gotFetch *oura.EndpointFetchError
	require.True(t, errors.As(err, &gotFetch))
	require.Equal(t, http.StatusUnauthorized, gotFetch.StatusCode)

	require.Empty(t, writer.records)
	require.Empty(t, marks.saved)

	status := o.Status()
	require.Equal(t, StateFailed, status.State)
	require.Equal(t, StateFetching, status.LastFailure.Stage)
	require.Contains(t, status.LastFailure.Cause, "daily_sleep")
}

func TestRunAllEmptyIsFetchFailure(t *testing.T) {
	fetcher := &stubFetcher{sets: map[string]dataset.RecordSet{}}
	writer := &stubWriter{}
	o := newOrchestrator(fetcher, writer)

	_, err := o.Run(context.Background(), Request{})
	require.ErrorIs(t, err, ErrNoData)
	require.Equal(t, StateFetching, AsFailure(err).Stage)
	require.Empty(t, writer.records)
}

func TestRunWriteFailureReportsWritingStage(t *testing.T) {
	writer := &stubWriter{err: errors.New("duplicate key")}
	marks := &memWatermarks{}
	inv := &countingInvalidator{}
	o := newOrchestrator(&stubFetcher{sets: defaultSets()}, writer, WithWatermarkStore(marks), WithInvalidator(inv))

	_, err := o.Run(context.Background(), Request{})
	require.Error(t, err)

	failure := AsFailure(err)
	require.Equal(t, StateWriting, failure.Stage)
	require.Equal(t, "duplicate key", failure.Cause)
	require.Empty(t, marks.saved, "watermark is only persisted after commit")
	require.Zero(t, inv.n)
}

func TestRunWatermarkPersistFailureDoesNotFailSync(t *testing.T) {
	marks := &memWatermarks{err: errors.New("disk full")}
	o := newOrchestrator(&stubFetcher{sets: defaultSets()}, &stubWriter{}, WithWatermarkStore(marks))

	res, err := o.Run(context.Background(), Request{})
	require.NoError(t, err)
	require.NotNil(t, res.Watermark)
}

func TestRunRetriesTransientFailures(t *testing.T) {
	transient := &oura.EndpointFetchError{Endpoint: oura.EndpointActivity, StatusCode: http.StatusServiceUnavailable}
	fetcher := &stubFetcher{sets: defaultSets(), errs: map[string][]error{oura.EndpointActivity: {transient, transient}}}
	o := New(fetcher, &stubWriter{}, Config{FetchAttempts: 3, RetryDelay: time.Millisecond})

	_, err := o.Run(context.Background(), Request{})
	require.NoError(t, err)
	require.Equal(t, 3, fetcher.calls[oura.EndpointActivity])
}

func TestRunDoesNotRetryPermanentFailures(t *testing.T) {
	permanent := &oura.EndpointFetchError{Endpoint: oura.EndpointActivity, StatusCode: http.StatusForbidden}
	fetcher := &stubFetcher{sets: defaultSets(), errs: map[string][]error{oura.EndpointActivity: {permanent}}}
	o := New(fetcher, &stubWriter{}, Config{FetchAttempts: 3, RetryDelay: time.Millisecond})

	_, err := o.Run(context.Background(), Request{})
	require.Error(t, err)
	require.Equal(t, 1, fetcher.calls[oura.EndpointActivity])
}

func TestConcurrentTriggerIsRejected(t *testing.T) {
	block := make(chan struct{})
	fetcher := &stubFetcher{sets: defaultSets(), block: block}
	writer := &stubWriter{}
	o := newOrchestrator(fetcher, writer)

	done := make(chan error, 1)
	go func() {
		_, err := o.Run(context.Background(), Request{})
		done <- err
	}()

	require.Eventually(t, func() bool { return o.Status().Running }, time.Second, 5*time.Millisecond)

	var rejected atomic.Int32
	for i := 0; i < 3; i++ {
		if _, err := o.Run(context.Background(), Request{Trigger: TriggerManual}); errors.Is(err, ErrSyncInProgress) {
			rejected.Add(1)
		}
	}
	_, err := o.Import(context.Background(), dataset.RecordSet{Endpoint: "export"})
	require.ErrorIs(t, err, ErrSyncInProgress)

	close(block)
	require.NoError(t, <-done)
	require.Equal(t, int32(3), rejected.Load())
	require.Len(t, writer.records, 1)
}

func TestImportWritesColumnNamedRows(t *testing.T) {
	writer := &stubWriter{}
	o := newOrchestrator(&stubFetcher{}, writer)

	set := dataset.RecordSet{Endpoint: "export", Rows: []dataset.Row{
		{Day: june(2), Fields: map[string]any{"steps": "4200", "sleep_score": "None"}},
	}}
	res, err := o.Import(context.Background(), set)
	require.NoError(t, err)
	require.Equal(t, TriggerImport, res.Trigger)
	require.Equal(t, 1, res.Rows)
	require.Nil(t, res.Watermark)

	rec := writer.records[0][0]
	require.Equal(t, int64(4200), *rec.Steps)
	require.Nil(t, rec.SleepScore)
	require.Equal(t, []string{"export"}, writer.events[0].Payload.(events.SyncCompleted).Endpoints)

	_, err = o.Import(context.Background(), dataset.RecordSet{Endpoint: "export"})
	require.ErrorIs(t, err, ErrNoData)
}
