// Package syncer runs the fetch, merge, normalize and write pipeline that
// refreshes the trends table.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"example.com/wellness/internal/cache"
	"example.com/wellness/internal/coerce"
	"example.com/wellness/internal/dataset"
	"example.com/wellness/internal/domain"
	"example.com/wellness/internal/events"
	"example.com/wellness/internal/observability"
	"example.com/wellness/internal/oura"
	"example.com/wellness/internal/watermark"
)

// State is a pipeline stage.
type State string

const (
	StateIdle     State = "idle"
	StateFetching State = "fetching"
	StateMerging  State = "merging"
	StateWriting  State = "writing"
	StateFailed   State = "failed"
)

// Triggers recorded on results and metrics.
const (
	TriggerStartup = "startup"
	TriggerManual  = "manual"
	TriggerImport  = "import"
)

// Fetcher retrieves one endpoint collection.
type Fetcher interface {
	Fetch(ctx context.Context, endpoint string, window dataset.Window) (dataset.RecordSet, error)
}

// Writer replaces the contents of a table in one transaction.
type Writer interface {
	ReplaceAll(ctx context.Context, table string, records []domain.DailyMetricRecord, event *events.Envelope) error
}

// Config controls a sync run.
type Config struct {
	Endpoints       []string
	Table           string
	WindowDays      int
	WatermarkFields []string
	// FetchAttempts is the number of tries per endpoint for transient
	// failures. Values below 2 disable retry.
	FetchAttempts uint
	RetryDelay    time.Duration
}

// Request describes one invocation.
type Request struct {
	// Window overrides the trailing default window.
	Window  *dataset.Window
	Trigger string
}

// EndpointResult summarises one fetch.
type EndpointResult struct {
	Endpoint string `json:"endpoint"`
	Rows     int    `json:"rows"`
}

// Result describes a committed generation.
type Result struct {
	RunID       string           `json:"run_id"`
	Trigger     string           `json:"trigger"`
	Table       string           `json:"table"`
	WindowStart string           `json:"window_start,omitempty"`
	WindowEnd   string           `json:"window_end,omitempty"`
	Endpoints   []EndpointResult `json:"endpoints"`
	Rows        int              `json:"rows"`
	Warnings    int              `json:"warnings"`
	Watermark   *time.Time       `json:"watermark,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt time.Time        `json:"completed_at"`
}

// Status is a point-in-time view of the orchestrator.
type Status struct {
	State          State      `json:"state"`
	Running        bool       `json:"running"`
	LastResult     *Result    `json:"last_result,omitempty"`
	LastFailure    *Failure   `json:"last_failure,omitempty"`
	LastStartedAt  *time.Time `json:"last_started_at,omitempty"`
	LastFinishedAt *time.Time `json:"last_finished_at,omitempty"`
}

// Option configures optional behaviour for the Orchestrator.
type Option func(*Orchestrator)

// WithLogger overrides the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithWatermarkStore persists the watermark after each committed generation.
func WithWatermarkStore(store watermark.Store) Option {
	return func(o *Orchestrator) {
		o.watermarks = store
	}
}

// WithInvalidator is notified after each committed generation.
func WithInvalidator(inv cache.Invalidator) Option {
	return func(o *Orchestrator) {
		o.invalidator = inv
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// Orchestrator sequences fetch, merge, normalize and write. At most one run
// is active at a time; concurrent triggers are rejected with ErrSyncInProgress.
type Orchestrator struct {
	fetcher     Fetcher
	writer      Writer
	cfg         Config
	logger      *zap.Logger
	watermarks  watermark.Store
	invalidator cache.Invalidator
	now         func() time.Time

	running sync.Mutex

	mu     sync.RWMutex
	status Status
}

// New constructs an Orchestrator.
func New(fetcher Fetcher, writer Writer, cfg Config, opts ...Option) *Orchestrator {
	if len(cfg.Endpoints) == 0 {
		cfg.Endpoints = oura.DefaultEndpoints
	}
	if cfg.Table == "" {
		cfg.Table = "oura_trends"
	}
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = 30
	}
	if len(cfg.WatermarkFields) == 0 {
		cfg.WatermarkFields = watermark.DefaultFields
	}
	if cfg.FetchAttempts == 0 {
		cfg.FetchAttempts = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}

	o := &Orchestrator{
		fetcher:     fetcher,
		writer:      writer,
		cfg:         cfg,
		logger:      zap.NewNop(),
		invalidator: cache.NoopInvalidator{},
		now:         time.Now,
		status:      Status{State: StateIdle},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run fetches every configured endpoint for the window, merges and
// normalizes the results, and replaces the table with the new generation.
// Failures return a *SyncError and leave the table untouched.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Result, error) {
	if !o.running.TryLock() {
		observability.RecordSyncRejected()
		return Result{}, ErrSyncInProgress
	}
	defer o.running.Unlock()

	run := o.begin(req.Trigger, TriggerManual)
	window := dataset.TrailingWindow(run.StartedAt, o.cfg.WindowDays)
	if req.Window != nil {
		window = *req.Window
	}
	run.WindowStart = window.Start.Format(dataset.DayLayout)
	run.WindowEnd = window.End.Format(dataset.DayLayout)

	logger := o.logger.With(zap.String("run_id", run.RunID), zap.String("trigger", run.Trigger), zap.String("window", window.String()))
	logger.Info("sync started", zap.Strings("endpoints", o.cfg.Endpoints))

	o.setState(StateFetching)
	sets, err := o.fetchAll(ctx, window, logger)
	if err != nil {
		return Result{}, o.fail(run, StateFetching, err, logger)
	}
	total := 0
	for _, set := range sets {
		run.Endpoints = append(run.Endpoints, EndpointResult{Endpoint: set.Endpoint, Rows: set.Len()})
		total += set.Len()
	}
	if total == 0 {
		return Result{}, o.fail(run, StateFetching, ErrNoData, logger)
	}

	o.setState(StateMerging)
	merged := dataset.Merge(sets...)
	if ts, ok := watermark.Latest(merged, o.cfg.WatermarkFields); ok {
		run.Watermark = &ts
	}
	return o.commit(ctx, run, merged, domain.APIMapping, logger)
}

// Import writes a flat-file record set as a new generation through the same
// normalize and write path as Run.
func (o *Orchestrator) Import(ctx context.Context, set dataset.RecordSet) (Result, error) {
	if !o.running.TryLock() {
		observability.RecordSyncRejected()
		return Result{}, ErrSyncInProgress
	}
	defer o.running.Unlock()

	run := o.begin(TriggerImport, TriggerImport)
	run.Endpoints = []EndpointResult{{Endpoint: set.Endpoint, Rows: set.Len()}}
	logger := o.logger.With(zap.String("run_id", run.RunID), zap.String("trigger", run.Trigger))
	logger.Info("import started", zap.String("source", set.Endpoint), zap.Int("rows", set.Len()))

	if set.Len() == 0 {
		return Result{}, o.fail(run, StateFetching, ErrNoData, logger)
	}

	o.setState(StateMerging)
	merged := dataset.Merge(set)
	return o.commit(ctx, run, merged, domain.ColumnMapping(), logger)
}

func (o *Orchestrator) begin(trigger, fallback string) Result {
	if trigger == "" {
		trigger = fallback
	}
	now := o.now().UTC()
	o.mu.Lock()
	o.status.LastStartedAt = &now
	o.mu.Unlock()
	return Result{
		RunID:     uuid.NewString(),
		Trigger:   trigger,
		Table:     o.cfg.Table,
		StartedAt: now,
	}
}

func (o *Orchestrator) commit(ctx context.Context, run Result, merged dataset.Merged, mapping domain.FieldMapping, logger *zap.Logger) (Result, error) {
	var warnings coerce.Warnings
	records := domain.Normalize(merged, mapping, &warnings)
	for _, w := range warnings.Items() {
		observability.RecordCoercionWarning(w.Field)
		logger.Debug("field dropped", zap.String("field", w.Field), zap.Any("value", w.Value))
	}
	if n := warnings.Len(); n > 0 {
		logger.Warn("coercion warnings", zap.Int("count", n))
	}
	run.Rows = len(records)
	run.Warnings = warnings.Len()

	o.setState(StateWriting)
	run.CompletedAt = o.now().UTC()
	event := &events.Envelope{
		Type:        events.TypeSyncCompleted,
		AggregateID: run.RunID,
		Payload:     syncCompleted(run, o.cfg.Endpoints),
	}
	if err := o.writer.ReplaceAll(ctx, run.Table, records, event); err != nil {
		return Result{}, o.fail(run, StateWriting, err, logger)
	}

	o.afterCommit(ctx, run, logger)
	return run, nil
}

func (o *Orchestrator) afterCommit(ctx context.Context, run Result, logger *zap.Logger) {
	if run.Watermark != nil {
		observability.RecordWatermark(*run.Watermark)
		if o.watermarks != nil {
			if err := o.watermarks.Save(ctx, *run.Watermark); err != nil {
				logger.Warn("watermark not persisted", zap.Error(err))
			}
		}
	}
	if err := o.invalidator.Invalidate(ctx); err != nil {
		logger.Warn("cache invalidation failed", zap.Error(err))
	}

	observability.RecordSyncSucceeded(run.Trigger, run.Rows, run.CompletedAt.Sub(run.StartedAt), run.CompletedAt)

	o.mu.Lock()
	finished := run.CompletedAt
	o.status.State = StateIdle
	o.status.LastResult = &run
	o.status.LastFailure = nil
	o.status.LastFinishedAt = &finished
	o.mu.Unlock()

	logger.Info("sync completed",
		zap.Int("rows", run.Rows),
		zap.Int("warnings", run.Warnings),
		zap.Duration("elapsed", run.CompletedAt.Sub(run.StartedAt)),
	)
}

func (o *Orchestrator) fail(run Result, stage State, cause error, logger *zap.Logger) error {
	now := o.now().UTC()
	observability.RecordSyncFailed(run.Trigger, string(stage), now.Sub(run.StartedAt))

	syncErr := &SyncError{Stage: stage, Cause: cause}
	failure := AsFailure(syncErr)

	o.mu.Lock()
	o.status.State = StateFailed
	o.status.LastFailure = &failure
	o.status.LastFinishedAt = &now
	o.mu.Unlock()

	logger.Error("sync failed", zap.String("stage", string(stage)), zap.Error(cause))
	return syncErr
}

func (o *Orchestrator) setState(state State) {
	o.mu.Lock()
	o.status.State = state
	o.mu.Unlock()
}

// fetchAll fetches every endpoint concurrently. Results keep the configured
// endpoint order, which decides field-name precedence in the merge.
func (o *Orchestrator) fetchAll(ctx context.Context, window dataset.Window, logger *zap.Logger) ([]dataset.RecordSet, error) {
	sets := make([]dataset.RecordSet, len(o.cfg.Endpoints))
	g, gctx := errgroup.WithContext(ctx)
	for i, endpoint := range o.cfg.Endpoints {
		g.Go(func() error {
			set, err := o.fetch(gctx, endpoint, window, logger)
			if err != nil {
				return err
			}
			set.Endpoint = endpoint
			sets[i] = set
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, set := range sets {
		if dup := duplicateDays(set); dup > 0 {
			logger.Warn("repeated days in collection, keeping the last", zap.String("endpoint", set.Endpoint), zap.Int("repeats", dup))
		}
	}
	return sets, nil
}

func (o *Orchestrator) fetch(ctx context.Context, endpoint string, window dataset.Window, logger *zap.Logger) (dataset.RecordSet, error) {
	var set dataset.RecordSet
	err := retry.Do(
		func() error {
			start := time.Now()
			fetched, err := o.fetcher.Fetch(ctx, endpoint, window)
			if err != nil {
				if !oura.IsTransient(err) {
					return retry.Unrecoverable(err)
				}
				return err
			}
			observability.RecordFetch(endpoint, fetched.Len(), time.Since(start))
			set = fetched
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(o.cfg.FetchAttempts),
		retry.Delay(o.cfg.RetryDelay),
		retry.DelayType(retry.FullJitterBackoffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("retrying fetch", zap.String("endpoint", endpoint), zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil {
		var fetchErr *oura.EndpointFetchError
		if errors.As(err, &fetchErr) {
			return set, err
		}
		return set, fmt.Errorf("fetch %s: %w", endpoint, err)
	}
	return set, nil
}

func duplicateDays(set dataset.RecordSet) int {
	seen := make(map[time.Time]struct{}, len(set.Rows))
	dup := 0
	for _, row := range set.Rows {
		day := dataset.Day(row.Day)
		if _, ok := seen[day]; ok {
			dup++
			continue
		}
		seen[day] = struct{}{}
	}
	return dup
}

// Status returns a snapshot of the current state and last outcome.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	snapshot := o.status
	snapshot.Running = o.status.State == StateFetching || o.status.State == StateMerging || o.status.State == StateWriting
	return snapshot
}

// Watermark returns the persisted watermark, if any.
func (o *Orchestrator) Watermark(ctx context.Context) (time.Time, bool, error) {
	if o.watermarks == nil {
		return time.Time{}, false, nil
	}
	return o.watermarks.Load(ctx)
}

func syncCompleted(run Result, endpoints []string) events.SyncCompleted {
	if run.Trigger == TriggerImport {
		endpoints = make([]string, 0, len(run.Endpoints))
		for _, ep := range run.Endpoints {
			endpoints = append(endpoints, ep.Endpoint)
		}
	}
	return events.SyncCompleted{
		RunID:       run.RunID,
		Trigger:     run.Trigger,
		Table:       run.Table,
		Rows:        run.Rows,
		WindowStart: run.WindowStart,
		WindowEnd:   run.WindowEnd,
		Endpoints:   endpoints,
		Warnings:    run.Warnings,
		Watermark:   run.Watermark,
		CompletedAt: run.CompletedAt,
	}
}
