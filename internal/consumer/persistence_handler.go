package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/wellness/internal/events"
)

// PersistenceHandler records completed sync runs into sync_event_log.
type PersistenceHandler struct {
	pool *pgxpool.Pool
}

// NewPersistenceHandler constructs a handler backed by the provided pool.
func NewPersistenceHandler(pool *pgxpool.Pool) *PersistenceHandler {
	return &PersistenceHandler{pool: pool}
}

// Handle stores a sync-completed event. Redelivered events are ignored.
func (h *PersistenceHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != events.TypeSyncCompleted {
		return fmt.Errorf("%w: %s", ErrUnknownEventType, msg.EventType)
	}

	var ev events.SyncCompleted
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return fmt.Errorf("decode %s payload: %w", msg.EventType, err)
	}
	if ev.RunID == "" {
		return fmt.Errorf("decode %s payload: missing run_id", msg.EventType)
	}

	_, err := h.pool.Exec(ctx,
		`INSERT INTO sync_event_log (run_id, trigger, table_name, row_count, window_start, window_end, warnings, watermark, completed_at)
         VALUES ($1,$2,$3,$4,NULLIF($5,'')::date,NULLIF($6,'')::date,$7,$8,$9)
         ON CONFLICT (run_id) DO NOTHING`,
		ev.RunID,
		ev.Trigger,
		ev.Table,
		ev.Rows,
		ev.WindowStart,
		ev.WindowEnd,
		ev.Warnings,
		ev.Watermark,
		ev.CompletedAt,
	)
	return err
}

// LoggedRun is one row of sync_event_log.
type LoggedRun struct {
	RunID       string     `json:"run_id"`
	Trigger     string     `json:"trigger"`
	Table       string     `json:"table"`
	Rows        int        `json:"rows"`
	Warnings    int        `json:"warnings"`
	Watermark   *time.Time `json:"watermark,omitempty"`
	CompletedAt time.Time  `json:"completed_at"`
}

// Recent returns the most recently completed runs, newest first.
func (h *PersistenceHandler) Recent(ctx context.Context, limit int) ([]LoggedRun, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := h.pool.Query(ctx,
		`SELECT run_id, trigger, table_name, row_count, warnings, watermark, completed_at
           FROM sync_event_log
          ORDER BY completed_at DESC
          LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (LoggedRun, error) {
		var run LoggedRun
		err := row.Scan(&run.RunID, &run.Trigger, &run.Table, &run.Rows, &run.Warnings, &run.Watermark, &run.CompletedAt)
		return run, err
	})
}
