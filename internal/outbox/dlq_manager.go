package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// DLQManager replays failed outbox messages and quarantines exhausted entries.
type DLQManager struct {
	pool       *pgxpool.Pool
	maxRetries int
	baseDelay  time.Duration
	logger     *zap.Logger
}

// NewDLQManager constructs a DLQManager with the provided pool and retry configuration.
func NewDLQManager(pool *pgxpool.Pool, maxRetries int, baseDelay time.Duration, logger *zap.Logger) *DLQManager {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if baseDelay <= 0 {
		baseDelay = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DLQManager{pool: pool, maxRetries: maxRetries, baseDelay: baseDelay, logger: logger}
}

// RunOnce processes a batch of due DLQ entries and returns the count of
// entries handed back to the dispatcher.
func (m *DLQManager) RunOnce(ctx context.Context, batchSize int) (int, error) {
	const query = `SELECT dlq_id, event_id, event_type, topic, retry_count
                    FROM outbox_dlq
                   WHERE quarantined_at IS NULL AND (next_retry_at IS NULL OR next_retry_at <= NOW())
                   ORDER BY created_at
                   LIMIT $1`

	rows, err := m.pool.Query(ctx, query, batchSize)
	if err != nil {
		return 0, err
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (dlqEntry, error) {
		var entry dlqEntry
		err := row.Scan(&entry.ID, &entry.EventID, &entry.EventType, &entry.Topic, &entry.RetryCount)
		return entry, err
	})
	if err != nil {
		return 0, err
	}

	replayed := 0
	var errs error
	for _, entry := range entries {
		ok, procErr := m.handleEntry(ctx, entry)
		if procErr != nil {
			errs = errors.Join(errs, procErr)
			continue
		}
		if ok {
			replayed++
		}
	}
	m.updateBacklog(ctx)
	return replayed, errs
}

// Backlog returns the number of entries awaiting replay.
func (m *DLQManager) Backlog(ctx context.Context) (int, error) {
	var count int
	err := m.pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NULL`).Scan(&count)
	return count, err
}

// handleEntry applies replay or quarantine logic for a single DLQ entry. It
// reports whether the entry was replayed.
func (m *DLQManager) handleEntry(ctx context.Context, entry dlqEntry) (bool, error) {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			m.logger.Warn("dlq rollback failed", zap.Int64("dlq_id", entry.ID), zap.Error(rbErr))
		}
	}()

	if entry.RetryCount >= m.maxRetries {
		if _, err := tx.Exec(ctx, `UPDATE outbox_dlq SET quarantined_at = NOW(), last_error = $1 WHERE dlq_id = $2`, "retry limit reached", entry.ID); err != nil {
			return false, err
		}
		if err := tx.Commit(ctx); err != nil {
			return false, err
		}
		dlqQuarantinedCounter.WithLabelValues(entry.Topic, entry.EventType).Inc()
		m.logger.Warn("dlq entry quarantined", zap.Int64("dlq_id", entry.ID), zap.Int64("event_id", entry.EventID))
		return false, nil
	}

	if requeueErr := requeueOutbox(ctx, tx, entry); requeueErr != nil {
		delay := m.backoffDelay(entry.RetryCount + 1)
		if _, err := tx.Exec(ctx,
			`UPDATE outbox_dlq
               SET retry_count = retry_count + 1,
                   next_retry_at = NOW() + $1::interval,
                   last_error = $2
             WHERE dlq_id = $3`,
			delay, requeueErr.Error(), entry.ID,
		); err != nil {
			return false, err
		}
		if err := tx.Commit(ctx); err != nil {
			return false, err
		}
		dlqRetryCounter.WithLabelValues(entry.Topic, entry.EventType).Inc()
		return false, nil
	}

	if _, err := tx.Exec(ctx, `DELETE FROM outbox_dlq WHERE dlq_id = $1`, entry.ID); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	dlqRequeuedCounter.WithLabelValues(entry.Topic, entry.EventType).Inc()
	return true, nil
}

// backoffDelay calculates exponential backoff capped at one hour.
func (m *DLQManager) backoffDelay(attempt int) time.Duration {
	delay := time.Duration(1<<uint(attempt-1)) * m.baseDelay
	if delay > time.Hour {
		delay = time.Hour
	}
	return delay
}

func (m *DLQManager) updateBacklog(ctx context.Context) {
	count, err := m.Backlog(ctx)
	if err != nil {
		return
	}
	dlqBacklogGauge.Set(float64(count))
}

// requeueOutbox hands the original outbox row back to the dispatcher.
func requeueOutbox(ctx context.Context, tx pgx.Tx, entry dlqEntry) error {
	tag, err := tx.Exec(ctx, `UPDATE outbox SET published_at = NULL, claimed_at = NULL WHERE event_id = $1`, entry.EventID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("outbox event %d no longer exists", entry.EventID)
	}
	return nil
}

// dlqEntry represents an outbox_dlq row selected for processing.
type dlqEntry struct {
	ID         int64
	EventID    int64
	EventType  string
	Topic      string
	RetryCount int
}
