package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/wellness/internal/domain"
	"example.com/wellness/internal/events"
)

// DefaultTable is the trends table created by the migrations.
const DefaultTable = "oura_trends"

var tablePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ErrInvalidTable is wrapped when a table name is not a plain lowercase identifier.
var ErrInvalidTable = errors.New("invalid table name")

// StoreWriteError reports a failed full-replace write. The transaction has
// been rolled back and the previous generation is intact.
type StoreWriteError struct {
	Table string
	Err   error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("store write to %s: %v", e.Table, e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }

// Option configures a Repository.
type Option func(*Repository)

// WithTable sets the table served by the read methods.
func WithTable(table string) Option {
	return func(r *Repository) {
		r.table = table
	}
}

// WithTimeout bounds each write transaction.
func WithTimeout(timeout time.Duration) Option {
	return func(r *Repository) {
		r.timeout = timeout
	}
}

// WithTopic overrides the Kafka topic recorded for an event type.
func WithTopic(eventType, topic string) Option {
	return func(r *Repository) {
		r.topics[eventType] = topic
	}
}

// Repository provides Postgres-backed persistence for trend generations and outbox events.
type Repository struct {
	pool    *pgxpool.Pool
	table   string
	timeout time.Duration
	topics  map[string]string
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool, opts ...Option) *Repository {
	r := &Repository{
		pool:    pool,
		table:   DefaultTable,
		timeout: 30 * time.Second,
		topics:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ValidateTable checks that table is a plain lowercase identifier.
func ValidateTable(table string) error {
	if !tablePattern.MatchString(table) {
		return fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	return nil
}

// ReplaceAll swaps the full contents of table for records in one
// transaction, committing event to the outbox alongside. Writers to the same
// table are serialised with a transaction-scoped advisory lock. Readers see
// either the previous or the new generation.
func (r *Repository) ReplaceAll(ctx context.Context, table string, records []domain.DailyMetricRecord, event *events.Envelope) error {
	if err := ValidateTable(table); err != nil {
		return &StoreWriteError{Table: table, Err: err}
	}
	if err := r.replaceAll(ctx, table, records, event); err != nil {
		return &StoreWriteError{Table: table, Err: err}
	}
	return nil
}

func (r *Repository) replaceAll(ctx context.Context, table string, records []domain.DailyMetricRecord, event *events.Envelope) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadWrite})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", table); err != nil {
		return fmt.Errorf("failed to acquire table lock: %w", err)
	}

	ident := pgx.Identifier{table}
	if _, err := tx.Exec(ctx, "DELETE FROM "+ident.Sanitize()); err != nil {
		return fmt.Errorf("failed to delete previous generation: %w", err)
	}

	if len(records) > 0 {
		rows := make([][]any, 0, len(records))
		for _, rec := range records {
			rows = append(rows, rec.Values())
		}
		copied, err := tx.CopyFrom(ctx, ident, domain.Columns, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("failed to copy records: %w", err)
		}
		if int(copied) != len(records) {
			return fmt.Errorf("copy count mismatch: expected %d, got %d", len(records), copied)
		}
	}

	if event != nil {
		if err := r.insertOutbox(ctx, tx, *event); err != nil {
			return fmt.Errorf("failed to record outbox event: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *Repository) insertOutbox(ctx context.Context, tx pgx.Tx, event events.Envelope) error {
	body, err := json.Marshal(event.Payload)
	if err != nil {
		return err
	}

	meta, ok := events.Catalog[event.Type]
	if !ok {
		return fmt.Errorf("unknown event type: %s", event.Type)
	}
	topic := meta.Topic
	if override := r.topics[event.Type]; override != "" {
		topic = override
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		"sync_run",
		event.AggregateID,
		event.Type,
		topic,
		meta.SchemaSubject,
		event.AggregateID,
		body,
		fmt.Sprintf("%s:%s", event.AggregateID, event.Type),
	)
	return err
}

// EnsureTable creates table with the layout of the default trends table when
// it does not exist yet.
func (r *Repository) EnsureTable(ctx context.Context, table string) error {
	if err := ValidateTable(table); err != nil {
		return err
	}
	if table == DefaultTable {
		return nil
	}
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (LIKE %s INCLUDING ALL)",
		pgx.Identifier{table}.Sanitize(), pgx.Identifier{DefaultTable}.Sanitize())
	_, err := r.pool.Exec(ctx, stmt)
	return err
}

// Count returns the number of rows in table.
func (r *Repository) Count(ctx context.Context, table string) (int, error) {
	if err := ValidateTable(table); err != nil {
		return 0, err
	}
	var n int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+pgx.Identifier{table}.Sanitize()).Scan(&n)
	return n, err
}
