package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"example.com/wellness/internal/domain"
)

var selectColumns = strings.Join(domain.Columns, ", ")

// ListTrends returns records between from and to inclusive, ordered by date.
// A zero bound is open.
func (r *Repository) ListTrends(ctx context.Context, from, to time.Time) ([]domain.DailyMetricRecord, error) {
	query := "SELECT " + selectColumns + " FROM " + pgx.Identifier{r.table}.Sanitize() + " WHERE TRUE"
	args := []any{}
	if !from.IsZero() {
		args = append(args, from)
		query += " AND date >= $1"
	}
	if !to.IsZero() {
		args = append(args, to)
		if len(args) == 1 {
			query += " AND date <= $1"
		} else {
			query += " AND date <= $2"
		}
	}
	query += " ORDER BY date"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.DailyMetricRecord, 0)
	for rows.Next() {
		var rec domain.DailyMetricRecord
		if err := rows.Scan(rec.ScanTargets()...); err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// GetTrend returns the record for day, or nil when there is none.
func (r *Repository) GetTrend(ctx context.Context, day time.Time) (*domain.DailyMetricRecord, error) {
	query := "SELECT " + selectColumns + " FROM " + pgx.Identifier{r.table}.Sanitize() + " WHERE date = $1"
	return r.scanOne(ctx, query, day)
}

// LatestTrend returns the most recent record, or nil when the table is empty.
func (r *Repository) LatestTrend(ctx context.Context) (*domain.DailyMetricRecord, error) {
	query := "SELECT " + selectColumns + " FROM " + pgx.Identifier{r.table}.Sanitize() + " ORDER BY date DESC LIMIT 1"
	return r.scanOne(ctx, query)
}

func (r *Repository) scanOne(ctx context.Context, query string, args ...any) (*domain.DailyMetricRecord, error) {
	var rec domain.DailyMetricRecord
	if err := r.pool.QueryRow(ctx, query, args...).Scan(rec.ScanTargets()...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}
