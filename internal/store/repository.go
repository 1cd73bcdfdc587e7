/**
 * @description
 * This file implements the data access layer for the subscription-service.
 * It persists the monthly recording-usage counter per app user. The original
 * mobile layer kept this in device key-value storage as two string values
 * (the counter and the last-reset timestamp); here the same contract is a
 * keyed row with lazy month-rollover on read.
 */
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/calorietracker/subscription-service/internal/domain"
)

// ErrUsageNotFound is returned when no usage row exists for an app user.
var ErrUsageNotFound = errors.New("usage counter not found")

// UsageRecord is the persisted usage state for one app user.
type UsageRecord struct {
	AppUserID      string
	RecordingsUsed int
	LastReset      time.Time
}

// Repository handles database operations for usage counters.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// LoadUsage retrieves the usage counter for an app user. If the persisted
// last-reset month differs from the current calendar month, the returned
// count is zero (logical rollover) without rewriting storage; the caller's
// next SaveUsage persists the rollover.
func (r *Repository) LoadUsage(ctx context.Context, appUserID string) (*UsageRecord, error) {
	var rec UsageRecord
	query := `
        SELECT app_user_id, recordings_used, last_reset
        FROM usage_counters
        WHERE app_user_id = $1
    `
	err := r.db.QueryRow(ctx, query, appUserID).Scan(
		&rec.AppUserID,
		&rec.RecordingsUsed,
		&rec.LastReset,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUsageNotFound
		}
		return nil, err
	}

	rolloverIfStale(&rec, time.Now())

	return &rec, nil
}

// rolloverIfStale zeroes the counter in memory when the persisted last-reset
// month differs from the current one. Storage is not rewritten here.
func rolloverIfStale(rec *UsageRecord, now time.Time) {
	if !domain.SameMonth(rec.LastReset, now) {
		rec.RecordingsUsed = 0
		rec.LastReset = monthStart(now)
	}
}

// SaveUsage creates or updates the usage counter for an app user.
func (r *Repository) SaveUsage(ctx context.Context, appUserID string, recordingsUsed int, lastReset time.Time) error {
	query := `
        INSERT INTO usage_counters (app_user_id, recordings_used, last_reset)
        VALUES ($1, $2, $3)
        ON CONFLICT (app_user_id) DO UPDATE SET
            recordings_used = EXCLUDED.recordings_used,
            last_reset = EXCLUDED.last_reset,
            updated_at = NOW()
    `
	_, err := r.db.Exec(ctx, query, appUserID, recordingsUsed, lastReset)
	return err
}

// ResetUsage zeroes the counter for an app user and stamps the current period.
func (r *Repository) ResetUsage(ctx context.Context, appUserID string) error {
	return r.SaveUsage(ctx, appUserID, 0, monthStart(time.Now()))
}

// ResetAllForNewMonth zeroes every counter whose last reset falls in a prior
// calendar month. The lazy rollover in LoadUsage is the correctness
// mechanism; this scheduled sweep just keeps the rows tidy.
func (r *Repository) ResetAllForNewMonth(ctx context.Context) (int64, error) {
	query := `
        UPDATE usage_counters
        SET recordings_used = 0,
            last_reset = DATE_TRUNC('month', NOW()),
            updated_at = NOW()
        WHERE DATE_TRUNC('month', last_reset) < DATE_TRUNC('month', NOW())
    `
	tag, err := r.db.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
