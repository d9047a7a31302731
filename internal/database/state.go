package database

import (
	"context"
	"fmt"
	"time"

	"github.com/rickgao/bm-repricer/internal/model"
)

// SaveBucket persists a bucket configuration. Live token counts are not stored.
func (db *DB) SaveBucket(ctx context.Context, b model.RateLimitBucket) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO rate_limit_buckets (name, max_tokens, refill_interval_ms, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (name) DO UPDATE SET
			max_tokens = EXCLUDED.max_tokens,
			refill_interval_ms = EXCLUDED.refill_interval_ms,
			updated_at = EXCLUDED.updated_at`,
		b.Name, b.MaxTokens, b.RefillInterval.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("save bucket %s: %w", b.Name, err)
	}
	return nil
}

// ListBuckets returns persisted bucket configurations by name.
func (db *DB) ListBuckets(ctx context.Context) ([]model.RateLimitBucket, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT name, max_tokens, refill_interval_ms FROM rate_limit_buckets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}
	defer rows.Close()

	out := []model.RateLimitBucket{}
	for rows.Next() {
		var (
			b  model.RateLimitBucket
			ms int64
		)
		if err := rows.Scan(&b.Name, &b.MaxTokens, &ms); err != nil {
			return nil, fmt.Errorf("scan bucket: %w", err)
		}
		b.RefillInterval = time.Duration(ms) * time.Millisecond
		out = append(out, b)
	}
	return out, rows.Err()
}

// SaveJobStatus persists a job status.
func (db *DB) SaveJobStatus(ctx context.Context, st model.ScheduledJobStatus) error {
	var nextRun *time.Time
	if !st.NextRun.IsZero() {
		nextRun = &st.NextRun
	}
	_, err := db.pool.Exec(ctx, `
		INSERT INTO scheduled_job_status (job_name, cadence_ms, is_running, next_run, last_run, last_error, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (job_name) DO UPDATE SET
			cadence_ms = EXCLUDED.cadence_ms,
			is_running = EXCLUDED.is_running,
			next_run = EXCLUDED.next_run,
			last_run = EXCLUDED.last_run,
			last_error = EXCLUDED.last_error,
			updated_at = EXCLUDED.updated_at`,
		st.JobName, st.Cadence.Milliseconds(), st.IsRunning, nextRun, st.LastRun, st.LastError,
	)
	if err != nil {
		return fmt.Errorf("save job status %s: %w", st.JobName, err)
	}
	return nil
}

// ListJobStatuses returns persisted job statuses by name.
func (db *DB) ListJobStatuses(ctx context.Context) ([]model.ScheduledJobStatus, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT job_name, cadence_ms, is_running, next_run, last_run, last_error
		FROM scheduled_job_status ORDER BY job_name`)
	if err != nil {
		return nil, fmt.Errorf("list job statuses: %w", err)
	}
	defer rows.Close()

	out := []model.ScheduledJobStatus{}
	for rows.Next() {
		var (
			st      model.ScheduledJobStatus
			ms      int64
			nextRun *time.Time
		)
		if err := rows.Scan(&st.JobName, &ms, &st.IsRunning, &nextRun, &st.LastRun, &st.LastError); err != nil {
			return nil, fmt.Errorf("scan job status: %w", err)
		}
		st.Cadence = time.Duration(ms) * time.Millisecond
		if nextRun != nil {
			st.NextRun = *nextRun
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
