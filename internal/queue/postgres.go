package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the job lease queue shared by workers on several hosts.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const pgJobColumns = "j.id, j.source_url, j.start_s, j.dur_s, j.status, j.error_message, j.collected_at, j.leased_at, j.processed_at, j.updated_at"

// OpenPostgres connects to dsn and creates the jobs table if missing.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	ctx = ensureContext(ctx)
	// Parse through pgxpool so pool_* DSN params are consumed client-side.
	poolConf, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, unavailable("parse dsn", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConf)
	if err != nil {
		return nil, unavailable("connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, unavailable("ping", err)
	}
	if _, err := pool.Exec(ctx, postgresSchemaSQL); err != nil {
		pool.Close()
		return nil, unavailable("init schema", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// FetchBatch leases up to limit pending jobs. Rows locked by a concurrent
// caller are skipped rather than waited on.
func (s *PostgresStore) FetchBatch(ctx context.Context, limit int) ([]Job, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `WITH picked AS (
            SELECT id FROM jobs
            WHERE status = $1
            ORDER BY collected_at, id
            LIMIT $2
            FOR UPDATE SKIP LOCKED
        )
        UPDATE jobs j
        SET status = $3, leased_at = now(), updated_at = now()
        FROM picked
        WHERE j.id = picked.id
        RETURNING `+pgJobColumns,
		string(StatusPending), limit, string(StatusLeased),
	)
	if err != nil {
		return nil, unavailable("fetch batch", err)
	}
	jobs, err := collectJobs(rows)
	if err != nil {
		return nil, unavailable("fetch batch", err)
	}
	sortByCollected(jobs)
	return jobs, nil
}

// ReportSuccess marks a leased job completed.
func (s *PostgresStore) ReportSuccess(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ensureContext(ctx),
		`UPDATE jobs SET status = $1, error_message = NULL, processed_at = now(), updated_at = now() WHERE id = $2`,
		string(StatusCompleted), id,
	)
	if err != nil {
		return unavailable("report success", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(id)
	}
	return nil
}

// ReportFailure marks a job failed and stores the truncated diagnostic.
func (s *PostgresStore) ReportFailure(ctx context.Context, id, message string) error {
	tag, err := s.pool.Exec(ensureContext(ctx),
		`UPDATE jobs SET status = $1, error_message = $2, processed_at = now(), updated_at = now() WHERE id = $3`,
		string(StatusFailed), nullableString(TruncateMessage(message)), id,
	)
	if err != nil {
		return unavailable("report failure", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(id)
	}
	return nil
}

// Enqueue inserts a pending job.
func (s *PostgresStore) Enqueue(ctx context.Context, job NewJob) (Job, error) {
	now := time.Now().UTC()
	prepared, err := prepareNewJob(job, now)
	if err != nil {
		return Job{}, err
	}
	if _, err := s.pool.Exec(ensureContext(ctx),
		`INSERT INTO jobs (id, source_url, start_s, dur_s, status, collected_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		prepared.ID, prepared.SourceURL, prepared.StartSeconds, prepared.DurationSeconds,
		string(StatusPending), prepared.CollectedAt, now,
	); err != nil {
		return Job{}, fmt.Errorf("insert job: %w", err)
	}
	return Job{
		ID:              prepared.ID,
		SourceURL:       prepared.SourceURL,
		StartSeconds:    prepared.StartSeconds,
		DurationSeconds: prepared.DurationSeconds,
		Status:          StatusPending,
		CollectedAt:     prepared.CollectedAt,
		UpdatedAt:       now,
	}, nil
}

// Get fetches a job by id. A missing job returns (nil, nil).
func (s *PostgresStore) Get(ctx context.Context, id string) (*Job, error) {
	rows, err := s.pool.Query(ensureContext(ctx), `SELECT `+pgJobColumns+` FROM jobs j WHERE j.id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	job, err := pgx.CollectExactlyOneRow(rows, scanPgJob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

// List returns jobs in collection order, optionally filtered by status.
func (s *PostgresStore) List(ctx context.Context, statuses ...Status) ([]Job, error) {
	query := `SELECT ` + pgJobColumns + ` FROM jobs j`
	var args []any
	if len(statuses) > 0 {
		names := make([]string, 0, len(statuses))
		for _, status := range statuses {
			names = append(names, string(status))
		}
		query += ` WHERE j.status = ANY($1)`
		args = append(args, names)
	}
	query += ` ORDER BY j.collected_at, j.id`
	rows, err := s.pool.Query(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return collectJobs(rows)
}

// RetryFailed moves failed jobs back to pending. No ids means every failed job.
func (s *PostgresStore) RetryFailed(ctx context.Context, ids ...string) (int64, error) {
	return s.requeue(ctx, StatusFailed, ids)
}

// ResetLeased moves leased jobs back to pending after a worker crash.
func (s *PostgresStore) ResetLeased(ctx context.Context, ids ...string) (int64, error) {
	return s.requeue(ctx, StatusLeased, ids)
}

func (s *PostgresStore) requeue(ctx context.Context, from Status, ids []string) (int64, error) {
	query := `UPDATE jobs
        SET status = $1, error_message = NULL, leased_at = NULL, processed_at = NULL, updated_at = now()
        WHERE status = $2`
	args := []any{string(StatusPending), string(from)}
	if len(ids) > 0 {
		query += ` AND id = ANY($3)`
		args = append(args, ids)
	}
	tag, err := s.pool.Exec(ensureContext(ctx), query, args...)
	if err != nil {
		return 0, fmt.Errorf("requeue %s jobs: %w", from, err)
	}
	return tag.RowsAffected(), nil
}

// Stats returns a count of jobs grouped by status.
func (s *PostgresStore) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.pool.Query(ensureContext(ctx), `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, unavailable("stats", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[Status(status)] = int(count)
	}
	return stats, rows.Err()
}

// Health aggregates queue state for diagnostic output.
func (s *PostgresStore) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{Backend: "postgres"}, err
	}
	return summarize("postgres", stats), nil
}

func collectJobs(rows pgx.Rows) ([]Job, error) {
	return pgx.CollectRows(rows, scanPgJob)
}

func scanPgJob(row pgx.CollectableRow) (Job, error) {
	var (
		job          Job
		status       string
		errorMessage *string
	)
	if err := row.Scan(
		&job.ID,
		&job.SourceURL,
		&job.StartSeconds,
		&job.DurationSeconds,
		&status,
		&errorMessage,
		&job.CollectedAt,
		&job.LeasedAt,
		&job.ProcessedAt,
		&job.UpdatedAt,
	); err != nil {
		return Job{}, err
	}
	job.Status = Status(status)
	if errorMessage != nil {
		job.ErrorMessage = *errorMessage
	}
	return job, nil
}
