package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aprskalo1/UMS/internal/sqliteutil"
)

// Store is the SQLite-backed job lease queue.
type Store struct {
	db   *sql.DB
	path string
}

const jobColumns = "id, source_url, start_s, dur_s, status, error_message, collected_at, leased_at, processed_at, updated_at"

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := sqliteutil.RetryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// OpenSQLite initializes or connects to the queue database at path.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	ctx = ensureContext(ctx)
	db, err := sqliteutil.Open(path)
	if err != nil {
		return nil, unavailable("open", err)
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		if errors.Is(err, ErrSchemaMismatch) {
			return nil, err
		}
		return nil, unavailable("init schema", err)
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// FetchBatch leases up to limit pending jobs in one UPDATE ... RETURNING.
// SQLite serializes writers, so a concurrent caller observes the rows already
// flipped to leased and picks the next ones.
func (s *Store) FetchBatch(ctx context.Context, limit int) ([]Job, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		return nil, nil
	}
	now := sqliteutil.FormatTime(time.Now())
	query := `UPDATE jobs
        SET status = ?, leased_at = ?, updated_at = ?
        WHERE id IN (
            SELECT id FROM jobs
            WHERE status = ?
            ORDER BY collected_at, id
            LIMIT ?
        )
        RETURNING ` + jobColumns

	var jobs []Job
	err := sqliteutil.RetryOnBusy(ctx, func() error {
		jobs = jobs[:0]
		rows, err := s.db.QueryContext(ctx, query, StatusLeased, now, now, StatusPending, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			job, err := scanJob(rows)
			if err != nil {
				return err
			}
			jobs = append(jobs, *job)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, unavailable("fetch batch", err)
	}
	sortByCollected(jobs)
	return jobs, nil
}

// ReportSuccess marks a leased job completed.
func (s *Store) ReportSuccess(ctx context.Context, id string) error {
	now := sqliteutil.FormatTime(time.Now())
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, error_message = NULL, processed_at = ?, updated_at = ? WHERE id = ?`,
		StatusCompleted, now, now, id,
	)
	if err != nil {
		return unavailable("report success", err)
	}
	return requireAffected(res, id)
}

// ReportFailure marks a job failed and stores the truncated diagnostic.
func (s *Store) ReportFailure(ctx context.Context, id, message string) error {
	now := sqliteutil.FormatTime(time.Now())
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, error_message = ?, processed_at = ?, updated_at = ? WHERE id = ?`,
		StatusFailed, nullableString(TruncateMessage(message)), now, now, id,
	)
	if err != nil {
		return unavailable("report failure", err)
	}
	return requireAffected(res, id)
}

// Enqueue inserts a pending job.
func (s *Store) Enqueue(ctx context.Context, job NewJob) (Job, error) {
	now := time.Now().UTC()
	prepared, err := prepareNewJob(job, now)
	if err != nil {
		return Job{}, err
	}
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO jobs (id, source_url, start_s, dur_s, status, collected_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		prepared.ID, prepared.SourceURL, prepared.StartSeconds, prepared.DurationSeconds,
		StatusPending, sqliteutil.FormatTime(prepared.CollectedAt), sqliteutil.FormatTime(now),
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
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns jobs in collection order, optionally filtered by status.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]Job, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + sqliteutil.Placeholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY collected_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// RetryFailed moves failed jobs back to pending. No ids means every failed job.
func (s *Store) RetryFailed(ctx context.Context, ids ...string) (int64, error) {
	return s.requeue(ctx, StatusFailed, ids)
}

// ResetLeased moves leased jobs back to pending after a worker crash.
// No ids means every leased job.
func (s *Store) ResetLeased(ctx context.Context, ids ...string) (int64, error) {
	return s.requeue(ctx, StatusLeased, ids)
}

func (s *Store) requeue(ctx context.Context, from Status, ids []string) (int64, error) {
	args := make([]any, 0, len(ids)+3)
	args = append(args, StatusPending, sqliteutil.FormatTime(time.Now()), from)
	query := `UPDATE jobs
        SET status = ?, error_message = NULL, leased_at = NULL, processed_at = NULL, updated_at = ?
        WHERE status = ?`
	if len(ids) > 0 {
		query += ` AND id IN (` + sqliteutil.Placeholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("requeue %s jobs: %w", from, err)
	}
	return res.RowsAffected()
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, unavailable("stats", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates queue state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{Backend: "sqlite"}, err
	}
	return summarize("sqlite", stats), nil
}

func requireAffected(res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return notFound(id)
	}
	return nil
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id           string
		sourceURL    string
		start        sql.NullFloat64
		duration     sql.NullFloat64
		statusStr    string
		errorMessage sql.NullString
		collectedRaw sql.NullString
		leasedRaw    sql.NullString
		processedRaw sql.NullString
		updatedRaw   sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&sourceURL,
		&start,
		&duration,
		&statusStr,
		&errorMessage,
		&collectedRaw,
		&leasedRaw,
		&processedRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:              id,
		SourceURL:       sourceURL,
		StartSeconds:    start.Float64,
		DurationSeconds: duration.Float64,
		Status:          Status(statusStr),
		ErrorMessage:    errorMessage.String,
	}
	if collected, err := sqliteutil.ParseTime(collectedRaw.String); err == nil {
		job.CollectedAt = collected
	}
	if updated, err := sqliteutil.ParseTime(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	if leased, err := sqliteutil.ParseTime(leasedRaw.String); err == nil {
		job.LeasedAt = &leased
	}
	if processed, err := sqliteutil.ParseTime(processedRaw.String); err == nil {
		job.ProcessedAt = &processed
	}
	return job, nil
}

func sortByCollected(jobs []Job) {
	sort.SliceStable(jobs, func(i, j int) bool {
		if jobs[i].CollectedAt.Equal(jobs[j].CollectedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].CollectedAt.Before(jobs[j].CollectedAt)
	})
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
