package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aprskalo1/UMS/internal/config"
	"github.com/aprskalo1/UMS/internal/services"
)

// Backend is the job lease queue contract shared by the SQLite and Postgres
// implementations.
type Backend interface {
	// FetchBatch leases up to limit pending jobs, oldest collected first.
	FetchBatch(ctx context.Context, limit int) ([]Job, error)
	ReportSuccess(ctx context.Context, id string) error
	ReportFailure(ctx context.Context, id, message string) error

	Enqueue(ctx context.Context, job NewJob) (Job, error)
	Get(ctx context.Context, id string) (*Job, error)
	List(ctx context.Context, statuses ...Status) ([]Job, error)
	RetryFailed(ctx context.Context, ids ...string) (int64, error)
	ResetLeased(ctx context.Context, ids ...string) (int64, error)
	Stats(ctx context.Context) (map[Status]int, error)
	Health(ctx context.Context) (HealthSummary, error)
	Close() error
}

var (
	_ Backend = (*Store)(nil)
	_ Backend = (*PostgresStore)(nil)
)

// Open connects to the backend selected by queue.backend.
func Open(ctx context.Context, cfg *config.Config) (Backend, error) {
	switch cfg.Queue.Backend {
	case config.QueuePostgres:
		return OpenPostgres(ctx, cfg.Queue.DSN)
	case config.QueueSQLite, "":
		return OpenSQLite(ctx, cfg.Queue.SQLitePath)
	default:
		return nil, services.Wrap(services.ErrConfiguration, "queue", "open",
			fmt.Sprintf("unsupported backend %q", cfg.Queue.Backend), nil)
	}
}

func prepareNewJob(job NewJob, now time.Time) (NewJob, error) {
	job.SourceURL = strings.TrimSpace(job.SourceURL)
	if job.SourceURL == "" {
		return job, services.Wrap(services.ErrValidation, "queue", "enqueue", "source url is required", nil)
	}
	if job.StartSeconds < 0 || job.DurationSeconds < 0 {
		return job, services.Wrap(services.ErrValidation, "queue", "enqueue", "clip offsets must not be negative", nil)
	}
	if strings.TrimSpace(job.ID) == "" {
		job.ID = uuid.NewString()
	}
	if job.CollectedAt.IsZero() {
		job.CollectedAt = now
	}
	job.CollectedAt = job.CollectedAt.UTC()
	return job, nil
}
