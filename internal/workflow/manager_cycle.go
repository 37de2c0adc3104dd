package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aprskalo1/UMS/internal/logging"
	"github.com/aprskalo1/UMS/internal/queue"
	"github.com/aprskalo1/UMS/internal/services"
)

// JobResult is the outcome of one job. OrdinalID is -1 when no vector was added.
type JobResult struct {
	JobID     string
	OrdinalID int64
	Err       error
	Duration  time.Duration
}

// CycleReport summarizes one cycle.
type CycleReport struct {
	Fetched   int
	Succeeded int
	Failed    int
	// Requeued counts leased jobs handed back because the context was cancelled.
	Requeued  int
	Persisted bool
	Results   []JobResult
	Duration  time.Duration
}

// RunCycle fetches one batch, processes it sequentially, and persists the
// index when at least one job was processed. A queue fetch failure returns
// ErrQueueUnavailable; a persist failure returns ErrIndexPersist.
func (m *Manager) RunCycle(ctx context.Context) (report CycleReport, err error) {
	start := time.Now()
	defer func() {
		report.Duration = time.Since(start)
		m.finishCycle(report, err)
	}()

	if m.deps.Queue == nil || m.deps.Resolver == nil {
		return report, services.Wrap(services.ErrConfiguration, "workflow", "run cycle", "queue and resolver required", nil)
	}
	m.setState(StateFetching)
	jobs, err := m.deps.Queue.FetchBatch(ctx, m.opts.BatchLimit)
	if err != nil {
		if !errors.Is(err, services.ErrQueueUnavailable) {
			err = services.Wrap(services.ErrQueueUnavailable, "queue", "fetch batch", "", err)
		}
		return report, err
	}
	report.Fetched = len(jobs)
	if len(jobs) == 0 {
		return report, nil
	}
	m.logger.Info("leased batch",
		logging.Int("jobs", len(jobs)),
		logging.String(logging.FieldEventType, "batch_leased"),
	)

	m.setState(StateProcessing)
	processed := 0
	for i, job := range jobs {
		if ctx.Err() != nil {
			report.Requeued += m.requeue(ctx, jobs[i:])
			break
		}
		result := m.processJob(ctx, job)
		if interrupted(ctx, result.Err) {
			// Interrupted, not failed: hand it back with the rest.
			report.Requeued += m.requeue(ctx, jobs[i:])
			if result.OrdinalID >= 0 {
				processed++
			}
			break
		}
		processed++
		report.Results = append(report.Results, result)
		if result.Err != nil {
			report.Failed++
		} else {
			report.Succeeded++
		}
	}

	if processed == 0 {
		return report, nil
	}
	m.setState(StatePersisting)
	if err := m.deps.Index.Persist(); err != nil {
		m.logger.Error("index persist failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "index_persist_failed"),
			logging.String(logging.FieldErrorHint, services.Hint(err)),
		)
		if !errors.Is(err, services.ErrIndexPersist) {
			err = services.Wrap(services.ErrIndexPersist, "index", "persist", "", err)
		}
		return report, err
	}
	report.Persisted = true
	m.snapshot(ctx)

	m.logger.Info("cycle complete",
		logging.Int("succeeded", report.Succeeded),
		logging.Int("failed", report.Failed),
		logging.Int("index_size", m.deps.Index.Len()),
		logging.Duration("duration", time.Since(start)),
		logging.String(logging.FieldEventType, "cycle_complete"),
	)
	return report, nil
}

func (m *Manager) processJob(ctx context.Context, job queue.Job) JobResult {
	start := time.Now()
	ctx = services.WithJobID(ctx, job.ID)
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, m.logger)

	ordinal, err := m.embedJob(ctx, logger, job)
	result := JobResult{JobID: job.ID, OrdinalID: ordinal, Err: err, Duration: time.Since(start)}
	if err != nil {
		if !interrupted(ctx, err) {
			m.handleJobFailure(ctx, logger, job, err)
		}
		return result
	}

	if err := m.deps.Queue.ReportSuccess(ctx, job.ID); err != nil {
		logger.Error("failed to report job success",
			logging.Error(err),
			logging.String(logging.FieldEventType, "queue_report_failed"),
			logging.String(logging.FieldErrorHint, services.Hint(err)),
		)
	}
	logger.Info("job embedded",
		logging.Ordinal(ordinal),
		logging.String("source_url", job.SourceURL),
		logging.Duration("duration", result.Duration),
		logging.String(logging.FieldEventType, "job_completed"),
	)
	return result
}

func (m *Manager) embedJob(ctx context.Context, logger *slog.Logger, job queue.Job) (int64, error) {
	stream, err := m.deps.Resolver.Resolve(services.WithStage(ctx, "resolve"), job.SourceURL)
	if err != nil {
		return -1, err
	}

	duration := job.DurationSeconds
	if duration <= 0 {
		duration = m.opts.DefaultClipSeconds
	}
	tmp, err := m.deps.Extractor.Extract(services.WithStage(ctx, "extract"), stream, job.StartSeconds, duration)
	if err != nil {
		return -1, err
	}
	defer func() {
		if err := tmp.Remove(); err != nil {
			logger.Warn("failed to remove temp clip", logging.String("path", tmp.Path()), logging.Error(err))
		}
	}()

	return m.embedFile(ctx, tmp.Path(), job.ID)
}

// embedFile runs normalize, embed, index add, and mapping add for a WAV file.
func (m *Manager) embedFile(ctx context.Context, path, key string) (int64, error) {
	wave, err := m.deps.Normalizer.LoadAndPrep(path)
	if err != nil {
		return -1, err
	}
	vec, err := m.deps.Embedder.Embed(services.WithStage(ctx, "embed"), wave)
	if err != nil {
		return -1, err
	}
	ordinal, err := m.deps.Index.Add(vec)
	if err != nil {
		return -1, err
	}
	if err := m.deps.Mapping.Add(services.WithStage(ctx, "mapping"), ordinal, key, time.Time{}); err != nil {
		if !errors.Is(err, services.ErrMappingWrite) {
			err = services.Wrap(services.ErrMappingWrite, "mapping", "add", fmt.Sprintf("ordinal %d", ordinal), err)
		}
		return ordinal, err
	}
	return ordinal, nil
}

func (m *Manager) requeue(ctx context.Context, jobs []queue.Job) int {
	if len(jobs) == 0 {
		return 0
	}
	ids := make([]string, len(jobs))
	for i, job := range jobs {
		ids[i] = job.ID
	}
	n, err := m.deps.Queue.ResetLeased(context.WithoutCancel(ctx), ids...)
	if err != nil {
		m.logger.Error("failed to hand back leased jobs; run 'embedder queue reset-leased'",
			logging.Error(err),
			logging.Int("jobs", len(ids)),
			logging.String(logging.FieldEventType, "queue_requeue_failed"),
			logging.String(logging.FieldErrorHint, services.Hint(err)),
		)
		return 0
	}
	m.logger.Info("shutdown requested; leased jobs returned to pending",
		logging.Int64("jobs", n),
		logging.String(logging.FieldEventType, "jobs_requeued"),
	)
	return int(n)
}

func (m *Manager) snapshot(ctx context.Context) {
	if m.deps.Snapshot == nil {
		return
	}
	if err := m.deps.Snapshot.Snapshot(ctx); err != nil {
		m.logger.Warn("snapshot upload failed; continuing",
			logging.Error(err),
			logging.String(logging.FieldEventType, "snapshot_failed"),
			logging.String(logging.FieldErrorHint, "check snapshot bucket credentials and endpoint"),
		)
	}
}

// interrupted reports whether a step failed because ctx was cancelled. A
// killed ffmpeg or yt-dlp surfaces as an exit error rather than ctx.Err(), so
// the context is consulted directly.
func interrupted(ctx context.Context, err error) bool {
	return err != nil && ctx.Err() != nil
}
