package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/aprskalo1/UMS/internal/logging"
	"github.com/aprskalo1/UMS/internal/services"
)

// Run executes cycles until ctx is cancelled. Empty cycles and queue errors
// wait one poll interval; an index persist error is returned.
func (m *Manager) Run(ctx context.Context) error {
	m.logger.Info("worker started",
		logging.Int("batch_limit", m.opts.BatchLimit),
		logging.Duration("poll_interval", m.opts.PollInterval),
		logging.Int("index_size", m.deps.Index.Len()),
		logging.String(logging.FieldEventType, "worker_started"),
	)
	for {
		if ctx.Err() != nil {
			m.logger.Info("worker stopped", logging.String(logging.FieldEventType, "worker_stopped"))
			return nil
		}
		report, err := m.RunCycle(ctx)
		switch {
		case err == nil && report.Fetched > 0:
			continue
		case err == nil:
			m.logger.Debug("no pending jobs", logging.Duration("wait", m.opts.PollInterval))
		case errors.Is(err, services.ErrIndexPersist):
			return err
		case ctx.Err() != nil:
			continue
		default:
			logging.WarnWithContext(m.logger, "cycle aborted; retrying after poll interval", "cycle_aborted",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, services.Hint(err)),
			)
		}
		sleep(ctx, m.opts.PollInterval)
	}
}

// RunOnce executes a single cycle.
func (m *Manager) RunOnce(ctx context.Context) (CycleReport, error) {
	return m.RunCycle(ctx)
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
