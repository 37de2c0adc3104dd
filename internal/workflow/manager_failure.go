package workflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/aprskalo1/UMS/internal/logging"
	"github.com/aprskalo1/UMS/internal/queue"
	"github.com/aprskalo1/UMS/internal/services"
)

func (m *Manager) handleJobFailure(ctx context.Context, logger *slog.Logger, job queue.Job, jobErr error) {
	message := strings.TrimSpace(jobErr.Error())
	if message == "" {
		message = "job failed without error detail"
	}
	stage := stageOf(jobErr)
	logger.Error("job failed",
		logging.String("source_url", job.SourceURL),
		logging.String("error_message", message),
		logging.Stage(stage),
		logging.Alert("job_failure"),
		logging.Error(jobErr),
		logging.String(logging.FieldEventType, "job_failed"),
		logging.String(logging.FieldErrorHint, services.Hint(jobErr)),
	)

	if err := m.deps.Queue.ReportFailure(ctx, job.ID, message); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("shutting down, could not report job failure")
			return
		}
		logger.Error("failed to report job failure",
			logging.Error(err),
			logging.String(logging.FieldEventType, "queue_report_failed"),
			logging.String(logging.FieldErrorHint, services.Hint(err)),
		)
	}
}

var stageMarkers = []struct {
	marker error
	stage  string
}{
	{services.ErrNoPlayableMedia, "resolve"},
	{services.ErrMediaExtraction, "extract"},
	{services.ErrAudioDecode, "normalize"},
	{services.ErrEmbedding, "embed"},
	{services.ErrDimensionMismatch, "embed"},
	{services.ErrMappingWrite, "mapping"},
}

func stageOf(err error) string {
	for _, entry := range stageMarkers {
		if errors.Is(err, entry.marker) {
			return entry.stage
		}
	}
	return "unknown"
}
