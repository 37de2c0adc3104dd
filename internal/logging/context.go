package logging

import (
	"context"
	"log/slog"

	"github.com/aprskalo1/UMS/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldJobID is the standardized structured logging key for leased job identifiers.
	FieldJobID = "job_id"
	// FieldStage is the standardized structured logging key for pipeline stage names.
	FieldStage = "stage"
	// FieldOrdinalID is the index position assigned to a job's vector.
	FieldOrdinalID = "ordinal_id"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType classifies a log line for filtering (e.g. "queue_fetch_failed").
	FieldEventType = "event_type"
	// FieldErrorHint carries an operator-facing next step for warnings and errors.
	FieldErrorHint = "error_hint"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	labels := services.LabelsFromContext(ctx)
	var fields []slog.Attr
	if labels.JobID != "" {
		fields = append(fields, slog.String(FieldJobID, labels.JobID))
	}
	if labels.Stage != "" {
		fields = append(fields, slog.String(FieldStage, labels.Stage))
	}
	if labels.RequestID != "" {
		fields = append(fields, slog.String(FieldCorrelationID, labels.RequestID))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
