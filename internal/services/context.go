package services

import "context"

type labelsKey struct{}

// Labels are the correlation fields a job carries through the pipeline.
type Labels struct {
	JobID     string
	Stage     string
	RequestID string
}

// LabelsFromContext returns the labels attached to ctx, or the zero value.
func LabelsFromContext(ctx context.Context) Labels {
	if ctx == nil {
		return Labels{}
	}
	labels, _ := ctx.Value(labelsKey{}).(Labels)
	return labels
}

func withLabel(ctx context.Context, value string, set func(*Labels)) context.Context {
	if value == "" {
		return ctx
	}
	labels := LabelsFromContext(ctx)
	set(&labels)
	return context.WithValue(ctx, labelsKey{}, labels)
}

// WithJobID annotates ctx with the leased job (or ingested file) identifier.
func WithJobID(ctx context.Context, id string) context.Context {
	return withLabel(ctx, id, func(l *Labels) { l.JobID = id })
}

// WithStage annotates ctx with the pipeline step currently running.
func WithStage(ctx context.Context, stage string) context.Context {
	return withLabel(ctx, stage, func(l *Labels) { l.Stage = stage })
}

// WithRequestID annotates ctx with a per-attempt correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withLabel(ctx, id, func(l *Labels) { l.RequestID = id })
}
