package services_test

import (
	"context"
	"testing"

	"github.com/aprskalo1/UMS/internal/services"
)

func TestLabelsAccumulate(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithJobID(ctx, "job-42")
	ctx = services.WithStage(ctx, "normalize")
	ctx = services.WithRequestID(ctx, "req-123")

	got := services.LabelsFromContext(ctx)
	want := services.Labels{JobID: "job-42", Stage: "normalize", RequestID: "req-123"}
	if got != want {
		t.Fatalf("unexpected labels: %+v", got)
	}
}

func TestStageOverrideKeepsParentIntact(t *testing.T) {
	parent := services.WithStage(services.WithJobID(context.Background(), "job-1"), "resolve")
	child := services.WithStage(parent, "extract")

	if stage := services.LabelsFromContext(parent).Stage; stage != "resolve" {
		t.Fatalf("parent stage changed to %q", stage)
	}
	if labels := services.LabelsFromContext(child); labels.Stage != "extract" || labels.JobID != "job-1" {
		t.Fatalf("unexpected child labels: %+v", labels)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	if services.WithStage(ctx, "") != ctx || services.WithJobID(ctx, "") != ctx {
		t.Fatal("expected blank values to return the original context")
	}
	if labels := services.LabelsFromContext(ctx); labels != (services.Labels{}) {
		t.Fatalf("expected zero labels, got %+v", labels)
	}
}
