package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusLeased    Status = "leased"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusLeased,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Job is one unit of ingestion work: a media reference plus the clip window
// to embed.
type Job struct {
	ID              string
	SourceURL       string
	StartSeconds    float64
	DurationSeconds float64 // 0 means to the end of the stream
	Status          Status
	ErrorMessage    string
	CollectedAt     time.Time
	LeasedAt        *time.Time
	ProcessedAt     *time.Time
	UpdatedAt       time.Time
}

// NewJob describes a job to enqueue. Zero ID and CollectedAt are filled in.
type NewJob struct {
	ID              string
	SourceURL       string
	StartSeconds    float64
	DurationSeconds float64
	CollectedAt     time.Time
}

// HealthSummary describes aggregated job counts per lifecycle state.
type HealthSummary struct {
	Backend   string
	Total     int
	Pending   int
	Leased    int
	Failed    int
	Completed int
}

func summarize(backend string, stats map[Status]int) HealthSummary {
	health := HealthSummary{Backend: backend}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusLeased:
			health.Leased += count
		case StatusFailed:
			health.Failed += count
		case StatusCompleted:
			health.Completed += count
		}
	}
	return health
}
