package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aprskalo1/UMS/internal/audio"
	"github.com/aprskalo1/UMS/internal/logging"
	"github.com/aprskalo1/UMS/internal/mapping"
	"github.com/aprskalo1/UMS/internal/media/clip"
	"github.com/aprskalo1/UMS/internal/queue"
	"github.com/aprskalo1/UMS/internal/services/ytdlp"
)

// Resolver turns a source URL into a directly fetchable stream.
type Resolver interface {
	Resolve(ctx context.Context, sourceURL string) (ytdlp.Stream, error)
}

// ClipExtractor writes a bounded clip of a stream to a temp WAV file.
type ClipExtractor interface {
	Extract(ctx context.Context, stream ytdlp.Stream, startS, durS float64) (*clip.Temp, error)
}

// Normalizer loads and prepares a WAV file.
type Normalizer interface {
	LoadAndPrep(path string) (audio.Waveform, error)
}

// Embedder turns a prepared waveform into one vector.
type Embedder interface {
	Embed(ctx context.Context, wave audio.Waveform) ([]float32, error)
}

// Index is the similarity index the worker appends to.
type Index interface {
	Add(vec []float32) (int64, error)
	Persist() error
	Len() int
}

// Snapshotter copies persisted state elsewhere after a cycle.
type Snapshotter interface {
	Snapshot(ctx context.Context) error
}

// Deps are the collaborators a Manager drives. Snapshot may be nil. Queue and
// Resolver may be nil when the manager only ingests local files.
type Deps struct {
	Queue      queue.Backend
	Resolver   Resolver
	Extractor  ClipExtractor
	Normalizer Normalizer
	Embedder   Embedder
	Index      Index
	Mapping    mapping.Store
	Snapshot   Snapshotter
	Logger     *slog.Logger
}

// Options tune cycle behaviour.
type Options struct {
	BatchLimit   int
	PollInterval time.Duration
	// DefaultClipSeconds applies to jobs without a duration; 0 reads to the end.
	DefaultClipSeconds float64
}

// Manager runs pipeline cycles.
type Manager struct {
	deps   Deps
	opts   Options
	logger *slog.Logger

	mu        sync.RWMutex
	state     State
	lastErr   error
	lastCycle *CycleReport
	cycles    int
}

// NewManager validates deps and returns an idle manager.
func NewManager(deps Deps, opts Options) (*Manager, error) {
	switch {
	case deps.Extractor == nil:
		return nil, errors.New("workflow: clip extractor required")
	case deps.Normalizer == nil:
		return nil, errors.New("workflow: normalizer required")
	case deps.Embedder == nil:
		return nil, errors.New("workflow: embedder required")
	case deps.Index == nil:
		return nil, errors.New("workflow: index required")
	case deps.Mapping == nil:
		return nil, errors.New("workflow: mapping store required")
	}
	if opts.BatchLimit <= 0 {
		opts.BatchLimit = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Second
	}
	return &Manager{
		deps:   deps,
		opts:   opts,
		logger: logging.NewComponentLogger(deps.Logger, "workflow"),
		state:  StateIdle,
	}, nil
}
