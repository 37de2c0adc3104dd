package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/aprskalo1/UMS/internal/audio"
	"github.com/aprskalo1/UMS/internal/services"
)

// Modes accepted by the aggregator.
const (
	ModeWhole    = "whole"
	ModeWindowed = "windowed"
)

// Extractor is the external model: waveform in, vector out.
type Extractor interface {
	Embed(ctx context.Context, samples []float32, sampleRate int) ([]float32, error)
	Dimension(ctx context.Context) (int, error)
}

// Options configures aggregation.
type Options struct {
	Mode          string
	Dimension     int
	WindowSeconds float64
	StrideSeconds float64
	// Workers above 1 fans window calls out over a goroutine pool.
	Workers int
}

// Aggregator produces one embedding per waveform.
type Aggregator struct {
	extractor Extractor
	opts      Options
	pool      *ants.Pool
}

// NewAggregator validates opts and, when Workers > 1, starts the window pool.
func NewAggregator(extractor Extractor, opts Options) (*Aggregator, error) {
	if extractor == nil {
		return nil, errors.New("aggregator: extractor required")
	}
	if opts.Dimension <= 0 {
		return nil, fmt.Errorf("aggregator: dimension must be positive, got %d", opts.Dimension)
	}
	switch opts.Mode {
	case "":
		opts.Mode = ModeWindowed
	case ModeWhole, ModeWindowed:
	default:
		return nil, fmt.Errorf("aggregator: unknown mode %q", opts.Mode)
	}
	agg := &Aggregator{extractor: extractor, opts: opts}
	if opts.Mode == ModeWindowed && opts.Workers > 1 {
		pool, err := ants.NewPool(opts.Workers)
		if err != nil {
			return nil, fmt.Errorf("aggregator: create pool: %w", err)
		}
		agg.pool = pool
	}
	return agg, nil
}

// Close releases the window pool.
func (a *Aggregator) Close() {
	if a != nil && a.pool != nil {
		a.pool.Release()
	}
}

// Dimension is the vector length every call returns.
func (a *Aggregator) Dimension() int {
	return a.opts.Dimension
}

// Embed returns the clip embedding for wave.
func (a *Aggregator) Embed(ctx context.Context, wave audio.Waveform) ([]float32, error) {
	if len(wave.Samples) == 0 {
		return nil, services.Wrap(services.ErrEmbedding, "embed", "aggregate", "empty waveform", nil)
	}
	if a.opts.Mode == ModeWhole {
		return a.call(ctx, wave.Samples, wave.SampleRate)
	}

	spans := Windows(len(wave.Samples), wave.SampleRate, a.opts.WindowSeconds, a.opts.StrideSeconds)
	if len(spans) == 0 {
		return a.call(ctx, wave.Samples, wave.SampleRate)
	}

	vectors := make([][]float32, len(spans))
	errs := make([]error, len(spans))
	if a.pool == nil || len(spans) == 1 {
		for i, span := range spans {
			vectors[i], errs[i] = a.call(ctx, wave.Samples[span.Start:span.End], wave.SampleRate)
			if errs[i] != nil {
				return nil, errs[i]
			}
		}
	} else {
		var wg sync.WaitGroup
		for i, span := range spans {
			wg.Add(1)
			if err := a.pool.Submit(func() {
				defer wg.Done()
				vectors[i], errs[i] = a.call(ctx, wave.Samples[span.Start:span.End], wave.SampleRate)
			}); err != nil {
				wg.Done()
				errs[i] = fmt.Errorf("submit window %d: %w", i, err)
			}
		}
		wg.Wait()
		for _, err := range errs {
			if err != nil {
				return nil, err
			}
		}
	}
	return mean(vectors, a.opts.Dimension), nil
}

func (a *Aggregator) call(ctx context.Context, samples []float32, sampleRate int) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec, err := a.extractor.Embed(ctx, samples, sampleRate)
	if err != nil {
		if errors.Is(err, services.ErrEmbedding) {
			return nil, err
		}
		return nil, services.Wrap(services.ErrEmbedding, "embed", "extract", "", err)
	}
	if len(vec) != a.opts.Dimension {
		return nil, services.Wrap(services.ErrDimensionMismatch, "embed", "extract",
			fmt.Sprintf("extractor returned %d values, want %d", len(vec), a.opts.Dimension), nil)
	}
	return vec, nil
}

// Span is a half-open sample range.
type Span struct {
	Start int
	End   int
}

// Windows lists the window spans for n samples. Starts advance by the stride
// while start < max(1, n-win+1); the last window may be shorter than win.
// A non-positive window or stride yields no spans.
func Windows(n, sampleRate int, windowSeconds, strideSeconds float64) []Span {
	win := int(windowSeconds * float64(sampleRate))
	step := int(strideSeconds * float64(sampleRate))
	if win <= 0 || step <= 0 || n <= 0 {
		return nil
	}
	limit := max(1, n-win+1)
	spans := make([]Span, 0, limit/step+1)
	for start := 0; start < limit; start += step {
		spans = append(spans, Span{Start: start, End: min(start+win, n)})
	}
	return spans
}

func mean(vectors [][]float32, dim int) []float32 {
	sums := make([]float64, dim)
	for _, vec := range vectors {
		for i, v := range vec {
			sums[i] += float64(v)
		}
	}
	out := make([]float32, dim)
	count := float64(len(vectors))
	for i, s := range sums {
		out[i] = float32(s / count)
	}
	return out
}

// CheckDimension fails when the extractor's reported dimension differs from want.
func CheckDimension(ctx context.Context, extractor Extractor, want int) error {
	got, err := extractor.Dimension(ctx)
	if err != nil {
		return err
	}
	if got != want {
		return services.Wrap(services.ErrDimensionMismatch, "embed", "check dimension",
			fmt.Sprintf("extractor reports %d, configured %d", got, want), nil)
	}
	return nil
}
