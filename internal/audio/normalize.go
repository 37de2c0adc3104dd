package audio

import (
	"fmt"
	"math"
	"os"

	resampling "github.com/tphakala/go-audio-resampling"

	"github.com/aprskalo1/UMS/internal/services"
)

// Waveform is mono audio at a fixed sample rate.
type Waveform struct {
	SampleRate int
	Samples    []float32
}

// Duration returns the waveform length in seconds.
func (w Waveform) Duration() float64 {
	if w.SampleRate <= 0 {
		return 0
	}
	return float64(len(w.Samples)) / float64(w.SampleRate)
}

// Options configures the normalization chain.
type Options struct {
	SampleRate       int
	TopDB            float64
	TargetDBFS       float64
	Denoise          bool
	DenoiseThreshold float64
}

// Normalizer runs the fixed preparation chain.
type Normalizer struct {
	opts Options
}

// NewNormalizer validates opts and fills zero values with the pipeline defaults.
func NewNormalizer(opts Options) (*Normalizer, error) {
	if opts.SampleRate <= 0 {
		return nil, fmt.Errorf("normalizer: sample rate must be positive")
	}
	if opts.TopDB <= 0 {
		opts.TopDB = 60
	}
	if opts.TargetDBFS == 0 {
		opts.TargetDBFS = -23
	}
	if opts.DenoiseThreshold <= 0 {
		opts.DenoiseThreshold = 1.5
	}
	return &Normalizer{opts: opts}, nil
}

// SampleRate is the rate every prepared waveform carries.
func (n *Normalizer) SampleRate() int {
	return n.opts.SampleRate
}

// LoadAndPrep decodes the WAV at path and prepares it.
func (n *Normalizer) LoadAndPrep(path string) (Waveform, error) {
	f, err := os.Open(path)
	if err != nil {
		return Waveform{}, services.Wrap(services.ErrAudioDecode, "normalize", "open", path, err)
	}
	defer f.Close()

	pcm, err := DecodeWAV(f)
	if err != nil {
		return Waveform{}, err
	}
	return n.Prepare(pcm)
}

// Prepare runs resample, downmix, trim, loudness, and optionally denoise.
func (n *Normalizer) Prepare(pcm PCM) (Waveform, error) {
	channels := pcm.Channels
	if channels <= 0 {
		channels = 1
	}
	samples := pcm.Samples
	if pcm.SampleRate > 0 && pcm.SampleRate != n.opts.SampleRate && len(samples) > 0 {
		resampled, err := Resample(samples, channels, pcm.SampleRate, n.opts.SampleRate)
		if err != nil {
			return Waveform{}, services.Wrap(services.ErrAudioDecode, "normalize", "resample", "", err)
		}
		samples = resampled
	}

	mono := Downmix(samples, channels)
	mono = TrimSilence(mono, n.opts.TopDB)
	mono = NormalizeLoudness(mono, n.opts.TargetDBFS)
	if n.opts.Denoise {
		mono = Denoise(mono, n.opts.DenoiseThreshold)
	}
	return Waveform{SampleRate: n.opts.SampleRate, Samples: mono}, nil
}

// Resample converts interleaved samples between rates.
func Resample(samples []float32, channels, from, to int) ([]float32, error) {
	if from == to || len(samples) == 0 {
		return samples, nil
	}
	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(from),
		OutputRate: float64(to),
		Channels:   channels,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("create resampler: %w", err)
	}
	input := make([]float64, len(samples))
	for i, s := range samples {
		input[i] = float64(s)
	}
	output, err := r.Process(input)
	if err != nil {
		return nil, fmt.Errorf("resample %d->%d: %w", from, to, err)
	}
	out := make([]float32, len(output)-len(output)%channels)
	for i := range out {
		out[i] = float32(output[i])
	}
	return out, nil
}

// Downmix averages interleaved channels into mono.
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	mono := make([]float32, frames)
	for f := 0; f < frames; f++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += samples[f*channels+c]
		}
		mono[f] = sum / float32(channels)
	}
	return mono
}

// TrimSilence keeps the span between the first and last sample louder than
// topDB below the peak. A silent input is returned unchanged; an input with
// nothing above the threshold collapses to its first sample.
func TrimSilence(samples []float32, topDB float64) []float32 {
	if len(samples) == 0 {
		return samples
	}
	var peak float64
	for _, s := range samples {
		if a := math.Abs(float64(s)); a > peak {
			peak = a
		}
	}
	if peak == 0 {
		return samples
	}
	threshold := peak * math.Pow(10, -topDB/20)
	start, end := -1, -1
	for i, s := range samples {
		if math.Abs(float64(s)) > threshold {
			if start < 0 {
				start = i
			}
			end = i
		}
	}
	if start < 0 {
		return samples[:1]
	}
	return samples[start : end+1]
}

// NormalizeLoudness applies a uniform gain so the RMS level reaches targetDBFS.
func NormalizeLoudness(samples []float32, targetDBFS float64) []float32 {
	if len(samples) == 0 {
		return samples
	}
	var sumSquares float64
	for _, s := range samples {
		sumSquares += float64(s) * float64(s)
	}
	rms := math.Sqrt(sumSquares / float64(len(samples)))
	current := 20 * math.Log10(rms+1e-9)
	gain := math.Pow(10, (targetDBFS-current)/20)

	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(float64(s) * gain)
	}
	return out
}
