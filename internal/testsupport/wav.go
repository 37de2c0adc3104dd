package testsupport

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/aprskalo1/UMS/internal/audio"
)

// WriteWAV writes samples as 16-bit mono PCM to path, creating parent dirs.
func WriteWAV(t testing.TB, path string, sampleRate int, samples []float32) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create wav dir: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav: %v", err)
	}
	defer f.Close()
	if err := audio.EncodeWAV(f, sampleRate, samples); err != nil {
		t.Fatalf("encode wav: %v", err)
	}
	return path
}

// Tone returns seconds of a sine wave at freq Hz.
func Tone(sampleRate int, seconds, freq, amplitude float64) []float32 {
	out := make([]float32, int(seconds*float64(sampleRate)))
	for i := range out {
		out[i] = float32(amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return out
}
