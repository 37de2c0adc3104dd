package audio

import (
	"errors"
	"fmt"
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/aprskalo1/UMS/internal/services"
)

const (
	formatPCM        = 0x0001
	formatFloat      = 0x0003
	formatExtensible = 0xFFFE
)

// PCM is decoded interleaved audio with samples scaled to [-1, 1].
type PCM struct {
	SampleRate int
	Channels   int
	Samples    []float32
}

// Frames returns the number of samples per channel.
func (p PCM) Frames() int {
	if p.Channels <= 0 {
		return 0
	}
	return len(p.Samples) / p.Channels
}

// DecodeWAV reads a RIFF/WAVE stream. Integer PCM of 8, 16, 24 and 32 bits
// and 32-bit IEEE float are accepted. WAVE_FORMAT_EXTENSIBLE is read as
// integer PCM at the declared bit depth.
func DecodeWAV(r io.ReadSeeker) (PCM, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		err := dec.Err()
		if err == nil {
			err = errors.New("missing or empty fmt chunk")
		}
		return PCM{}, decodeErr("not a wav stream", err)
	}

	bits := int(dec.BitDepth)
	isFloat := false
	switch dec.WavAudioFormat {
	case formatPCM, formatExtensible:
	case formatFloat:
		if bits != 32 {
			return PCM{}, decodeErr(fmt.Sprintf("unsupported float width %d", bits), nil)
		}
		isFloat = true
	default:
		return PCM{}, decodeErr(fmt.Sprintf("unsupported format tag 0x%04x", dec.WavAudioFormat), nil)
	}
	if dec.SampleRate == 0 {
		return PCM{}, decodeErr("invalid sample rate 0", nil)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return PCM{}, decodeErr("read samples", err)
	}
	// The decoder reads to end of stream, so chunks after data are cut off here.
	data := buf.Data
	if n := int(dec.PCMLen()) / ((bits + 7) / 8); n < len(data) {
		data = data[:n]
	}
	samples, err := scaleSamples(data, bits, isFloat)
	if err != nil {
		return PCM{}, err
	}
	channels := int(dec.NumChans)
	// Drop a trailing partial frame.
	samples = samples[:len(samples)-len(samples)%channels]
	return PCM{SampleRate: int(dec.SampleRate), Channels: channels, Samples: samples}, nil
}

func scaleSamples(data []int, bits int, isFloat bool) ([]float32, error) {
	out := make([]float32, len(data))
	switch {
	case isFloat:
		for i, v := range data {
			out[i] = math.Float32frombits(uint32(int32(v)))
		}
	case bits == 8:
		for i, v := range data {
			out[i] = float32(v-128) / 128
		}
	case bits == 16, bits == 24, bits == 32:
		scale := float32(int64(1) << (bits - 1))
		for i, v := range data {
			out[i] = float32(v) / scale
		}
	default:
		return nil, decodeErr(fmt.Sprintf("unsupported bit depth %d", bits), nil)
	}
	return out, nil
}

// EncodeWAV writes mono samples as 16-bit PCM. The writer must be seekable
// so the RIFF and data sizes can be patched once the samples are written.
func EncodeWAV(w io.WriteSeeker, sampleRate int, samples []float32) error {
	data := make([]int, len(samples))
	for i, s := range samples {
		v := math.Round(float64(s) * 32767)
		data[i] = int(math.Max(-32768, math.Min(32767, v)))
	}
	enc := wav.NewEncoder(w, sampleRate, 16, 1, formatPCM)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}
	return nil
}

func decodeErr(msg string, err error) error {
	return services.Wrap(services.ErrAudioDecode, "normalize", "decode wav", msg, err)
}
