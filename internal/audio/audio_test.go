package audio_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/aprskalo1/UMS/internal/audio"
	"github.com/aprskalo1/UMS/internal/services"
)

func newNormalizer(t *testing.T) *audio.Normalizer {
	t.Helper()
	n, err := audio.NewNormalizer(audio.Options{SampleRate: 24000, TopDB: 60, TargetDBFS: -23})
	if err != nil {
		t.Fatalf("NewNormalizer returned error: %v", err)
	}
	return n
}

func rms(samples []float32) float64 {
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func sine(freq float64, rate, count int, amp float64) []float32 {
	out := make([]float32, count)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func TestTrimSilenceAllZeroUnchanged(t *testing.T) {
	in := make([]float32, 480)
	out := audio.TrimSilence(in, 60)
	if len(out) != len(in) {
		t.Fatalf("expected %d samples, got %d", len(in), len(out))
	}
	for i, v := range out {
		if v != 0 {
			t.Fatalf("sample %d changed to %v", i, v)
		}
	}
}

func TestTrimSilenceKeepsLoudSpan(t *testing.T) {
	in := []float32{0, 0.00001, 0.5, 0, -0.2, 0.0000001, 0}
	out := audio.TrimSilence(in, 60)
	want := []float32{0.5, 0, -0.2}
	if len(out) != len(want) {
		t.Fatalf("expected %v, got %v", want, out)
	}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, out)
		}
	}

	collapsed := audio.TrimSilence([]float32{0.3, 0.3, 0.3}, 0)
	if len(collapsed) != 1 || collapsed[0] != 0.3 {
		t.Fatalf("expected single first sample, got %v", collapsed)
	}

	if got := audio.TrimSilence(nil, 60); len(got) != 0 {
		t.Fatalf("expected empty output, got %v", got)
	}
}

func TestNormalizeLoudnessReachesTarget(t *testing.T) {
	in := sine(440, 24000, 24000, 0.9)
	out := audio.NormalizeLoudness(in, -23)
	got := 20 * math.Log10(rms(out))
	if math.Abs(got-(-23)) > 0.01 {
		t.Fatalf("expected -23 dBFS, got %.3f", got)
	}

	silent := audio.NormalizeLoudness(make([]float32, 10), -23)
	for _, v := range silent {
		if v != 0 || math.IsNaN(float64(v)) {
			t.Fatalf("expected silence to stay silent, got %v", silent)
		}
	}
	if got := audio.NormalizeLoudness(nil, -23); len(got) != 0 {
		t.Fatalf("expected empty output, got %v", got)
	}
}

func TestDownmixAveragesChannels(t *testing.T) {
	out := audio.Downmix([]float32{1, 0, 0.5, 0.5, -1, 1}, 2)
	want := []float32{0.5, 0.5, 0}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, out)
		}
	}
}

func TestDecodeWAVRoundTrip16Bit(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "round.wav"))
	if err != nil {
		t.Fatalf("create wav: %v", err)
	}
	defer f.Close()
	in := []float32{0, 0.5, -0.5, 0.25}
	if err := audio.EncodeWAV(f, 16000, in); err != nil {
		t.Fatalf("EncodeWAV returned error: %v", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("rewind: %v", err)
	}
	pcm, err := audio.DecodeWAV(f)
	if err != nil {
		t.Fatalf("DecodeWAV returned error: %v", err)
	}
	if pcm.SampleRate != 16000 || pcm.Channels != 1 || pcm.Frames() != len(in) {
		t.Fatalf("unexpected pcm: %+v", pcm)
	}
	for i := range in {
		if math.Abs(float64(pcm.Samples[i]-in[i])) > 1.0/32768*2 {
			t.Fatalf("sample %d: expected %v got %v", i, in[i], pcm.Samples[i])
		}
	}
}

func buildWAV(format, channels uint16, rate uint32, bits uint16, extra []byte, data []byte) []byte {
	var fmtChunk bytes.Buffer
	_ = binary.Write(&fmtChunk, binary.LittleEndian, format)
	_ = binary.Write(&fmtChunk, binary.LittleEndian, channels)
	_ = binary.Write(&fmtChunk, binary.LittleEndian, rate)
	_ = binary.Write(&fmtChunk, binary.LittleEndian, rate*uint32(channels)*uint32(bits/8))
	_ = binary.Write(&fmtChunk, binary.LittleEndian, channels*(bits/8))
	_ = binary.Write(&fmtChunk, binary.LittleEndian, bits)
	fmtChunk.Write(extra)

	var body bytes.Buffer
	body.WriteString("WAVE")
	body.WriteString("fmt ")
	_ = binary.Write(&body, binary.LittleEndian, uint32(fmtChunk.Len()))
	body.Write(fmtChunk.Bytes())
	body.WriteString("JUNK")
	_ = binary.Write(&body, binary.LittleEndian, uint32(4))
	body.Write([]byte{1, 2, 3, 0})
	body.WriteString("data")
	_ = binary.Write(&body, binary.LittleEndian, uint32(len(data)))
	body.Write(data)

	var out bytes.Buffer
	out.WriteString("RIFF")
	_ = binary.Write(&out, binary.LittleEndian, uint32(body.Len()))
	out.Write(body.Bytes())
	return out.Bytes()
}

func TestDecodeWAVFloatAndExtensible(t *testing.T) {
	var data bytes.Buffer
	for _, v := range []float32{0.25, -0.75, 1, 0} {
		_ = binary.Write(&data, binary.LittleEndian, v)
	}
	pcm, err := audio.DecodeWAV(bytes.NewReader(buildWAV(3, 2, 44100, 32, nil, data.Bytes())))
	if err != nil {
		t.Fatalf("DecodeWAV float returned error: %v", err)
	}
	if pcm.Channels != 2 || pcm.Frames() != 2 || pcm.Samples[1] != -0.75 {
		t.Fatalf("unexpected float pcm: %+v", pcm)
	}

	// cbSize, valid bits, channel mask, then the PCM sub-format GUID.
	extra := []byte{22, 0, 24, 0, 4, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0x10, 0, 0x80, 0, 0, 0xAA, 0, 0x38, 0x9B, 0x71}
	samples24 := []byte{0x00, 0x00, 0x40, 0x00, 0x00, 0xC0} // +0.5, -0.5
	pcm, err = audio.DecodeWAV(bytes.NewReader(buildWAV(0xFFFE, 1, 48000, 24, extra, samples24)))
	if err != nil {
		t.Fatalf("DecodeWAV extensible returned error: %v", err)
	}
	if pcm.Frames() != 2 || pcm.Samples[0] != 0.5 || pcm.Samples[1] != -0.5 {
		t.Fatalf("unexpected 24-bit pcm: %+v", pcm.Samples)
	}
}

func TestDecodeWAVUnsignedEightBit(t *testing.T) {
	pcm, err := audio.DecodeWAV(bytes.NewReader(buildWAV(1, 2, 8000, 8, nil, []byte{0x80, 0xC0, 0x00, 0xFF})))
	if err != nil {
		t.Fatalf("DecodeWAV returned error: %v", err)
	}
	want := []float32{0, 0.5, -1, 127.0 / 128}
	if pcm.Channels != 2 || len(pcm.Samples) != len(want) {
		t.Fatalf("unexpected 8-bit pcm: %+v", pcm)
	}
	for i := range want {
		if pcm.Samples[i] != want[i] {
			t.Fatalf("sample %d: expected %v got %v", i, want[i], pcm.Samples[i])
		}
	}
}

func TestDecodeWAVIgnoresChunksAfterData(t *testing.T) {
	raw := buildWAV(1, 1, 8000, 16, nil, []byte{0x00, 0x40, 0x00, 0xC0})
	raw = append(raw, "LIST"...)
	raw = append(raw, 4, 0, 0, 0, 'I', 'N', 'F', 'O')
	pcm, err := audio.DecodeWAV(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("DecodeWAV returned error: %v", err)
	}
	if len(pcm.Samples) != 2 || pcm.Samples[0] != 0.5 || pcm.Samples[1] != -0.5 {
		t.Fatalf("unexpected samples: %v", pcm.Samples)
	}
}

func TestDecodeWAVRejectsDoubleFloat(t *testing.T) {
	data := make([]byte, 16)
	_, err := audio.DecodeWAV(bytes.NewReader(buildWAV(3, 1, 8000, 64, nil, data)))
	if !errors.Is(err, services.ErrAudioDecode) {
		t.Fatalf("expected audio decode error, got %v", err)
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	if _, err := audio.DecodeWAV(bytes.NewReader([]byte("ID3 not a wav file"))); !errors.Is(err, services.ErrAudioDecode) {
		t.Fatalf("expected audio decode error, got %v", err)
	}
	if _, err := audio.DecodeWAV(bytes.NewReader(buildWAV(0x55, 1, 8000, 16, nil, nil))); !errors.Is(err, services.ErrAudioDecode) {
		t.Fatalf("expected unsupported format error, got %v", err)
	}
}

func TestLoadAndPrepSilentClip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "silence.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav: %v", err)
	}
	if err := audio.EncodeWAV(f, 24000, make([]float32, 3*24000)); err != nil {
		t.Fatalf("EncodeWAV returned error: %v", err)
	}
	f.Close()

	wave, err := newNormalizer(t).LoadAndPrep(path)
	if err != nil {
		t.Fatalf("LoadAndPrep returned error: %v", err)
	}
	if wave.SampleRate != 24000 || len(wave.Samples) != 3*24000 {
		t.Fatalf("unexpected waveform: rate=%d samples=%d", wave.SampleRate, len(wave.Samples))
	}
	if wave.Duration() != 3 {
		t.Fatalf("expected 3s duration, got %v", wave.Duration())
	}
}

func TestPrepareResamplesAndDownmixes(t *testing.T) {
	left := sine(440, 48000, 48000, 0.5)
	interleaved := make([]float32, 0, len(left)*2)
	for _, s := range left {
		interleaved = append(interleaved, s, s)
	}
	wave, err := newNormalizer(t).Prepare(audio.PCM{SampleRate: 48000, Channels: 2, Samples: interleaved})
	if err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}
	if wave.SampleRate != 24000 {
		t.Fatalf("expected 24000 Hz, got %d", wave.SampleRate)
	}
	if len(wave.Samples) == 0 || len(wave.Samples) > 24100 {
		t.Fatalf("expected roughly one second at 24 kHz, got %d samples", len(wave.Samples))
	}
}

func TestPrepareToleratesDegenerateInput(t *testing.T) {
	n := newNormalizer(t)
	for _, pcm := range []audio.PCM{
		{SampleRate: 24000, Channels: 1},
		{SampleRate: 24000, Channels: 1, Samples: []float32{0.1}},
	} {
		if _, err := n.Prepare(pcm); err != nil {
			t.Fatalf("Prepare(%d samples) returned error: %v", len(pcm.Samples), err)
		}
	}
}

func TestDenoiseAttenuatesNoiseFloor(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	const rate = 24000
	samples := make([]float32, rate*2)
	for i := range samples {
		samples[i] = float32(rng.NormFloat64() * 0.01)
	}
	tone := sine(1000, rate, rate, 0.5)
	for i := range tone {
		samples[rate+i] += tone[i]
	}

	out := audio.Denoise(samples, 1.5)
	if len(out) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(out))
	}
	region := func(s []float32) []float32 { return s[4096 : rate/2] }
	if before, after := rms(region(samples)), rms(region(out)); after > before*0.85 {
		t.Fatalf("expected noise floor reduced: before %.5f after %.5f", before, after)
	}
	if before, after := rms(out[rate+4096:2*rate-4096]), rms(tone[4096:rate-4096]); math.Abs(before-after)/after > 0.2 {
		t.Fatalf("expected tone preserved: got %.4f want %.4f", before, after)
	}

	short := []float32{0.1, 0.2}
	if got := audio.Denoise(short, 1.5); len(got) != 2 || got[0] != 0.1 {
		t.Fatalf("expected short input unchanged, got %v", got)
	}
}
