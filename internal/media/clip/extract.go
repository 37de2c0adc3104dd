package clip

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aprskalo1/UMS/internal/services"
	"github.com/aprskalo1/UMS/internal/services/ytdlp"
)

// Runner abstracts command execution for testability.
type Runner interface {
	CombinedOutput(ctx context.Context, binary string, args []string) ([]byte, error)
}

// Options configures an Extractor.
type Options struct {
	FFmpegBinary      string
	TempDir           string
	SampleRate        int
	ReconnectDelayMax int
	Runner            Runner
}

// Extractor wraps ffmpeg clip extraction.
type Extractor struct {
	binary     string
	tempDir    string
	sampleRate int
	reconnect  int
	runner     Runner
}

// NewExtractor constructs an Extractor, defaulting the binary to ffmpeg.
func NewExtractor(opts Options) (*Extractor, error) {
	binary := strings.TrimSpace(opts.FFmpegBinary)
	if binary == "" {
		binary = "ffmpeg"
	}
	if opts.SampleRate <= 0 {
		return nil, errors.New("clip extractor: sample rate must be positive")
	}
	reconnect := opts.ReconnectDelayMax
	if reconnect <= 0 {
		reconnect = 5
	}
	runner := opts.Runner
	if runner == nil {
		runner = commandRunner{}
	}
	return &Extractor{
		binary:     binary,
		tempDir:    opts.TempDir,
		sampleRate: opts.SampleRate,
		reconnect:  reconnect,
		runner:     runner,
	}, nil
}

// Extract decodes [startS, startS+durS) of the stream into a temp WAV. A zero
// duration reads to the end of the stream.
func (e *Extractor) Extract(ctx context.Context, stream ytdlp.Stream, startS, durS float64) (*Temp, error) {
	if strings.TrimSpace(stream.URL) == "" {
		return nil, services.Wrap(services.ErrMediaExtraction, "extract", "ffmpeg", "stream url is empty", nil)
	}
	tmp, err := TempFile(e.tempDir, "clip-*.wav")
	if err != nil {
		return nil, services.Wrap(services.ErrMediaExtraction, "extract", "temp file", "", err)
	}

	args := e.Args(stream, startS, durS, tmp.Path())
	if output, err := e.runner.CombinedOutput(ctx, e.binary, args); err != nil {
		_ = tmp.Remove()
		detail := strings.TrimSpace(string(output))
		if detail != "" {
			err = fmt.Errorf("%w: %s", err, detail)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w (%w)", err, ctxErr)
		}
		return nil, services.Wrap(services.ErrMediaExtraction, "extract", "ffmpeg", "", err)
	}
	return tmp, nil
}

// Args builds the ffmpeg argument list for one clip.
func (e *Extractor) Args(stream ytdlp.Stream, startS, durS float64, dest string) []string {
	args := []string{"-nostdin", "-hide_banner", "-loglevel", "error"}
	if startS > 0 {
		args = append(args, "-ss", formatSeconds(startS))
	}
	if header := HeaderArg(stream.Headers); header != "" {
		args = append(args, "-headers", header)
	}
	if isNetworkURL(stream.URL) {
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", strconv.Itoa(e.reconnect),
		)
	}
	args = append(args,
		"-i", stream.URL,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(e.sampleRate),
		"-c:a", "pcm_s16le",
	)
	if durS > 0 {
		args = append(args, "-t", formatSeconds(durS))
	}
	return append(args, "-y", dest)
}

// HeaderArg renders headers in ffmpeg's CRLF-joined form with sorted keys.
func HeaderArg(headers map[string]string) string {
	if len(headers) == 0 {
		return ""
	}
	keys := make([]string, 0, len(headers))
	for key := range headers {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, key := range keys {
		b.WriteString(key)
		b.WriteString(": ")
		b.WriteString(headers[key])
		b.WriteString("\r\n")
	}
	return b.String()
}

// isNetworkURL limits reconnect flags to inputs ffmpeg opens over http.
func isNetworkURL(raw string) bool {
	lower := strings.ToLower(raw)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

type commandRunner struct{}

func (commandRunner) CombinedOutput(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	// Children that inherit the pipes must not hold Wait open after a kill.
	cmd.WaitDelay = 2 * time.Second
	return cmd.CombinedOutput()
}
