package ytdlp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/aprskalo1/UMS/internal/services"
)

// Stream is a resolved media URL plus the request headers it needs.
type Stream struct {
	URL     string
	Headers map[string]string
}

// Format is the subset of a yt-dlp format entry used for selection.
type Format struct {
	FormatID    string            `json:"format_id"`
	URL         string            `json:"url"`
	Ext         string            `json:"ext"`
	Protocol    string            `json:"protocol"`
	VCodec      *string           `json:"vcodec"`
	ACodec      *string           `json:"acodec"`
	ABR         *float64          `json:"abr"`
	TBR         *float64          `json:"tbr"`
	ASR         *float64          `json:"asr"`
	HTTPHeaders map[string]string `json:"http_headers"`
}

// Info is the subset of yt-dlp's -J output used for selection.
type Info struct {
	ID                 string            `json:"id"`
	Title              string            `json:"title"`
	URL                string            `json:"url"`
	HTTPHeaders        map[string]string `json:"http_headers"`
	Formats            []Format          `json:"formats"`
	RequestedDownloads []Format          `json:"requested_downloads"`
}

// Executor abstracts command execution for testability.
type Executor interface {
	Output(ctx context.Context, binary string, args []string) ([]byte, error)
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithPlayerClient overrides the youtube extractor player client.
func WithPlayerClient(name string) Option {
	return func(c *Client) {
		c.playerClient = strings.TrimSpace(name)
	}
}

// WithNetwork sets the yt-dlp retry count and socket timeout in seconds.
func WithNetwork(retries, socketTimeout int) Option {
	return func(c *Client) {
		c.retries = retries
		c.socketTimeout = socketTimeout
	}
}

// Client wraps yt-dlp metadata probes.
type Client struct {
	binary        string
	playerClient  string
	retries       int
	socketTimeout int
	exec          Executor
}

// New constructs a resolver client.
func New(binary string, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("yt-dlp binary required")
	}
	client := &Client{
		binary:        binary,
		playerClient:  "android",
		retries:       2,
		socketTimeout: 15,
		exec:          commandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Resolve probes sourceURL and returns the best audio stream.
func (c *Client) Resolve(ctx context.Context, sourceURL string) (Stream, error) {
	sourceURL = strings.TrimSpace(sourceURL)
	if sourceURL == "" {
		return Stream{}, services.Wrap(services.ErrValidation, "resolve", "probe", "source url is empty", nil)
	}
	output, err := c.exec.Output(ctx, c.binary, c.args(sourceURL))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w (%w)", err, ctxErr)
		}
		return Stream{}, services.Wrap(services.ErrNoPlayableMedia, "resolve", "yt-dlp", sourceURL, err)
	}
	var info Info
	if err := json.Unmarshal(output, &info); err != nil {
		return Stream{}, services.Wrap(services.ErrNoPlayableMedia, "resolve", "decode metadata", sourceURL, err)
	}
	stream, ok := SelectBest(info)
	if !ok {
		return Stream{}, services.Wrap(services.ErrNoPlayableMedia, "resolve", "select format", "no playable formats with direct URL", nil)
	}
	return stream, nil
}

func (c *Client) args(sourceURL string) []string {
	args := []string{
		"-J",
		"--no-playlist",
		"--skip-download",
		"--no-warnings",
		"--geo-bypass",
		"--retries", strconv.Itoa(c.retries),
		"--socket-timeout", strconv.Itoa(c.socketTimeout),
	}
	if c.playerClient != "" {
		args = append(args, "--extractor-args", "youtube:player_client="+c.playerClient)
	}
	return append(args, sourceURL)
}

// SelectBest picks the stream to fetch from probe metadata. Requested
// downloads are preferred over the full format list, and the top-level URL is
// the last resort.
func SelectBest(info Info) (Stream, bool) {
	best, ok := pickBest(info.RequestedDownloads)
	if !ok {
		best, ok = pickBest(info.Formats)
	}
	if ok {
		headers := best.HTTPHeaders
		if len(headers) == 0 {
			headers = info.HTTPHeaders
		}
		return Stream{URL: best.URL, Headers: copyHeaders(headers)}, true
	}
	if strings.TrimSpace(info.URL) != "" {
		return Stream{URL: info.URL, Headers: copyHeaders(info.HTTPHeaders)}, true
	}
	return Stream{}, false
}

func pickBest(formats []Format) (Format, bool) {
	var audioOnly, withURL []Format
	for _, f := range formats {
		if f.URL == "" {
			continue
		}
		withURL = append(withURL, f)
		if codecAbsent(f.VCodec) && !codecAbsent(f.ACodec) {
			audioOnly = append(audioOnly, f)
		}
	}
	candidates := audioOnly
	if len(candidates) == 0 {
		candidates = withURL
	}
	if len(candidates) == 0 {
		return Format{}, false
	}

	best := candidates[0]
	bestScore := scoreOf(best)
	for _, f := range candidates[1:] {
		if s := scoreOf(f); s.greater(bestScore) {
			best, bestScore = f, s
		}
	}
	return best, true
}

type score struct {
	progressive int
	bitrate     float64
	sampleRate  float64
}

func (s score) greater(other score) bool {
	if s.progressive != other.progressive {
		return s.progressive > other.progressive
	}
	if s.bitrate != other.bitrate {
		return s.bitrate > other.bitrate
	}
	return s.sampleRate > other.sampleRate
}

func scoreOf(f Format) score {
	s := score{progressive: 1}
	proto := strings.ToLower(f.Protocol)
	if strings.Contains(proto, "m3u8") || proto == "http_dash_segments" || f.Ext == "m3u8" {
		s.progressive = 0
	}
	switch {
	case positive(f.ABR):
		s.bitrate = *f.ABR
	case positive(f.TBR):
		s.bitrate = *f.TBR
	}
	if positive(f.ASR) {
		s.sampleRate = *f.ASR
	}
	return s
}

func positive(v *float64) bool {
	return v != nil && *v > 0
}

// codecAbsent treats a missing field and the literal "none" alike.
func codecAbsent(codec *string) bool {
	return codec == nil || *codec == "" || *codec == "none"
}

func copyHeaders(headers map[string]string) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		out[k] = v
	}
	return out
}

type commandExecutor struct{}

func (commandExecutor) Output(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	// Children that inherit the pipes must not hold Wait open after a kill.
	cmd.WaitDelay = 2 * time.Second
	var stderr strings.Builder
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return output, nil
}
