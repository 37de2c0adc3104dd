package featureapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/aprskalo1/UMS/internal/services"
)

const (
	contentType  = "application/msgpack"
	maxErrorBody = 512
)

// Config captures the runtime settings for the extractor service.
type Config struct {
	BaseURL string
	// Timeout bounds each request; zero leaves requests unbounded.
	Timeout time.Duration
}

// Client wraps the feature extractor HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a client for the service at cfg.BaseURL.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, services.Wrap(services.ErrConfiguration, "embed", "new client", "extractor url required", nil)
	}
	if _, err := url.Parse(base); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "embed", "new client", "invalid extractor url", err)
	}
	client := &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type embedRequest struct {
	SampleRate int       `msgpack:"sample_rate"`
	Samples    []float32 `msgpack:"samples"`
}

type embedResponse struct {
	Embedding []float32 `msgpack:"embedding"`
}

// Info describes the model behind the service.
type Info struct {
	Dimension  int `msgpack:"dimension"`
	SampleRate int `msgpack:"sample_rate"`
}

type httpStatusError struct {
	StatusCode int
	Body       string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// Embed returns the embedding for one waveform segment.
func (c *Client) Embed(ctx context.Context, samples []float32, sampleRate int) ([]float32, error) {
	if len(samples) == 0 {
		return nil, services.Wrap(services.ErrEmbedding, "embed", "request", "no samples", nil)
	}
	var resp embedResponse
	if err := c.do(ctx, http.MethodPost, "/embed", embedRequest{SampleRate: sampleRate, Samples: samples}, &resp); err != nil {
		return nil, services.Wrap(services.ErrEmbedding, "embed", "request", fmt.Sprintf("%d samples @ %d Hz", len(samples), sampleRate), err)
	}
	if len(resp.Embedding) == 0 {
		return nil, services.Wrap(services.ErrEmbedding, "embed", "request", "empty embedding in response", nil)
	}
	return resp.Embedding, nil
}

// Info fetches the model description.
func (c *Client) Info(ctx context.Context) (Info, error) {
	var info Info
	if err := c.do(ctx, http.MethodGet, "/info", nil, &info); err != nil {
		return Info{}, services.Wrap(services.ErrEmbedding, "embed", "info", "", err)
	}
	return info, nil
}

// Dimension returns the model's output vector length.
func (c *Client) Dimension(ctx context.Context) (int, error) {
	info, err := c.Info(ctx)
	if err != nil {
		return 0, err
	}
	if info.Dimension <= 0 {
		return 0, services.Wrap(services.ErrEmbedding, "embed", "info", fmt.Sprintf("service reported dimension %d", info.Dimension), nil)
	}
	return info.Dimension, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	endpoint, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return fmt.Errorf("build url: %w", err)
	}
	var body io.Reader
	if payload != nil {
		encoded, err := msgpack.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", contentType)
	if payload != nil {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http error: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text := string(raw)
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		return &httpStatusError{StatusCode: resp.StatusCode, Body: text}
	}
	if err := msgpack.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// StatusCode extracts the HTTP status from an error returned by the client, or 0.
func StatusCode(err error) int {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}
