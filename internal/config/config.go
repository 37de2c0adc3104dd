package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains file and directory locations.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	LogDir     string `toml:"log_dir"`
	TempDir    string `toml:"temp_dir"`
	IndexPath  string `toml:"index_path"`
	MappingCSV string `toml:"mapping_csv"`
}

// Queue selects and configures the job lease queue backend.
type Queue struct {
	Backend    string `toml:"backend"`
	SQLitePath string `toml:"sqlite_path"`
	DSN        string `toml:"dsn"`
	BatchLimit int    `toml:"batch_limit"`
}

// Resolver configures the yt-dlp metadata probe.
type Resolver struct {
	Binary        string `toml:"binary"`
	PlayerClient  string `toml:"player_client"`
	Retries       int    `toml:"retries"`
	SocketTimeout int    `toml:"socket_timeout"`
}

// Clip configures ffmpeg clip extraction.
type Clip struct {
	FFmpegBinary string `toml:"ffmpeg_binary"`
	// DefaultSeconds caps jobs that carry no duration; 0 streams to the end.
	DefaultSeconds    float64 `toml:"default_seconds"`
	ReconnectDelayMax int     `toml:"reconnect_delay_max"`
}

// Audio configures the normalization chain.
type Audio struct {
	SampleRate       int     `toml:"sample_rate"`
	TopDB            float64 `toml:"top_db"`
	TargetDBFS       float64 `toml:"target_dbfs"`
	Denoise          bool    `toml:"denoise"`
	DenoiseThreshold float64 `toml:"denoise_threshold"`
}

// Embedding configures the feature extractor and aggregation strategy.
type Embedding struct {
	ExtractorURL   string  `toml:"extractor_url"`
	Dimension      int     `toml:"dimension"`
	Mode           string  `toml:"mode"`
	WindowSeconds  float64 `toml:"window_seconds"`
	StrideSeconds  float64 `toml:"stride_seconds"`
	WindowWorkers  int     `toml:"window_workers"`
	RequestTimeout int     `toml:"request_timeout"`
}

// Mapping lists the mapping backends and their locations.
type Mapping struct {
	Backends   []string `toml:"backends"`
	SQLitePath string   `toml:"sqlite_path"`
	DSN        string   `toml:"dsn"`
	BadgerDir  string   `toml:"badger_dir"`
}

// Snapshot configures optional upload of the index and mapping to S3-compatible storage.
type Snapshot struct {
	Enabled   bool   `toml:"enabled"`
	Bucket    string `toml:"bucket"`
	Prefix    string `toml:"prefix"`
	Region    string `toml:"region"`
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
}

// Workflow contains worker timing and coordination settings.
type Workflow struct {
	PollInterval   int  `toml:"poll_interval"`
	ExclusiveIndex bool `toml:"exclusive_index"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for the embedder.
//
// Configuration sections by subsystem:
//   - Paths: data, log, temp, index, and mapping file locations
//   - Queue: lease queue backend (sqlite or postgres) and batch size
//   - Resolver: yt-dlp probe options
//   - Clip: ffmpeg extraction options
//   - Audio: sample rate, silence trim, loudness target, denoise
//   - Embedding: extractor endpoint, dimension, window/stride
//   - Mapping: ordered mapping backends
//   - Snapshot: object storage upload after persist
//   - Workflow: poll interval and index exclusivity
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Queue     Queue     `toml:"queue"`
	Resolver  Resolver  `toml:"resolver"`
	Clip      Clip      `toml:"clip"`
	Audio     Audio     `toml:"audio"`
	Embedding Embedding `toml:"embedding"`
	Mapping   Mapping   `toml:"mapping"`
	Snapshot  Snapshot  `toml:"snapshot"`
	Workflow  Workflow  `toml:"workflow"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/embedder/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolvedPath, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("embedder.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the worker writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.DataDir,
		c.Paths.LogDir,
		c.Paths.TempDir,
		filepath.Dir(c.Paths.IndexPath),
		filepath.Dir(c.Paths.MappingCSV),
	}
	if c.Queue.Backend == QueueSQLite {
		dirs = append(dirs, filepath.Dir(c.Queue.SQLitePath))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// PollInterval returns the idle wait between empty cycles.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Workflow.PollInterval) * time.Second
}

// ExtractorTimeout returns the per-request timeout for the feature extractor; zero disables it.
func (c *Config) ExtractorTimeout() time.Duration {
	return time.Duration(c.Embedding.RequestTimeout) * time.Second
}

// HasMappingBackend reports whether name is among the configured mapping backends.
func (c *Config) HasMappingBackend(name string) bool {
	for _, backend := range c.Mapping.Backends {
		if backend == name {
			return true
		}
	}
	return false
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleOption customizes the generated sample configuration.
type SampleOption func(sample string) string

// WithSampleDataDir sets paths.data_dir in the sample.
func WithSampleDataDir(dir string) SampleOption {
	return sampleLine(`data_dir = "~/.local/share/embedder"`, "data_dir", dir)
}

// WithSampleExtractorURL sets embedding.extractor_url in the sample.
func WithSampleExtractorURL(url string) SampleOption {
	return sampleLine(`extractor_url = "http://127.0.0.1:8765"`, "extractor_url", url)
}

func sampleLine(current, key, value string) SampleOption {
	return func(sample string) string {
		value = strings.TrimSpace(value)
		if value == "" {
			return sample
		}
		return strings.Replace(sample, current, fmt.Sprintf("%s = %q", key, value), 1)
	}
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string, opts ...SampleOption) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	content := sampleConfig
	for _, opt := range opts {
		content = opt(content)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
