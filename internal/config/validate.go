package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateClip(); err != nil {
		return err
	}
	if err := c.validateAudio(); err != nil {
		return err
	}
	if err := c.validateEmbedding(); err != nil {
		return err
	}
	if err := c.validateMapping(); err != nil {
		return err
	}
	if err := c.validateSnapshot(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateQueue() error {
	switch c.Queue.Backend {
	case QueueSQLite:
	case QueuePostgres:
		if c.Queue.DSN == "" {
			return errors.New("queue.dsn must be set when queue.backend is postgres (or export EMBEDDER_QUEUE_DSN)")
		}
	default:
		return fmt.Errorf("queue.backend: unsupported value %q (want sqlite or postgres)", c.Queue.Backend)
	}
	if c.Queue.BatchLimit <= 0 {
		return errors.New("queue.batch_limit must be positive")
	}
	return nil
}

func (c *Config) validateClip() error {
	if strings.TrimSpace(c.Clip.FFmpegBinary) == "" {
		return errors.New("clip.ffmpeg_binary must be set")
	}
	if strings.TrimSpace(c.Resolver.Binary) == "" {
		return errors.New("resolver.binary must be set")
	}
	if c.Clip.DefaultSeconds < 0 {
		return errors.New("clip.default_seconds must not be negative")
	}
	if c.Clip.ReconnectDelayMax <= 0 {
		return errors.New("clip.reconnect_delay_max must be positive")
	}
	if c.Resolver.Retries < 0 {
		return errors.New("resolver.retries must not be negative")
	}
	if c.Resolver.SocketTimeout <= 0 {
		return errors.New("resolver.socket_timeout must be positive")
	}
	return nil
}

func (c *Config) validateAudio() error {
	if c.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be positive")
	}
	if c.Audio.TopDB <= 0 {
		return errors.New("audio.top_db must be positive")
	}
	if c.Audio.TargetDBFS > 0 {
		return errors.New("audio.target_dbfs must be at or below 0")
	}
	if c.Audio.Denoise && c.Audio.DenoiseThreshold <= 0 {
		return errors.New("audio.denoise_threshold must be positive when audio.denoise is true")
	}
	return nil
}

func (c *Config) validateEmbedding() error {
	if c.Embedding.ExtractorURL == "" {
		return errors.New("embedding.extractor_url must be set (or export EMBEDDER_EXTRACTOR_URL)")
	}
	if c.Embedding.Dimension <= 0 {
		return errors.New("embedding.dimension must be positive")
	}
	switch c.Embedding.Mode {
	case ModeWindowed:
		if c.Embedding.WindowSeconds <= 0 {
			return errors.New("embedding.window_seconds must be positive")
		}
		if c.Embedding.StrideSeconds <= 0 {
			return errors.New("embedding.stride_seconds must be positive")
		}
	case ModeWhole:
	default:
		return fmt.Errorf("embedding.mode: unsupported value %q (want windowed or whole)", c.Embedding.Mode)
	}
	if c.Embedding.RequestTimeout < 0 {
		return errors.New("embedding.request_timeout must not be negative")
	}
	return nil
}

func (c *Config) validateMapping() error {
	if len(c.Mapping.Backends) == 0 {
		return errors.New("mapping.backends must list at least one backend")
	}
	for _, backend := range c.Mapping.Backends {
		switch backend {
		case MappingCSV, MappingSQLite, MappingBadger:
		case MappingPostgres:
			if c.Mapping.DSN == "" {
				return errors.New("mapping.dsn must be set when the postgres mapping backend is enabled")
			}
		default:
			return fmt.Errorf("mapping.backends: unsupported value %q", backend)
		}
	}
	return nil
}

func (c *Config) validateSnapshot() error {
	if !c.Snapshot.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Snapshot.Bucket) == "" {
		return errors.New("snapshot.bucket must be set when snapshot.enabled is true")
	}
	if (c.Snapshot.AccessKey == "") != (c.Snapshot.SecretKey == "") {
		return errors.New("snapshot.access_key and snapshot.secret_key must be set together")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.PollInterval <= 0 {
		return errors.New("workflow.poll_interval must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (want console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}
