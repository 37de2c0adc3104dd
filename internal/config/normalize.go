package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Queue backends.
const (
	QueueSQLite   = "sqlite"
	QueuePostgres = "postgres"
)

// Mapping backends, in the order operators usually list them.
const (
	MappingCSV      = "csv"
	MappingSQLite   = "sqlite"
	MappingPostgres = "postgres"
	MappingBadger   = "badger"
)

// Embedding modes.
const (
	ModeWindowed = "windowed"
	ModeWhole    = "whole"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeQueue(); err != nil {
		return err
	}
	if err := c.normalizeMapping(); err != nil {
		return err
	}
	c.normalizeEmbedding()
	c.normalizeSnapshot()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.TempDir) == "" {
		c.Paths.TempDir = filepath.Join(c.Paths.DataDir, "tmp")
	}
	if c.Paths.TempDir, err = expandPath(c.Paths.TempDir); err != nil {
		return fmt.Errorf("paths.temp_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.IndexPath) == "" {
		c.Paths.IndexPath = filepath.Join(c.Paths.DataDir, defaultIndexFile)
	}
	if c.Paths.IndexPath, err = expandPath(c.Paths.IndexPath); err != nil {
		return fmt.Errorf("paths.index_path: %w", err)
	}
	if strings.TrimSpace(c.Paths.MappingCSV) == "" {
		c.Paths.MappingCSV = filepath.Join(c.Paths.DataDir, defaultMappingFile)
	}
	if c.Paths.MappingCSV, err = expandPath(c.Paths.MappingCSV); err != nil {
		return fmt.Errorf("paths.mapping_csv: %w", err)
	}
	return nil
}

func (c *Config) normalizeQueue() error {
	c.Queue.Backend = strings.ToLower(strings.TrimSpace(c.Queue.Backend))
	if c.Queue.Backend == "" {
		c.Queue.Backend = defaultQueueBackend
	}
	if c.Queue.DSN == "" {
		if value, ok := os.LookupEnv("EMBEDDER_QUEUE_DSN"); ok {
			c.Queue.DSN = strings.TrimSpace(value)
		}
	}
	if strings.TrimSpace(c.Queue.SQLitePath) == "" {
		c.Queue.SQLitePath = filepath.Join(c.Paths.DataDir, defaultQueueFile)
	}
	var err error
	if c.Queue.SQLitePath, err = expandPath(c.Queue.SQLitePath); err != nil {
		return fmt.Errorf("queue.sqlite_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeMapping() error {
	backends := make([]string, 0, len(c.Mapping.Backends))
	seen := make(map[string]struct{}, len(c.Mapping.Backends))
	for _, backend := range c.Mapping.Backends {
		name := strings.ToLower(strings.TrimSpace(backend))
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		backends = append(backends, name)
	}
	c.Mapping.Backends = backends

	if c.Mapping.DSN == "" {
		if value, ok := os.LookupEnv("EMBEDDER_MAPPING_DSN"); ok {
			c.Mapping.DSN = strings.TrimSpace(value)
		} else {
			c.Mapping.DSN = c.Queue.DSN
		}
	}

	var err error
	if strings.TrimSpace(c.Mapping.SQLitePath) == "" {
		c.Mapping.SQLitePath = filepath.Join(c.Paths.DataDir, defaultMappingSQLiteFile)
	}
	if c.Mapping.SQLitePath, err = expandPath(c.Mapping.SQLitePath); err != nil {
		return fmt.Errorf("mapping.sqlite_path: %w", err)
	}
	if strings.TrimSpace(c.Mapping.BadgerDir) == "" {
		c.Mapping.BadgerDir = filepath.Join(c.Paths.DataDir, defaultMappingBadgerDir)
	}
	if c.Mapping.BadgerDir, err = expandPath(c.Mapping.BadgerDir); err != nil {
		return fmt.Errorf("mapping.badger_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeEmbedding() {
	c.Embedding.Mode = strings.ToLower(strings.TrimSpace(c.Embedding.Mode))
	if c.Embedding.Mode == "" {
		c.Embedding.Mode = defaultEmbeddingMode
	}
	if value, ok := os.LookupEnv("EMBEDDER_EXTRACTOR_URL"); ok && strings.TrimSpace(value) != "" {
		c.Embedding.ExtractorURL = strings.TrimSpace(value)
	}
	c.Embedding.ExtractorURL = strings.TrimRight(strings.TrimSpace(c.Embedding.ExtractorURL), "/")
	if c.Embedding.WindowWorkers <= 0 {
		c.Embedding.WindowWorkers = defaultWindowWorkers
	}
}

func (c *Config) normalizeSnapshot() {
	if c.Snapshot.AccessKey == "" {
		if value, ok := os.LookupEnv("EMBEDDER_SNAPSHOT_ACCESS_KEY"); ok {
			c.Snapshot.AccessKey = strings.TrimSpace(value)
		}
	}
	if c.Snapshot.SecretKey == "" {
		if value, ok := os.LookupEnv("EMBEDDER_SNAPSHOT_SECRET_KEY"); ok {
			c.Snapshot.SecretKey = strings.TrimSpace(value)
		}
	}
	c.Snapshot.Prefix = strings.Trim(strings.TrimSpace(c.Snapshot.Prefix), "/")
	c.Snapshot.Endpoint = strings.TrimSpace(c.Snapshot.Endpoint)
	if strings.TrimSpace(c.Snapshot.Region) == "" {
		c.Snapshot.Region = defaultSnapshotRegion
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
