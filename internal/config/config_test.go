package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"github.com/aprskalo1/UMS/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "embedder.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsExpandPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("EMBEDDER_EXTRACTOR_URL", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	dataDir := filepath.Join(tempHome, ".local", "share", "embedder")
	if cfg.Paths.DataDir != dataDir {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, dataDir)
	}
	if cfg.Paths.IndexPath != filepath.Join(dataDir, "music.index") {
		t.Fatalf("unexpected index path: %q", cfg.Paths.IndexPath)
	}
	if cfg.Paths.MappingCSV != filepath.Join(dataDir, "mapping.csv") {
		t.Fatalf("unexpected mapping path: %q", cfg.Paths.MappingCSV)
	}
	if cfg.Paths.LogDir != filepath.Join(dataDir, "logs") {
		t.Fatalf("unexpected log dir: %q", cfg.Paths.LogDir)
	}
	if cfg.Queue.SQLitePath != filepath.Join(dataDir, "queue.db") {
		t.Fatalf("unexpected queue path: %q", cfg.Queue.SQLitePath)
	}
	if cfg.Queue.BatchLimit != 16 {
		t.Fatalf("unexpected batch limit: %d", cfg.Queue.BatchLimit)
	}
	if cfg.Audio.SampleRate != 24000 {
		t.Fatalf("unexpected sample rate: %d", cfg.Audio.SampleRate)
	}
	if cfg.Embedding.Dimension != 768 || cfg.Embedding.Mode != config.ModeWindowed {
		t.Fatalf("unexpected embedding defaults: %+v", cfg.Embedding)
	}
	if cfg.Embedding.WindowSeconds != 5 || cfg.Embedding.StrideSeconds != 2.5 {
		t.Fatalf("unexpected window defaults: %+v", cfg.Embedding)
	}
	if cfg.Clip.DefaultSeconds != 30 {
		t.Fatalf("unexpected clip default: %v", cfg.Clip.DefaultSeconds)
	}
	if len(cfg.Mapping.Backends) != 1 || cfg.Mapping.Backends[0] != config.MappingCSV {
		t.Fatalf("unexpected mapping backends: %v", cfg.Mapping.Backends)
	}
	if cfg.PollInterval().Seconds() != 10 {
		t.Fatalf("unexpected poll interval: %v", cfg.PollInterval())
	}
	if cfg.Snapshot.Enabled {
		t.Fatal("expected snapshot disabled by default")
	}
}

func TestLoadFileOverridesAndNormalizes(t *testing.T) {
	dataDir := t.TempDir()
	path := writeConfig(t, `
[paths]
data_dir = "`+dataDir+`"

[queue]
backend = "SQLite"
batch_limit = 4

[mapping]
backends = ["CSV", " sqlite ", "csv", "badger"]

[logging]
format = "JSON"
level = "Debug"
`)

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected file to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Queue.Backend != config.QueueSQLite || cfg.Queue.BatchLimit != 4 {
		t.Fatalf("unexpected queue config: %+v", cfg.Queue)
	}
	want := []string{"csv", "sqlite", "badger"}
	if strings.Join(cfg.Mapping.Backends, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected backends: %v", cfg.Mapping.Backends)
	}
	if cfg.Mapping.BadgerDir != filepath.Join(dataDir, "mapping.badger") {
		t.Fatalf("unexpected badger dir: %q", cfg.Mapping.BadgerDir)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
[queue]
bakend = "sqlite"
`)
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestPostgresQueueRequiresDSN(t *testing.T) {
	t.Setenv("EMBEDDER_QUEUE_DSN", "")
	path := writeConfig(t, `
[paths]
data_dir = "`+t.TempDir()+`"

[queue]
backend = "postgres"
`)
	_, _, _, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), "queue.dsn") {
		t.Fatalf("expected dsn error, got %v", err)
	}
}

func TestQueueDSNFromEnvAlsoFeedsMapping(t *testing.T) {
	t.Setenv("EMBEDDER_QUEUE_DSN", "postgres://localhost/ums")
	path := writeConfig(t, `
[paths]
data_dir = "`+t.TempDir()+`"

[queue]
backend = "postgres"

[mapping]
backends = ["csv", "postgres"]
`)
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Queue.DSN != "postgres://localhost/ums" || cfg.Mapping.DSN != cfg.Queue.DSN {
		t.Fatalf("unexpected dsn wiring: queue=%q mapping=%q", cfg.Queue.DSN, cfg.Mapping.DSN)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"batch", func(c *config.Config) { c.Queue.BatchLimit = 0 }, "queue.batch_limit"},
		{"backend", func(c *config.Config) { c.Queue.Backend = "mssql" }, "queue.backend"},
		{"dimension", func(c *config.Config) { c.Embedding.Dimension = 0 }, "embedding.dimension"},
		{"stride", func(c *config.Config) { c.Embedding.StrideSeconds = 0 }, "embedding.stride_seconds"},
		{"mode", func(c *config.Config) { c.Embedding.Mode = "pooled" }, "embedding.mode"},
		{"mapping", func(c *config.Config) { c.Mapping.Backends = nil }, "mapping.backends"},
		{"mapping name", func(c *config.Config) { c.Mapping.Backends = []string{"redis"} }, "mapping.backends"},
		{"snapshot", func(c *config.Config) { c.Snapshot.Enabled = true }, "snapshot.bucket"},
		{"poll", func(c *config.Config) { c.Workflow.PollInterval = 0 }, "workflow.poll_interval"},
		{"loudness", func(c *config.Config) { c.Audio.TargetDBFS = 3 }, "audio.target_dbfs"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestSampleConfigParses(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "config.toml")
	if err := config.CreateSample(target); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	content, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var decoded config.Config
	if err := toml.Unmarshal(content, &decoded); err != nil {
		t.Fatalf("sample config is not valid TOML: %v", err)
	}
	if decoded.Embedding.Dimension != 768 {
		t.Fatalf("unexpected sample dimension: %d", decoded.Embedding.Dimension)
	}
}

func TestSampleOptionsOverrideValues(t *testing.T) {
	dataDir := t.TempDir()
	target := filepath.Join(t.TempDir(), "config.toml")
	err := config.CreateSample(target,
		config.WithSampleDataDir(dataDir),
		config.WithSampleExtractorURL("http://extractor:9000"),
	)
	if err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	t.Setenv("EMBEDDER_EXTRACTOR_URL", "")
	cfg, _, _, err := config.Load(target)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.DataDir != dataDir {
		t.Fatalf("unexpected data dir: %q", cfg.Paths.DataDir)
	}
	if cfg.Embedding.ExtractorURL != "http://extractor:9000" {
		t.Fatalf("unexpected extractor url: %q", cfg.Embedding.ExtractorURL)
	}
}

func TestEnsureDirectories(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(t.TempDir(), "data")
	path := writeConfig(t, `
[paths]
data_dir = "`+cfg.Paths.DataDir+`"
`)
	loaded, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if err := loaded.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories returned error: %v", err)
	}
	for _, dir := range []string{loaded.Paths.DataDir, loaded.Paths.LogDir, loaded.Paths.TempDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q: %v", dir, err)
		}
	}
}
