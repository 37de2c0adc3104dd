package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aprskalo1/UMS/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Every derived path is filled in so callers never depend on HOME.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.TempDir = filepath.Join(base, "tmp")
	cfgVal.Paths.IndexPath = filepath.Join(base, "data", "music.index")
	cfgVal.Paths.MappingCSV = filepath.Join(base, "data", "mapping.csv")
	cfgVal.Queue.SQLitePath = filepath.Join(base, "data", "queue.db")
	cfgVal.Mapping.SQLitePath = filepath.Join(base, "data", "mapping.db")
	cfgVal.Mapping.BadgerDir = filepath.Join(base, "data", "mapping.badger")
	cfgVal.Embedding.Dimension = 8
	cfgVal.Workflow.PollInterval = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithDimension overrides the embedding dimension.
func WithDimension(dim int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Embedding.Dimension = dim
	}
}

// WithMappingBackends overrides the ordered mapping backend list.
func WithMappingBackends(names ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Mapping.Backends = append([]string(nil), names...)
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg and yt-dlp are stubbed
// with scripts that exit 0.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "yt-dlp"}
		}
		scripts := make(map[string]string, len(names))
		for _, name := range names {
			scripts[name] = "#!/bin/sh\nexit 0\n"
		}
		installStubs(b.t, filepath.Join(b.baseDir, "bin"), scripts)
	}
}

// WithStubScript installs a named executable with the given shell body on PATH.
func WithStubScript(name, body string) ConfigOption {
	return func(b *configBuilder) {
		installStubs(b.t, filepath.Join(b.baseDir, "bin"), map[string]string{name: "#!/bin/sh\n" + body})
	}
}

// StubBinary installs a single shell script on PATH and returns its absolute path.
func StubBinary(t testing.TB, name, body string) string {
	t.Helper()
	dir := t.TempDir()
	installStubs(t, dir, map[string]string{name: "#!/bin/sh\n" + body})
	return filepath.Join(dir, name)
}

func installStubs(t testing.TB, binDir string, scripts map[string]string) {
	t.Helper()
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatalf("mkdir bin dir: %v", err)
	}
	for name, script := range scripts {
		target := filepath.Join(binDir, name)
		if err := os.WriteFile(target, []byte(script), 0o755); err != nil {
			t.Fatalf("write stub %s: %v", name, err)
		}
	}

	oldPath := os.Getenv("PATH")
	if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
		t.Fatalf("set PATH: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Setenv("PATH", oldPath)
	})
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
