package preflight

import (
	"context"
	"path/filepath"

	"github.com/aprskalo1/UMS/internal/config"
	"github.com/aprskalo1/UMS/internal/embedding"
	"github.com/aprskalo1/UMS/internal/queue"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Probes are live collaborators to check. Nil fields skip that check.
type Probes struct {
	Queue     queue.Backend
	Extractor embedding.Extractor
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config, probes Probes) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	for _, status := range CheckSystemDeps(ctx, cfg) {
		results = append(results, binaryResult(status))
	}

	results = append(results,
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Temp directory", cfg.Paths.TempDir),
		CheckDirectoryAccess("Index directory", filepath.Dir(cfg.Paths.IndexPath)),
	)
	if cfg.HasMappingBackend(config.MappingCSV) {
		results = append(results, CheckDirectoryAccess("Mapping directory", filepath.Dir(cfg.Paths.MappingCSV)))
	}

	results = append(results, CheckIndex(cfg.Paths.IndexPath, cfg.Embedding.Dimension))

	if probes.Queue != nil {
		results = append(results, CheckQueue(ctx, probes.Queue))
	}
	if probes.Extractor != nil {
		results = append(results, CheckExtractor(ctx, probes.Extractor, cfg.Embedding.Dimension))
	}
	return results
}

// Failed reports whether any result did not pass.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return true
		}
	}
	return false
}
