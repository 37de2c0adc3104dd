package workflow

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aprskalo1/UMS/internal/logging"
	"github.com/aprskalo1/UMS/internal/services"
	"github.com/aprskalo1/UMS/internal/services/ytdlp"
)

var audioExtensions = map[string]bool{
	".wav":  true,
	".flac": true,
	".mp3":  true,
	".m4a":  true,
	".ogg":  true,
	".opus": true,
}

// ProgressFunc observes each finished file during IngestFiles.
type ProgressFunc func(done, total int, result JobResult)

// CollectAudioFiles expands directories into the audio files beneath them.
// Explicit file arguments are kept regardless of extension.
func CollectAudioFiles(paths []string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)
	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}
	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", root, err)
		}
		if !info.IsDir() {
			add(root)
			continue
		}
		var found []string
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !audioExtensions[strings.ToLower(filepath.Ext(path))] {
				return nil
			}
			found = append(found, path)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
		sort.Strings(found)
		for _, path := range found {
			add(path)
		}
	}
	return files, nil
}

// IngestFiles embeds local audio files keyed by base name, bypassing the queue.
// A failing file is recorded and skipped. The index is persisted once at the end.
func (m *Manager) IngestFiles(ctx context.Context, paths []string, progress ProgressFunc) (report CycleReport, err error) {
	start := time.Now()
	defer func() {
		report.Duration = time.Since(start)
		m.finishCycle(report, err)
	}()

	report.Fetched = len(paths)
	m.setState(StateProcessing)
	added := 0
	for i, path := range paths {
		if ctx.Err() != nil {
			break
		}
		result := m.ingestFile(ctx, path)
		if result.OrdinalID >= 0 {
			added++
		}
		report.Results = append(report.Results, result)
		if result.Err != nil {
			report.Failed++
		} else {
			report.Succeeded++
		}
		if progress != nil {
			progress(i+1, len(paths), result)
		}
	}

	if added == 0 {
		return report, nil
	}
	m.setState(StatePersisting)
	if err := m.deps.Index.Persist(); err != nil {
		if !errors.Is(err, services.ErrIndexPersist) {
			err = services.Wrap(services.ErrIndexPersist, "index", "persist", "", err)
		}
		return report, err
	}
	report.Persisted = true
	m.snapshot(ctx)
	m.logger.Info("ingest complete",
		logging.Int("succeeded", report.Succeeded),
		logging.Int("failed", report.Failed),
		logging.Int("index_size", m.deps.Index.Len()),
		logging.String(logging.FieldEventType, "ingest_complete"),
	)
	return report, nil
}

func (m *Manager) ingestFile(ctx context.Context, path string) JobResult {
	start := time.Now()
	key := filepath.Base(path)
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, m.logger).With(logging.String("file", key))

	ordinal, err := m.ingestPath(ctx, path, key)
	result := JobResult{JobID: key, OrdinalID: ordinal, Err: err, Duration: time.Since(start)}
	if err != nil {
		logger.Warn("file skipped",
			logging.Error(err),
			logging.Stage(stageOf(err)),
			logging.String(logging.FieldEventType, "ingest_file_failed"),
			logging.String(logging.FieldErrorHint, services.Hint(err)),
		)
		return result
	}
	logger.Info("file embedded",
		logging.Ordinal(ordinal),
		logging.String(logging.FieldEventType, "ingest_file_embedded"),
	)
	return result
}

func (m *Manager) ingestPath(ctx context.Context, path, key string) (int64, error) {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		return m.embedFile(ctx, path, key)
	}
	tmp, err := m.deps.Extractor.Extract(services.WithStage(ctx, "extract"), ytdlp.Stream{URL: path}, 0, 0)
	if err != nil {
		return -1, err
	}
	defer func() { _ = tmp.Remove() }()
	return m.embedFile(ctx, tmp.Path(), key)
}
