package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrQueueUnavailable marks a failed lease fetch; the cycle aborts and retries later.
	ErrQueueUnavailable = errors.New("queue unavailable")
	// ErrNoPlayableMedia marks a source with no directly fetchable stream variant.
	ErrNoPlayableMedia = errors.New("no playable media")
	// ErrMediaExtraction marks a failed decode/transcode of the clip window.
	ErrMediaExtraction = errors.New("media extraction failed")
	// ErrAudioDecode marks an extracted clip that could not be decoded.
	ErrAudioDecode = errors.New("audio decode error")
	// ErrEmbedding marks a feature extractor call that failed.
	ErrEmbedding = errors.New("embedding failed")
	// ErrDimensionMismatch marks an extractor/index dimension disagreement.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrIndexPersist marks a failed write of the vector index file.
	ErrIndexPersist = errors.New("index persist error")
	// ErrMappingWrite marks a failed mapping backend write.
	ErrMappingWrite = errors.New("mapping write error")

	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

var hints = []struct {
	marker error
	hint   string
}{
	{ErrQueueUnavailable, "check queue connectivity (queue.dsn / queue.sqlite_path)"},
	{ErrNoPlayableMedia, "source exposes no direct stream; verify the URL or update yt-dlp"},
	{ErrMediaExtraction, "inspect ffmpeg stderr in the error; the stream may be geo-blocked or expired"},
	{ErrAudioDecode, "clip was not a readable WAV; check ffmpeg output settings"},
	{ErrEmbedding, "check the feature extractor service (embedding.extractor_url)"},
	{ErrDimensionMismatch, "embedding.dimension must match both the extractor and the index file"},
	{ErrIndexPersist, "check free space and permissions for paths.index_path"},
	{ErrMappingWrite, "mapping backend rejected the write; run 'embedder index verify'"},
	{ErrConfiguration, "fix the configuration and restart"},
}

// Hint returns an operator-facing next step for the error's marker.
func Hint(err error) string {
	for _, h := range hints {
		if errors.Is(err, h.marker) {
			return h.hint
		}
	}
	return "check logs for details"
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
