package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/aprskalo1/UMS/internal/config"
	"github.com/aprskalo1/UMS/internal/deps"
	"github.com/aprskalo1/UMS/internal/embedding"
	"github.com/aprskalo1/UMS/internal/queue"
	"github.com/aprskalo1/UMS/internal/vectorstore"
)

// CheckExtractor verifies the feature extractor is reachable and reports the
// configured dimension. It uses a 10-second timeout and a single attempt.
func CheckExtractor(ctx context.Context, extractor embedding.Extractor, dimension int) Result {
	const name = "Feature extractor"

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := embedding.CheckDimension(checkCtx, extractor, dimension); err != nil {
		return Result{Name: name, Detail: summarizeRemoteError(err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("reachable (dimension %d)", dimension)}
}

// CheckQueue verifies the queue answers a health query.
func CheckQueue(ctx context.Context, backend queue.Backend) Result {
	const name = "Job queue"

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	health, err := backend.Health(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %s)", health.Backend, summarizeRemoteError(err))}
	}
	return Result{
		Name:   name,
		Passed: true,
		Detail: fmt.Sprintf("%s (%d pending, %d leased, %d failed)", health.Backend, health.Pending, health.Leased, health.Failed),
	}
}

// CheckIndex verifies the index file is absent or loads with the configured dimension.
func CheckIndex(path string, dimension int) Result {
	const name = "Vector index"

	index, err := vectorstore.Load(path, dimension)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	if index.Len() == 0 {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (empty)", path)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d vectors)", path, index.Len())}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates the external binaries the pipeline shells out to.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.Clip.FFmpegBinary,
			Description: "Required for clip extraction",
			VersionArgs: []string{"-version"},
		},
		{
			Name:        "yt-dlp",
			Command:     cfg.Resolver.Binary,
			Description: "Required for media resolution",
			VersionArgs: []string{"--version"},
		},
	}
	return deps.CheckBinaries(ctx, requirements)
}

func binaryResult(status deps.Status) Result {
	result := Result{Name: status.Name, Passed: status.Available || status.Optional}
	switch {
	case !status.Available:
		result.Detail = status.Detail
	case status.Version != "":
		result.Detail = fmt.Sprintf("%s (%s)", status.Path, status.Version)
	default:
		result.Detail = status.Path
	}
	return result
}

// summarizeRemoteError produces a human-readable summary for health check failures.
func summarizeRemoteError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (service unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (service unreachable)"
	}
	return err.Error()
}
