package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aprskalo1/UMS/internal/logs"
)

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "embedder.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func TestLastReturnsTrailingLines(t *testing.T) {
	path := writeLog(t, "a\nb\nc\n")

	chunk, err := logs.Last(path, 2, logs.Filter{})
	if err != nil {
		t.Fatalf("Last returned error: %v", err)
	}
	if len(chunk.Lines) != 2 || chunk.Lines[0] != "b" || chunk.Lines[1] != "c" {
		t.Fatalf("unexpected lines: %#v", chunk.Lines)
	}
	if chunk.Offset != 6 {
		t.Fatalf("expected offset at end of file, got %d", chunk.Offset)
	}
}

func TestLastFiltersByJob(t *testing.T) {
	path := writeLog(t, strings.Join([]string{
		"INFO job embedded job_id=aaa event_type=job_completed",
		"INFO job embedded job_id=bbb event_type=job_completed",
		"ERROR job failed job_id=aaa event_type=job_failed",
	}, "\n")+"\n")

	chunk, err := logs.Last(path, 10, logs.Filter{JobID: "aaa"})
	if err != nil {
		t.Fatalf("Last returned error: %v", err)
	}
	if len(chunk.Lines) != 2 {
		t.Fatalf("expected 2 lines for job aaa, got %#v", chunk.Lines)
	}

	chunk, err = logs.Last(path, 10, logs.Filter{JobID: "aaa", EventType: "job_failed"})
	if err != nil {
		t.Fatalf("Last returned error: %v", err)
	}
	if len(chunk.Lines) != 1 || !strings.HasPrefix(chunk.Lines[0], "ERROR") {
		t.Fatalf("unexpected filtered lines: %#v", chunk.Lines)
	}
}

func TestMissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.log")
	chunk, err := logs.Last(path, 5, logs.Filter{})
	if err != nil || len(chunk.Lines) != 0 || chunk.Offset != 0 {
		t.Fatalf("unexpected result: %+v err=%v", chunk, err)
	}
	chunk, err = logs.From(path, 10, logs.Filter{})
	if err != nil || len(chunk.Lines) != 0 {
		t.Fatalf("unexpected result: %+v err=%v", chunk, err)
	}
}

func TestFromHoldsBackPartialLine(t *testing.T) {
	path := writeLog(t, "one\ntw")
	chunk, err := logs.From(path, 0, logs.Filter{})
	if err != nil {
		t.Fatalf("From returned error: %v", err)
	}
	if len(chunk.Lines) != 1 || chunk.Lines[0] != "one" || chunk.Offset != 4 {
		t.Fatalf("unexpected chunk: %+v", chunk)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	_, _ = f.WriteString("o\n")
	_ = f.Close()

	chunk, err = logs.From(path, chunk.Offset, logs.Filter{})
	if err != nil {
		t.Fatalf("From returned error: %v", err)
	}
	if len(chunk.Lines) != 1 || chunk.Lines[0] != "two" {
		t.Fatalf("unexpected resumed lines: %#v", chunk.Lines)
	}
}

func TestFromRestartsAfterTruncate(t *testing.T) {
	path := writeLog(t, "fresh\n")
	chunk, err := logs.From(path, 4096, logs.Filter{})
	if err != nil {
		t.Fatalf("From returned error: %v", err)
	}
	if len(chunk.Lines) != 1 || chunk.Lines[0] != "fresh" {
		t.Fatalf("unexpected lines: %#v", chunk.Lines)
	}
}

func TestFollowEmitsAppendedLines(t *testing.T) {
	path := writeLog(t, "start\n")
	start, err := logs.Last(path, 1, logs.Filter{})
	if err != nil {
		t.Fatalf("Last returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	var (
		mu  sync.Mutex
		got []string
	)
	done := make(chan error, 1)
	go func() {
		done <- logs.Follow(ctx, path, start.Offset, 20*time.Millisecond, logs.Filter{}, func(line string) {
			mu.Lock()
			got = append(got, line)
			mu.Unlock()
			if line == "later" {
				cancel()
			}
		})
	}()

	time.Sleep(50 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	if _, err := f.WriteString("later\n"); err != nil {
		t.Fatalf("append log: %v", err)
	}
	_ = f.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Follow returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("follow did not return")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "later" {
		t.Fatalf("unexpected followed lines: %#v", got)
	}
}
