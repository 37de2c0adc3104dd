package queue_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/aprskalo1/UMS/internal/queue"
	"github.com/aprskalo1/UMS/internal/services"
	"github.com/aprskalo1/UMS/internal/testsupport"
)

func TestEnqueueAndGet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)

	ctx := context.Background()
	job, err := store.Enqueue(ctx, queue.NewJob{SourceURL: " https://example.com/watch?v=a ", StartSeconds: 12, DurationSeconds: 30})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if job.ID == "" {
		t.Fatal("expected job ID to be assigned")
	}

	fetched, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched == nil || fetched.SourceURL != "https://example.com/watch?v=a" {
		t.Fatalf("unexpected fetched job: %#v", fetched)
	}
	if fetched.Status != queue.StatusPending || fetched.StartSeconds != 12 || fetched.DurationSeconds != 30 {
		t.Fatalf("unexpected job fields: %#v", fetched)
	}
	if fetched.LeasedAt != nil || fetched.ProcessedAt != nil {
		t.Fatalf("expected no lease timestamps on a pending job: %#v", fetched)
	}

	missing, err := store.Get(ctx, "does-not-exist")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing job, got %#v, %v", missing, err)
	}
}

func TestEnqueueValidates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)

	ctx := context.Background()
	if _, err := store.Enqueue(ctx, queue.NewJob{SourceURL: "  "}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty url, got %v", err)
	}
	if _, err := store.Enqueue(ctx, queue.NewJob{SourceURL: "https://x", StartSeconds: -1}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for negative offset, got %v", err)
	}
}

func TestFetchBatchLeasesOldestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)

	ctx := context.Background()
	third := testsupport.EnqueueJob(t, store, "https://example.com/3", 3*time.Minute)
	first := testsupport.EnqueueJob(t, store, "https://example.com/1", time.Minute)
	second := testsupport.EnqueueJob(t, store, "https://example.com/2", 2*time.Minute)

	jobs, err := store.FetchBatch(ctx, 2)
	if err != nil {
		t.Fatalf("FetchBatch failed: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].ID != first.ID || jobs[1].ID != second.ID {
		t.Fatalf("expected oldest first, got %s,%s", jobs[0].SourceURL, jobs[1].SourceURL)
	}
	for _, job := range jobs {
		if job.Status != queue.StatusLeased || job.LeasedAt == nil {
			t.Fatalf("expected leased job, got %#v", job)
		}
	}

	rest, err := store.FetchBatch(ctx, 2)
	if err != nil {
		t.Fatalf("FetchBatch failed: %v", err)
	}
	if len(rest) != 1 || rest[0].ID != third.ID {
		t.Fatalf("expected only the third job, got %#v", rest)
	}

	empty, err := store.FetchBatch(ctx, 2)
	if err != nil {
		t.Fatalf("FetchBatch on drained queue failed: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty batch, got %d", len(empty))
	}
}

func TestFetchBatchSkipsLeasedRows(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)

	ctx := context.Background()
	testsupport.EnqueueJob(t, store, "https://example.com/held", 0)
	pending := testsupport.EnqueueJob(t, store, "https://example.com/free", time.Minute)

	// Another worker holds the first job.
	held, err := store.FetchBatch(ctx, 1)
	if err != nil || len(held) != 1 {
		t.Fatalf("initial lease failed: %v (%d jobs)", err, len(held))
	}

	jobs, err := store.FetchBatch(ctx, 2)
	if err != nil {
		t.Fatalf("FetchBatch failed: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected exactly 1 job, got %d", len(jobs))
	}
	if jobs[0].ID != pending.ID {
		t.Fatalf("expected the pending job, got %s", jobs[0].ID)
	}
}

func TestConcurrentFetchBatchIsDisjoint(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := testsupport.MustOpenQueue(t, cfg)
	// A second handle on the same file stands in for another worker process.
	second := testsupport.MustOpenQueue(t, cfg)

	const total = 40
	for i := 0; i < total; i++ {
		testsupport.EnqueueJob(t, first, fmt.Sprintf("https://example.com/%d", i), time.Duration(i)*time.Second)
	}

	ctx := context.Background()
	var (
		mu   sync.Mutex
		seen = make(map[string]int)
		wg   sync.WaitGroup
		errs = make(chan error, 4)
	)
	for _, store := range []*queue.Store{first, second, first, second} {
		wg.Add(1)
		go func(store *queue.Store) {
			defer wg.Done()
			for {
				jobs, err := store.FetchBatch(ctx, 3)
				if err != nil {
					errs <- err
					return
				}
				if len(jobs) == 0 {
					return
				}
				mu.Lock()
				for _, job := range jobs {
					seen[job.ID]++
				}
				mu.Unlock()
			}
		}(store)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("FetchBatch failed: %v", err)
	}

	if len(seen) != total {
		t.Fatalf("expected %d distinct jobs leased, got %d", total, len(seen))
	}
	for id, count := range seen {
		if count != 1 {
			t.Fatalf("job %s leased %d times", id, count)
		}
	}
}

func TestReportSuccessAndFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)

	ctx := context.Background()
	ok := testsupport.EnqueueJob(t, store, "https://example.com/ok", 0)
	bad := testsupport.EnqueueJob(t, store, "https://example.com/bad", time.Second)
	if _, err := store.FetchBatch(ctx, 2); err != nil {
		t.Fatalf("FetchBatch failed: %v", err)
	}

	if err := store.ReportSuccess(ctx, ok.ID); err != nil {
		t.Fatalf("ReportSuccess failed: %v", err)
	}
	longMessage := strings.Repeat("é", queue.MaxErrorRunes+50)
	if err := store.ReportFailure(ctx, bad.ID, longMessage); err != nil {
		t.Fatalf("ReportFailure failed: %v", err)
	}

	done, err := store.Get(ctx, ok.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if done.Status != queue.StatusCompleted || done.ProcessedAt == nil {
		t.Fatalf("expected completed job with processed_at, got %#v", done)
	}

	failed, err := store.Get(ctx, bad.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if failed.Status != queue.StatusFailed {
		t.Fatalf("expected failed status, got %s", failed.Status)
	}
	if got := utf8.RuneCountInString(failed.ErrorMessage); got != queue.MaxErrorRunes {
		t.Fatalf("expected message truncated to %d runes, got %d", queue.MaxErrorRunes, got)
	}

	if err := store.ReportSuccess(ctx, "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for unknown job, got %v", err)
	}
}

func TestListSupportsStatusFilter(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)

	ctx := context.Background()
	a := testsupport.EnqueueJob(t, store, "https://example.com/a", 0)
	b := testsupport.EnqueueJob(t, store, "https://example.com/b", time.Second)
	c := testsupport.EnqueueJob(t, store, "https://example.com/c", 2*time.Second)
	if _, err := store.FetchBatch(ctx, 2); err != nil {
		t.Fatalf("FetchBatch failed: %v", err)
	}
	if err := store.ReportFailure(ctx, b.ID, "boom"); err != nil {
		t.Fatalf("ReportFailure failed: %v", err)
	}

	jobs, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}
	if jobs[0].ID != a.ID || jobs[1].ID != b.ID || jobs[2].ID != c.ID {
		t.Fatalf("expected order A,B,C, got %s,%s,%s", jobs[0].SourceURL, jobs[1].SourceURL, jobs[2].SourceURL)
	}

	filtered, err := store.List(ctx, queue.StatusFailed, queue.StatusPending)
	if err != nil {
		t.Fatalf("filtered List failed: %v", err)
	}
	if len(filtered) != 2 || filtered[0].ID != b.ID || filtered[1].ID != c.ID {
		t.Fatalf("unexpected filtered jobs: %#v", filtered)
	}
}

func TestRetryFailedAndResetLeased(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)

	ctx := context.Background()
	a := testsupport.EnqueueJob(t, store, "https://example.com/a", 0)
	b := testsupport.EnqueueJob(t, store, "https://example.com/b", time.Second)
	c := testsupport.EnqueueJob(t, store, "https://example.com/c", 2*time.Second)
	if _, err := store.FetchBatch(ctx, 3); err != nil {
		t.Fatalf("FetchBatch failed: %v", err)
	}
	for _, id := range []string{a.ID, b.ID} {
		if err := store.ReportFailure(ctx, id, "boom"); err != nil {
			t.Fatalf("ReportFailure failed: %v", err)
		}
	}

	retried, err := store.RetryFailed(ctx, a.ID)
	if err != nil {
		t.Fatalf("RetryFailed targeted: %v", err)
	}
	if retried != 1 {
		t.Fatalf("expected 1 job retried, got %d", retried)
	}
	job, err := store.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if job.Status != queue.StatusPending || job.ErrorMessage != "" {
		t.Fatalf("expected pending job with cleared error, got %#v", job)
	}

	retried, err = store.RetryFailed(ctx)
	if err != nil {
		t.Fatalf("RetryFailed all: %v", err)
	}
	if retried != 1 {
		t.Fatalf("expected remaining failed job retried, got %d", retried)
	}

	reset, err := store.ResetLeased(ctx)
	if err != nil {
		t.Fatalf("ResetLeased failed: %v", err)
	}
	if reset != 1 {
		t.Fatalf("expected 1 leased job reset, got %d", reset)
	}
	job, err = store.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if job.Status != queue.StatusPending || job.LeasedAt != nil {
		t.Fatalf("expected pending job without lease, got %#v", job)
	}
}

func TestStatsAndHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)

	ctx := context.Background()
	a := testsupport.EnqueueJob(t, store, "https://example.com/a", 0)
	testsupport.EnqueueJob(t, store, "https://example.com/b", time.Second)
	testsupport.EnqueueJob(t, store, "https://example.com/c", 2*time.Second)
	if _, err := store.FetchBatch(ctx, 2); err != nil {
		t.Fatalf("FetchBatch failed: %v", err)
	}
	if err := store.ReportSuccess(ctx, a.ID); err != nil {
		t.Fatalf("ReportSuccess failed: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats[queue.StatusCompleted] != 1 || stats[queue.StatusLeased] != 1 || stats[queue.StatusPending] != 1 {
		t.Fatalf("unexpected stats: %v", stats)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Backend != "sqlite" || health.Total != 3 || health.Leased != 1 || health.Completed != 1 {
		t.Fatalf("unexpected health: %#v", health)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)
	store.Close()

	db, err := sql.Open("sqlite", cfg.Queue.SQLitePath)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump schema version: %v", err)
	}
	db.Close()

	_, err = queue.OpenSQLite(context.Background(), cfg.Queue.SQLitePath)
	if !errors.Is(err, queue.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}

func TestParseStatus(t *testing.T) {
	if status, ok := queue.ParseStatus(" Leased "); !ok || status != queue.StatusLeased {
		t.Fatalf("expected leased, got %q %v", status, ok)
	}
	if _, ok := queue.ParseStatus("encoding"); ok {
		t.Fatal("expected unknown status to be rejected")
	}
}
