package sqliteutil_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/aprskalo1/UMS/internal/sqliteutil"
)

type codedErr int

func (e codedErr) Error() string { return "sqlite error" }
func (e codedErr) Code() int     { return int(e) }

func TestOpenAppliesPragmas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "test.db")
	db, err := sqliteutil.Open(path)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer db.Close()

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("query journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Fatalf("expected wal journal mode, got %q", mode)
	}
	var timeout int
	if err := db.QueryRow("PRAGMA busy_timeout").Scan(&timeout); err != nil {
		t.Fatalf("query busy_timeout: %v", err)
	}
	if timeout != 5000 {
		t.Fatalf("expected busy_timeout 5000, got %d", timeout)
	}
}

func TestErrorClassification(t *testing.T) {
	// SQLITE_BUSY_SNAPSHOT is 5 | 2<<8.
	if !sqliteutil.IsBusy(codedErr(517)) {
		t.Fatal("expected extended busy code to be busy")
	}
	if sqliteutil.IsBusy(codedErr(19)) || sqliteutil.IsBusy(nil) {
		t.Fatal("unexpected busy classification")
	}
	// SQLITE_CONSTRAINT_UNIQUE is 19 | 8<<8.
	if !sqliteutil.IsConstraint(codedErr(2067)) {
		t.Fatal("expected unique violation to be a constraint error")
	}
}

func TestRetryOnBusyRetriesThenGivesUp(t *testing.T) {
	calls := 0
	err := sqliteutil.RetryOnBusy(context.Background(), func() error {
		calls++
		if calls < 3 {
			return codedErr(5)
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("expected success on third call, got err=%v calls=%d", err, calls)
	}

	calls = 0
	permanent := errors.New("no such table")
	if err := sqliteutil.RetryOnBusy(context.Background(), func() error {
		calls++
		return permanent
	}); !errors.Is(err, permanent) || calls != 1 {
		t.Fatalf("expected single attempt for non-busy error, got err=%v calls=%d", err, calls)
	}
}

func TestTimeLayoutSortsLexically(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	earlier := sqliteutil.FormatTime(base)
	later := sqliteutil.FormatTime(base.Add(500 * time.Millisecond))
	if !(earlier < later) {
		t.Fatalf("expected %q < %q", earlier, later)
	}
	parsed, err := sqliteutil.ParseTime(later)
	if err != nil || !parsed.Equal(base.Add(500*time.Millisecond)) {
		t.Fatalf("round trip failed: %v %v", parsed, err)
	}
	if sqliteutil.Placeholders(3) != "?,?,?" {
		t.Fatalf("unexpected placeholders %q", sqliteutil.Placeholders(3))
	}
}
