// Package sqliteutil holds the connection and retry conventions shared by the
// SQLite-backed queue and mapping stores.
package sqliteutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	busyCode       = 5
	constraintCode = 19

	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// TimeLayout is fixed width so stored timestamps sort lexically.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

var pragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
}

// Open creates the parent directory and opens path with WAL, a busy timeout,
// and NORMAL sync applied to every pooled connection.
func Open(path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure database directory: %w", err)
	}
	query := url.Values{}
	for _, pragma := range pragmas {
		query.Add("_pragma", pragma)
	}
	return sql.Open("sqlite", "file:"+path+"?"+query.Encode())
}

func hasCode(err error, code int) bool {
	var coder interface{ Code() int }
	return errors.As(err, &coder) && coder.Code()&0xff == code
}

// IsBusy reports whether err is SQLITE_BUSY or one of its extended codes.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	if hasCode(err, busyCode) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// IsConstraint reports whether err is a UNIQUE/PRIMARY KEY style violation.
func IsConstraint(err error) bool {
	if err == nil {
		return false
	}
	return hasCode(err, constraintCode) || strings.Contains(err.Error(), "constraint failed")
}

// RetryOnBusy runs op until it succeeds, fails with a non-busy error, or the
// attempts run out, backing off exponentially between tries.
func RetryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !IsBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// FormatTime renders value in UTC using TimeLayout.
func FormatTime(value time.Time) string {
	return value.UTC().Format(TimeLayout)
}

// ParseTime accepts TimeLayout, RFC3339, and SQLite's CURRENT_TIMESTAMP form.
func ParseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

// Placeholders returns count comma-separated '?' markers.
func Placeholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}
