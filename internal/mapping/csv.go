package mapping

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

var csvHeader = []string{"ordinal_id", "external_key", "timestamp"}

var (
	idColumns  = []string{"ordinal_id", "faiss_id"}
	keyColumns = []string{"external_key", "filename", "db_id"}
)

// CSVStore appends records to a flat file.
type CSVStore struct {
	path string
	mu   sync.Mutex
}

// NewCSV returns a CSV-backed store at path.
func NewCSV(path string) *CSVStore {
	return &CSVStore{path: path}
}

// Name identifies the backend.
func (s *CSVStore) Name() string { return "csv" }

// Path returns the backing file.
func (s *CSVStore) Path() string { return s.path }

// Initialize writes the header when the file is missing or empty.
func (s *CSVStore) Initialize(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if info, err := os.Stat(s.path); err == nil && info.Size() > 0 {
		return nil
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return writeErr("csv", "stat", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return writeErr("csv", "create directory", err)
	}
	return s.append(csvHeader)
}

// Add appends one row.
func (s *CSVStore) Add(_ context.Context, ordinalID int64, key string, at time.Time) error {
	if err := validate(ordinalID, key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row := []string{strconv.FormatInt(ordinalID, 10), key, stamp(at).Format(time.RFC3339Nano)}
	if err := s.append(row); err != nil {
		return writeErr("csv", "append", err)
	}
	return nil
}

func (s *CSVStore) append(row []string) error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(row); err != nil {
		_ = f.Close()
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Load reads every row; later rows for the same id win. A missing file is empty.
func (s *CSVStore) Load(context.Context) (map[int64]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[int64]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open mapping csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return map[int64]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read mapping csv header: %w", err)
	}
	idCol, keyCol := columnIndex(header, idColumns), columnIndex(header, keyColumns)
	if idCol < 0 || keyCol < 0 {
		return nil, fmt.Errorf("mapping csv %s: unrecognized header %v", s.path, header)
	}

	out := make(map[int64]string)
	for line := 2; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read mapping csv line %d: %w", line, err)
		}
		if len(row) <= idCol || len(row) <= keyCol {
			return nil, fmt.Errorf("mapping csv line %d: expected at least %d fields, got %d", line, max(idCol, keyCol)+1, len(row))
		}
		id, err := strconv.ParseInt(strings.TrimSpace(row[idCol]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("mapping csv line %d: ordinal id %q: %w", line, row[idCol], err)
		}
		out[id] = row[keyCol]
	}
	return out, nil
}

func columnIndex(header, names []string) int {
	for _, name := range names {
		for i, col := range header {
			if strings.EqualFold(strings.TrimSpace(col), name) {
				return i
			}
		}
	}
	return -1
}

// Close is a no-op; every Add closes its file handle.
func (s *CSVStore) Close() error { return nil }
