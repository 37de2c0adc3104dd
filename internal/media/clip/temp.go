package clip

import (
	"errors"
	"fmt"
	"os"
	"sync"
)

// Temp is a scratch file that is removed exactly once.
type Temp struct {
	path string
	once sync.Once
	err  error
}

// TempFile creates a uniquely named empty file in dir (os.TempDir when blank).
func TempFile(dir, pattern string) (*Temp, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create temp dir: %w", err)
		}
	}
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("close temp file: %w", err)
	}
	return &Temp{path: path}, nil
}

// Path returns the file location.
func (t *Temp) Path() string {
	if t == nil {
		return ""
	}
	return t.path
}

// Remove deletes the file. Repeated calls return the first result.
func (t *Temp) Remove() error {
	if t == nil {
		return nil
	}
	t.once.Do(func() {
		if err := os.Remove(t.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			t.err = err
		}
	})
	return t.err
}
