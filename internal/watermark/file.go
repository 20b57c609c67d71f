package watermark

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

const lockRetryDelay = 50 * time.Millisecond

// FileStore keeps the watermark in a plain text file. Writers take an
// exclusive lock on a sibling .lock file and replace the content atomically.
type FileStore struct {
	path string
}

// NewFileStore returns a store writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the watermark file location.
func (s *FileStore) Path() string { return s.path }

// Save writes ts to the file.
func (s *FileStore) Save(ctx context.Context, ts time.Time) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0750); err != nil {
		return &PersistError{Location: s.path, Err: fmt.Errorf("failed to create directory: %w", err)}
	}

	lock := flock.New(s.path + ".lock")
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return &PersistError{Location: s.path, Err: fmt.Errorf("failed to acquire lock: %w", err)}
	}
	if !locked {
		return &PersistError{Location: s.path, Err: errors.New("lock not acquired")}
	}
	defer func() { _ = lock.Unlock() }()

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, []byte(Format(ts)+"\n"), 0600); err != nil {
		return &PersistError{Location: s.path, Err: fmt.Errorf("failed to write temporary file: %w", err)}
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		_ = os.Remove(tempPath)
		return &PersistError{Location: s.path, Err: fmt.Errorf("failed to rename file: %w", err)}
	}
	return nil
}

// Load reads the file. A missing file means no watermark.
func (s *FileStore) Load(_ context.Context) (time.Time, bool, error) {
	// #nosec G304 -- path comes from process configuration
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("failed to read watermark file: %w", err)
	}
	value := strings.TrimSpace(string(data))
	if value == "" {
		return time.Time{}, false, nil
	}
	ts, err := time.Parse(Layout, value)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to parse watermark %q: %w", value, err)
	}
	return ts, true, nil
}
