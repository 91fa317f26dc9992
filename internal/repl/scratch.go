package repl

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const scratchPrefix = "cell-"

// scratchFile carries one cell's code to engines that cannot take multi-line
// input on stdin. It lives for exactly one feed/read cycle.
type scratchFile struct {
	path string
}

// createScratch writes code to a fresh uniquely named file in dir.
func createScratch(dir string, seq int, ext, code string) (*scratchFile, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, fmt.Sprintf("%s%d-%s%s", scratchPrefix, seq, uuid.NewString(), ext))

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create scratch file: %w", err)
	}
	if _, err := f.WriteString(code); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("write scratch file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("flush scratch file: %w", err)
	}
	return &scratchFile{path: path}, nil
}

// Path returns the file path, or "" for a nil scratch file.
func (s *scratchFile) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// release removes the file. Failure is logged and otherwise ignored.
func (s *scratchFile) release(log *slog.Logger) {
	if s == nil {
		return
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("remove scratch file", "path", s.path, "error", err)
	}
}

// SweepScratch removes scratch files in dir last modified more than
// olderThan ago, left behind by a bridge that was killed mid-cell. It
// returns the number of files removed.
func SweepScratch(dir string, olderThan time.Duration) (int, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read scratch dir: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), scratchPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}
