package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lestrrat-go/strftime"
)

// ArchiveWriter is an io.Writer that keeps one log file open per calendar
// day, naming each file from a strftime pattern and swapping files the
// first time a write crosses midnight UTC. This mirrors the teacher's
// log_init/log_write daily_names mode: the file name is derived from the
// current UTC time, the previous file is closed as soon as the name
// changes, and a new one is opened for append.
type ArchiveWriter struct {
	dir     string
	pattern *strftime.Strftime

	mu       sync.Mutex
	file     *os.File
	openName string
}

// DefaultArchivePattern names daily log files "2026-07-30.log", the same
// date-per-file granularity as the teacher's daily_names mode.
const DefaultArchivePattern = "%Y-%m-%d.log"

// NewArchiveWriter opens (lazily, on first Write) one file per day under
// dir, named per pattern (an strftime layout; DefaultArchivePattern if
// empty). dir must already exist or be creatable as a single directory
// level; NewArchiveWriter does not create parent directories.
func NewArchiveWriter(dir, pattern string) (*ArchiveWriter, error) {
	if pattern == "" {
		pattern = DefaultArchivePattern
	}
	f, err := strftime.New(pattern)
	if err != nil {
		return nil, fmt.Errorf("logging: invalid archive pattern %q: %w", pattern, err)
	}
	if stat, err := os.Stat(dir); err != nil {
		if mkErr := os.Mkdir(dir, 0o755); mkErr != nil {
			return nil, fmt.Errorf("logging: archive directory %q: %w", dir, mkErr)
		}
	} else if !stat.IsDir() {
		return nil, fmt.Errorf("logging: archive path %q is not a directory", dir)
	}
	return &ArchiveWriter{dir: dir, pattern: f}, nil
}

// Write implements io.Writer, rolling to a new day's file as needed.
func (a *ArchiveWriter) Write(p []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	name := a.pattern.FormatString(time.Now().UTC())
	if a.file != nil && name != a.openName {
		a.file.Close()
		a.file = nil
		a.openName = ""
	}
	if a.file == nil {
		full := filepath.Join(a.dir, name)
		f, err := os.OpenFile(full, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0o644)
		if err != nil {
			return 0, fmt.Errorf("logging: opening archive file %q: %w", full, err)
		}
		a.file = f
		a.openName = name
	}
	return a.file.Write(p)
}

// Close releases the currently open archive file, if any.
func (a *ArchiveWriter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	a.openName = ""
	return err
}
