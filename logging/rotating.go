package logging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

const defaultMaxFileSize = 100 * 1024 * 1024

// RotatingLogger is an io.Writer that starts a new file every ISO week and
// whenever the current file would grow past maxFileSize. Files are named
// <prefix>-YYYY-Www.log, then <prefix>-YYYY-Www_NN.log once the size limit
// is hit within a week.
type RotatingLogger struct {
	dir         string
	prefix      string
	retention   time.Duration
	maxFileSize int64
	seqPattern  *regexp.Regexp

	mu   sync.Mutex
	file *os.File
	week string
	size int64

	now     func() time.Time
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewRotatingLogger returns a logger writing to dir. A non-positive
// maxFileSize disables size-based rotation.
func NewRotatingLogger(dir, prefix string, retentionWeeks int, maxFileSize int64) *RotatingLogger {
	return &RotatingLogger{
		dir:         dir,
		prefix:      prefix,
		retention:   time.Duration(retentionWeeks) * 7 * 24 * time.Hour,
		maxFileSize: maxFileSize,
		seqPattern:  regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `-\d{4}-W\d{2}_(\d{2})\.log$`),
		now:         time.Now,
	}
}

func weekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// Open creates the log directory, opens the file for the current week and
// starts the daily cleanup of expired files.
func (rl *RotatingLogger) Open() error {
	if err := os.MkdirAll(rl.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", rl.dir, err)
	}

	rl.mu.Lock()
	err := rl.rotate(weekKey(rl.now()), false)
	rl.mu.Unlock()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	rl.cancel = cancel
	rl.stopped = make(chan struct{})
	go rl.cleanupLoop(ctx)
	return nil
}

func (rl *RotatingLogger) cleanupLoop(ctx context.Context) {
	defer close(rl.stopped)
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := rl.Cleanup(); err != nil {
				fmt.Fprintf(os.Stderr, "log cleanup failed: %v\n", err)
			}
		}
	}
}

// Write implements io.Writer.
func (rl *RotatingLogger) Write(p []byte) (int, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	week := weekKey(rl.now())
	full := rl.maxFileSize > 0 && rl.size+int64(len(p)) > rl.maxFileSize && rl.size > 0

	if rl.file == nil || week != rl.week || full {
		if err := rl.rotate(week, full && week == rl.week); err != nil {
			return 0, err
		}
	}

	n, err := rl.file.Write(p)
	rl.size += int64(n)
	return n, err
}

// rotate switches to the file for week. Caller must hold rl.mu.
func (rl *RotatingLogger) rotate(week string, sizeExceeded bool) error {
	if rl.file != nil {
		_ = rl.file.Close()
		rl.file = nil
	}

	name := rl.pickFile(week, sizeExceeded)
	path := filepath.Join(rl.dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	rl.size = 0
	if info, err := f.Stat(); err == nil {
		rl.size = info.Size()
	}
	rl.file = f
	rl.week = week
	return nil
}

// pickFile returns the latest file of the week while it has room, otherwise
// the next numbered file.
func (rl *RotatingLogger) pickFile(week string, sizeExceeded bool) string {
	seq := rl.latestSequence(week)
	if sizeExceeded {
		return rl.sequenceName(week, seq+1)
	}

	name := fmt.Sprintf("%s-%s.log", rl.prefix, week)
	if seq > 0 {
		name = rl.sequenceName(week, seq)
	}
	if rl.hasRoom(name) {
		return name
	}
	return rl.sequenceName(week, seq+1)
}

func (rl *RotatingLogger) hasRoom(name string) bool {
	info, err := os.Stat(filepath.Join(rl.dir, name))
	return err != nil || rl.maxFileSize <= 0 || info.Size() < rl.maxFileSize
}

func (rl *RotatingLogger) sequenceName(week string, seq int) string {
	return fmt.Sprintf("%s-%s_%02d.log", rl.prefix, week, seq)
}

func (rl *RotatingLogger) latestSequence(week string) int {
	matches, _ := filepath.Glob(filepath.Join(rl.dir, fmt.Sprintf("%s-%s_??.log", rl.prefix, week)))
	highest := 0
	for _, m := range matches {
		sub := rl.seqPattern.FindStringSubmatch(filepath.Base(m))
		if len(sub) < 2 {
			continue
		}
		if n, _ := strconv.Atoi(sub[1]); n > highest {
			highest = n
		}
	}
	return highest
}

// Cleanup removes this logger's files last modified before the retention
// window and reports how many were deleted.
func (rl *RotatingLogger) Cleanup() (int, error) {
	entries, err := os.ReadDir(rl.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read log directory: %w", err)
	}

	cutoff := rl.now().Add(-rl.retention)
	deleted := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, rl.prefix+"-") || !strings.HasSuffix(name, ".log") {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(rl.dir, name)); err == nil {
			deleted++
		}
	}
	return deleted, nil
}

// Close stops the cleanup loop and closes the current file.
func (rl *RotatingLogger) Close() error {
	if rl.cancel != nil {
		rl.cancel()
		<-rl.stopped
		rl.cancel = nil
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.file == nil {
		return nil
	}
	err := rl.file.Close()
	rl.file = nil
	return err
}
