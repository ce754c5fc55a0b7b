// Package logging writes the daemon's log to a size-rotated file and
// mirrors warnings and errors to stderr. The file is the steady-state
// channel; stderr only carries what an operator should notice.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	maxSizeMB  = 5
	maxBackups = 3
)

var (
	mu      sync.Mutex
	fileLog = log.New(io.Discard, "", log.LstdFlags)
	warnLog = log.New(os.Stderr, "", log.LstdFlags)
	rotator io.WriteCloser
)

// Setup directs the log to path with rotation. Before Setup (and in tests)
// Info lines are dropped and warnings go to stderr only.
func Setup(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating log dir: %w", err)
	}

	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
	}

	mu.Lock()
	defer mu.Unlock()
	rotator = lj
	fileLog = log.New(lj, "", log.LstdFlags)
	warnLog = log.New(io.MultiWriter(lj, os.Stderr), "", log.LstdFlags)
	return nil
}

// Close flushes and closes the rotating file, if any.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if rotator != nil {
		rotator.Close()
		rotator = nil
	}
}

func Infof(format string, args ...any) {
	mu.Lock()
	l := fileLog
	mu.Unlock()
	l.Printf("[INFO] "+format, args...)
}

func Warnf(format string, args ...any) {
	mu.Lock()
	l := warnLog
	mu.Unlock()
	l.Printf("[WARN] "+format, args...)
}

func Errorf(format string, args ...any) {
	mu.Lock()
	l := warnLog
	mu.Unlock()
	l.Printf("[ERROR] "+format, args...)
}
