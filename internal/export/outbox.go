package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dunova/silent-context-foundry/internal/logging"
)

// retryBatchSize caps how many outbox entries one drain attempt processes.
const retryBatchSize = 8

// RetryPending re-POSTs queued artifacts oldest-first, deleting each on
// success and stopping the batch at the first failure so a down index is
// not hammered.
func (e *Exporter) RetryPending(now time.Time) {
	files := e.pendingFiles()
	if len(files) == 0 {
		return
	}
	e.lastRetry = now

	if len(files) > retryBatchSize {
		files = files[:retryBatchSize]
	}

	for _, pf := range files {
		stem := strings.TrimSuffix(filepath.Base(pf), ".md")
		payload := resourcePayload{
			Path:        pf,
			Target:      resourceTarget,
			Reason:      "Retry pending sync",
			Instruction: fmt.Sprintf("Index pending conversation: %s", stem),
		}
		status, err := e.post(payload, e.pendingTimeout)
		if err != nil || status >= 300 {
			break
		}
		os.Remove(pf)
		logging.Infof("Retried pending OK: %s", filepath.Base(pf))
	}
}

// MaybeRetryPending runs a drain when the outbox is non-empty and the
// retry interval has elapsed.
func (e *Exporter) MaybeRetryPending(now time.Time) {
	if !e.HasPending() {
		return
	}
	if now.Sub(e.lastRetry) < e.retryInterval {
		return
	}
	e.RetryPending(now)
}

// HasPending reports whether any artifact awaits remote acknowledgement.
func (e *Exporter) HasPending() bool {
	matches, err := filepath.Glob(filepath.Join(e.pendingDir, "*.md"))
	return err == nil && len(matches) > 0
}

// PendingCount is the current outbox size, for the heartbeat.
func (e *Exporter) PendingCount() int {
	matches, err := filepath.Glob(filepath.Join(e.pendingDir, "*.md"))
	if err != nil {
		return 0
	}
	return len(matches)
}

// Exports is the lifetime count of successful remote syncs.
func (e *Exporter) Exports() int {
	return e.exportCount
}

// pendingFiles lists the outbox sorted by modification time ascending, so
// retries roughly preserve arrival order.
func (e *Exporter) pendingFiles() []string {
	matches, err := filepath.Glob(filepath.Join(e.pendingDir, "*.md"))
	if err != nil || len(matches) == 0 {
		return nil
	}

	type entry struct {
		path  string
		mtime time.Time
	}
	entries := make([]entry, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		entries = append(entries, entry{path: m, mtime: info.ModTime()})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].mtime.Before(entries[j].mtime)
	})

	paths := make([]string, len(entries))
	for i, en := range entries {
		paths[i] = en.path
	}
	return paths
}
