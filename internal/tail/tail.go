// Package tail reads newly appended content from the files the source
// registry marks active and turns it into per-session events. All tailers
// share one protocol: stat, seek to the cursor, read lines to the end
// (including a trailing line without a newline), and commit the cursor to the size observed at entry only when the
// read finished cleanly. A shrunken file means truncation or rotation and
// resets the cursor to zero; the tracker's dedupe hash absorbs any replay.
package tail

import (
	"bufio"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dunova/silent-context-foundry/internal/source"
)

// Event is one sanitized message attributed to a session.
type Event struct {
	SessionID string
	Source    string
	Text      string
	Time      time.Time
}

// Tailer is one polling strategy over a family of files. Poll returns the
// new events plus the number of per-file failures it logged. Implementations
// are called only from the daemon loop and need no locking.
type Tailer interface {
	Name() string
	Poll(now time.Time) (events []Event, errs int)
}

// tailLines returns the new lines of path past the cursor at key, including
// a trailing line that has no newline yet, committing the cursor on success. The three return states:
//   - (lines, true, nil): read completed, cursor advanced to the entry size
//   - (nil, false, nil): nothing new (or the file cannot be stat'ed)
//   - (nil, false, err): the read failed; cursor unchanged for retry
func tailLines(path, key string, cur *source.Cursors) ([]string, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, false, nil
	}
	size := info.Size()

	last := cur.Get(key, size)
	if size < last {
		// Truncated or rotated: re-read from the start.
		last = 0
	}
	if size <= last {
		cur.Commit(key, size)
		return nil, false, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	if _, err := f.Seek(last, io.SeekStart); err != nil {
		return nil, false, err
	}

	var lines []string
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			lines = append(lines, strings.TrimRight(line, "\n"))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
	}

	cur.Commit(key, size)
	return lines, true, nil
}
