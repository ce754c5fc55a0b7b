package tail

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dunova/silent-context-foundry/internal/logging"
	"github.com/dunova/silent-context-foundry/internal/sanitize"
)

// walkthroughReadCap bounds how much of a walkthrough file is exported.
const walkthroughReadCap = 50_000

// SourceAntigravity is the source name walkthrough documents export under.
const SourceAntigravity = "antigravity"

// Doc is a walkthrough ready for direct export. Walkthroughs are already
// session-shaped, so they bypass the tracker entirely.
type Doc struct {
	SessionID string
	Content   string
}

type walkState struct {
	path  string
	mtime time.Time
}

// Walkthrough watches UUID-named session directories for updates to their
// walkthrough.md. The first sighting of a directory only records a
// baseline mtime; emitting on first sight would replay every historical
// walkthrough after a daemon restart.
type Walkthrough struct {
	root string
	seen map[string]walkState
}

func NewWalkthrough(root string) *Walkthrough {
	return &Walkthrough{root: root, seen: make(map[string]walkState)}
}

func (t *Walkthrough) Name() string { return SourceAntigravity }

func (t *Walkthrough) Poll(now time.Time) ([]Doc, int) {
	if info, err := os.Stat(t.root); err != nil || !info.IsDir() {
		return nil, 0
	}

	dirs, err := filepath.Glob(filepath.Join(t.root, "*-*-*-*-*"))
	if err != nil {
		return nil, 0
	}

	var docs []Doc
	errs := 0

	for _, sdir := range dirs {
		sid := filepath.Base(sdir)
		wt := filepath.Join(sdir, "walkthrough.md")

		info, err := os.Stat(wt)
		if err != nil {
			continue
		}
		mtime := info.ModTime()

		prev, known := t.seen[sid]
		if !known {
			t.seen[sid] = walkState{path: wt, mtime: mtime}
			continue
		}
		if !mtime.After(prev.mtime) {
			continue
		}

		content, err := readCapped(wt, walkthroughReadCap)
		if err != nil {
			errs++
			logging.Errorf("read walkthrough %s: %v", sid, err)
			continue
		}
		content = sanitize.Clean(content)
		if content == "" {
			continue
		}

		docs = append(docs, Doc{SessionID: sid, Content: content})
		t.seen[sid] = walkState{path: wt, mtime: mtime}
	}

	return docs, errs
}

func readCapped(path string, limit int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
