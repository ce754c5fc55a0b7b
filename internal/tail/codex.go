package tail

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dunova/silent-context-foundry/internal/logging"
	"github.com/dunova/silent-context-foundry/internal/sanitize"
	"github.com/dunova/silent-context-foundry/internal/source"
)

// codexDiscoverWindow bounds how stale a session file may be and still get
// tailed. Old rollouts are finished conversations; re-reading them every
// pass would only churn cursors.
const codexDiscoverWindow = time.Hour

// sourceCodexSession is the logical source name for tree-stored sessions.
const sourceCodexSession = "codex_session"

// Codex tails the per-session rollout files under the codex session tree.
// Unlike the flat history sources there is one file per session; the file
// basename is the session id.
type Codex struct {
	root string
	cur  *source.Cursors
}

func NewCodex(root string, cur *source.Cursors) *Codex {
	return &Codex{root: root, cur: cur}
}

func (t *Codex) Name() string { return sourceCodexSession }

// codexLine is the rollout envelope. Only response_item lines carry
// conversation content.
type codexLine struct {
	Type    string `json:"type"`
	Payload struct {
		Type    string `json:"type"`
		Text    string `json:"text"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"payload"`
}

func (t *Codex) Poll(now time.Time) ([]Event, int) {
	if info, err := os.Stat(t.root); err != nil || !info.IsDir() {
		return nil, 0
	}

	var events []Event
	errs := 0
	cutoff := now.Add(-codexDiscoverWindow)

	err := filepath.WalkDir(t.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable subtrees
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".jsonl") {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.ModTime().Before(cutoff) {
			return nil
		}

		key := source.CursorKey(source.KindCodex, sourceCodexSession, path)
		lines, _, terr := tailLines(path, key, t.cur)
		if terr != nil {
			errs++
			logging.Errorf("tail codex %s: %v", path, terr)
			return nil
		}

		sid := filepath.Base(path)
		for _, line := range lines {
			text := parseCodexLine(line)
			if text == "" {
				continue
			}
			events = append(events, Event{
				SessionID: sid,
				Source:    sourceCodexSession,
				Text:      text,
				Time:      now,
			})
		}
		return nil
	})
	if err != nil {
		errs++
		logging.Errorf("walk codex sessions: %v", err)
	}

	return events, errs
}

// parseCodexLine extracts sanitized text from one rollout line: joined
// output_text blocks for message payloads, the bare text field for
// reasoning payloads.
func parseCodexLine(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	var line codexLine
	if json.Unmarshal([]byte(raw), &line) != nil {
		return ""
	}
	if line.Type != "response_item" {
		return ""
	}

	var text string
	switch line.Payload.Type {
	case "message":
		var texts []string
		for _, c := range line.Payload.Content {
			if c.Type == "output_text" && c.Text != "" {
				texts = append(texts, c.Text)
			}
		}
		text = strings.Join(texts, "\n")
	case "reasoning":
		text = line.Payload.Text
	}

	return sanitize.Clean(text)
}
