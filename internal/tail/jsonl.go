package tail

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/dunova/silent-context-foundry/internal/logging"
	"github.com/dunova/silent-context-foundry/internal/sanitize"
	"github.com/dunova/silent-context-foundry/internal/source"
)

// JSONL tails the newline-delimited history files of the assistant CLIs.
// Record schemas vary per tool, so each line is decoded as an untyped map
// and the configured key lists are probed in order.
type JSONL struct {
	reg *source.Registry
	cur *source.Cursors
}

func NewJSONL(reg *source.Registry, cur *source.Cursors) *JSONL {
	return &JSONL{reg: reg, cur: cur}
}

func (t *JSONL) Name() string { return "jsonl" }

func (t *JSONL) Poll(now time.Time) ([]Event, int) {
	var events []Event
	errs := 0

	for name, cand := range t.reg.ActiveJSONL() {
		key := source.CursorKey(source.KindJSONL, name, cand.Path)
		lines, _, err := tailLines(cand.Path, key, t.cur)
		if err != nil {
			errs++
			logging.Errorf("tail jsonl %s: %v", name, err)
			continue
		}

		for _, line := range lines {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			var data map[string]any
			if json.Unmarshal([]byte(line), &data) != nil {
				continue
			}

			text := sanitize.Clean(extractText(data, cand.TextKeys))
			if text == "" {
				continue
			}

			events = append(events, Event{
				SessionID: extractSID(data, cand.SIDKeys, name),
				Source:    name,
				Text:      text,
				Time:      now,
			})
		}
	}
	return events, errs
}

// extractSID probes keys in order for a non-empty scalar and falls back to
// a per-source default bucket.
func extractSID(data map[string]any, keys []string, sourceName string) string {
	for _, key := range keys {
		switch v := data[key].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return sourceName + "_default"
}

// extractText probes keys in order for a non-empty string. Failing that, it
// joins the text-typed elements of a "parts" array, prefixed by a top-level
// "input" field when present.
func extractText(data map[string]any, keys []string) string {
	for _, key := range keys {
		if v, ok := data[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}

	parts, ok := data["parts"].([]any)
	if !ok {
		return ""
	}
	var texts []string
	for _, p := range parts {
		part, ok := p.(map[string]any)
		if !ok || part["type"] != "text" {
			continue
		}
		if ptext, ok := part["text"].(string); ok && strings.TrimSpace(ptext) != "" {
			texts = append(texts, strings.TrimSpace(ptext))
		}
	}
	if len(texts) == 0 {
		return ""
	}
	if prefix, ok := data["input"].(string); ok && strings.TrimSpace(prefix) != "" {
		return strings.TrimSpace(prefix) + "\n" + strings.Join(texts, "\n")
	}
	return strings.Join(texts, "\n")
}
