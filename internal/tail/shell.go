package tail

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dunova/silent-context-foundry/internal/logging"
	"github.com/dunova/silent-context-foundry/internal/sanitize"
	"github.com/dunova/silent-context-foundry/internal/source"
)

// shellLineRe matches zsh extended history: ": <unix-ts>:<elapsed>;<cmd>".
var shellLineRe = regexp.MustCompile(`^:\s*(\d+):\d+;(.*)$`)

// History/fc invocations are navigation, not work; they never enter a
// session.
var ignoreShellPrefixes = []string{"history", "fc "}

// Shell tails shell history files. Commands collapse into one session per
// source per calendar day, keyed <source>_<YYYYMMDD>.
type Shell struct {
	reg *source.Registry
	cur *source.Cursors
}

func NewShell(reg *source.Registry, cur *source.Cursors) *Shell {
	return &Shell{reg: reg, cur: cur}
}

func (t *Shell) Name() string { return "shell" }

func (t *Shell) Poll(now time.Time) ([]Event, int) {
	var events []Event
	errs := 0

	for name, path := range t.reg.ActiveShell() {
		key := source.CursorKey(source.KindShell, name, path)
		lines, _, err := tailLines(path, key, t.cur)
		if err != nil {
			errs++
			logging.Errorf("tail shell %s: %v", name, err)
			continue
		}

		for _, line := range lines {
			ev, ok := parseShellLine(name, line, now)
			if !ok {
				continue
			}
			events = append(events, ev)
		}
	}
	return events, errs
}

// parseShellLine turns one history line into an event. Lines without the
// extended-history prefix are taken verbatim with the current time.
func parseShellLine(sourceName, rawLine string, now time.Time) (Event, bool) {
	line := strings.TrimSpace(rawLine)
	if line == "" {
		return Event{}, false
	}

	ts := now
	cmd := line
	if m := shellLineRe.FindStringSubmatch(line); m != nil {
		if unix, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			ts = time.Unix(unix, 0)
		}
		cmd = strings.TrimSpace(m[2])
	}
	if cmd == "" {
		return Event{}, false
	}

	low := strings.ToLower(cmd)
	for _, prefix := range ignoreShellPrefixes {
		if strings.HasPrefix(low, prefix) {
			return Event{}, false
		}
	}

	cmd = sanitize.Clean(cmd)
	if cmd == "" {
		return Event{}, false
	}

	sid := fmt.Sprintf("%s_%s", sourceName, ts.Format("20060102"))
	return Event{SessionID: sid, Source: sourceName, Text: cmd, Time: ts}, true
}
