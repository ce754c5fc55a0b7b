// Package export turns a finished session into a durable local artifact
// and pushes it to the remote index. The local file always comes first: a
// remote outage costs an extra copy in the pending outbox, never data.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dunova/silent-context-foundry/internal/logging"
	"github.com/dunova/silent-context-foundry/internal/sanitize"
)

const (
	// artifactMessageCap is how many trailing messages an artifact keeps.
	artifactMessageCap = 60

	// artifactMessageLen caps each bulleted message, in runes.
	artifactMessageLen = 2000

	resourceTarget = "viking://resources/shared/history"
)

// resourcePayload is the POST body for the remote /resources endpoint.
type resourcePayload struct {
	Path        string `json:"path"`
	Target      string `json:"target"`
	Reason      string `json:"reason"`
	Instruction string `json:"instruction"`
}

type Exporter struct {
	baseURL    string
	historyDir string
	pendingDir string

	client         *http.Client
	exportTimeout  time.Duration
	pendingTimeout time.Duration
	retryInterval  time.Duration

	exportCount int
	lastRetry   time.Time
}

// New creates an Exporter rooted at historyDir, with the outbox at
// pendingDir. Both directories are created owner-only. A nil-safe HTTP
// client is always configured; there is no "HTTP unavailable" mode.
func New(baseURL, historyDir, pendingDir string, exportTimeout, pendingTimeout, retryInterval time.Duration) (*Exporter, error) {
	for _, dir := range []string{historyDir, pendingDir} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	// Proxy settings from the environment must not reroute loopback
	// traffic, so the transport ignores them entirely.
	client := &http.Client{
		Transport: &http.Transport{Proxy: nil},
	}

	return &Exporter{
		baseURL:        strings.TrimRight(baseURL, "/"),
		historyDir:     historyDir,
		pendingDir:     pendingDir,
		client:         client,
		exportTimeout:  exportTimeout,
		pendingTimeout: pendingTimeout,
		retryInterval:  retryInterval,
	}, nil
}

// Export writes the session artifact locally and attempts the remote POST.
// Returns false when nothing durable was produced (local write failed) or
// the artifact ended up queued in the outbox instead of indexed.
func (e *Exporter) Export(sourceName, sid string, messages []string, titlePrefix string) bool {
	prefix := titlePrefix
	if prefix == "" {
		prefix = fmt.Sprintf("Live %s Session", sourceName)
	}
	title := fmt.Sprintf("%s %s", prefix, sidPrefix(sid))

	formatted := composeArtifact(title, sourceName, messages, time.Now())
	name := fmt.Sprintf("%s_%s_%s.md", sourceName, time.Now().Format("20060102_150405"), sidPrefix(sid))
	path := filepath.Join(e.historyDir, name)

	if err := os.WriteFile(path, []byte(formatted), 0o600); err != nil {
		logging.Errorf("Failed to write local file %s: %v", path, err)
		return false
	}

	payload := resourcePayload{
		Path:        path,
		Target:      resourceTarget,
		Reason:      fmt.Sprintf("Real-time sync of %s session", sourceName),
		Instruction: fmt.Sprintf("Index real-time completed %s conversation: %s", sourceName, title),
	}
	status, err := e.post(payload, e.exportTimeout)
	if err == nil && status < 300 {
		e.exportCount++
		logging.Infof("Synced %s session %s to index.", sourceName, sidPrefix(sid))
		e.RetryPending(time.Now())
		return true
	}
	if err != nil {
		logging.Warnf("Index offline, queue pending: %v", err)
	} else {
		logging.Warnf("Index HTTP %d for %s %s", status, sourceName, sidPrefix(sid))
	}

	pendingPath := filepath.Join(e.pendingDir, name)
	if werr := os.WriteFile(pendingPath, []byte(formatted), 0o600); werr != nil {
		logging.Errorf("Failed pending write: %v", werr)
	} else {
		logging.Infof("Queued pending sync: %s", name)
	}
	return false
}

// composeArtifact renders the exported Markdown document.
func composeArtifact(title, sourceName string, messages []string, now time.Time) string {
	recent := messages
	if len(recent) > artifactMessageCap {
		recent = recent[len(recent)-artifactMessageCap:]
	}
	capped := make([]string, len(recent))
	for i, msg := range recent {
		capped[i] = sanitize.Truncate(msg, artifactMessageLen)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "Tags: %s, live_sync, unified_context\n", sourceName)
	fmt.Fprintf(&b, "Date: %s\n\n", now.Format(time.RFC3339))
	fmt.Fprintf(&b, "## Content\n- %s\n", strings.Join(capped, "\n- "))
	return b.String()
}

func (e *Exporter) post(payload resourcePayload, timeout time.Duration) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}

	client := *e.client
	client.Timeout = timeout

	resp, err := client.Post(e.baseURL+"/resources", "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func sidPrefix(sid string) string {
	if len(sid) > 12 {
		return sid[:12]
	}
	return sid
}
