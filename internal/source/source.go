// Package source knows which log files exist on this machine and where the
// daemon last stopped reading each of them. A logical source has an ordered
// list of candidate paths; the first existing candidate is "active".
package source

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dunova/silent-context-foundry/internal/logging"
)

// Kind distinguishes the tailing protocol a cursor key belongs to.
type Kind string

const (
	KindJSONL       Kind = "jsonl"
	KindShell       Kind = "shell"
	KindCodex       Kind = "codex_session"
	KindWalkthrough Kind = "walkthrough"
)

// refreshInterval is the minimum gap between registry refreshes.
const refreshInterval = 120 * time.Second

// Candidate is one possible on-disk location for a logical source. The key
// lists drive duck-typed extraction from JSONL records; shell candidates
// leave them empty.
type Candidate struct {
	Path     string
	SIDKeys  []string
	TextKeys []string
}

// Descriptor is a logical source with its ordered candidate locations.
type Descriptor struct {
	Name       string
	Candidates []Candidate
}

// JSONLSources returns the assistant history sources rooted at home.
func JSONLSources(home string) []Descriptor {
	idKeys := []string{"session_id", "sessionId", "id"}
	promptKeys := []string{"input", "prompt", "text"}

	return []Descriptor{
		{
			Name: "claude_code",
			Candidates: []Candidate{{
				Path:     filepath.Join(home, ".claude", "history.jsonl"),
				SIDKeys:  []string{"sessionId", "session_id"},
				TextKeys: []string{"display", "text", "input", "prompt"},
			}},
		},
		{
			Name: "codex_history",
			Candidates: []Candidate{{
				Path:     filepath.Join(home, ".codex", "history.jsonl"),
				SIDKeys:  idKeys,
				TextKeys: []string{"text", "input", "prompt"},
			}},
		},
		{
			Name: "opencode",
			Candidates: []Candidate{
				{Path: filepath.Join(home, ".local", "state", "opencode", "prompt-history.jsonl"), SIDKeys: idKeys, TextKeys: promptKeys},
				{Path: filepath.Join(home, ".config", "opencode", "prompt-history.jsonl"), SIDKeys: idKeys, TextKeys: promptKeys},
				{Path: filepath.Join(home, ".opencode", "prompt-history.jsonl"), SIDKeys: idKeys, TextKeys: promptKeys},
			},
		},
		{
			Name: "kilo",
			Candidates: []Candidate{
				{Path: filepath.Join(home, ".local", "state", "kilo", "prompt-history.jsonl"), SIDKeys: idKeys, TextKeys: promptKeys},
				{Path: filepath.Join(home, ".config", "kilo", "prompt-history.jsonl"), SIDKeys: idKeys, TextKeys: promptKeys},
			},
		},
	}
}

// ShellSources returns the shell history sources rooted at home.
func ShellSources(home string) []Descriptor {
	return []Descriptor{
		{Name: "shell_zsh", Candidates: []Candidate{{Path: filepath.Join(home, ".zsh_history")}}},
		{Name: "shell_bash", Candidates: []Candidate{{Path: filepath.Join(home, ".bash_history")}}},
	}
}

// CursorKey builds the cursor-table key for a file. Hashing the path keeps
// keys bounded and collision-scoped to (kind, source).
func CursorKey(kind Kind, source, path string) string {
	sum := md5.Sum([]byte(path))
	return fmt.Sprintf("%s:%s:%s", kind, source, hex.EncodeToString(sum[:])[:10])
}

// Registry resolves which candidate path is active for every logical
// source. Refresh is rate-limited; all methods are poll-loop-only.
type Registry struct {
	jsonl        []Descriptor
	shell        []Descriptor
	shellEnabled bool

	activeJSONL map[string]Candidate
	activeShell map[string]string
	lastRefresh time.Time
}

func NewRegistry(jsonl, shell []Descriptor, shellEnabled bool) *Registry {
	return &Registry{
		jsonl:        jsonl,
		shell:        shell,
		shellEnabled: shellEnabled,
		activeJSONL:  make(map[string]Candidate),
		activeShell:  make(map[string]string),
	}
}

// Refresh re-resolves active candidates. On activation or rebinding to a
// different path the cursor is seeded to the file's current size so that
// pre-existing content is never replayed. Cursors of vanished sources are
// kept so a reappearance before eviction resumes where it left off.
func (r *Registry) Refresh(cur *Cursors, now time.Time, force bool) {
	if !force && now.Sub(r.lastRefresh) < refreshInterval {
		return
	}
	r.lastRefresh = now

	for _, desc := range r.jsonl {
		picked, ok := firstExisting(desc.Candidates)
		prev, had := r.activeJSONL[desc.Name]
		switch {
		case ok:
			r.activeJSONL[desc.Name] = picked
			if !had || prev.Path != picked.Path {
				cur.Seed(CursorKey(KindJSONL, desc.Name, picked.Path), fileSize(picked.Path))
				logging.Infof("Source active: %s -> %s", desc.Name, picked.Path)
			}
		case had:
			logging.Infof("Source offline: %s", desc.Name)
			delete(r.activeJSONL, desc.Name)
		}
	}

	if !r.shellEnabled {
		return
	}
	for _, desc := range r.shell {
		picked, ok := firstExisting(desc.Candidates)
		prev, had := r.activeShell[desc.Name]
		switch {
		case ok:
			r.activeShell[desc.Name] = picked.Path
			if !had || prev != picked.Path {
				cur.Seed(CursorKey(KindShell, desc.Name, picked.Path), fileSize(picked.Path))
				logging.Infof("Source active: %s -> %s", desc.Name, picked.Path)
			}
		case had:
			logging.Infof("Source offline: %s", desc.Name)
			delete(r.activeShell, desc.Name)
		}
	}
}

// ActiveJSONL returns the active candidate per JSONL source name.
func (r *Registry) ActiveJSONL() map[string]Candidate {
	return r.activeJSONL
}

// ActiveShell returns the active history path per shell source name.
func (r *Registry) ActiveShell() map[string]string {
	return r.activeShell
}

// ActiveNames lists all active source names, sorted, for the heartbeat.
func (r *Registry) ActiveNames() []string {
	names := make([]string, 0, len(r.activeJSONL)+len(r.activeShell))
	for name := range r.activeJSONL {
		names = append(names, name)
	}
	for name := range r.activeShell {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ActivePaths lists the files currently being tailed.
func (r *Registry) ActivePaths() []string {
	paths := make([]string, 0, len(r.activeJSONL)+len(r.activeShell))
	for _, c := range r.activeJSONL {
		paths = append(paths, c.Path)
	}
	for _, p := range r.activeShell {
		paths = append(paths, p)
	}
	return paths
}

func firstExisting(candidates []Candidate) (Candidate, bool) {
	for _, c := range candidates {
		if _, err := os.Stat(c.Path); err == nil {
			return c, true
		}
	}
	return Candidate{}, false
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
