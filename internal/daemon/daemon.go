// Package daemon owns the run loop: refresh sources, tail them, sweep idle
// sessions into exports, drain the outbox, heartbeat, sleep. All shared
// state is mutated on this loop only; auxiliary goroutines (status server,
// wake watcher) see immutable snapshots or a wake channel.
package daemon

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dunova/silent-context-foundry/internal/config"
	"github.com/dunova/silent-context-foundry/internal/export"
	"github.com/dunova/silent-context-foundry/internal/logging"
	"github.com/dunova/silent-context-foundry/internal/source"
	"github.com/dunova/silent-context-foundry/internal/statusz"
	"github.com/dunova/silent-context-foundry/internal/tail"
	"github.com/dunova/silent-context-foundry/internal/track"
	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/process"
)

// cursorCleanupEvery is the pass count between cursor-table cap checks.
const cursorCleanupEvery = 60

type Daemon struct {
	cfg   *config.Config
	runID string

	reg      *source.Registry
	cursors  *source.Cursors
	tracker  *track.Tracker
	exporter *export.Exporter

	tailers []tail.Tailer
	walk    *tail.Walkthrough

	status  *statusz.Server
	watcher *wakeWatcher
	wake    chan struct{}

	errorCount    int
	lastHeartbeat time.Time
	cycle         int
}

// New wires a daemon against the real home-directory source tables.
func New(cfg *config.Config) (*Daemon, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return newDaemon(cfg, source.JSONLSources(home), source.ShellSources(home))
}

func newDaemon(cfg *config.Config, jsonl, shell []source.Descriptor) (*Daemon, error) {
	exporter, err := export.New(
		cfg.URL,
		cfg.HistoryDir(),
		cfg.PendingDir(),
		cfg.ExportHTTPTimeout,
		cfg.PendingHTTPTimeout,
		cfg.PendingRetryInterval,
	)
	if err != nil {
		return nil, err
	}

	cursors := source.NewCursors()
	reg := source.NewRegistry(jsonl, shell, cfg.EnableShellMonitor)

	d := &Daemon{
		cfg:      cfg,
		runID:    uuid.NewString(),
		reg:      reg,
		cursors:  cursors,
		tracker:  track.New(cfg.MaxTrackedSessions, cfg.MaxMessagesPerSession, cfg.IdleTimeout, cfg.SessionTTL),
		exporter: exporter,
		tailers: []tail.Tailer{
			tail.NewJSONL(reg, cursors),
			tail.NewShell(reg, cursors),
			tail.NewCodex(cfg.CodexSessionsDir, cursors),
		},
		walk:          tail.NewWalkthrough(cfg.AntigravityBrainDir),
		wake:          make(chan struct{}, 1),
		lastHeartbeat: time.Now(),
	}

	d.reg.Refresh(d.cursors, time.Now(), true)

	if cfg.StatusPort > 0 {
		d.status = statusz.NewServer()
		if err := d.status.Start(cfg.StatusPort); err != nil {
			logging.Warnf("status endpoint disabled: %v", err)
			d.status = nil
		}
	}

	if !cfg.DisableWatcher {
		dirs := watchDirs(jsonl, shell, cfg)
		w, err := startWakeWatcher(dirs, d.wake)
		if err != nil {
			logging.Warnf("wake watcher disabled: %v", err)
		} else {
			d.watcher = w
		}
	}

	return d, nil
}

// Run executes passes until ctx is cancelled. The in-flight pass always
// completes; cancellation is only observed at the loop head and during
// sleep.
func (d *Daemon) Run(ctx context.Context) {
	d.banner()

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			d.finish()
			return
		default:
		}

		d.pass(time.Now())

		timer.Reset(d.nextSleep(time.Now()))
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			d.finish()
			return
		case <-d.wake:
			if !timer.Stop() {
				<-timer.C
			}
		case <-timer.C:
		}
	}
}

// pass runs one full cycle over every component.
func (d *Daemon) pass(now time.Time) {
	d.reg.Refresh(d.cursors, now, false)

	for _, t := range d.tailers {
		events, errs := t.Poll(now)
		d.errorCount += errs
		for _, ev := range events {
			d.tracker.Upsert(ev.SessionID, ev.Source, ev.Text, now)
		}
	}

	docs, errs := d.walk.Poll(now)
	d.errorCount += errs
	for _, doc := range docs {
		d.exporter.Export(tail.SourceAntigravity, doc.SessionID, []string{doc.Content}, "Antigravity Walkthrough")
	}

	d.tracker.SweepIdle(now, func(s *track.Session) bool {
		return d.exporter.Export(s.Source, s.SID, s.Messages, "")
	})

	d.exporter.MaybeRetryPending(now)
	d.heartbeat(now)

	d.cycle++
	if d.cycle%cursorCleanupEvery == 0 {
		d.cursors.Cleanup(d.cfg.MaxFileCursors)
		d.exporter.MaybeRetryPending(now)
	}
}

func (d *Daemon) nextSleep(now time.Time) time.Duration {
	remaining, hasCandidate := d.tracker.MinIdleRemaining(now)

	in := SleepInputs{
		Poll:             d.cfg.PollInterval,
		FastPoll:         d.cfg.FastPollInterval,
		HasPending:       d.exporter.HasPending(),
		MinIdleRemaining: remaining,
		HasIdleCandidate: hasCandidate,
	}
	if last := d.tracker.LastActivity(); !last.IsZero() {
		in.SinceActivity = now.Sub(last)
		in.HasActivity = true
	}
	return NextSleep(in)
}

func (d *Daemon) heartbeat(now time.Time) {
	if now.Sub(d.lastHeartbeat) < d.cfg.HeartbeatInterval {
		return
	}
	d.lastHeartbeat = now

	snap := d.snapshot(now)
	logging.Infof("♥ sessions=%d cursors=%d exported=%d errors=%d pending=%d mem=%.1fMB active_sources=%s",
		snap.Sessions, snap.Cursors, snap.Exports, snap.Errors, snap.Pending, snap.MemMB,
		sourceList(snap.ActiveSources))

	if d.status != nil {
		d.status.Publish(snap)
	}
}

func (d *Daemon) snapshot(now time.Time) statusz.Snapshot {
	return statusz.Snapshot{
		RunID:         d.runID,
		Time:          now,
		Sessions:      d.tracker.Len(),
		Cursors:       d.cursors.Len(),
		Exports:       d.exporter.Exports(),
		Errors:        d.errorCount,
		Pending:       d.exporter.PendingCount(),
		MemMB:         residentMemoryMB(),
		ActiveSources: d.reg.ActiveNames(),
	}
}

func (d *Daemon) banner() {
	logging.Infof("Starting silent-context-foundry sync daemon (run %s)", d.runID)
	logging.Infof("Index URL: %s", d.cfg.URL)
	logging.Infof("Storage root: %s", d.cfg.StorageRoot)
	logging.Infof("Codex sessions path: %s", d.cfg.CodexSessionsDir)
	logging.Infof("Antigravity brain path: %s", d.cfg.AntigravityBrainDir)
	logging.Infof("Idle=%s Poll=%s FastPoll=%s PendingRetry=%s Heartbeat=%s ShellMonitor=%s",
		d.cfg.IdleTimeout, d.cfg.PollInterval, d.cfg.FastPollInterval,
		d.cfg.PendingRetryInterval, d.cfg.HeartbeatInterval,
		onOff(d.cfg.EnableShellMonitor))
}

func (d *Daemon) finish() {
	if d.watcher != nil {
		d.watcher.Close()
	}
	if d.status != nil {
		d.status.Close()
	}
	logging.Infof("Daemon shutdown complete. Exported %d sessions total.", d.exporter.Exports())
}

// watchDirs collects every directory worth watching for wake events: the
// parents of all candidate files plus the two tree roots.
func watchDirs(jsonl, shell []source.Descriptor, cfg *config.Config) []string {
	seen := make(map[string]bool)
	var dirs []string
	add := func(dir string) {
		if dir == "" || seen[dir] {
			return
		}
		seen[dir] = true
		dirs = append(dirs, dir)
	}

	for _, desc := range append(append([]source.Descriptor{}, jsonl...), shell...) {
		for _, c := range desc.Candidates {
			add(filepath.Dir(c.Path))
		}
	}
	add(cfg.CodexSessionsDir)
	add(cfg.AntigravityBrainDir)
	return dirs
}

func residentMemoryMB() float64 {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return -1
	}
	mi, err := proc.MemoryInfo()
	if err != nil || mi == nil {
		return -1
	}
	return float64(mi.RSS) / (1024 * 1024)
}

func sourceList(names []string) string {
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
