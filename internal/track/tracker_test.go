package track

import (
	"fmt"
	"testing"
	"time"
)

func newTestTracker(maxSessions int) *Tracker {
	return New(maxSessions, 500, 300*time.Second, 7200*time.Second)
}

func TestUpsertCreatesAndAppends(t *testing.T) {
	tr := newTestTracker(10)
	now := time.Now()

	tr.Upsert("s1", "claude_code", "hello", now)
	tr.Upsert("s1", "claude_code", "world", now.Add(time.Second))

	if tr.Len() != 1 {
		t.Fatalf("Len = %d, want 1", tr.Len())
	}
	sess := tr.sessions["claude_code:s1"]
	if len(sess.Messages) != 2 {
		t.Errorf("messages = %v", sess.Messages)
	}
	if !sess.LastSeen.Equal(now.Add(time.Second)) {
		t.Errorf("LastSeen = %s", sess.LastSeen)
	}
	if !tr.LastActivity().Equal(now.Add(time.Second)) {
		t.Errorf("LastActivity = %s", tr.LastActivity())
	}
}

func TestUpsertDedupesConsecutiveRepeats(t *testing.T) {
	tr := newTestTracker(10)
	now := time.Now()

	tr.Upsert("s1", "claude_code", "hello", now)
	tr.Upsert("s1", "claude_code", "hello", now.Add(time.Second))
	tr.Upsert("s1", "claude_code", "other", now.Add(2*time.Second))
	tr.Upsert("s1", "claude_code", "hello", now.Add(3*time.Second))

	sess := tr.sessions["claude_code:s1"]
	want := []string{"hello", "other", "hello"}
	if len(sess.Messages) != len(want) {
		t.Fatalf("messages = %v, want %v", sess.Messages, want)
	}
	for i := range want {
		if sess.Messages[i] != want[i] {
			t.Errorf("messages[%d] = %q, want %q", i, sess.Messages[i], want[i])
		}
	}

	// LastSeen is the time of the last appended message.
	if !sess.LastSeen.Equal(now.Add(3 * time.Second)) {
		t.Errorf("LastSeen = %s", sess.LastSeen)
	}
}

func TestUpsertScopesSessionsBySource(t *testing.T) {
	tr := newTestTracker(10)
	now := time.Now()

	tr.Upsert("same-id", "claude_code", "a", now)
	tr.Upsert("same-id", "opencode", "b", now)

	if tr.Len() != 2 {
		t.Errorf("Len = %d, want 2 source-scoped sessions", tr.Len())
	}
}

func TestUpsertOverflowRetainsTail(t *testing.T) {
	tr := New(10, 500, 300*time.Second, 7200*time.Second)
	now := time.Now()

	for i := 0; i <= 500; i++ {
		tr.Upsert("s1", "claude_code", fmt.Sprintf("msg-%d", i), now.Add(time.Duration(i)*time.Second))
	}

	sess := tr.sessions["claude_code:s1"]
	if len(sess.Messages) != 200 {
		t.Fatalf("messages = %d, want 200 after overflow", len(sess.Messages))
	}
	if sess.Messages[199] != "msg-500" {
		t.Errorf("newest message = %q, want msg-500", sess.Messages[199])
	}
	if sess.Messages[0] != "msg-301" {
		t.Errorf("oldest retained = %q, want msg-301", sess.Messages[0])
	}
}

func TestEvictionPrefersExportedOldest(t *testing.T) {
	tr := newTestTracker(3)
	now := time.Now()

	tr.Upsert("a", "x", "m", now)
	tr.Upsert("b", "x", "m", now.Add(time.Second))
	tr.Upsert("c", "x", "m", now.Add(2*time.Second))
	tr.sessions["x:b"].Exported = true

	tr.Upsert("d", "x", "m", now.Add(3*time.Second))

	if tr.Len() != 3 {
		t.Fatalf("Len = %d, want 3 (at cap)", tr.Len())
	}
	if _, ok := tr.sessions["x:b"]; ok {
		t.Error("exported session b survived eviction")
	}
	if _, ok := tr.sessions["x:a"]; !ok {
		t.Error("oldest non-exported session a was evicted instead")
	}
}

func TestEvictionFallsBackToOldest(t *testing.T) {
	tr := newTestTracker(2)
	now := time.Now()

	tr.Upsert("a", "x", "m", now)
	tr.Upsert("b", "x", "m", now.Add(time.Second))
	tr.Upsert("c", "x", "m", now.Add(2*time.Second))

	if _, ok := tr.sessions["x:a"]; ok {
		t.Error("oldest session a survived eviction")
	}
	if tr.Len() != 2 {
		t.Errorf("Len = %d, want 2", tr.Len())
	}
}

func TestCapNeverExceeded(t *testing.T) {
	tr := newTestTracker(5)
	now := time.Now()

	for i := 0; i < 50; i++ {
		tr.Upsert(fmt.Sprintf("s%d", i), "x", "m", now.Add(time.Duration(i)*time.Second))
		if tr.Len() > 5 {
			t.Fatalf("Len = %d exceeds cap after %d upserts", tr.Len(), i+1)
		}
	}
}

func TestSweepIdleExportsOnceAboveThreshold(t *testing.T) {
	tr := newTestTracker(10)
	now := time.Now()

	tr.Upsert("s1", "claude_code", "a", now)
	tr.Upsert("s1", "claude_code", "b", now.Add(time.Second))

	var exports []string
	export := func(s *Session) bool {
		exports = append(exports, s.SID)
		return true
	}

	// Not yet idle.
	tr.SweepIdle(now.Add(100*time.Second), export)
	if len(exports) != 0 {
		t.Fatalf("exported before idle timeout: %v", exports)
	}

	idleAt := now.Add(302 * time.Second)
	tr.SweepIdle(idleAt, export)
	if len(exports) != 1 || exports[0] != "s1" {
		t.Fatalf("exports = %v, want [s1]", exports)
	}

	// Continued idleness must not re-fire.
	tr.SweepIdle(idleAt.Add(time.Hour), export)
	if len(exports) != 1 {
		t.Errorf("session exported twice: %v", exports)
	}
}

func TestSweepIdleThresholds(t *testing.T) {
	tests := []struct {
		name       string
		sourceName string
		messages   int
		wantExport bool
	}{
		{"assistant below threshold", "claude_code", 1, false},
		{"assistant at threshold", "claude_code", 2, true},
		{"shell below threshold", "shell_zsh", 3, false},
		{"shell at threshold", "shell_zsh", 4, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestTracker(10)
			now := time.Now()
			for i := 0; i < tt.messages; i++ {
				tr.Upsert("s1", tt.sourceName, fmt.Sprintf("m%d", i), now)
			}

			exported := false
			tr.SweepIdle(now.Add(301*time.Second), func(*Session) bool {
				exported = true
				return true
			})

			if exported != tt.wantExport {
				t.Errorf("exported = %v, want %v", exported, tt.wantExport)
			}
			// Below or above threshold, the session is spent either way.
			if !tr.sessions[trackingKey(tt.sourceName, "s1")].Exported {
				t.Error("Exported flag not set on expiry")
			}
		})
	}
}

func TestSweepIdleTTLRemoval(t *testing.T) {
	tr := newTestTracker(10)
	now := time.Now()

	tr.Upsert("s1", "claude_code", "a", now)
	tr.Upsert("s1", "claude_code", "b", now)
	tr.SweepIdle(now.Add(301*time.Second), func(*Session) bool { return true })

	if tr.Len() != 1 {
		t.Fatalf("session removed before TTL")
	}

	tr.SweepIdle(now.Add(301*time.Second+7201*time.Second), func(*Session) bool { return true })
	if tr.Len() != 0 {
		t.Errorf("Len = %d, want 0 after TTL", tr.Len())
	}
}

func TestMinIdleRemaining(t *testing.T) {
	tr := newTestTracker(10)
	now := time.Now()

	if _, ok := tr.MinIdleRemaining(now); ok {
		t.Error("MinIdleRemaining ok with no sessions")
	}

	tr.Upsert("old", "x", "m", now.Add(-200*time.Second))
	tr.Upsert("new", "x", "m", now)

	remaining, ok := tr.MinIdleRemaining(now)
	if !ok {
		t.Fatal("MinIdleRemaining not ok")
	}
	if remaining != 100*time.Second {
		t.Errorf("remaining = %s, want 100s", remaining)
	}

	// Exported sessions no longer count.
	tr.sessions["x:old"].Exported = true
	remaining, ok = tr.MinIdleRemaining(now)
	if !ok || remaining != 300*time.Second {
		t.Errorf("remaining = %s ok=%v, want 300s", remaining, ok)
	}
}
