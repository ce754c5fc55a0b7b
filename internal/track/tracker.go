// Package track aggregates tailer events into sessions and decides when a
// session is finished. A session is "done" when nothing has arrived for the
// idle timeout; there is no explicit end marker in any of the monitored
// formats.
package track

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"

	"github.com/dunova/silent-context-foundry/internal/config"
	"github.com/dunova/silent-context-foundry/internal/logging"
)

// Message thresholds below which an idle session is not worth exporting.
// Shells emit many trivial single-command days, hence the higher bar.
const (
	minMessages      = 2
	minShellMessages = 4
)

// Session is one reconstructed message stream, keyed by source-scoped id.
type Session struct {
	SID      string
	Source   string
	Created  time.Time
	LastSeen time.Time
	Messages []string
	LastHash string
	Exported bool
}

// trackingKey scopes a session id to its source so that two tools using
// the same id scheme never merge.
func trackingKey(source, sid string) string {
	return source + ":" + sid
}

// Tracker owns the session table. It is mutated only from the daemon loop.
type Tracker struct {
	sessions map[string]*Session

	maxSessions int
	maxMessages int
	idleTimeout time.Duration
	ttl         time.Duration

	lastActivity time.Time
}

func New(maxSessions, maxMessages int, idleTimeout, ttl time.Duration) *Tracker {
	return &Tracker{
		sessions:    make(map[string]*Session),
		maxSessions: maxSessions,
		maxMessages: maxMessages,
		idleTimeout: idleTimeout,
		ttl:         ttl,
	}
}

// Upsert records one message for a session, creating it if needed. A
// message identical to the session's previous one is dropped; that is what
// makes re-reads after a truncation reset harmless.
func (t *Tracker) Upsert(sid, sourceName, text string, now time.Time) {
	key := trackingKey(sourceName, sid)

	sess, ok := t.sessions[key]
	if !ok {
		if len(t.sessions) >= t.maxSessions {
			t.evictOne()
		}
		sess = &Session{
			SID:      sid,
			Source:   sourceName,
			Created:  now,
			LastSeen: now,
		}
		t.sessions[key] = sess
	}

	sum := md5.Sum([]byte(text))
	digest := hex.EncodeToString(sum[:])
	if digest == sess.LastHash {
		return
	}

	sess.Messages = append(sess.Messages, text)
	sess.LastHash = digest
	sess.LastSeen = now
	t.lastActivity = now

	if len(sess.Messages) > t.maxMessages {
		retained := make([]string, config.RetainMessagesOnOverflow)
		copy(retained, sess.Messages[len(sess.Messages)-config.RetainMessagesOnOverflow:])
		sess.Messages = retained
	}
}

// evictOne removes an already-exported session with the oldest LastSeen,
// or failing that the oldest session overall.
func (t *Tracker) evictOne() {
	var victim string
	var victimSeen time.Time
	for key, sess := range t.sessions {
		if !sess.Exported {
			continue
		}
		if victim == "" || sess.LastSeen.Before(victimSeen) {
			victim = key
			victimSeen = sess.LastSeen
		}
	}
	if victim == "" {
		for key, sess := range t.sessions {
			if victim == "" || sess.LastSeen.Before(victimSeen) {
				victim = key
				victimSeen = sess.LastSeen
			}
		}
	}
	if victim != "" {
		logging.Infof("Evicting session %s (table at cap)", victim)
		delete(t.sessions, victim)
	}
}

// SweepIdle exports sessions idle past the timeout and deletes exported
// sessions unseen past the TTL. The exported flag is set whether or not
// the export ran or succeeded, so an expired session never re-fires while
// it stays idle.
func (t *Tracker) SweepIdle(now time.Time, export func(*Session) bool) {
	var remove []string

	for key, sess := range t.sessions {
		if sess.Exported {
			if now.Sub(sess.LastSeen) > t.ttl {
				remove = append(remove, key)
			}
			continue
		}

		if now.Sub(sess.LastSeen) <= t.idleTimeout {
			continue
		}

		if len(sess.Messages) >= minMessagesFor(sess.Source) {
			export(sess)
		}
		sess.Exported = true
	}

	for _, key := range remove {
		delete(t.sessions, key)
	}
}

func minMessagesFor(sourceName string) int {
	if strings.HasPrefix(sourceName, "shell_") {
		return minShellMessages
	}
	return minMessages
}

// Len reports the tracked-session count.
func (t *Tracker) Len() int {
	return len(t.sessions)
}

// LastActivity is when the most recent message was appended.
func (t *Tracker) LastActivity() time.Time {
	return t.lastActivity
}

// MinIdleRemaining returns the smallest time left before any non-exported
// session crosses the idle timeout. ok is false when no session qualifies.
func (t *Tracker) MinIdleRemaining(now time.Time) (time.Duration, bool) {
	var min time.Duration
	found := false
	for _, sess := range t.sessions {
		if sess.Exported {
			continue
		}
		remaining := t.idleTimeout - now.Sub(sess.LastSeen)
		if !found || remaining < min {
			min = remaining
			found = true
		}
	}
	return min, found
}
