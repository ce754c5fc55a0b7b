package daemon

import "time"

// SleepInputs are the observations the adaptive scheduler works from.
// Keeping the decision a pure function of these makes the policy testable
// without a running loop.
type SleepInputs struct {
	Poll     time.Duration
	FastPoll time.Duration

	// HasPending: the outbox is non-empty.
	HasPending bool

	// MinIdleRemaining is the soonest any non-exported session crosses
	// the idle timeout; valid only when HasIdleCandidate.
	MinIdleRemaining time.Duration
	HasIdleCandidate bool

	// SinceActivity is the age of the newest appended message; valid
	// only when HasActivity.
	SinceActivity time.Duration
	HasActivity   bool
}

// NextSleep picks how long the loop may sleep: the full poll interval when
// nothing is happening, tightened to the fast-poll interval when queued
// work exists, a session is about to expire, or messages arrived recently.
func NextSleep(in SleepInputs) time.Duration {
	sleep := in.Poll
	if sleep < time.Second {
		sleep = time.Second
	}

	if in.HasPending && in.FastPoll < sleep {
		sleep = in.FastPoll
	}

	if in.HasIdleCandidate {
		if in.MinIdleRemaining <= in.FastPoll {
			if in.FastPoll < sleep {
				sleep = in.FastPoll
			}
		} else if in.MinIdleRemaining < sleep {
			sleep = in.MinIdleRemaining
		}
	}

	recentWindow := 4 * in.FastPoll
	if recentWindow < 15*time.Second {
		recentWindow = 15 * time.Second
	}
	if in.HasActivity && in.SinceActivity < recentWindow && in.FastPoll < sleep {
		sleep = in.FastPoll
	}

	if sleep < time.Second {
		sleep = time.Second
	}
	return sleep
}
