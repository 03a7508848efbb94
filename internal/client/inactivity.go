// Package client is a Go API client for the address book that manages the
// issued token and logs the user out after a period of inactivity.
package client

import "time"

// Inactivity defaults.
const (
	DefaultIdleTimeout = 15 * time.Minute
	DefaultWarnBefore  = time.Minute
)

// State is the inactivity state of a session.
type State int

const (
	Active State = iota
	Warning
	Expired
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Warning:
		return "warning"
	case Expired:
		return "expired"
	}
	return "unknown"
}

// InactivityTracker is a timer-free state machine. Touch records user
// activity; Tick evaluates the two deadlines. The warning deadline is
// timeout-warnBefore after the last activity, expiry is timeout after it.
// Expired is terminal until Reset. It is not safe for concurrent use.
type InactivityTracker struct {
	timeout    time.Duration
	warnBefore time.Duration
	last       time.Time
	state      State
}

// NewInactivityTracker starts an Active tracker at now. Non-positive
// durations take the defaults; warnBefore is capped below timeout.
func NewInactivityTracker(timeout, warnBefore time.Duration, now time.Time) *InactivityTracker {
	if timeout <= 0 {
		timeout = DefaultIdleTimeout
	}
	if warnBefore <= 0 {
		warnBefore = DefaultWarnBefore
	}
	if warnBefore >= timeout {
		warnBefore = timeout / 2
	}
	return &InactivityTracker{timeout: timeout, warnBefore: warnBefore, last: now}
}

func (t *InactivityTracker) State() State { return t.state }

// WarningAt is when the tracker enters Warning without further activity.
func (t *InactivityTracker) WarningAt() time.Time { return t.last.Add(t.timeout - t.warnBefore) }

// ExpiresAt is when the tracker expires without further activity.
func (t *InactivityTracker) ExpiresAt() time.Time { return t.last.Add(t.timeout) }

// Remaining is the time left before expiry, never negative.
func (t *InactivityTracker) Remaining(now time.Time) time.Duration {
	if t.state == Expired {
		return 0
	}
	if d := t.ExpiresAt().Sub(now); d > 0 {
		return d
	}
	return 0
}

// Touch records activity at now. Activity during Warning returns the
// tracker to Active. It has no effect once Expired, and a touch that
// arrives after the expiry deadline expires the tracker instead.
func (t *InactivityTracker) Touch(now time.Time) State {
	if t.state == Expired {
		return Expired
	}
	if !now.Before(t.ExpiresAt()) {
		t.state = Expired
		return Expired
	}
	if now.After(t.last) {
		t.last = now
	}
	t.state = Active
	return Active
}

// Tick evaluates the deadlines at now and reports the state and whether
// it changed.
func (t *InactivityTracker) Tick(now time.Time) (State, bool) {
	prev := t.state
	switch {
	case prev == Expired:
	case !now.Before(t.ExpiresAt()):
		t.state = Expired
	case !now.Before(t.WarningAt()):
		t.state = Warning
	default:
		t.state = Active
	}
	return t.state, t.state != prev
}

// Reset restarts the tracker in Active at now, e.g. after a new login.
func (t *InactivityTracker) Reset(now time.Time) {
	t.last = now
	t.state = Active
}
