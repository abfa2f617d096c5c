package verifier

import "time"

const (
	breakerClosed   = "closed"
	breakerOpen     = "open"
	breakerHalfOpen = "half_open"
)

// breaker is a consecutive-failure circuit breaker. Callers hold the
// client mutex; the breaker itself is not safe for concurrent use.
type breaker struct {
	threshold int
	cooldown  time.Duration
	state     breakerState

	// probing marks a half-open probe in flight. Process-local: the
	// client releases its mutex during the HTTP call, so without the
	// flag every concurrent caller would probe.
	probing bool
}

// allow reports whether a call may proceed. While open, calls are
// rejected until the cool-down elapses; the first call after that moves
// the breaker to half-open and becomes the single probe. Further calls
// are rejected until the probe resolves.
func (b *breaker) allow(now time.Time) bool {
	switch b.state.State {
	case breakerOpen:
		if now.Sub(b.state.OpenedAt) < b.cooldown {
			return false
		}
		b.state.State = breakerHalfOpen
		b.probing = true
		return true
	case breakerHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return true
	}
}

// recordSuccess closes the breaker and clears the failure counter
func (b *breaker) recordSuccess() {
	b.state = breakerState{State: breakerClosed}
	b.probing = false
}

// recordFailure counts one logical call failure. A half-open probe
// failure reopens immediately and restarts the cool-down.
func (b *breaker) recordFailure(now time.Time) {
	b.probing = false
	if b.state.State == breakerHalfOpen {
		b.state = breakerState{State: breakerOpen, Failures: b.threshold, OpenedAt: now}
		return
	}

	b.state.Failures++
	if b.state.Failures >= b.threshold {
		b.state.State = breakerOpen
		b.state.OpenedAt = now
	}
}

func (b *breaker) reset() {
	b.state = breakerState{State: breakerClosed}
	b.probing = false
}
