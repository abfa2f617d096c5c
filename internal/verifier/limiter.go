package verifier

import "time"

// limiter is a fixed-window rate limiter. Callers hold the client mutex;
// the limiter itself is not safe for concurrent use.
type limiter struct {
	max    int
	window time.Duration
	state  windowState
}

// allow consumes one slot if the window has capacity. When the window is
// exhausted it returns the milliseconds until the window rolls over.
func (l *limiter) allow(now time.Time) (retryAfterMs int64, ok bool) {
	if l.state.WindowStart.IsZero() || now.Sub(l.state.WindowStart) >= l.window {
		l.state = windowState{WindowStart: now}
	}

	if l.state.Count >= l.max {
		resetAt := l.state.WindowStart.Add(l.window)
		return resetAt.Sub(now).Milliseconds(), false
	}

	l.state.Count++
	return 0, true
}

func (l *limiter) reset() {
	l.state = windowState{}
}
