package reliability

import (
	"context"
	"log/slog"
)

// DepthProber reports the approximate depth of a downstream queue
type DepthProber interface {
	ApproxDepth(ctx context.Context) (int64, error)
}

// Gate is the backpressure check run before a tick begins. When the
// delivery queue is deeper than MaxDepth the whole tick is skipped; when
// the probe itself fails the gate fails open so a broken probe cannot
// stall sending indefinitely.
type Gate struct {
	prober   DepthProber
	maxDepth int64
	logger   *slog.Logger
}

func NewGate(prober DepthProber, maxDepth int64, logger *slog.Logger) *Gate {
	if maxDepth <= 0 {
		maxDepth = 2000
	}
	return &Gate{prober: prober, maxDepth: maxDepth, logger: logger.With("component", "backpressure")}
}

// Allow reports whether the tick may proceed
func (g *Gate) Allow(ctx context.Context) bool {
	depth, err := g.prober.ApproxDepth(ctx)
	if err != nil {
		g.logger.Warn("queue depth probe failed, proceeding anyway", "error", err)
		return true
	}

	if depth > g.maxDepth {
		g.logger.Warn("delivery queue over depth threshold, skipping tick", "depth", depth, "max_depth", g.maxDepth)
		return false
	}
	return true
}
