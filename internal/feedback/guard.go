package feedback

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/metrics"
	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/models"
	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/store"
)

// Guard pauses every running campaign when the day's bounce or complaint
// rate breaches its threshold. Idempotent: already-paused campaigns are
// not RUNNING and are never touched again.
type Guard struct {
	campaigns        *store.CampaignRepository
	stats            *store.StatsRepository
	maxBounceRate    float64
	maxComplaintRate float64
	logger           *slog.Logger

	now func() time.Time
}

func NewGuard(campaigns *store.CampaignRepository, stats *store.StatsRepository, maxBounceRate, maxComplaintRate float64, logger *slog.Logger) *Guard {
	if maxBounceRate <= 0 {
		maxBounceRate = 0.05
	}
	if maxComplaintRate <= 0 {
		maxComplaintRate = 0.001
	}
	return &Guard{
		campaigns:        campaigns,
		stats:            stats,
		maxBounceRate:    maxBounceRate,
		maxComplaintRate: maxComplaintRate,
		logger:           logger.With("component", "reputation_guard"),
		now:              time.Now,
	}
}

// Check computes the day's rates and, on a breach, force-pauses every
// RUNNING campaign with the triggering reason. Returns how many
// campaigns it paused.
func (g *Guard) Check(date string) (int, error) {
	s, err := g.stats.Get(date)
	if err != nil {
		return 0, fmt.Errorf("load daily stats: %w", err)
	}
	if s.Sent == 0 {
		return 0, nil
	}

	bounceRate := float64(s.Bounced()) / float64(s.Sent)
	complaintRate := float64(s.Complained) / float64(s.Sent)

	var reason string
	switch {
	case bounceRate > g.maxBounceRate:
		reason = fmt.Sprintf("bounce rate %.2f%% over %.2f%% threshold", bounceRate*100, g.maxBounceRate*100)
	case complaintRate > g.maxComplaintRate:
		reason = fmt.Sprintf("complaint rate %.3f%% over %.3f%% threshold", complaintRate*100, g.maxComplaintRate*100)
	default:
		return 0, nil
	}

	running, err := g.campaigns.ListByStatus(models.CampaignRunning)
	if err != nil {
		return 0, fmt.Errorf("list running campaigns: %w", err)
	}

	paused := 0
	now := g.now()
	for _, c := range running {
		err := g.campaigns.TransitionStatus(c.ID, models.CampaignRunning, models.CampaignPaused, reason, now)
		if err == store.ErrStatusConflict {
			continue // moved concurrently; whatever moved it wins
		}
		if err != nil {
			g.logger.Error("failed to pause campaign", "campaign_id", c.ID, "error", err)
			continue
		}
		metrics.IncReputationPauses()
		paused++
	}

	if paused > 0 {
		g.logger.Warn("reputation threshold breached, campaigns paused",
			"reason", reason, "paused", paused,
			"bounce_rate", bounceRate, "complaint_rate", complaintRate)
	}
	return paused, nil
}
