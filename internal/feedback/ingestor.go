// Package feedback consumes provider delivery-outcome notifications
// (bounce, complaint, delivery) from the feedback bus, applies them to
// leads and counters, and triggers the reputation guard when bounce or
// complaint events arrive.
package feedback

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/metrics"
	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/models"
	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/queue"
	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/store"
)

// BatchStats summarizes one consumed feedback batch
type BatchStats struct {
	Received  int
	Applied   int
	Unmatched int
	Paused    int
}

// Ingestor drains the feedback bus. Every message is acknowledged after
// processing, including unmatched ones, so a bad identifier can never
// wedge the bus in a reprocessing loop.
type Ingestor struct {
	queue     *queue.Queue
	leads     *store.LeadRepository
	campaigns *store.CampaignRepository
	stats     *store.StatsRepository
	guard     *Guard
	logger    *slog.Logger

	now func() time.Time
}

func NewIngestor(
	q *queue.Queue,
	leads *store.LeadRepository,
	campaigns *store.CampaignRepository,
	stats *store.StatsRepository,
	guard *Guard,
	logger *slog.Logger,
) *Ingestor {
	return &Ingestor{
		queue:     q,
		leads:     leads,
		campaigns: campaigns,
		stats:     stats,
		guard:     guard,
		logger:    logger.With("component", "feedback"),
		now:       time.Now,
	}
}

// Run consumes batches until the context is canceled
func (in *Ingestor) Run(ctx context.Context, batchSize int, wait time.Duration) {
	for {
		if ctx.Err() != nil {
			return
		}
		if _, err := in.ProcessBatch(ctx, batchSize, wait); err != nil {
			if ctx.Err() != nil {
				return
			}
			in.logger.Error("feedback batch failed", "error", err)
			time.Sleep(time.Second)
		}
	}
}

// ProcessBatch receives up to max envelopes and applies each. After a
// batch containing any bounce or complaint, the reputation guard runs.
func (in *Ingestor) ProcessBatch(ctx context.Context, max int, wait time.Duration) (BatchStats, error) {
	var stats BatchStats

	msgs, err := in.queue.Receive(ctx, max, wait)
	if err != nil {
		return stats, err
	}
	stats.Received = len(msgs)

	riskEvents := false
	for _, msg := range msgs {
		if in.handle(ctx, msg, &stats) {
			riskEvents = true
		}
		if err := in.queue.Delete(ctx, msg.ID); err != nil {
			in.logger.Error("failed to ack feedback message", "message_id", msg.ID, "error", err)
		}
	}

	if riskEvents {
		date := in.now().UTC().Format("2006-01-02")
		paused, err := in.guard.Check(date)
		if err != nil {
			in.logger.Error("reputation check failed", "error", err)
		}
		stats.Paused = paused
	}
	return stats, nil
}

// handle applies one envelope and reports whether it was a
// reputation-relevant event (bounce or complaint).
func (in *Ingestor) handle(ctx context.Context, msg queue.Message, stats *BatchStats) bool {
	var env models.FeedbackEnvelope
	if err := json.Unmarshal(msg.Body, &env); err != nil {
		in.logger.Warn("dropping malformed feedback message", "message_id", msg.ID, "error", err)
		return false
	}

	lead, err := in.leads.GetByMessageID(env.MessageID)
	if err != nil {
		in.logger.Error("feedback lookup failed", "provider_message_id", env.MessageID, "error", err)
		return false
	}
	if lead == nil {
		in.logger.Warn("feedback for unknown message, acknowledged anyway",
			"provider_message_id", env.MessageID, "type", env.Type)
		stats.Unmatched++
		return false
	}

	now := in.now()
	date := now.UTC().Format("2006-01-02")

	switch env.Type {
	case models.FeedbackBounce:
		bounceType := env.BounceType
		if bounceType == "" {
			bounceType = models.BounceHard
		}
		changed, err := in.leads.MarkBounced(lead.ID, bounceType, env.BounceSubType, now)
		if err != nil {
			in.logger.Error("failed to mark bounce", "lead_id", lead.ID, "error", err)
			return false
		}
		if !changed {
			in.logger.Debug("duplicate bounce ignored", "lead_id", lead.ID, "provider_message_id", env.MessageID)
			return false
		}
		if lead.CampaignID != "" {
			if err := in.campaigns.IncrementCounter(lead.CampaignID, "bounced_count"); err != nil {
				in.logger.Error("failed to count bounce", "campaign_id", lead.CampaignID, "error", err)
			}
		}
		if err := in.stats.AddBounced(date, bounceType, 1); err != nil {
			in.logger.Error("failed to count global bounce", "error", err)
		}
		metrics.IncFeedbackEvents("bounce")
		stats.Applied++
		in.logger.Info("bounce recorded",
			"lead_id", lead.ID, "campaign_id", lead.CampaignID,
			"bounce_type", bounceType, "sub_type", env.BounceSubType)
		return true

	case models.FeedbackComplaint:
		changed, err := in.leads.MarkComplained(lead.ID, now)
		if err != nil {
			in.logger.Error("failed to mark complaint", "lead_id", lead.ID, "error", err)
			return false
		}
		if !changed {
			in.logger.Debug("duplicate complaint ignored", "lead_id", lead.ID, "provider_message_id", env.MessageID)
			return false
		}
		if lead.CampaignID != "" {
			if err := in.campaigns.IncrementCounter(lead.CampaignID, "complained_count"); err != nil {
				in.logger.Error("failed to count complaint", "campaign_id", lead.CampaignID, "error", err)
			}
		}
		if err := in.stats.AddComplained(date, 1); err != nil {
			in.logger.Error("failed to count global complaint", "error", err)
		}
		metrics.IncFeedbackEvents("complaint")
		stats.Applied++
		in.logger.Info("complaint recorded", "lead_id", lead.ID, "campaign_id", lead.CampaignID)
		return true

	case models.FeedbackDelivery:
		deliveredAt := env.Timestamp
		if deliveredAt.IsZero() {
			deliveredAt = now
		}
		changed, err := in.leads.MarkDelivered(lead.ID, deliveredAt)
		if err != nil {
			in.logger.Error("failed to mark delivery", "lead_id", lead.ID, "error", err)
			return false
		}
		if !changed {
			in.logger.Debug("duplicate delivery ignored", "lead_id", lead.ID, "provider_message_id", env.MessageID)
			return false
		}
		if lead.CampaignID != "" {
			if err := in.campaigns.IncrementCounter(lead.CampaignID, "delivered_count"); err != nil {
				in.logger.Error("failed to count delivery", "campaign_id", lead.CampaignID, "error", err)
			}
		}
		if err := in.stats.AddDelivered(date, 1); err != nil {
			in.logger.Error("failed to count global delivery", "error", err)
		}
		metrics.IncFeedbackEvents("delivery")
		stats.Applied++
		return false

	default:
		// Informational notification; nothing to apply
		in.logger.Debug("ignoring feedback type", "type", env.Type, "provider_message_id", env.MessageID)
		metrics.IncFeedbackEvents("other")
		return false
	}
}
