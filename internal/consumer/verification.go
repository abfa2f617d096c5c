// Package consumer holds the queue consumers that feed results back into
// lead records: verification outcomes here, delivery feedback in the
// feedback package.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/metrics"
	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/models"
	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/queue"
	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/store"
	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/verifier"
)

// Verifier is the piece of the verification client this consumer needs
type Verifier interface {
	Verify(ctx context.Context, email string) (*verifier.Result, error)
}

// BatchStats summarizes one consumed verification batch
type BatchStats struct {
	Received int
	Verified int
	Requeued int
	Failed   int
}

// VerificationConsumer drains the verification queue: each message is
// one lead to verify. Outcomes are persisted and the lead returns to
// QUEUED for re-evaluation on the next tick. Conditional status updates
// make duplicate deliveries harmless.
type VerificationConsumer struct {
	queue  *queue.Queue
	leads  *store.LeadRepository
	client Verifier
	logger *slog.Logger

	now func() time.Time
}

func NewVerification(q *queue.Queue, leads *store.LeadRepository, client Verifier, logger *slog.Logger) *VerificationConsumer {
	return &VerificationConsumer{
		queue:  q,
		leads:  leads,
		client: client,
		logger: logger.With("component", "verification_consumer"),
		now:    time.Now,
	}
}

// Run consumes batches until the context is canceled
func (c *VerificationConsumer) Run(ctx context.Context, batchSize int, wait time.Duration) {
	for {
		if ctx.Err() != nil {
			return
		}
		if _, err := c.ProcessBatch(ctx, batchSize, wait); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("verification batch failed", "error", err)
			time.Sleep(time.Second)
		}
	}
}

// ProcessBatch receives up to max messages and verifies each lead.
// Rate-limit and circuit-open failures return the lead to QUEUED
// untouched so a later tick retries it; permanent API errors mark the
// lead FAILED. Every message is acknowledged regardless of outcome;
// the lead record, not the queue, is the positional source of truth.
func (c *VerificationConsumer) ProcessBatch(ctx context.Context, max int, wait time.Duration) (BatchStats, error) {
	var stats BatchStats

	msgs, err := c.queue.Receive(ctx, max, wait)
	if err != nil {
		return stats, err
	}
	stats.Received = len(msgs)

	for _, msg := range msgs {
		c.handle(ctx, msg, &stats)
		if err := c.queue.Delete(ctx, msg.ID); err != nil {
			c.logger.Error("failed to ack verification message", "message_id", msg.ID, "error", err)
		}
	}
	return stats, nil
}

func (c *VerificationConsumer) handle(ctx context.Context, msg queue.Message, stats *BatchStats) {
	var req models.VerificationRequest
	if err := json.Unmarshal(msg.Body, &req); err != nil {
		c.logger.Warn("dropping malformed verification message", "message_id", msg.ID, "error", err)
		return
	}
	now := c.now()

	result, err := c.client.Verify(ctx, req.Email)
	if err != nil {
		if verifier.IsFailFast(err) {
			// Budget exhausted, nothing wrong with the lead. Put it back
			// in the selectable pool and let a later tick re-dispatch it.
			if _, rerr := c.leads.UpdateStatusFrom(req.LeadID, models.LeadVerifying, models.LeadQueued, now); rerr != nil {
				c.logger.Error("failed to requeue lead", "lead_id", req.LeadID, "error", rerr)
				return
			}
			metrics.IncVerificationCalls("fail_fast")
			stats.Requeued++
			return
		}

		var apiErr *verifier.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			// Data error: the provider rejected this request outright
			if _, ferr := c.leads.UpdateStatusFrom(req.LeadID, models.LeadVerifying, models.LeadFailed, now); ferr != nil {
				c.logger.Error("failed to fail lead", "lead_id", req.LeadID, "error", ferr)
				return
			}
			c.logger.Warn("verification rejected", "lead_id", req.LeadID, "campaign_id", req.CampaignID, "error", err)
			metrics.IncVerificationCalls("rejected")
			stats.Failed++
			return
		}

		// Transient budget exhausted: back to QUEUED for a later attempt
		if _, rerr := c.leads.UpdateStatusFrom(req.LeadID, models.LeadVerifying, models.LeadQueued, now); rerr != nil {
			c.logger.Error("failed to requeue lead", "lead_id", req.LeadID, "error", rerr)
			return
		}
		c.logger.Warn("verification failed, requeued", "lead_id", req.LeadID, "campaign_id", req.CampaignID, "error", err)
		metrics.IncVerificationCalls("error")
		stats.Requeued++
		return
	}

	ok, err := c.leads.SetVerificationResult(req.LeadID, result.Status, now)
	if err != nil {
		c.logger.Error("failed to persist verification", "lead_id", req.LeadID, "error", err)
		return
	}
	if !ok {
		// Duplicate delivery or the lead moved on; nothing to record
		c.logger.Debug("verification result for non-verifying lead ignored", "lead_id", req.LeadID)
		return
	}

	metrics.IncVerificationCalls(string(result.Status))
	stats.Verified++
}
