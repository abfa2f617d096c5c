// Package engine implements the campaign orchestrator: a periodic tick
// that moves a bounded batch of leads forward for every running campaign,
// dispatching verification and delivery work onto queues and leaving all
// positional state in the lead records themselves.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/categorize"
	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/metrics"
	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/models"
	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/queue"
	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/reliability"
	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/schedule"
	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/store"
)

// ErrTickRunning is returned when a tick is triggered while another is
// still in progress. Only one tick runs at a time.
var ErrTickRunning = errors.New("tick already running")

// Outcome values for CampaignResult
const (
	OutcomeDispatched   = "dispatched"
	OutcomeIdle         = "idle"
	OutcomeNotScheduled = "not_scheduled"
	OutcomeOutsideHours = "outside_hours"
	OutcomePaced        = "paced"
	OutcomeCompleted    = "completed"
	OutcomeError        = "error"
)

// CampaignResult is the per-campaign summary of one tick
type CampaignResult struct {
	CampaignID string `json:"campaign_id"`
	Outcome    string `json:"outcome"`
	Verifying  int    `json:"verifying,omitempty"`
	Sent       int    `json:"sent,omitempty"`
	Skipped    int    `json:"skipped,omitempty"`
	Error      string `json:"error,omitempty"`
}

// TickReport summarizes one whole orchestrator invocation
type TickReport struct {
	SkippedBackpressure bool             `json:"skipped_backpressure,omitempty"`
	Results             []CampaignResult `json:"results"`
	Duration            time.Duration    `json:"-"`
}

// Config holds the engine's tunables
type Config struct {
	SlotMinutes     int
	MaxBatchPerTick int
}

// Engine is the campaign orchestrator
type Engine struct {
	campaigns *store.CampaignRepository
	leads     *store.LeadRepository
	stats     *store.StatsRepository
	verifyQ   *queue.Queue
	deliveryQ *queue.Queue
	gate      *reliability.Gate
	cfg       Config
	logger    *slog.Logger

	tickMu sync.Mutex

	// now is injectable for tests
	now func() time.Time
}

func New(
	campaigns *store.CampaignRepository,
	leads *store.LeadRepository,
	stats *store.StatsRepository,
	verifyQ, deliveryQ *queue.Queue,
	gate *reliability.Gate,
	cfg Config,
	logger *slog.Logger,
) *Engine {
	if cfg.SlotMinutes < 1 {
		cfg.SlotMinutes = 1
	}
	if cfg.MaxBatchPerTick <= 0 {
		cfg.MaxBatchPerTick = 50
	}
	return &Engine{
		campaigns: campaigns,
		leads:     leads,
		stats:     stats,
		verifyQ:   verifyQ,
		deliveryQ: deliveryQ,
		gate:      gate,
		cfg:       cfg,
		logger:    logger.With("component", "engine"),
		now:       time.Now,
	}
}

// Tick runs one orchestrator invocation: a backpressure check, then one
// sequential pass over every RUNNING campaign. A campaign-level failure
// is recorded in that campaign's result and does not affect the others;
// a setup failure aborts the whole invocation.
func (e *Engine) Tick(ctx context.Context) (*TickReport, error) {
	if !e.tickMu.TryLock() {
		return nil, ErrTickRunning
	}
	defer e.tickMu.Unlock()

	start := e.now()
	defer func() {
		metrics.ObserveTickDuration(e.now().Sub(start).Seconds())
	}()

	if !e.gate.Allow(ctx) {
		metrics.IncTicks("backpressure")
		return &TickReport{SkippedBackpressure: true}, nil
	}

	campaigns, err := e.campaigns.ListByStatus(models.CampaignRunning)
	if err != nil {
		metrics.IncTicks("error")
		return nil, fmt.Errorf("list running campaigns: %w", err)
	}
	metrics.SetCampaignsRunning(len(campaigns))

	report := &TickReport{Results: make([]CampaignResult, 0, len(campaigns))}
	for _, c := range campaigns {
		res := e.tickCampaign(ctx, c)
		if res.Error != "" {
			e.logger.Error("campaign tick failed", "campaign_id", c.ID, "error", res.Error)
		}
		report.Results = append(report.Results, res)
	}

	report.Duration = e.now().Sub(start)
	metrics.IncTicks("ok")
	return report, nil
}

// tickCampaign moves one campaign forward by at most one bounded batch
func (e *Engine) tickCampaign(ctx context.Context, c *models.Campaign) CampaignResult {
	res := CampaignResult{CampaignID: c.ID}
	now := e.now()

	scheduled, err := schedule.IsCampaignScheduledToday(c.Schedule.ScheduledDates, c.Schedule.Timezone, now)
	if err != nil {
		res.Outcome = OutcomeError
		res.Error = err.Error()
		return res
	}
	if !scheduled {
		res.Outcome = OutcomeNotScheduled
		return res
	}

	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		res.Outcome = OutcomeError
		res.Error = err.Error()
		return res
	}
	today := now.In(loc).Format("2006-01-02")

	slot, err := schedule.CalculateSlotVolume(c.Schedule, now, e.cfg.SlotMinutes, c.RemainingToday(today))
	if err != nil {
		res.Outcome = OutcomeError
		res.Error = err.Error()
		return res
	}
	if !slot.InWorkingHours {
		res.Outcome = OutcomeOutsideHours
		return res
	}
	if slot.Volume == 0 {
		res.Outcome = OutcomePaced
		return res
	}

	batchSize := slot.Volume
	if c.Schedule.BatchSize > 0 && c.Schedule.BatchSize < batchSize {
		batchSize = c.Schedule.BatchSize
	}
	if batchSize > e.cfg.MaxBatchPerTick {
		batchSize = e.cfg.MaxBatchPerTick
	}

	leads, err := e.leads.ListByCampaignAndStatus(c.ID, models.LeadQueued, batchSize)
	if err != nil {
		res.Outcome = OutcomeError
		res.Error = err.Error()
		return res
	}

	if len(leads) == 0 {
		inFlight, err := e.leads.CountInFlight(c.ID)
		if err != nil {
			res.Outcome = OutcomeError
			res.Error = err.Error()
			return res
		}
		if inFlight == 0 {
			if err := e.campaigns.TransitionStatus(c.ID, models.CampaignRunning, models.CampaignCompleted, "", now); err != nil {
				res.Outcome = OutcomeError
				res.Error = err.Error()
				return res
			}
			e.logger.Info("campaign completed", "campaign_id", c.ID)
			res.Outcome = OutcomeCompleted
			return res
		}
		res.Outcome = OutcomeIdle
		return res
	}

	cat := categorize.CategorizeLeads(leads, c)

	for _, s := range cat.Skipped {
		if _, err := e.leads.MarkSkipped(s.Lead.ID, s.Reason, now); err != nil {
			res.Outcome = OutcomeError
			res.Error = err.Error()
			return res
		}
		metrics.IncLeadsSkipped(s.Reason)
		res.Skipped++
	}

	verified, err := e.dispatchVerification(ctx, c, cat.NeedsVerification, now)
	if err != nil {
		res.Outcome = OutcomeError
		res.Error = err.Error()
		res.Verifying = 0
		return res
	}
	res.Verifying = verified

	sent, err := e.dispatchDelivery(ctx, c, cat.ReadyToSend, now)
	if err != nil {
		res.Outcome = OutcomeError
		res.Error = err.Error()
		return res
	}
	res.Sent = sent

	processed := res.Verifying + res.Sent
	if processed > 0 {
		if err := e.campaigns.IncrementProcessed(c.ID, processed, now); err != nil {
			res.Outcome = OutcomeError
			res.Error = err.Error()
			return res
		}
	}
	if res.Sent > 0 {
		if err := e.campaigns.AddSentToday(c.ID, res.Sent, today, now); err != nil {
			res.Outcome = OutcomeError
			res.Error = err.Error()
			return res
		}
		// Global stats are keyed on the UTC date; feedback ingestion
		// writes bounces and complaints under the same key.
		if err := e.stats.AddSent(now.UTC().Format("2006-01-02"), res.Sent); err != nil {
			res.Outcome = OutcomeError
			res.Error = err.Error()
			return res
		}
	}

	res.Outcome = OutcomeDispatched
	e.logger.Info("campaign tick dispatched",
		"campaign_id", c.ID,
		"verifying", res.Verifying,
		"sent", res.Sent,
		"skipped", res.Skipped,
	)
	return res
}

// dispatchVerification marks leads VERIFYING and enqueues verification
// requests for them. A queue failure rolls the marked leads back to
// QUEUED best-effort and fails the campaign's tick.
func (e *Engine) dispatchVerification(ctx context.Context, c *models.Campaign, pending []*models.Lead, now time.Time) (int, error) {
	if len(pending) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(pending))
	byID := make(map[string]*models.Lead, len(pending))
	for _, l := range pending {
		ids = append(ids, l.ID)
		byID[l.ID] = l
	}

	residual, err := reliability.SafeBatchWrite(ctx, reliability.BatchWriterFunc(
		func(ctx context.Context, batch []string) ([]string, error) {
			return e.leads.UpdateStatusBatch(batch, models.LeadQueued, models.LeadVerifying, now)
		}), ids)
	if err != nil {
		e.logger.Warn("partial verification claim", "campaign_id", c.ID, "unclaimed", len(residual), "error", err)
	}

	moved := subtract(ids, residual)
	if len(moved) == 0 {
		return 0, err
	}

	reqs := make([]models.VerificationRequest, 0, len(moved))
	for _, id := range moved {
		l := byID[id]
		reqs = append(reqs, models.VerificationRequest{
			LeadID:      l.ID,
			CampaignID:  c.ID,
			Email:       l.Email,
			FullName:    l.FullName,
			CompanyName: l.CompanyName,
		})
	}

	if err := queue.SendJSON(ctx, e.verifyQ, reqs, nil); err != nil {
		e.rollback(ctx, c.ID, moved, models.LeadVerifying, now)
		return 0, fmt.Errorf("enqueue verification batch: %w", err)
	}

	metrics.IncLeadsDispatched("verification", len(moved))
	return len(moved), nil
}

// dispatchDelivery assigns each send-ready lead a delay and a message ID,
// marks it SENDING, and enqueues a delivery request. A queue failure rolls
// the marked leads back to QUEUED best-effort.
func (e *Engine) dispatchDelivery(ctx context.Context, c *models.Campaign, ready []*models.Lead, now time.Time) (int, error) {
	if len(ready) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(ready))
	for _, l := range ready {
		ids = append(ids, l.ID)
	}
	delays := make(map[string]int, len(ready))
	for _, s := range schedule.ScheduleEmailBatch(ids, c.ID, c.DelayConfig) {
		delays[s.LeadID] = s.DelaySeconds
	}

	var moved []string
	reqs := make([]models.DeliveryRequest, 0, len(ready))
	for _, l := range ready {
		messageID := uuid.New().String()
		ok, err := e.leads.MarkSending(l.ID, messageID, now)
		if err != nil {
			e.rollback(ctx, c.ID, moved, models.LeadSending, now)
			return 0, fmt.Errorf("mark lead %s sending: %w", l.ID, err)
		}
		if !ok {
			continue
		}
		moved = append(moved, l.ID)
		reqs = append(reqs, models.DeliveryRequest{
			LeadID:       l.ID,
			CampaignID:   c.ID,
			Email:        l.Email,
			TemplateID:   c.TemplateID,
			SenderID:     c.SenderID,
			MessageID:    messageID,
			DelaySeconds: delays[l.ID],
		})
	}
	if len(reqs) == 0 {
		return 0, nil
	}

	if err := queue.SendJSON(ctx, e.deliveryQ, reqs, func(r models.DeliveryRequest) int {
		return r.DelaySeconds
	}); err != nil {
		e.rollback(ctx, c.ID, moved, models.LeadSending, now)
		return 0, fmt.Errorf("enqueue delivery batch: %w", err)
	}

	metrics.IncLeadsDispatched("delivery", len(moved))
	return len(moved), nil
}

// rollback returns claimed leads to QUEUED after a dispatch failure.
// Best-effort: whatever cannot be rolled back stays claimed and is
// reconciled by a later tick or the queue's redelivery path.
func (e *Engine) rollback(ctx context.Context, campaignID string, ids []string, from models.LeadStatus, now time.Time) {
	if len(ids) == 0 {
		return
	}
	residual, err := reliability.SafeBatchWrite(ctx, reliability.BatchWriterFunc(
		func(ctx context.Context, batch []string) ([]string, error) {
			return e.leads.UpdateStatusBatch(batch, from, models.LeadQueued, now)
		}), ids)
	if err != nil || len(residual) > 0 {
		e.logger.Error("batch rollback incomplete",
			"campaign_id", campaignID,
			"from", from,
			"stranded", len(residual),
			"error", err,
		)
	}
}

func subtract(all, remove []string) []string {
	if len(remove) == 0 {
		return all
	}
	drop := make(map[string]struct{}, len(remove))
	for _, id := range remove {
		drop[id] = struct{}{}
	}
	out := make([]string, 0, len(all))
	for _, id := range all {
		if _, ok := drop[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
