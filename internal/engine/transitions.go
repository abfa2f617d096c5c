package engine

import (
	"errors"
	"fmt"

	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/models"
)

// ErrCampaignNotFound is returned when a transition targets an unknown campaign
var ErrCampaignNotFound = errors.New("campaign not found")

// EntryGuardError reports why a campaign may not enter an active state
type EntryGuardError struct {
	Missing []string
}

func (e *EntryGuardError) Error() string {
	return fmt.Sprintf("campaign not ready: missing %v", e.Missing)
}

// TransitionCampaign validates and applies a campaign status change.
// Entering QUEUED or RUNNING requires a template, at least one assigned
// lead, and at least one scheduled date; resuming from PAUSED is exempt
// because the campaign already passed the guard once.
func (e *Engine) TransitionCampaign(id string, to models.CampaignStatus, reason string) (*models.Campaign, error) {
	c, err := e.campaigns.GetByID(id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrCampaignNotFound
	}

	if err := models.ValidateCampaignTransition(c.Status, to); err != nil {
		return nil, err
	}

	activating := to == models.CampaignQueued || to == models.CampaignRunning
	resuming := c.Status == models.CampaignPaused && to == models.CampaignRunning
	if activating && !resuming {
		if err := checkEntryGuards(c); err != nil {
			return nil, err
		}
	}

	if err := e.campaigns.TransitionStatus(id, c.Status, to, reason, e.now()); err != nil {
		return nil, err
	}

	e.logger.Info("campaign transitioned",
		"campaign_id", id, "from", c.Status, "to", to, "reason", reason)

	return e.campaigns.GetByID(id)
}

func checkEntryGuards(c *models.Campaign) error {
	var missing []string
	if c.TemplateID == "" {
		missing = append(missing, "template")
	}
	if c.Metrics.TotalLeads < 1 {
		missing = append(missing, "leads")
	}
	if len(c.Schedule.ScheduledDates) < 1 {
		missing = append(missing, "scheduled_dates")
	}
	if len(missing) > 0 {
		return &EntryGuardError{Missing: missing}
	}
	return nil
}
