package models

import (
	"fmt"
	"time"
)

// CampaignStatus represents the lifecycle state of a campaign
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignQueued    CampaignStatus = "queued"
	CampaignRunning   CampaignStatus = "running"
	CampaignPaused    CampaignStatus = "paused"
	CampaignAborting  CampaignStatus = "aborting"
	CampaignAborted   CampaignStatus = "aborted"
	CampaignCompleted CampaignStatus = "completed"
	CampaignError     CampaignStatus = "error"
)

// campaignTransitions is the single source of truth for allowed status edges.
// Every mutator goes through ValidateCampaignTransition.
var campaignTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignDraft:     {CampaignQueued, CampaignAborted},
	CampaignQueued:    {CampaignRunning, CampaignPaused, CampaignDraft, CampaignAborted},
	CampaignRunning:   {CampaignPaused, CampaignAborting, CampaignCompleted, CampaignError},
	CampaignPaused:    {CampaignRunning, CampaignDraft, CampaignAborted},
	CampaignAborting:  {CampaignAborted, CampaignError},
	CampaignAborted:   {CampaignDraft},
	CampaignCompleted: {CampaignDraft},
	CampaignError:     {CampaignDraft, CampaignAborted},
}

// ErrInvalidTransition is returned when a status change is not an allowed edge.
type ErrInvalidTransition struct {
	From CampaignStatus
	To   CampaignStatus
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid campaign transition: %s -> %s", e.From, e.To)
}

// ValidateCampaignTransition reports whether from -> to is an allowed edge.
func ValidateCampaignTransition(from, to CampaignStatus) error {
	for _, allowed := range campaignTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return &ErrInvalidTransition{From: from, To: to}
}

// WindowTime is a time of day in "HH:MM" form.
type Window struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

// Schedule controls when and how fast a campaign sends
type Schedule struct {
	WorkingHours   Window   `json:"working_hours"`
	PeakHours      Window   `json:"peak_hours"`
	Timezone       string   `json:"timezone"`        // IANA name
	ScheduledDates []string `json:"scheduled_dates"` // YYYY-MM-DD
	DailyLimit     int      `json:"daily_limit"`
	BatchSize      int      `json:"batch_size"`
}

// DelayConfig controls the per-lead send delay distribution.
// Mean/StdDev are in seconds; when nil, defaults are derived from Min/Max.
type DelayConfig struct {
	MinDelayMs     int      `json:"min_delay_ms"`
	MaxDelayMs     int      `json:"max_delay_ms"`
	GaussianMean   *float64 `json:"gaussian_mean,omitempty"`
	GaussianStdDev *float64 `json:"gaussian_std_dev,omitempty"`
}

// SendCriteria decides which verification outcomes are sendable
type SendCriteria struct {
	AllowCatchAll  bool     `json:"allow_catch_all"`
	AllowUnknown   bool     `json:"allow_unknown"`
	BlockedDomains []string `json:"blocked_domains,omitempty"`
}

// CampaignMetrics holds per-campaign aggregate counters
type CampaignMetrics struct {
	TotalLeads      int    `json:"total_leads"`
	ProcessedCount  int    `json:"processed_count"`
	SentToday       int    `json:"sent_today"`
	LastSentDate    string `json:"last_sent_date"` // YYYY-MM-DD in campaign timezone
	DeliveredCount  int    `json:"delivered_count"`
	BouncedCount    int    `json:"bounced_count"`
	ComplainedCount int    `json:"complained_count"`
}

// Campaign represents an outbound email campaign
type Campaign struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Status       CampaignStatus  `json:"status"`
	TemplateID   string          `json:"template_id"`
	SenderID     string          `json:"sender_id"`
	Schedule     Schedule        `json:"schedule"`
	DelayConfig  DelayConfig     `json:"delay_config"`
	SendCriteria SendCriteria    `json:"send_criteria"`
	Metrics      CampaignMetrics `json:"metrics"`
	PausedAt     *time.Time      `json:"paused_at,omitempty"`
	PauseReason  string          `json:"pause_reason,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	LastActivity *time.Time      `json:"last_activity_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// RemainingToday returns the unused portion of the daily quota. The quota
// resets when the last send happened on a different date than today (in
// the campaign's timezone).
func (c *Campaign) RemainingToday(today string) int {
	if c.Metrics.LastSentDate != today {
		return c.Schedule.DailyLimit
	}
	remaining := c.Schedule.DailyLimit - c.Metrics.SentToday
	if remaining < 0 {
		return 0
	}
	return remaining
}
