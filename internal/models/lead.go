package models

import "time"

// LeadStatus is the workflow position of a lead. It is orthogonal to
// VerificationStatus and never takes a verification-outcome value.
type LeadStatus string

const (
	LeadPendingImport LeadStatus = "pending_import"
	LeadQueued        LeadStatus = "queued"
	LeadVerifying     LeadStatus = "verifying"
	LeadSending       LeadStatus = "sending"
	LeadSent          LeadStatus = "sent"
	LeadDelivered     LeadStatus = "delivered"
	LeadBounced       LeadStatus = "bounced"
	LeadComplained    LeadStatus = "complained"
	LeadSkipped       LeadStatus = "skipped"
	LeadFailed        LeadStatus = "failed"
)

// leadTransitions encodes the lead lifecycle. Terminal states have no
// outgoing edges, so a skipped or bounced lead can never re-enter the
// pipeline regardless of query discipline.
var leadTransitions = map[LeadStatus][]LeadStatus{
	LeadPendingImport: {LeadQueued},
	LeadQueued:        {LeadVerifying, LeadSending, LeadSkipped},
	LeadVerifying:     {LeadQueued, LeadFailed},
	LeadSending:       {LeadQueued, LeadSent, LeadDelivered, LeadBounced, LeadComplained, LeadFailed},
	LeadSent:          {LeadDelivered, LeadBounced, LeadComplained},
}

// CanLeadTransition reports whether from -> to is an allowed lead edge.
func CanLeadTransition(from, to LeadStatus) bool {
	for _, allowed := range leadTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminalLeadStatus reports whether the orchestrator will never
// re-select a lead in this state.
func IsTerminalLeadStatus(s LeadStatus) bool {
	switch s {
	case LeadDelivered, LeadBounced, LeadComplained, LeadSkipped, LeadFailed:
		return true
	}
	return false
}

// VerificationStatus is the last verification outcome for a lead's email
type VerificationStatus string

const (
	VerificationNone       VerificationStatus = ""
	VerificationOK         VerificationStatus = "ok"
	VerificationInvalid    VerificationStatus = "invalid"
	VerificationCatchAll   VerificationStatus = "catch_all"
	VerificationUnknown    VerificationStatus = "unknown"
	VerificationDisposable VerificationStatus = "disposable"
	VerificationSpamtrap   VerificationStatus = "spamtrap"
	VerificationGreylisted VerificationStatus = "greylisted"
)

// BounceType splits bounces into hard and soft for reputation accounting
type BounceType string

const (
	BounceHard BounceType = "hard"
	BounceSoft BounceType = "soft"
)

// Lead represents a single contact in a campaign
type Lead struct {
	ID                 string             `json:"id"`
	Email              string             `json:"email"`
	FullName           string             `json:"full_name,omitempty"`
	CompanyName        string             `json:"company_name,omitempty"`
	CampaignID         string             `json:"campaign_id,omitempty"` // empty until assigned
	Status             LeadStatus         `json:"status"`
	VerificationStatus VerificationStatus `json:"verification_status,omitempty"`
	SkipReason         string             `json:"skip_reason,omitempty"` // set only when status=skipped
	BounceType         BounceType         `json:"bounce_type,omitempty"`
	BounceSubType      string             `json:"bounce_sub_type,omitempty"`
	Unsubscribed       bool               `json:"unsubscribed,omitempty"`
	ProviderMessageID  string             `json:"provider_message_id,omitempty"` // correlates delivery feedback
	VerifiedAt         *time.Time         `json:"verified_at,omitempty"`
	SentAt             *time.Time         `json:"sent_at,omitempty"`
	DeliveredAt        *time.Time         `json:"delivered_at,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}
