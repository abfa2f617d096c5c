package models

import "time"

// FeedbackType classifies a delivery-outcome notification
type FeedbackType string

const (
	FeedbackBounce    FeedbackType = "bounce"
	FeedbackComplaint FeedbackType = "complaint"
	FeedbackDelivery  FeedbackType = "delivery"
)

// FeedbackEnvelope is a provider notification about a previously
// dispatched message, correlated to a lead via MessageID.
type FeedbackEnvelope struct {
	Type          FeedbackType `json:"type"`
	MessageID     string       `json:"message_id"`
	BounceType    BounceType   `json:"bounce_type,omitempty"`
	BounceSubType string       `json:"bounce_sub_type,omitempty"`
	Diagnostic    string       `json:"diagnostic,omitempty"`
	Timestamp     time.Time    `json:"timestamp"`
}

// VerificationRequest is one entry in a verification-queue batch
type VerificationRequest struct {
	LeadID      string `json:"lead_id"`
	CampaignID  string `json:"campaign_id"`
	Email       string `json:"email"`
	FullName    string `json:"full_name,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
}

// DeliveryRequest is one entry in a delivery-queue batch. DelaySeconds
// is assigned by the scheduler and capped at the queue maximum.
type DeliveryRequest struct {
	LeadID       string `json:"lead_id"`
	CampaignID   string `json:"campaign_id"`
	Email        string `json:"email"`
	TemplateID   string `json:"template_id"`
	SenderID     string `json:"sender_id"`
	MessageID    string `json:"message_id"`
	DelaySeconds int    `json:"delay_seconds"`
}
