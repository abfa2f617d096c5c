package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/models"
)

type LeadRepository struct {
	db *sql.DB
}

func NewLeadRepository(db *sql.DB) *LeadRepository {
	return &LeadRepository{db: db}
}

// Create inserts a new lead
func (r *LeadRepository) Create(l *models.Lead) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.Status == "" {
		l.Status = models.LeadPendingImport
	}
	l.CreatedAt = time.Now()
	l.UpdatedAt = l.CreatedAt

	var campaignID any
	if l.CampaignID != "" {
		campaignID = l.CampaignID
	}

	_, err := r.db.Exec(`
		INSERT INTO leads (id, email, full_name, company_name, campaign_id, status, verification_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.Email, l.FullName, l.CompanyName, campaignID, l.Status, l.VerificationStatus, l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create lead: %w", err)
	}
	return nil
}

// GetByID returns a lead by ID, nil if not found
func (r *LeadRepository) GetByID(id string) (*models.Lead, error) {
	row := r.db.QueryRow(leadSelect+" WHERE id = ?", id)
	l, err := scanLead(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return l, err
}

// GetByMessageID returns the lead correlated to a provider message ID,
// nil if no lead carries it.
func (r *LeadRepository) GetByMessageID(messageID string) (*models.Lead, error) {
	if messageID == "" {
		return nil, nil
	}
	row := r.db.QueryRow(leadSelect+" WHERE provider_message_id = ?", messageID)
	l, err := scanLead(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return l, err
}

// ListByCampaignAndStatus returns up to limit leads for a campaign in the
// given workflow status, oldest first. This is the orchestrator's
// query-filtered selection: terminal leads are never returned because
// they never re-enter a selectable status.
func (r *LeadRepository) ListByCampaignAndStatus(campaignID string, status models.LeadStatus, limit int) ([]*models.Lead, error) {
	rows, err := r.db.Query(leadSelect+`
		WHERE campaign_id = ? AND status = ?
		ORDER BY created_at LIMIT ?`, campaignID, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var leads []*models.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

// CountInFlight counts leads still moving through the pipeline for a
// campaign (queued, verifying, or sending). Zero means the campaign has
// nothing left to do.
func (r *LeadRepository) CountInFlight(campaignID string) (int, error) {
	var n int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM leads
		WHERE campaign_id = ? AND status IN (?, ?, ?)`,
		campaignID, models.LeadQueued, models.LeadVerifying, models.LeadSending,
	).Scan(&n)
	return n, err
}

// UpdateStatusFrom moves a lead between workflow statuses with a
// conditional update. Returns false when the lead was not in the expected
// status, which makes duplicate queue deliveries harmless.
func (r *LeadRepository) UpdateStatusFrom(id string, from, to models.LeadStatus, now time.Time) (bool, error) {
	res, err := r.db.Exec(`
		UPDATE leads SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, now, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to update lead %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// UpdateStatusBatch applies UpdateStatusFrom to every ID and returns the
// IDs that could not be moved. It satisfies reliability.BatchWriter so
// the residual subset can be retried.
func (r *LeadRepository) UpdateStatusBatch(ids []string, from, to models.LeadStatus, now time.Time) ([]string, error) {
	var unprocessed []string
	var lastErr error
	for _, id := range ids {
		ok, err := r.UpdateStatusFrom(id, from, to, now)
		if err != nil {
			unprocessed = append(unprocessed, id)
			lastErr = err
			continue
		}
		if !ok {
			// Already moved elsewhere; nothing to retry.
			continue
		}
	}
	return unprocessed, lastErr
}

// MarkSkipped puts a lead into the terminal SKIPPED state with a
// machine-readable reason. Conditional on QUEUED so a lead can only be
// skipped out of the selectable state.
func (r *LeadRepository) MarkSkipped(id, reason string, now time.Time) (bool, error) {
	res, err := r.db.Exec(`
		UPDATE leads SET status = ?, skip_reason = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		models.LeadSkipped, reason, now, id, models.LeadQueued)
	if err != nil {
		return false, fmt.Errorf("failed to skip lead %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SetVerificationResult records a verification outcome and returns the
// lead to QUEUED for re-evaluation on the next tick. Conditional on
// VERIFYING so duplicate verification messages cannot clobber later state.
func (r *LeadRepository) SetVerificationResult(id string, vs models.VerificationStatus, now time.Time) (bool, error) {
	res, err := r.db.Exec(`
		UPDATE leads SET verification_status = ?, verified_at = ?, status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		vs, now, models.LeadQueued, now, id, models.LeadVerifying)
	if err != nil {
		return false, fmt.Errorf("failed to record verification for lead %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkSending moves a lead to SENDING and stamps the provider message ID
// that later delivery feedback will carry.
func (r *LeadRepository) MarkSending(id, messageID string, now time.Time) (bool, error) {
	res, err := r.db.Exec(`
		UPDATE leads SET status = ?, provider_message_id = ?, sent_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		models.LeadSending, messageID, now, now, id, models.LeadQueued)
	if err != nil {
		return false, fmt.Errorf("failed to mark lead %s sending: %w", id, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkBounced records a bounce with its classification. Conditional on
// the lead still being in a post-dispatch state so a redelivered bounce
// notification is a no-op.
func (r *LeadRepository) MarkBounced(id string, bounceType models.BounceType, subType string, now time.Time) (bool, error) {
	res, err := r.db.Exec(`
		UPDATE leads SET status = ?, bounce_type = ?, bounce_sub_type = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		models.LeadBounced, bounceType, subType, now, id,
		models.LeadSending, models.LeadSent)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkComplained records a spam complaint and unsubscribes the lead.
// Conditional like MarkBounced.
func (r *LeadRepository) MarkComplained(id string, now time.Time) (bool, error) {
	res, err := r.db.Exec(`
		UPDATE leads SET status = ?, unsubscribed = 1, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		models.LeadComplained, now, id,
		models.LeadSending, models.LeadSent)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkDelivered records a successful delivery timestamp. Conditional on
// a pre-delivery state so a duplicate notification cannot resurrect a
// lead that has since bounced or complained.
func (r *LeadRepository) MarkDelivered(id string, deliveredAt time.Time) (bool, error) {
	res, err := r.db.Exec(`
		UPDATE leads SET status = ?, delivered_at = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		models.LeadDelivered, deliveredAt, time.Now(), id,
		models.LeadSending, models.LeadSent)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

const leadSelect = `
	SELECT id, email, full_name, company_name, campaign_id, status, verification_status,
		skip_reason, bounce_type, bounce_sub_type, unsubscribed, provider_message_id,
		verified_at, sent_at, delivered_at, created_at, updated_at
	FROM leads`

func scanLead(row rowScanner) (*models.Lead, error) {
	l := &models.Lead{}
	var campaignID sql.NullString
	var verifiedAt, sentAt, deliveredAt sql.NullTime

	err := row.Scan(
		&l.ID, &l.Email, &l.FullName, &l.CompanyName, &campaignID, &l.Status, &l.VerificationStatus,
		&l.SkipReason, &l.BounceType, &l.BounceSubType, &l.Unsubscribed, &l.ProviderMessageID,
		&verifiedAt, &sentAt, &deliveredAt, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	l.CampaignID = campaignID.String
	if verifiedAt.Valid {
		l.VerifiedAt = &verifiedAt.Time
	}
	if sentAt.Valid {
		l.SentAt = &sentAt.Time
	}
	if deliveredAt.Valid {
		l.DeliveredAt = &deliveredAt.Time
	}
	return l, nil
}
