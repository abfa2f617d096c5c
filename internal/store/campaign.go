package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/models"
)

type CampaignRepository struct {
	db *sql.DB
}

func NewCampaignRepository(db *sql.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// ErrStatusConflict is returned when a conditional status update finds the
// record no longer in the expected state.
var ErrStatusConflict = fmt.Errorf("status changed concurrently")

// Create creates a new campaign in DRAFT
func (r *CampaignRepository) Create(c *models.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Status == "" {
		c.Status = models.CampaignDraft
	}
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt

	schedule, err := json.Marshal(c.Schedule)
	if err != nil {
		return fmt.Errorf("marshal schedule: %w", err)
	}
	delayCfg, err := json.Marshal(c.DelayConfig)
	if err != nil {
		return fmt.Errorf("marshal delay config: %w", err)
	}
	criteria, err := json.Marshal(c.SendCriteria)
	if err != nil {
		return fmt.Errorf("marshal send criteria: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO campaigns (id, name, status, template_id, sender_id, schedule, delay_config, send_criteria, total_leads, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Status, c.TemplateID, c.SenderID, string(schedule), string(delayCfg), string(criteria), c.Metrics.TotalLeads, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

// GetByID returns a campaign by ID, nil if not found
func (r *CampaignRepository) GetByID(id string) (*models.Campaign, error) {
	row := r.db.QueryRow(campaignSelect+" WHERE id = ?", id)
	c, err := scanCampaign(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// ListByStatus returns all campaigns in the given status
func (r *CampaignRepository) ListByStatus(status models.CampaignStatus) ([]*models.Campaign, error) {
	rows, err := r.db.Query(campaignSelect+" WHERE status = ? ORDER BY created_at", status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var campaigns []*models.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

// TransitionStatus moves a campaign from one status to another with a
// conditional update, stamping paused_at / pause_reason / completed_at as
// the target state requires. The caller validates the edge against the
// transition table first; this only guards against concurrent movement.
func (r *CampaignRepository) TransitionStatus(id string, from, to models.CampaignStatus, reason string, now time.Time) error {
	query := "UPDATE campaigns SET status = ?, updated_at = ?"
	args := []any{to, now}

	switch {
	case to == models.CampaignPaused:
		query += ", paused_at = ?, pause_reason = ?"
		args = append(args, now, reason)
	case from == models.CampaignPaused && to == models.CampaignRunning:
		query += ", paused_at = NULL, pause_reason = ''"
	case to == models.CampaignCompleted:
		query += ", completed_at = ?"
		args = append(args, now)
	}

	query += " WHERE id = ? AND status = ?"
	args = append(args, id, from)

	res, err := r.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to transition campaign %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStatusConflict
	}
	return nil
}

// IncrementProcessed adds n to processed_count additively. The counter is
// never overwritten, so repeated partial ticks accumulate correctly.
func (r *CampaignRepository) IncrementProcessed(id string, n int, now time.Time) error {
	_, err := r.db.Exec(`
		UPDATE campaigns SET processed_count = processed_count + ?, last_activity_at = ?, updated_at = ?
		WHERE id = ?`, n, now, now, id)
	return err
}

// AddSentToday adds n to today's send count, resetting the counter when
// the stored last_sent_date is a different day.
func (r *CampaignRepository) AddSentToday(id string, n int, date string, now time.Time) error {
	_, err := r.db.Exec(`
		UPDATE campaigns SET
			sent_today = CASE WHEN last_sent_date = ? THEN sent_today + ? ELSE ? END,
			last_sent_date = ?,
			last_activity_at = ?,
			updated_at = ?
		WHERE id = ?`, date, n, n, date, now, now, id)
	return err
}

// IncrementCounter adds 1 to one of the delivery-feedback counters.
// Only whitelisted column names are accepted.
func (r *CampaignRepository) IncrementCounter(id, column string) error {
	switch column {
	case "delivered_count", "bounced_count", "complained_count":
	default:
		return fmt.Errorf("unknown campaign counter %q", column)
	}
	_, err := r.db.Exec(
		"UPDATE campaigns SET "+column+" = "+column+" + 1, updated_at = ? WHERE id = ?",
		time.Now(), id)
	return err
}

// SetTotalLeads updates the assigned-lead count
func (r *CampaignRepository) SetTotalLeads(id string, total int) error {
	_, err := r.db.Exec("UPDATE campaigns SET total_leads = ?, updated_at = ? WHERE id = ?",
		total, time.Now(), id)
	return err
}

const campaignSelect = `
	SELECT id, name, status, template_id, sender_id, schedule, delay_config, send_criteria,
		total_leads, processed_count, sent_today, last_sent_date,
		delivered_count, bounced_count, complained_count,
		paused_at, pause_reason, completed_at, last_activity_at, created_at, updated_at
	FROM campaigns`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (*models.Campaign, error) {
	c := &models.Campaign{}
	var schedule, delayCfg, criteria string
	var templateID, senderID, pauseReason sql.NullString
	var pausedAt, completedAt, lastActivity sql.NullTime

	err := row.Scan(
		&c.ID, &c.Name, &c.Status, &templateID, &senderID, &schedule, &delayCfg, &criteria,
		&c.Metrics.TotalLeads, &c.Metrics.ProcessedCount, &c.Metrics.SentToday, &c.Metrics.LastSentDate,
		&c.Metrics.DeliveredCount, &c.Metrics.BouncedCount, &c.Metrics.ComplainedCount,
		&pausedAt, &pauseReason, &completedAt, &lastActivity, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(schedule), &c.Schedule); err != nil {
		return nil, fmt.Errorf("unmarshal schedule for campaign %s: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(delayCfg), &c.DelayConfig); err != nil {
		return nil, fmt.Errorf("unmarshal delay config for campaign %s: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(criteria), &c.SendCriteria); err != nil {
		return nil, fmt.Errorf("unmarshal send criteria for campaign %s: %w", c.ID, err)
	}

	c.TemplateID = templateID.String
	c.SenderID = senderID.String
	c.PauseReason = pauseReason.String
	if pausedAt.Valid {
		c.PausedAt = &pausedAt.Time
	}
	if completedAt.Valid {
		c.CompletedAt = &completedAt.Time
	}
	if lastActivity.Valid {
		c.LastActivity = &lastActivity.Time
	}
	return c, nil
}
