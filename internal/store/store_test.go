package store

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/models"
)

// setupTestDB creates an in-memory SQLite database with all migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	raw, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { raw.Close() })

	// A second connection would see a different in-memory database.
	raw.SetMaxOpenConns(1)

	if _, err := raw.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	db := &DB{raw}
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return raw
}

func testCampaign() *models.Campaign {
	return &models.Campaign{
		Name:       "Q3 Outreach",
		TemplateID: "tmpl-1",
		SenderID:   "sender-1",
		Schedule: models.Schedule{
			WorkingHours:   models.Window{Start: "09:00", End: "17:00"},
			PeakHours:      models.Window{Start: "11:00", End: "14:00"},
			Timezone:       "UTC",
			ScheduledDates: []string{"2026-09-01"},
			DailyLimit:     100,
			BatchSize:      20,
		},
		DelayConfig:  models.DelayConfig{MinDelayMs: 30000, MaxDelayMs: 300000},
		SendCriteria: models.SendCriteria{AllowCatchAll: true},
	}
}

func TestCampaignCreateGetRoundtrip(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCampaignRepository(db)

	c := testCampaign()
	if err := repo.Create(c); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.GetByID(c.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetByID() = nil, want campaign")
	}
	if got.Status != models.CampaignDraft {
		t.Errorf("Status = %s, want draft", got.Status)
	}
	if got.Schedule.DailyLimit != 100 || got.Schedule.Timezone != "UTC" {
		t.Errorf("Schedule not round-tripped: %+v", got.Schedule)
	}
	if !got.SendCriteria.AllowCatchAll {
		t.Error("SendCriteria.AllowCatchAll lost in round-trip")
	}
}

func TestCampaignGetByIDNotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCampaignRepository(db)

	got, err := repo.GetByID("missing")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got != nil {
		t.Errorf("GetByID() = %+v, want nil", got)
	}
}

func TestCampaignTransitionStatus(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCampaignRepository(db)
	now := time.Now()

	c := testCampaign()
	if err := repo.Create(c); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	steps := []struct {
		from, to models.CampaignStatus
	}{
		{models.CampaignDraft, models.CampaignQueued},
		{models.CampaignQueued, models.CampaignRunning},
	}
	for _, s := range steps {
		if err := repo.TransitionStatus(c.ID, s.from, s.to, "", now); err != nil {
			t.Fatalf("TransitionStatus(%s -> %s) error = %v", s.from, s.to, err)
		}
	}

	// Conditional update must reject a stale expected status.
	if err := repo.TransitionStatus(c.ID, models.CampaignQueued, models.CampaignRunning, "", now); err != ErrStatusConflict {
		t.Errorf("stale transition error = %v, want ErrStatusConflict", err)
	}

	// Pausing stamps paused_at and the reason.
	if err := repo.TransitionStatus(c.ID, models.CampaignRunning, models.CampaignPaused, "bounce_rate_exceeded", now); err != nil {
		t.Fatalf("pause error = %v", err)
	}
	got, _ := repo.GetByID(c.ID)
	if got.PausedAt == nil || got.PauseReason != "bounce_rate_exceeded" {
		t.Errorf("pause stamps missing: pausedAt=%v reason=%q", got.PausedAt, got.PauseReason)
	}

	// Resuming clears them.
	if err := repo.TransitionStatus(c.ID, models.CampaignPaused, models.CampaignRunning, "", now); err != nil {
		t.Fatalf("resume error = %v", err)
	}
	got, _ = repo.GetByID(c.ID)
	if got.PausedAt != nil || got.PauseReason != "" {
		t.Errorf("resume did not clear pause stamps: pausedAt=%v reason=%q", got.PausedAt, got.PauseReason)
	}

	// Completing stamps completed_at.
	if err := repo.TransitionStatus(c.ID, models.CampaignRunning, models.CampaignCompleted, "", now); err != nil {
		t.Fatalf("complete error = %v", err)
	}
	got, _ = repo.GetByID(c.ID)
	if got.CompletedAt == nil {
		t.Error("completed_at not stamped")
	}
}

func TestCampaignAddSentTodayResetsOnNewDate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCampaignRepository(db)
	now := time.Now()

	c := testCampaign()
	if err := repo.Create(c); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := repo.AddSentToday(c.ID, 5, "2026-08-31", now); err != nil {
		t.Fatalf("AddSentToday() error = %v", err)
	}
	if err := repo.AddSentToday(c.ID, 3, "2026-08-31", now); err != nil {
		t.Fatalf("AddSentToday() error = %v", err)
	}
	got, _ := repo.GetByID(c.ID)
	if got.Metrics.SentToday != 8 {
		t.Errorf("SentToday = %d, want 8", got.Metrics.SentToday)
	}

	// New date resets the counter instead of accumulating.
	if err := repo.AddSentToday(c.ID, 2, "2026-09-01", now); err != nil {
		t.Fatalf("AddSentToday() error = %v", err)
	}
	got, _ = repo.GetByID(c.ID)
	if got.Metrics.SentToday != 2 || got.Metrics.LastSentDate != "2026-09-01" {
		t.Errorf("SentToday = %d lastSentDate = %q, want 2 / 2026-09-01", got.Metrics.SentToday, got.Metrics.LastSentDate)
	}
}

func TestCampaignIncrementProcessedAdditive(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCampaignRepository(db)
	now := time.Now()

	c := testCampaign()
	if err := repo.Create(c); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	for _, n := range []int{5, 3, 7} {
		if err := repo.IncrementProcessed(c.ID, n, now); err != nil {
			t.Fatalf("IncrementProcessed() error = %v", err)
		}
	}
	got, _ := repo.GetByID(c.ID)
	if got.Metrics.ProcessedCount != 15 {
		t.Errorf("ProcessedCount = %d, want 15", got.Metrics.ProcessedCount)
	}
}

func createLead(t *testing.T, repo *LeadRepository, campaignID string, status models.LeadStatus, vs models.VerificationStatus) *models.Lead {
	t.Helper()
	l := &models.Lead{
		Email:              "lead@example.com",
		CampaignID:         campaignID,
		Status:             status,
		VerificationStatus: vs,
	}
	if err := repo.Create(l); err != nil {
		t.Fatalf("Create lead: %v", err)
	}
	return l
}

func TestLeadConditionalStatusUpdates(t *testing.T) {
	db := setupTestDB(t)
	campaigns := NewCampaignRepository(db)
	leads := NewLeadRepository(db)
	now := time.Now()

	c := testCampaign()
	if err := campaigns.Create(c); err != nil {
		t.Fatalf("Create campaign: %v", err)
	}
	l := createLead(t, leads, c.ID, models.LeadQueued, models.VerificationNone)

	ok, err := leads.UpdateStatusFrom(l.ID, models.LeadQueued, models.LeadVerifying, now)
	if err != nil || !ok {
		t.Fatalf("UpdateStatusFrom(queued -> verifying) = %v, %v", ok, err)
	}

	// Duplicate message: lead no longer queued, update is a no-op.
	ok, err = leads.UpdateStatusFrom(l.ID, models.LeadQueued, models.LeadVerifying, now)
	if err != nil {
		t.Fatalf("duplicate UpdateStatusFrom error = %v", err)
	}
	if ok {
		t.Error("duplicate UpdateStatusFrom() = true, want false")
	}

	ok, err = leads.SetVerificationResult(l.ID, models.VerificationOK, now)
	if err != nil || !ok {
		t.Fatalf("SetVerificationResult() = %v, %v", ok, err)
	}
	got, _ := leads.GetByID(l.ID)
	if got.Status != models.LeadQueued || got.VerificationStatus != models.VerificationOK {
		t.Errorf("after verification: status=%s vs=%s, want queued/ok", got.Status, got.VerificationStatus)
	}
	if got.VerifiedAt == nil {
		t.Error("verified_at not stamped")
	}
}

func TestSkippedLeadNeverReselected(t *testing.T) {
	db := setupTestDB(t)
	campaigns := NewCampaignRepository(db)
	leads := NewLeadRepository(db)
	now := time.Now()

	c := testCampaign()
	if err := campaigns.Create(c); err != nil {
		t.Fatalf("Create campaign: %v", err)
	}
	l := createLead(t, leads, c.ID, models.LeadQueued, models.VerificationInvalid)

	ok, err := leads.MarkSkipped(l.ID, "invalid_email_invalid", now)
	if err != nil || !ok {
		t.Fatalf("MarkSkipped() = %v, %v", ok, err)
	}

	for i := 0; i < 3; i++ {
		selected, err := leads.ListByCampaignAndStatus(c.ID, models.LeadQueued, 100)
		if err != nil {
			t.Fatalf("ListByCampaignAndStatus() error = %v", err)
		}
		if len(selected) != 0 {
			t.Fatalf("tick %d re-selected skipped lead", i)
		}
	}

	got, _ := leads.GetByID(l.ID)
	if got.SkipReason != "invalid_email_invalid" {
		t.Errorf("SkipReason = %q, want invalid_email_invalid", got.SkipReason)
	}
}

func TestLeadMessageIDCorrelation(t *testing.T) {
	db := setupTestDB(t)
	campaigns := NewCampaignRepository(db)
	leads := NewLeadRepository(db)
	now := time.Now()

	c := testCampaign()
	if err := campaigns.Create(c); err != nil {
		t.Fatalf("Create campaign: %v", err)
	}
	l := createLead(t, leads, c.ID, models.LeadQueued, models.VerificationOK)

	ok, err := leads.MarkSending(l.ID, "msg-123", now)
	if err != nil || !ok {
		t.Fatalf("MarkSending() = %v, %v", ok, err)
	}

	got, err := leads.GetByMessageID("msg-123")
	if err != nil {
		t.Fatalf("GetByMessageID() error = %v", err)
	}
	if got == nil || got.ID != l.ID {
		t.Fatalf("GetByMessageID() = %+v, want lead %s", got, l.ID)
	}

	changed, err := leads.MarkBounced(l.ID, models.BounceHard, "general", now)
	if err != nil || !changed {
		t.Fatalf("MarkBounced() = %v, %v", changed, err)
	}
	got, _ = leads.GetByID(l.ID)
	if got.Status != models.LeadBounced || got.BounceType != models.BounceHard {
		t.Errorf("after bounce: status=%s type=%s", got.Status, got.BounceType)
	}

	// A redelivered bounce finds the lead already terminal and reports no change
	changed, err = leads.MarkBounced(l.ID, models.BounceHard, "general", now)
	if err != nil {
		t.Fatalf("MarkBounced() repeat error = %v", err)
	}
	if changed {
		t.Error("MarkBounced() applied twice, want no-op on repeat")
	}

	unknown, err := leads.GetByMessageID("missing")
	if err != nil || unknown != nil {
		t.Errorf("GetByMessageID(missing) = %+v, %v, want nil, nil", unknown, err)
	}
}

func TestStatsUpsert(t *testing.T) {
	db := setupTestDB(t)
	stats := NewStatsRepository(db)

	if err := stats.AddSent("2026-09-01", 100); err != nil {
		t.Fatalf("AddSent() error = %v", err)
	}
	if err := stats.AddSent("2026-09-01", 50); err != nil {
		t.Fatalf("AddSent() error = %v", err)
	}
	if err := stats.AddBounced("2026-09-01", models.BounceHard, 4); err != nil {
		t.Fatalf("AddBounced() error = %v", err)
	}
	if err := stats.AddBounced("2026-09-01", models.BounceSoft, 2); err != nil {
		t.Fatalf("AddBounced() error = %v", err)
	}
	if err := stats.AddComplained("2026-09-01", 1); err != nil {
		t.Fatalf("AddComplained() error = %v", err)
	}

	got, err := stats.Get("2026-09-01")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Sent != 150 || got.Bounced() != 6 || got.Complained != 1 {
		t.Errorf("stats = %+v, want sent=150 bounced=6 complained=1", got)
	}

	empty, err := stats.Get("2026-09-02")
	if err != nil {
		t.Fatalf("Get(empty) error = %v", err)
	}
	if empty.Sent != 0 {
		t.Errorf("empty date sent = %d, want 0", empty.Sent)
	}
}

func TestTemplateRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTemplateRepository(db)

	tmpl := &models.Template{
		Name:    "intro",
		Subject: "Quick question, {{.FirstName}}",
		Text:    "Hi {{.FirstName}}",
	}
	if err := repo.Create(tmpl); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if tmpl.ID == "" {
		t.Fatal("expected ID to be assigned")
	}

	got, err := repo.GetByID(tmpl.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got == nil || got.Subject != tmpl.Subject {
		t.Fatalf("got = %+v, want stored subject", got)
	}

	missing, err := repo.GetByID("nope")
	if err != nil {
		t.Fatalf("GetByID(missing) error = %v", err)
	}
	if missing != nil {
		t.Errorf("missing = %+v, want nil", missing)
	}

	got.Subject = "Following up, {{.FirstName}}"
	if err := repo.Update(got); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	again, err := repo.GetByID(tmpl.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if again.Subject != "Following up, {{.FirstName}}" {
		t.Errorf("subject = %q after update", again.Subject)
	}

	if err := repo.Update(&models.Template{ID: "nope"}); err == nil {
		t.Error("Update(missing) expected error")
	}

	list, err := repo.List(0, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 {
		t.Errorf("len(list) = %d, want 1", len(list))
	}

	if err := repo.Delete(tmpl.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	gone, err := repo.GetByID(tmpl.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if gone != nil {
		t.Errorf("template still present after delete")
	}
}
