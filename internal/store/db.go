package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	*sql.DB
}

func New(path string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &DB{db}, nil
}

func (db *DB) Migrate() error {
	migrations := []string{
		migrationCampaigns,
		migrationLeads,
		migrationDailyStats,
		migrationTemplates,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

const migrationCampaigns = `
CREATE TABLE IF NOT EXISTS campaigns (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'draft',
    template_id TEXT,
    sender_id TEXT,
    schedule JSON NOT NULL,
    delay_config JSON NOT NULL,
    send_criteria JSON NOT NULL,
    total_leads INTEGER DEFAULT 0,
    processed_count INTEGER DEFAULT 0,
    sent_today INTEGER DEFAULT 0,
    last_sent_date TEXT DEFAULT '',
    delivered_count INTEGER DEFAULT 0,
    bounced_count INTEGER DEFAULT 0,
    complained_count INTEGER DEFAULT 0,
    paused_at TIMESTAMP,
    pause_reason TEXT DEFAULT '',
    completed_at TIMESTAMP,
    last_activity_at TIMESTAMP,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_campaigns_status ON campaigns(status);
`

const migrationLeads = `
CREATE TABLE IF NOT EXISTS leads (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL,
    full_name TEXT DEFAULT '',
    company_name TEXT DEFAULT '',
    campaign_id TEXT REFERENCES campaigns(id) ON DELETE SET NULL,
    status TEXT NOT NULL DEFAULT 'pending_import',
    verification_status TEXT DEFAULT '',
    skip_reason TEXT DEFAULT '',
    bounce_type TEXT DEFAULT '',
    bounce_sub_type TEXT DEFAULT '',
    unsubscribed INTEGER DEFAULT 0,
    provider_message_id TEXT DEFAULT '',
    verified_at TIMESTAMP,
    sent_at TIMESTAMP,
    delivered_at TIMESTAMP,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_leads_campaign_status ON leads(campaign_id, status);
CREATE INDEX IF NOT EXISTS idx_leads_message_id ON leads(provider_message_id);
`

const migrationTemplates = `
CREATE TABLE IF NOT EXISTS templates (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    subject TEXT NOT NULL,
    html TEXT DEFAULT '',
    text TEXT DEFAULT '',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

const migrationDailyStats = `
CREATE TABLE IF NOT EXISTS daily_stats (
    date TEXT PRIMARY KEY,
    sent INTEGER DEFAULT 0,
    delivered INTEGER DEFAULT 0,
    bounced_hard INTEGER DEFAULT 0,
    bounced_soft INTEGER DEFAULT 0,
    complained INTEGER DEFAULT 0
);
`
