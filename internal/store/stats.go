package store

import (
	"database/sql"

	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/models"
)

// DailyStats holds the global per-day delivery counters the reputation
// guard computes its rates from.
type DailyStats struct {
	Date        string
	Sent        int
	Delivered   int
	BouncedHard int
	BouncedSoft int
	Complained  int
}

// Bounced returns the combined hard and soft bounce count
func (s DailyStats) Bounced() int {
	return s.BouncedHard + s.BouncedSoft
}

type StatsRepository struct {
	db *sql.DB
}

func NewStatsRepository(db *sql.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// AddSent increments the global sent counter for a date
func (r *StatsRepository) AddSent(date string, n int) error {
	return r.upsert(date, "sent", n)
}

// AddDelivered increments the global delivered counter for a date
func (r *StatsRepository) AddDelivered(date string, n int) error {
	return r.upsert(date, "delivered", n)
}

// AddBounced increments the hard or soft bounce counter for a date
func (r *StatsRepository) AddBounced(date string, bounceType models.BounceType, n int) error {
	column := "bounced_soft"
	if bounceType == models.BounceHard {
		column = "bounced_hard"
	}
	return r.upsert(date, column, n)
}

// AddComplained increments the global complaint counter for a date
func (r *StatsRepository) AddComplained(date string, n int) error {
	return r.upsert(date, "complained", n)
}

// Get returns the counters for a date; zero values when no row exists
func (r *StatsRepository) Get(date string) (DailyStats, error) {
	s := DailyStats{Date: date}
	err := r.db.QueryRow(`
		SELECT sent, delivered, bounced_hard, bounced_soft, complained
		FROM daily_stats WHERE date = ?`, date,
	).Scan(&s.Sent, &s.Delivered, &s.BouncedHard, &s.BouncedSoft, &s.Complained)
	if err == sql.ErrNoRows {
		return s, nil
	}
	return s, err
}

// upsert does a create-if-missing-else-increment on one counter column.
// Column names are fixed by the callers above, never caller input.
func (r *StatsRepository) upsert(date, column string, n int) error {
	_, err := r.db.Exec(`
		INSERT INTO daily_stats (date, `+column+`) VALUES (?, ?)
		ON CONFLICT(date) DO UPDATE SET `+column+` = `+column+` + excluded.`+column,
		date, n)
	return err
}
