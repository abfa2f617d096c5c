// Package schedule implements the time-of-day pacing model for campaign
// sends: a Gaussian intensity curve over the working-hours window whose
// integral approximates the daily limit, plus per-lead send delays.
package schedule

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/models"
)

const minutesPerDay = 24 * 60

// SlotVolume is the pacing decision for one scheduler slot.
type SlotVolume struct {
	Volume                int
	InWorkingHours        bool
	MinutesUntilWorkStart int
}

// ScheduledSend assigns a send delay to a lead.
type ScheduledSend struct {
	LeadID       string
	DelaySeconds int
}

// CalculateSlotVolume returns how many leads may be dispatched in the slot
// starting at now. Outside working hours the volume is zero and
// MinutesUntilWorkStart says how long until the window opens. Inside the
// window, intensity follows a Gaussian centered at the peak-hours midpoint,
// normalized so the sum over all slots in the window approximates the
// daily limit. Deterministic: no randomness here.
func CalculateSlotVolume(sched models.Schedule, now time.Time, slotMinutes, remainingQuota int) (SlotVolume, error) {
	if slotMinutes < 1 {
		slotMinutes = 1
	}

	loc, err := time.LoadLocation(sched.Timezone)
	if err != nil {
		return SlotVolume{}, fmt.Errorf("invalid timezone %q: %w", sched.Timezone, err)
	}
	local := now.In(loc)
	nowMin := local.Hour()*60 + local.Minute()

	workStart, err := parseClock(sched.WorkingHours.Start)
	if err != nil {
		return SlotVolume{}, fmt.Errorf("invalid working hours start: %w", err)
	}
	workEnd, err := parseClock(sched.WorkingHours.End)
	if err != nil {
		return SlotVolume{}, fmt.Errorf("invalid working hours end: %w", err)
	}
	if workEnd <= workStart {
		return SlotVolume{}, fmt.Errorf("working hours end %q not after start %q", sched.WorkingHours.End, sched.WorkingHours.Start)
	}

	if nowMin < workStart || nowMin >= workEnd {
		wait := workStart - nowMin
		if wait <= 0 {
			wait += minutesPerDay
		}
		return SlotVolume{Volume: 0, InWorkingHours: false, MinutesUntilWorkStart: wait}, nil
	}

	mean, sigma := curveParams(sched, workStart, workEnd)

	// Normalize numerically at slot granularity. Rounding the cumulative
	// curve rather than each slot independently keeps the sum over the
	// whole window equal to the daily limit even when individual slots
	// carry fractional volume.
	slotStart := workStart + ((nowMin - workStart) / slotMinutes * slotMinutes)

	var total, cumBefore, cumAfter float64
	for m := workStart; m < workEnd; m += slotMinutes {
		w := density(float64(m), mean, sigma)
		total += w
		if m < slotStart {
			cumBefore += w
		}
		if m <= slotStart {
			cumAfter += w
		}
	}
	if total == 0 {
		return SlotVolume{Volume: 0, InWorkingHours: true}, nil
	}

	limit := float64(sched.DailyLimit)
	volume := int(math.Round(limit*cumAfter/total) - math.Round(limit*cumBefore/total))
	if volume > remainingQuota {
		volume = remainingQuota
	}

	return SlotVolume{Volume: volume, InWorkingHours: true}, nil
}

// curveParams derives the Gaussian mean and spread from the schedule:
// mean at the peak-hours midpoint, spread scaled to the working-hours
// width. The exact curve is an implementation choice, only the boundary
// behavior and the total are contractual.
func curveParams(sched models.Schedule, workStart, workEnd int) (mean, sigma float64) {
	width := float64(workEnd - workStart)

	peakStart, errS := parseClock(sched.PeakHours.Start)
	peakEnd, errE := parseClock(sched.PeakHours.End)
	if errS != nil || errE != nil || peakEnd <= peakStart {
		// No usable peak window: center on the working window itself.
		mean = float64(workStart) + width/2
	} else {
		mean = float64(peakStart+peakEnd) / 2
	}

	sigma = width / 4
	if sigma < 30 {
		sigma = 30
	}
	return mean, sigma
}

func density(m, mean, sigma float64) float64 {
	d := (m - mean) / sigma
	return math.Exp(-0.5 * d * d)
}

// ScheduleEmailBatch draws an independent send delay for each lead from a
// normal distribution and clamps it to the configured bounds. Callers must
// additionally cap each delay at the downstream queue's maximum.
func ScheduleEmailBatch(leadIDs []string, campaignID string, cfg models.DelayConfig) []ScheduledSend {
	minSec := float64(cfg.MinDelayMs) / 1000
	maxSec := float64(cfg.MaxDelayMs) / 1000
	if maxSec < minSec {
		maxSec = minSec
	}

	mean := (minSec + maxSec) / 2
	if cfg.GaussianMean != nil {
		mean = *cfg.GaussianMean
	}
	stdDev := (maxSec - minSec) / 6
	if cfg.GaussianStdDev != nil {
		stdDev = *cfg.GaussianStdDev
	}

	sends := make([]ScheduledSend, 0, len(leadIDs))
	for _, id := range leadIDs {
		delay := mean + rand.NormFloat64()*stdDev
		if delay < minSec {
			delay = minSec
		}
		if delay > maxSec {
			delay = maxSec
		}
		sends = append(sends, ScheduledSend{LeadID: id, DelaySeconds: int(math.Round(delay))})
	}
	return sends
}

// IsCampaignScheduledToday reports whether today's date in the campaign
// timezone exactly matches one of the scheduled dates. Date computation
// goes through the IANA location, so DST shifts cannot skew the result.
func IsCampaignScheduledToday(dates []string, timezone string, now time.Time) (bool, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return false, fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}

	today := now.In(loc).Format("2006-01-02")
	for _, d := range dates {
		if d == today {
			return true, nil
		}
	}
	return false, nil
}

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}
