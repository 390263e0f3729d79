package domain

import "time"

// ActionCounters tracks one user's usage for one action family. Buckets are
// reset lazily: on read, anything whose wall-clock boundary has passed is
// rolled forward. Boundaries only ever move forward, and a bucket resets at
// most once per boundary, so an overdue reset cannot double-fire within the
// same calendar day.
type ActionCounters struct {
	UserID UserID `json:"user_id"`
	Family string `json:"family"`

	ActionsThisHour int       `json:"actions_this_hour"`
	HourStartedAt   time.Time `json:"hour_started_at"`

	ActionsToday int       `json:"actions_today"`
	DayStartedAt time.Time `json:"day_started_at"`

	ActionsThisWeek int       `json:"actions_this_week"`
	WeekStartedAt   time.Time `json:"week_started_at"`

	LastActionAt *time.Time `json:"last_action_at,omitempty"`
}

// Normalize rolls expired buckets forward relative to now. Counters never
// go negative and boundaries never move backwards.
func (c *ActionCounters) Normalize(now time.Time) {
	hour := now.Truncate(time.Hour)
	if c.HourStartedAt.Before(hour) {
		c.HourStartedAt = hour
		c.ActionsThisHour = 0
	}
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if c.DayStartedAt.Before(day) {
		c.DayStartedAt = day
		c.ActionsToday = 0
	}
	week := StartOfWeek(now)
	if c.WeekStartedAt.Before(week) {
		c.WeekStartedAt = week
		c.ActionsThisWeek = 0
	}
}

// StartOfWeek returns midnight of the Monday of now's week.
func StartOfWeek(now time.Time) time.Time {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	offset := (int(now.Weekday()) + 6) % 7 // Monday = 0
	return day.AddDate(0, 0, -offset)
}

// CapBand is the safe envelope an operator-tuned cap must stay inside.
type CapBand struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Clamp forces v into the band.
func (b CapBand) Clamp(v int) int {
	if v < b.Min {
		return b.Min
	}
	if v > b.Max {
		return b.Max
	}
	return v
}

// FamilyLimits holds the effective caps for one action family.
type FamilyLimits struct {
	HourlyCap  int           `json:"hourly_cap"`
	DailyCap   int           `json:"daily_cap"`
	WeeklyCap  int           `json:"weekly_cap"`
	MinSpacing time.Duration `json:"min_spacing"`
}

// WorkingHours restricts scheduling to a daily window. Hours are in the
// engine's reference location (UTC by default).
type WorkingHours struct {
	Enabled         bool `json:"enabled"`
	StartHour       int  `json:"start_hour"`
	EndHour         int  `json:"end_hour"`
	IncludeWeekends bool `json:"include_weekends"`
}

// Contains reports whether t falls inside the window.
func (w WorkingHours) Contains(t time.Time) bool {
	if !w.Enabled {
		return true
	}
	if !w.IncludeWeekends {
		if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return false
		}
	}
	h := t.Hour()
	return h >= w.StartHour && h < w.EndHour
}

// LimitSettings is the full per-user throttling configuration. A nil
// WorkingHours means the engine default applies.
type LimitSettings struct {
	UserID       UserID                  `json:"user_id"`
	Families     map[string]FamilyLimits `json:"families"`
	WorkingHours *WorkingHours           `json:"working_hours,omitempty"`
}

// LimitsFor returns the limits for a family, falling back to def when the
// user has no override for it.
func (s LimitSettings) LimitsFor(family string, def FamilyLimits) FamilyLimits {
	if l, ok := s.Families[family]; ok {
		return l
	}
	return def
}
