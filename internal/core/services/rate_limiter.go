package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/beaconcrm/outreach-engine/internal/core/domain"
)

// LimitsRepository is the minimal storage interface the limiter needs.
type LimitsRepository interface {
	GetCounters(ctx context.Context, userID domain.UserID, family string) (*domain.ActionCounters, error)
	RecordAction(ctx context.Context, userID domain.UserID, family string, at time.Time) error
	GetLimitSettings(ctx context.Context, userID domain.UserID) (*domain.LimitSettings, error)
}

// Verdict is the answer to "is this action allowed right now".
type Verdict struct {
	Allowed bool
	Reason  string
	Wait    time.Duration
}

// RateLimiter computes legal action timing per user and action family. It
// only computes, it never reserves: the hard cap is enforced again at
// report time as a safety net.
type RateLimiter struct {
	logger   *slog.Logger
	repo     LimitsRepository
	defaults func() domain.LimitDefaults
	now      func() time.Time
}

func NewRateLimiter(logger *slog.Logger, repo LimitsRepository, defaults func() domain.LimitDefaults) *RateLimiter {
	return &RateLimiter{
		logger:   logger,
		repo:     repo,
		defaults: defaults,
		now:      time.Now,
	}
}

// effectiveLimits resolves the user's limits for one family: operator
// overrides clamped into the safe band, engine defaults otherwise.
func (l *RateLimiter) effectiveLimits(ctx context.Context, userID domain.UserID, family string) (domain.FamilyLimits, domain.WorkingHours, error) {
	def := l.defaults()
	limits := def.Families[family]
	hours := def.WorkingHours

	settings, err := l.repo.GetLimitSettings(ctx, userID)
	if err != nil {
		return limits, hours, fmt.Errorf("load limit settings: %w", err)
	}

	override := settings.LimitsFor(family, limits)
	limits.HourlyCap = def.HourlyBand.Clamp(override.HourlyCap)
	limits.DailyCap = def.DailyBand.Clamp(override.DailyCap)
	limits.WeeklyCap = def.WeeklyBand.Clamp(override.WeeklyCap)
	if override.MinSpacing > 0 {
		limits.MinSpacing = override.MinSpacing
	}
	if settings.WorkingHours != nil {
		hours = *settings.WorkingHours
	}
	return limits, hours, nil
}

// IsWithinLimits answers whether an action of this type may be performed
// right now, and if not, roughly how long to wait.
func (l *RateLimiter) IsWithinLimits(ctx context.Context, userID domain.UserID, action domain.ActionType) (Verdict, error) {
	now := l.now().UTC()
	family := action.Family()

	limits, hours, err := l.effectiveLimits(ctx, userID, family)
	if err != nil {
		return Verdict{}, err
	}
	counters, err := l.repo.GetCounters(ctx, userID, family)
	if err != nil {
		return Verdict{}, fmt.Errorf("load counters: %w", err)
	}
	counters.Normalize(now)

	if !hours.Contains(now) {
		next := snapToWorkingHours(now, hours)
		return Verdict{Reason: "outside_working_hours", Wait: next.Sub(now)}, nil
	}
	if counters.LastActionAt != nil {
		if earliest := counters.LastActionAt.Add(limits.MinSpacing); earliest.After(now) {
			return Verdict{Reason: "min_spacing", Wait: earliest.Sub(now)}, nil
		}
	}
	if counters.ActionsThisHour >= limits.HourlyCap {
		return Verdict{Reason: "hourly_cap", Wait: counters.HourStartedAt.Add(time.Hour).Sub(now)}, nil
	}
	if counters.ActionsToday >= limits.DailyCap {
		return Verdict{Reason: "daily_cap", Wait: counters.DayStartedAt.AddDate(0, 0, 1).Sub(now)}, nil
	}
	if counters.ActionsThisWeek >= limits.WeeklyCap {
		return Verdict{Reason: "weekly_cap", Wait: counters.WeekStartedAt.AddDate(0, 0, 7).Sub(now)}, nil
	}
	return Verdict{Allowed: true}, nil
}

// NextAvailableSlot returns the earliest legal time for the action, at
// least minDelay from now. Greedy forward search: spacing first, then
// bucket headroom, then the working-hours window; ties break to the
// earliest feasible time. Deterministic given unchanged counters.
func (l *RateLimiter) NextAvailableSlot(ctx context.Context, userID domain.UserID, action domain.ActionType, minDelay time.Duration) (time.Time, error) {
	now := l.now().UTC()
	family := action.Family()

	limits, hours, err := l.effectiveLimits(ctx, userID, family)
	if err != nil {
		return time.Time{}, err
	}
	counters, err := l.repo.GetCounters(ctx, userID, family)
	if err != nil {
		return time.Time{}, fmt.Errorf("load counters: %w", err)
	}
	counters.Normalize(now)

	candidate := now.Add(minDelay)
	if counters.LastActionAt != nil {
		if spaced := counters.LastActionAt.Add(limits.MinSpacing); spaced.After(candidate) {
			candidate = spaced
		}
	}

	// Bucket advance and working-hours snap can each move the candidate
	// into territory the other needs to re-check; iterate to a fixpoint.
	for range 8 {
		next := advancePastFullBuckets(candidate, counters, limits)
		next = snapToWorkingHours(next, hours)
		if next.Equal(candidate) {
			break
		}
		candidate = next
	}

	if candidate.Before(now) {
		candidate = now
	}
	return candidate, nil
}

// RecordAction counts one attempt. Failed attempts still count: the cost
// was the attempt, not the outcome.
func (l *RateLimiter) RecordAction(ctx context.Context, userID domain.UserID, action domain.ActionType, at time.Time) error {
	return l.repo.RecordAction(ctx, userID, action.Family(), at.UTC())
}

// Snapshot captures the limits in effect for audit storage on a freshly
// scheduled instruction.
func (l *RateLimiter) Snapshot(ctx context.Context, userID domain.UserID, action domain.ActionType) (domain.RateLimitContext, error) {
	now := l.now().UTC()
	family := action.Family()

	limits, hours, err := l.effectiveLimits(ctx, userID, family)
	if err != nil {
		return domain.RateLimitContext{}, err
	}
	counters, err := l.repo.GetCounters(ctx, userID, family)
	if err != nil {
		return domain.RateLimitContext{}, err
	}
	counters.Normalize(now)

	return domain.RateLimitContext{
		HourlyCap:     limits.HourlyCap,
		DailyCap:      limits.DailyCap,
		WeeklyCap:     limits.WeeklyCap,
		MinSpacing:    limits.MinSpacing,
		UsedThisHour:  counters.ActionsThisHour,
		UsedToday:     counters.ActionsToday,
		WithinWorking: hours.Contains(now),
	}, nil
}

// advancePastFullBuckets moves the candidate to the start of the next
// bucket with headroom. Counters only describe the current wall-clock
// buckets, so anything beyond them has a clean slate.
func advancePastFullBuckets(candidate time.Time, c *domain.ActionCounters, limits domain.FamilyLimits) time.Time {
	hourEnd := c.HourStartedAt.Add(time.Hour)
	if candidate.Before(hourEnd) && c.ActionsThisHour >= limits.HourlyCap {
		candidate = hourEnd
	}
	dayEnd := c.DayStartedAt.AddDate(0, 0, 1)
	if candidate.Before(dayEnd) && c.ActionsToday >= limits.DailyCap {
		candidate = dayEnd
	}
	weekEnd := c.WeekStartedAt.AddDate(0, 0, 7)
	if candidate.Before(weekEnd) && c.ActionsThisWeek >= limits.WeeklyCap {
		candidate = weekEnd
	}
	return candidate
}

// snapToWorkingHours moves t forward to the next in-window timestamp,
// skipping weekends unless they are enabled.
func snapToWorkingHours(t time.Time, hours domain.WorkingHours) time.Time {
	if !hours.Enabled {
		return t
	}

	// Bounded scan: the window opens at least once within any 8 days.
	for range 9 {
		if !hours.IncludeWeekends {
			if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
				t = startOfNextDay(t, hours.StartHour)
				continue
			}
		}
		if t.Hour() < hours.StartHour {
			return time.Date(t.Year(), t.Month(), t.Day(), hours.StartHour, 0, 0, 0, t.Location())
		}
		if t.Hour() >= hours.EndHour {
			t = startOfNextDay(t, hours.StartHour)
			continue
		}
		return t
	}
	return t
}

func startOfNextDay(t time.Time, hour int) time.Time {
	next := t.AddDate(0, 0, 1)
	return time.Date(next.Year(), next.Month(), next.Day(), hour, 0, 0, 0, t.Location())
}
