package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beaconcrm/outreach-engine/internal/core/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestLimiter(repo *memRepo, now time.Time) *RateLimiter {
	l := NewRateLimiter(testLogger(), repo, func() domain.LimitDefaults {
		return domain.DefaultConfig().Limits
	})
	l.now = func() time.Time { return now }
	return l
}

// Wednesday inside working hours.
var midWeek = time.Date(2025, 1, 8, 10, 30, 0, 0, time.UTC)

func TestIsWithinLimits_Allowed(t *testing.T) {
	repo := newMemRepo()
	limiter := newTestLimiter(repo, midWeek)

	verdict, err := limiter.IsWithinLimits(context.Background(), "u1", domain.ActionSendInvitation)
	require.NoError(t, err)
	assert.True(t, verdict.Allowed)
}

func TestIsWithinLimits_MinSpacing(t *testing.T) {
	repo := newMemRepo()
	last := midWeek.Add(-30 * time.Second)
	repo.counters["u1/invitation"] = domain.ActionCounters{
		UserID: "u1", Family: "invitation",
		ActionsThisHour: 1, HourStartedAt: midWeek.Truncate(time.Hour),
		ActionsToday: 1, DayStartedAt: midWeek.Truncate(24 * time.Hour),
		ActionsThisWeek: 1, WeekStartedAt: domain.StartOfWeek(midWeek),
		LastActionAt: &last,
	}
	limiter := newTestLimiter(repo, midWeek)

	verdict, err := limiter.IsWithinLimits(context.Background(), "u1", domain.ActionSendInvitation)
	require.NoError(t, err)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, "min_spacing", verdict.Reason)
	// Default invitation spacing is 90s, 30s have passed.
	assert.Equal(t, 60*time.Second, verdict.Wait)
}

func TestIsWithinLimits_OutsideWorkingHours(t *testing.T) {
	repo := newMemRepo()
	evening := time.Date(2025, 1, 8, 20, 0, 0, 0, time.UTC)
	limiter := newTestLimiter(repo, evening)

	verdict, err := limiter.IsWithinLimits(context.Background(), "u1", domain.ActionSendMessage)
	require.NoError(t, err)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, "outside_working_hours", verdict.Reason)
	// Next window opens Thursday 09:00.
	assert.Equal(t, 13*time.Hour, verdict.Wait)
}

func TestNextAvailableSlot_HourlyCapRollsToNextBucket(t *testing.T) {
	repo := newMemRepo()
	repo.counters["u1/invitation"] = domain.ActionCounters{
		UserID: "u1", Family: "invitation",
		ActionsThisHour: 10, HourStartedAt: midWeek.Truncate(time.Hour),
		ActionsToday: 10, DayStartedAt: midWeek.Truncate(24 * time.Hour),
		ActionsThisWeek: 10, WeekStartedAt: domain.StartOfWeek(midWeek),
	}
	limiter := newTestLimiter(repo, midWeek)

	slot, err := limiter.NextAvailableSlot(context.Background(), "u1", domain.ActionSendInvitation, 0)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 8, 11, 0, 0, 0, time.UTC), slot)
}

func TestNextAvailableSlot_EveningSnapsToNextMorning(t *testing.T) {
	repo := newMemRepo()
	evening := time.Date(2025, 1, 8, 20, 0, 0, 0, time.UTC)
	limiter := newTestLimiter(repo, evening)

	slot, err := limiter.NextAvailableSlot(context.Background(), "u1", domain.ActionVisitProfile, 15*time.Second)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 9, 9, 0, 0, 0, time.UTC), slot)
}

func TestNextAvailableSlot_WeekendSkipped(t *testing.T) {
	repo := newMemRepo()
	saturday := time.Date(2025, 1, 11, 12, 0, 0, 0, time.UTC)
	limiter := newTestLimiter(repo, saturday)

	slot, err := limiter.NextAvailableSlot(context.Background(), "u1", domain.ActionSendMessage, 0)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 13, 9, 0, 0, 0, time.UTC), slot)
	assert.Equal(t, time.Monday, slot.Weekday())
}

func TestNextAvailableSlot_Deterministic(t *testing.T) {
	repo := newMemRepo()
	last := midWeek.Add(-10 * time.Second)
	repo.counters["u1/message"] = domain.ActionCounters{
		UserID: "u1", Family: "message",
		ActionsThisHour: 3, HourStartedAt: midWeek.Truncate(time.Hour),
		ActionsToday: 3, DayStartedAt: midWeek.Truncate(24 * time.Hour),
		ActionsThisWeek: 3, WeekStartedAt: domain.StartOfWeek(midWeek),
		LastActionAt: &last,
	}
	limiter := newTestLimiter(repo, midWeek)

	first, err := limiter.NextAvailableSlot(context.Background(), "u1", domain.ActionSendMessage, 0)
	require.NoError(t, err)
	second, err := limiter.NextAvailableSlot(context.Background(), "u1", domain.ActionSendMessage, 0)
	require.NoError(t, err)
	assert.Equal(t, first, second, "slot must not move while counters are unchanged")
}

func TestEffectiveLimits_OverrideClamped(t *testing.T) {
	repo := newMemRepo()
	repo.limitSettings["u1"] = domain.LimitSettings{
		UserID: "u1",
		Families: map[string]domain.FamilyLimits{
			// Far above the safe band; must be clamped to the band max.
			"invitation": {HourlyCap: 1000, DailyCap: 1000, WeeklyCap: 10000},
		},
	}
	repo.counters["u1/invitation"] = domain.ActionCounters{
		UserID: "u1", Family: "invitation",
		ActionsThisHour: 60, HourStartedAt: midWeek.Truncate(time.Hour),
		ActionsToday: 60, DayStartedAt: midWeek.Truncate(24 * time.Hour),
		ActionsThisWeek: 60, WeekStartedAt: domain.StartOfWeek(midWeek),
	}
	limiter := newTestLimiter(repo, midWeek)

	verdict, err := limiter.IsWithinLimits(context.Background(), "u1", domain.ActionSendInvitation)
	require.NoError(t, err)
	assert.False(t, verdict.Allowed, "band max is 60/hour, override cannot exceed it")
	assert.Equal(t, "hourly_cap", verdict.Reason)
}

func TestRecordAction_NormalizesOldBuckets(t *testing.T) {
	repo := newMemRepo()
	limiter := newTestLimiter(repo, midWeek)
	ctx := context.Background()

	require.NoError(t, limiter.RecordAction(ctx, "u1", domain.ActionSendInvitation, midWeek))
	require.NoError(t, limiter.RecordAction(ctx, "u1", domain.ActionSendInvitation, midWeek.Add(2*time.Minute)))

	c, err := repo.GetCounters(ctx, "u1", "invitation")
	require.NoError(t, err)
	assert.Equal(t, 2, c.ActionsThisHour)

	// Next day: hour and day buckets roll, week keeps counting.
	nextDay := midWeek.AddDate(0, 0, 1)
	require.NoError(t, limiter.RecordAction(ctx, "u1", domain.ActionSendInvitation, nextDay))

	c, err = repo.GetCounters(ctx, "u1", "invitation")
	require.NoError(t, err)
	assert.Equal(t, 1, c.ActionsThisHour)
	assert.Equal(t, 1, c.ActionsToday)
	assert.Equal(t, 3, c.ActionsThisWeek)
}
