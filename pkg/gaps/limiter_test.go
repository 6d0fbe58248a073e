package gaps

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rolograph/rolograph/pkg/graph"
)

func testLimiterConfig() LimiterConfig {
	return LimiterConfig{
		DailyCap:          5,
		Cooldown:          2 * time.Hour,
		DismissPauseAfter: 3,
		DismissPause:      24 * time.Hour,
	}
}

func TestDecideAllowsFreshState(t *testing.T) {
	state := &graph.RateLimitState{}
	assert.Equal(t, DenyNone, Decide(state, testLimiterConfig(), time.Now()))
}

func TestDecideDailyCap(t *testing.T) {
	cfg := testLimiterConfig()
	now := time.Date(2026, 8, 29, 15, 0, 0, 0, time.UTC)

	state := &graph.RateLimitState{Day: truncateToDay(now), ShownToday: 5}
	assert.Equal(t, DenyDailyCap, Decide(state, cfg, now))

	// The counter belongs to yesterday; a new calendar day starts fresh even
	// if fewer than 24 hours have passed.
	state.Day = truncateToDay(now.Add(-10 * time.Hour))
	nextDay := now.Add(10 * time.Hour)
	assert.NotEqual(t, truncateToDay(now), truncateToDay(nextDay))
	assert.Equal(t, DenyNone, Decide(&graph.RateLimitState{
		Day: truncateToDay(now), ShownToday: 5,
	}, cfg, nextDay))
}

func TestDecideCooldown(t *testing.T) {
	cfg := testLimiterConfig()
	now := time.Now()
	recent := now.Add(-30 * time.Minute)

	state := &graph.RateLimitState{Day: truncateToDay(now), ShownToday: 1, LastShownAt: &recent}
	assert.Equal(t, DenyCooldown, Decide(state, cfg, now))

	old := now.Add(-3 * time.Hour)
	state.LastShownAt = &old
	assert.Equal(t, DenyNone, Decide(state, cfg, now))
}

func TestDecidePaused(t *testing.T) {
	cfg := testLimiterConfig()
	now := time.Now()
	until := now.Add(time.Hour)

	state := &graph.RateLimitState{PausedUntil: &until}
	assert.Equal(t, DenyPaused, Decide(state, cfg, now))

	past := now.Add(-time.Minute)
	state.PausedUntil = &past
	assert.Equal(t, DenyNone, Decide(state, cfg, now))
}

func TestRecordShownRollsDayOver(t *testing.T) {
	now := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	state := &graph.RateLimitState{Day: truncateToDay(now.Add(-24 * time.Hour)), ShownToday: 4}

	RecordShown(state, now)
	assert.Equal(t, 1, state.ShownToday)
	assert.Equal(t, truncateToDay(now), state.Day)
	assert.Equal(t, now, *state.LastShownAt)
}

func TestDismissStreakPausesAndAnswerResets(t *testing.T) {
	cfg := testLimiterConfig()
	now := time.Now()
	state := &graph.RateLimitState{}

	RecordDismissed(state, cfg, now)
	RecordDismissed(state, cfg, now)
	assert.Nil(t, state.PausedUntil)
	assert.Equal(t, 2, state.ConsecutiveDismisses)

	RecordDismissed(state, cfg, now)
	assert.NotNil(t, state.PausedUntil)
	assert.Equal(t, 0, state.ConsecutiveDismisses)
	assert.Equal(t, now.Add(cfg.DismissPause), *state.PausedUntil)

	RecordAnswered(state)
	assert.Nil(t, state.PausedUntil)
	assert.Equal(t, 0, state.ConsecutiveDismisses)
}
