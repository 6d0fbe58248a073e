package gaps

import (
	"time"

	"github.com/rolograph/rolograph/pkg/graph"
)

// LimiterConfig bounds how often the owner is interrupted with questions.
type LimiterConfig struct {
	// DailyCap is the maximum questions shown per calendar day.
	DailyCap int
	// Cooldown is the minimum interval between two shown questions.
	Cooldown time.Duration
	// DismissPauseAfter is the number of consecutive dismissals that pauses
	// questioning entirely.
	DismissPauseAfter int
	// DismissPause is how long that pause lasts.
	DismissPause time.Duration
}

// DenyReason explains why a question may not be shown now.
type DenyReason string

const (
	DenyNone     DenyReason = ""
	DenyDailyCap DenyReason = "daily_cap_reached"
	DenyCooldown DenyReason = "cooldown_active"
	DenyPaused   DenyReason = "paused_after_dismissals"
)

// Decide reports whether a question may be shown at now, given the owner's
// budget state. It is a pure function of its inputs so the policy is
// testable without storage. The state is not mutated.
func Decide(state *graph.RateLimitState, cfg LimiterConfig, now time.Time) DenyReason {
	if state.PausedUntil != nil && now.Before(*state.PausedUntil) {
		return DenyPaused
	}

	shownToday := state.ShownToday
	if !sameDay(state.Day, now) {
		// Calendar day rolled over; the counter starts fresh.
		shownToday = 0
	}
	if cfg.DailyCap > 0 && shownToday >= cfg.DailyCap {
		return DenyDailyCap
	}

	if state.LastShownAt != nil && cfg.Cooldown > 0 && now.Sub(*state.LastShownAt) < cfg.Cooldown {
		return DenyCooldown
	}

	return DenyNone
}

// RecordShown advances the state for a question shown at now.
func RecordShown(state *graph.RateLimitState, now time.Time) {
	if !sameDay(state.Day, now) {
		state.Day = truncateToDay(now)
		state.ShownToday = 0
	}
	state.ShownToday++
	shown := now
	state.LastShownAt = &shown
}

// RecordAnswered resets the dismissal streak: an answer means the owner is
// engaged, so any pending pause is lifted.
func RecordAnswered(state *graph.RateLimitState) {
	state.ConsecutiveDismisses = 0
	state.PausedUntil = nil
}

// RecordDismissed advances the dismissal streak and pauses questioning once
// the streak reaches the configured length.
func RecordDismissed(state *graph.RateLimitState, cfg LimiterConfig, now time.Time) {
	state.ConsecutiveDismisses++
	if cfg.DismissPauseAfter > 0 && state.ConsecutiveDismisses >= cfg.DismissPauseAfter {
		until := now.Add(cfg.DismissPause)
		state.PausedUntil = &until
		state.ConsecutiveDismisses = 0
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
