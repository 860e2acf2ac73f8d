// Package phaseclock opens a settled round's reveal window and classifies an
// instant against it. Every timestamp is UTC with whole-second resolution.
package phaseclock

import (
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/vaxgame/go/internal/models"
)

// Clock is the subset of clockwork.Clock the game needs.
type Clock interface {
	Now() time.Time
}

var _ Clock = clockwork.NewRealClock()

// Now returns clock's current time truncated to seconds in UTC.
func Now(clock Clock) time.Time {
	return clock.Now().UTC().Truncate(time.Second)
}

// Open builds the phase row for a round settled at t0.
func Open(sessionID uuid.UUID, round int, t0 time.Time, watchWindowSeconds int) models.RoundPhase {
	if watchWindowSeconds < 0 {
		watchWindowSeconds = 0
	}
	start := t0.UTC().Truncate(time.Second)
	return models.RoundPhase{
		SessionID:      sessionID,
		RoundNumber:    round,
		DecisionEndsAt: start,
		WatchEndsAt:    start.Add(time.Duration(watchWindowSeconds) * time.Second),
	}
}

// Classify places now relative to a round's phase row. A nil phase means the
// round has not been settled.
func Classify(now time.Time, phase *models.RoundPhase) models.Phase {
	if phase == nil {
		return models.PhaseDecision
	}
	if now.Before(phase.WatchEndsAt) {
		return models.PhaseWatch
	}
	return models.PhaseDone
}

// Remaining returns how long the watch window still runs, or zero.
func Remaining(now time.Time, phase *models.RoundPhase) time.Duration {
	if phase == nil || !now.Before(phase.WatchEndsAt) {
		return 0
	}
	return phase.WatchEndsAt.Sub(now)
}

// FormatUTC renders t as RFC 3339 with second resolution and a Z suffix.
func FormatUTC(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}
