// Package participantstate derives a participant's interaction state from
// stored facts. Nothing here is persisted; every request recomputes it.
package participantstate

import (
	"time"

	"github.com/mcdev12/vaxgame/go/internal/gameerr"
	"github.com/mcdev12/vaxgame/go/internal/models"
)

// Facts is everything Derive reads. Phases are nil when the round has not
// been settled.
type Facts struct {
	Archived      bool
	Completed     bool
	JoinedCount   int
	GroupSize     int
	CurrentRound  int
	RoundCount    int
	HasDecision   bool // decision recorded for CurrentRound
	CurrentPhase  *models.RoundPhase
	PreviousPhase *models.RoundPhase
}

// Derive returns the participant's state at now.
func Derive(f Facts, now time.Time) models.State {
	switch {
	case f.Archived || f.Completed:
		return models.StateFinished
	case f.JoinedCount < f.GroupSize:
		return models.StateLobby
	case f.CurrentRound > f.RoundCount:
		return models.StateFinished
	case f.CurrentRound > 1 && f.PreviousPhase != nil && now.Before(f.PreviousPhase.WatchEndsAt):
		return models.StateReveal
	case !f.HasDecision:
		return models.StateDecide
	case f.CurrentPhase == nil:
		return models.StateAwaiting
	case now.Before(f.CurrentPhase.WatchEndsAt):
		return models.StateReveal
	default:
		return models.StateFeedback
	}
}

// Require returns a StateMismatchError unless got is one of want.
func Require(got models.State, want ...models.State) error {
	for _, w := range want {
		if got == w {
			return nil
		}
	}
	return &gameerr.StateMismatchError{Want: want, Got: got}
}
