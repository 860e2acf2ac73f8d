// Package settlement closes a fully decided round: it prices every decision,
// pays participants, advances the group's round counter and opens the reveal
// window, all in one transaction that runs at most once per round.
package settlement

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/mcdev12/vaxgame/go/internal/costmodel"
	"github.com/mcdev12/vaxgame/go/internal/models"
	"github.com/mcdev12/vaxgame/go/internal/storage"
	"github.com/shopspring/decimal"
)

// Entry is one decision as seen by the pricing step.
type Entry struct {
	ParticipantID uuid.UUID
	Type          int
	Choice        models.Choice
}

// Result is the priced outcome of a round.
type Result struct {
	Round    int
	TotalA   int
	Outcomes []storage.DecisionOutcome
}

// Compute prices a round. The output depends only on the set of entries, not
// their order: outcomes are returned sorted by participant id.
func Compute(table *costmodel.Table, round, groupSize int, base decimal.Decimal, entries []Entry) (*Result, error) {
	sorted := slices.Clone(entries)
	slices.SortFunc(sorted, func(a, b Entry) int {
		return bytes.Compare(a.ParticipantID[:], b.ParticipantID[:])
	})

	totalA := 0
	for _, e := range sorted {
		switch e.Choice {
		case models.ChoiceA:
			totalA++
		case models.ChoiceB:
		default:
			return nil, fmt.Errorf("participant %s: invalid choice %q", e.ParticipantID, e.Choice)
		}
	}

	res := &Result{Round: round, TotalA: totalA, Outcomes: make([]storage.DecisionOutcome, 0, len(sorted))}
	for _, e := range sorted {
		othersA := totalA
		if e.Choice == models.ChoiceA {
			othersA--
		}
		cost, err := table.Cost(e.Type, e.Choice, othersA, groupSize)
		if err != nil {
			return nil, fmt.Errorf("participant %s: %w", e.ParticipantID, err)
		}

		out := storage.DecisionOutcome{
			ParticipantID: e.ParticipantID,
			RoundNumber:   round,
			OthersA:       othersA,
			TotalCost:     cost,
			Payout:        costmodel.Payout(cost, base),
		}
		if e.Choice == models.ChoiceA {
			out.ACost = decimal.NewNullDecimal(cost)
		} else {
			out.BCost = decimal.NewNullDecimal(cost)
		}
		res.Outcomes = append(res.Outcomes, out)
	}
	return res, nil
}
