// Package costmodel maps a participant's type, choice and the group's choices
// onto a cost, and a cost onto a payout. The same functions back the preview
// shown before deciding and the settlement applied afterwards.
package costmodel

import (
	"fmt"

	"github.com/mcdev12/vaxgame/go/internal/models"
	"github.com/shopspring/decimal"
)

// Bucket selects the 1-based B-cost bucket for othersA of the other
// groupSize-1 members choosing A. It is round-half-up of othersA*5/(N-1),
// computed in integers and clamped to [1, BucketCount].
func Bucket(othersA, groupSize int) int {
	others := groupSize - 1
	if others < 1 {
		return 1
	}
	if othersA < 0 {
		othersA = 0
	}
	b := (2*BucketCount*othersA + others) / (2 * others)
	if b < 1 {
		return 1
	}
	if b > BucketCount {
		return BucketCount
	}
	return b
}

// ACost is the fixed cost of choosing A for a type.
func (t *Table) ACost(typ int) (decimal.Decimal, error) {
	r, err := t.Row(typ)
	if err != nil {
		return decimal.Zero, err
	}
	return r.A, nil
}

// BCost is the cost of choosing B for a type given how many others chose A.
func (t *Table) BCost(typ, othersA, groupSize int) (decimal.Decimal, error) {
	r, err := t.Row(typ)
	if err != nil {
		return decimal.Zero, err
	}
	return r.B[Bucket(othersA, groupSize)-1], nil
}

// Cost dispatches on choice.
func (t *Table) Cost(typ int, choice models.Choice, othersA, groupSize int) (decimal.Decimal, error) {
	switch choice {
	case models.ChoiceA:
		return t.ACost(typ)
	case models.ChoiceB:
		return t.BCost(typ, othersA, groupSize)
	default:
		return decimal.Zero, fmt.Errorf("invalid choice %q", choice)
	}
}

// Payout is max(base - cost, 0).
func Payout(cost, base decimal.Decimal) decimal.Decimal {
	p := base.Sub(cost)
	if p.IsNegative() {
		return decimal.Zero
	}
	return p
}

// Preview lists what a participant would pay for each option.
type Preview struct {
	Type   int
	ACost  decimal.Decimal
	BCosts []decimal.Decimal // indexed by othersA, 0..groupSize-1
}

// Preview returns the costs a participant of typ faces in a group of groupSize.
func (t *Table) Preview(typ, groupSize int) (*Preview, error) {
	a, err := t.ACost(typ)
	if err != nil {
		return nil, err
	}
	n := groupSize
	if n < 1 {
		n = 1
	}
	p := &Preview{Type: typ, ACost: a, BCosts: make([]decimal.Decimal, n)}
	for othersA := 0; othersA < n; othersA++ {
		b, err := t.BCost(typ, othersA, groupSize)
		if err != nil {
			return nil, err
		}
		p.BCosts[othersA] = b
	}
	return p, nil
}
