package settlement

import (
	"testing"

	"github.com/google/uuid"
	"github.com/mcdev12/vaxgame/go/internal/costmodel"
	"github.com/mcdev12/vaxgame/go/internal/models"
	"github.com/shopspring/decimal"
)

func ids(n int) []uuid.UUID {
	out := make([]uuid.UUID, n)
	for i := range out {
		out[i] = uuid.New()
	}
	return out
}

func TestComputeMixedGroup(t *testing.T) {
	p := ids(3)
	entries := []Entry{
		{ParticipantID: p[0], Type: 1, Choice: models.ChoiceA},
		{ParticipantID: p[1], Type: 1, Choice: models.ChoiceB},
		{ParticipantID: p[2], Type: 1, Choice: models.ChoiceB},
	}
	res, err := Compute(costmodel.DefaultTable(), 1, 3, decimal.NewFromInt(50), entries)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if res.TotalA != 1 {
		t.Fatalf("total A = %d, want 1", res.TotalA)
	}

	byID := make(map[uuid.UUID]int)
	for i, o := range res.Outcomes {
		byID[o.ParticipantID] = i
	}
	a := res.Outcomes[byID[p[0]]]
	if a.OthersA != 0 || !a.ACost.Valid || a.BCost.Valid {
		t.Fatalf("A outcome = %+v", a)
	}
	if !a.TotalCost.Equal(decimal.NewFromInt(10)) || !a.Payout.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("A cost/payout = %s/%s, want 10/40", a.TotalCost, a.Payout)
	}
	for _, id := range p[1:] {
		b := res.Outcomes[byID[id]]
		if b.OthersA != 1 || b.ACost.Valid || !b.BCost.Valid {
			t.Fatalf("B outcome = %+v", b)
		}
		// othersA=1 of 2 others lands in bucket 3.
		if !b.TotalCost.Equal(decimal.NewFromInt(20)) || !b.Payout.Equal(decimal.NewFromInt(30)) {
			t.Fatalf("B cost/payout = %s/%s, want 20/30", b.TotalCost, b.Payout)
		}
	}
}

func TestComputeIsOrderIndependent(t *testing.T) {
	p := ids(4)
	entries := []Entry{
		{ParticipantID: p[0], Type: 2, Choice: models.ChoiceB},
		{ParticipantID: p[1], Type: 3, Choice: models.ChoiceA},
		{ParticipantID: p[2], Type: 4, Choice: models.ChoiceB},
		{ParticipantID: p[3], Type: 5, Choice: models.ChoiceA},
	}
	reversed := []Entry{entries[3], entries[2], entries[1], entries[0]}

	table := costmodel.DefaultTable()
	first, err := Compute(table, 2, 4, decimal.NewFromInt(30), entries)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	second, err := Compute(table, 2, 4, decimal.NewFromInt(30), reversed)
	if err != nil {
		t.Fatalf("compute reversed: %v", err)
	}
	for i := range first.Outcomes {
		x, y := first.Outcomes[i], second.Outcomes[i]
		if x.ParticipantID != y.ParticipantID || !x.TotalCost.Equal(y.TotalCost) || x.OthersA != y.OthersA {
			t.Fatalf("outcome %d differs: %+v vs %+v", i, x, y)
		}
	}
}

func TestComputePayoutNeverNegative(t *testing.T) {
	p := ids(2)
	entries := []Entry{
		{ParticipantID: p[0], Type: 1, Choice: models.ChoiceB},
		{ParticipantID: p[1], Type: 1, Choice: models.ChoiceB},
	}
	res, err := Compute(costmodel.DefaultTable(), 1, 2, decimal.NewFromInt(5), entries)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	for _, o := range res.Outcomes {
		if !o.Payout.IsZero() {
			t.Fatalf("payout = %s, want 0", o.Payout)
		}
		if !o.TotalCost.Equal(decimal.NewFromInt(40)) {
			t.Fatalf("cost = %s, want 40", o.TotalCost)
		}
	}
}

func TestComputeRejectsUnknownChoice(t *testing.T) {
	entries := []Entry{{ParticipantID: uuid.New(), Type: 1, Choice: "C"}}
	if _, err := Compute(costmodel.DefaultTable(), 1, 1, decimal.NewFromInt(5), entries); err == nil {
		t.Fatal("expected error for unknown choice")
	}
}
