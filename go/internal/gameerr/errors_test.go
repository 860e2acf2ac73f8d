package gameerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/mcdev12/vaxgame/go/internal/models"
)

func TestClassification(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		validation bool
		conflict   bool
		notFound   bool
		contention bool
	}{
		{name: "validation", err: Validationf("bad choice %q", "C"), validation: true},
		{name: "wrapped validation", err: fmt.Errorf("record: %w", Validationf("x")), validation: true},
		{name: "conflict", err: Conflictf("participant completed"), conflict: true},
		{name: "already recorded", err: fmt.Errorf("insert: %w", ErrAlreadyRecorded), conflict: true},
		{name: "state mismatch", err: &StateMismatchError{Want: []models.State{models.StateDecide}, Got: models.StateLobby}, conflict: true},
		{name: "not found", err: fmt.Errorf("get session: %w", ErrNotFound), notFound: true},
		{name: "validation around not found", err: &ValidationError{Msg: "unknown session", Err: ErrNotFound}, validation: true, notFound: true},
		{name: "contention", err: fmt.Errorf("settle: %w", ErrContention), contention: true},
		{name: "plain", err: errors.New("boom")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidation(tt.err); got != tt.validation {
				t.Fatalf("IsValidation = %v, want %v", got, tt.validation)
			}
			if got := IsConflict(tt.err); got != tt.conflict {
				t.Fatalf("IsConflict = %v, want %v", got, tt.conflict)
			}
			if got := IsNotFound(tt.err); got != tt.notFound {
				t.Fatalf("IsNotFound = %v, want %v", got, tt.notFound)
			}
			if got := IsContention(tt.err); got != tt.contention {
				t.Fatalf("IsContention = %v, want %v", got, tt.contention)
			}
		})
	}
}

func TestAlreadyRecordedWrapsDuplicate(t *testing.T) {
	if !errors.Is(ErrAlreadyRecorded, ErrDuplicate) {
		t.Fatal("expected ErrAlreadyRecorded to wrap ErrDuplicate")
	}
}

func TestStateMismatchMessage(t *testing.T) {
	err := &StateMismatchError{Want: []models.State{models.StateReveal, models.StateFeedback}, Got: models.StateDecide}
	want := `participant is in state "decide", expected reveal or feedback`
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}
