package phaseclock

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/vaxgame/go/internal/models"
)

func TestOpen(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	t0 := time.Date(2026, 3, 1, 13, 0, 5, 700_000_000, loc)
	sid := uuid.New()

	ph := Open(sid, 2, t0, 15)

	wantStart := time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC)
	if !ph.DecisionEndsAt.Equal(wantStart) || ph.DecisionEndsAt.Location() != time.UTC {
		t.Fatalf("DecisionEndsAt = %v, want %v UTC", ph.DecisionEndsAt, wantStart)
	}
	if !ph.WatchEndsAt.Equal(wantStart.Add(15 * time.Second)) {
		t.Fatalf("WatchEndsAt = %v, want +15s", ph.WatchEndsAt)
	}
	if ph.SessionID != sid || ph.RoundNumber != 2 {
		t.Fatalf("identity = %v/%d", ph.SessionID, ph.RoundNumber)
	}
}

func TestOpenZeroWindow(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ph := Open(uuid.New(), 1, t0, -3)
	if !ph.WatchEndsAt.Equal(ph.DecisionEndsAt) {
		t.Fatalf("negative window should clamp to zero, got %v", ph.WatchEndsAt.Sub(ph.DecisionEndsAt))
	}
	if got := Classify(t0, &ph); got != models.PhaseDone {
		t.Fatalf("Classify at t0 with zero window = %s, want done", got)
	}
}

func TestClassifyWithFakeClock(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	if got := Classify(Now(clock), nil); got != models.PhaseDecision {
		t.Fatalf("no phase = %s, want decision", got)
	}

	ph := Open(uuid.New(), 1, Now(clock), 10)
	if got := Classify(Now(clock), &ph); got != models.PhaseWatch {
		t.Fatalf("at t0 = %s, want watch", got)
	}
	if got := Remaining(Now(clock), &ph); got != 10*time.Second {
		t.Fatalf("Remaining = %v, want 10s", got)
	}

	clock.Advance(9 * time.Second)
	if got := Classify(Now(clock), &ph); got != models.PhaseWatch {
		t.Fatalf("at t0+9s = %s, want watch", got)
	}

	clock.Advance(time.Second)
	if got := Classify(Now(clock), &ph); got != models.PhaseDone {
		t.Fatalf("at t0+10s = %s, want done", got)
	}
	if got := Remaining(Now(clock), &ph); got != 0 {
		t.Fatalf("Remaining after window = %v, want 0", got)
	}
}

func TestFormatUTC(t *testing.T) {
	ts := time.Date(2026, 3, 1, 13, 4, 5, 999_000_000, time.FixedZone("CET", 3600))
	if got := FormatUTC(ts); got != "2026-03-01T12:04:05Z" {
		t.Fatalf("FormatUTC = %q", got)
	}
}
