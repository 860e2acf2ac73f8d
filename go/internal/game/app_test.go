package game

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/vaxgame/go/internal/costmodel"
	"github.com/mcdev12/vaxgame/go/internal/gameerr"
	"github.com/mcdev12/vaxgame/go/internal/models"
	"github.com/mcdev12/vaxgame/go/internal/sessions"
	"github.com/mcdev12/vaxgame/go/internal/settlement"
	"github.com/mcdev12/vaxgame/go/internal/storage"
	"github.com/mcdev12/vaxgame/go/internal/storage/sqlite"
	"github.com/shopspring/decimal"
)

type harness struct {
	store    *sqlite.Store
	clock    *clockwork.FakeClock
	game     *App
	sessions *sessions.App
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "game.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	clock := clockwork.NewFakeClockAt(time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC))
	table := costmodel.DefaultTable()
	return &harness{
		store:    store,
		clock:    clock,
		game:     NewApp(store, table, settlement.NewApp(store, table, clock), clock),
		sessions: sessions.NewApp(store, clock),
	}
}

// startSession creates a session of n and joins every seat in seat order, so
// seat i ends up with join order i and type i%6+1.
func (h *harness) startSession(t *testing.T, n, rounds int) (*models.Session, []models.Participant) {
	t.Helper()
	ctx := context.Background()
	created, err := h.sessions.CreateSession(ctx, sessions.CreateSessionRequest{
		Name:               "lab",
		GroupSize:          n,
		RoundCount:         rounds,
		BasePayout:         decimal.NewFromInt(50),
		WatchWindowSeconds: 15,
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	ps := make([]models.Participant, n)
	for i, p := range created.Participants {
		joined, err := h.sessions.Join(ctx, p.JoinCode, "")
		if err != nil {
			t.Fatalf("join: %v", err)
		}
		ps[i] = *joined
	}
	return created.Session, ps
}

func (h *harness) state(t *testing.T, p models.Participant) models.State {
	t.Helper()
	view, err := h.game.GetParticipantState(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	return view.State
}

func TestRoundLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	s, ps := h.startSession(t, 3, 2)

	for _, p := range ps {
		if got := h.state(t, p); got != models.StateDecide {
			t.Fatalf("state = %s, want decide", got)
		}
	}

	choices := []models.Choice{models.ChoiceA, models.ChoiceB, models.ChoiceB}
	for i := 0; i < 2; i++ {
		if _, err := h.game.RecordDecision(ctx, ps[i].ID, 1, choices[i]); err != nil {
			t.Fatalf("record decision: %v", err)
		}
	}
	if got := h.state(t, ps[0]); got != models.StateAwaiting {
		t.Fatalf("state = %s, want awaiting", got)
	}
	status, err := h.game.GetRoundStatus(ctx, s.ID, 1)
	if err != nil {
		t.Fatalf("round status: %v", err)
	}
	if status.Ready || status.DecidedCount != 2 || len(status.Results) != 0 {
		t.Fatalf("status = %+v", status)
	}

	if _, err := h.game.RecordDecision(ctx, ps[2].ID, 1, choices[2]); err != nil {
		t.Fatalf("record decision: %v", err)
	}

	status, err = h.game.GetRoundStatus(ctx, s.ID, 1)
	if err != nil {
		t.Fatalf("round status: %v", err)
	}
	if !status.Ready || len(status.Results) != 3 {
		t.Fatalf("status = %+v", status)
	}
	for _, r := range status.Results {
		switch r.ParticipantID {
		case ps[0].ID:
			// Type 1 choosing A.
			if !r.Cost.Equal(decimal.NewFromInt(10)) || r.OthersA != 0 {
				t.Fatalf("A result = %+v", r)
			}
		default:
			if r.OthersA != 1 {
				t.Fatalf("B result = %+v", r)
			}
		}
	}

	if got := h.state(t, ps[1]); got != models.StateReveal {
		t.Fatalf("state during watch = %s, want reveal", got)
	}
	snap, err := h.game.GetRevealSnapshot(ctx, s.ID, 1)
	if err != nil {
		t.Fatalf("reveal snapshot: %v", err)
	}
	if snap.Phase != models.PhaseWatch || snap.Remaining != 15 || snap.PhaseEndsAt == nil {
		t.Fatalf("snapshot = %+v", snap)
	}

	h.clock.Advance(15 * time.Second)
	if got := h.state(t, ps[1]); got != models.StateDecide {
		t.Fatalf("state after watch = %s, want decide", got)
	}
	snap, err = h.game.GetRevealSnapshot(ctx, s.ID, 1)
	if err != nil {
		t.Fatalf("reveal snapshot: %v", err)
	}
	if snap.Phase != models.PhaseDone || snap.Remaining != 0 {
		t.Fatalf("snapshot = %+v", snap)
	}

	for _, p := range ps {
		if _, err := h.game.RecordDecision(ctx, p.ID, 2, models.ChoiceA); err != nil {
			t.Fatalf("record round 2: %v", err)
		}
	}
	if got := h.state(t, ps[0]); got != models.StateFinished {
		t.Fatalf("state after last round = %s, want finished", got)
	}
	snap, err = h.game.GetRevealSnapshot(ctx, s.ID, 2)
	if err != nil {
		t.Fatalf("reveal snapshot: %v", err)
	}
	if snap.Phase != models.PhaseWatch || len(snap.Results) != 3 {
		t.Fatalf("last round snapshot = %+v", snap)
	}
}

func TestRecordDecisionRejections(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, ps := h.startSession(t, 2, 3)

	if _, err := h.game.RecordDecision(ctx, ps[0].ID, 1, "C"); !gameerr.IsValidation(err) {
		t.Fatalf("invalid choice err = %v", err)
	}
	if _, err := h.game.RecordDecision(ctx, ps[0].ID, 2, models.ChoiceA); !gameerr.IsConflict(err) {
		t.Fatalf("future round err = %v", err)
	}
	if _, err := h.game.RecordDecision(ctx, ps[0].ID, 1, models.ChoiceA); err != nil {
		t.Fatalf("record: %v", err)
	}
	_, err := h.game.RecordDecision(ctx, ps[0].ID, 1, models.ChoiceB)
	if !errors.Is(err, gameerr.ErrAlreadyRecorded) {
		t.Fatalf("second decision err = %v", err)
	}
}

func TestRecordDecisionInLobbyIsStateMismatch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	created, err := h.sessions.CreateSession(ctx, sessions.CreateSessionRequest{GroupSize: 2, RoundCount: 1, BasePayout: decimal.NewFromInt(10)})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	p, err := h.sessions.Join(ctx, created.Participants[0].JoinCode, "")
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	_, err = h.game.RecordDecision(ctx, p.ID, 1, models.ChoiceA)
	var mismatch *gameerr.StateMismatchError
	if !errors.As(err, &mismatch) || mismatch.Got != models.StateLobby {
		t.Fatalf("err = %v, want state mismatch from lobby", err)
	}
}

func TestConcurrentDuplicateDecisions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	s, ps := h.startSession(t, 3, 1)

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.game.RecordDecision(ctx, ps[0].ID, 1, models.ChoiceB)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case gameerr.IsConflict(err):
				conflicts++
			default:
				t.Errorf("record: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 1 || conflicts != attempts-1 {
		t.Fatalf("ok=%d conflicts=%d", ok, conflicts)
	}
	counts, err := h.store.CountRoundDecisions(ctx, s.ID, 1)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts.Decided != 1 {
		t.Fatalf("decisions = %d, want 1", counts.Decided)
	}
}

func TestArchivedSessionIsFinished(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	s, ps := h.startSession(t, 2, 3)
	if err := h.sessions.Archive(ctx, s.ID); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if got := h.state(t, ps[0]); got != models.StateFinished {
		t.Fatalf("state = %s, want finished", got)
	}
}

func TestCostPreview(t *testing.T) {
	h := newHarness(t)
	_, ps := h.startSession(t, 3, 1)

	preview, err := h.game.GetCostPreview(context.Background(), ps[3-1].ID)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	// Third joiner is type 3: A=20, B buckets 30,24,18,12,6.
	if preview.Type != 3 || !preview.ACost.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("preview = %+v", preview)
	}
	want := []int64{30, 18, 6}
	if len(preview.BCosts) != len(want) {
		t.Fatalf("b costs = %v", preview.BCosts)
	}
	for i, w := range want {
		if !preview.BCosts[i].Equal(decimal.NewFromInt(w)) {
			t.Fatalf("b cost[%d] = %s, want %d", i, preview.BCosts[i], w)
		}
	}
}

// beforeTxStore runs hook once, right before the first session transaction.
type beforeTxStore struct {
	storage.Store
	once sync.Once
	hook func()
}

func (b *beforeTxStore) InSessionTx(ctx context.Context, sessionID uuid.UUID, mode storage.LockMode, fn func(q storage.Queries) error) error {
	b.once.Do(b.hook)
	return b.Store.InSessionTx(ctx, sessionID, mode, fn)
}

func TestResetBeforeDecisionCommitRejectsStaleRound(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	s, ps := h.startSession(t, 2, 3)

	for _, p := range ps {
		if _, err := h.game.RecordDecision(ctx, p.ID, 1, models.ChoiceB); err != nil {
			t.Fatalf("record round 1: %v", err)
		}
	}
	h.clock.Advance(16 * time.Second)
	if got := h.state(t, ps[0]); got != models.StateDecide {
		t.Fatalf("state = %s, want decide in round 2", got)
	}

	racing := &beforeTxStore{Store: h.store, hook: func() {
		if err := h.sessions.Reset(ctx, s.ID); err != nil {
			t.Errorf("reset: %v", err)
		}
	}}
	table := costmodel.DefaultTable()
	app := NewApp(racing, table, settlement.NewApp(h.store, table, h.clock), h.clock)

	_, err := app.RecordDecision(ctx, ps[0].ID, 2, models.ChoiceA)
	if !gameerr.IsConflict(err) {
		t.Fatalf("err = %v, want conflict", err)
	}
	if _, err := h.store.GetDecision(ctx, ps[0].ID, 2); !gameerr.IsNotFound(err) {
		t.Fatalf("round 2 decision after reset: err = %v", err)
	}
	p, err := h.store.GetParticipant(ctx, ps[0].ID)
	if err != nil {
		t.Fatalf("get participant: %v", err)
	}
	if p.CurrentRound != 1 {
		t.Fatalf("current round = %d, want 1", p.CurrentRound)
	}
	if got := h.state(t, ps[0]); got != models.StateDecide {
		t.Fatalf("state after reset = %s, want decide", got)
	}
}
