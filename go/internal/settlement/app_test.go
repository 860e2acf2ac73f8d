package settlement

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/vaxgame/go/internal/costmodel"
	"github.com/mcdev12/vaxgame/go/internal/events"
	"github.com/mcdev12/vaxgame/go/internal/models"
	"github.com/mcdev12/vaxgame/go/internal/storage/sqlite"
	"github.com/shopspring/decimal"
)

var start = time.Date(2026, 5, 11, 14, 0, 0, 0, time.UTC)

type fixture struct {
	store        *sqlite.Store
	clock        *clockwork.FakeClock
	app          *App
	session      *models.Session
	participants []models.Participant
}

func newFixture(t *testing.T, n int) *fixture {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "game.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	s := &models.Session{
		ID:                 uuid.New(),
		GroupSize:          n,
		RoundCount:         2,
		BasePayout:         decimal.NewFromInt(50),
		WatchWindowSeconds: 10,
		CreatedAt:          start,
	}
	if err := store.InsertSession(ctx, s); err != nil {
		t.Fatalf("insert session: %v", err)
	}
	ps := make([]models.Participant, n)
	for i := range ps {
		ps[i] = models.Participant{
			ID:           uuid.New(),
			SessionID:    s.ID,
			Seat:         i,
			JoinCode:     fmt.Sprintf("S%d%s", i, s.ID.String()[:5]),
			CurrentRound: 1,
			Type:         models.TypeForIndex(i),
		}
		if err := store.InsertParticipant(ctx, &ps[i]); err != nil {
			t.Fatalf("insert participant: %v", err)
		}
		if _, err := store.MarkJoined(ctx, ps[i].ID, i, models.TypeForIndex(i)); err != nil {
			t.Fatalf("mark joined: %v", err)
		}
	}

	clock := clockwork.NewFakeClockAt(start.Add(90 * time.Second))
	return &fixture{
		store:        store,
		clock:        clock,
		app:          NewApp(store, costmodel.DefaultTable(), clock),
		session:      s,
		participants: ps,
	}
}

func (f *fixture) decide(t *testing.T, p models.Participant, round int, choice models.Choice) {
	t.Helper()
	err := f.store.InsertDecision(context.Background(), &models.Decision{
		ID:            uuid.New(),
		SessionID:     f.session.ID,
		ParticipantID: p.ID,
		RoundNumber:   round,
		Choice:        choice,
		CreatedAt:     f.clock.Now(),
	})
	if err != nil {
		t.Fatalf("insert decision: %v", err)
	}
}

func TestTrySettleWaitsForWholeGroup(t *testing.T) {
	f := newFixture(t, 3)
	f.decide(t, f.participants[0], 1, models.ChoiceA)
	f.decide(t, f.participants[1], 1, models.ChoiceB)

	settled, err := f.app.TrySettle(context.Background(), f.session.ID, 1)
	if err != nil {
		t.Fatalf("try settle: %v", err)
	}
	if settled {
		t.Fatal("settled an incomplete round")
	}
	d, err := f.store.GetDecision(context.Background(), f.participants[0].ID, 1)
	if err != nil {
		t.Fatalf("get decision: %v", err)
	}
	if d.Settled() {
		t.Fatal("decision priced before the group finished")
	}
}

func TestTrySettleConcurrentTriggersSettleOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	f.decide(t, f.participants[0], 1, models.ChoiceA)
	f.decide(t, f.participants[1], 1, models.ChoiceB)
	f.decide(t, f.participants[2], 1, models.ChoiceB)

	const pollers = 12
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < pollers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			settled, err := f.app.TrySettle(ctx, f.session.ID, 1)
			if err != nil {
				t.Errorf("try settle: %v", err)
				return
			}
			if settled {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("settlements = %d, want 1", wins)
	}

	ps, err := f.store.ListParticipants(ctx, f.session.ID)
	if err != nil {
		t.Fatalf("list participants: %v", err)
	}
	for _, p := range ps {
		if p.CurrentRound != 2 {
			t.Fatalf("participant %s current round = %d, want 2", p.ID, p.CurrentRound)
		}
		d, err := f.store.GetDecision(ctx, p.ID, 1)
		if err != nil {
			t.Fatalf("get decision: %v", err)
		}
		if !d.Settled() || !p.Balance.Equal(d.Payout.Decimal) {
			t.Fatalf("participant %s balance %s, decision %+v", p.ID, p.Balance, d)
		}
	}

	phase, err := f.store.GetRoundPhase(ctx, f.session.ID, 1)
	if err != nil {
		t.Fatalf("get phase: %v", err)
	}
	if want := f.clock.Now().Add(10 * time.Second); !phase.WatchEndsAt.Equal(want) {
		t.Fatalf("watch ends at %s, want %s", phase.WatchEndsAt, want)
	}

	pending, err := f.store.FetchUnsentOutbox(ctx, 10)
	if err != nil {
		t.Fatalf("fetch outbox: %v", err)
	}
	if len(pending) != 1 || pending[0].EventType != events.TypeRoundSettled {
		t.Fatalf("outbox = %+v, want one RoundSettled event", pending)
	}
}

func TestTrySettleIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)
	f.decide(t, f.participants[0], 1, models.ChoiceB)
	f.decide(t, f.participants[1], 1, models.ChoiceB)

	if settled, err := f.app.TrySettle(ctx, f.session.ID, 1); err != nil || !settled {
		t.Fatalf("first settle = %v, %v", settled, err)
	}
	f.clock.Advance(time.Minute)
	if settled, err := f.app.TrySettle(ctx, f.session.ID, 1); err != nil || settled {
		t.Fatalf("second settle = %v, %v", settled, err)
	}

	phase, err := f.store.GetRoundPhase(ctx, f.session.ID, 1)
	if err != nil {
		t.Fatalf("get phase: %v", err)
	}
	if phase.DecisionEndsAt.After(start.Add(90 * time.Second)) {
		t.Fatalf("phase reopened at %s", phase.DecisionEndsAt)
	}
}

func TestTrySettleSkipsArchivedSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	f.decide(t, f.participants[0], 1, models.ChoiceA)
	if err := f.store.ArchiveSession(ctx, f.session.ID); err != nil {
		t.Fatalf("archive: %v", err)
	}
	settled, err := f.app.TrySettle(ctx, f.session.ID, 1)
	if err != nil {
		t.Fatalf("try settle: %v", err)
	}
	if settled {
		t.Fatal("settled an archived session")
	}
}

func TestTrySettleUnknownSession(t *testing.T) {
	f := newFixture(t, 1)
	if _, err := f.app.TrySettle(context.Background(), uuid.New(), 1); err == nil {
		t.Fatal("expected error for unknown session")
	}
}
