package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/vaxgame/go/internal/events"
	"github.com/mcdev12/vaxgame/go/internal/models"
	"github.com/mcdev12/vaxgame/go/internal/storage/sqlite"
)

type recordingPublisher struct {
	mu        sync.Mutex
	failUntil int // fail this many calls first
	calls     int
	published []models.OutboxEvent
	notify    chan struct{}
}

func (p *recordingPublisher) Publish(ctx context.Context, ev models.OutboxEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= p.failUntil {
		return errors.New("bus unavailable")
	}
	p.published = append(p.published, ev)
	if p.notify != nil {
		select {
		case p.notify <- struct{}{}:
		default:
		}
	}
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

var epoch = time.Date(2026, 7, 20, 8, 0, 0, 0, time.UTC)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "outbox.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func insertEvent(t *testing.T, store *sqlite.Store, at time.Time) *models.OutboxEvent {
	t.Helper()
	ev, err := events.NewOutboxEvent(uuid.New(), events.TypeRoundSettled, events.RoundSettledPayload{Round: 1}, at)
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	if err := store.InsertOutboxEvent(context.Background(), ev); err != nil {
		t.Fatalf("insert event: %v", err)
	}
	return ev
}

func testConfig() Config {
	return Config{FallbackInterval: time.Minute, BatchSize: 2, MaxRetries: 2}
}

func TestProcessBatchPublishesAndMarksSent(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	for i := 0; i < 3; i++ {
		insertEvent(t, store, epoch.Add(time.Duration(i)*time.Second))
	}

	pub := &recordingPublisher{}
	relay := NewRelay(store, pub, clockwork.NewFakeClockAt(epoch), testConfig(), nil)
	relay.drain(ctx)

	if pub.count() != 3 {
		t.Fatalf("published = %d, want 3", pub.count())
	}
	pending, err := store.FetchUnsentOutbox(ctx, 10)
	if err != nil {
		t.Fatalf("fetch unsent: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("unsent after drain = %d", len(pending))
	}
	if !pub.published[0].CreatedAt.Before(pub.published[2].CreatedAt) {
		t.Fatalf("events published out of order")
	}
}

func TestProcessBatchRetriesThenSucceeds(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	insertEvent(t, store, epoch)

	pub := &recordingPublisher{failUntil: 2}
	relay := NewRelay(store, pub, clockwork.NewFakeClockAt(epoch), testConfig(), nil)
	if _, err := relay.ProcessBatch(ctx); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if pub.count() != 1 || pub.calls != 3 {
		t.Fatalf("published = %d after %d calls", pub.count(), pub.calls)
	}
}

func TestProcessBatchLeavesFailedEventsUnsent(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	ev := insertEvent(t, store, epoch)

	pub := &recordingPublisher{failUntil: 100}
	relay := NewRelay(store, pub, clockwork.NewFakeClockAt(epoch), testConfig(), nil)
	n, err := relay.ProcessBatch(ctx)
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if n != 0 {
		t.Fatalf("processed = %d, want 0", n)
	}
	got, err := store.FetchOutboxByID(ctx, ev.ID)
	if err != nil {
		t.Fatalf("fetch event: %v", err)
	}
	if got.SentAt != nil {
		t.Fatalf("failed event marked sent at %v", got.SentAt)
	}
}

func TestRunDrainsOnWake(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := openStore(t)

	wake := make(chan struct{}, 1)
	pub := &recordingPublisher{notify: make(chan struct{}, 1)}
	relay := NewRelay(store, pub, clockwork.NewFakeClockAt(epoch), testConfig(), wake)

	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	insertEvent(t, store, epoch)
	wake <- struct{}{}

	select {
	case <-pub.notify:
	case <-time.After(5 * time.Second):
		t.Fatal("event not published after wake-up")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestEnvelope(t *testing.T) {
	ev := models.OutboxEvent{
		ID:        uuid.New(),
		SessionID: uuid.New(),
		EventType: events.TypeSessionArchived,
		CreatedAt: epoch,
	}
	env := NewEnvelope(ev)
	if string(env.Payload) != "null" || env.EventType != events.TypeSessionArchived {
		t.Fatalf("envelope = %+v", env)
	}
	if _, err := json.Marshal(env); err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	if got := Subject("game.events", events.TypeRoundSettled); got != "game.events.RoundSettled" {
		t.Fatalf("subject = %q", got)
	}
}
