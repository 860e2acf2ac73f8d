// Package outbox moves committed outbox rows onto the message bus. Rows are
// written by the game in the same transaction as the change they describe;
// the relay publishes them at least once and marks them sent.
package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/vaxgame/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Publisher is an interface that defines our publisher.
type Publisher interface {
	Publish(ctx context.Context, event models.OutboxEvent) error
}

// Store is what the relay needs from storage.
type Store interface {
	FetchUnsentOutbox(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	MarkOutboxSent(ctx context.Context, id uuid.UUID, at time.Time) error
}

type Config struct {
	FallbackInterval time.Duration // How often to poll for missed events
	BatchSize        int
	MaxRetries       int
	RetryDelay       time.Duration
}

func DefaultConfig() Config {
	return Config{
		FallbackInterval: 30 * time.Second,
		BatchSize:        100,
		MaxRetries:       5,
		RetryDelay:       200 * time.Millisecond,
	}
}

// Relay drains the outbox whenever it is woken and on a fallback ticker.
type Relay struct {
	store     Store
	publisher Publisher
	clock     clockwork.Clock
	cfg       Config
	wake      <-chan struct{}

	mu sync.Mutex // one drain at a time
}

// NewRelay creates a relay. wake may be nil, in which case only the fallback
// ticker drives it.
func NewRelay(store Store, publisher Publisher, clock clockwork.Clock, cfg Config, wake <-chan struct{}) *Relay {
	def := DefaultConfig()
	if cfg.FallbackInterval <= 0 {
		cfg.FallbackInterval = def.FallbackInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	return &Relay{
		store:     store,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		wake:      wake,
	}
}

// Run drains once immediately and then on every wake-up until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	log.Info().
		Dur("fallback_interval", r.cfg.FallbackInterval).
		Int("batch_size", r.cfg.BatchSize).
		Msg("outbox relay started")

	ticker := r.clock.NewTicker(r.cfg.FallbackInterval)
	defer ticker.Stop()

	r.drain(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("outbox relay shutting down")
			return nil
		case _, ok := <-r.wake:
			if !ok {
				r.wake = nil
				continue
			}
			r.drain(ctx)
		case <-ticker.Chan():
			log.Debug().Msg("fallback poll")
			r.drain(ctx)
		}
	}
}

func (r *Relay) drain(ctx context.Context) {
	for {
		n, err := r.ProcessBatch(ctx)
		if err != nil {
			log.Error().Err(err).Msg("failed to process outbox batch")
			return
		}
		if n < r.cfg.BatchSize {
			return
		}
	}
}

// ProcessBatch publishes up to one batch of unsent events and returns how
// many rows it fetched. An event that cannot be published stays unsent and
// is picked up again on a later pass.
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pending, err := r.store.FetchUnsentOutbox(ctx, r.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch unsent events: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	sent := 0
	for _, ev := range pending {
		if err := r.publishWithRetry(ctx, ev); err != nil {
			log.Error().
				Err(err).
				Str("event_id", ev.ID.String()).
				Str("event_type", ev.EventType).
				Msg("failed to publish event")
			continue
		}
		if err := r.store.MarkOutboxSent(ctx, ev.ID, r.clock.Now().UTC()); err != nil {
			return len(pending), fmt.Errorf("failed to mark event %s sent: %w", ev.ID, err)
		}
		sent++
	}

	log.Info().
		Int("total", len(pending)).
		Int("successful", sent).
		Msg("processed outbox events")

	if sent == 0 {
		// Nothing moved; stop draining until the next wake-up.
		return 0, nil
	}
	return len(pending), nil
}

func (r *Relay) publishWithRetry(ctx context.Context, ev models.OutboxEvent) error {
	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 && r.cfg.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-r.clock.After(r.cfg.RetryDelay * time.Duration(attempt)):
			}
		}

		if err := r.publisher.Publish(ctx, ev); err != nil {
			lastErr = err
			log.Warn().
				Err(err).
				Str("event_id", ev.ID.String()).
				Int("attempt", attempt+1).
				Msg("failed to publish event, retrying")
			continue
		}
		return nil
	}
	return fmt.Errorf("failed after %d attempts: %w", r.cfg.MaxRetries+1, lastErr)
}
