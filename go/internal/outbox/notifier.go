package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

type NotifierConfig struct {
	DatabaseURL   string // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel string
	PingInterval  time.Duration
}

// PGNotifier turns Postgres notifications on the outbox channel into relay
// wake-ups. Wake-ups are coalesced: a burst of inserts yields one drain.
type PGNotifier struct {
	listener *pq.Listener
	cfg      NotifierConfig
	wake     chan struct{}
}

// NewPGNotifier starts listening on cfg.NotifyChannel.
func NewPGNotifier(cfg NotifierConfig) (*PGNotifier, error) {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 90 * time.Second
	}
	l := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Msg("listening for notifications")

	return &PGNotifier{
		listener: l,
		cfg:      cfg,
		wake:     make(chan struct{}, 1),
	}, nil
}

// Wake is the channel the relay selects on.
func (n *PGNotifier) Wake() <-chan struct{} {
	return n.wake
}

func (n *PGNotifier) signal() {
	select {
	case n.wake <- struct{}{}:
	default:
	}
}

// Run forwards notifications until ctx is done. A nil notification means the
// connection was re-established and anything sent meanwhile was missed, so
// it wakes the relay as well.
func (n *PGNotifier) Run(ctx context.Context) error {
	ping := time.NewTicker(n.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return n.listener.Close()
		case note := <-n.listener.Notify:
			if note == nil {
				log.Warn().Msg("listener reconnected, waking relay")
			} else {
				log.Debug().Str("event_id", note.Extra).Msg("outbox notification")
			}
			n.signal()
		case <-ping.C:
			go func() {
				if err := n.listener.Ping(); err != nil {
					log.Error().Err(err).Msg("listener ping failed")
				}
			}()
		}
	}
}
