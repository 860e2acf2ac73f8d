package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/vaxgame/go/internal/outbox"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// ConsumerConfig holds configuration for the JetStream consumer
type ConsumerConfig struct {
	URL           string
	StreamName    string
	ConsumerName  string
	SubjectFilter string
	MaxDeliver    int
	AckWait       time.Duration
	MaxAckPending int
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConsumerConfig returns default JetStream consumer configuration
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		URL:           nats.DefaultURL,
		StreamName:    "GAME_EVENTS",
		ConsumerName:  "game-gateway",
		SubjectFilter: "game.events.>",
		MaxDeliver:    5,
		AckWait:       30 * time.Second,
		MaxAckPending: 100,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// EventConsumer consumes game events from JetStream and hands them to the hub
type EventConsumer struct {
	hub      *Hub
	nc       *nats.Conn
	consumer jetstream.Consumer
	config   ConsumerConfig
}

// NewEventConsumer connects to NATS and creates or updates the durable consumer
func NewEventConsumer(ctx context.Context, hub *Hub, config ConsumerConfig) (*EventConsumer, error) {
	nc, err := outbox.ConnectNATS(config.URL, config.MaxReconnects, config.ReconnectWait)
	if err != nil {
		return nil, err
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	consumer, err := js.CreateOrUpdateConsumer(ctx, config.StreamName, jetstream.ConsumerConfig{
		Name:          config.ConsumerName,
		Durable:       config.ConsumerName,
		Description:   "Game gateway websocket consumer",
		FilterSubject: config.SubjectFilter,
		DeliverPolicy: jetstream.DeliverNewPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    config.MaxDeliver,
		AckWait:       config.AckWait,
		MaxAckPending: config.MaxAckPending,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure consumer: %w", err)
	}
	log.Info().
		Str("consumer", config.ConsumerName).
		Str("stream", config.StreamName).
		Msg("JetStream consumer ready")

	return &EventConsumer{hub: hub, nc: nc, consumer: consumer, config: config}, nil
}

// Start consumes until ctx is done
func (ec *EventConsumer) Start(ctx context.Context) error {
	cc, err := ec.consumer.Consume(func(msg jetstream.Msg) {
		sessionID, push, err := DecodeEnvelope(msg.Data())
		if err != nil {
			log.Error().Err(err).Str("subject", msg.Subject()).Msg("dropping malformed event")
			// Redelivery would not fix a malformed body.
			_ = msg.Term()
			return
		}
		ec.hub.Broadcast(sessionID, push)
		if err := msg.Ack(); err != nil {
			log.Error().Err(err).Msg("failed to ACK message")
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer cc.Stop()

	<-ctx.Done()
	log.Info().Msg("event consumer shutting down")
	return nil
}

// Close closes the NATS connection
func (ec *EventConsumer) Close() {
	if ec.nc != nil {
		ec.nc.Close()
	}
}

// DecodeEnvelope turns a published outbox envelope into a push message.
func DecodeEnvelope(data []byte) (uuid.UUID, *PushMessage, error) {
	var env outbox.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return uuid.Nil, nil, fmt.Errorf("unmarshal event envelope: %w", err)
	}
	sessionID, err := uuid.Parse(env.SessionID)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("invalid session id %q: %w", env.SessionID, err)
	}
	if env.EventType == "" {
		return uuid.Nil, nil, fmt.Errorf("event %s has no type", env.EventID)
	}
	return sessionID, &PushMessage{
		Type:      env.EventType,
		SessionID: sessionID,
		Payload:   env.Payload,
		Timestamp: env.Timestamp,
	}, nil
}
