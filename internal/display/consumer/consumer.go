// Package consumer bridges the match-state collaborator's event stream
// into the display core: tournament snapshots and timer commands arrive
// as JetStream messages and are routed to the display service and the
// DQ timer scheduler.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/openmat/courtcast/internal/bracket"
	"github.com/openmat/courtcast/internal/dqtimer"
)

// Config holds JetStream consumer settings.
type Config struct {
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

// DefaultConfig returns the stock consumer settings.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		StreamName:    "BRACKET_EVENTS",
		ConsumerName:  "courtcast-display",
		SubjectFilter: "bracket.events.>",
		MaxDeliver:    5,
		AckWait:       30 * time.Second,
		MaxAckPending: 100,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// StateSink receives full tournament snapshots.
type StateSink interface {
	OnTournamentStateChanged(ctx context.Context, snap *bracket.TournamentSnapshot) error
}

// TimerControl receives timer commands from match-control actions.
type TimerControl interface {
	Start(ctx context.Context, key dqtimer.Key, duration time.Duration, mode dqtimer.Mode, participant bracket.ParticipantRef) error
	Cancel(key dqtimer.Key) error
	FreezeAll()
	Unfreeze()
}

// Consumer reads the bracket event stream and routes each event.
type Consumer struct {
	states StateSink
	timers TimerControl
	nc     *nats.Conn
	js     jetstream.JetStream
	cons   jetstream.Consumer
	config Config
}

// envelope is the wire format shared with the match-state collaborator.
type envelope struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	TenantID  string          `json:"tenantId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Event types on the bracket stream.
const (
	evtStateChanged = "TournamentStateChanged"
	evtTimerStart   = "DqTimerStart"
	evtTimerCancel  = "DqTimerCancel"
	evtFreezeAll    = "TimersFreeze"
	evtUnfreeze     = "TimersUnfreeze"
)

type timerStartPayload struct {
	TournamentID string                 `json:"tournament_id"`
	MatchID      string                 `json:"match_id"`
	Slot         string                 `json:"slot"`
	DurationSec  int                    `json:"duration_sec"`
	Mode         dqtimer.Mode           `json:"mode"`
	Participant  bracket.ParticipantRef `json:"participant"`
}

type timerCancelPayload struct {
	TournamentID string `json:"tournament_id"`
	MatchID      string `json:"match_id"`
	Slot         string `json:"slot"`
}

func New(states StateSink, timers TimerControl, config Config) (*Consumer, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	c := &Consumer{
		states: states,
		timers: timers,
		nc:     nc,
		js:     js,
		config: config,
	}
	if err := c.ensureConsumer(context.Background()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure consumer: %w", err)
	}
	return c, nil
}

func (c *Consumer) ensureConsumer(ctx context.Context) error {
	stream, err := c.js.Stream(ctx, c.config.StreamName)
	if err != nil {
		return fmt.Errorf("get stream: %w", err)
	}

	cfg := jetstream.ConsumerConfig{
		Name:          c.config.ConsumerName,
		Durable:       c.config.ConsumerName,
		Description:   "courtcast display consumer",
		FilterSubject: c.config.SubjectFilter,
		DeliverPolicy: jetstream.DeliverLastPerSubjectPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    c.config.MaxDeliver,
		AckWait:       c.config.AckWait,
		MaxAckPending: c.config.MaxAckPending,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	}

	cons, err := stream.Consumer(ctx, c.config.ConsumerName)
	if err != nil {
		cons, err = stream.CreateConsumer(ctx, cfg)
		if err != nil {
			return fmt.Errorf("create consumer: %w", err)
		}
		log.Info().
			Str("consumer", c.config.ConsumerName).
			Str("stream", c.config.StreamName).
			Msg("created JetStream consumer")
	}
	c.cons = cons
	return nil
}

// Start consumes until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	log.Info().
		Str("consumer", c.config.ConsumerName).
		Str("stream", c.config.StreamName).
		Msg("starting bracket event consumer")

	messageCh := make(chan jetstream.Msg, 100)
	consumeCtx, err := c.cons.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("bracket event consumer shutting down")
			return nil
		case msg := <-messageCh:
			if err := c.process(ctx, msg); err != nil {
				log.Error().Err(err).Str("subject", msg.Subject()).Msg("process bracket event")
				if nakErr := msg.Nak(); nakErr != nil {
					log.Error().Err(nakErr).Msg("NAK message")
				}
				continue
			}
			if ackErr := msg.Ack(); ackErr != nil {
				log.Error().Err(ackErr).Msg("ACK message")
			}
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg jetstream.Msg) error {
	return c.route(ctx, msg.Data())
}

func (c *Consumer) route(ctx context.Context, data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.TenantID == "" {
		return fmt.Errorf("event %s missing tenant id", env.EventID)
	}

	log.Debug().
		Str("event_id", env.EventID).
		Str("event_type", env.EventType).
		Str("tenant_id", env.TenantID).
		Msg("processing bracket event")

	switch env.EventType {
	case evtStateChanged:
		var snap bracket.TournamentSnapshot
		if err := json.Unmarshal(env.Payload, &snap); err != nil {
			return fmt.Errorf("unmarshal snapshot payload: %w", err)
		}
		snap.TenantID = env.TenantID
		if snap.Timestamp.IsZero() {
			snap.Timestamp = env.Timestamp
		}
		return c.states.OnTournamentStateChanged(ctx, &snap)

	case evtTimerStart:
		var p timerStartPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("unmarshal timer start payload: %w", err)
		}
		key := dqtimer.Key{
			TenantID:     env.TenantID,
			TournamentID: p.TournamentID,
			MatchID:      p.MatchID,
			Slot:         p.Slot,
		}
		err := c.timers.Start(ctx, key, time.Duration(p.DurationSec)*time.Second, p.Mode, p.Participant)
		if err != nil {
			// Command validation failures are terminal; redelivery
			// would just fail the same way.
			log.Error().Err(err).Str("match_id", p.MatchID).Msg("rejected timer start command")
		}
		return nil

	case evtTimerCancel:
		var p timerCancelPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("unmarshal timer cancel payload: %w", err)
		}
		key := dqtimer.Key{
			TenantID:     env.TenantID,
			TournamentID: p.TournamentID,
			MatchID:      p.MatchID,
			Slot:         p.Slot,
		}
		if err := c.timers.Cancel(key); err != nil {
			log.Debug().Str("match_id", p.MatchID).Msg("cancel for absent timer")
		}
		return nil

	case evtFreezeAll:
		c.timers.FreezeAll()
		return nil

	case evtUnfreeze:
		c.timers.Unfreeze()
		return nil

	default:
		log.Warn().Str("event_type", env.EventType).Msg("unknown bracket event type, ignoring")
		return nil
	}
}

// Stop closes the NATS connection.
func (c *Consumer) Stop() error {
	if c.nc != nil {
		c.nc.Close()
	}
	return nil
}
