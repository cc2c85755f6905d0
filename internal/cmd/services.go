package main

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/openmat/courtcast/internal/bracket/delta"
	"github.com/openmat/courtcast/internal/bracket/snapshot"
	"github.com/openmat/courtcast/internal/display"
	"github.com/openmat/courtcast/internal/display/consumer"
	"github.com/openmat/courtcast/internal/display/fallback"
	"github.com/openmat/courtcast/internal/display/gateway"
	"github.com/openmat/courtcast/internal/dqtimer"
	"github.com/openmat/courtcast/internal/matchstate"
)

type Services struct {
	Connections *gateway.ConnectionManager
	Display     *display.Service
	Timers      *dqtimer.Scheduler
	Consumer    *consumer.Consumer
	Pusher      *fallback.Pusher
}

func setupServices(config *Config) (*Services, error) {
	clock := clockwork.NewRealClock()

	store, err := setupSnapshotStore(config, clock)
	if err != nil {
		return nil, err
	}

	// Connection registry + fan-out.
	connections := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())

	// Fallback path: grace-window decision over the registry's ack
	// state, best-effort push of the full snapshot.
	decider := fallback.NewDecider(connections, config.fallbackWindow(), clock)
	pusher := fallback.NewPusher(config.Fallback.Endpoint, config.fallbackTimeout())

	// Publish pipeline: snapshot → delta → broadcast.
	dispatcher := display.NewDispatcher(connections, decider, pusher, clock)
	displayService := display.NewService(store, delta.NewComputer(), dispatcher)

	// DQ timers: events go out through the same dispatcher; the
	// terminal action mutates match state through the collaborator and
	// re-publishes the tenant afterwards.
	matchStateClient := matchstate.NewClient(
		config.MatchState.BaseURL,
		time.Duration(config.MatchState.TimeoutSeconds)*time.Second,
	)
	timers := dqtimer.NewScheduler(
		clock,
		dispatcher,
		matchStateClient,
		displayService,
		displayService.Refresh,
		dqtimer.Config{
			WarningThreshold: time.Duration(config.Timers.WarningSeconds) * time.Second,
			ActionTimeout:    time.Duration(config.Timers.ActionTimeoutSeconds) * time.Second,
		},
	)

	// Inbound event stream from the match-state collaborator.
	consumerConfig := consumer.DefaultConfig()
	if config.NATS.URL != "" {
		consumerConfig.URL = config.NATS.URL
	}
	consumerConfig.StreamName = config.NATS.Stream
	consumerConfig.ConsumerName = config.NATS.Consumer
	consumerConfig.SubjectFilter = config.NATS.Subject

	eventConsumer, err := consumer.New(displayService, timers, consumerConfig)
	if err != nil {
		return nil, fmt.Errorf("create event consumer: %w", err)
	}

	return &Services{
		Connections: connections,
		Display:     displayService,
		Timers:      timers,
		Consumer:    eventConsumer,
		Pusher:      pusher,
	}, nil
}

func setupSnapshotStore(config *Config, clock clockwork.Clock) (snapshot.Store, error) {
	switch config.Snapshot.Backend {
	case "postgres":
		database, err := setupDatabase(config)
		if err != nil {
			return nil, fmt.Errorf("setup database: %w", err)
		}
		return snapshot.NewPGStore(database, config.stalenessThreshold(), clock), nil

	case "file":
		store, err := snapshot.NewFileStore(config.Snapshot.Dir, config.stalenessThreshold(), clock)
		if err != nil {
			return nil, fmt.Errorf("setup snapshot dir: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown snapshot backend %q", config.Snapshot.Backend)
	}
}
