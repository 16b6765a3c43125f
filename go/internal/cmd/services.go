package main

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/Goldenhunter1206/scrumpoker/go/clients/jira"
	"github.com/Goldenhunter1206/scrumpoker/go/internal/archive"
	"github.com/Goldenhunter1206/scrumpoker/go/internal/coordinator"
	"github.com/Goldenhunter1206/scrumpoker/go/internal/gateway"
	"github.com/Goldenhunter1206/scrumpoker/go/internal/poker"
	"github.com/Goldenhunter1206/scrumpoker/go/internal/store"
	"github.com/Goldenhunter1206/scrumpoker/go/internal/token"
)

// Services is the wired dependency graph of the process.
type Services struct {
	Store       *store.Store
	Tokens      *token.Authority
	Manager     *gateway.Manager
	Coordinator *coordinator.Coordinator
	Handler     *gateway.Handler
	Sweeper     *store.Sweeper
	Archiver    *archive.Archiver
	Mirror      *store.NATSMirror
}

// setupServices wires the dependency chain: clock → token authority →
// store (+ optional mirror) → gateway manager → coordinator → handler.
func setupServices(ctx context.Context, config *Config) (*Services, error) {
	clock := clockwork.NewRealClock()

	var mirror *store.NATSMirror
	if config.NATS.Enabled {
		mirrorConfig := store.DefaultNATSMirrorConfig()
		mirrorConfig.URL = config.NATS.URL
		mirrorConfig.Bucket = config.NATS.Bucket
		mirrorConfig.SnapshotTTL = config.snapshotTTL()

		var err error
		mirror, err = store.NewNATSMirror(ctx, mirrorConfig)
		if err != nil {
			// The durable cache is never required for correctness;
			// degrade to memory-only operation.
			log.Warn().Err(err).Msg("durable cache unavailable, running in-memory only")
			mirror = nil
		}
	}

	tokens := token.NewAuthority(config.tokenTTL(), clock)

	var sessionStore *store.Store
	if mirror != nil {
		sessionStore = store.New(config.Session.MaxSessions, clock, mirror)
	} else {
		sessionStore = store.New(config.Session.MaxSessions, clock, nil)
	}
	if err := sessionStore.Recover(ctx); err != nil {
		log.Warn().Err(err).Msg("snapshot recovery failed, starting empty")
	}

	var archiver *archive.Archiver
	if config.Postgres.Enabled && config.Postgres.DSN != "" {
		var err error
		archiver, err = archive.New(ctx, config.Postgres.DSN)
		if err != nil {
			log.Warn().Err(err).Msg("round archive unavailable, continuing without it")
			archiver = nil
		}
	}

	manager := gateway.NewManager(gateway.DefaultConnectionConfig())

	var trackerFactory coordinator.TrackerFactory
	if config.Jira.Enabled {
		trackerFactory = func(jiraConfig poker.JiraConfig) coordinator.IssueTracker {
			return jira.NewClient(jiraConfig.BaseURL, jiraConfig.Email, jiraConfig.APIToken)
		}
	}

	coordinatorConfig := coordinator.DefaultConfig()
	coordinatorConfig.CountdownMinSeconds = config.Countdown.MinSeconds
	coordinatorConfig.CountdownMaxSeconds = config.Countdown.MaxSeconds

	var roundArchiver coordinator.RoundArchiver
	if archiver != nil {
		roundArchiver = archiver
	}
	coord := coordinator.New(sessionStore, tokens, manager, clock, trackerFactory, roundArchiver, coordinatorConfig)

	handler := gateway.NewHandler(manager, coord)
	sweeper := store.NewSweeper(sessionStore, clock, config.idleTTL(), config.sweepInterval(), coord.Reap)

	return &Services{
		Store:       sessionStore,
		Tokens:      tokens,
		Manager:     manager,
		Coordinator: coord,
		Handler:     handler,
		Sweeper:     sweeper,
		Archiver:    archiver,
		Mirror:      mirror,
	}, nil
}

// stop releases resources that are not tied to the root context.
func (s *Services) stop() {
	if s.Mirror != nil {
		s.Mirror.Close()
	}
}

// start launches the long-running workers.
func (s *Services) start(ctx context.Context, config *Config) {
	go s.Manager.Run(ctx)
	go s.Store.RunMirror(ctx)
	go s.Sweeper.Run(ctx)
	go s.Tokens.RunSweep(ctx, config.tokenSweepInterval())
	if s.Archiver != nil {
		go s.Archiver.Run(ctx)
	}
}
