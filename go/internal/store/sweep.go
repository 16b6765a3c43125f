package store

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Sweeper reaps idle sessions on a schedule, independent of any request
// path. The reap callback runs the full coordinator teardown (timers,
// tokens, notifications) so the sweeper itself never touches session
// internals.
type Sweeper struct {
	store    *Store
	clock    clockwork.Clock
	idleTTL  time.Duration
	interval time.Duration
	reap     func(roomCode string)
}

// NewSweeper creates an idle-session sweeper.
func NewSweeper(store *Store, clock clockwork.Clock, idleTTL, interval time.Duration, reap func(roomCode string)) *Sweeper {
	return &Sweeper{
		store:    store,
		clock:    clock,
		idleTTL:  idleTTL,
		interval: interval,
		reap:     reap,
	}
}

// Run sweeps until the context is cancelled.
func (sw *Sweeper) Run(ctx context.Context) {
	log.Info().
		Dur("idle_ttl", sw.idleTTL).
		Dur("interval", sw.interval).
		Msg("idle session sweeper started")

	ticker := sw.clock.NewTicker(sw.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("idle session sweeper shutting down")
			return
		case <-ticker.Chan():
			sw.SweepOnce()
		}
	}
}

// SweepOnce reaps every session idle past the TTL.
func (sw *Sweeper) SweepOnce() {
	now := sw.clock.Now()
	var idle []string
	for _, s := range sw.store.All() {
		s.Lock()
		if now.Sub(s.LastActivityAt) > sw.idleTTL {
			idle = append(idle, s.RoomCode)
		}
		s.Unlock()
	}
	for _, roomCode := range idle {
		log.Info().Str("room_code", roomCode).Msg("reaping idle session")
		sw.reap(roomCode)
	}
}
