// Package archive writes revealed rounds to Postgres for later analysis.
// Archival is fire-and-forget and entirely off the broadcast path; the
// session history stays authoritative in memory.
package archive

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/Goldenhunter1206/scrumpoker/go/internal/poker"
)

const schema = `
CREATE TABLE IF NOT EXISTS revealed_rounds (
	id BIGSERIAL PRIMARY KEY,
	room_code TEXT NOT NULL,
	ticket TEXT,
	issue_key TEXT,
	votes JSONB NOT NULL,
	average DOUBLE PRECISION NOT NULL,
	total_votes INT NOT NULL,
	has_consensus BOOLEAN NOT NULL,
	discussion_seconds INT NOT NULL,
	revealed_at TIMESTAMPTZ NOT NULL
)`

type entry struct {
	roomCode string
	round    poker.RoundResult
}

// Archiver buffers rounds and inserts them from a worker goroutine.
type Archiver struct {
	pool *pgxpool.Pool
	ch   chan entry
}

// New connects the pool and ensures the table exists.
func New(ctx context.Context, dsn string) (*Archiver, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure archive schema: %w", err)
	}
	return &Archiver{
		pool: pool,
		ch:   make(chan entry, 128),
	}, nil
}

// ArchiveRound queues one revealed round. Never blocks; a full queue
// drops the round with a log line.
func (a *Archiver) ArchiveRound(roomCode string, round poker.RoundResult) {
	select {
	case a.ch <- entry{roomCode: roomCode, round: round}:
	default:
		log.Warn().Str("room_code", roomCode).Msg("archive queue full, dropping round")
	}
}

// Run drains the queue until the context is cancelled, then closes the
// pool.
func (a *Archiver) Run(ctx context.Context) {
	log.Info().Msg("round archiver started")
	defer a.pool.Close()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("round archiver shutting down")
			return
		case e := <-a.ch:
			if err := a.insert(ctx, e); err != nil {
				log.Warn().Err(err).Str("room_code", e.roomCode).Msg("failed to archive round")
			}
		}
	}
}

func (a *Archiver) insert(ctx context.Context, e entry) error {
	votes, err := json.Marshal(e.round.Votes)
	if err != nil {
		return fmt.Errorf("marshal votes: %w", err)
	}
	_, err = a.pool.Exec(ctx,
		`INSERT INTO revealed_rounds
			(room_code, ticket, issue_key, votes, average, total_votes, has_consensus, discussion_seconds, revealed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.roomCode,
		e.round.Ticket,
		e.round.IssueKey,
		votes,
		e.round.Stats.Average,
		e.round.Stats.TotalVotes,
		e.round.Stats.HasConsensus,
		e.round.DiscussionSeconds,
		e.round.RevealedAt,
	)
	return err
}
