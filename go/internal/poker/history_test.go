package poker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func roundFor(votes map[string]Vote, revealedAt time.Time) RoundResult {
	return RoundResult{
		Ticket:     "PAY-1",
		Votes:      votes,
		Stats:      Tally(votes),
		RevealedAt: revealedAt,
	}
}

func TestRecordRoundAggregate(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewSession("ABC123", "sprint 12", "alice", now)

	// Variance-free round: everyone agrees.
	s.RecordRound(roundFor(map[string]Vote{"alice": "5", "bob": "5"}, now))
	// Round with variance.
	s.RecordRound(roundFor(map[string]Vote{"alice": "8", "bob": "3"}, now.Add(time.Minute)))
	// Plurality consensus but min != max: still not a consensus round.
	s.RecordRound(roundFor(map[string]Vote{"alice": "5", "bob": "5", "carol": "13"}, now.Add(2*time.Minute)))

	agg := s.Aggregate
	require.Equal(t, 3, agg.TotalRounds)
	require.Equal(t, 1, agg.ConsensusRounds)
	require.Len(t, s.History, 3)

	alice := agg.PerParticipant["alice"]
	require.NotNil(t, alice)
	require.Equal(t, 3, alice.Count)
	require.Equal(t, 18.0, alice.Sum)
	// High in round two only; rounds with min == max count neither.
	require.Equal(t, 1, alice.HighCount)
	require.Equal(t, 0, alice.LowCount)

	bob := agg.PerParticipant["bob"]
	require.Equal(t, 1, bob.LowCount)

	carol := agg.PerParticipant["carol"]
	require.Equal(t, 1, carol.Count)
	require.Equal(t, 1, carol.HighCount)
}

func TestRecordRoundSkipsSentinels(t *testing.T) {
	t.Parallel()

	now := time.Now()
	s := NewSession("ABC123", "sprint 12", "alice", now)
	s.RecordRound(roundFor(map[string]Vote{"alice": "5", "bob": VoteUnknown}, now))

	require.Equal(t, 1, s.Aggregate.TotalRounds)
	require.Contains(t, s.Aggregate.PerParticipant, "alice")
	require.NotContains(t, s.Aggregate.PerParticipant, "bob")
}
