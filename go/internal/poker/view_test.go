package poker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestViewHidesVotesBeforeReveal(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewSession("ABC123", "sprint 12", "alice", now)
	s.Participants["alice"].ConnectionID = "conn-1"
	s.Participants["bob"] = &Participant{Name: "bob", JoinedAt: now.Add(time.Second), ConnectionID: "conn-2"}
	s.CurrentTicket = "PAY-1"
	s.Votes["alice"] = "5"

	view := s.View(now.Add(time.Minute))
	require.True(t, view.VotingActive)
	require.Len(t, view.Participants, 2)

	alice := view.Participants[0]
	require.Equal(t, "alice", alice.Name)
	require.True(t, alice.HasVoted)
	require.Nil(t, alice.Vote)

	bob := view.Participants[1]
	require.False(t, bob.HasVoted)
	require.Nil(t, bob.Vote)

	s.Votes["bob"] = "8"
	s.VotingRevealed = true
	view = s.View(now.Add(time.Minute))
	require.False(t, view.VotingActive)
	require.NotNil(t, view.Participants[0].Vote)
	require.Equal(t, Vote("5"), *view.Participants[0].Vote)
	require.Equal(t, Vote("8"), *view.Participants[1].Vote)
}

func TestViewOrdersParticipantsByJoinTime(t *testing.T) {
	t.Parallel()

	now := time.Now()
	s := NewSession("ABC123", "sprint 12", "zoe", now)
	s.Participants["adam"] = &Participant{Name: "adam", JoinedAt: now.Add(time.Second)}
	s.Participants["mia"] = &Participant{Name: "mia", JoinedAt: now.Add(time.Second)}

	view := s.View(now)
	require.Equal(t, "zoe", view.Participants[0].Name)
	require.Equal(t, "adam", view.Participants[1].Name)
	require.Equal(t, "mia", view.Participants[2].Name)
}

func TestViewCountdownAndDiscussion(t *testing.T) {
	t.Parallel()

	now := time.Now()
	s := NewSession("ABC123", "sprint 12", "alice", now)
	s.Countdown = &CountdownState{Remaining: 42, Duration: 60}
	s.Discussion = &DiscussionState{StartedAt: now.Add(-90 * time.Second), Running: true}

	view := s.View(now)
	require.True(t, view.CountdownActive)
	require.Equal(t, 42, view.CountdownRemaining)
	require.Equal(t, 90, view.DiscussionSeconds)
}

func TestAllConnectedVotersVoted(t *testing.T) {
	t.Parallel()

	now := time.Now()
	s := NewSession("ABC123", "sprint 12", "alice", now)

	// Facilitator has no live connection yet; no connected voters.
	require.False(t, s.AllConnectedVotersVoted())

	s.Participants["alice"].ConnectionID = "conn-1"
	s.Participants["bob"] = &Participant{Name: "bob", JoinedAt: now, ConnectionID: "conn-2"}
	s.Participants["viewer"] = &Participant{Name: "viewer", JoinedAt: now, IsViewer: true, ConnectionID: "conn-3"}

	s.Votes["alice"] = "5"
	require.False(t, s.AllConnectedVotersVoted())

	s.Votes["bob"] = "8"
	require.True(t, s.AllConnectedVotersVoted())

	// A disconnected voter without a vote does not block.
	s.Participants["carol"] = &Participant{Name: "carol", JoinedAt: now}
	require.True(t, s.AllConnectedVotersVoted())
}
