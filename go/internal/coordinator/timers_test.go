package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func startCountdown(t *testing.T, env *testEnv, roomCode string, seconds int) uint64 {
	t.Helper()
	env.dispatch("conn-alice", roomCode, "start_countdown", countdownPayload{Seconds: seconds})
	s := env.session(t, roomCode)
	s.Lock()
	defer s.Unlock()
	require.NotNil(t, s.Countdown)
	require.Equal(t, seconds, s.Countdown.Remaining)
	return s.Countdown.Generation
}

func TestStartCountdownValidation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	roomCode, _ := env.createRoom(t)

	// Voting not open yet.
	env.dispatch("conn-alice", roomCode, "start_countdown", countdownPayload{Seconds: 30})
	requireErrorKind(t, env.bus, "conn-alice", KindConflict)

	env.dispatch("conn-alice", roomCode, "set_ticket", setTicketPayload{Ticket: "PAY-1"})

	// Out of bounds.
	env.dispatch("conn-alice", roomCode, "start_countdown", countdownPayload{Seconds: 5})
	requireErrorKind(t, env.bus, "conn-alice", KindValidation)
	env.dispatch("conn-alice", roomCode, "start_countdown", countdownPayload{Seconds: 301})
	requireErrorKind(t, env.bus, "conn-alice", KindValidation)

	// Double start.
	startCountdown(t, env, roomCode, 30)
	env.dispatch("conn-alice", roomCode, "start_countdown", countdownPayload{Seconds: 30})
	requireErrorKind(t, env.bus, "conn-alice", KindConflict)
}

func TestCountdownExpiryRevealsExactlyOnce(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	roomCode, _ := env.createRoom(t)
	env.join(t, "conn-bob", roomCode, "bob", false)
	env.dispatch("conn-alice", roomCode, "set_ticket", setTicketPayload{Ticket: "PAY-1"})
	env.dispatch("conn-bob", roomCode, "submit_vote", votePayload{Vote: "5"})

	gen := startCountdown(t, env, roomCode, 10)

	for i := 0; i < 9; i++ {
		env.clock.Advance(time.Second)
		require.False(t, env.coord.countdownTick(roomCode, gen))
	}
	require.Len(t, env.bus.broadcastsOfType(EventCountdownTick), 9)
	require.Empty(t, env.bus.broadcastsOfType(EventVotesRevealed))

	// The final tick expires the countdown and reveals.
	env.clock.Advance(time.Second)
	require.True(t, env.coord.countdownTick(roomCode, gen))
	require.Len(t, env.bus.broadcastsOfType(EventCountdownFinished), 1)
	require.Len(t, env.bus.broadcastsOfType(EventVotesRevealed), 1)

	s := env.session(t, roomCode)
	s.Lock()
	require.True(t, s.VotingRevealed)
	require.Nil(t, s.Countdown)
	require.Len(t, s.History, 1)
	s.Unlock()

	// A straggler tick from the finished task is a no-op.
	require.True(t, env.coord.countdownTick(roomCode, gen))
	require.Len(t, env.bus.broadcastsOfType(EventVotesRevealed), 1)
}

func TestCancelCountdownStopsTicks(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	roomCode, _ := env.createRoom(t)
	env.dispatch("conn-alice", roomCode, "set_ticket", setTicketPayload{Ticket: "PAY-1"})
	gen := startCountdown(t, env, roomCode, 30)

	env.dispatch("conn-alice", roomCode, "cancel_countdown", nil)
	require.Len(t, env.bus.broadcastsOfType(EventCountdownCancelled), 1)

	// The superseded task's next tick observes the cancellation.
	require.True(t, env.coord.countdownTick(roomCode, gen))
	require.Empty(t, env.bus.broadcastsOfType(EventVotesRevealed))

	s := env.session(t, roomCode)
	s.Lock()
	require.False(t, s.VotingRevealed)
	s.Unlock()

	// Cancelling with nothing active is a conflict.
	env.dispatch("conn-alice", roomCode, "cancel_countdown", nil)
	requireErrorKind(t, env.bus, "conn-alice", KindConflict)
}

func TestStaleGenerationTickIgnored(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	roomCode, _ := env.createRoom(t)
	env.dispatch("conn-alice", roomCode, "set_ticket", setTicketPayload{Ticket: "PAY-1"})
	oldGen := startCountdown(t, env, roomCode, 30)

	env.dispatch("conn-alice", roomCode, "cancel_countdown", nil)
	newGen := startCountdown(t, env, roomCode, 20)
	require.NotEqual(t, oldGen, newGen)

	// The old task may fire after the restart; it must not touch the
	// fresh countdown.
	require.True(t, env.coord.countdownTick(roomCode, oldGen))
	s := env.session(t, roomCode)
	s.Lock()
	require.Equal(t, 20, s.Countdown.Remaining)
	s.Unlock()

	require.False(t, env.coord.countdownTick(roomCode, newGen))
	s.Lock()
	require.Equal(t, 19, s.Countdown.Remaining)
	s.Unlock()
}

func TestUnanimousVotesRevealEarly(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	roomCode, _ := env.createRoom(t)
	env.join(t, "conn-bob", roomCode, "bob", false)
	env.join(t, "conn-eve", roomCode, "eve", true)
	env.dispatch("conn-alice", roomCode, "set_ticket", setTicketPayload{Ticket: "PAY-1"})
	startCountdown(t, env, roomCode, 60)

	env.dispatch("conn-alice", roomCode, "submit_vote", votePayload{Vote: "5"})
	require.Empty(t, env.bus.broadcastsOfType(EventVotesRevealed))

	// The last connected voter completes the set; the viewer does not
	// count.
	env.dispatch("conn-bob", roomCode, "submit_vote", votePayload{Vote: "8"})
	require.Len(t, env.bus.broadcastsOfType(EventCountdownFinished), 1)
	require.Len(t, env.bus.broadcastsOfType(EventVotesRevealed), 1)

	s := env.session(t, roomCode)
	s.Lock()
	defer s.Unlock()
	require.True(t, s.VotingRevealed)
	require.Nil(t, s.Countdown)
}

func TestNoEarlyRevealWithoutCountdown(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	roomCode, _ := env.createRoom(t)
	env.dispatch("conn-alice", roomCode, "set_ticket", setTicketPayload{Ticket: "PAY-1"})

	env.dispatch("conn-alice", roomCode, "submit_vote", votePayload{Vote: "5"})

	require.Empty(t, env.bus.broadcastsOfType(EventVotesRevealed))
	s := env.session(t, roomCode)
	s.Lock()
	defer s.Unlock()
	require.False(t, s.VotingRevealed)
}

func TestDiscussionTick(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	roomCode, _ := env.createRoom(t)
	env.dispatch("conn-alice", roomCode, "set_ticket", setTicketPayload{Ticket: "PAY-1"})

	s := env.session(t, roomCode)
	s.Lock()
	gen := s.Discussion.Generation
	s.Unlock()

	env.clock.Advance(90 * time.Second)
	require.False(t, env.coord.discussionTick(roomCode, gen))

	ticks := env.bus.broadcastsOfType(EventDiscussionTick)
	require.NotEmpty(t, ticks)
	var payload DiscussionTickPayload
	decodeEvent(t, ticks[len(ticks)-1], &payload)
	require.Equal(t, 90, payload.ElapsedSeconds)
	require.False(t, payload.Final)

	// Reveal freezes the timer and emits a final tick.
	env.dispatch("conn-alice", roomCode, "submit_vote", votePayload{Vote: "5"})
	env.clock.Advance(30 * time.Second)
	env.dispatch("conn-alice", roomCode, "reveal_votes", nil)

	ticks = env.bus.broadcastsOfType(EventDiscussionTick)
	decodeEvent(t, ticks[len(ticks)-1], &payload)
	require.True(t, payload.Final)
	require.Equal(t, 120, payload.ElapsedSeconds)

	// The frozen duration is recorded on the round.
	s.Lock()
	require.Equal(t, 120, s.History[0].DiscussionSeconds)
	s.Unlock()

	// The superseded task stops.
	require.True(t, env.coord.discussionTick(roomCode, gen))
}

func TestDiscussionResumeKeepsStart(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	roomCode, _ := env.createRoom(t)
	env.dispatch("conn-alice", roomCode, "set_ticket", setTicketPayload{Ticket: "PAY-1"})

	s := env.session(t, roomCode)
	s.Lock()
	started := s.Discussion.StartedAt
	s.Unlock()

	env.clock.Advance(time.Minute)
	env.dispatch("conn-alice", roomCode, "submit_vote", votePayload{Vote: "5"})
	env.dispatch("conn-alice", roomCode, "reveal_votes", nil)
	env.clock.Advance(time.Minute)
	env.dispatch("conn-alice", roomCode, "reset_voting", nil)

	s.Lock()
	defer s.Unlock()
	require.True(t, s.Discussion.Running)
	require.Equal(t, started, s.Discussion.StartedAt)
}
