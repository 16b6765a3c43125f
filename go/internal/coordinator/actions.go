package coordinator

import (
	"github.com/rs/zerolog/log"

	"github.com/Goldenhunter1206/scrumpoker/go/internal/poker"
)

type setTicketPayload struct {
	Ticket string `json:"ticket"`
}

type votePayload struct {
	Vote poker.Vote `json:"vote"`
}

type countdownPayload struct {
	Seconds int `json:"seconds"`
}

type moderatePayload struct {
	Target string `json:"target"`
	Action string `json:"action"`
}

type viewerPayload struct {
	IsViewer bool `json:"is_viewer"`
}

// handleSetTicket puts a free-text ticket under estimation and moves the
// session to Voting: votes cleared, countdown cancelled, discussion timer
// restarted, any previously selected issue dropped.
func handleSetTicket(c *Coordinator, s *poker.Session, actor *poker.Participant, action Action, _ any) *Error {
	payload, err := decodePayload[setTicketPayload](action.Payload)
	if err != nil {
		return err
	}
	if payload.Ticket == "" {
		return validationf("ticket text must not be empty")
	}

	s.ClearRound()
	c.cancelCountdownLocked(s)
	s.CurrentIssue = nil
	s.CurrentTicket = payload.Ticket
	c.startDiscussionLocked(s, c.clock.Now())

	c.bus.BroadcastToRoom(s.RoomCode, c.newEvent(s.RoomCode, EventTicketSet, TicketSetPayload{Ticket: payload.Ticket}))
	return nil
}

// handleClearTicket returns the session to Idle.
func handleClearTicket(c *Coordinator, s *poker.Session, actor *poker.Participant, action Action, _ any) *Error {
	if !s.TicketSet() {
		return conflictf("no ticket is set")
	}

	s.ClearRound()
	c.cancelCountdownLocked(s)
	s.CurrentTicket = ""
	s.CurrentIssue = nil
	s.Discussion = nil

	c.bus.BroadcastToRoom(s.RoomCode, c.newEvent(s.RoomCode, EventTicketCleared, nil))
	return nil
}

// handleSubmitVote records or overwrites the actor's vote. When a
// countdown is running and this made the vote unanimous across connected
// voters, the round reveals early through the shared reveal sequence.
func handleSubmitVote(c *Coordinator, s *poker.Session, actor *poker.Participant, action Action, _ any) *Error {
	payload, err := decodePayload[votePayload](action.Payload)
	if err != nil {
		return err
	}
	if actor.IsViewer {
		return authorizationf("viewers cannot vote")
	}
	if !s.Voting() {
		return conflictf("voting is not open")
	}
	if !payload.Vote.Valid() {
		return validationf("%q is not a valid vote", payload.Vote)
	}

	s.Votes[actor.Name] = payload.Vote

	// Own vote value goes back to the voter only; the room sees just
	// hasVoted until reveal.
	c.bus.SendToConnection(action.ConnID, c.newEvent(s.RoomCode, EventVoteSubmitted, VoteSubmittedPayload{Vote: payload.Vote}))

	if s.Countdown != nil && s.AllConnectedVotersVoted() {
		log.Info().Str("room_code", s.RoomCode).Msg("all connected voters voted, revealing early")
		c.finishRevealLocked(s, true)
	}
	return nil
}

// handleRevealVotes is the facilitator's manual reveal.
func handleRevealVotes(c *Coordinator, s *poker.Session, actor *poker.Participant, action Action, _ any) *Error {
	if !s.Voting() {
		return conflictf("there is no open voting round to reveal")
	}
	c.finishRevealLocked(s, false)
	return nil
}

// handleResetVoting clears the round but keeps the ticket. The discussion
// timer keeps its original start; if a reveal had frozen it, it resumes.
func handleResetVoting(c *Coordinator, s *poker.Session, actor *poker.Participant, action Action, _ any) *Error {
	s.ClearRound()
	c.cancelCountdownLocked(s)
	if s.TicketSet() && s.Discussion != nil && !s.Discussion.Running {
		c.resumeDiscussionLocked(s)
	}
	c.bus.BroadcastToRoom(s.RoomCode, c.newEvent(s.RoomCode, EventVotingReset, nil))
	return nil
}

// handleStartCountdown schedules the auto-reveal countdown.
func handleStartCountdown(c *Coordinator, s *poker.Session, actor *poker.Participant, action Action, _ any) *Error {
	payload, err := decodePayload[countdownPayload](action.Payload)
	if err != nil {
		return err
	}
	if !s.Voting() {
		return conflictf("voting is not open")
	}
	if s.Countdown != nil {
		return conflictf("a countdown is already active")
	}
	if payload.Seconds < c.config.CountdownMinSeconds || payload.Seconds > c.config.CountdownMaxSeconds {
		return validationf("countdown must be between %d and %d seconds",
			c.config.CountdownMinSeconds, c.config.CountdownMaxSeconds)
	}

	c.startCountdownLocked(s, payload.Seconds)
	c.bus.BroadcastToRoom(s.RoomCode, c.newEvent(s.RoomCode, EventCountdownStarted, CountdownPayload{
		Remaining: payload.Seconds,
		Duration:  payload.Seconds,
	}))
	return nil
}

// handleCancelCountdown aborts an active countdown without revealing.
func handleCancelCountdown(c *Coordinator, s *poker.Session, actor *poker.Participant, action Action, _ any) *Error {
	if s.Countdown == nil {
		return conflictf("no countdown is active")
	}
	c.cancelCountdownLocked(s)
	c.bus.BroadcastToRoom(s.RoomCode, c.newEvent(s.RoomCode, EventCountdownCancelled, nil))
	return nil
}

// handleModerateParticipant applies a facilitator moderation action to a
// target participant.
func handleModerateParticipant(c *Coordinator, s *poker.Session, actor *poker.Participant, action Action, _ any) *Error {
	payload, err := decodePayload[moderatePayload](action.Payload)
	if err != nil {
		return err
	}
	target := s.Participants[payload.Target]
	if target == nil {
		return notFoundf("no participant named %q", payload.Target)
	}

	switch payload.Action {
	case "make-viewer":
		target.IsViewer = true
		delete(s.Votes, target.Name)

	case "make-participant":
		target.IsViewer = false

	case "make-facilitator":
		if target.IsFacilitator {
			return conflictf("%q is already the facilitator", target.Name)
		}
		// Role swap: exactly one facilitator before and after. The new
		// facilitator must be able to vote; the outgoing one keeps their
		// viewer flag as-is.
		actor.IsFacilitator = false
		target.IsFacilitator = true
		target.IsViewer = false
		s.FacilitatorName = target.Name
		c.bus.BroadcastToRoom(s.RoomCode, c.newEvent(s.RoomCode, EventFacilitatorChanged, FacilitatorChangedPayload{
			PreviousName: actor.Name,
			NewName:      target.Name,
		}))

	case "remove":
		if target.IsFacilitator {
			return conflictf("transfer facilitation before removing the facilitator")
		}
		connID := target.ConnectionID
		delete(s.Participants, target.Name)
		delete(s.Votes, target.Name)
		c.tokens.InvalidateByParticipant(s.RoomCode, target.Name)
		c.bus.BroadcastToRoom(s.RoomCode, c.newEvent(s.RoomCode, EventParticipantRemoved, ParticipantPayload{Name: target.Name}))
		if connID != "" {
			c.bus.SendToConnection(connID, c.newEvent(s.RoomCode, EventRemovedFromSession, nil))
			c.bus.Kick(connID)
		}
		log.Info().
			Str("room_code", s.RoomCode).
			Str("participant", target.Name).
			Msg("participant removed by facilitator")

	default:
		return validationf("unknown moderation action %q", payload.Action)
	}
	return nil
}

// handleSetFacilitatorViewer toggles the facilitator's own viewer flag.
func handleSetFacilitatorViewer(c *Coordinator, s *poker.Session, actor *poker.Participant, action Action, _ any) *Error {
	payload, err := decodePayload[viewerPayload](action.Payload)
	if err != nil {
		return err
	}
	actor.IsViewer = payload.IsViewer
	if payload.IsViewer {
		delete(s.Votes, actor.Name)
	}
	return nil
}

// handleEndSession destroys the session on the facilitator's request.
func handleEndSession(c *Coordinator, s *poker.Session, actor *poker.Participant, action Action, _ any) *Error {
	c.destroyLocked(s, "session ended by facilitator")
	return nil
}

// finishRevealLocked is the single reveal sequence shared by manual
// reveal, countdown expiry and the early-unanimous path: freeze the
// discussion timer, flip to Revealed, tally, record the round, update the
// aggregate, emit events, archive. Callers hold the session lock.
//
// countdownFinished distinguishes the countdown-driven paths, which emit
// a countdown_finished notification before votes_revealed.
func (c *Coordinator) finishRevealLocked(s *poker.Session, countdownFinished bool) {
	now := c.clock.Now()
	s.Countdown = nil

	discussionSeconds := 0
	if s.Discussion != nil {
		discussionSeconds = elapsedSeconds(s.Discussion.StartedAt, now)
		if s.Discussion.Running {
			s.Discussion.Running = false
			c.bus.BroadcastToRoom(s.RoomCode, c.newEvent(s.RoomCode, EventDiscussionTick, DiscussionTickPayload{
				ElapsedSeconds: discussionSeconds,
				Final:          true,
			}))
		}
	}

	s.VotingRevealed = true
	votes := make(map[string]poker.Vote, len(s.Votes))
	for name, vote := range s.Votes {
		votes[name] = vote
	}
	stats := poker.Tally(votes)

	round := poker.RoundResult{
		Ticket:            s.CurrentTicket,
		Votes:             votes,
		Stats:             stats,
		DiscussionSeconds: discussionSeconds,
		RevealedAt:        now,
	}
	if s.CurrentIssue != nil {
		round.IssueKey = s.CurrentIssue.Key
	}
	s.RecordRound(round)

	if countdownFinished {
		c.bus.BroadcastToRoom(s.RoomCode, c.newEvent(s.RoomCode, EventCountdownFinished, CountdownPayload{Remaining: 0}))
	}
	c.bus.BroadcastToRoom(s.RoomCode, c.newEvent(s.RoomCode, EventVotesRevealed, VotesRevealedPayload{
		Votes: votes,
		Stats: stats,
	}))

	if c.archive != nil {
		c.archive.ArchiveRound(s.RoomCode, round)
	}

	log.Info().
		Str("room_code", s.RoomCode).
		Int("total_votes", stats.TotalVotes).
		Bool("consensus", stats.HasConsensus).
		Msg("votes revealed")
}
