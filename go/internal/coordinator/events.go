package coordinator

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Goldenhunter1206/scrumpoker/go/internal/poker"
)

// Event is the envelope for everything the coordinator emits: the
// room-broadcast session view plus discrete named events collaborators can
// render without diffing views.
type Event struct {
	ID        string          `json:"id"`
	RoomCode  string          `json:"room_code"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// EventType names a coordinator event.
type EventType string

const (
	EventSessionCreated     EventType = "session_created"
	EventSessionJoined      EventType = "session_joined"
	EventSessionEnded       EventType = "session_ended"
	EventSessionState       EventType = "session_state"
	EventParticipantJoined  EventType = "participant_joined"
	EventParticipantLeft    EventType = "participant_left"
	EventParticipantRemoved EventType = "participant_removed"
	EventRemovedFromSession EventType = "removed_from_session"
	EventFacilitatorChanged EventType = "facilitator_changed"
	EventTicketSet          EventType = "ticket_set"
	EventTicketCleared      EventType = "ticket_cleared"
	EventVoteSubmitted      EventType = "vote_submitted"
	EventVotesRevealed      EventType = "votes_revealed"
	EventVotingReset        EventType = "voting_reset"
	EventCountdownStarted   EventType = "countdown_started"
	EventCountdownTick      EventType = "countdown_tick"
	EventCountdownFinished  EventType = "countdown_finished"
	EventCountdownCancelled EventType = "countdown_cancelled"
	EventDiscussionTick     EventType = "discussion_tick"
	EventJiraBoards         EventType = "jira_boards"
	EventJiraIssues         EventType = "jira_issues"
	EventEstimateFinalized  EventType = "estimate_finalized"
	EventError              EventType = "error"
)

// SessionCreatedPayload is the directed reply to a create-session request.
// The reconnection token is delivered once, only to its owner.
type SessionCreatedPayload struct {
	RoomCode string           `json:"room_code"`
	Token    string           `json:"token"`
	View     poker.SessionView `json:"view"`
}

// SessionJoinedPayload is the directed reply to a successful join or
// reconnection.
type SessionJoinedPayload struct {
	RoomCode    string            `json:"room_code"`
	Name        string            `json:"name"`
	Token       string            `json:"token"`
	Reconnected bool              `json:"reconnected"`
	YourVote    *poker.Vote       `json:"your_vote,omitempty"`
	View        poker.SessionView `json:"view"`
}

// ParticipantPayload identifies the subject of a membership event.
type ParticipantPayload struct {
	Name     string `json:"name"`
	IsViewer bool   `json:"is_viewer,omitempty"`
}

// FacilitatorChangedPayload announces a facilitator transfer.
type FacilitatorChangedPayload struct {
	PreviousName string `json:"previous_name"`
	NewName      string `json:"new_name"`
}

// TicketSetPayload announces the ticket now under estimation.
type TicketSetPayload struct {
	Ticket string           `json:"ticket,omitempty"`
	Issue  *poker.JiraIssue `json:"issue,omitempty"`
}

// VoteSubmittedPayload is the directed acknowledgement of a vote; the
// value is visible only to its owner pre-reveal.
type VoteSubmittedPayload struct {
	Vote poker.Vote `json:"vote"`
}

// VotesRevealedPayload carries the freshly computed round statistics.
type VotesRevealedPayload struct {
	Votes map[string]poker.Vote `json:"votes"`
	Stats poker.TallyResult     `json:"stats"`
}

// CountdownPayload carries countdown lifecycle data.
type CountdownPayload struct {
	Remaining int `json:"remaining"`
	Duration  int `json:"duration,omitempty"`
}

// DiscussionTickPayload reports elapsed discussion seconds; Final marks
// the frozen duration emitted at reveal.
type DiscussionTickPayload struct {
	ElapsedSeconds int  `json:"elapsed_seconds"`
	Final          bool `json:"final,omitempty"`
}

// EstimateFinalizedPayload announces an estimate pushed to the tracker.
type EstimateFinalizedPayload struct {
	IssueKey string  `json:"issue_key"`
	Estimate float64 `json:"estimate"`
}

// ErrorPayload is the directed error reply for a rejected action.
type ErrorPayload struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// newEvent builds an event envelope, marshalling the payload. Payload
// marshalling only fails for unmarshalable types, which is a programming
// error worth a log line, not a user-facing failure.
func (c *Coordinator) newEvent(roomCode string, eventType EventType, payload any) *Event {
	event := &Event{
		ID:        uuid.New().String(),
		RoomCode:  roomCode,
		Type:      eventType,
		Timestamp: c.clock.Now(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to marshal event payload")
			return event
		}
		event.Data = data
	}
	return event
}
