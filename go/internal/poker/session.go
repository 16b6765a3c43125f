package poker

import (
	"sync"
	"time"
)

// Participant is a member of a session. The record survives disconnects;
// only moderation removal or session destruction deletes it.
type Participant struct {
	Name           string     `json:"name"`
	IsFacilitator  bool       `json:"is_facilitator"`
	IsViewer       bool       `json:"is_viewer"`
	JoinedAt       time.Time  `json:"joined_at"`
	ConnectionID   string     `json:"-"`
	DisconnectedAt *time.Time `json:"disconnected_at,omitempty"`
}

// Connected reports whether the participant has a live connection.
func (p *Participant) Connected() bool {
	return p.ConnectionID != ""
}

// JiraIssue is the issue currently under estimation, mutually exclusive
// with a free-text ticket.
type JiraIssue struct {
	Key     string `json:"key"`
	Summary string `json:"summary"`
}

// JiraConfig holds session-scoped tracker credentials. Never included in
// the session view or snapshots.
type JiraConfig struct {
	BaseURL  string `json:"-"`
	Email    string `json:"-"`
	APIToken string `json:"-"`
}

// CountdownState tracks an active voting countdown. Generation guards
// against ticks from a superseded timer task.
type CountdownState struct {
	Remaining  int    `json:"remaining"`
	Duration   int    `json:"duration"`
	Generation uint64 `json:"-"`
}

// DiscussionState tracks elapsed discussion time on the current ticket.
// StartedAt survives voting resets so the duration spans the ticket's
// whole life, not a single round.
type DiscussionState struct {
	StartedAt  time.Time `json:"started_at"`
	Running    bool      `json:"running"`
	Generation uint64    `json:"-"`
}

// Session is the authoritative state of one planning-poker room.
//
// All mutation happens under the session mutex; the coordinator takes it
// for the full span of every action and timer tick, and never performs
// network I/O while holding it.
type Session struct {
	RoomCode        string                  `json:"room_code"`
	Name            string                  `json:"name"`
	FacilitatorName string                  `json:"facilitator_name"`
	CurrentTicket   string                  `json:"current_ticket,omitempty"`
	CurrentIssue    *JiraIssue              `json:"current_issue,omitempty"`
	Jira            *JiraConfig             `json:"-"`
	Participants    map[string]*Participant `json:"participants"`
	Votes           map[string]Vote         `json:"votes"`
	VotingRevealed  bool                    `json:"voting_revealed"`
	Countdown       *CountdownState         `json:"countdown,omitempty"`
	Discussion      *DiscussionState        `json:"discussion,omitempty"`
	History         []RoundResult           `json:"history"`
	Aggregate       Aggregate               `json:"aggregate"`
	CreatedAt       time.Time               `json:"created_at"`
	LastActivityAt  time.Time               `json:"last_activity_at"`

	timerGen uint64
	mu       sync.Mutex
}

// NewSession creates a session in the Idle phase with its facilitator as
// the only participant.
func NewSession(roomCode, name, facilitatorName string, now time.Time) *Session {
	s := &Session{
		RoomCode:        roomCode,
		Name:            name,
		FacilitatorName: facilitatorName,
		Participants:    make(map[string]*Participant),
		Votes:           make(map[string]Vote),
		History:         nil,
		Aggregate:       NewAggregate(),
		CreatedAt:       now,
		LastActivityAt:  now,
	}
	s.Participants[facilitatorName] = &Participant{
		Name:          facilitatorName,
		IsFacilitator: true,
		JoinedAt:      now,
	}
	return s
}

// Lock takes the session's single-writer mutex.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the session's single-writer mutex.
func (s *Session) Unlock() { s.mu.Unlock() }

// NextTimerGen advances and returns the timer generation. A timer task
// captures the generation it was started with; a mismatch on tick means
// the task was superseded and must no-op.
func (s *Session) NextTimerGen() uint64 {
	s.timerGen++
	return s.timerGen
}

// Facilitator returns the facilitating participant. Sessions always hold
// exactly one.
func (s *Session) Facilitator() *Participant {
	return s.Participants[s.FacilitatorName]
}

// ParticipantByConnection finds the participant owning a live connection.
func (s *Session) ParticipantByConnection(connID string) *Participant {
	for _, p := range s.Participants {
		if p.ConnectionID == connID {
			return p
		}
	}
	return nil
}

// Voting reports whether the session is in the Voting phase: a ticket or
// issue is set and votes are not yet revealed.
func (s *Session) Voting() bool {
	return s.TicketSet() && !s.VotingRevealed
}

// TicketSet reports whether a ticket or issue is under estimation.
func (s *Session) TicketSet() bool {
	return s.CurrentTicket != "" || s.CurrentIssue != nil
}

// AllConnectedVotersVoted reports whether every currently connected
// non-viewer participant has a vote in. False when no voter is connected.
func (s *Session) AllConnectedVotersVoted() bool {
	voters := 0
	for _, p := range s.Participants {
		if p.IsViewer || !p.Connected() {
			continue
		}
		voters++
		if _, ok := s.Votes[p.Name]; !ok {
			return false
		}
	}
	return voters > 0
}

// ClearRound drops all votes and the revealed flag, returning the session
// to the Voting phase for the current ticket.
func (s *Session) ClearRound() {
	s.Votes = make(map[string]Vote)
	s.VotingRevealed = false
}

// MarkAllDisconnected clears every connection handle, stamping
// disconnectedAt. Used when restoring snapshots after a restart.
func (s *Session) MarkAllDisconnected(now time.Time) {
	for _, p := range s.Participants {
		if p.ConnectionID != "" {
			p.ConnectionID = ""
		}
		if p.DisconnectedAt == nil {
			t := now
			p.DisconnectedAt = &t
		}
	}
}
