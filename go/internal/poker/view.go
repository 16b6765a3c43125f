package poker

import (
	"sort"
	"time"
)

// ParticipantView is the externally visible projection of a participant.
// Vote is populated only after reveal; pre-reveal, members see HasVoted
// alone.
type ParticipantView struct {
	Name          string    `json:"name"`
	IsFacilitator bool      `json:"is_facilitator"`
	IsViewer      bool      `json:"is_viewer"`
	Connected     bool      `json:"connected"`
	HasVoted      bool      `json:"has_voted"`
	Vote          *Vote     `json:"vote,omitempty"`
	JoinedAt      time.Time `json:"joined_at"`
}

// SessionView is the room-broadcast projection of a session. Vote values
// are hidden pre-reveal and tracker credentials never appear.
type SessionView struct {
	RoomCode           string            `json:"room_code"`
	SessionName        string            `json:"session_name"`
	FacilitatorName    string            `json:"facilitator_name"`
	CurrentTicket      string            `json:"current_ticket,omitempty"`
	CurrentIssue       *JiraIssue        `json:"current_issue,omitempty"`
	VotingActive       bool              `json:"voting_active"`
	VotingRevealed     bool              `json:"voting_revealed"`
	CountdownActive    bool              `json:"countdown_active"`
	CountdownRemaining int               `json:"countdown_remaining,omitempty"`
	DiscussionSeconds  int               `json:"discussion_seconds,omitempty"`
	Participants       []ParticipantView `json:"participants"`
	LastRound          *TallyResult      `json:"last_round,omitempty"`
	History            []RoundResult     `json:"history"`
	Aggregate          Aggregate         `json:"aggregate"`
}

// View builds the broadcastable projection at the given instant. Callers
// hold the session lock.
func (s *Session) View(now time.Time) SessionView {
	view := SessionView{
		RoomCode:        s.RoomCode,
		SessionName:     s.Name,
		FacilitatorName: s.FacilitatorName,
		CurrentTicket:   s.CurrentTicket,
		CurrentIssue:    s.CurrentIssue,
		VotingActive:    s.Voting(),
		VotingRevealed:  s.VotingRevealed,
		History:         s.History,
		Aggregate:       s.Aggregate,
	}
	if s.Countdown != nil {
		view.CountdownActive = true
		view.CountdownRemaining = s.Countdown.Remaining
	}
	if s.Discussion != nil && s.Discussion.Running {
		view.DiscussionSeconds = int(now.Sub(s.Discussion.StartedAt).Seconds())
	}
	if s.VotingRevealed && len(s.History) > 0 {
		stats := s.History[len(s.History)-1].Stats
		view.LastRound = &stats
	}
	for _, p := range s.Participants {
		pv := ParticipantView{
			Name:          p.Name,
			IsFacilitator: p.IsFacilitator,
			IsViewer:      p.IsViewer,
			Connected:     p.Connected(),
			JoinedAt:      p.JoinedAt,
		}
		if vote, ok := s.Votes[p.Name]; ok {
			pv.HasVoted = true
			if s.VotingRevealed {
				v := vote
				pv.Vote = &v
			}
		}
		view.Participants = append(view.Participants, pv)
	}
	sortParticipantViews(view.Participants)
	return view
}

// sortParticipantViews orders by join time so the view is stable across
// broadcasts.
func sortParticipantViews(views []ParticipantView) {
	sort.Slice(views, func(i, j int) bool {
		if views[i].JoinedAt.Equal(views[j].JoinedAt) {
			return views[i].Name < views[j].Name
		}
		return views[i].JoinedAt.Before(views[j].JoinedAt)
	})
}
