package coordinator

import (
	"context"

	"github.com/Goldenhunter1206/scrumpoker/go/clients/jira"
	"github.com/Goldenhunter1206/scrumpoker/go/internal/poker"
)

// Tracker calls run in the prepare phase, before the session lock is
// taken, so a slow tracker can never stall a phase transition and no
// phase-changing mutation begins until the call has fully resolved.
// Handlers then re-validate state under the lock before committing.

type jiraCredentialsPayload struct {
	BaseURL  string `json:"base_url"`
	Email    string `json:"email"`
	APIToken string `json:"api_token"`
}

type jiraBoardPayload struct {
	BoardID int `json:"board_id"`
}

type jiraIssuePayload struct {
	IssueKey string `json:"issue_key"`
}

// jiraListing is the prepared result of a tracker read, relayed to the
// requesting connection only.
type jiraListing struct {
	eventType EventType
	payload   any
}

// JiraBoardsPayload is the directed board-listing reply.
type JiraBoardsPayload struct {
	Boards []jira.Board `json:"boards"`
}

// JiraIssuesPayload is the directed issue-listing reply.
type JiraIssuesPayload struct {
	BoardID int          `json:"board_id"`
	Issues  []jira.Issue `json:"issues"`
}

// preparedCredentials carries validated credentials plus the board
// listing fetched while validating them.
type preparedCredentials struct {
	config poker.JiraConfig
	boards []jira.Board
}

// preparedEstimate is the result of a finalize push: the estimate has
// already been written to the tracker when the handler runs.
type preparedEstimate struct {
	issueKey string
	estimate float64
}

// trackerFor returns the session's tracker client, or nil when the
// integration or the session credentials are missing.
func (c *Coordinator) trackerFor(s *poker.Session) IssueTracker {
	if c.tracker == nil || s == nil || s.Jira == nil {
		return nil
	}
	return c.tracker(*s.Jira)
}

// sessionTracker resolves the session and builds a tracker from its
// stored credentials without holding the lock across any I/O.
func (c *Coordinator) sessionTracker(roomCode string) (IssueTracker, *Error) {
	s, err := c.store.Get(roomCode)
	if err != nil {
		return nil, notFoundf("unknown room %q", roomCode)
	}
	s.Lock()
	tracker := c.trackerFor(s)
	s.Unlock()
	if tracker == nil {
		return nil, conflictf("jira is not configured for this session")
	}
	return tracker, nil
}

func prepareJiraCredentials(c *Coordinator, ctx context.Context, action Action) (any, *Error) {
	payload, err := decodePayload[jiraCredentialsPayload](action.Payload)
	if err != nil {
		return nil, err
	}
	if payload.BaseURL == "" || payload.Email == "" || payload.APIToken == "" {
		return nil, validationf("jira base_url, email and api_token are all required")
	}
	if c.tracker == nil {
		return nil, conflictf("jira integration is not enabled on this server")
	}

	config := poker.JiraConfig{
		BaseURL:  payload.BaseURL,
		Email:    payload.Email,
		APIToken: payload.APIToken,
	}
	// Validate the credentials by listing boards; the listing doubles as
	// the reply.
	boards, upErr := c.tracker(config).ListBoards(ctx)
	if upErr != nil {
		return nil, upstreamf("could not verify jira credentials: %v", upErr)
	}
	return preparedCredentials{config: config, boards: boards}, nil
}

func handleSetJiraCredentials(c *Coordinator, s *poker.Session, actor *poker.Participant, action Action, prepared any) *Error {
	creds := prepared.(preparedCredentials)
	config := creds.config
	s.Jira = &config
	c.bus.SendToConnection(action.ConnID, c.newEvent(s.RoomCode, EventJiraBoards, JiraBoardsPayload{Boards: creds.boards}))
	return nil
}

func prepareListBoards(c *Coordinator, ctx context.Context, action Action) (any, *Error) {
	tracker, err := c.sessionTracker(action.RoomCode)
	if err != nil {
		return nil, err
	}
	boards, upErr := tracker.ListBoards(ctx)
	if upErr != nil {
		return nil, upstreamf("could not list jira boards: %v", upErr)
	}
	return jiraListing{eventType: EventJiraBoards, payload: JiraBoardsPayload{Boards: boards}}, nil
}

func prepareListIssues(c *Coordinator, ctx context.Context, action Action) (any, *Error) {
	payload, err := decodePayload[jiraBoardPayload](action.Payload)
	if err != nil {
		return nil, err
	}
	tracker, err := c.sessionTracker(action.RoomCode)
	if err != nil {
		return nil, err
	}
	issues, upErr := tracker.ListBoardIssues(ctx, payload.BoardID)
	if upErr != nil {
		return nil, upstreamf("could not list board issues: %v", upErr)
	}
	return jiraListing{eventType: EventJiraIssues, payload: JiraIssuesPayload{BoardID: payload.BoardID, Issues: issues}}, nil
}

// handleJiraListing relays a prepared tracker listing to the requester.
func handleJiraListing(c *Coordinator, s *poker.Session, actor *poker.Participant, action Action, prepared any) *Error {
	listing := prepared.(jiraListing)
	c.bus.SendToConnection(action.ConnID, c.newEvent(s.RoomCode, listing.eventType, listing.payload))
	return nil
}

func prepareSelectIssue(c *Coordinator, ctx context.Context, action Action) (any, *Error) {
	payload, err := decodePayload[jiraIssuePayload](action.Payload)
	if err != nil {
		return nil, err
	}
	if payload.IssueKey == "" {
		return nil, validationf("issue_key must not be empty")
	}
	tracker, err := c.sessionTracker(action.RoomCode)
	if err != nil {
		return nil, err
	}
	issue, upErr := tracker.GetIssue(ctx, payload.IssueKey)
	if upErr != nil {
		return nil, upstreamf("could not fetch issue %q: %v", payload.IssueKey, upErr)
	}
	return &poker.JiraIssue{Key: issue.Key, Summary: issue.Summary}, nil
}

// handleSelectJiraIssue puts a fetched issue under estimation, the issue
// flavor of set_ticket.
func handleSelectJiraIssue(c *Coordinator, s *poker.Session, actor *poker.Participant, action Action, prepared any) *Error {
	issue := prepared.(*poker.JiraIssue)
	if s.Jira == nil {
		return conflictf("jira is not configured for this session")
	}

	s.ClearRound()
	c.cancelCountdownLocked(s)
	s.CurrentTicket = ""
	s.CurrentIssue = issue
	c.startDiscussionLocked(s, c.clock.Now())

	c.bus.BroadcastToRoom(s.RoomCode, c.newEvent(s.RoomCode, EventTicketSet, TicketSetPayload{Issue: issue}))
	return nil
}

func prepareFinalizeEstimate(c *Coordinator, ctx context.Context, action Action) (any, *Error) {
	s, err := c.store.Get(action.RoomCode)
	if err != nil {
		return nil, notFoundf("unknown room %q", action.RoomCode)
	}

	s.Lock()
	tracker := c.trackerFor(s)
	var issueKey string
	var average float64
	switch {
	case tracker == nil:
		s.Unlock()
		return nil, conflictf("jira is not configured for this session")
	case !s.VotingRevealed || s.CurrentIssue == nil || len(s.History) == 0:
		s.Unlock()
		return nil, conflictf("finalize requires a revealed round on a jira issue")
	default:
		issueKey = s.CurrentIssue.Key
		average = s.History[len(s.History)-1].Stats.Average
		s.Unlock()
	}

	estimate := poker.RoundUpToDeck(average)
	// The write resolves fully before any state change; a failure is a
	// clean no-op.
	if upErr := tracker.SetStoryPoints(ctx, issueKey, estimate); upErr != nil {
		return nil, upstreamf("could not push estimate to %q: %v", issueKey, upErr)
	}
	return preparedEstimate{issueKey: issueKey, estimate: estimate}, nil
}

// handleFinalizeEstimate commits the finalized estimate: the issue is
// cleared and the session returns to Idle.
func handleFinalizeEstimate(c *Coordinator, s *poker.Session, actor *poker.Participant, action Action, prepared any) *Error {
	done := prepared.(preparedEstimate)
	if s.CurrentIssue == nil || s.CurrentIssue.Key != done.issueKey || !s.VotingRevealed {
		return conflictf("session moved on before the estimate was finalized")
	}

	s.CurrentIssue = nil
	s.ClearRound()
	s.Discussion = nil

	c.bus.BroadcastToRoom(s.RoomCode, c.newEvent(s.RoomCode, EventEstimateFinalized, EstimateFinalizedPayload{
		IssueKey: done.issueKey,
		Estimate: done.estimate,
	}))
	return nil
}
