// Package coordinator is the session state machine: it processes
// actor-scoped actions, enforces role and phase rules, drives the timers,
// tally and history, and emits the resulting view to the room.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/Goldenhunter1206/scrumpoker/go/internal/poker"
	"github.com/Goldenhunter1206/scrumpoker/go/internal/store"
	"github.com/Goldenhunter1206/scrumpoker/go/internal/token"
	"github.com/Goldenhunter1206/scrumpoker/go/clients/jira"
)

// Broadcaster is what the coordinator needs from the transport layer.
// All methods enqueue; none performs network I/O on the calling goroutine,
// so they are safe to invoke while holding a session lock.
type Broadcaster interface {
	BroadcastToRoom(roomCode string, event *Event)
	SendToConnection(connID string, event *Event)
	Kick(connID string)
	CloseRoom(roomCode string)
}

// IssueTracker is the slice of the tracker client the coordinator drives.
// Calls happen only at phase boundaries and always resolve fully before
// any phase-changing mutation begins.
type IssueTracker interface {
	ListBoards(ctx context.Context) ([]jira.Board, error)
	ListBoardIssues(ctx context.Context, boardID int) ([]jira.Issue, error)
	GetIssue(ctx context.Context, key string) (*jira.Issue, error)
	SetStoryPoints(ctx context.Context, key string, points float64) error
}

// TrackerFactory builds a tracker client for session-scoped credentials.
type TrackerFactory func(config poker.JiraConfig) IssueTracker

// RoundArchiver receives revealed rounds for fire-and-forget archival.
type RoundArchiver interface {
	ArchiveRound(roomCode string, round poker.RoundResult)
}

// Config bounds coordinator behavior.
type Config struct {
	CountdownMinSeconds int
	CountdownMaxSeconds int

	// RunTimers spawns the per-session 1Hz timer tasks. Tests disable it
	// and drive ticks directly.
	RunTimers bool
}

// DefaultConfig returns the default coordinator configuration.
func DefaultConfig() Config {
	return Config{
		CountdownMinSeconds: 10,
		CountdownMaxSeconds: 300,
		RunTimers:           true,
	}
}

// Coordinator owns all session mutation. Mutations for one room are
// serialized by that session's lock; every multi-step transition happens
// entirely under it, with no network I/O interleaved.
type Coordinator struct {
	store   *store.Store
	tokens  *token.Authority
	bus     Broadcaster
	clock   clockwork.Clock
	tracker TrackerFactory
	archive RoundArchiver
	config  Config
}

// New creates a coordinator. tracker and archive may be nil when the
// corresponding integration is not configured.
func New(st *store.Store, tokens *token.Authority, bus Broadcaster, clock clockwork.Clock, tracker TrackerFactory, archive RoundArchiver, config Config) *Coordinator {
	return &Coordinator{
		store:   st,
		tokens:  tokens,
		bus:     bus,
		clock:   clock,
		tracker: tracker,
		archive: archive,
		config:  config,
	}
}

// Action is a pre-validated request scoped to a room and an originating
// connection.
type Action struct {
	ConnID   string
	RoomCode string
	Name     string
	Payload  json.RawMessage
}

// actionSpec is one dispatch-table entry: the shared lookup, authorization
// and broadcast logic lives in Dispatch, handlers hold only the
// per-action transition.
type actionSpec struct {
	facilitatorOnly bool

	// prepare runs before the session lock is taken; it is the only place
	// tracker I/O is allowed.
	prepare func(c *Coordinator, ctx context.Context, action Action) (any, *Error)

	// handle runs under the session lock and must either complete the
	// transition or return an error with no mutation performed.
	handle func(c *Coordinator, s *poker.Session, actor *poker.Participant, action Action, prepared any) *Error

	// readOnly skips the post-action view broadcast and snapshot.
	readOnly bool
}

var actionTable = map[string]actionSpec{
	"set_ticket":             {facilitatorOnly: true, handle: handleSetTicket},
	"clear_ticket":           {facilitatorOnly: true, handle: handleClearTicket},
	"submit_vote":            {handle: handleSubmitVote},
	"reveal_votes":           {facilitatorOnly: true, handle: handleRevealVotes},
	"reset_voting":           {facilitatorOnly: true, handle: handleResetVoting},
	"start_countdown":        {facilitatorOnly: true, handle: handleStartCountdown},
	"cancel_countdown":       {facilitatorOnly: true, handle: handleCancelCountdown},
	"moderate_participant":   {facilitatorOnly: true, handle: handleModerateParticipant},
	"set_facilitator_viewer": {facilitatorOnly: true, handle: handleSetFacilitatorViewer},
	"end_session":            {facilitatorOnly: true, handle: handleEndSession},
	"set_jira_credentials":   {facilitatorOnly: true, prepare: prepareJiraCredentials, handle: handleSetJiraCredentials},
	"list_jira_boards":       {prepare: prepareListBoards, handle: handleJiraListing, readOnly: true},
	"list_jira_issues":       {prepare: prepareListIssues, handle: handleJiraListing, readOnly: true},
	"select_jira_issue":      {facilitatorOnly: true, prepare: prepareSelectIssue, handle: handleSelectJiraIssue},
	"finalize_estimate":      {facilitatorOnly: true, prepare: prepareFinalizeEstimate, handle: handleFinalizeEstimate},
}

/// Dispatch routes one action through the table: resolve session, resolve
// actor, authorize, run the transition, then broadcast the recomputed
// view. Failures are reported only to the originating connection and
// leave no partial state behind. Prepare steps may reach external
// systems, so they only run after the actor has been authorized.
func (c *Coordinator) Dispatch(ctx context.Context, action Action) {
	spec, ok := actionTable[action.Name]
	if !ok {
		c.sendError(action.ConnID, action.RoomCode, validationf("unknown action %q", action.Name))
		return
	}

	s, err := c.store.Get(action.RoomCode)
	if err != nil {
		c.sendError(action.ConnID, action.RoomCode, notFoundf("unknown room %q", action.RoomCode))
		return
	}

	var prepared any
	if spec.prepare != nil {
		s.Lock()
		_, authErr := c.authorizeLocked(spec, s, action)
		s.Unlock()
		if authErr != nil {
			c.sendError(action.ConnID, action.RoomCode, authErr)
			return
		}

		var prepErr *Error
		prepared, prepErr = spec.prepare(c, ctx, action)
		if prepErr != nil {
			c.sendError(action.ConnID, action.RoomCode, prepErr)
			return
		}

		// The session may have been torn down while prepare was in
		// flight; re-resolve rather than mutate an orphan.
		s, err = c.store.Get(action.RoomCode)
		if err != nil {
			c.sendError(action.ConnID, action.RoomCode, notFoundf("unknown room %q", action.RoomCode))
			return
		}
	}

	s.Lock()
	defer s.Unlock()

	actor, authErr := c.authorizeLocked(spec, s, action)
	if authErr != nil {
		c.sendError(action.ConnID, action.RoomCode, authErr)
		return
	}

	if actErr := spec.handle(c, s, actor, action, prepared); actErr != nil {
		c.sendError(action.ConnID, action.RoomCode, actErr)
		return
	}

	// end_session destroys the session as its transition; nothing to
	// stamp or broadcast afterwards.
	if _, err := c.store.Get(action.RoomCode); err != nil {
		return
	}

	s.LastActivityAt = c.clock.Now()
	if !spec.readOnly {
		c.broadcastViewLocked(s)
		c.store.Snapshot(s)
	}
}

// authorizeLocked resolves the acting participant and checks its role
// against the action. Callers hold the session lock.
func (c *Coordinator) authorizeLocked(spec actionSpec, s *poker.Session, action Action) (*poker.Participant, *Error) {
	actor := s.ParticipantByConnection(action.ConnID)
	if actor == nil {
		return nil, authorizationf("connection is not a member of this session")
	}
	if spec.facilitatorOnly && !actor.IsFacilitator {
		return nil, authorizationf("only the facilitator can %s", action.Name)
	}
	return actor, nil
}

// CreateSession builds a new session with the caller as facilitator and
// replies with the room code and reconnection token. Returns the room
// code so the transport can register the connection for broadcasts.
func (c *Coordinator) CreateSession(connID, sessionName, facilitatorName string) (string, error) {
	s, err := c.store.Create(sessionName, facilitatorName)
	if err != nil {
		if errors.Is(err, store.ErrSessionLimit) {
			c.sendError(connID, "", conflictf("server is at capacity, try again later"))
		} else {
			c.sendError(connID, "", validationf("could not create session"))
		}
		return "", err
	}

	secret, err := c.tokens.Create(facilitatorName, s.RoomCode)
	if err != nil {
		log.Error().Err(err).Str("room_code", s.RoomCode).Msg("failed to issue session token")
		c.store.Delete(s.RoomCode)
		c.sendError(connID, "", validationf("could not create session"))
		return "", err
	}

	s.Lock()
	s.Facilitator().ConnectionID = connID
	view := s.View(c.clock.Now())
	c.store.Snapshot(s)
	s.Unlock()

	log.Info().
		Str("room_code", s.RoomCode).
		Str("facilitator", facilitatorName).
		Msg("session created")

	c.bus.SendToConnection(connID, c.newEvent(s.RoomCode, EventSessionCreated, SessionCreatedPayload{
		RoomCode: s.RoomCode,
		Token:    secret,
		View:     view,
	}))
	return s.RoomCode, nil
}

// Join admits a connection under a display name. A fresh name creates a
// participant; a disconnected existing name is a reconnection and
// requires a valid token bound to (name, room). A currently connected
// name is always rejected.
func (c *Coordinator) Join(connID, roomCode, name string, asViewer bool, reconnectToken string) error {
	s, err := c.store.Get(roomCode)
	if err != nil {
		joinErr := notFoundf("unknown room %q", roomCode)
		c.sendError(connID, roomCode, joinErr)
		return joinErr
	}

	s.Lock()
	defer s.Unlock()

	now := c.clock.Now()
	existing := s.Participants[name]
	reconnected := false
	switch {
	case existing != nil && existing.Connected():
		// Presence acts as the mutex: a live handle rejects the attempt
		// outright, before any token check.
		joinErr := conflictf("name %q is already taken in this session", name)
		c.sendError(connID, roomCode, joinErr)
		return joinErr

	case existing != nil:
		// Reconnection to a disconnected identity: token required.
		if reconnectToken == "" || c.tokens.Validate(reconnectToken, roomCode, name) != nil {
			joinErr := conflictf("a valid reconnection token is required to rejoin as %q", name)
			c.sendError(connID, roomCode, joinErr)
			return joinErr
		}
		existing.ConnectionID = connID
		existing.DisconnectedAt = nil
		reconnected = true

	default:
		s.Participants[name] = &poker.Participant{
			Name:         name,
			IsViewer:     asViewer,
			JoinedAt:     now,
			ConnectionID: connID,
		}
	}

	// Rotate: one live token per identity.
	c.tokens.InvalidateByParticipant(roomCode, name)
	secret, err := c.tokens.Create(name, roomCode)
	if err != nil {
		log.Error().Err(err).Str("room_code", roomCode).Str("participant", name).Msg("failed to issue session token")
		secret = ""
	}

	s.LastActivityAt = now

	joined := SessionJoinedPayload{
		RoomCode:    roomCode,
		Name:        name,
		Token:       secret,
		Reconnected: reconnected,
		View:        s.View(now),
	}
	if vote, ok := s.Votes[name]; ok {
		v := vote
		joined.YourVote = &v
	}
	c.bus.SendToConnection(connID, c.newEvent(roomCode, EventSessionJoined, joined))
	c.bus.BroadcastToRoom(roomCode, c.newEvent(roomCode, EventParticipantJoined, ParticipantPayload{
		Name:     name,
		IsViewer: s.Participants[name].IsViewer,
	}))
	c.broadcastViewLocked(s)
	c.store.Snapshot(s)

	log.Info().
		Str("room_code", roomCode).
		Str("participant", name).
		Bool("reconnected", reconnected).
		Msg("participant joined")
	return nil
}

// Disconnect clears the connection handle of whichever participant owned
// it. The record and any vote are retained; sessions are never destroyed
// on disconnect, facilitator or not.
func (c *Coordinator) Disconnect(connID string) {
	s, err := c.store.FindByConnection(connID)
	if err != nil {
		return
	}

	s.Lock()
	defer s.Unlock()

	p := s.ParticipantByConnection(connID)
	if p == nil {
		return
	}
	now := c.clock.Now()
	p.ConnectionID = ""
	t := now
	p.DisconnectedAt = &t
	s.LastActivityAt = now

	log.Info().
		Str("room_code", s.RoomCode).
		Str("participant", p.Name).
		Msg("participant disconnected")

	c.bus.BroadcastToRoom(s.RoomCode, c.newEvent(s.RoomCode, EventParticipantLeft, ParticipantPayload{Name: p.Name}))
	c.broadcastViewLocked(s)
	c.store.Snapshot(s)
}

// Reap destroys an idle session. Wired as the store sweeper's callback.
func (c *Coordinator) Reap(roomCode string) {
	s, err := c.store.Get(roomCode)
	if err != nil {
		return
	}
	s.Lock()
	defer s.Unlock()
	c.destroyLocked(s, "session expired due to inactivity")
}

/// destroyLocked tears a session down: timers cancelled, the discussion
// clock frozen with a last tick, tokens revoked, members notified, store
// entry and snapshot removed. Callers hold the session lock.
func (c *Coordinator) destroyLocked(s *poker.Session, reason string) {
	s.Countdown = nil
	if s.Discussion != nil {
		if s.Discussion.Running {
			c.bus.BroadcastToRoom(s.RoomCode, c.newEvent(s.RoomCode, EventDiscussionTick, DiscussionTickPayload{
				ElapsedSeconds: elapsedSeconds(s.Discussion.StartedAt, c.clock.Now()),
				Final:          true,
			}))
		}
		s.Discussion.Running = false
	}
	c.tokens.InvalidateByRoom(s.RoomCode)

	c.bus.BroadcastToRoom(s.RoomCode, c.newEvent(s.RoomCode, EventSessionEnded, map[string]string{"reason": reason}))
	c.bus.CloseRoom(s.RoomCode)
	c.store.Delete(s.RoomCode)

	log.Info().Str("room_code", s.RoomCode).Str("reason", reason).Msg("session destroyed")
}

// broadcastViewLocked emits the recomputed session view to the room.
func (c *Coordinator) broadcastViewLocked(s *poker.Session) {
	c.bus.BroadcastToRoom(s.RoomCode, c.newEvent(s.RoomCode, EventSessionState, s.View(c.clock.Now())))
}

func (c *Coordinator) sendError(connID, roomCode string, actErr *Error) {
	log.Debug().
		Str("room_code", roomCode).
		Str("connection_id", connID).
		Str("kind", string(actErr.Kind)).
		Str("message", actErr.Message).
		Msg("action rejected")
	c.bus.SendToConnection(connID, c.newEvent(roomCode, EventError, ErrorPayload{
		Kind:    actErr.Kind,
		Message: actErr.Message,
	}))
}

func decodePayload[T any](payload json.RawMessage) (T, *Error) {
	var decoded T
	if len(payload) == 0 {
		return decoded, nil
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return decoded, validationf("malformed payload: %v", err)
	}
	return decoded, nil
}

// elapsedSeconds is a rounding-stable duration-to-seconds conversion.
func elapsedSeconds(from, to time.Time) int {
	return int(to.Sub(from) / time.Second)
}
