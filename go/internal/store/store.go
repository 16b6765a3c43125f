// Package store owns the authoritative map of room code to session, the
// idle-session sweep, and the best-effort snapshot mirror used for crash
// recovery.
package store

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/Goldenhunter1206/scrumpoker/go/internal/poker"
)

const roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
const roomCodeLength = 6

// ErrSessionLimit is returned when creating a session would exceed the
// configured cap. Rejected before any session object exists.
var ErrSessionLimit = errors.New("maximum number of concurrent sessions reached")

// ErrNotFound is returned when no session exists for a room code.
var ErrNotFound = errors.New("session not found")

// Mirror is the durable cache behind the store: a key-value namespace with
// TTL, keyed by room code. Used only for crash recovery; the in-memory map
// stays authoritative.
type Mirror interface {
	Save(ctx context.Context, roomCode string, snapshot []byte) error
	Delete(ctx context.Context, roomCode string) error
	LoadAll(ctx context.Context) (map[string][]byte, error)
}

// Store holds every live session in memory and mirrors snapshots
// asynchronously. All session lookups go through it; timer tasks
// re-resolve their session here on every tick.
type Store struct {
	mu          sync.RWMutex
	sessions    map[string]*poker.Session
	maxSessions int
	clock       clockwork.Clock

	mirror Mirror
	snapCh chan snapshot
}

type snapshot struct {
	roomCode string
	data     []byte // nil means delete
}

// New creates a store. mirror may be nil, which degrades to memory-only
// operation.
func New(maxSessions int, clock clockwork.Clock, mirror Mirror) *Store {
	return &Store{
		sessions:    make(map[string]*poker.Session),
		maxSessions: maxSessions,
		clock:       clock,
		mirror:      mirror,
		snapCh:      make(chan snapshot, 256),
	}
}

// Create allocates a fresh room code and registers a new session for it.
func (st *Store) Create(sessionName, facilitatorName string) (*poker.Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.maxSessions > 0 && len(st.sessions) >= st.maxSessions {
		return nil, ErrSessionLimit
	}

	code, err := st.newRoomCode()
	if err != nil {
		return nil, err
	}
	session := poker.NewSession(code, sessionName, facilitatorName, st.clock.Now())
	st.sessions[code] = session
	return session, nil
}

// Get returns the session for a room code.
func (st *Store) Get(roomCode string) (*poker.Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	session, ok := st.sessions[roomCode]
	if !ok {
		return nil, ErrNotFound
	}
	return session, nil
}

// Delete removes the session and queues removal of its mirror entry.
func (st *Store) Delete(roomCode string) {
	st.mu.Lock()
	delete(st.sessions, roomCode)
	st.mu.Unlock()
	st.enqueue(snapshot{roomCode: roomCode})
}

// All returns the live sessions. Callers must take each session's own
// lock before reading mutable state.
func (st *Store) All() []*poker.Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	sessions := make([]*poker.Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// FindByConnection locates the session holding a live connection handle.
// Sessions are snapshotted first so no session lock is ever taken while
// the store lock is held; teardown paths delete from the store while
// still holding a session lock.
func (st *Store) FindByConnection(connID string) (*poker.Session, error) {
	for _, s := range st.All() {
		s.Lock()
		p := s.ParticipantByConnection(connID)
		s.Unlock()
		if p != nil {
			return s, nil
		}
	}
	return nil, ErrNotFound
}

// Snapshot queues an asynchronous mirror write for the session. Callers
// hold the session lock; only the JSON marshal happens here, the I/O runs
// on the mirror worker.
func (st *Store) Snapshot(s *poker.Session) {
	if st.mirror == nil {
		return
	}
	data, err := json.Marshal(s)
	if err != nil {
		log.Error().Err(err).Str("room_code", s.RoomCode).Msg("failed to marshal session snapshot")
		return
	}
	st.enqueue(snapshot{roomCode: s.RoomCode, data: data})
}

func (st *Store) enqueue(sn snapshot) {
	if st.mirror == nil {
		return
	}
	select {
	case st.snapCh <- sn:
	default:
		// Persistence is best-effort; drop rather than block a mutation.
		log.Warn().Str("room_code", sn.roomCode).Msg("snapshot queue full, dropping snapshot")
	}
}

// RunMirror drains the snapshot queue into the durable cache until the
// context is cancelled. Failures are logged, never surfaced to users.
func (st *Store) RunMirror(ctx context.Context) {
	if st.mirror == nil {
		return
	}
	log.Info().Msg("snapshot mirror started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("snapshot mirror shutting down")
			return
		case sn := <-st.snapCh:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			var err error
			if sn.data == nil {
				err = st.mirror.Delete(writeCtx, sn.roomCode)
			} else {
				err = st.mirror.Save(writeCtx, sn.roomCode, sn.data)
			}
			cancel()
			if err != nil {
				log.Warn().Err(err).Str("room_code", sn.roomCode).Msg("snapshot mirror write failed")
			}
		}
	}
}

// Recover loads mirrored snapshots into the store after a restart.
// Recovered participants are all marked disconnected and timers are not
// resurrected; members reconnect with their tokens.
func (st *Store) Recover(ctx context.Context) error {
	if st.mirror == nil {
		return nil
	}
	entries, err := st.mirror.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load snapshots: %w", err)
	}

	now := st.clock.Now()
	recovered := 0
	st.mu.Lock()
	defer st.mu.Unlock()
	for roomCode, data := range entries {
		var session poker.Session
		if err := json.Unmarshal(data, &session); err != nil {
			log.Warn().Err(err).Str("room_code", roomCode).Msg("skipping unreadable snapshot")
			continue
		}
		session.MarkAllDisconnected(now)
		session.Countdown = nil
		if session.Discussion != nil {
			session.Discussion.Running = false
		}
		st.sessions[roomCode] = &session
		recovered++
	}
	if recovered > 0 {
		log.Info().Int("sessions", recovered).Msg("recovered sessions from durable cache")
	}
	return nil
}

// newRoomCode generates an unused 6-char uppercase alphanumeric code.
// Callers hold the store lock.
func (st *Store) newRoomCode() (string, error) {
	for attempt := 0; attempt < 100; attempt++ {
		buf := make([]byte, roomCodeLength)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate room code: %w", err)
		}
		for i, b := range buf {
			buf[i] = roomCodeAlphabet[int(b)%len(roomCodeAlphabet)]
		}
		code := string(buf)
		if _, taken := st.sessions[code]; !taken {
			return code, nil
		}
	}
	return "", errors.New("could not allocate an unused room code")
}
