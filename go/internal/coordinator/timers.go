package coordinator

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Goldenhunter1206/scrumpoker/go/internal/poker"
)

// Timer tasks are per-session 1Hz loops that hold no session reference:
// each tick re-resolves the session by room code and checks the timer
// generation, so a tick scheduled before a cancellation can never fire
// against a session that has since moved on. Cancellation is just
// clearing the timer state under the session lock; the task observes it
// on its next tick and exits.

// startCountdownLocked installs countdown state and spawns its task.
// Callers hold the session lock.
func (c *Coordinator) startCountdownLocked(s *poker.Session, seconds int) {
	gen := s.NextTimerGen()
	s.Countdown = &poker.CountdownState{
		Remaining:  seconds,
		Duration:   seconds,
		Generation: gen,
	}
	if c.config.RunTimers {
		go c.runCountdown(s.RoomCode, gen)
	}
}

// cancelCountdownLocked clears countdown state. The task sees the nil
// state (or a newer generation) on its next tick and stops.
func (c *Coordinator) cancelCountdownLocked(s *poker.Session) {
	s.Countdown = nil
}

func (c *Coordinator) runCountdown(roomCode string, gen uint64) {
	ticker := c.clock.NewTicker(time.Second)
	defer ticker.Stop()
	for range ticker.Chan() {
		if done := c.countdownTick(roomCode, gen); done {
			return
		}
	}
}

// countdownTick advances the countdown by one second. Returns true when
// the task should stop: session gone, countdown superseded, or expired.
func (c *Coordinator) countdownTick(roomCode string, gen uint64) bool {
	s, err := c.store.Get(roomCode)
	if err != nil {
		return true
	}

	s.Lock()
	defer s.Unlock()

	cd := s.Countdown
	if cd == nil || cd.Generation != gen {
		// Superseded by a reveal, reset, new ticket or session end.
		return true
	}

	cd.Remaining--
	if cd.Remaining > 0 {
		c.bus.BroadcastToRoom(roomCode, c.newEvent(roomCode, EventCountdownTick, CountdownPayload{
			Remaining: cd.Remaining,
			Duration:  cd.Duration,
		}))
		return false
	}

	// Natural expiry runs the same reveal sequence as a manual reveal.
	log.Info().Str("room_code", roomCode).Msg("countdown expired, revealing votes")
	c.finishRevealLocked(s, true)
	s.LastActivityAt = c.clock.Now()
	c.broadcastViewLocked(s)
	c.store.Snapshot(s)
	return true
}

// startDiscussionLocked starts the discussion timer for a fresh ticket.
// Callers hold the session lock.
func (c *Coordinator) startDiscussionLocked(s *poker.Session, startedAt time.Time) {
	gen := s.NextTimerGen()
	s.Discussion = &poker.DiscussionState{
		StartedAt:  startedAt,
		Running:    true,
		Generation: gen,
	}
	if c.config.RunTimers {
		go c.runDiscussion(s.RoomCode, gen)
	}
}

// resumeDiscussionLocked restarts the task after a reveal froze it,
// preserving the original start time so the reported duration spans the
// ticket's whole life. Callers hold the session lock.
func (c *Coordinator) resumeDiscussionLocked(s *poker.Session) {
	gen := s.NextTimerGen()
	s.Discussion.Running = true
	s.Discussion.Generation = gen
	if c.config.RunTimers {
		go c.runDiscussion(s.RoomCode, gen)
	}
}

func (c *Coordinator) runDiscussion(roomCode string, gen uint64) {
	ticker := c.clock.NewTicker(time.Second)
	defer ticker.Stop()
	for range ticker.Chan() {
		if done := c.discussionTick(roomCode, gen); done {
			return
		}
	}
}

// discussionTick broadcasts elapsed discussion time. Purely
// observational; it gates nothing.
func (c *Coordinator) discussionTick(roomCode string, gen uint64) bool {
	s, err := c.store.Get(roomCode)
	if err != nil {
		return true
	}

	s.Lock()
	defer s.Unlock()

	d := s.Discussion
	if d == nil || !d.Running || d.Generation != gen {
		return true
	}

	c.bus.BroadcastToRoom(roomCode, c.newEvent(roomCode, EventDiscussionTick, DiscussionTickPayload{
		ElapsedSeconds: elapsedSeconds(d.StartedAt, c.clock.Now()),
	}))
	return false
}
