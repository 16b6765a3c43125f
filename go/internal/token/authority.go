// Package token issues and validates the opaque reconnection credentials
// that let a disconnected participant reclaim their name in a room.
package token

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ErrInvalidToken is returned when a presented token is unknown, expired,
// revoked, or bound to a different participant or room.
var ErrInvalidToken = errors.New("invalid or expired session token")

// record is the server-side remainder of an issued token. Only the hash
// of the secret is retained.
type record struct {
	participantName string
	roomCode        string
	createdAt       time.Time
	lastUsed        time.Time
	valid           bool
}

// Authority is the single-process token store. Keeping it as a plain
// in-memory map is deliberate; only this store would need to move to a
// shared service if horizontal scaling ever became a goal.
type Authority struct {
	mu     sync.Mutex
	byHash map[string]*record
	ttl    time.Duration
	clock  clockwork.Clock
}

// NewAuthority creates a token authority with the given time-to-live.
func NewAuthority(ttl time.Duration, clock clockwork.Clock) *Authority {
	return &Authority{
		byHash: make(map[string]*record),
		ttl:    ttl,
		clock:  clock,
	}
}

// Create issues a fresh token bound to (participantName, roomCode) and
// returns the raw secret. The secret is never retained server-side; only
// its hash and metadata survive issuance.
func (a *Authority) Create(participantName, roomCode string) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate token secret: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(raw)

	now := a.clock.Now()
	a.mu.Lock()
	defer a.mu.Unlock()
	a.byHash[hashSecret(secret)] = &record{
		participantName: participantName,
		roomCode:        roomCode,
		createdAt:       now,
		lastUsed:        now,
		valid:           true,
	}
	return secret, nil
}

// Validate checks a presented secret against (roomCode, participantName).
// It succeeds only if the hash is known, still flagged valid, within TTL,
// and bound to exactly that room and name, which blocks cross-identity
// token replay.
func (a *Authority) Validate(secret, roomCode, participantName string) error {
	now := a.clock.Now()
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, ok := a.byHash[hashSecret(secret)]
	if !ok || !rec.valid {
		return ErrInvalidToken
	}
	if now.Sub(rec.createdAt) > a.ttl {
		rec.valid = false
		return ErrInvalidToken
	}
	if rec.roomCode != roomCode || rec.participantName != participantName {
		return ErrInvalidToken
	}
	rec.lastUsed = now
	return nil
}

// InvalidateByParticipant revokes every token bound to the participant in
// the room. Used on moderation removal and on token rotation at rejoin.
func (a *Authority) InvalidateByParticipant(roomCode, participantName string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, rec := range a.byHash {
		if rec.roomCode == roomCode && rec.participantName == participantName {
			rec.valid = false
		}
	}
}

// InvalidateByRoom revokes every token for the room. Used on session end
// and idle reaping.
func (a *Authority) InvalidateByRoom(roomCode string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, rec := range a.byHash {
		if rec.roomCode == roomCode {
			rec.valid = false
		}
	}
}

// RunSweep purges expired and revoked entries every interval until the
// context is cancelled.
func (a *Authority) RunSweep(ctx context.Context, interval time.Duration) {
	ticker := a.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			purged := a.purge()
			if purged > 0 {
				log.Debug().Int("purged", purged).Msg("token sweep purged entries")
			}
		}
	}
}

func (a *Authority) purge() int {
	now := a.clock.Now()
	a.mu.Lock()
	defer a.mu.Unlock()
	purged := 0
	for hash, rec := range a.byHash {
		if !rec.valid || now.Sub(rec.createdAt) > a.ttl {
			delete(a.byHash, hash)
			purged++
		}
	}
	return purged
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
