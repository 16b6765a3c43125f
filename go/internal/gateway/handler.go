package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/Goldenhunter1206/scrumpoker/go/internal/coordinator"
)

// ClientMessage is the inbound frame shape: an action name plus its
// payload.
type ClientMessage struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type createSessionPayload struct {
	SessionName     string `json:"session_name"`
	FacilitatorName string `json:"facilitator_name"`
}

type joinSessionPayload struct {
	RoomCode string `json:"room_code"`
	Name     string `json:"name"`
	AsViewer bool   `json:"as_viewer"`
	Token    string `json:"token,omitempty"`
}

// Handler terminates websockets and routes frames: admission actions
// (create/join) manage room binding here, everything else goes through
// validation into the coordinator's dispatch table.
type Handler struct {
	manager *Manager
	coord   *coordinator.Coordinator
	limits  *limiterSet
}

// NewHandler wires the websocket endpoint. It also installs the
// manager's disconnect callback.
func NewHandler(manager *Manager, coord *coordinator.Coordinator) *Handler {
	h := &Handler{
		manager: manager,
		coord:   coord,
		limits:  newLimiterSet(),
	}
	manager.SetDisconnectHandler(func(connID string) {
		h.limits.forget(connID)
		coord.Disconnect(connID)
	})
	return h
}

// ServeWS upgrades the request and runs the connection's read loop.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.manager.Upgrade(w, r)
	if err != nil {
		return
	}
	go conn.readPump(h.route)
}

// route handles one inbound frame on the connection's read goroutine.
func (h *Handler) route(conn *Connection, message []byte) {
	if !h.limits.allow(conn.ID) {
		h.reject(conn, coordinator.KindValidation, "too many actions, slow down")
		return
	}

	var frame ClientMessage
	if err := json.Unmarshal(message, &frame); err != nil {
		h.reject(conn, coordinator.KindValidation, "malformed message")
		return
	}

	switch frame.Action {
	case "create_session":
		h.createSession(conn, frame.Payload)
	case "join_session":
		h.joinSession(conn, frame.Payload)
	default:
		if conn.RoomCode == "" {
			h.reject(conn, coordinator.KindValidation, "create or join a session first")
			return
		}
		if msg, ok := validateAction(frame.Action, frame.Payload); !ok {
			h.reject(conn, coordinator.KindValidation, msg)
			return
		}
		h.coord.Dispatch(context.Background(), coordinator.Action{
			ConnID:   conn.ID,
			RoomCode: conn.RoomCode,
			Name:     frame.Action,
			Payload:  frame.Payload,
		})
	}
}

func (h *Handler) createSession(conn *Connection, payload json.RawMessage) {
	var req createSessionPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		h.reject(conn, coordinator.KindValidation, "malformed create_session payload")
		return
	}
	if msg, ok := validateName(req.FacilitatorName); !ok {
		h.reject(conn, coordinator.KindValidation, "facilitator_name "+msg)
		return
	}
	if msg, ok := validateName(req.SessionName); !ok {
		h.reject(conn, coordinator.KindValidation, "session_name "+msg)
		return
	}
	if conn.RoomCode != "" {
		h.reject(conn, coordinator.KindConflict, "connection already belongs to a session")
		return
	}

	roomCode, err := h.coord.CreateSession(conn.ID, req.SessionName, req.FacilitatorName)
	if err != nil {
		// The coordinator already replied with a scoped error.
		return
	}
	h.manager.Bind(conn, roomCode)
}

func (h *Handler) joinSession(conn *Connection, payload json.RawMessage) {
	var req joinSessionPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		h.reject(conn, coordinator.KindValidation, "malformed join_session payload")
		return
	}
	if !roomCodePattern.MatchString(req.RoomCode) {
		h.reject(conn, coordinator.KindValidation, "room_code must be 6 uppercase letters or digits")
		return
	}
	if msg, ok := validateName(req.Name); !ok {
		h.reject(conn, coordinator.KindValidation, "name "+msg)
		return
	}
	if conn.RoomCode != "" {
		h.reject(conn, coordinator.KindConflict, "connection already belongs to a session")
		return
	}

	// Bind before admission so the member's own join broadcast is not
	// missed; revert if the coordinator rejects.
	h.manager.Bind(conn, req.RoomCode)
	if err := h.coord.Join(conn.ID, req.RoomCode, req.Name, req.AsViewer, req.Token); err != nil {
		h.manager.Unbind(conn)
	}
}

// reject emits a transport-level error without involving the
// coordinator.
func (h *Handler) reject(conn *Connection, kind coordinator.Kind, message string) {
	log.Debug().
		Str("connection_id", conn.ID).
		Str("kind", string(kind)).
		Str("message", message).
		Msg("frame rejected")
	event := &coordinator.Event{
		ID:        uuid.New().String(),
		RoomCode:  conn.RoomCode,
		Type:      coordinator.EventError,
		Timestamp: time.Now(),
	}
	data, err := json.Marshal(coordinator.ErrorPayload{Kind: kind, Message: message})
	if err != nil {
		return
	}
	event.Data = data
	h.manager.SendToConnection(conn.ID, event)
}

// limiterSet holds one token bucket per connection.
type limiterSet struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newLimiterSet() *limiterSet {
	return &limiterSet{limiters: make(map[string]*rate.Limiter)}
}

// allow checks the per-connection rate limit: a sustained 10 actions/s
// with a burst of 20 is far above human pace but stops a runaway client.
func (l *limiterSet) allow(connID string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[connID]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(10), 20)
		l.limiters[connID] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

func (l *limiterSet) forget(connID string) {
	l.mu.Lock()
	delete(l.limiters, connID)
	l.mu.Unlock()
}
