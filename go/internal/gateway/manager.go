// Package gateway is the websocket transport: it accepts connections,
// routes validated actions to the coordinator, and delivers room
// broadcasts and directed replies back to clients.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Goldenhunter1206/scrumpoker/go/internal/coordinator"
)

// Manager tracks live websocket connections and their room bindings, and
// implements the coordinator's Broadcaster. Delivery is asynchronous
// through a buffered channel so the coordinator never blocks on a socket.
type Manager struct {
	mu        sync.RWMutex
	rooms     map[string]map[*Connection]bool
	byID      map[string]*Connection
	upgrader  websocket.Upgrader
	config    ConnectionConfig
	deliverCh chan delivery

	// onDisconnect is invoked when a connection's read pump exits.
	onDisconnect func(connID string)
}

// Connection is one websocket client.
type Connection struct {
	ID       string
	RoomCode string // empty until the client has created or joined a session
	Conn     *websocket.Conn
	Send     chan []byte
	Manager  *Manager

	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds websocket tuning.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns the default websocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

type delivery struct {
	roomCode string
	connID   string // if set, deliver to this connection only
	event    *coordinator.Event
	closeAll bool // close every connection in the room after delivery
	kick     bool // close the single connection named by connID
}

// NewManager creates a connection manager.
func NewManager(config ConnectionConfig) *Manager {
	return &Manager{
		rooms: make(map[string]map[*Connection]bool),
		byID:  make(map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:    config,
		deliverCh: make(chan delivery, 1000),
	}
}

// SetDisconnectHandler installs the callback run when a connection drops.
func (m *Manager) SetDisconnectHandler(handler func(connID string)) {
	m.onDisconnect = handler
}

// Run processes queued deliveries until the context is cancelled.
func (m *Manager) Run(ctx context.Context) {
	log.Info().Msg("gateway manager started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("gateway manager shutting down")
			return
		case d := <-m.deliverCh:
			m.handleDelivery(d)
		}
	}
}

// Upgrade turns an HTTP request into a managed websocket connection.
func (m *Manager) Upgrade(w http.ResponseWriter, r *http.Request) (*Connection, error) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade websocket connection")
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     m,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	m.mu.Lock()
	m.byID[connection.ID] = connection
	m.mu.Unlock()

	go connection.writePump()

	log.Info().Str("connection_id", connection.ID).Msg("websocket connection established")
	return connection, nil
}

// Bind attaches a connection to a room so broadcasts reach it. Called
// before the coordinator admits the member, so the admission broadcast is
// not missed; Unbind reverts a failed admission.
func (m *Manager) Bind(conn *Connection, roomCode string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conn.RoomCode != "" {
		delete(m.rooms[conn.RoomCode], conn)
	}
	conn.RoomCode = roomCode
	if m.rooms[roomCode] == nil {
		m.rooms[roomCode] = make(map[*Connection]bool)
	}
	m.rooms[roomCode][conn] = true
}

// Unbind detaches a connection from its room.
func (m *Manager) Unbind(conn *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conn.RoomCode != "" {
		delete(m.rooms[conn.RoomCode], conn)
		if len(m.rooms[conn.RoomCode]) == 0 {
			delete(m.rooms, conn.RoomCode)
		}
		conn.RoomCode = ""
	}
}

// BroadcastToRoom queues an event for every connection in the room.
func (m *Manager) BroadcastToRoom(roomCode string, event *coordinator.Event) {
	m.enqueue(delivery{roomCode: roomCode, event: event})
}

// SendToConnection queues an event for one connection.
func (m *Manager) SendToConnection(connID string, event *coordinator.Event) {
	m.enqueue(delivery{connID: connID, event: event})
}

// Kick queues a close for a single connection, used when a participant
// is removed. It runs after any replies already queued for the target.
func (m *Manager) Kick(connID string) {
	m.enqueue(delivery{connID: connID, kick: true})
}

// CloseRoom closes every connection in a room after pending deliveries.
func (m *Manager) CloseRoom(roomCode string) {
	m.enqueue(delivery{roomCode: roomCode, closeAll: true})
}

func (m *Manager) enqueue(d delivery) {
	select {
	case m.deliverCh <- d:
	default:
		log.Warn().Str("room_code", d.roomCode).Msg("delivery channel full, dropping event")
	}
}

func (m *Manager) handleDelivery(d delivery) {
	if d.connID != "" {
		m.mu.RLock()
		conn := m.byID[d.connID]
		m.mu.RUnlock()
		if conn == nil {
			return
		}
		if d.kick {
			m.drop(conn)
			return
		}
		m.send(conn, d.event)
		return
	}

	m.mu.RLock()
	var targets []*Connection
	for conn := range m.rooms[d.roomCode] {
		targets = append(targets, conn)
	}
	m.mu.RUnlock()

	if d.event != nil {
		for _, conn := range targets {
			m.send(conn, d.event)
		}
	}
	if d.closeAll {
		for _, conn := range targets {
			m.drop(conn)
		}
	}
}

func (m *Manager) send(conn *Connection, event *coordinator.Event) {
	data, err := marshalEvent(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for delivery")
		return
	}
	// drop closes Send under the write lock after untracking the
	// connection, so sending is only safe under the read lock while the
	// connection is still tracked.
	m.mu.RLock()
	if _, tracked := m.byID[conn.ID]; !tracked {
		m.mu.RUnlock()
		return
	}
	select {
	case conn.Send <- data:
		m.mu.RUnlock()
	default:
		m.mu.RUnlock()
		// Slow or dead consumer; drop it rather than stall the room.
		log.Warn().Str("connection_id", conn.ID).Msg("send buffer full, closing connection")
		m.drop(conn)
	}
}

// drop removes a connection from all indexes and closes its socket.
func (m *Manager) drop(conn *Connection) {
	m.mu.Lock()
	if _, tracked := m.byID[conn.ID]; !tracked {
		m.mu.Unlock()
		return
	}
	delete(m.byID, conn.ID)
	if conn.RoomCode != "" {
		delete(m.rooms[conn.RoomCode], conn)
		if len(m.rooms[conn.RoomCode]) == 0 {
			delete(m.rooms, conn.RoomCode)
		}
	}
	close(conn.Send)
	m.mu.Unlock()
	conn.Conn.Close()
}

// Stats reports connection counts per room.
func (m *Manager) Stats() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := 0
	roomCounts := make(map[string]int)
	for roomCode, conns := range m.rooms {
		roomCounts[roomCode] = len(conns)
		total += len(conns)
	}
	return map[string]any{
		"total_connections": len(m.byID),
		"bound_connections": total,
		"active_rooms":      len(m.rooms),
		"room_connections":  roomCounts,
	}
}
