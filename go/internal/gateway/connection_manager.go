package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/WillDent/guess-that-tune/go/internal/auth"
	"github.com/WillDent/guess-that-tune/go/internal/room"
)

// ConnectionManager tracks live room connections by game
type ConnectionManager struct {
	gameConnections map[uuid.UUID]map[*Connection]bool
	mu              sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
}

// Connection is one browser attached to one room coordinator
type Connection struct {
	ID      string
	Viewer  auth.Identity
	GameID  uuid.UUID
	Conn    *websocket.Conn
	Room    *room.Coordinator
	Manager *ConnectionManager

	ConnectedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc

	sendMu     sync.Mutex
	send       chan []byte
	sendClosed bool
	closeOnce  sync.Once
}

func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		gameConnections: make(map[uuid.UUID]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
	}
}

// UpgradeConnection upgrades the request and hands the initialized
// coordinator to the new connection, which owns it from then on. On error
// the caller still owns the coordinator.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, viewer auth.Identity, gameID uuid.UUID, rc *room.Coordinator) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	connection := &Connection{
		ID:          uuid.New().String(),
		Viewer:      viewer,
		GameID:      gameID,
		Conn:        conn,
		Room:        rc,
		Manager:     cm,
		ConnectedAt: time.Now(),
		ctx:         ctx,
		cancel:      cancel,
		send:        make(chan []byte, cm.config.SendBuffer),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.forwardUpdates()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("viewer_id", viewer.ID.String()).
		Bool("guest", viewer.Guest).
		Str("game_id", gameID.String()).
		Msg("WebSocket connection established")
	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.gameConnections[conn.GameID] == nil {
		cm.gameConnections[conn.GameID] = make(map[*Connection]bool)
	}
	cm.gameConnections[conn.GameID][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("game_id", conn.GameID.String()).
		Int("total_connections", len(cm.gameConnections[conn.GameID])).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	connections, exists := cm.gameConnections[conn.GameID]
	if !exists {
		return
	}
	if _, exists := connections[conn]; !exists {
		return
	}
	delete(connections, conn)
	if len(connections) == 0 {
		delete(cm.gameConnections, conn.GameID)
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("viewer_id", conn.Viewer.ID.String()).
		Str("game_id", conn.GameID.String()).
		Msg("connection unregistered")
}

// ConnectionStats summarizes open connections.
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveGames      int            `json:"active_games"`
	GameConnections  map[string]int `json:"game_connections"`
}

func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{
		ActiveGames:     len(cm.gameConnections),
		GameConnections: make(map[string]int, len(cm.gameConnections)),
	}
	for gameID, connections := range cm.gameConnections {
		stats.TotalConnections += len(connections)
		stats.GameConnections[gameID.String()] = len(connections)
	}
	return stats
}

// CloseAll drops every connection, used on shutdown.
func (cm *ConnectionManager) CloseAll() {
	cm.mu.RLock()
	var all []*Connection
	for _, connections := range cm.gameConnections {
		for conn := range connections {
			all = append(all, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range all {
		conn.shutdown()
	}
}

// enqueue queues a frame for the write pump. A full buffer means the client
// is too slow to keep up and the connection is dropped.
func (c *Connection) enqueue(frame ServerFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to marshal frame")
		return
	}

	c.sendMu.Lock()
	if c.sendClosed {
		c.sendMu.Unlock()
		return
	}
	select {
	case c.send <- data:
		c.sendMu.Unlock()
	default:
		c.sendMu.Unlock()
		log.Warn().
			Str("connection_id", c.ID).
			Str("viewer_id", c.Viewer.ID.String()).
			Msg("connection send buffer full, closing connection")
		c.Conn.Close()
	}
}

func (c *Connection) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
}

// shutdown releases the room. The update stream closing then ends the
// forwarder, which ends the write pump.
func (c *Connection) shutdown() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.Manager.unregisterConnection(c)
		if err := c.Room.Close(); err != nil {
			log.Warn().Err(err).Str("connection_id", c.ID).Msg("failed to close room")
		}
		c.Conn.Close()
	})
}

// forwardUpdates turns coordinator output into frames.
func (c *Connection) forwardUpdates() {
	defer c.closeSend()

	snapshot := c.Room.Snapshot()
	c.enqueue(ServerFrame{Type: FrameState, State: NewStateView(snapshot)})

	for upd := range c.Room.Updates() {
		switch {
		case upd.Notice != nil:
			c.enqueue(ServerFrame{Type: FrameNotice, Notice: upd.Notice})
		case upd.State != nil:
			c.enqueue(ServerFrame{Type: FrameState, State: NewStateView(*upd.State)})
		}
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	cfg := c.Manager.config
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer c.shutdown()

	cfg := c.Manager.config
	c.Conn.SetReadLimit(cfg.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			return
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	}
}

// handleClientMessage runs one client command against the room. Commands
// that fail their preconditions are ignored by the room.
func (c *Connection) handleClientMessage(message []byte) {
	var frame ClientFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		c.enqueue(ServerFrame{Type: FrameError, Error: "malformed message"})
		return
	}

	log.Debug().
		Str("connection_id", c.ID).
		Str("viewer_id", c.Viewer.ID.String()).
		Str("event_type", string(frame.Type)).
		Msg("received client message")

	switch frame.Type {
	case FrameSetReady:
		ready := true
		if frame.Ready != nil {
			ready = *frame.Ready
		}
		c.Room.SetReady(c.ctx, ready)
	case FrameStartGame:
		c.Room.StartGame(c.ctx)
	case FrameSubmitAnswer:
		if frame.OptionID == "" {
			c.enqueue(ServerFrame{Type: FrameError, Error: "option_id is required"})
			return
		}
		c.Room.SubmitAnswer(c.ctx, frame.OptionID)
	case FrameNextQuestion:
		c.Room.NextQuestion(c.ctx)
	case FrameEndGame:
		c.Room.EndGame(c.ctx)
	default:
		c.enqueue(ServerFrame{Type: FrameError, Error: fmt.Sprintf("unknown message type %q", frame.Type)})
	}
}
