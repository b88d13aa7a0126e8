package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ConnectionManager owns every live websocket. Connections are pooled per
// game for broadcasts and indexed by connection ID for targeted pushes.
type ConnectionManager struct {
	gameConnections map[uuid.UUID]map[*Connection]bool
	byID            map[string]*Connection
	mu              sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
}

// Connection represents one player's live channel.
type Connection struct {
	ID       string
	PlayerID uuid.UUID
	GameID   uuid.UUID
	Conn     *websocket.Conn
	Send     chan []byte
	Manager  *ConnectionManager

	ConnectedAt time.Time
	LastPing    time.Time

	// onClose runs once when the connection unregisters.
	onClose   func()
	closeOnce sync.Once
}

// ConnectionConfig holds websocket tuning knobs.
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
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// ClientCall is the wire shape of one server-to-client method call.
type ClientCall struct {
	Method  string `json:"method"`
	Payload any    `json:"payload,omitempty"`
}

// NewConnectionManager creates a ConnectionManager.
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		gameConnections: make(map[uuid.UUID]map[*Connection]bool),
		byID:            make(map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
	}
}

// UpgradeConnection upgrades an HTTP request to a websocket, registers the
// connection, and starts its pumps. onClose runs once when the connection
// goes away, however it goes away.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, playerID, gameID uuid.UUID, onClose func()) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		PlayerID:    playerID,
		GameID:      gameID,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
		onClose:     onClose,
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("player_id", playerID.String()).
		Str("game_id", gameID.String()).
		Msg("websocket connection established")

	return connection, nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.gameConnections[conn.GameID] == nil {
		cm.gameConnections[conn.GameID] = make(map[*Connection]bool)
	}
	cm.gameConnections[conn.GameID][conn] = true
	cm.byID[conn.ID] = conn
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	if connections, exists := cm.gameConnections[conn.GameID]; exists {
		if _, exists := connections[conn]; exists {
			delete(connections, conn)
			close(conn.Send)
			if len(connections) == 0 {
				delete(cm.gameConnections, conn.GameID)
			}
		}
	}
	delete(cm.byID, conn.ID)
	cm.mu.Unlock()

	conn.closeOnce.Do(func() {
		if conn.onClose != nil {
			conn.onClose()
		}
		log.Info().
			Str("connection_id", conn.ID).
			Str("player_id", conn.PlayerID.String()).
			Msg("connection unregistered")
	})
}

// Push sends one client method call to a single connection. It satisfies the
// dispatcher's live channel.
func (cm *ConnectionManager) Push(connectionID, method string, payload any) error {
	cm.mu.RLock()
	conn, ok := cm.byID[connectionID]
	cm.mu.RUnlock()
	if !ok {
		return fmt.Errorf("connection %s not found", connectionID)
	}

	data, err := json.Marshal(ClientCall{Method: method, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshal client call: %w", err)
	}

	select {
	case conn.Send <- data:
		return nil
	default:
		// Slow consumer: drop the connection rather than block dispatch.
		log.Warn().
			Str("connection_id", conn.ID).
			Str("player_id", conn.PlayerID.String()).
			Msg("send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
		return fmt.Errorf("connection %s send buffer full", connectionID)
	}
}

// CloseGame tears down every connection of a game, e.g. after completion.
func (cm *ConnectionManager) CloseGame(gameID uuid.UUID) {
	cm.mu.RLock()
	var conns []*Connection
	for conn := range cm.gameConnections[gameID] {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range conns {
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}
}

// Stats reports active connection counts per game.
func (cm *ConnectionManager) Stats() map[string]any {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	total := 0
	perGame := make(map[string]int)
	for gameID, connections := range cm.gameConnections {
		total += len(connections)
		perGame[gameID.String()] = len(connections)
	}
	return map[string]any{
		"total_connections": total,
		"active_games":      len(cm.gameConnections),
		"game_connections":  perGame,
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warn().
					Err(err).
					Str("connection_id", c.ID).
					Msg("websocket write failed")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			c.LastPing = time.Now()
		}
	}
}

func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected websocket close")
			}
			break
		}

		// Clients only talk to the REST API; inbound frames are logged and
		// otherwise ignored.
		log.Debug().
			Str("connection_id", c.ID).
			Str("player_id", c.PlayerID.String()).
			RawJSON("message", message).
			Msg("received client message")
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
