package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/crowdrank/crowdrank-backend/pkg/logging"
)

// Client represents a WebSocket client connection
type Client struct {
	ID   string
	Conn *websocket.Conn
	Hub  *Hub
	Send chan *Message

	// WorkerID is the worker identity claimed at connect time. Zero means
	// anonymous; anonymous clients can only join the shared task room.
	WorkerID int64

	// Rooms tracks the rooms this client is subscribed to
	Rooms map[string]bool

	// OnClose is called once when the client disconnects (read loop exits)
	OnClose func()

	mu     sync.RWMutex
	logger logging.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// NewClient creates a new WebSocket client
func NewClient(id string, workerID int64, conn *websocket.Conn, hub *Hub, logger logging.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		ID:       id,
		WorkerID: workerID,
		Conn:     conn,
		Hub:      hub,
		Send:     make(chan *Message, 256),
		Rooms:    make(map[string]bool),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// ReadPump handles reading messages from the WebSocket connection
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		if err := c.Conn.Close(); err != nil {
			c.logger.Debugf("Error closing WebSocket for client %s: %v", c.ID, err)
		}
		if c.OnClose != nil {
			c.OnClose()
		}
	}()

	c.Conn.SetReadLimit(512)
	if err := c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		c.logger.Warnf("Failed to set read deadline for client %s: %v", c.ID, err)
	}
	c.Conn.SetPongHandler(func(string) error {
		if err := c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
			c.logger.Warnf("Failed to refresh read deadline on pong for client %s: %v", c.ID, err)
		}
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			var msg Message
			if err := c.Conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
					c.logger.Errorf("WebSocket error for client %s: %v", c.ID, err)
				} else {
					c.logger.Infof("WebSocket read ended for client %s: %v", c.ID, err)
				}
				return
			}

			c.handleMessage(&msg)
		}
	}
}

// WritePump handles writing messages to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		if err := c.Conn.Close(); err != nil {
			c.logger.Debugf("Error closing WebSocket for client %s: %v", c.ID, err)
		}
	}()

	for {
		select {
		case message := <-c.Send:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
				c.logger.Warnf("Failed to set write deadline for client %s: %v", c.ID, err)
			}
			if err := c.Conn.WriteJSON(message); err != nil {
				c.logger.Infof("Error writing message to client %s: %v", c.ID, err)
				return
			}

		case <-ticker.C:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
				c.logger.Warnf("Failed to set write deadline (ping) for client %s: %v", c.ID, err)
			}
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			if err := c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err == nil {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			}
			return
		}
	}
}

// handleMessage processes incoming messages from the client
func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case MessageTypeSubscribe:
		c.handleSubscribe(msg)
	case MessageTypeUnsubscribe:
		c.handleUnsubscribe(msg)
	case MessageTypePing:
		c.sendMessage(NewMessage(MessageTypePong, nil))
	default:
		c.sendMessage(NewErrorMessage("INVALID_MESSAGE_TYPE", "Unknown message type"))
	}
}

// handleSubscribe processes subscription requests
func (c *Client) handleSubscribe(msg *Message) {
	room, ok := roomFromData(msg.Data)
	if !ok {
		c.sendMessage(NewErrorMessage("INVALID_ROOM", "Room is required for subscription"))
		return
	}

	if !c.validateRoomAccess(room) {
		c.sendMessage(NewErrorMessage("ACCESS_DENIED", "Access denied to room"))
		return
	}

	c.mu.Lock()
	c.Rooms[room] = true
	c.mu.Unlock()

	c.Hub.Subscribe(&Subscription{Client: c, Room: room})

	c.sendMessage(NewSuccessMessage("Subscribed to room", map[string]string{"room": room}))
}

// handleUnsubscribe processes unsubscription requests
func (c *Client) handleUnsubscribe(msg *Message) {
	room, ok := roomFromData(msg.Data)
	if !ok {
		c.sendMessage(NewErrorMessage("INVALID_ROOM", "Room is required for unsubscription"))
		return
	}

	c.mu.Lock()
	delete(c.Rooms, room)
	c.mu.Unlock()

	c.Hub.Unsubscribe(&Subscription{Client: c, Room: room})

	c.sendMessage(NewSuccessMessage("Unsubscribed from room", map[string]string{"room": room}))
}

// roomFromData pulls the room name out of a decoded message payload.
func roomFromData(data interface{}) (string, bool) {
	fields, ok := data.(map[string]interface{})
	if !ok {
		return "", false
	}
	room, ok := fields["room"].(string)
	if !ok || room == "" {
		return "", false
	}
	return room, true
}

// validateRoomAccess checks whether the client may join the requested room.
// The shared task room is open to everyone; a worker room only admits the
// client that claimed that worker at connect time.
func (c *Client) validateRoomAccess(room string) bool {
	if room == RoomTasks {
		return true
	}
	if workerID, ok := ParseWorkerRoom(room); ok {
		return c.WorkerID == workerID
	}
	return false
}

// sendMessage sends a message to the client, dropping it when the send
// buffer is full.
func (c *Client) sendMessage(msg *Message) {
	select {
	case c.Send <- msg:
	default:
		c.logger.Warnf("Client %s send channel is full, closing connection", c.ID)
		c.Close()
	}
}

// Close stops both pumps. Safe to call more than once; the connection is
// closed by the pumps as they exit.
func (c *Client) Close() {
	c.cancel()
}

// IsInRoom checks if the client is subscribed to a specific room
func (c *Client) IsInRoom(room string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Rooms[room]
}

// GetRooms returns a copy of the client's subscribed rooms
func (c *Client) GetRooms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rooms := make([]string, 0, len(c.Rooms))
	for room := range c.Rooms {
		rooms = append(rooms, room)
	}
	return rooms
}
