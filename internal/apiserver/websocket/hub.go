package websocket

import (
	"context"
	"sync"

	"github.com/crowdrank/crowdrank-backend/pkg/logging"
)

// Hub maintains the set of active clients and fans settlement events out to
// room subscribers.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Room subscriptions
	rooms map[string]map[*Client]bool

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Subscription requests
	subscribe chan *Subscription

	// Unsubscription requests
	unsubscribe chan *Subscription

	// Outbound messages addressed to rooms
	broadcast chan *RoomMessage

	// Context for graceful shutdown
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	logger logging.Logger
}

// RoomMessage is a message addressed to one or more rooms. An empty room
// list broadcasts to every connected client.
type RoomMessage struct {
	Message *Message
	Rooms   []string
}

// Subscription represents a client subscription to a room
type Subscription struct {
	Client *Client
	Room   string
}

// NewHub creates a new WebSocket hub
func NewHub(logger logging.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		clients:     make(map[*Client]bool),
		rooms:       make(map[string]map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		subscribe:   make(chan *Subscription),
		unsubscribe: make(chan *Subscription),
		broadcast:   make(chan *RoomMessage, 256),
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("Starting WebSocket hub")

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case subscription := <-h.subscribe:
			h.subscribeToRoom(subscription)

		case subscription := <-h.unsubscribe:
			h.unsubscribeFromRoom(subscription)

		case roomMsg := <-h.broadcast:
			h.deliver(roomMsg)

		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub shutting down")
			return
		}
	}
}

// Register hands a new client to the hub loop.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
		client.Close()
	}
}

// Unregister removes a client from the hub loop.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Subscribe adds a client to a room.
func (h *Hub) Subscribe(subscription *Subscription) {
	select {
	case h.subscribe <- subscription:
	case <-h.ctx.Done():
	}
}

// Unsubscribe removes a client from a room.
func (h *Hub) Unsubscribe(subscription *Subscription) {
	select {
	case h.unsubscribe <- subscription:
	case <-h.ctx.Done():
	}
}

// BroadcastTaskCompleted queues a completion event for the shared task room.
// The event is dropped when the broadcast queue is full.
func (h *Hub) BroadcastTaskCompleted(data interface{}) {
	h.enqueue(&RoomMessage{
		Message: NewMessage(MessageTypeTaskCompleted, data),
		Rooms:   []string{RoomTasks},
	})
}

// BroadcastWorkerPayout queues a payout event for one worker's room.
func (h *Hub) BroadcastWorkerPayout(workerID int64, data interface{}) {
	h.enqueue(&RoomMessage{
		Message: NewMessage(MessageTypeWorkerPayout, data),
		Rooms:   []string{WorkerRoom(workerID)},
	})
}

func (h *Hub) enqueue(roomMsg *RoomMessage) {
	select {
	case h.broadcast <- roomMsg:
	default:
		h.logger.Warnf("Broadcast queue is full, dropping %s event", roomMsg.Message.Type)
	}
}

// registerClient registers a new client
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true
	h.logger.Infof("Client %s registered. Total clients: %d", client.ID, len(h.clients))
}

// unregisterClient unregisters a client and removes it from all rooms
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	h.dropClient(client)
	h.logger.Infof("Client %s unregistered. Total clients: %d", client.ID, len(h.clients))
}

// dropClient removes a client from the client set and every room. Callers
// must hold the write lock.
func (h *Hub) dropClient(client *Client) {
	delete(h.clients, client)
	for room, clients := range h.rooms {
		if clients[client] {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	client.Close()
}

// subscribeToRoom subscribes a client to a room
func (h *Hub) subscribeToRoom(subscription *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client := subscription.Client
	room := subscription.Room

	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]bool)
	}

	h.rooms[room][client] = true
	h.logger.Infof("Client %s subscribed to room %s", client.ID, room)
}

// unsubscribeFromRoom unsubscribes a client from a room
func (h *Hub) unsubscribeFromRoom(subscription *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client := subscription.Client
	room := subscription.Room

	if clients, exists := h.rooms[room]; exists {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.rooms, room)
		}
		h.logger.Infof("Client %s unsubscribed from room %s", client.ID, room)
	}
}

// deliver sends a room message to every subscriber. Clients whose send
// buffer is full are dropped; their pumps shut the connection down.
func (h *Hub) deliver(roomMsg *RoomMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	message := roomMsg.Message

	if len(roomMsg.Rooms) == 0 {
		for client := range h.clients {
			h.send(client, message)
		}
		return
	}

	for _, room := range roomMsg.Rooms {
		for client := range h.rooms[room] {
			h.send(client, message)
		}
	}
}

// send queues a message on one client, dropping the client when its buffer
// is full. Callers must hold the write lock.
func (h *Hub) send(client *Client, message *Message) {
	select {
	case client.Send <- message:
	default:
		h.logger.Warnf("Client %s cannot keep up, dropping it", client.ID)
		h.dropClient(client)
	}
}

// GetStats returns hub statistics
func (h *Hub) GetStats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	roomStats := make(map[string]int)
	for room, clients := range h.rooms {
		roomStats[room] = len(clients)
	}

	return map[string]interface{}{
		"total_clients": len(h.clients),
		"total_rooms":   len(h.rooms),
		"rooms":         roomStats,
	}
}

// Shutdown gracefully shuts down the hub and closes all connections.
func (h *Hub) Shutdown() {
	h.logger.Info("Shutting down WebSocket hub")
	h.cancel()

	h.mu.Lock()
	for client := range h.clients {
		client.Close()
	}
	h.clients = make(map[*Client]bool)
	h.rooms = make(map[string]map[*Client]bool)
	h.mu.Unlock()
}
