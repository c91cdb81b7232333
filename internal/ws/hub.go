package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/tabletap/api/internal/enum"
	"github.com/tabletap/api/internal/metrics"
	"go.uber.org/zap"
)

// Event represents a WebSocket message to be broadcast
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// restaurantEvent routes an encoded event to one restaurant room.
type restaurantEvent struct {
	RestaurantID uuid.UUID
	Event        Event
}

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	// Registered clients by restaurant ID
	rooms map[uuid.UUID]map[*Client]bool

	register   chan *Client
	unregister chan *Client

	// Outbound events. Publish never waits on this queue.
	broadcast chan *restaurantEvent

	// closed when Run returns
	done chan struct{}

	mu  sync.RWMutex
	log *zap.Logger
}

// NewHub creates a new Hub instance
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		rooms:      make(map[uuid.UUID]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *restaurantEvent, 256),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Run starts the hub's main loop and returns when ctx is done, closing
// every remaining client.
// This should be called as a goroutine: go hub.Run(ctx)
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for rid, clients := range h.rooms {
				for client := range clients {
					h.drop(rid, client)
				}
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.restaurantID] == nil {
				h.rooms[client.restaurantID] = make(map[*Client]bool)
			}
			h.rooms[client.restaurantID][client] = true
			metrics.Subscribers.Inc()
			h.greet(client)
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.rooms[client.restaurantID]; ok && clients[client] {
				h.drop(client.restaurantID, client)
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			delivered, dropped := h.deliver(event)
			h.log.Debug("event broadcast",
				zap.String("type", event.Event.Type),
				zap.Stringer("restaurant_id", event.RestaurantID),
				zap.Int("delivered", delivered),
				zap.Int("dropped", dropped),
			)
		}
	}
}

// greet queues the synthetic connected event for a new subscriber.
// Caller must hold h.mu.
func (h *Hub) greet(client *Client) {
	payload, _ := json.Marshal(map[string]string{"restaurant_id": client.restaurantID.String()})
	message, err := json.Marshal(Event{Type: enum.EventConnected, Payload: payload})
	if err != nil {
		return
	}
	select {
	case client.send <- message:
	default:
	}
}

// deliver fans one event out to its room. Clients whose send buffer is full
// are disconnected; they refetch state when they reconnect.
func (h *Hub) deliver(event *restaurantEvent) (delivered, dropped int) {
	message, err := json.Marshal(event.Event)
	if err != nil {
		h.log.Error("encode event", zap.String("type", event.Event.Type), zap.Error(err))
		return 0, 0
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.rooms[event.RestaurantID] {
		select {
		case client.send <- message:
			delivered++
		default:
			h.drop(event.RestaurantID, client)
			dropped++
		}
	}
	if dropped > 0 {
		metrics.DroppedEvents.WithLabelValues("slow_subscriber").Add(float64(dropped))
	}
	return delivered, dropped
}

// drop removes client from its room and closes its send channel.
// Caller must hold h.mu.
func (h *Hub) drop(restaurantID uuid.UUID, client *Client) {
	delete(h.rooms[restaurantID], client)
	close(client.send)
	metrics.Subscribers.Dec()
	if len(h.rooms[restaurantID]) == 0 {
		delete(h.rooms, restaurantID)
	}
}

// Publish queues an event for every subscriber of the restaurant. It never
// blocks: when the queue is full the event is dropped and subscribers see
// the change on their next fetch.
func (h *Hub) Publish(restaurantID uuid.UUID, eventType string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("encode payload", zap.String("type", eventType), zap.Error(err))
		return
	}

	select {
	case h.broadcast <- &restaurantEvent{RestaurantID: restaurantID, Event: Event{Type: eventType, Payload: raw}}:
	default:
		metrics.DroppedEvents.WithLabelValues("queue_full").Inc()
		h.log.Warn("event queue full, dropping event",
			zap.String("type", eventType),
			zap.Stringer("restaurant_id", restaurantID),
		)
	}
}

// Subscribers reports how many clients are connected for a restaurant.
func (h *Hub) Subscribers(restaurantID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[restaurantID])
}
