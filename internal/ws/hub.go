// Package ws carries the live comment feed. Connections subscribe to
// per-contract rooms; a comment lands only on the room of its contract,
// never on unrelated subscribers.
package ws

import (
	"log/slog"
	"sync"
)

// PublishFunc forwards a locally produced broadcast to other instances.
type PublishFunc func(contractID string, msg ServerMessage)

// Hub tracks which connections subscribe to which contract.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Conn]struct{}

	// publish, when set, relays local broadcasts across instances.
	publish PublishFunc
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*Conn]struct{})}
}

// SetPublisher installs the cross-instance relay hook. Call before serving.
func (h *Hub) SetPublisher(p PublishFunc) {
	h.publish = p
}

// Join adds the connection to the contract's room. A room holds connections
// rather than users: one user may have several tabs open.
func (h *Hub) Join(contractID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[contractID] == nil {
		h.rooms[contractID] = make(map[*Conn]struct{})
	}
	h.rooms[contractID][c] = struct{}{}
}

// Leave removes the connection from one room.
func (h *Hub) Leave(contractID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(contractID, c)
}

// LeaveAll removes the connection from every room it joined.
func (h *Hub) LeaveAll(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for contractID := range h.rooms {
		h.leaveLocked(contractID, c)
	}
}

func (h *Hub) leaveLocked(contractID string, c *Conn) {
	if conns, ok := h.rooms[contractID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, contractID)
		}
	}
}

// Broadcast delivers msg to every local subscriber of the contract.
// Delivery is best-effort: a subscriber with a full send buffer misses the
// message instead of stalling the room.
func (h *Hub) Broadcast(contractID string, msg ServerMessage) {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.rooms[contractID]))
	for c := range h.rooms[contractID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	for _, c := range conns {
		c.enqueue(msg)
	}
}

// BroadcastExcept is Broadcast minus one connection, used when the producer
// already received a direct echo.
func (h *Hub) BroadcastExcept(contractID string, except *Conn, msg ServerMessage) {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.rooms[contractID]))
	for c := range h.rooms[contractID] {
		if c != except {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range conns {
		c.enqueue(msg)
	}
}

// Publish is the local-origin broadcast path for producers without a
// connection of their own, such as the HTTP comment endpoint: the whole
// room plus the relay.
func (h *Hub) Publish(contractID string, msg ServerMessage) {
	h.fanOut(contractID, nil, msg)
}

// fanOut is the local-origin broadcast path: echo already done by the
// caller, everyone else in the room plus the relay.
func (h *Hub) fanOut(contractID string, producer *Conn, msg ServerMessage) {
	h.BroadcastExcept(contractID, producer, msg)
	if h.publish != nil {
		h.publish(contractID, msg)
	}
}

// Subscribers reports the current room size, mainly for logs and tests.
func (h *Hub) Subscribers(contractID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[contractID])
}

func logDroppedFrame(c *Conn, msg ServerMessage) {
	slog.Debug("ws: dropped frame for slow subscriber",
		"client_id", c.id, "type", msg.Type, "contract_id", msg.ContractID)
}
