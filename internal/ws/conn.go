package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"contractlens/internal/app"
	"contractlens/pkg/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
	sendBufferSize = 32
)

// CommentService is the slice of the application layer the socket needs.
type CommentService interface {
	AddComment(ctx context.Context, author domain.User, contractID, body string, sel *domain.TextRange) (domain.Comment, error)
	GetContract(ctx context.Context, id string) (domain.Contract, error)
}

// Conn is one authenticated WebSocket connection. The user was resolved
// from the session token during the HTTP handshake and is fixed for the
// connection's lifetime.
type Conn struct {
	id   string
	user domain.User
	hub  *Hub
	sock *websocket.Conn
	send chan ServerMessage

	mu     sync.Mutex
	closed bool
}

// HandleConnection runs the read and write loops until the peer goes away
// or ctx is done. It blocks; call from the HTTP handler goroutine.
func (h *Hub) HandleConnection(ctx context.Context, sock *websocket.Conn, user domain.User, svc CommentService) {
	c := &Conn{
		id:   uuid.NewString(),
		user: user,
		hub:  h,
		sock: sock,
		send: make(chan ServerMessage, sendBufferSize),
	}
	go c.writeLoop()
	c.readLoop(ctx, svc)
}

// enqueue hands a frame to the write loop without blocking. Frames to a
// backlogged connection are dropped, and frames to a closed connection are
// ignored so a late broadcast cannot hit a closed channel.
func (c *Conn) enqueue(msg ServerMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		logDroppedFrame(c, msg)
	}
}

func (c *Conn) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Conn) readLoop(ctx context.Context, svc CommentService) {
	defer func() {
		c.hub.LeaveAll(c)
		c.closeSend()
		_ = c.sock.Close()
	}()

	c.sock.SetReadLimit(maxMessageSize)
	_ = c.sock.SetReadDeadline(time.Now().Add(pongWait))
	c.sock.SetPongHandler(func(string) error {
		return c.sock.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.sock.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.enqueue(ServerMessage{Type: TypeCommentError, Message: "malformed message", Code: "bad_message"})
			continue
		}
		c.dispatch(ctx, svc, msg)
	}
}

func (c *Conn) dispatch(ctx context.Context, svc CommentService, msg ClientMessage) {
	switch msg.Type {
	case TypeSubscribe:
		c.handleSubscribe(ctx, svc, msg.ContractID)
	case TypeUnsubscribe:
		c.hub.Leave(msg.ContractID, c)
		c.enqueue(ServerMessage{Type: TypeUnsubscribed, ContractID: msg.ContractID})
	case TypeNewComment:
		c.handleNewComment(ctx, svc, msg)
	default:
		c.enqueue(ServerMessage{Type: TypeCommentError, Message: "unknown message type", Code: "bad_message"})
	}
}

func (c *Conn) handleSubscribe(ctx context.Context, svc CommentService, contractID string) {
	if _, err := svc.GetContract(ctx, contractID); err != nil {
		c.enqueue(ServerMessage{Type: TypeCommentError, ContractID: contractID, Message: "contract not found", Code: "not_found"})
		return
	}
	c.hub.Join(contractID, c)
	c.enqueue(ServerMessage{Type: TypeSubscribed, ContractID: contractID})
}

// handleNewComment persists first, then fans out: a direct echo to the
// writer, the rest of the room, and the cross-instance relay. A failed
// persist reports to the writer only and nothing is broadcast.
func (c *Conn) handleNewComment(ctx context.Context, svc CommentService, msg ClientMessage) {
	saved, err := svc.AddComment(ctx, c.user, msg.ContractID, msg.Body, msg.Highlight)
	if err != nil {
		c.enqueue(ServerMessage{
			Type:       TypeCommentError,
			ContractID: msg.ContractID,
			Message:    err.Error(),
			Code:       errorCode(err),
		})
		return
	}
	out := ServerMessage{Type: TypeCommentAdded, ContractID: saved.ContractID, Comment: &saved}
	c.enqueue(out)
	c.hub.fanOut(saved.ContractID, c, out)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, app.ErrEmptyBody):
		return "empty_body"
	case errors.Is(err, app.ErrInvalidRange):
		return "invalid_range"
	case errors.Is(err, app.ErrContractNotFound):
		return "not_found"
	case errors.Is(err, app.ErrContractNotReady):
		return "not_ready"
	case errors.Is(err, app.ErrTimeout):
		return "timeout"
	case errors.Is(err, app.ErrStorageUnavailable):
		return "storage_unavailable"
	default:
		return "internal"
	}
}

func (c *Conn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.sock.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.sock.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.sock.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
