package ws

import (
	"errors"
	"sync"

	"pulse/internal/domain"

	"github.com/google/uuid"
)

var errDropped = errors.New("ws: send buffer full or connection closed")

// Client is one live connection. Outbound frames go through Send, which the
// write pump drains; enqueueing never blocks and drops when the buffer is full.
type Client struct {
	ID   string
	Send chan []byte

	// Token-authenticated user, empty when the socket carried no token.
	tokenUserID string

	mu     sync.Mutex
	userID string
	rooms  map[string]struct{}
	closed bool
}

func NewClient(sendBuffer int, tokenUserID string) *Client {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Client{
		ID:          uuid.NewString(),
		Send:        make(chan []byte, sendBuffer),
		tokenUserID: tokenUserID,
		rooms:       make(map[string]struct{}),
	}
}

// UserID returns the identity bound by setup, or "" before setup.
func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// bindUser sets the identity once. Re-binding the same id is a no-op.
func (c *Client) bindUser(userID string) error {
	if c.tokenUserID != "" && c.tokenUserID != userID {
		return domain.ErrUserMismatch
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.userID != "" && c.userID != userID {
		return domain.ErrAlreadySetup
	}
	c.userID = userID
	return nil
}

// Emit encodes and enqueues one frame. It satisfies service.Peer.
func (c *Client) Emit(event string, payload interface{}) error {
	data, err := encodeFrame(event, payload)
	if err != nil {
		return err
	}
	if !c.enqueue(data) {
		return errDropped
	}
	return nil
}

func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// Close stops further delivery and closes Send so the write pump exits.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

func (c *Client) addRoom(roomID string) {
	c.mu.Lock()
	c.rooms[roomID] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) removeRoom(roomID string) {
	c.mu.Lock()
	delete(c.rooms, roomID)
	c.mu.Unlock()
}

// Rooms returns a snapshot of joined room ids.
func (c *Client) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		out = append(out, id)
	}
	return out
}
