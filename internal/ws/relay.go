package ws

import (
	"sync"

	"go.uber.org/zap"
)

// Relay fans events out to the connections joined to a room. Publishes to one
// room are serialized by the room lock, so every member sees them in publish
// order. Delivery is at-most-once; nothing is queued for absent members.
type Relay struct {
	mu    sync.RWMutex
	rooms map[string]*room
	log   *zap.Logger
}

type room struct {
	mu      sync.Mutex
	members map[*Client]struct{}
}

func NewRelay(log *zap.Logger) *Relay {
	return &Relay{rooms: make(map[string]*room), log: log}
}

// Join adds c to roomID. Joining twice is a no-op.
func (r *Relay) Join(c *Client, roomID string) {
	if roomID == "" {
		return
	}
	r.mu.Lock()
	rm := r.rooms[roomID]
	if rm == nil {
		rm = &room{members: make(map[*Client]struct{})}
		r.rooms[roomID] = rm
	}
	rm.mu.Lock()
	rm.members[c] = struct{}{}
	rm.mu.Unlock()
	r.mu.Unlock()
	c.addRoom(roomID)
}

func (r *Relay) Leave(c *Client, roomID string) {
	r.mu.Lock()
	r.leaveLocked(c, roomID)
	r.mu.Unlock()
	c.removeRoom(roomID)
}

// LeaveAll removes c from every room it joined.
func (r *Relay) LeaveAll(c *Client) {
	rooms := c.Rooms()
	r.mu.Lock()
	for _, id := range rooms {
		r.leaveLocked(c, id)
	}
	r.mu.Unlock()
	for _, id := range rooms {
		c.removeRoom(id)
	}
}

func (r *Relay) leaveLocked(c *Client, roomID string) {
	rm := r.rooms[roomID]
	if rm == nil {
		return
	}
	rm.mu.Lock()
	delete(rm.members, c)
	empty := len(rm.members) == 0
	rm.mu.Unlock()
	if empty {
		delete(r.rooms, roomID)
	}
}

// IsMember reports whether c is joined to roomID.
func (r *Relay) IsMember(c *Client, roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm := r.rooms[roomID]
	if rm == nil {
		return false
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	_, ok := rm.members[c]
	return ok
}

// MemberCount returns the number of connections joined to roomID.
func (r *Relay) MemberCount(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm := r.rooms[roomID]
	if rm == nil {
		return 0
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.members)
}

// Publish delivers event to every member of roomID except exclude (may be nil)
// and returns how many connections accepted the frame.
func (r *Relay) Publish(roomID, event string, payload interface{}, exclude *Client) int {
	data, err := encodeFrame(event, payload)
	if err != nil {
		r.log.Warn("encode frame", zap.String("event", event), zap.Error(err))
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm := r.rooms[roomID]
	if rm == nil {
		return 0
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	delivered := 0
	for c := range rm.members {
		if c == exclude {
			continue
		}
		if c.enqueue(data) {
			delivered++
		} else {
			r.log.Debug("frame dropped", zap.String("room", roomID), zap.String("event", event), zap.String("conn", c.ID))
		}
	}
	return delivered
}
