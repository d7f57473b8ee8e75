package ws

import (
	"sort"
	"sync"
)

// Presence maps each user to its single active connection. The last
// registered connection wins; removals are identity-guarded so a superseded
// connection can never evict its replacement.
type Presence struct {
	mu      sync.RWMutex
	entries map[string]*Client
}

func NewPresence() *Presence {
	return &Presence{entries: make(map[string]*Client)}
}

// Register binds userID to c and returns the connection it replaced, if any.
func (p *Presence) Register(userID string, c *Client) (replaced *Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	replaced = p.entries[userID]
	if replaced == c {
		replaced = nil
	}
	p.entries[userID] = c
	return replaced
}

// Lookup returns the active connection for userID.
func (p *Presence) Lookup(userID string) (*Client, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.entries[userID]
	return c, ok
}

// Remove drops the entry for c's user only when c is still the registered
// connection. It reports the user id and whether an entry was removed.
func (p *Presence) Remove(c *Client) (string, bool) {
	userID := c.UserID()
	if userID == "" {
		return "", false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.entries[userID] != c {
		return userID, false
	}
	delete(p.entries, userID)
	return userID, true
}

// Online returns the sorted set of user ids with an active connection.
func (p *Presence) Online() []string {
	p.mu.RLock()
	ids := make([]string, 0, len(p.entries))
	for id := range p.entries {
		ids = append(ids, id)
	}
	p.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (p *Presence) IsOnline(userID string) bool {
	_, ok := p.Lookup(userID)
	return ok
}

func (p *Presence) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}
