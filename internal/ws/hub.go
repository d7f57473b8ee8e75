package ws

import (
	"context"
	"sync"
	"time"

	"pulse/internal/domain"
	"pulse/internal/service"

	"go.uber.org/zap"
)

// PresenceStore persists the durable online flag and last-seen time.
type PresenceStore interface {
	SetPresence(ctx context.Context, userID string, online bool, at time.Time) error
}

type presenceWrite struct {
	userID string
	online bool
	at     time.Time
}

// Hub owns every live connection together with the Presence registry and the
// room Relay. Register/remove and their online/offline broadcasts happen under
// one lock so observers never see a stale order; the durable presence write
// runs on a single writer goroutine in the same order and never blocks relay.
type Hub struct {
	presence *Presence
	relay    *Relay
	store    PresenceStore
	log      *zap.Logger
	now      func() time.Time

	mu      sync.RWMutex
	clients map[*Client]struct{}

	presenceMu sync.Mutex

	writes    chan presenceWrite
	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewHub creates a hub. store may be nil, in which case presence is not persisted.
func NewHub(store PresenceStore, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		presence: NewPresence(),
		relay:    NewRelay(log.Named("relay")),
		store:    store,
		log:      log,
		now:      time.Now,
		clients:  make(map[*Client]struct{}),
		writes:   make(chan presenceWrite, 1024),
		done:     make(chan struct{}),
	}
}

// Start launches the presence writer.
func (h *Hub) Start() {
	h.startOnce.Do(func() {
		h.wg.Add(1)
		go h.writeLoop()
	})
}

// Stop closes every connection and drains pending presence writes.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		h.mu.Lock()
		clients := make([]*Client, 0, len(h.clients))
		for c := range h.clients {
			clients = append(clients, c)
		}
		h.mu.Unlock()
		for _, c := range clients {
			c.Close()
		}
		close(h.done)
		h.wg.Wait()
	})
}

func (h *Hub) Presence() *Presence { return h.presence }
func (h *Hub) Relay() *Relay       { return h.relay }

// Admit tracks a freshly opened connection; it receives broadcasts before setup.
func (h *Hub) Admit(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Setup binds c to userID, replaces any previous entry for that user, tells
// every other connection the user is online and sends c the full online set.
func (h *Hub) Setup(c *Client, userID string) ([]string, error) {
	if err := c.bindUser(userID); err != nil {
		return nil, err
	}
	h.presenceMu.Lock()
	replaced := h.presence.Register(userID, c)
	h.Broadcast(domain.EventUserOnline, userID, c)
	online := h.presence.Online()
	_ = c.Emit(domain.EventOnlineUsers, online)
	h.presenceMu.Unlock()

	if replaced != nil {
		h.log.Info("presence replaced", zap.String("user", userID), zap.String("old_conn", replaced.ID), zap.String("conn", c.ID))
	} else {
		h.log.Info("user online", zap.String("user", userID), zap.String("conn", c.ID))
	}
	h.persist(userID, true, h.now())
	return online, nil
}

type offlinePayload struct {
	UserID   string    `json:"userId"`
	LastSeen time.Time `json:"lastSeen"`
}

// Drop forgets a closed connection: it leaves all rooms and, when c is still
// the user's registered connection, removes the presence entry and announces
// the user offline. It reports the user id and whether presence changed.
func (h *Hub) Drop(c *Client) (string, bool) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	h.relay.LeaveAll(c)

	h.presenceMu.Lock()
	userID, removed := h.presence.Remove(c)
	var at time.Time
	if removed {
		at = h.now()
		h.Broadcast(domain.EventUserOffline, offlinePayload{UserID: userID, LastSeen: at}, c)
	}
	h.presenceMu.Unlock()
	c.Close()

	if removed {
		h.log.Info("user offline", zap.String("user", userID), zap.String("conn", c.ID))
		h.persist(userID, false, at)
	} else if userID != "" {
		h.log.Debug("stale connection closed", zap.String("user", userID), zap.String("conn", c.ID))
	}
	return userID, removed
}

// Lookup returns the user's active connection as a signaling peer.
func (h *Hub) Lookup(userID string) (service.Peer, bool) {
	c, ok := h.presence.Lookup(userID)
	if !ok {
		return nil, false
	}
	return c, true
}

// Online returns the ids of every reachable user.
func (h *Hub) Online() []string { return h.presence.Online() }

func (h *Hub) IsOnline(userID string) bool { return h.presence.IsOnline(userID) }

// PublishToUser delivers an event straight to the user's active connection.
func (h *Hub) PublishToUser(userID, event string, payload interface{}) bool {
	c, ok := h.presence.Lookup(userID)
	if !ok {
		return false
	}
	if err := c.Emit(event, payload); err != nil {
		h.log.Debug("direct frame dropped", zap.String("user", userID), zap.String("event", event), zap.Error(err))
		return false
	}
	return true
}

// PublishToChat fans out to the chat room and then to listed participants who
// are online but have not joined the room.
func (h *Hub) PublishToChat(chatID string, participants []string, event string, payload interface{}) int {
	return h.publishToChat(chatID, participants, event, payload, nil)
}

func (h *Hub) publishToChat(chatID string, participants []string, event string, payload interface{}, exclude *Client) int {
	delivered := h.relay.Publish(chatID, event, payload, exclude)
	excludeUser := ""
	if exclude != nil {
		excludeUser = exclude.UserID()
	}
	for _, userID := range participants {
		if userID == "" || userID == excludeUser {
			continue
		}
		c, ok := h.presence.Lookup(userID)
		if !ok || c == exclude || h.relay.IsMember(c, chatID) {
			continue
		}
		if c.Emit(event, payload) == nil {
			delivered++
		}
	}
	return delivered
}

// Broadcast delivers event to every tracked connection except exclude.
func (h *Hub) Broadcast(event string, payload interface{}, exclude *Client) int {
	data, err := encodeFrame(event, payload)
	if err != nil {
		h.log.Warn("encode frame", zap.String("event", event), zap.Error(err))
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for c := range h.clients {
		if c != exclude && c.enqueue(data) {
			delivered++
		}
	}
	return delivered
}

func (h *Hub) persist(userID string, online bool, at time.Time) {
	if h.store == nil {
		return
	}
	select {
	case h.writes <- presenceWrite{userID: userID, online: online, at: at}:
	default:
		h.log.Warn("presence write queue full", zap.String("user", userID), zap.Bool("online", online))
	}
}

func (h *Hub) writeLoop() {
	defer h.wg.Done()
	for {
		select {
		case w := <-h.writes:
			h.write(w)
		case <-h.done:
			for {
				select {
				case w := <-h.writes:
					h.write(w)
				default:
					return
				}
			}
		}
	}
}

func (h *Hub) write(w presenceWrite) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.store.SetPresence(ctx, w.userID, w.online, w.at); err != nil {
		h.log.Warn("persist presence", zap.String("user", w.userID), zap.Bool("online", w.online), zap.Error(err))
	}
}
