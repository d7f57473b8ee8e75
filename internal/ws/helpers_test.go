package ws

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"pulse/internal/domain"
	"pulse/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, c *Client) Frame {
	t.Helper()
	select {
	case raw, ok := <-c.Send:
		require.True(t, ok, "send channel closed")
		var f Frame
		require.NoError(t, json.Unmarshal(raw, &f))
		return f
	case <-time.After(time.Second):
		t.Fatalf("no frame for %s", c.ID)
	}
	return Frame{}
}

func recvType(t *testing.T, c *Client, event string, into interface{}) {
	t.Helper()
	f := recv(t, c)
	require.Equal(t, event, f.Type, "frame data: %s", f.Data)
	if into != nil {
		require.NoError(t, json.Unmarshal(f.Data, into))
	}
}

func noFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw, ok := <-c.Send:
		if ok {
			t.Fatalf("unexpected frame for %s: %s", c.ID, raw)
		}
	default:
	}
}

func drain(c *Client) {
	for {
		select {
		case _, ok := <-c.Send:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

type presenceCall struct {
	UserID string
	Online bool
}

type fakePresenceStore struct {
	mu    sync.Mutex
	calls []presenceCall
}

func (s *fakePresenceStore) SetPresence(_ context.Context, userID string, online bool, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, presenceCall{UserID: userID, Online: online})
	return nil
}

func (s *fakePresenceStore) Calls() []presenceCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]presenceCall(nil), s.calls...)
}

// memoryCallStore keeps call records in a map using the model's transition rules.
type memoryCallStore struct {
	mu    sync.Mutex
	calls map[string]*models.Call
}

func newMemoryCallStore() *memoryCallStore {
	return &memoryCallStore{calls: make(map[string]*models.Call)}
}

func (s *memoryCallStore) CreateCall(_ context.Context, c *models.Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = uuid.NewString()
	c.Status = domain.CallStatusMissed
	cp := *c
	s.calls[c.ID] = &cp
	return nil
}

func (s *memoryCallStore) move(id, next string, check func(*models.Call) bool) (*models.Call, error) {
	c, ok := s.calls[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !c.CanTransition(next) {
		return nil, domain.ErrInvalidTransition
	}
	if !check(c) {
		return nil, domain.ErrForbidden
	}
	c.Status = next
	return c, nil
}

func (s *memoryCallStore) AnswerCall(_ context.Context, id, receiverID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.move(id, domain.CallStatusAnswered, func(c *models.Call) bool { return c.ReceiverID == receiverID })
	if err == nil {
		c.StartedAt = &at
	}
	return err
}

func (s *memoryCallStore) RejectCall(_ context.Context, id, receiverID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.move(id, domain.CallStatusRejected, func(c *models.Call) bool { return c.ReceiverID == receiverID })
	return err
}

func (s *memoryCallStore) EndCall(_ context.Context, id, partyID string, at time.Time) (*models.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.move(id, domain.CallStatusEnded, func(c *models.Call) bool { return c.IsParty(partyID) })
	if err != nil {
		return nil, err
	}
	c.EndedAt = &at
	c.Duration = c.DurationUntil(at)
	cp := *c
	return &cp, nil
}

func (s *memoryCallStore) get(id string) (models.Call, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	if !ok {
		return models.Call{}, false
	}
	return *c, true
}

func (s *memoryCallStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}
