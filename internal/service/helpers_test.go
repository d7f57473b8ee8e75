package service

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"pulse/config"
	"pulse/internal/database"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type emitted struct {
	Event   string
	Payload json.RawMessage
}

type fakePeer struct {
	mu     sync.Mutex
	events []emitted
	fail   bool
}

func (p *fakePeer) Emit(event string, payload interface{}) error {
	if p.fail {
		return errors.New("buffer full")
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.events = append(p.events, emitted{Event: event, Payload: b})
	p.mu.Unlock()
	return nil
}

func (p *fakePeer) Events() []emitted {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]emitted(nil), p.events...)
}

func (p *fakePeer) Last(t *testing.T, event string, into interface{}) {
	t.Helper()
	evs := p.Events()
	for i := len(evs) - 1; i >= 0; i-- {
		if evs[i].Event == event {
			require.NoError(t, json.Unmarshal(evs[i].Payload, into))
			return
		}
	}
	t.Fatalf("no %q event among %d", event, len(evs))
}

type fakeDirectory struct {
	mu    sync.Mutex
	peers map[string]*fakePeer
}

func newFakeDirectory(userIDs ...string) *fakeDirectory {
	d := &fakeDirectory{peers: make(map[string]*fakePeer)}
	for _, id := range userIDs {
		d.peers[id] = &fakePeer{}
	}
	return d
}

func (d *fakeDirectory) Lookup(userID string) (Peer, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.peers[userID]
	if !ok {
		return nil, false
	}
	return p, true
}

func (d *fakeDirectory) peer(userID string) *fakePeer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.peers[userID]
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.NewDB(&config.DatabaseConfig{DSN: "sqlite:" + filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

var ctx = context.Background()
