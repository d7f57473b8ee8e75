package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pulse/config"
	"pulse/internal/auth"
	"pulse/internal/domain"
	"pulse/internal/models"
	"pulse/internal/service"
	"pulse/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func withUser(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", userID)
		c.Next()
	}
}

type fakeScheduler struct {
	entries map[string]*models.ScheduledMessage
}

func (f *fakeScheduler) ScheduleMessage(_ context.Context, senderID, chatID, content string, at time.Time) (*models.ScheduledMessage, error) {
	if !at.After(time.Now()) {
		return nil, domain.ErrScheduleInPast
	}
	if chatID == "missing" {
		return nil, fmt.Errorf("get chat: %w", domain.ErrNotFound)
	}
	m := &models.ScheduledMessage{ID: fmt.Sprintf("s%d", len(f.entries)+1), SenderID: senderID, ChatID: chatID, Content: content, ScheduledTime: at, Status: domain.ScheduledPending}
	f.entries[m.ID] = m
	return m, nil
}

func (f *fakeScheduler) CancelMessage(_ context.Context, userID, id string) (*models.ScheduledMessage, error) {
	m, ok := f.entries[id]
	switch {
	case !ok:
		return nil, domain.ErrNotFound
	case m.SenderID != userID:
		return nil, domain.ErrForbidden
	case !m.IsPending():
		return nil, domain.ErrNotPending
	}
	m.Status = domain.ScheduledCancelled
	return m, nil
}

func (f *fakeScheduler) ListPending(_ context.Context, userID, chatID string) ([]models.ScheduledMessage, error) {
	var out []models.ScheduledMessage
	for _, m := range f.entries {
		if m.SenderID == userID && m.ChatID == chatID && m.IsPending() {
			out = append(out, *m)
		}
	}
	return out, nil
}

func newScheduledRouter(userID string, f *fakeScheduler) *gin.Engine {
	h := NewScheduledHandler(f)
	r := gin.New()
	g := r.Group("/", withUser(userID))
	g.POST("/messages/schedule", h.Schedule)
	g.GET("/messages/scheduled/:chat_id", h.ListPending)
	g.DELETE("/messages/scheduled/:id", h.Cancel)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestScheduleHandler(t *testing.T) {
	f := &fakeScheduler{entries: map[string]*models.ScheduledMessage{}}
	r := newScheduledRouter("alice", f)
	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	past := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"created", `{"chatId":"c1","content":"hi","scheduledTime":"` + future + `"}`, http.StatusCreated},
		{"missing content", `{"chatId":"c1","scheduledTime":"` + future + `"}`, http.StatusBadRequest},
		{"past time", `{"chatId":"c1","content":"hi","scheduledTime":"` + past + `"}`, http.StatusBadRequest},
		{"unknown chat", `{"chatId":"missing","content":"hi","scheduledTime":"` + future + `"}`, http.StatusNotFound},
		{"bad json", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/messages/schedule", tt.body)
			assert.Equal(t, tt.code, w.Code, w.Body.String())
		})
	}

	w := do(r, http.MethodGet, "/messages/scheduled/c1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Scheduled []models.ScheduledMessage `json:"scheduled"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	assert.Len(t, listed.Scheduled, 1)
}

func TestCancelScheduledHandler(t *testing.T) {
	f := &fakeScheduler{entries: map[string]*models.ScheduledMessage{
		"mine":   {ID: "mine", SenderID: "alice", Status: domain.ScheduledPending},
		"theirs": {ID: "theirs", SenderID: "bob", Status: domain.ScheduledPending},
		"sent":   {ID: "sent", SenderID: "alice", Status: domain.ScheduledSent},
	}}
	r := newScheduledRouter("alice", f)

	tests := []struct {
		id   string
		code int
	}{
		{"nope", http.StatusNotFound},
		{"theirs", http.StatusForbidden},
		{"sent", http.StatusConflict},
		{"mine", http.StatusOK},
		{"mine", http.StatusConflict},
	}
	for _, tt := range tests {
		w := do(r, http.MethodDelete, "/messages/scheduled/"+tt.id, "")
		assert.Equal(t, tt.code, w.Code, "cancel %s: %s", tt.id, w.Body.String())
	}
}

type fakeCallLog struct {
	gotLimit, gotOffset int
}

func (f *fakeCallLog) ListByUser(_ context.Context, userID string, limit, offset int) ([]models.Call, error) {
	f.gotLimit, f.gotOffset = limit, offset
	return []models.Call{{ID: "c1", CallerID: userID, ReceiverID: "bob", Type: domain.CallTypeVoice, Status: domain.CallStatusMissed}}, nil
}

func TestCallHandlerList(t *testing.T) {
	log := &fakeCallLog{}
	r := gin.New()
	r.GET("/calls", withUser("alice"), NewCallHandler(log).List)

	w := do(r, http.MethodGet, "/calls?limit=500&offset=-3", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 20, log.gotLimit)
	assert.Equal(t, 0, log.gotOffset)
	assert.Contains(t, w.Body.String(), `"caller":"alice"`)
}

func TestPresenceHandler(t *testing.T) {
	hub := ws.NewHub(nil, nil)
	c := ws.NewClient(8, "")
	hub.Admit(c)
	_, err := hub.Setup(c, "alice")
	require.NoError(t, err)

	h := NewPresenceHandler(hub)
	r := gin.New()
	r.GET("/presence/online", h.ListOnline)
	r.GET("/presence/:user_id", h.GetPresence)

	w := do(r, http.MethodGet, "/presence/online", "")
	assert.JSONEq(t, `{"online":["alice"]}`, w.Body.String())
	w = do(r, http.MethodGet, "/presence/bob", "")
	assert.JSONEq(t, `{"user_id":"bob","online":false}`, w.Body.String())
}

func TestHealth(t *testing.T) {
	r := gin.New()
	r.GET("/health", Health)
	w := do(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestUpgradeSocketWSToken(t *testing.T) {
	cfg := &config.Config{
		JWT: config.JWTConfig{AccessSecret: "secret", AccessExpiry: time.Hour, Issuer: "pulse", RequireToken: true},
		Realtime: config.RealtimeConfig{
			SendBuffer: 16, WriteWait: time.Second, PongWait: 5 * time.Second,
			MaxMessageBytes: 1 << 16, EventsPerSecond: 100, EventBurst: 100,
			AllowedOrigins: []string{"http://app.test"},
		},
	}
	hub := ws.NewHub(nil, nil)
	d := ws.NewDispatcher(hub, service.NewCallService(hub, nil, nil), nil)
	r := gin.New()
	r.GET("/ws", UpgradeSocketWS(cfg, d, zap.NewNop()))
	srv := httptest.NewServer(r)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := auth.GenerateAccessToken(&cfg.JWT, "alice")
	require.NoError(t, err)

	_, resp, err = websocket.DefaultDialer.Dial(url+"?token="+token, http.Header{"Origin": {"http://evil.test"}})
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?token="+token, http.Header{"Origin": {"http://app.test"}})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(ws.Frame{Type: domain.EventSetup, Data: []byte(`"mallory"`)}))
	var f ws.Frame
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, domain.EventError, f.Type)

	require.NoError(t, conn.WriteJSON(ws.Frame{Type: domain.EventSetup, Data: []byte(`"alice"`)}))
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, domain.EventOnlineUsers, f.Type)
	require.Eventually(t, func() bool { return hub.IsOnline("alice") }, time.Second, 10*time.Millisecond)
}
