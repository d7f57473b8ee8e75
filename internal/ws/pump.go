package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pulse/config"
	"pulse/internal/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	errRateLimited    = errors.New("too many events")
	errMalformedFrame = fmt.Errorf("malformed frame: %w", domain.ErrInvalidArgument)
)

// Serve runs one connection until the peer goes away or ctx ends. Frames are
// dispatched in arrival order on this goroutine; the write pump drains c.Send.
func Serve(ctx context.Context, conn *websocket.Conn, c *Client, d *Dispatcher, cfg config.RealtimeConfig, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("conn", c.ID))
	d.hub.Admit(c)
	defer d.Disconnect(c)

	done := make(chan struct{})
	go func() {
		defer close(done)
		writePump(conn, c, cfg)
	}()
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	conn.SetReadLimit(cfg.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	limiter := rate.NewLimiter(rate.Limit(cfg.EventsPerSecond), cfg.EventBurst)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("read", zap.Error(err))
			}
			return
		}
		if !limiter.Allow() {
			d.replyError(c, "frame", errRateLimited)
			continue
		}
		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil || f.Type == "" {
			d.replyError(c, "frame", errMalformedFrame)
			continue
		}
		d.Dispatch(ctx, c, f)
	}
}

func writePump(conn *websocket.Conn, c *Client, cfg config.RealtimeConfig) {
	ticker := time.NewTicker(cfg.PingPeriod())
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.Send:
			_ = conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
