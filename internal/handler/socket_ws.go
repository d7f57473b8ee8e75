package handler

import (
	"net/http"

	"pulse/config"
	"pulse/internal/auth"
	"pulse/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// originChecker allows requests without an Origin header and, when origins
// are configured, only those origins.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// UpgradeSocketWS upgrades to the realtime socket; query: token (required when
// cfg.JWT.RequireToken). A token pins the identity that setup may claim.
func UpgradeSocketWS(cfg *config.Config, d *ws.Dispatcher, log *zap.Logger) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(cfg.Realtime.AllowedOrigins),
	}
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" && cfg.JWT.RequireToken {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "token required"})
			return
		}
		var userID string
		if token != "" {
			claims, err := auth.ParseAccessToken(&cfg.JWT, token)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				return
			}
			userID = claims.UserID
		}
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Debug("upgrade", zap.Error(err))
			return
		}
		defer conn.Close()
		client := ws.NewClient(cfg.Realtime.SendBuffer, userID)
		ws.Serve(c.Request.Context(), conn, client, d, cfg.Realtime, log)
	}
}
