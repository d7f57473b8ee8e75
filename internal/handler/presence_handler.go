package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// OnlineDirectory is the read side of the live presence registry.
type OnlineDirectory interface {
	Online() []string
	IsOnline(userID string) bool
}

type PresenceHandler struct {
	dir OnlineDirectory
}

func NewPresenceHandler(dir OnlineDirectory) *PresenceHandler {
	return &PresenceHandler{dir: dir}
}

func (h *PresenceHandler) ListOnline(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"online": h.dir.Online()})
}

func (h *PresenceHandler) GetPresence(c *gin.Context) {
	userID := c.Param("user_id")
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "online": h.dir.IsOnline(userID)})
}
