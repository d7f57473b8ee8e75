package handler

import (
	"context"
	"net/http"
	"time"

	"pulse/internal/middleware"
	"pulse/internal/models"

	"github.com/gin-gonic/gin"
)

type MessageScheduler interface {
	ScheduleMessage(ctx context.Context, senderID, chatID, content string, at time.Time) (*models.ScheduledMessage, error)
	CancelMessage(ctx context.Context, userID, id string) (*models.ScheduledMessage, error)
	ListPending(ctx context.Context, userID, chatID string) ([]models.ScheduledMessage, error)
}

type ScheduledHandler struct {
	scheduler MessageScheduler
}

func NewScheduledHandler(scheduler MessageScheduler) *ScheduledHandler {
	return &ScheduledHandler{scheduler: scheduler}
}

func (h *ScheduledHandler) Schedule(c *gin.Context) {
	var req struct {
		ChatID        string    `json:"chatId" binding:"required"`
		Content       string    `json:"content" binding:"required"`
		ScheduledTime time.Time `json:"scheduledTime" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	entry, err := h.scheduler.ScheduleMessage(c.Request.Context(), middleware.GetUserID(c), req.ChatID, req.Content, req.ScheduledTime)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (h *ScheduledHandler) ListPending(c *gin.Context) {
	list, err := h.scheduler.ListPending(c.Request.Context(), middleware.GetUserID(c), c.Param("chat_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scheduled": list})
}

func (h *ScheduledHandler) Cancel(c *gin.Context) {
	entry, err := h.scheduler.CancelMessage(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}
