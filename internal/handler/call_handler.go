package handler

import (
	"context"
	"net/http"
	"strconv"

	"pulse/internal/middleware"
	"pulse/internal/models"

	"github.com/gin-gonic/gin"
)

type CallLog interface {
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Call, error)
}

type CallHandler struct {
	calls CallLog
}

func NewCallHandler(calls CallLog) *CallHandler {
	return &CallHandler{calls: calls}
}

func (h *CallHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	list, err := h.calls.ListByUser(c.Request.Context(), middleware.GetUserID(c), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": list})
}
