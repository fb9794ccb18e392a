package http

import (
	"net/http"

	"anoa.com/playquestrewards/internal/modules/leaderboard/service"
	"anoa.com/playquestrewards/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type LeaderboardHandler struct {
	service service.LeaderboardService
}

func NewLeaderboardHandler(service service.LeaderboardService) *LeaderboardHandler {
	return &LeaderboardHandler{service: service}
}

func (h *LeaderboardHandler) GetLeaderboard(c *gin.Context) {
	cycleType := c.DefaultQuery("type", "daily")

	var userID *uuid.UUID
	if id, err := response.GetUserID(c); err == nil {
		userID = &id
	}

	view, err := h.service.GetLeaderboard(c.Request.Context(), cycleType, userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	if view == nil {
		// Cold cache: the board is computed on its own schedule, never here.
		c.JSON(http.StatusOK, gin.H{"data": nil, "message": "leaderboard not yet computed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": view})
}
