package http

import (
	"errors"
	"net/http"
	"strconv"

	"anoa.com/playquestrewards/internal/modules/prizepool/dto"
	"anoa.com/playquestrewards/internal/modules/prizepool/service"
	"anoa.com/playquestrewards/pkg/response"
	"anoa.com/playquestrewards/pkg/validator"
	"github.com/gin-gonic/gin"
)

type PrizepoolHandler struct {
	increments service.IncrementService
	conclusion service.ConclusionService
	pools      service.PoolQueryService
}

func NewPrizepoolHandler(increments service.IncrementService, conclusion service.ConclusionService, pools service.PoolQueryService) *PrizepoolHandler {
	return &PrizepoolHandler{
		increments: increments,
		conclusion: conclusion,
		pools:      pools,
	}
}

func (h *PrizepoolHandler) GetCurrentPool(c *gin.Context) {
	summary, err := h.pools.CurrentPool(c.Request.Context())
	if err != nil {
		if errors.Is(err, service.ErrNoActivePrizepool) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (h *PrizepoolHandler) RecordAdView(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var input dto.RecordAdViewInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	log, err := h.increments.RecordAdView(c.Request.Context(), userID, input.SourceID, input.Kind)
	if err != nil {
		if errors.Is(err, service.ErrNoActivePrizepool) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": log})
}

func (h *PrizepoolHandler) RecordPurchase(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var input dto.RecordPurchaseInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	log, err := h.increments.RecordPurchase(c.Request.Context(), userID, input.SourceID)
	if err != nil {
		if errors.Is(err, service.ErrNoActivePrizepool) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": log})
}

// Conclude lets an operator trigger the conclusion cycle manually, outside
// the cron schedule.
func (h *PrizepoolHandler) Conclude(c *gin.Context) {
	ran, err := h.conclusion.ConcludeDue(c.Request.Context())
	if err != nil {
		if errors.Is(err, service.ErrNoActivePrizepool) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "concluded": false})
			return
		}
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"concluded": ran})
}

// ReverseIncrement soft-deletes an increment log row (admin only).
func (h *PrizepoolHandler) ReverseIncrement(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid increment id"})
		return
	}

	if err := h.increments.Reverse(c.Request.Context(), uint(id)); err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "increment reversed"})
}
