package apirouter

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/wayposthq/waypost/internal/attempt"
	"github.com/wayposthq/waypost/internal/engine"
	"github.com/wayposthq/waypost/internal/logging"
	"github.com/wayposthq/waypost/internal/models"
	"github.com/wayposthq/waypost/internal/scheduler"
	"github.com/wayposthq/waypost/internal/store/driver"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

type DeliveryHandlers struct {
	logger *logging.Logger
	engine *engine.Engine
	store  driver.Store
}

func NewDeliveryHandlers(logger *logging.Logger, eng *engine.Engine) *DeliveryHandlers {
	return &DeliveryHandlers{
		logger: logger,
		engine: eng,
		store:  eng.Store(),
	}
}

// parseLimit parses the limit query parameter with a default and maximum value.
// If the provided limit exceeds maxLimit, it is capped at maxLimit.
func parseLimit(c *gin.Context, defaultLimit, maxLimit int) int {
	limit := defaultLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit
}

func parseOffset(c *gin.Context) int {
	if offsetStr := c.Query("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o > 0 {
			return o
		}
	}
	return 0
}

// listDeliveriesResponse is one page of deliveries. Count is the total number
// of matches before paging.
type listDeliveriesResponse struct {
	Data  []models.Delivery `json:"data"`
	Count int               `json:"count"`
}

// List handles GET /deliveries?endpoint_id=&status=&limit=&offset=.
func (h *DeliveryHandlers) List(c *gin.Context) {
	req := driver.ListDeliveriesRequest{
		EndpointID: c.Query("endpoint_id"),
		Limit:      parseLimit(c, defaultListLimit, maxListLimit),
		Offset:     parseOffset(c),
	}

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.DeliveryStatus(statusStr)
		if !status.Valid() {
			AbortWithError(c, http.StatusUnprocessableEntity, NewErrValidation(
				fmt.Errorf("invalid status %q", statusStr)))
			return
		}
		req.Status = status
	}

	resp, err := h.store.ListDeliveries(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, NewErrInternalServer(err))
		return
	}

	c.JSON(http.StatusOK, listDeliveriesResponse{
		Data:  resp.Data,
		Count: resp.Count,
	})
}

// Retrieve handles GET /deliveries/:deliveryID.
func (h *DeliveryHandlers) Retrieve(c *gin.Context) {
	delivery, err := h.store.RetrieveDelivery(c.Request.Context(), c.Param("deliveryID"))
	if err != nil {
		if errors.Is(err, driver.ErrDeliveryNotFound) {
			AbortWithError(c, http.StatusNotFound, NewErrNotFound("delivery"))
			return
		}
		AbortWithError(c, http.StatusInternalServerError, NewErrInternalServer(err))
		return
	}

	c.JSON(http.StatusOK, delivery)
}

// Retry handles POST /deliveries/:deliveryID/retry. A delivered delivery is
// not retried; the response reports which way it went.
func (h *DeliveryHandlers) Retry(c *gin.Context) {
	deliveryID := c.Param("deliveryID")

	retried, err := h.engine.RetryDelivery(c.Request.Context(), deliveryID)
	if err != nil {
		switch {
		case errors.Is(err, driver.ErrDeliveryNotFound):
			AbortWithError(c, http.StatusNotFound, NewErrNotFound("delivery"))
		case errors.Is(err, attempt.ErrAttemptInFlight):
			AbortWithError(c, http.StatusConflict, ErrorResponse{
				Code:    http.StatusConflict,
				Message: "an attempt for this delivery is already in flight",
				Err:     err,
			})
		case errors.Is(err, scheduler.ErrOverloaded):
			AbortWithError(c, http.StatusTooManyRequests, ErrorResponse{
				Code:    http.StatusTooManyRequests,
				Message: "delivery queue is full",
				Err:     err,
			})
		case errors.Is(err, engine.ErrEngineStopped):
			AbortWithError(c, http.StatusServiceUnavailable, ErrorResponse{
				Code:    http.StatusServiceUnavailable,
				Message: "service is shutting down",
				Err:     err,
			})
		default:
			AbortWithError(c, http.StatusInternalServerError, NewErrInternalServer(err))
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"retried": retried,
	})
}
