package apirouter

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wayposthq/waypost/internal/dispatch"
	"github.com/wayposthq/waypost/internal/engine"
	"github.com/wayposthq/waypost/internal/logging"
	"github.com/wayposthq/waypost/internal/scheduler"
	"go.uber.org/zap"
)

type PublishHandlers struct {
	logger *logging.Logger
	engine *engine.Engine
}

func NewPublishHandlers(logger *logging.Logger, eng *engine.Engine) *PublishHandlers {
	return &PublishHandlers{
		logger: logger,
		engine: eng,
	}
}

type publishRequest struct {
	Type string          `json:"type" binding:"required"`
	Data json.RawMessage `json:"data" binding:"required"`
}

// Publish handles POST /publish. The event fans out to every matching
// endpoint before the 202 is written, so the response lists the created
// deliveries.
func (h *PublishHandlers) Publish(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithValidationError(c, err)
		return
	}

	result, err := h.engine.Dispatch(c.Request.Context(), req.Type, req.Data)
	if err != nil {
		switch {
		case errors.Is(err, scheduler.ErrOverloaded):
			// Fanout may have committed some deliveries before the queue
			// filled; hand them back so the caller can reconcile.
			resp := ErrorResponse{
				Code:    http.StatusTooManyRequests,
				Message: "delivery queue is full",
				Err:     err,
			}
			if result != nil {
				resp.Data = result
			}
			AbortWithError(c, http.StatusTooManyRequests, resp)
		case errors.Is(err, dispatch.ErrUnknownEventType), errors.Is(err, dispatch.ErrRequiredEventType):
			AbortWithError(c, http.StatusUnprocessableEntity, NewErrValidation(err))
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

	h.logger.Ctx(c.Request.Context()).Audit("event published",
		zap.String("event_id", result.EventID),
		zap.String("event_type", req.Type),
		zap.Int("deliveries", len(result.Deliveries)))

	c.JSON(http.StatusAccepted, result)
}
