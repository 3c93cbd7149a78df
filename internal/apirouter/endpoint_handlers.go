package apirouter

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wayposthq/waypost/internal/engine"
	"github.com/wayposthq/waypost/internal/idgen"
	"github.com/wayposthq/waypost/internal/logging"
	"github.com/wayposthq/waypost/internal/models"
	"github.com/wayposthq/waypost/internal/store/driver"
	"go.uber.org/zap"
)

type EndpointHandlers struct {
	logger            *logging.Logger
	engine            *engine.Engine
	store             driver.Store
	eventTypes        []string
	allowInsecureHTTP bool
}

func NewEndpointHandlers(
	logger *logging.Logger,
	eng *engine.Engine,
	eventTypes []string,
	allowInsecureHTTP bool,
) *EndpointHandlers {
	return &EndpointHandlers{
		logger:            logger,
		engine:            eng,
		store:             eng.Store(),
		eventTypes:        eventTypes,
		allowInsecureHTTP: allowInsecureHTTP,
	}
}

// redactEndpoint strips the signing secret from a read response. The secret
// is only revealed on create and rotate.
func redactEndpoint(endpoint *models.Endpoint) *models.Endpoint {
	redacted := endpoint.Clone()
	redacted.Secret = ""
	redacted.PreviousSecret = ""
	return redacted
}

type createEndpointRequest struct {
	URL         string              `json:"url" binding:"required"`
	EventTypes  models.EventTypes   `json:"events" binding:"required,min=1"`
	Headers     models.Headers      `json:"headers"`
	RetryConfig *models.RetryConfig `json:"retry_config"`
	Active      *bool               `json:"active"`
}

// Create handles POST /endpoints. The response is the only read that carries
// the generated signing secret.
func (h *EndpointHandlers) Create(c *gin.Context) {
	var req createEndpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithValidationError(c, err)
		return
	}

	secret, err := models.NewSecret()
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, NewErrInternalServer(err))
		return
	}

	now := time.Now()
	endpoint := models.Endpoint{
		ID:          idgen.Endpoint(),
		URL:         req.URL,
		Secret:      secret,
		EventTypes:  req.EventTypes,
		Headers:     req.Headers,
		RetryConfig: req.RetryConfig,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.Active != nil {
		endpoint.Active = *req.Active
	}

	if err := endpoint.Validate(h.eventTypes, h.allowInsecureHTTP); err != nil {
		AbortWithError(c, http.StatusUnprocessableEntity, NewErrValidation(err))
		return
	}

	if err := h.store.CreateEndpoint(c.Request.Context(), endpoint); err != nil {
		if errors.Is(err, driver.ErrDuplicateEndpoint) {
			AbortWithError(c, http.StatusConflict, ErrorResponse{
				Code:    http.StatusConflict,
				Message: "endpoint already exists",
				Err:     err,
			})
			return
		}
		AbortWithError(c, http.StatusInternalServerError, NewErrInternalServer(err))
		return
	}

	h.logger.Ctx(c.Request.Context()).Audit("endpoint created",
		zap.String("endpoint_id", endpoint.ID),
		zap.String("url", endpoint.URL),
		zap.Strings("events", endpoint.EventTypes))

	c.JSON(http.StatusCreated, endpoint)
}

// List handles GET /endpoints. Secrets are redacted.
func (h *EndpointHandlers) List(c *gin.Context) {
	endpoints, err := h.store.ListEndpoints(c.Request.Context())
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, NewErrInternalServer(err))
		return
	}

	data := make([]models.Endpoint, 0, len(endpoints))
	for i := range endpoints {
		data = append(data, *redactEndpoint(&endpoints[i]))
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  data,
		"count": len(data),
	})
}

// Retrieve handles GET /endpoints/:endpointID. Secrets are redacted.
func (h *EndpointHandlers) Retrieve(c *gin.Context) {
	endpoint := mustEndpointFromContext(c)
	c.JSON(http.StatusOK, redactEndpoint(endpoint))
}

type updateEndpointRequest struct {
	URL         *string             `json:"url"`
	EventTypes  models.EventTypes   `json:"events"`
	Headers     models.Headers      `json:"headers"`
	RetryConfig *models.RetryConfig `json:"retry_config"`
}

// Update handles PATCH /endpoints/:endpointID. Absent fields keep their
// current value; present fields replace it wholesale.
func (h *EndpointHandlers) Update(c *gin.Context) {
	endpoint := mustEndpointFromContext(c)

	var req updateEndpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithValidationError(c, err)
		return
	}

	if req.URL != nil {
		endpoint.URL = *req.URL
	}
	if req.EventTypes != nil {
		endpoint.EventTypes = req.EventTypes
	}
	if req.Headers != nil {
		endpoint.Headers = req.Headers
	}
	if req.RetryConfig != nil {
		endpoint.RetryConfig = req.RetryConfig
	}

	if err := endpoint.Validate(h.eventTypes, h.allowInsecureHTTP); err != nil {
		AbortWithError(c, http.StatusUnprocessableEntity, NewErrValidation(err))
		return
	}

	endpoint.UpdatedAt = time.Now()
	if err := h.store.UpsertEndpoint(c.Request.Context(), *endpoint); err != nil {
		AbortWithError(c, http.StatusInternalServerError, NewErrInternalServer(err))
		return
	}

	h.logger.Ctx(c.Request.Context()).Audit("endpoint updated",
		zap.String("endpoint_id", endpoint.ID),
		zap.String("url", endpoint.URL))

	c.JSON(http.StatusOK, redactEndpoint(endpoint))
}

// Enable handles PUT /endpoints/:endpointID/enable.
func (h *EndpointHandlers) Enable(c *gin.Context) {
	h.setActive(c, true)
}

// Disable handles PUT /endpoints/:endpointID/disable. Disabled endpoints stop
// matching new events; already-created deliveries fail at attempt time.
func (h *EndpointHandlers) Disable(c *gin.Context) {
	h.setActive(c, false)
}

func (h *EndpointHandlers) setActive(c *gin.Context, active bool) {
	endpoint := mustEndpointFromContext(c)

	if endpoint.Active != active {
		endpoint.Active = active
		endpoint.UpdatedAt = time.Now()
		if err := h.store.UpsertEndpoint(c.Request.Context(), *endpoint); err != nil {
			AbortWithError(c, http.StatusInternalServerError, NewErrInternalServer(err))
			return
		}

		action := "endpoint disabled"
		if active {
			action = "endpoint enabled"
		}
		h.logger.Ctx(c.Request.Context()).Audit(action,
			zap.String("endpoint_id", endpoint.ID))
	}

	c.JSON(http.StatusOK, redactEndpoint(endpoint))
}

// RotateSecret handles PUT /endpoints/:endpointID/rotate-secret. The response
// carries the new secret; the previous one keeps verifying until the rotation
// window closes.
func (h *EndpointHandlers) RotateSecret(c *gin.Context) {
	endpoint := mustEndpointFromContext(c)

	if err := endpoint.RotateSecret(time.Now()); err != nil {
		AbortWithError(c, http.StatusInternalServerError, NewErrInternalServer(err))
		return
	}
	endpoint.UpdatedAt = time.Now()

	if err := h.store.UpsertEndpoint(c.Request.Context(), *endpoint); err != nil {
		AbortWithError(c, http.StatusInternalServerError, NewErrInternalServer(err))
		return
	}

	h.logger.Ctx(c.Request.Context()).Audit("endpoint secret rotated",
		zap.String("endpoint_id", endpoint.ID))

	c.JSON(http.StatusOK, endpoint)
}

// Delete handles DELETE /endpoints/:endpointID.
func (h *EndpointHandlers) Delete(c *gin.Context) {
	endpoint := mustEndpointFromContext(c)

	if err := h.store.DeleteEndpoint(c.Request.Context(), endpoint.ID); err != nil {
		if errors.Is(err, driver.ErrEndpointNotFound) {
			AbortWithError(c, http.StatusNotFound, NewErrNotFound("endpoint"))
			return
		}
		AbortWithError(c, http.StatusInternalServerError, NewErrInternalServer(err))
		return
	}

	h.logger.Ctx(c.Request.Context()).Audit("endpoint deleted",
		zap.String("endpoint_id", endpoint.ID),
		zap.String("url", endpoint.URL))

	c.Status(http.StatusNoContent)
}

// Stats handles GET /endpoints/:endpointID/stats.
func (h *EndpointHandlers) Stats(c *gin.Context) {
	endpoint := mustEndpointFromContext(c)

	deliveryStats, err := h.engine.Stats(c.Request.Context(), endpoint.ID)
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, NewErrInternalServer(err))
		return
	}

	c.JSON(http.StatusOK, deliveryStats)
}
