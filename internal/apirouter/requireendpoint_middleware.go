package apirouter

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wayposthq/waypost/internal/models"
	"github.com/wayposthq/waypost/internal/store/driver"
)

// EndpointRetriever is satisfied by driver.Store. Defined here to avoid
// coupling the middleware to the full store interface.
type EndpointRetriever interface {
	RetrieveEndpoint(ctx context.Context, endpointID string) (*models.Endpoint, error)
}

// RequireEndpointMiddleware resolves the :endpointID path param and sets the
// endpoint in the request context. Unknown ids abort with 404.
func RequireEndpointMiddleware(endpointRetriever EndpointRetriever) gin.HandlerFunc {
	return func(c *gin.Context) {
		endpointID := c.Param("endpointID")
		if endpointID == "" {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}

		endpoint, err := endpointRetriever.RetrieveEndpoint(c.Request.Context(), endpointID)
		if err != nil {
			if errors.Is(err, driver.ErrEndpointNotFound) {
				AbortWithError(c, http.StatusNotFound, NewErrNotFound("endpoint"))
				return
			}
			AbortWithError(c, http.StatusInternalServerError, NewErrInternalServer(err))
			return
		}
		c.Set("endpoint", endpoint)
		c.Next()
	}
}

func mustEndpointFromContext(c *gin.Context) *models.Endpoint {
	endpoint, ok := c.Get("endpoint")
	if !ok {
		panic("mustEndpointFromContext: endpoint not found in context - route is likely missing RequireEndpointMiddleware")
	}
	return endpoint.(*models.Endpoint)
}
