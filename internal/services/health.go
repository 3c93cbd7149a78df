package services

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wayposthq/waypost/internal/worker"
)

// HealthHandler reports the supervisor's worker health: 200 while every
// worker is healthy, 503 once any worker has failed.
func HealthHandler(supervisor *worker.Supervisor) gin.HandlerFunc {
	return func(c *gin.Context) {
		tracker := supervisor.GetHealthTracker()
		status := tracker.GetStatus()
		if tracker.IsHealthy() {
			c.JSON(http.StatusOK, status)
		} else {
			c.JSON(http.StatusServiceUnavailable, status)
		}
	}
}
