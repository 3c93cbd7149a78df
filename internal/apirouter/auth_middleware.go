package apirouter

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

var (
	ErrMissingAuthHeader  = errors.New("missing authorization header")
	ErrInvalidBearerToken = errors.New("invalid bearer token format")
)

const (
	// Context keys
	authRoleKey = "authRole"

	// Role values
	RoleAdmin = "admin"
)

// APIKeyAuthMiddleware authenticates requests with a bearer API key.
//
// Flow:
//  1. VPC mode (apiKey=""): grant admin, done.
//  2. Validate auth header → 401 if missing/malformed.
//  3. token == apiKey → admin, done. Anything else → 401.
func APIKeyAuthMiddleware(apiKey string) gin.HandlerFunc {
	// VPC mode: no API key configured, everything is admin.
	if apiKey == "" {
		return func(c *gin.Context) {
			c.Set(authRoleKey, RoleAdmin)
			c.Next()
		}
	}

	return func(c *gin.Context) {
		token, err := validateAuthHeader(c)
		if err != nil {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		if token != apiKey {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		c.Set(authRoleKey, RoleAdmin)
		c.Next()
	}
}

// validateAuthHeader checks the Authorization header and returns the token if valid
func validateAuthHeader(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", ErrMissingAuthHeader
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return "", ErrInvalidBearerToken
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == "" {
		return "", ErrInvalidBearerToken
	}
	return token, nil
}
