// Package apirouter exposes the admin surface over HTTP: endpoint CRUD,
// event publishing, delivery reads, and manual retries. Every route under
// /api/v1 is admin-scoped behind the API key.
package apirouter

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/wayposthq/waypost/internal/engine"
	"github.com/wayposthq/waypost/internal/logging"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type RouteDefinition struct {
	Method      string
	Path        string
	Handler     gin.HandlerFunc
	Middlewares []gin.HandlerFunc
}

type RouterConfig struct {
	ServiceName       string
	APIKey            string
	GinMode           string
	EventTypes        []string
	AllowInsecureHTTP bool
	// HealthHandler overrides the default static health response, typically
	// with the worker supervisor's health report.
	HealthHandler gin.HandlerFunc
}

// registerRoutes registers routes to the given router group, applying each
// route's middlewares before its handler.
func registerRoutes(router *gin.RouterGroup, routes []RouteDefinition) {
	for _, route := range routes {
		handlers := make([]gin.HandlerFunc, 0, len(route.Middlewares)+1)
		handlers = append(handlers, route.Middlewares...)
		handlers = append(handlers, route.Handler)
		router.Handle(route.Method, route.Path, handlers...)
	}
}

func NewRouter(
	cfg RouterConfig,
	logger *logging.Logger,
	eng *engine.Engine,
) http.Handler {
	// Only set mode from config if we're not in test mode
	if gin.Mode() != gin.TestMode {
		gin.SetMode(cfg.GinMode)
	}

	r := gin.New()
	// Core middlewares
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(LoggerMiddleware(logger))

	// Application logic
	r.Use(ErrorHandlerMiddleware())

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	}

	healthHandler := cfg.HealthHandler
	if healthHandler == nil {
		healthHandler = func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		}
	}
	r.GET("/healthz", healthHandler)

	store := eng.Store()

	apiRouter := r.Group("/api/v1")
	apiRouter.Use(APIKeyAuthMiddleware(cfg.APIKey))

	endpointHandlers := NewEndpointHandlers(logger, eng, cfg.EventTypes, cfg.AllowInsecureHTTP)
	publishHandlers := NewPublishHandlers(logger, eng)
	deliveryHandlers := NewDeliveryHandlers(logger, eng)

	routes := []RouteDefinition{
		{
			Method:  http.MethodPost,
			Path:    "/publish",
			Handler: publishHandlers.Publish,
		},

		// Endpoint routes
		{
			Method:  http.MethodPost,
			Path:    "/endpoints",
			Handler: endpointHandlers.Create,
		},
		{
			Method:  http.MethodGet,
			Path:    "/endpoints",
			Handler: endpointHandlers.List,
		},
		{
			Method:  http.MethodGet,
			Path:    "/endpoints/:endpointID",
			Handler: endpointHandlers.Retrieve,
			Middlewares: []gin.HandlerFunc{
				RequireEndpointMiddleware(store),
			},
		},
		{
			Method:  http.MethodPatch,
			Path:    "/endpoints/:endpointID",
			Handler: endpointHandlers.Update,
			Middlewares: []gin.HandlerFunc{
				RequireEndpointMiddleware(store),
			},
		},
		{
			Method:  http.MethodDelete,
			Path:    "/endpoints/:endpointID",
			Handler: endpointHandlers.Delete,
			Middlewares: []gin.HandlerFunc{
				RequireEndpointMiddleware(store),
			},
		},
		{
			Method:  http.MethodPut,
			Path:    "/endpoints/:endpointID/enable",
			Handler: endpointHandlers.Enable,
			Middlewares: []gin.HandlerFunc{
				RequireEndpointMiddleware(store),
			},
		},
		{
			Method:  http.MethodPut,
			Path:    "/endpoints/:endpointID/disable",
			Handler: endpointHandlers.Disable,
			Middlewares: []gin.HandlerFunc{
				RequireEndpointMiddleware(store),
			},
		},
		{
			Method:  http.MethodPut,
			Path:    "/endpoints/:endpointID/rotate-secret",
			Handler: endpointHandlers.RotateSecret,
			Middlewares: []gin.HandlerFunc{
				RequireEndpointMiddleware(store),
			},
		},
		{
			Method:  http.MethodGet,
			Path:    "/endpoints/:endpointID/stats",
			Handler: endpointHandlers.Stats,
			Middlewares: []gin.HandlerFunc{
				RequireEndpointMiddleware(store),
			},
		},

		// Delivery routes
		{
			Method:  http.MethodGet,
			Path:    "/deliveries",
			Handler: deliveryHandlers.List,
		},
		{
			Method:  http.MethodGet,
			Path:    "/deliveries/:deliveryID",
			Handler: deliveryHandlers.Retrieve,
		},
		{
			Method:  http.MethodPost,
			Path:    "/deliveries/:deliveryID/retry",
			Handler: deliveryHandlers.Retry,
		},
	}

	registerRoutes(apiRouter, routes)

	// Register dev routes
	if gin.Mode() == gin.DebugMode {
		registerDevRoutes(apiRouter)
	}

	return r
}

func registerDevRoutes(apiRouter *gin.RouterGroup) {
	apiRouter.GET("/dev/err/panic", func(c *gin.Context) {
		panic("test panic error")
	})

	apiRouter.GET("/dev/err/internal", func(c *gin.Context) {
		AbortWithError(c, http.StatusInternalServerError, NewErrInternalServer(errors.New("test internal error")))
	})
}
