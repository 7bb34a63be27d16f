package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// RegisterRoutes configures all API routes, middleware, and error handlers
func RegisterRoutes(e *echo.Echo, h *Handlers, cfg ServerConfig) {
	// Central error handler: maps engine sentinels to status codes and
	// keeps every error response JSON
	e.HTTPErrorHandler = ErrorHandler(cfg.DevMode)

	// Apply global middleware
	e.Use(SetJSONContentType) // Ensure all responses are JSON
	e.Use(SetNoCacheHeaders)  // Prevent caching of API responses

	// Optional API key authentication
	if cfg.APIKey != "" {
		e.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			KeyLookup: "header:X-API-Key",
			Validator: func(key string, c echo.Context) (bool, error) {
				return key == cfg.APIKey, nil
			},
		}))
	}

	api := e.Group("/api")
	api.GET("/health", h.Health)              // Health check endpoint
	api.GET("/solver-pubkey", h.SolverKey)    // Solver encryption key discovery
	api.GET("/tiers", h.TierTable)            // Loaded tier table
	api.GET("/fee/:score", h.Fee)             // Fee resolution for a score
	api.GET("/stats", h.Stats)                // Settlement aggregates
	api.GET("/orders", h.Orders)              // Public order listing
	api.GET("/orders/:owner/:id", h.Order)    // Single order lookup
	api.GET("/fills/recent", h.RecentFills)   // Recent settled fills
	api.GET("/quote", h.Quote)                // Route price preview

	// Registry writes are rate limited to blunt key-churn spam
	regGroup := api.Group("/registry")
	regGroup.GET("", h.RegistryList)
	regGroup.GET("/:identity", h.RegistryLookup)
	regGroup.POST("", h.RegistryRegister, middleware.RateLimiter(
		middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(1), // 1 registration per second per IP
			Burst:     5,
			ExpiresIn: 2 * time.Minute,
		})))

	// Catch-all route for 404 responses
	e.RouteNotFound("/*", func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found", Code: http.StatusNotFound})
	})
}
