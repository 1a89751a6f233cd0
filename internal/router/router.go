// Package router defines how HTTP routes are registered for the API.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/campus-food-rescue/internal/config"
	"github.com/iliyamo/campus-food-rescue/internal/handler"
	"github.com/iliyamo/campus-food-rescue/internal/middleware"
)

// Handlers bundles every handler the router mounts.  Auth may be nil in
// prod, in which case the dev token endpoint is simply not registered.
type Handlers struct {
	Listings *handler.ListingHandler
	Claims   *handler.ClaimHandler
	Stats    *handler.StatsHandler
	Stream   *handler.StreamHandler
	Auth     *handler.AuthHandler
}

// RegisterRoutes mounts the full HTTP surface on the provided Echo
// instance.  Public reads need no token; mutating routes require a JWT
// and the matching role, and are rate limited.  The Redis client may be
// nil, which turns the cache and rate limit middleware into pass-throughs.
func RegisterRoutes(e *echo.Echo, h Handlers, jwtSecret string, rdb *redis.Client) {
	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
	cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)

	// Health check for load balancers and monitoring.
	e.GET("/healthz", handler.Health)

	// Public browse endpoints.  Guests can watch the feed without a token.
	e.GET("/v1/listings", h.Listings.List, cache)
	e.GET("/v1/listings/:id", h.Listings.Get)
	e.GET("/v1/stats", h.Stats.Get, cache)
	e.GET("/v1/events", h.Stream.Events)

	// Dev-only token minting; never mounted in prod.
	if h.Auth != nil {
		e.POST("/v1/auth/token", h.Auth.DevToken)
	}

	// Staff endpoints: publish and edit listings, fulfill claims at pickup.
	staff := e.Group("/v1")
	staff.Use(middleware.JWTAuth(jwtSecret))
	staff.Use(middleware.RequireRole(middleware.RoleStaff))
	staff.Use(limiter)
	staff.POST("/listings", h.Listings.Publish)
	staff.PUT("/listings/:id", h.Listings.Update)
	staff.POST("/claims/:id/fulfill", h.Claims.Fulfill)

	// Student endpoints: claim listings, view and cancel own claims.
	student := e.Group("/v1")
	student.Use(middleware.JWTAuth(jwtSecret))
	student.Use(middleware.RequireRole(middleware.RoleStudent))
	student.Use(limiter)
	student.POST("/listings/:id/claim", h.Claims.Claim)
	student.GET("/claims", h.Claims.MyClaims)
	student.POST("/claims/:id/cancel", h.Claims.Cancel)
}
