// Package http wires the HTTP server: each bounded context registers its own
// routes through the Module interface so the router stays free of endpoint
// knowledge.
package http

import (
	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/config"
	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// Module is a bounded context with HTTP routes.
type Module interface {
	// Name identifies the module in logs.
	Name() string
	// RegisterRoutes mounts the module's routes using the shared groups and
	// middleware in the RouterContext.
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext bundles the shared route groups and middleware handed to each
// module during registration.
type RouterContext struct {
	// Engine is the root gin engine for modules needing engine level access.
	Engine *gin.Engine
	// V1 is the /api/v1 group.
	V1 *gin.RouterGroup
	// Protected is the authenticated group under /api/v1.
	Protected *gin.RouterGroup
	// Admin is the admin-only group under /api/v1/admin.
	Admin *gin.RouterGroup
	// Config exposes the JWT settings for modules building their own
	// auth middleware.
	Config config.JWTConfig
	// AuthMiddleware is the shared token validation middleware.
	AuthMiddleware gin.HandlerFunc
	// IngestLimiter throttles the conversation ingest endpoints per IP.
	IngestLimiter *httpkit.IPRateLimiter
}
