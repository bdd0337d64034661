package http

import (
	"context"

	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/events"
	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/config"
	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/logger"
)

// RouterConfig is the slice of configuration the router needs.
type RouterConfig interface {
	config.HTTPConfig
	config.JWTConfig
}

// HealthChecker answers readiness probes, typically with a database ping.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// App is the assembled application handed from the composition root to the
// router. Main builds it; the router only reads it.
type App struct {
	Config   RouterConfig
	Logger   *logger.Logger
	Health   HealthChecker
	EventBus events.Bus
	// Modules are the HTTP-facing bounded contexts, registered in order.
	Modules []Module
}
