// Package followup provides the follow-up sequencing bounded context: chain
// creation after conversation classification, cancellation on lead activity,
// and staged delivery of due entries.
package followup

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/events"
	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/followup/handler"
	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/followup/repository"
	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/followup/service"
	apphttp "github.com/ebenpjw/realestate-bot-backend-sub008/internal/http"
	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/config"
	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/logger"
	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/validator"
)

// Module is the follow-up bounded context.
type Module struct {
	handler *handler.Handler
	Service *service.Service
}

// Config carries the sequencer settings the module needs.
type Config interface {
	config.FollowUpConfig
	config.WhatsAppConfig
}

// NewModule wires the follow-up module. The classifier, consent gate,
// template source, and gateway are owned by their own modules and injected
// here.
func NewModule(
	pool *pgxpool.Pool,
	cfg Config,
	val *validator.Validator,
	bus events.Bus,
	log *logger.Logger,
	gateway service.Gateway,
	stateClassifier service.StateClassifier,
	consentGate service.ConsentGate,
	templates service.TemplateSource,
	templateLanguage string,
) *Module {
	repo := repository.New(pool)
	dispatcher := service.NewDispatcher(gateway, cfg.GetFreeformWindow(), templateLanguage, log)
	svc := service.NewService(
		repo,
		stateClassifier,
		consentGate,
		templates,
		dispatcher,
		bus,
		log,
		cfg.GetStageDelays(),
		cfg.GetMaxStages(),
		cfg.GetProcessWorkers(),
	)
	h := handler.New(svc, val)

	return &Module{handler: h, Service: svc}
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "followup"
}

// RegisterRoutes registers the module's routes under /api/v1/followups
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	followups := ctx.Protected.Group("/followups")
	m.handler.RegisterRoutes(followups, ctx.IngestLimiter.RateLimit())
}

var _ apphttp.Module = (*Module)(nil)
