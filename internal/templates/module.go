// Package templates provides the template bounded context: selection
// strategies, personalization, and the approval lifecycle against the
// external template authority.
package templates

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/events"
	apphttp "github.com/ebenpjw/realestate-bot-backend-sub008/internal/http"
	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/templates/approval"
	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/templates/handler"
	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/templates/repository"
	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/templates/selector"
	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/config"
	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/logger"
	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/validator"
)

// Module is the templates bounded context.
type Module struct {
	handler  *handler.Handler
	Selector *selector.Selector
	Manager  *approval.Manager
	Guard    *approval.RunGuard
}

// NewModule wires the templates module. authority and media may be nil when
// the external services are not configured; the manager then only serves
// reads and sync.
func NewModule(
	pool *pgxpool.Pool,
	cfg config.ApprovalConfig,
	val *validator.Validator,
	bus events.Bus,
	log *logger.Logger,
	authority approval.Authority,
	media approval.MediaStore,
	rdb redis.UniversalClient,
	enqueuer handler.ApprovalCheckEnqueuer,
) *Module {
	repo := repository.New(pool)
	sel := selector.New(repo, selector.NewWeightedRandom(nil), log)
	manager := approval.NewManager(repo, authority, media, bus, log, cfg.GetTemplateLanguage())
	guard := approval.NewRunGuard(rdb, cfg.GetApprovalLeaseTTL())
	h := handler.New(manager, repo, enqueuer, val)

	return &Module{
		handler:  h,
		Selector: sel,
		Manager:  manager,
		Guard:    guard,
	}
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "templates"
}

// RegisterRoutes registers the module's routes under /api/v1/templates
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	templates := ctx.Protected.Group("/templates")
	m.handler.RegisterRoutes(templates)
}

var _ apphttp.Module = (*Module)(nil)
