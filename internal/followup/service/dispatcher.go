package service

import (
	"context"
	"strings"
	"time"

	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/followup/repository"
	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/templates/selector"
	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/whatsapp"
	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/logger"
)

// Gateway is the outbound messaging surface the dispatcher needs.
type Gateway interface {
	SendTemplateMessage(ctx context.Context, phone, templateName, language string, params []string) whatsapp.SendResult
	SendFreeform(ctx context.Context, phone, message string) whatsapp.SendResult
}

// Dispatcher routes a selected template to the lead over the right channel.
// Inside the freeform window it sends rendered text; outside it must use an
// approved template, since the gateway rejects freeform there.
type Dispatcher struct {
	gateway        Gateway
	freeformWindow time.Duration
	language       string
	log            *logger.Logger
}

func NewDispatcher(gateway Gateway, freeformWindow time.Duration, language string, log *logger.Logger) *Dispatcher {
	if freeformWindow <= 0 {
		freeformWindow = 24 * time.Hour
	}
	if language == "" {
		language = "en"
	}
	return &Dispatcher{
		gateway:        gateway,
		freeformWindow: freeformWindow,
		language:       language,
		log:            log,
	}
}

// Dispatch sends the selection to the lead and reports the channel used.
func (d *Dispatcher) Dispatch(ctx context.Context, lead repository.Lead, sel selector.Selection) (whatsapp.SendResult, string) {
	params := buildParams(lead)

	if d.withinFreeformWindow(lead) || sel.Template == nil {
		// System-default fallbacks have no approved counterpart at the
		// gateway, so they always go out as text.
		text := renderContent(sel.Content, lead, params)
		return d.gateway.SendFreeform(ctx, lead.Phone, text), "freeform"
	}

	return d.gateway.SendTemplateMessage(ctx, lead.Phone, sel.TemplateName, d.language, params), "template"
}

func (d *Dispatcher) withinFreeformWindow(lead repository.Lead) bool {
	return lead.LastInboundAt != nil && time.Since(*lead.LastInboundAt) < d.freeformWindow
}

// buildParams produces the positional parameters approved templates expect:
// {{1}} first name, {{2}} the lead's preferred location or a neutral filler.
func buildParams(lead repository.Lead) []string {
	first := lead.FullName
	if parts := strings.Fields(lead.FullName); len(parts) > 0 {
		first = parts[0]
	}

	project := "the project"
	if lead.LocationPreference != nil && *lead.LocationPreference != "" {
		project = *lead.LocationPreference
	}
	return []string{first, project}
}

// renderContent fills both positional and named tokens so any template body
// can be sent as freeform text.
func renderContent(content string, lead repository.Lead, params []string) string {
	attrs := map[string]string{"name": lead.FullName}
	if lead.Budget != nil {
		attrs["budget"] = *lead.Budget
	}
	if lead.LocationPreference != nil {
		attrs["location"] = *lead.LocationPreference
	}
	if lead.PropertyType != nil {
		attrs["property_type"] = *lead.PropertyType
	}
	if lead.Timeline != nil {
		attrs["timeline"] = *lead.Timeline
	}

	out := selector.Personalize(content, attrs, nil)
	return selector.RenderPositional(out, params)
}
