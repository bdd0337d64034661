// Package email sends operator alert mail over SMTP. Delivery failures in
// the follow-up pipeline are surfaced here; there is no automated resend, a
// human reconciles them.
package email

import (
	"context"
	"fmt"
	"net"
	"time"

	gomail "github.com/wneessen/go-mail"

	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/events"
	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/config"
	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/logger"
)

// AlertSender mails operator alerts through the tenant's SMTP server.
type AlertSender struct {
	host       string
	port       int
	username   string
	password   string
	fromName   string
	fromEmail  string
	operatorTo string
	log        *logger.Logger
}

// NewAlertSender returns nil when alert email is disabled.
func NewAlertSender(cfg config.EmailConfig, log *logger.Logger) *AlertSender {
	if !cfg.IsEmailEnabled() || cfg.GetOperatorAlertEmail() == "" {
		return nil
	}
	return &AlertSender{
		host:       cfg.GetSMTPHost(),
		port:       cfg.GetSMTPPort(),
		username:   cfg.GetSMTPUsername(),
		password:   cfg.GetSMTPPassword(),
		fromName:   cfg.GetEmailFromName(),
		fromEmail:  cfg.GetEmailFromAddress(),
		operatorTo: cfg.GetOperatorAlertEmail(),
		log:        log,
	}
}

// SendDeliveryFailureAlert notifies the operator of a terminally failed
// follow-up send.
func (s *AlertSender) SendDeliveryFailureAlert(ctx context.Context, leadID, sequenceID string, stage int, sendErr string) error {
	if s == nil {
		return nil
	}

	subject := fmt.Sprintf("Follow-up delivery failed (stage %d)", stage)
	body := fmt.Sprintf(
		"A follow-up message could not be delivered.\n\n"+
			"Lead:     %s\nSequence: %s\nStage:    %d\nError:    %s\n\n"+
			"The sequence entry is marked failed and will not be retried automatically.\n",
		leadID, sequenceID, stage, sendErr,
	)
	return s.send(ctx, subject, body)
}

func (s *AlertSender) send(ctx context.Context, subject, body string) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(s.operatorTo); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// SubscribeToDeliveryFailures wires the alert sender to the event bus.
// A nil sender subscribes nothing.
func (s *AlertSender) SubscribeToDeliveryFailures(bus events.Bus) {
	if s == nil || bus == nil {
		return
	}
	bus.Subscribe(events.FollowUpDeliveryFailed{}.EventName(), events.HandlerFunc(func(ctx context.Context, e events.Event) error {
		failed, ok := e.(events.FollowUpDeliveryFailed)
		if !ok {
			return nil
		}
		if err := s.SendDeliveryFailureAlert(ctx, failed.LeadID.String(), failed.SequenceID.String(), failed.Stage, failed.Error); err != nil {
			s.log.Warn("operator alert email failed", "error", err.Error())
		}
		return nil
	}))
}
