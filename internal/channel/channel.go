// Package channel delivers rendered alert text to an address. Every adapter
// sits behind the single Channel interface; the delivery loop treats any
// adapter error as a retryable failure.
package channel

import (
	"context"
	"fmt"
	"time"

	awsclient "ar-ledger/internal/common/aws"
	"ar-ledger/internal/common/config"
	apperrors "ar-ledger/internal/common/errors"
	"ar-ledger/internal/models"
)

// Channel sends text to addr and returns the provider's receipt id.
type Channel interface {
	Send(ctx context.Context, addr models.Address, text string) (string, error)
}

// Func adapts a function to Channel.
type Func func(ctx context.Context, addr models.Address, text string) (string, error)

func (f Func) Send(ctx context.Context, addr models.Address, text string) (string, error) {
	return f(ctx, addr, text)
}

// Router picks an adapter by the address's channel name, falling back to a
// default adapter for names it does not know.
type Router struct {
	routes   map[string]Channel
	fallback Channel
}

func NewRouter(fallback Channel) *Router {
	return &Router{routes: make(map[string]Channel), fallback: fallback}
}

// Route sends addresses whose Channel equals name through ch.
func (r *Router) Route(name string, ch Channel) *Router {
	r.routes[name] = ch
	return r
}

func (r *Router) Send(ctx context.Context, addr models.Address, text string) (string, error) {
	ch, ok := r.routes[addr.Channel]
	if !ok {
		ch = r.fallback
	}
	if ch == nil {
		return "", apperrors.NewNotificationSendFailedError(addr.Channel, fmt.Errorf("no adapter for channel %q", addr.Channel))
	}
	return ch.Send(ctx, addr, text)
}

// New builds the adapter named by cfg.Channel as the default route. When an
// AWS region is configured, "email" and "sms" addresses also route to SES and
// SNS.
func New(ctx context.Context, cfg config.NotificationConfig) (Channel, error) {
	var (
		sesAdapter *Email
		snsAdapter *SMS
	)
	if cfg.AWS.Region != "" {
		sesClient, err := awsclient.NewSESClient(ctx, cfg.AWS.Region)
		if err != nil {
			return nil, fmt.Errorf("ses client: %w", err)
		}
		snsClient, err := awsclient.NewSNSClient(ctx, cfg.AWS.Region)
		if err != nil {
			return nil, fmt.Errorf("sns client: %w", err)
		}
		sesAdapter = NewEmail(sesClient, cfg.AWS.SES.FromEmail, cfg.AWS.SES.Subject)
		snsAdapter = NewSMS(snsClient, cfg.AWS.SNS.SenderID)
	}

	var fallback Channel
	switch cfg.Channel {
	case "webhook":
		if cfg.Webhook.URL == "" {
			return nil, fmt.Errorf("notifications.webhook.url is required")
		}
		fallback = NewWebhook(cfg.Webhook.URL, cfg.Webhook.Token, time.Duration(cfg.Webhook.Timeout)*time.Millisecond)
	case "ses":
		if sesAdapter == nil {
			return nil, fmt.Errorf("notifications.aws.region is required for ses")
		}
		fallback = sesAdapter
	case "sns":
		if snsAdapter == nil {
			return nil, fmt.Errorf("notifications.aws.region is required for sns")
		}
		fallback = snsAdapter
	default:
		return nil, fmt.Errorf("unknown notification channel %q", cfg.Channel)
	}

	router := NewRouter(fallback)
	if sesAdapter != nil && cfg.AWS.SES.FromEmail != "" {
		router.Route("email", sesAdapter)
	}
	if snsAdapter != nil {
		router.Route("sms", snsAdapter)
	}
	return router, nil
}
