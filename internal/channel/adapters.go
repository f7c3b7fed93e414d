package channel

import (
	"context"
	"time"

	awsclient "ar-ledger/internal/common/aws"
	apperrors "ar-ledger/internal/common/errors"
	apphttp "ar-ledger/internal/common/http"
	"ar-ledger/internal/models"
)

// ==========================
// Webhook (chat bridge)
// ==========================

type webhookMessage struct {
	Channel string `json:"channel"`
	To      string `json:"to"`
	Text    string `json:"text"`
}

type webhookReceipt struct {
	ID string `json:"id"`
}

// Webhook posts messages as JSON to a chat bridge.
type Webhook struct {
	client *apphttp.Client
	url    string
}

func NewWebhook(url, token string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := apphttp.NewClient(timeout)
	if token != "" {
		client = client.WithHeader("Authorization", "Bearer "+token)
	}
	return &Webhook{client: client, url: url}
}

func (w *Webhook) Send(ctx context.Context, addr models.Address, text string) (string, error) {
	var receipt webhookReceipt
	err := w.client.PostJSON(ctx, w.url, webhookMessage{Channel: addr.Channel, To: addr.Value, Text: text}, &receipt)
	if err != nil {
		return "", apperrors.NewNotificationSendFailedError("webhook", err)
	}
	return receipt.ID, nil
}

// ==========================
// SES (e-mail)
// ==========================

type Email struct {
	client  *awsclient.SESClient
	from    string
	subject string
}

func NewEmail(client *awsclient.SESClient, from, subject string) *Email {
	if subject == "" {
		subject = "Payment reminder"
	}
	return &Email{client: client, from: from, subject: subject}
}

func (e *Email) Send(ctx context.Context, addr models.Address, text string) (string, error) {
	id, err := e.client.SendText(ctx, e.from, addr.Value, e.subject, text)
	if err != nil {
		return "", apperrors.NewNotificationSendFailedError("ses", err)
	}
	return id, nil
}

// ==========================
// SNS (SMS or topic)
// ==========================

type SMS struct {
	client   *awsclient.SNSClient
	senderID string
}

func NewSMS(client *awsclient.SNSClient, senderID string) *SMS {
	return &SMS{client: client, senderID: senderID}
}

// Send routes to a topic for ARN addresses and to a phone number otherwise.
func (s *SMS) Send(ctx context.Context, addr models.Address, text string) (string, error) {
	id, err := s.client.PublishText(ctx, addr.Value, text, s.senderID)
	if err != nil {
		return "", apperrors.NewNotificationSendFailedError("sns", err)
	}
	return id, nil
}
