package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"wabridge/internal/constants"
	"wabridge/internal/models"
	"wabridge/internal/privacy"
	"wabridge/internal/tracing"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// WebhookDispatcher delivers inbound-message events to the configured HTTP
// endpoint. Delivery is fire-and-forget: one POST, no retries, failures are
// logged and never surfaced to the message path. With no endpoint
// configured, dispatch is a no-op.
type WebhookDispatcher struct {
	url    string
	secret string
	client *http.Client
	logger *logrus.Logger
}

// NewWebhookDispatcher creates a dispatcher. url may be empty to disable
// delivery; secret is sent as X-Webhook-Secret when non-empty.
func NewWebhookDispatcher(url, secret string, logger *logrus.Logger) *WebhookDispatcher {
	return &WebhookDispatcher{
		url:    url,
		secret: secret,
		client: &http.Client{
			Timeout: time.Duration(constants.DefaultWebhookTimeoutSec) * time.Second,
		},
		logger: logger,
	}
}

// Dispatch sends the event asynchronously. The caller never observes the
// outcome.
func (d *WebhookDispatcher) Dispatch(event *models.WebhookEvent) {
	if d.url == "" {
		return
	}

	go d.deliver(event)
}

func (d *WebhookDispatcher) deliver(event *models.WebhookEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), d.client.Timeout)
	defer cancel()

	ctx, span := tracing.StartSpan(ctx, "webhook.deliver",
		attribute.String("message_id", event.MessageID),
	)
	defer span.End()

	body, err := json.Marshal(event)
	if err != nil {
		d.logger.WithError(err).Error("Failed to encode webhook event")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		d.logger.WithError(err).Error("Failed to build webhook request")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if d.secret != "" {
		req.Header.Set(constants.WebhookSecretHeader, d.secret)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		tracing.RecordError(ctx, err)
		d.logger.WithError(err).WithFields(logrus.Fields{
			"message_id": privacy.MaskMessageID(event.MessageID),
			"from":       privacy.MaskPhoneNumber(event.From),
		}).Warn("Webhook delivery failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("webhook returned status %d", resp.StatusCode)
		tracing.RecordError(ctx, err)
		d.logger.WithFields(logrus.Fields{
			"status":     resp.StatusCode,
			"message_id": privacy.MaskMessageID(event.MessageID),
		}).Warn("Webhook delivery rejected")
		return
	}

	d.logger.WithFields(logrus.Fields{
		"message_id": privacy.MaskMessageID(event.MessageID),
	}).Debug("Webhook delivered")
}
