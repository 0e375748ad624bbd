// Package notify delivers order status-change events to downstream sinks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"multichain-wallet-api/internal/logger"
	"multichain-wallet-api/internal/models"
)

// Dispatcher delivers a status-change event. Dispatch failures must never
// fail the reconciliation sweep that produced the event.
type Dispatcher interface {
	Dispatch(ctx context.Context, event models.StatusEvent) error
}

// LogDispatcher writes events to the service log. Used when no webhook is
// configured.
type LogDispatcher struct {
	Logger *logger.Logger
}

func (d *LogDispatcher) Dispatch(_ context.Context, event models.StatusEvent) error {
	d.Logger.WithComponent("notify").
		WithField("record_id", event.RecordID).
		WithField("provider", event.ProviderID).
		Infof("Order status changed: %s -> %s", event.OldStatus, event.NewStatus)
	return nil
}

// WebhookDispatcher posts events as JSON to an external push/email service.
type WebhookDispatcher struct {
	URL        string
	httpClient *http.Client
	logger     *logger.Logger
}

func NewWebhookDispatcher(url string, timeout time.Duration, log *logger.Logger) *WebhookDispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookDispatcher{
		URL:        url,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
	}
}

func (d *WebhookDispatcher) Dispatch(ctx context.Context, event models.StatusEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", d.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
