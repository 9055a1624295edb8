// Package notify posts run notifications to an HTTP webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/artcrm/artcrm/internal/events"
)

// Notification is the webhook payload.
type Notification struct {
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Webhook delivers notifications to a single URL.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook creates a Webhook posting to url.
func NewWebhook(url string) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Register subscribes w to leads_discovered on bus. An empty URL registers
// nothing.
func Register(bus *events.Bus, url string) {
	if strings.TrimSpace(url) == "" {
		return
	}
	w := NewWebhook(url)
	bus.Subscribe(events.NameLeadsDiscovered, w.HandleLeadsDiscovered)
}

// HandleLeadsDiscovered is an events.Handler.
func (w *Webhook) HandleLeadsDiscovered(ctx context.Context, msg events.Message) error {
	ld, ok := msg.(events.LeadsDiscovered)
	if !ok {
		return eris.Errorf("notify: unexpected message %T", msg)
	}

	n := Notification{
		Type: ld.Name(),
		Message: fmt.Sprintf("recon %s, %s: %d new leads, %d already known",
			ld.Query.City, ld.Query.Country,
			ld.Counts.Persisted+ld.Counts.EnrichmentFailedButPersisted, ld.Counts.MergedIntoExisting),
		Details: map[string]any{
			"run_id":        ld.RunID,
			"persisted_ids": ld.PersistedIDs,
			"sources_used":  ld.SourcesUsed,
			"artifact_path": ld.ArtifactPath,
			"errors":        ld.Errors,
		},
		Timestamp: ld.FinishedAt,
	}
	if err := w.Send(ctx, n); err != nil {
		return err
	}
	zap.L().Info("notify: webhook sent", zap.String("type", n.Type), zap.String("run_id", ld.RunID))
	return nil
}

// Send posts a single notification.
func (w *Webhook) Send(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return eris.Wrap(err, "notify: marshal notification")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "notify: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "notify: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("notify: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
