package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertErrorRate     AlertType = "error_rate"
	AlertContactFailed AlertType = "contact_failure_rate"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds and
// sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates an Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
// Small populations are ignored to avoid noise from the first few runs.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if snap.BuildingsTotal >= 5 && snap.ErrorRate > a.cfg.ErrorRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertErrorRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Pipeline error rate %.1f%% exceeds threshold %.1f%% (%d errored / %d buildings)",
				snap.ErrorRate*100, a.cfg.ErrorRateThreshold*100,
				snap.Errored, snap.BuildingsTotal,
			),
			Details: map[string]any{
				"error_rate": snap.ErrorRate,
				"threshold":  a.cfg.ErrorRateThreshold,
				"errored":    snap.Errored,
				"total":      snap.BuildingsTotal,
			},
			Timestamp: now,
		})
	}

	attempted := snap.ContactFound + snap.ContactFailed + snap.EmailSent + snap.ReplyReceived
	if attempted >= 5 {
		failRate := float64(snap.ContactFailed) / float64(attempted)
		if failRate > a.cfg.ContactFailThreshold {
			alerts = append(alerts, Alert{
				Type:     AlertContactFailed,
				Severity: "medium",
				Message: fmt.Sprintf(
					"Contact resolution failing for %.1f%% of attempted buildings (%d of %d)",
					failRate*100, snap.ContactFailed, attempted,
				),
				Details: map[string]any{
					"fail_rate": failRate,
					"threshold": a.cfg.ContactFailThreshold,
					"failed":    snap.ContactFailed,
					"attempted": attempted,
				},
				Timestamp: now,
			})
		}
	}

	return alerts
}

// Send posts alerts to the configured webhook. Without a webhook URL the
// alerts are only logged.
func (a *Alerter) Send(ctx context.Context, alerts []Alert) error {
	for _, alert := range alerts {
		zap.L().Warn("monitoring: alert",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
			zap.String("message", alert.Message),
		)
	}
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return nil
	}

	payload, err := json.Marshal(map[string]any{"alerts": alerts})
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alerts")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: send webhook")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return eris.Errorf("monitoring: webhook returned %d", resp.StatusCode)
	}
	return nil
}
