// Package alert provides the HTTP client that hands security alerts to the
// external notification service. Delivery is fire-and-forget: the ingestion
// path never blocks on, or fails because of, the notification channel.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/cheet0dust/The-Nothing-Club/internal/config"
	"github.com/cheet0dust/The-Nothing-Club/internal/constants"
	"github.com/cheet0dust/The-Nothing-Club/internal/models"
)

// alertsPath is the notification service endpoint for security alerts.
const alertsPath = "/notifications/security-alert"

// Client delivers AlertRequests to the notification service.
type Client struct {
	httpClient *http.Client
	cfg        *config.AlertsConfig
	logger     *logrus.Logger
}

// NewClient creates a new alert delivery client.
func NewClient(cfg *config.AlertsConfig, logger *logrus.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     logger,
	}
}

// Deliver sends one alert to the notification service. Errors are logged and
// swallowed; when delivery is disabled the alert is logged instead. Deliver
// is safe to call from its own goroutine.
func (c *Client) Deliver(alert *models.AlertRequest) {
	if !c.cfg.Enabled {
		c.logger.WithFields(logrus.Fields{
			"severity": string(alert.Severity),
			"source":   alert.Source,
			"summary":  alert.Summary,
		}).Warn("Security alert (delivery disabled)")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
	defer cancel()

	if err := c.post(ctx, alert); err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"severity": string(alert.Severity),
			"source":   alert.Source,
		}).Error("Failed to deliver security alert")
		return
	}

	c.logger.WithFields(logrus.Fields{
		"severity": string(alert.Severity),
		"source":   alert.Source,
	}).Info("Security alert delivered")
}

// post executes the HTTP request with JSON marshaling and error handling.
func (c *Client) post(ctx context.Context, alert *models.AlertRequest) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	url := c.cfg.BaseURL + alertsPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set(constants.HeaderContentType, constants.ContentTypeJSON)
	req.Header.Set(constants.HeaderAccept, constants.ContentTypeJSON)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused; the body content is not trusted.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("alert delivery failed with status %d", resp.StatusCode)
	}

	return nil
}
