// Package notify fans newly raised alerts out to delivery channels. A
// channel failure is logged and never propagates to the insert path.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"hostline-siem/internal/alertstore"
)

// Channel delivers one alert to one destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, alert alertstore.Alert) error
}

// Config selects and configures the enabled channels.
type Config struct {
	Webhook WebhookConfig `yaml:"webhook"`
	Kafka   KafkaConfig   `yaml:"kafka"`

	// LogAlerts mirrors every alert into the structured log.
	LogAlerts bool `yaml:"log_alerts"`
}

// Notifier dispatches each alert to every channel concurrently and waits
// for delivery to finish.
type Notifier struct {
	channels []Channel
	logger   *slog.Logger
	timeout  time.Duration
}

// NewNotifier creates a notifier over the given channels.
func NewNotifier(channels []Channel, logger *slog.Logger) *Notifier {
	return &Notifier{
		channels: channels,
		logger:   logger,
		timeout:  10 * time.Second,
	}
}

// Publish sends the alert to every channel. Failures are logged per
// channel; Publish itself never fails.
func (n *Notifier) Publish(ctx context.Context, alert alertstore.Alert) {
	if len(n.channels) == 0 {
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, ch := range n.channels {
		wg.Add(1)
		go func(ch Channel) {
			defer wg.Done()
			if err := ch.Send(sendCtx, alert); err != nil {
				n.logger.Error("alert delivery failed",
					"channel", ch.Name(), "alert_id", alert.ID, "error", err)
			}
		}(ch)
	}
	wg.Wait()
}

type notifyingStore struct {
	alertstore.Store
	notifier *Notifier
}

// WrapStore decorates a store so every successful insert is published to
// the notifier. Delivery failure never fails the insert.
func WrapStore(store alertstore.Store, notifier *Notifier) alertstore.Store {
	return &notifyingStore{Store: store, notifier: notifier}
}

func (s *notifyingStore) Insert(ctx context.Context, draft alertstore.Draft) (int64, error) {
	id, err := s.Store.Insert(ctx, draft)
	if err != nil {
		return id, err
	}
	if alert, getErr := s.Store.Get(ctx, id); getErr == nil {
		s.notifier.Publish(ctx, *alert)
	}
	return id, nil
}

// WebhookConfig configures the webhook channel.
type WebhookConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// WebhookChannel POSTs the alert as JSON to a fixed URL.
type WebhookChannel struct {
	url    string
	client *http.Client
}

// NewWebhookChannel creates a webhook channel.
func NewWebhookChannel(cfg WebhookConfig) *WebhookChannel {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookChannel{
		url:    cfg.URL,
		client: &http.Client{Timeout: timeout},
	}
}

// Name implements Channel.
func (c *WebhookChannel) Name() string { return "webhook" }

// Send implements Channel.
func (c *WebhookChannel) Send(ctx context.Context, alert alertstore.Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("notify: encode alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook returned %d", resp.StatusCode)
	}
	return nil
}

// LogChannel mirrors alerts into the structured log. Useful during
// development and as a delivery audit trail.
type LogChannel struct {
	logger *slog.Logger
}

// NewLogChannel creates a log channel.
func NewLogChannel(logger *slog.Logger) *LogChannel {
	return &LogChannel{logger: logger}
}

// Name implements Channel.
func (c *LogChannel) Name() string { return "log" }

// Send implements Channel.
func (c *LogChannel) Send(_ context.Context, alert alertstore.Alert) error {
	c.logger.Info("alert raised",
		"alert_id", alert.ID,
		"rule_id", alert.RuleID,
		"severity", alert.Severity,
		"title", alert.Title,
		"source_ip", alert.SourceIP)
	return nil
}
