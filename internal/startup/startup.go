// Package startup assembles the detection pipeline from configuration.
// Both the server and the one-shot detector build the same components.
package startup

import (
	"context"
	"fmt"
	"log/slog"

	"hostline-siem/internal/alertstore"
	"hostline-siem/internal/config"
	"hostline-siem/internal/detect"
	"hostline-siem/internal/intel"
	"hostline-siem/internal/logsource"
	"hostline-siem/internal/notify"
	"hostline-siem/internal/rules"
)

// Components holds the assembled pipeline.
type Components struct {
	Store    alertstore.Store
	Registry *rules.Registry
	Source   *logsource.DirSource
	Runner   *detect.Runner
	Intel    *intel.Service
	Notifier *notify.Notifier

	history detect.AttemptHistory
	kafka   *notify.KafkaChannel
}

// Build wires the store, registry, source, detectors, intel and notifier
// from the configuration.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Components, error) {
	c := &Components{}

	store, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	c.Store = store

	registry, err := buildRegistry(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	c.Registry = registry

	c.Source = logsource.NewDirSource(cfg.Detection.Source, logger)

	history, err := buildHistory(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	c.history = history

	intelSvc, err := intel.NewService(cfg.Intel)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Intel = intelSvc

	notifier, kafka, err := buildNotifier(cfg, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Notifier = notifier
	c.kafka = kafka

	// Detectors write through the notifying store so every raised alert
	// reaches the configured channels.
	runner, err := detect.NewRunner(registry, cfg.Detection.Window.Detect(), history,
		notify.WrapStore(store, notifier), logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Runner = runner

	return c, nil
}

// Close releases every held connection.
func (c *Components) Close() {
	if c.kafka != nil {
		c.kafka.Close()
	}
	if closer, ok := c.history.(interface{ Close() error }); ok {
		closer.Close()
	}
	if c.Store != nil {
		c.Store.Close()
	}
}

// Detect runs one detection pass and publishes the raised alerts.
func (c *Components) Detect(ctx context.Context) (detect.Summary, error) {
	return c.Runner.Run(ctx, c.Source)
}

func buildStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (alertstore.Store, error) {
	switch cfg.Storage.Backend {
	case "clickhouse":
		chCfg := cfg.Storage.ClickHouse
		chCfg.StrictLifecycle = cfg.Lifecycle.Strict
		store, err := alertstore.NewClickHouse(ctx, chCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("startup: clickhouse store: %w", err)
		}
		return store, nil
	default:
		var opts []alertstore.MemoryOption
		if cfg.Lifecycle.Strict {
			opts = append(opts, alertstore.WithStrictLifecycle())
		}
		return alertstore.NewMemory(opts...), nil
	}
}

func buildRegistry(cfg *config.Config) (*rules.Registry, error) {
	list := rules.Builtin()
	if cfg.Detection.RuleFile != "" {
		extra, err := rules.LoadFile(cfg.Detection.RuleFile)
		if err != nil {
			return nil, fmt.Errorf("startup: rule file: %w", err)
		}
		list = append(list, extra...)
	}
	registry, err := rules.NewRegistry(list)
	if err != nil {
		return nil, fmt.Errorf("startup: rule registry: %w", err)
	}
	return registry, nil
}

func buildHistory(ctx context.Context, cfg *config.Config) (detect.AttemptHistory, error) {
	if cfg.Detection.Window.State != "redis" {
		return detect.NewRunHistory(), nil
	}
	history, err := detect.NewRedisHistory(ctx, cfg.Detection.Window.Redis)
	if err != nil {
		return nil, fmt.Errorf("startup: redis history: %w", err)
	}
	return history, nil
}

func buildNotifier(cfg *config.Config, logger *slog.Logger) (*notify.Notifier, *notify.KafkaChannel, error) {
	var channels []notify.Channel

	if cfg.Notify.LogAlerts {
		channels = append(channels, notify.NewLogChannel(logger))
	}
	if cfg.Notify.Webhook.URL != "" {
		channels = append(channels, notify.NewWebhookChannel(cfg.Notify.Webhook))
	}

	var kafka *notify.KafkaChannel
	if cfg.Notify.Kafka.Enabled {
		ch, err := notify.NewKafkaChannel(cfg.Notify.Kafka)
		if err != nil {
			return nil, nil, fmt.Errorf("startup: kafka channel: %w", err)
		}
		kafka = ch
		channels = append(channels, ch)
	}

	return notify.NewNotifier(channels, logger), kafka, nil
}
