// Package archive exports closed alerts to S3 as gzip-compressed JSON
// batches. Archiving never deletes from the store.
package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"hostline-siem/internal/alertstore"
)

// Config holds S3 connection and layout configuration.
type Config struct {
	// Enabled turns the archive exporter on.
	Enabled bool `yaml:"enabled"`

	// Region is the AWS region.
	Region string `yaml:"region"`

	// Bucket is the S3 bucket name.
	Bucket string `yaml:"bucket"`

	// Prefix is the key prefix for all archive objects.
	Prefix string `yaml:"prefix"`

	// Endpoint is an optional custom endpoint (MinIO, LocalStack).
	Endpoint string `yaml:"endpoint,omitempty"`

	// UsePathStyle forces path-style addressing.
	UsePathStyle bool `yaml:"use_path_style"`

	// BatchSize caps the number of alerts per archive object.
	BatchSize int `yaml:"batch_size"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Region:    "us-east-1",
		Bucket:    "hostline-siem-archive",
		Prefix:    "alerts/",
		BatchSize: 500,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Region == "" {
		return errors.New("archive: region is required")
	}
	if c.Bucket == "" {
		return errors.New("archive: bucket is required")
	}
	return nil
}

// Manifest describes one archived batch.
type Manifest struct {
	Key        string    `json:"key"`
	AlertCount int       `json:"alert_count"`
	FirstID    int64     `json:"first_id"`
	LastID     int64     `json:"last_id"`
	ArchivedAt time.Time `json:"archived_at"`
}

// Archiver exports closed alerts from a store into S3.
type Archiver struct {
	client *s3.Client
	config Config
	logger *slog.Logger
	now    func() time.Time
}

// NewArchiver loads AWS configuration and builds the client.
func NewArchiver(ctx context.Context, cfg Config, logger *slog.Logger) (*Archiver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("archive: load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &Archiver{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		config: cfg,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Run archives every closed alert currently in the store and returns the
// manifests of the written batches.
func (a *Archiver) Run(ctx context.Context, store alertstore.Store) ([]Manifest, error) {
	alerts, err := store.Query(ctx, alertstore.Filter{Status: alertstore.StatusClosed})
	if err != nil {
		return nil, fmt.Errorf("archive: query closed alerts: %w", err)
	}
	if len(alerts) == 0 {
		return nil, nil
	}

	batchSize := a.config.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultConfig().BatchSize
	}

	var manifests []Manifest
	for start := 0; start < len(alerts); start += batchSize {
		end := start + batchSize
		if end > len(alerts) {
			end = len(alerts)
		}
		manifest, err := a.writeBatch(ctx, alerts[start:end])
		if err != nil {
			return manifests, err
		}
		manifests = append(manifests, manifest)
	}

	a.logger.Info("archive run complete",
		"alerts", len(alerts), "batches", len(manifests))
	return manifests, nil
}

func (a *Archiver) writeBatch(ctx context.Context, alerts []alertstore.Alert) (Manifest, error) {
	stamp := a.now().UTC()
	key := a.buildKey(stamp, alerts[0].ID, alerts[len(alerts)-1].ID)

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)
	for _, alert := range alerts {
		if err := enc.Encode(alert); err != nil {
			return Manifest{}, fmt.Errorf("archive: encode alert %d: %w", alert.ID, err)
		}
	}
	if err := gz.Close(); err != nil {
		return Manifest{}, fmt.Errorf("archive: compress batch: %w", err)
	}

	if err := a.put(ctx, key, buf.Bytes(), "application/gzip"); err != nil {
		return Manifest{}, err
	}

	manifest := Manifest{
		Key:        key,
		AlertCount: len(alerts),
		FirstID:    alerts[0].ID,
		LastID:     alerts[len(alerts)-1].ID,
		ArchivedAt: stamp,
	}
	manifestBody, err := json.Marshal(manifest)
	if err != nil {
		return Manifest{}, fmt.Errorf("archive: encode manifest: %w", err)
	}
	if err := a.put(ctx, key+".manifest.json", manifestBody, "application/json"); err != nil {
		return Manifest{}, err
	}
	return manifest, nil
}

func (a *Archiver) buildKey(stamp time.Time, firstID, lastID int64) string {
	return fmt.Sprintf("%s%s/alerts-%d-%d.json.gz",
		a.config.Prefix, stamp.Format("2006/01/02"), firstID, lastID)
}

func (a *Archiver) put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.config.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("archive: put %s: %w", key, err)
	}
	return nil
}
