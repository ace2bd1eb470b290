package alertstore

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"hostline-siem/internal/rules"
)

// ClickHouseConfig holds the configuration for the ClickHouse-backed store.
type ClickHouseConfig struct {
	Hosts           []string      `yaml:"hosts"`
	Database        string        `yaml:"database"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	TLSEnabled      bool          `yaml:"tls_enabled"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
	StrictLifecycle bool          `yaml:"strict_lifecycle"`
}

// DefaultClickHouseConfig returns the default ClickHouse configuration.
func DefaultClickHouseConfig() ClickHouseConfig {
	return ClickHouseConfig{
		Hosts:           []string{"localhost:9000"},
		Database:        "siem",
		Username:        "default",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		DialTimeout:     10 * time.Second,
	}
}

// ClickHouse is a Store backed by ClickHouse. Status updates run as
// synchronous mutations so a successful return is immediately visible to
// queries.
type ClickHouse struct {
	conn   driver.Conn
	config ClickHouseConfig
	logger *slog.Logger

	mu     sync.Mutex
	nextID int64
}

// NewClickHouse connects, ensures the schema, and seeds the id sequence
// from the highest stored id.
func NewClickHouse(ctx context.Context, cfg ClickHouseConfig, logger *slog.Logger) (*ClickHouse, error) {
	opts := &clickhouse.Options{
		Addr: cfg.Hosts,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
			"mutations_sync":     1,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionZSTD,
		},
		DialTimeout:     cfg.DialTimeout,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}

	if cfg.TLSEnabled {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, unavailable("Open", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		return nil, unavailable("Ping", err)
	}

	s := &ClickHouse{conn: conn, config: cfg, logger: logger}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	if err := s.seedID(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ClickHouse) ensureSchema(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS alerts (
			id              Int64,
			timestamp       DateTime64(3, 'UTC'),
			severity        LowCardinality(String),
			title           String,
			description     String,
			source_ip       String,
			destination_ip  String,
			hostname        String,
			rule_id         String,
			techniques      String,
			status          LowCardinality(String),
			acknowledged_by String,
			acknowledged_at Nullable(DateTime64(3, 'UTC'))
		)
		ENGINE = MergeTree
		ORDER BY (timestamp, id)
	`
	if err := s.conn.Exec(ctx, ddl); err != nil {
		return unavailable("EnsureSchema", err)
	}
	return nil
}

func (s *ClickHouse) seedID(ctx context.Context) error {
	row := s.conn.QueryRow(ctx, "SELECT max(id) FROM alerts")
	var maxID int64
	if err := row.Scan(&maxID); err != nil {
		return unavailable("SeedID", err)
	}
	s.nextID = maxID
	return nil
}

// Insert implements Store.
func (s *ClickHouse) Insert(ctx context.Context, draft Draft) (int64, error) {
	if !draft.Severity.Valid() {
		return 0, &StoreError{Op: "Insert", Err: ErrInvalidDraft}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ts := draft.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	id := s.nextID + 1

	err := s.conn.Exec(ctx, `
		INSERT INTO alerts (
			id, timestamp, severity, title, description,
			source_ip, destination_ip, hostname, rule_id,
			techniques, status, acknowledged_by, acknowledged_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		id, ts, string(draft.Severity), draft.Title, draft.Description,
		draft.SourceIP, draft.DestinationIP, draft.Hostname, draft.RuleID,
		EncodeTechniques(draft.Techniques), string(StatusOpen), "",
	)
	if err != nil {
		return 0, unavailable("Insert", err)
	}

	s.nextID = id
	return id, nil
}

// Get implements Store.
func (s *ClickHouse) Get(ctx context.Context, id int64) (*Alert, error) {
	rows, err := s.conn.Query(ctx, selectColumns+" FROM alerts WHERE id = ?", id)
	if err != nil {
		return nil, unavailable("Get", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, notFound("Get", id)
	}
	alert, err := s.scanAlert(rows)
	if err != nil {
		return nil, err
	}
	return alert, rows.Err()
}

const selectColumns = `
	SELECT id, timestamp, severity, title, description,
	       source_ip, destination_ip, hostname, rule_id,
	       techniques, status, acknowledged_by, acknowledged_at`

// buildQuery assembles the conjunctive WHERE clause for a filter.
func buildQuery(filter Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if filter.Severity != "" {
		conds = append(conds, "severity = ?")
		args = append(args, string(filter.Severity))
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Start != nil {
		conds = append(conds, "timestamp >= ?")
		args = append(args, *filter.Start)
	}
	if filter.End != nil {
		conds = append(conds, "timestamp <= ?")
		args = append(args, *filter.End)
	}

	query := selectColumns + " FROM alerts"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY timestamp DESC, id DESC"
	return query, args
}

// Query implements Store.
func (s *ClickHouse) Query(ctx context.Context, filter Filter) ([]Alert, error) {
	query, args := buildQuery(filter)
	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, unavailable("Query", err)
	}
	defer rows.Close()

	var results []Alert
	for rows.Next() {
		alert, err := s.scanAlert(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *alert)
	}
	return results, rows.Err()
}

func (s *ClickHouse) scanAlert(rows driver.Rows) (*Alert, error) {
	var (
		alert            Alert
		severity, status string
		techniques       string
		ackedAt          *time.Time
	)
	err := rows.Scan(
		&alert.ID, &alert.Timestamp, &severity, &alert.Title, &alert.Description,
		&alert.SourceIP, &alert.DestinationIP, &alert.Hostname, &alert.RuleID,
		&techniques, &status, &alert.AcknowledgedBy, &ackedAt,
	)
	if err != nil {
		return nil, unavailable("Scan", err)
	}

	alert.Severity = rules.Severity(severity)
	alert.Status = Status(status)
	alert.AcknowledgedAt = ackedAt

	tags, err := DecodeTechniques(techniques)
	if err != nil {
		// Malformed stored tags degrade to an empty list; the alert
		// stays queryable.
		s.logger.Warn("skipping malformed technique tags",
			"alert_id", alert.ID, "error", err)
		tags = []string{}
	}
	alert.Techniques = tags
	return &alert, nil
}

// UpdateStatus implements Store.
func (s *ClickHouse) UpdateStatus(ctx context.Context, id int64, status Status, acknowledgedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if s.config.StrictLifecycle && !legalTransition(current.Status, status) {
		return &StoreError{Op: "UpdateStatus", ID: id, Err: ErrIllegalTransition}
	}

	if acknowledgedBy != "" {
		err = s.conn.Exec(ctx, `
			ALTER TABLE alerts
			UPDATE status = ?, acknowledged_by = ?, acknowledged_at = ?
			WHERE id = ?`,
			string(status), acknowledgedBy, time.Now().UTC(), id)
	} else {
		err = s.conn.Exec(ctx,
			"ALTER TABLE alerts UPDATE status = ? WHERE id = ?",
			string(status), id)
	}
	if err != nil {
		return unavailable("UpdateStatus", err)
	}
	return nil
}

// Stats implements Store.
func (s *ClickHouse) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.conn.Query(ctx,
		"SELECT severity, status, count() FROM alerts GROUP BY severity, status")
	if err != nil {
		return Stats{}, unavailable("Stats", err)
	}
	defer rows.Close()

	stats := Stats{
		BySeverity: make(map[string]int),
		ByStatus:   make(map[string]int),
	}
	for rows.Next() {
		var (
			severity, status string
			count            uint64
		)
		if err := rows.Scan(&severity, &status, &count); err != nil {
			return Stats{}, unavailable("Stats", err)
		}
		stats.BySeverity[severity] += int(count)
		stats.ByStatus[status] += int(count)
	}
	return stats, rows.Err()
}

// Close implements Store.
func (s *ClickHouse) Close() error {
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("alertstore: close: %w", err)
	}
	return nil
}
