// Package alertstore provides persistence and lifecycle management for
// security alerts.
package alertstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"hostline-siem/internal/rules"
)

// Status is the triage state of an alert.
type Status string

const (
	StatusOpen         Status = "open"
	StatusAcknowledged Status = "acknowledged"
	StatusClosed       Status = "closed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusAcknowledged, StatusClosed:
		return true
	}
	return false
}

// Alert is a persisted alert record. Identity and descriptive fields are
// immutable after insert; only Status and the acknowledgment fields change,
// and only through UpdateStatus.
type Alert struct {
	ID             int64          `json:"id"`
	Timestamp      time.Time      `json:"timestamp"`
	Severity       rules.Severity `json:"severity"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	SourceIP       string         `json:"source_ip,omitempty"`
	DestinationIP  string         `json:"destination_ip,omitempty"`
	Hostname       string         `json:"hostname,omitempty"`
	RuleID         string         `json:"rule_id,omitempty"`
	Techniques     []string       `json:"techniques"`
	Status         Status         `json:"status"`
	AcknowledgedBy string         `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time     `json:"acknowledged_at,omitempty"`
}

// Draft is an in-memory candidate alert produced by a detector, not yet
// persisted. A zero Timestamp is stamped by the store at insert.
type Draft struct {
	Timestamp     time.Time
	Severity      rules.Severity
	Title         string
	Description   string
	SourceIP      string
	DestinationIP string
	Hostname      string
	RuleID        string
	Techniques    []string
	MatchedText   string
}

// Materialize builds the Alert an insert of the draft produces. Used by
// callers that need the full record for notification payloads.
func (d Draft) Materialize(id int64, ts time.Time) Alert {
	techniques := d.Techniques
	if techniques == nil {
		techniques = []string{}
	}
	return Alert{
		ID:            id,
		Timestamp:     ts,
		Severity:      d.Severity,
		Title:         d.Title,
		Description:   d.Description,
		SourceIP:      d.SourceIP,
		DestinationIP: d.DestinationIP,
		Hostname:      d.Hostname,
		RuleID:        d.RuleID,
		Techniques:    techniques,
		Status:        StatusOpen,
	}
}

// Filter selects alerts in Query. Zero-valued fields impose no constraint;
// all supplied constraints are conjunctive. Start and End are inclusive.
type Filter struct {
	Severity rules.Severity
	Status   Status
	Start    *time.Time
	End      *time.Time
}

// Matches reports whether the alert satisfies every supplied constraint.
func (f Filter) Matches(a *Alert) bool {
	if f.Severity != "" && a.Severity != f.Severity {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.Start != nil && a.Timestamp.Before(*f.Start) {
		return false
	}
	if f.End != nil && a.Timestamp.After(*f.End) {
		return false
	}
	return true
}

// Stats aggregates alert counts by severity and by status.
type Stats struct {
	BySeverity map[string]int `json:"by_severity"`
	ByStatus   map[string]int `json:"by_status"`
}

// Store is the persistence authority for alerts. Implementations guard
// each operation with exclusive access; operations are atomic and never
// retried internally.
type Store interface {
	// Insert assigns a strictly increasing id, stamps the timestamp when
	// the draft carries none, sets status open and persists the record.
	Insert(ctx context.Context, draft Draft) (int64, error)

	// Get fetches a single alert. Unknown ids yield ErrNotFound.
	Get(ctx context.Context, id int64) (*Alert, error)

	// Query returns alerts matching the filter, ordered by timestamp
	// descending.
	Query(ctx context.Context, filter Filter) ([]Alert, error)

	// UpdateStatus transitions the alert's status. A non-empty
	// acknowledgedBy also stamps AcknowledgedBy and AcknowledgedAt; an
	// empty one leaves both fields as stored. Unknown ids yield
	// ErrNotFound and leave the store unchanged.
	UpdateStatus(ctx context.Context, id int64, status Status, acknowledgedBy string) error

	// Stats aggregates counts over all alerts.
	Stats(ctx context.Context) (Stats, error)

	Close() error
}

// EncodeTechniques serializes technique tags for persistence. Nil encodes
// as an empty list so the round trip is stable.
func EncodeTechniques(techniques []string) string {
	if techniques == nil {
		techniques = []string{}
	}
	data, err := json.Marshal(techniques)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// DecodeTechniques parses a persisted technique list. The decode is
// schema-constrained to a sequence of strings and fails closed: malformed
// input yields ErrMalformedRecord, never code evaluation.
func DecodeTechniques(raw string) ([]string, error) {
	if raw == "" {
		return []string{}, nil
	}
	var techniques []string
	if err := json.Unmarshal([]byte(raw), &techniques); err != nil {
		return nil, fmt.Errorf("%w: techniques %q: %v", ErrMalformedRecord, raw, err)
	}
	if techniques == nil {
		techniques = []string{}
	}
	return techniques, nil
}

// legalTransition reports whether from -> to is allowed under the strict
// lifecycle: open -> acknowledged, open -> closed, acknowledged -> closed.
func legalTransition(from, to Status) bool {
	switch from {
	case StatusOpen:
		return to == StatusAcknowledged || to == StatusClosed
	case StatusAcknowledged:
		return to == StatusClosed
	default:
		return false
	}
}
