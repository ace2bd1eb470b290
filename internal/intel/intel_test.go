package intel

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"hostline-siem/internal/alertstore"
	"hostline-siem/internal/rules"
)

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func newTestService(t *testing.T, feed *indicatorFeed, block *blocklist) *Service {
	t.Helper()
	dir := t.TempDir()
	cfg := Config{
		IndicatorFile: filepath.Join(dir, "threat_intel.json"),
		BlocklistFile: filepath.Join(dir, "blocklist.json"),
	}
	if feed != nil {
		writeJSON(t, cfg.IndicatorFile, feed)
	}
	if block != nil {
		writeJSON(t, cfg.BlocklistFile, block)
	}
	s, err := NewService(cfg)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return s
}

func TestNewServiceMissingFiles(t *testing.T) {
	s := newTestService(t, nil, nil)

	if m := s.CheckIP("203.0.113.50"); m != nil {
		t.Errorf("expected no match from empty data, got %+v", m)
	}
	if m := s.CheckDomain("evil.example"); m != nil {
		t.Errorf("expected no match from empty data, got %+v", m)
	}
}

func TestNewServiceMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "threat_intel.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, err := NewService(Config{
		IndicatorFile: path,
		BlocklistFile: filepath.Join(dir, "blocklist.json"),
	})
	if err == nil {
		t.Error("expected error for malformed indicator file")
	}
}

func TestCheckIPFeed(t *testing.T) {
	s := newTestService(t, &indicatorFeed{
		Indicators: []Indicator{
			{Type: "ip", Value: "203.0.113.50", Risk: "MEDIUM", Source: "abuse-feed", Description: "known scanner"},
			{Type: "ip", Value: "198.51.100.7"},
			{Type: "domain", Value: "evil.example"},
		},
	}, nil)

	m := s.CheckIP("203.0.113.50")
	if m == nil {
		t.Fatal("expected feed match")
	}
	if m.Risk != "MEDIUM" || m.Source != "abuse-feed" || m.Description != "known scanner" {
		t.Errorf("match = %+v", m)
	}

	// Unset risk and source fall back to defaults.
	m = s.CheckIP("198.51.100.7")
	if m == nil {
		t.Fatal("expected feed match")
	}
	if m.Risk != "HIGH" || m.Source != "local" {
		t.Errorf("defaults not applied: %+v", m)
	}

	// Kind must match: a domain indicator never answers an IP lookup.
	if m := s.CheckIP("evil.example"); m != nil {
		t.Errorf("domain indicator matched an ip lookup: %+v", m)
	}
}

func TestBlocklistPrecedence(t *testing.T) {
	s := newTestService(t, &indicatorFeed{
		Indicators: []Indicator{
			{Type: "ip", Value: "203.0.113.50", Risk: "LOW", Source: "abuse-feed"},
		},
	}, &blocklist{
		BlockedIPs:     []string{"203.0.113.50"},
		BlockedDomains: []string{"evil.example"},
	})

	m := s.CheckIP("203.0.113.50")
	if m == nil {
		t.Fatal("expected blocklist match")
	}
	if m.Risk != "CRITICAL" || m.Source != "local_blocklist" {
		t.Errorf("blocklist should take precedence: %+v", m)
	}
	if m.Description != "IP found in local blocklist" {
		t.Errorf("description = %q", m.Description)
	}

	dm := s.CheckDomain("evil.example")
	if dm == nil {
		t.Fatal("expected domain blocklist match")
	}
	if dm.Risk != "CRITICAL" || dm.Description != "Domain found in local blocklist" {
		t.Errorf("domain match = %+v", dm)
	}
}

func TestEnrichAlert(t *testing.T) {
	s := newTestService(t, nil, &blocklist{BlockedIPs: []string{"203.0.113.50"}})

	enriched := s.EnrichAlert(alertstore.Alert{
		ID:       1,
		Severity: rules.SeverityHigh,
		SourceIP: "203.0.113.50",
	})
	if !enriched.ThreatDetected {
		t.Error("expected threat_detected")
	}
	if len(enriched.ThreatIntel) != 1 {
		t.Fatalf("matches = %d, want 1", len(enriched.ThreatIntel))
	}
	if enriched.ThreatIntel[0].Indicator != "203.0.113.50" {
		t.Errorf("indicator = %q", enriched.ThreatIntel[0].Indicator)
	}

	clean := s.EnrichAlert(alertstore.Alert{ID: 2, SourceIP: "10.0.0.1"})
	if clean.ThreatDetected {
		t.Error("clean alert should not flag threat_detected")
	}
	if clean.ThreatIntel == nil {
		t.Error("matches must serialize as an empty list, not null")
	}
}

func TestEnrichAlertBothIPs(t *testing.T) {
	s := newTestService(t, nil, &blocklist{
		BlockedIPs: []string{"203.0.113.50", "198.51.100.7"},
	})

	enriched := s.EnrichAlert(alertstore.Alert{
		SourceIP:      "203.0.113.50",
		DestinationIP: "198.51.100.7",
	})
	if len(enriched.ThreatIntel) != 2 {
		t.Errorf("matches = %d, want 2", len(enriched.ThreatIntel))
	}
}

func TestBlockPersists(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		IndicatorFile: filepath.Join(dir, "threat_intel.json"),
		BlocklistFile: filepath.Join(dir, "blocklist.json"),
	}
	s, err := NewService(cfg)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	if err := s.Block("203.0.113.50", "evil.example"); err != nil {
		t.Fatalf("Block failed: %v", err)
	}
	// Duplicate block is a no-op.
	if err := s.Block("203.0.113.50", ""); err != nil {
		t.Fatalf("Block failed: %v", err)
	}

	reloaded, err := NewService(cfg)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	m := reloaded.CheckIP("203.0.113.50")
	if m == nil || m.Source != "local_blocklist" {
		t.Errorf("blocked ip not persisted: %+v", m)
	}
	if dm := reloaded.CheckDomain("evil.example"); dm == nil {
		t.Error("blocked domain not persisted")
	}
	if len(reloaded.blocklist.BlockedIPs) != 1 {
		t.Errorf("duplicate block was stored: %v", reloaded.blocklist.BlockedIPs)
	}
}
