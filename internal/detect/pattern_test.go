package detect

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"hostline-siem/internal/alertstore"
	"hostline-siem/internal/logsource"
	"hostline-siem/internal/rules"
)

// fakeSource replays a fixed slice of lines.
type fakeSource struct {
	lines []logsource.Line
}

func (s *fakeSource) Each(ctx context.Context, fn func(logsource.Line) error) error {
	for _, l := range s.lines {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(l); err != nil {
			return err
		}
	}
	return nil
}

func sourceOf(host string, raw ...string) *fakeSource {
	s := &fakeSource{}
	for _, r := range raw {
		s.lines = append(s.lines, logsource.Line{Raw: r, Hostname: host})
	}
	return s
}

func testRegistry(t *testing.T) *rules.Registry {
	t.Helper()
	reg, err := rules.NewRegistry(rules.Builtin())
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	return reg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScanSingleMatch(t *testing.T) {
	scanner := NewPatternScanner(testRegistry(t))

	drafts := scanner.Scan("Mar 15 10:22:01 sshd[1234]: Accepted password for alice from 10.1.1.1", "web01")
	if len(drafts) != 1 {
		t.Fatalf("expected 1 draft, got %d", len(drafts))
	}
	d := drafts[0]
	if d.RuleID != "SSH-001" {
		t.Errorf("rule = %s, want SSH-001", d.RuleID)
	}
	if d.Severity != rules.SeverityLow {
		t.Errorf("severity = %s, want LOW", d.Severity)
	}
	if d.SourceIP != "alice" {
		t.Errorf("capture group = %q, want alice", d.SourceIP)
	}
	if d.Hostname != "web01" {
		t.Errorf("hostname = %q, want web01", d.Hostname)
	}
}

func TestScanMultipleRulesMatch(t *testing.T) {
	scanner := NewPatternScanner(testRegistry(t))

	// Matches both the auth-failure rule and the suspicious-user rule;
	// neither match suppresses the other.
	drafts := scanner.Scan("pam_unix(sshd:auth): authentication failure for invalid user; user=admin", "web01")
	if len(drafts) != 2 {
		t.Fatalf("expected 2 drafts, got %d", len(drafts))
	}
	got := map[string]bool{}
	for _, d := range drafts {
		got[d.RuleID] = true
	}
	if !got["FAIL-001"] || !got["SUSP-001"] {
		t.Errorf("matched rules = %v, want FAIL-001 and SUSP-001", got)
	}
}

func TestScanSkipsWindowedRules(t *testing.T) {
	scanner := NewPatternScanner(testRegistry(t))

	drafts := scanner.Scan("Failed password for root from 10.0.0.5", "web01")
	for _, d := range drafts {
		if d.RuleID == rules.BruteForceRuleID {
			t.Errorf("windowed rule %s should not match in the pattern pass", d.RuleID)
		}
	}
}

func TestScanNoMatch(t *testing.T) {
	scanner := NewPatternScanner(testRegistry(t))

	if drafts := scanner.Scan("Mar 15 10:00:00 systemd[1]: Started session", "web01"); drafts != nil {
		t.Errorf("expected no drafts, got %v", drafts)
	}
}

func TestRunPatterns(t *testing.T) {
	ctx := context.Background()
	store := alertstore.NewMemory()
	src := sourceOf("web01",
		"Accepted password for alice from 10.1.1.1",
		"warning: disk space low on /var",
		"nothing interesting",
	)

	n, err := RunPatterns(ctx, src, NewPatternScanner(testRegistry(t)), store, quietLogger())
	if err != nil {
		t.Fatalf("RunPatterns failed: %v", err)
	}
	if n != 2 {
		t.Errorf("inserted = %d, want 2", n)
	}

	alerts, err := store.Query(ctx, alertstore.Filter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(alerts) != 2 {
		t.Errorf("stored = %d, want 2", len(alerts))
	}
	for _, a := range alerts {
		if a.Status != alertstore.StatusOpen {
			t.Errorf("alert %d status = %s, want open", a.ID, a.Status)
		}
	}
}

func TestRunPatternsStoreFailureAborts(t *testing.T) {
	src := sourceOf("web01", "Accepted password for alice from 10.1.1.1")

	_, err := RunPatterns(context.Background(), src, NewPatternScanner(testRegistry(t)), failingStore{}, quietLogger())
	if err == nil {
		t.Fatal("expected store failure to abort the pass")
	}
}

// failingStore rejects every insert.
type failingStore struct{ alertstore.Store }

func (failingStore) Insert(context.Context, alertstore.Draft) (int64, error) {
	return 0, errors.New("store unavailable")
}
