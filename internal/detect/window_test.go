package detect

import (
	"context"
	"strings"
	"testing"
	"time"

	"hostline-siem/internal/alertstore"
	"hostline-siem/internal/rules"
)

func bruteRule(t *testing.T) *rules.Rule {
	t.Helper()
	rule, ok := testRegistry(t).Get(rules.BruteForceRuleID)
	if !ok {
		t.Fatalf("missing rule %s", rules.BruteForceRuleID)
	}
	return rule
}

func newTestDetector(t *testing.T) *WindowDetector {
	t.Helper()
	d, err := NewWindowDetector(bruteRule(t), WindowConfig{}, NewRunHistory(), quietLogger())
	if err != nil {
		t.Fatalf("NewWindowDetector failed: %v", err)
	}
	return d
}

func failedLogins(ip string, n int) []string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = "Failed password for admin from " + ip + " port 22 ssh2"
	}
	return lines
}

func TestWindowDetectorThresholdMet(t *testing.T) {
	d := newTestDetector(t)
	src := sourceOf("web01", failedLogins("10.0.0.5", 6)...)

	drafts, err := d.Run(context.Background(), src)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(drafts) != 1 {
		t.Fatalf("expected exactly 1 draft, got %d", len(drafts))
	}
	got := drafts[0]
	if got.SourceIP != "10.0.0.5" {
		t.Errorf("source_ip = %q, want 10.0.0.5", got.SourceIP)
	}
	if got.Severity != rules.SeverityHigh {
		t.Errorf("severity = %s, want HIGH", got.Severity)
	}
	if got.Description != "6 failed login attempts from 10.0.0.5" {
		t.Errorf("description = %q", got.Description)
	}
	if got.RuleID != rules.BruteForceRuleID {
		t.Errorf("rule_id = %q", got.RuleID)
	}
}

func TestWindowDetectorBelowThreshold(t *testing.T) {
	d := newTestDetector(t)
	src := sourceOf("web01", failedLogins("10.0.0.5", 4)...)

	drafts, err := d.Run(context.Background(), src)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(drafts) != 0 {
		t.Errorf("expected no drafts below threshold, got %d", len(drafts))
	}
}

func TestWindowDetectorPerIPGrouping(t *testing.T) {
	d := newTestDetector(t)
	lines := append(failedLogins("10.0.0.5", 5), failedLogins("192.168.1.9", 5)...)
	lines = append(lines, failedLogins("172.16.0.3", 2)...)
	src := sourceOf("web01", lines...)

	drafts, err := d.Run(context.Background(), src)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(drafts) != 2 {
		t.Fatalf("expected 2 drafts, got %d", len(drafts))
	}
	// IP order is sorted for determinism.
	if drafts[0].SourceIP != "10.0.0.5" || drafts[1].SourceIP != "192.168.1.9" {
		t.Errorf("draft order: %s, %s", drafts[0].SourceIP, drafts[1].SourceIP)
	}
}

func TestWindowDetectorExpiredAttempts(t *testing.T) {
	d := newTestDetector(t)

	// Make all attempts land ten minutes before evaluation, outside the
	// five minute window.
	base := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	calls := 0
	d.now = func() time.Time {
		calls++
		if calls <= 6 {
			return base
		}
		return base.Add(10 * time.Minute)
	}

	src := sourceOf("web01", failedLogins("10.0.0.5", 6)...)
	drafts, err := d.Run(context.Background(), src)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(drafts) != 0 {
		t.Errorf("expected no drafts for expired attempts, got %d", len(drafts))
	}
}

func TestWindowDetectorResetBetweenRuns(t *testing.T) {
	d := newTestDetector(t)

	// Three attempts per run never reach the threshold, even over two
	// runs, because run-scoped history clears at the start of each run.
	src := sourceOf("web01", failedLogins("10.0.0.5", 3)...)
	for run := 0; run < 2; run++ {
		drafts, err := d.Run(context.Background(), src)
		if err != nil {
			t.Fatalf("run %d failed: %v", run, err)
		}
		if len(drafts) != 0 {
			t.Errorf("run %d: expected no drafts, got %d", run, len(drafts))
		}
	}
}

func TestNewWindowDetectorRejectsPlainRule(t *testing.T) {
	reg := testRegistry(t)
	ssh, _ := reg.Get("SSH-001")
	if _, err := NewWindowDetector(ssh, WindowConfig{}, nil, quietLogger()); err == nil {
		t.Error("expected error for rule without threshold")
	}
}

func TestRunWindowInserts(t *testing.T) {
	ctx := context.Background()
	store := alertstore.NewMemory()
	d := newTestDetector(t)
	src := sourceOf("web01", failedLogins("10.0.0.5", 6)...)

	n, err := RunWindow(ctx, src, d, store)
	if err != nil {
		t.Fatalf("RunWindow failed: %v", err)
	}
	if n != 1 {
		t.Errorf("inserted = %d, want 1", n)
	}

	alerts, err := store.Query(ctx, alertstore.Filter{Severity: rules.SeverityHigh})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("stored = %d, want 1", len(alerts))
	}
	if !strings.Contains(alerts[0].Description, "10.0.0.5") {
		t.Errorf("description = %q", alerts[0].Description)
	}
}

func TestRunHistoryCountSince(t *testing.T) {
	ctx := context.Background()
	h := NewRunHistory()

	base := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	for _, offset := range []time.Duration{0, time.Minute, 2 * time.Minute, 10 * time.Minute} {
		if err := h.Record(ctx, "10.0.0.5", base.Add(offset)); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	tests := []struct {
		name   string
		cutoff time.Time
		want   int
	}{
		{"all inside", base.Add(-time.Hour), 4},
		{"cutoff excludes its own instant", base, 3},
		{"only latest", base.Add(5 * time.Minute), 1},
		{"none", base.Add(time.Hour), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := h.CountSince(ctx, "10.0.0.5", tt.cutoff)
			if err != nil {
				t.Fatalf("CountSince failed: %v", err)
			}
			if n != tt.want {
				t.Errorf("count = %d, want %d", n, tt.want)
			}
		})
	}

	if n, _ := h.CountSince(ctx, "8.8.8.8", base); n != 0 {
		t.Errorf("unknown ip count = %d, want 0", n)
	}
}

func TestRunHistoryReset(t *testing.T) {
	ctx := context.Background()
	h := NewRunHistory()

	if err := h.Record(ctx, "10.0.0.5", time.Now()); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := h.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	ips, err := h.IPs(ctx)
	if err != nil {
		t.Fatalf("IPs failed: %v", err)
	}
	if len(ips) != 0 {
		t.Errorf("expected empty history after reset, got %v", ips)
	}
}
