package rules

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBuiltinRegistry(t *testing.T) {
	reg, err := NewRegistry(Builtin())
	if err != nil {
		t.Fatalf("NewRegistry(Builtin()) failed: %v", err)
	}

	if reg.Len() != 9 {
		t.Errorf("expected 9 builtin rules, got %d", reg.Len())
	}

	brute, ok := reg.Get(BruteForceRuleID)
	if !ok {
		t.Fatalf("expected rule %s", BruteForceRuleID)
	}
	if !brute.Windowed() {
		t.Error("brute force rule should be windowed")
	}
	if brute.Threshold != 5 {
		t.Errorf("expected threshold 5, got %d", brute.Threshold)
	}
	if brute.WindowSeconds != 300 {
		t.Errorf("expected window 300s, got %d", brute.WindowSeconds)
	}
	if brute.Severity != SeverityHigh {
		t.Errorf("expected HIGH severity, got %s", brute.Severity)
	}

	windowed := 0
	for _, r := range reg.Rules() {
		if r.Regexp() == nil {
			t.Errorf("rule %s has no compiled pattern", r.ID)
		}
		if r.Windowed() {
			windowed++
		}
	}
	if windowed != 1 {
		t.Errorf("expected exactly one windowed rule, got %d", windowed)
	}
}

func TestRegistryOrder(t *testing.T) {
	reg, err := NewRegistry(Builtin())
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	list := reg.Rules()
	if list[0].ID != BruteForceRuleID {
		t.Errorf("expected %s first, got %s", BruteForceRuleID, list[0].ID)
	}
	for i, r := range Builtin() {
		if list[i].ID != r.ID {
			t.Errorf("position %d: expected %s, got %s", i, r.ID, list[i].ID)
		}
	}
}

func TestCaseInsensitiveMatch(t *testing.T) {
	reg, err := NewRegistry(Builtin())
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	susp, _ := reg.Get("SUSP-001")

	tests := []struct {
		line string
		want bool
	}{
		{"Invalid user admin from 10.0.0.1", true},
		{"invalid user admin from 10.0.0.1", true},
		{"UNKNOWN USER root", true},
		{"known user session", false},
	}
	for _, tt := range tests {
		if got := susp.Regexp().MatchString(tt.line); got != tt.want {
			t.Errorf("match(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestNewRegistryErrors(t *testing.T) {
	tests := []struct {
		name string
		list []Rule
	}{
		{
			name: "duplicate id",
			list: []Rule{
				{ID: "R-1", Name: "a", Severity: SeverityLow, Pattern: "x"},
				{ID: "R-1", Name: "b", Severity: SeverityLow, Pattern: "y"},
			},
		},
		{
			name: "missing id",
			list: []Rule{
				{Name: "a", Severity: SeverityLow, Pattern: "x"},
			},
		},
		{
			name: "invalid severity",
			list: []Rule{
				{ID: "R-1", Name: "a", Severity: "URGENT", Pattern: "x"},
			},
		},
		{
			name: "bad pattern",
			list: []Rule{
				{ID: "R-1", Name: "a", Severity: SeverityLow, Pattern: "("},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRegistry(tt.list); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	content := `
- id: CUSTOM-001
  name: Custom rule
  severity: MEDIUM
  pattern: "custom event"
  techniques: ["T1000"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write rules file: %v", err)
	}

	extra, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if len(extra) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(extra))
	}

	reg, err := NewRegistry(append(Builtin(), extra...))
	if err != nil {
		t.Fatalf("NewRegistry with extra rules failed: %v", err)
	}
	if reg.Len() != 10 {
		t.Errorf("expected 10 rules, got %d", reg.Len())
	}
	if _, ok := reg.Get("CUSTOM-001"); !ok {
		t.Error("expected CUSTOM-001 in registry")
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSeverityValid(t *testing.T) {
	for _, s := range []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical} {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if Severity("INFO").Valid() {
		t.Error("INFO should not be valid")
	}
}
