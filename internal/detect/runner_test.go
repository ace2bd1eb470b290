package detect

import (
	"context"
	"testing"

	"hostline-siem/internal/alertstore"
	"hostline-siem/internal/rules"
)

func TestRunnerCombinesPasses(t *testing.T) {
	ctx := context.Background()
	store := alertstore.NewMemory()

	runner, err := NewRunner(testRegistry(t), WindowConfig{}, NewRunHistory(), store, quietLogger())
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}

	lines := failedLogins("10.0.0.5", 6)
	lines = append(lines, "Accepted password for alice from 10.1.1.1")
	src := sourceOf("web01", lines...)

	summary, err := runner.Run(ctx, src)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.WindowAlerts != 1 {
		t.Errorf("window alerts = %d, want 1", summary.WindowAlerts)
	}
	if summary.PatternAlerts != 1 {
		t.Errorf("pattern alerts = %d, want 1", summary.PatternAlerts)
	}
	if summary.Total() != 2 {
		t.Errorf("total = %d, want 2", summary.Total())
	}
	if summary.Duration <= 0 {
		t.Error("duration should be positive")
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.ByStatus["open"] != 2 {
		t.Errorf("open alerts = %d, want 2", stats.ByStatus["open"])
	}
}

func TestRunnerPropagatesFirstError(t *testing.T) {
	runner, err := NewRunner(testRegistry(t), WindowConfig{}, NewRunHistory(), failingStore{}, quietLogger())
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}

	src := sourceOf("web01", failedLogins("10.0.0.5", 6)...)
	if _, err := runner.Run(context.Background(), src); err == nil {
		t.Fatal("expected store failure to surface")
	}
}

func TestRunnerNoWindowedRules(t *testing.T) {
	plain := []rules.Rule{
		{ID: "R-1", Name: "Errors", Severity: rules.SeverityMedium, Pattern: "error:"},
	}
	reg, err := rules.NewRegistry(plain)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	store := alertstore.NewMemory()
	runner, err := NewRunner(reg, WindowConfig{}, NewRunHistory(), store, quietLogger())
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}

	summary, err := runner.Run(context.Background(), sourceOf("h", "error: disk failure"))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.PatternAlerts != 1 || summary.WindowAlerts != 0 {
		t.Errorf("summary = %+v", summary)
	}
}
