package detect

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"hostline-siem/internal/alertstore"
	"hostline-siem/internal/logsource"
	"hostline-siem/internal/rules"
)

// Clock selects which timestamp the window detector records per attempt.
type Clock string

const (
	// ClockWall stamps attempts with wall-clock time at scan. This is
	// the reference behavior and the default.
	ClockWall Clock = "wall"

	// ClockLine uses the parsed log line timestamp, falling back to
	// wall clock when the line carries none.
	ClockLine Clock = "line"
)

// WindowConfig configures the window detector.
type WindowConfig struct {
	Clock Clock  `yaml:"clock"`
	State string `yaml:"state"` // "run" (default) or "redis"
}

// AttemptHistory records failed-authentication attempts per source IP and
// counts those inside a trailing window. The run-scoped implementation is
// cleared at the start of each detection run; the Redis-backed one
// accumulates across runs.
type AttemptHistory interface {
	Reset(ctx context.Context) error
	Record(ctx context.Context, ip string, t time.Time) error
	IPs(ctx context.Context) ([]string, error)
	CountSince(ctx context.Context, ip string, cutoff time.Time) (int, error)
}

// WindowDetector groups failed-authentication lines by source IP and
// raises one alert per IP whose attempt count inside the trailing window
// meets the rule threshold. At most one alert per IP per run.
type WindowDetector struct {
	rule    *rules.Rule
	clock   Clock
	history AttemptHistory
	now     func() time.Time
	logger  *slog.Logger
}

// NewWindowDetector builds a detector for the given windowed rule. The
// rule must carry a threshold and window.
func NewWindowDetector(rule *rules.Rule, cfg WindowConfig, history AttemptHistory, logger *slog.Logger) (*WindowDetector, error) {
	if !rule.Windowed() {
		return nil, fmt.Errorf("detect: rule %q carries no threshold", rule.ID)
	}
	clock := cfg.Clock
	if clock == "" {
		clock = ClockWall
	}
	if history == nil {
		history = NewRunHistory()
	}
	return &WindowDetector{
		rule:    rule,
		clock:   clock,
		history: history,
		now:     time.Now,
		logger:  logger,
	}, nil
}

// Run scans the source once and returns the drafts to persist. The set of
// drafts is deterministic for a given input; iteration order over IP
// groups is normalized by sorting.
func (w *WindowDetector) Run(ctx context.Context, src LineSource) ([]alertstore.Draft, error) {
	if err := w.history.Reset(ctx); err != nil {
		return nil, err
	}

	re := w.rule.Regexp()
	err := src.Each(ctx, func(line logsource.Line) error {
		m := re.FindStringSubmatch(line.Raw)
		if m == nil || len(m) < 2 {
			return nil
		}
		return w.history.Record(ctx, m[1], w.attemptTime(line))
	})
	if err != nil {
		return nil, err
	}

	evalAt := w.now().UTC()
	cutoff := evalAt.Add(-time.Duration(w.rule.WindowSeconds) * time.Second)

	ips, err := w.history.IPs(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(ips)

	var drafts []alertstore.Draft
	for _, ip := range ips {
		count, err := w.history.CountSince(ctx, ip, cutoff)
		if err != nil {
			return nil, err
		}
		if count < w.rule.Threshold {
			continue
		}
		drafts = append(drafts, alertstore.Draft{
			Severity:    w.rule.Severity,
			Title:       w.rule.Name,
			Description: fmt.Sprintf("%d failed login attempts from %s", count, ip),
			SourceIP:    ip,
			RuleID:      w.rule.ID,
			Techniques:  w.rule.Techniques,
		})
	}

	if len(drafts) > 0 {
		w.logger.Info("window detection pass complete",
			"rule_id", w.rule.ID, "alerts", len(drafts))
	}
	return drafts, nil
}

func (w *WindowDetector) attemptTime(line logsource.Line) time.Time {
	if w.clock == ClockLine {
		if entry, err := logsource.ParseLine(line.Raw, line.Hostname, w.now()); err == nil {
			return entry.Timestamp
		}
	}
	return w.now().UTC()
}

// RunWindow runs the detector and inserts its drafts, returning the count
// inserted.
func RunWindow(ctx context.Context, src LineSource, detector *WindowDetector, store alertstore.Store) (int, error) {
	drafts, err := detector.Run(ctx, src)
	if err != nil {
		return 0, err
	}

	inserted := 0
	for _, draft := range drafts {
		if err := ctx.Err(); err != nil {
			return inserted, err
		}
		if _, err := store.Insert(ctx, draft); err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}
