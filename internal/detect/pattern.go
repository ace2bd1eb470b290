// Package detect evaluates log lines against the rule registry and writes
// the resulting alerts into the alert store.
package detect

import (
	"context"
	"log/slog"
	"strings"

	"hostline-siem/internal/alertstore"
	"hostline-siem/internal/logsource"
	"hostline-siem/internal/rules"
)

// LineSource is the lazy, one-pass line stream both detectors consume.
type LineSource interface {
	Each(ctx context.Context, fn func(logsource.Line) error) error
}

// PatternScanner matches single lines against every non-windowed rule of
// the registry.
type PatternScanner struct {
	registry *rules.Registry
}

// NewPatternScanner creates a scanner over the given registry.
func NewPatternScanner(registry *rules.Registry) *PatternScanner {
	return &PatternScanner{registry: registry}
}

// Scan tests one line against every non-windowed rule, in registry order.
// Each matching rule yields an independent draft; a line may match several
// rules and no match suppresses another. When the rule's pattern has a
// first capture group, its value becomes the draft's source IP. Scan has
// no side effects.
func (s *PatternScanner) Scan(line, hostname string) []alertstore.Draft {
	var drafts []alertstore.Draft

	for _, rule := range s.registry.Rules() {
		if rule.Windowed() {
			continue
		}
		m := rule.Regexp().FindStringSubmatch(line)
		if m == nil {
			continue
		}

		draft := alertstore.Draft{
			Severity:    rule.Severity,
			Title:       rule.Name,
			Description: rule.Description,
			Hostname:    hostname,
			RuleID:      rule.ID,
			Techniques:  rule.Techniques,
			MatchedText: strings.TrimSpace(line),
		}
		if len(m) > 1 {
			draft.SourceIP = m[1]
		}
		drafts = append(drafts, draft)
	}
	return drafts
}

// RunPatterns scans the source once and inserts every draft, returning the
// number inserted. A store failure aborts the pass; source-level read
// failures are handled inside the source and skipped.
func RunPatterns(ctx context.Context, src LineSource, scanner *PatternScanner, store alertstore.Store, logger *slog.Logger) (int, error) {
	inserted := 0
	err := src.Each(ctx, func(line logsource.Line) error {
		for _, draft := range scanner.Scan(line.Raw, line.Hostname) {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := store.Insert(ctx, draft); err != nil {
				return err
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return inserted, err
	}
	logger.Info("pattern detection pass complete", "alerts", inserted)
	return inserted, nil
}
