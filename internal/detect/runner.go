package detect

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"hostline-siem/internal/alertstore"
	"hostline-siem/internal/rules"
)

// Summary reports the outcome of one detection run.
type Summary struct {
	PatternAlerts int           `json:"pattern_alerts"`
	WindowAlerts  int           `json:"window_alerts"`
	Duration      time.Duration `json:"duration"`
}

// Total returns the number of alerts raised by the run.
func (s Summary) Total() int {
	return s.PatternAlerts + s.WindowAlerts
}

// Runner drives one full detection run: the pattern pass and the window
// pass over the same source, both writing into the store. The passes read
// the source independently and run concurrently.
type Runner struct {
	scanner   *PatternScanner
	detectors []*WindowDetector
	store     alertstore.Store
	logger    *slog.Logger
}

// NewRunner builds a runner over the registry. Every windowed rule in the
// registry gets its own detector sharing the given history.
func NewRunner(registry *rules.Registry, cfg WindowConfig, history AttemptHistory, store alertstore.Store, logger *slog.Logger) (*Runner, error) {
	r := &Runner{
		scanner: NewPatternScanner(registry),
		store:   store,
		logger:  logger,
	}
	for _, rule := range registry.Rules() {
		if !rule.Windowed() {
			continue
		}
		d, err := NewWindowDetector(rule, cfg, history, logger)
		if err != nil {
			return nil, err
		}
		r.detectors = append(r.detectors, d)
	}
	return r, nil
}

// Run executes both passes and returns the combined summary. The first
// pass error wins; the other pass still runs to completion.
func (r *Runner) Run(ctx context.Context, src LineSource) (Summary, error) {
	start := time.Now()

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		summary    Summary
		firstError error
	)

	fail := func(err error) {
		mu.Lock()
		if firstError == nil {
			firstError = err
		}
		mu.Unlock()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		n, err := RunPatterns(ctx, src, r.scanner, r.store, r.logger)
		mu.Lock()
		summary.PatternAlerts = n
		mu.Unlock()
		if err != nil {
			fail(err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, d := range r.detectors {
			n, err := RunWindow(ctx, src, d, r.store)
			mu.Lock()
			summary.WindowAlerts += n
			mu.Unlock()
			if err != nil {
				fail(err)
				return
			}
		}
	}()

	wg.Wait()
	summary.Duration = time.Since(start)

	if firstError != nil {
		return summary, firstError
	}
	r.logger.Info("detection run complete",
		"pattern_alerts", summary.PatternAlerts,
		"window_alerts", summary.WindowAlerts,
		"duration", summary.Duration)
	return summary, nil
}
