package alertstore

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-memory Store used by default in development and by the
// one-shot detection CLI. All operations hold the mutex for their full
// duration.
type Memory struct {
	mu     sync.Mutex
	nextID int64
	alerts []Alert
	strict bool
	now    func() time.Time
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithStrictLifecycle enforces open -> acknowledged -> closed (and
// open -> closed) as the only legal transitions.
func WithStrictLifecycle() MemoryOption {
	return func(m *Memory) { m.strict = true }
}

// WithClock overrides the store's clock. Used in tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// NewMemory creates an empty in-memory store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Insert implements Store.
func (m *Memory) Insert(ctx context.Context, draft Draft) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable("Insert", err)
	}
	if !draft.Severity.Valid() {
		return 0, &StoreError{Op: "Insert", Err: ErrInvalidDraft}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	ts := draft.Timestamp
	if ts.IsZero() {
		ts = m.now().UTC()
	}
	m.alerts = append(m.alerts, draft.Materialize(m.nextID, ts))
	return m.nextID, nil
}

// Get implements Store.
func (m *Memory) Get(ctx context.Context, id int64) (*Alert, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("Get", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.alerts {
		if m.alerts[i].ID == id {
			a := m.alerts[i]
			return &a, nil
		}
	}
	return nil, notFound("Get", id)
}

// Query implements Store. Results are ordered by timestamp descending,
// with the higher id first on equal timestamps.
func (m *Memory) Query(ctx context.Context, filter Filter) ([]Alert, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("Query", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	results := make([]Alert, 0, len(m.alerts))
	for i := range m.alerts {
		if filter.Matches(&m.alerts[i]) {
			results = append(results, m.alerts[i])
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Timestamp.Equal(results[j].Timestamp) {
			return results[i].ID > results[j].ID
		}
		return results[i].Timestamp.After(results[j].Timestamp)
	})

	return results, nil
}

// UpdateStatus implements Store.
func (m *Memory) UpdateStatus(ctx context.Context, id int64, status Status, acknowledgedBy string) error {
	if err := ctx.Err(); err != nil {
		return unavailable("UpdateStatus", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.alerts {
		if m.alerts[i].ID != id {
			continue
		}
		if m.strict && !legalTransition(m.alerts[i].Status, status) {
			return &StoreError{Op: "UpdateStatus", ID: id, Err: ErrIllegalTransition}
		}
		m.alerts[i].Status = status
		if acknowledgedBy != "" {
			now := m.now().UTC()
			m.alerts[i].AcknowledgedBy = acknowledgedBy
			m.alerts[i].AcknowledgedAt = &now
		}
		return nil
	}
	return notFound("UpdateStatus", id)
}

// Stats implements Store.
func (m *Memory) Stats(ctx context.Context) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, unavailable("Stats", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Stats{
		BySeverity: make(map[string]int),
		ByStatus:   make(map[string]int),
	}
	for i := range m.alerts {
		stats.BySeverity[string(m.alerts[i].Severity)]++
		stats.ByStatus[string(m.alerts[i].Status)]++
	}
	return stats, nil
}

// Close implements Store.
func (m *Memory) Close() error {
	return nil
}
