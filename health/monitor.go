package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

// DefaultCheckTimeout bounds each check run by Monitor.Evaluate.
const DefaultCheckTimeout = 2 * time.Second

// Check reports the current health of one dependency.
type Check func(ctx context.Context) Status

// Monitor evaluates named checks on demand.
type Monitor struct {
	mu      sync.RWMutex
	checks  map[string]Check
	timeout time.Duration
}

// NewMonitor creates a monitor. A timeout <= 0 uses DefaultCheckTimeout.
func NewMonitor(timeout time.Duration) *Monitor {
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}
	return &Monitor{
		checks:  make(map[string]Check),
		timeout: timeout,
	}
}

// Register adds or replaces the check for name.
func (m *Monitor) Register(name string, check Check) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = check
}

// Remove removes the check for name.
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.checks, name)
}

// Names returns the registered check names, sorted.
func (m *Monitor) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.checks))
	for name := range m.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Evaluate runs every check and aggregates the results under systemName.
// Sub-statuses are ordered by check name.
func (m *Monitor) Evaluate(ctx context.Context, systemName string) Status {
	m.mu.RLock()
	names := make([]string, 0, len(m.checks))
	checks := make(map[string]Check, len(m.checks))
	for name, check := range m.checks {
		names = append(names, name)
		checks[name] = check
	}
	m.mu.RUnlock()
	sort.Strings(names)

	subs := make([]Status, 0, len(names))
	for _, name := range names {
		checkCtx, cancel := context.WithTimeout(ctx, m.timeout)
		status := checks[name](checkCtx)
		cancel()

		status.Component = name
		if status.Timestamp.IsZero() {
			status.Timestamp = time.Now()
		}
		subs = append(subs, status)
	}
	return Aggregate(systemName, subs)
}
