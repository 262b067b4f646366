// Package pressure tracks an approximate memory-usage counter for the
// editor session and runs registered cleanup callbacks when usage
// crosses a configurable fraction of the ceiling.
package pressure

import (
	"log/slog"
	"sync"
)

// DefaultLimitBytes is the ceiling used when no limit is configured and
// no system memory figure is available.
const DefaultLimitBytes = 512 << 20

// DefaultThreshold is the usage fraction above which cleanup callbacks
// fire.
const DefaultThreshold = 0.8

// Config holds the monitor settings.
type Config struct {
	// LimitBytes is the memory ceiling. If 0 the limit is derived from
	// total system memory (half of it), falling back to
	// DefaultLimitBytes. Either way it is a soft heuristic, computed
	// once and never revisited.
	LimitBytes int64

	// Threshold is the used/limit fraction that triggers cleanup.
	// Defaults to DefaultThreshold.
	Threshold float64
}

// Stats is a snapshot of the tracked usage.
type Stats struct {
	Used       int64
	Limit      int64
	Percentage float64
	Available  int64
}

// Monitor keeps a running usage counter contributed to by the cache and
// the stream loader, and fires cleanup callbacks under pressure.
//
// The counter is approximate by design: contributors report estimated
// sizes, and the limit is a heuristic, not a hard allocation cap.
type Monitor struct {
	limit     int64
	threshold float64

	mu        sync.Mutex
	used      int64
	nextID    int
	callbacks []registration
}

type registration struct {
	id int
	fn func()
}

// New creates a Monitor. The limit is resolved once, at construction.
func New(cfg Config) *Monitor {
	limit := cfg.LimitBytes
	if limit <= 0 {
		limit = detectLimit()
	}
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	slog.Debug("Memory monitor initialized", "limit", limit, "threshold", threshold)
	return &Monitor{limit: limit, threshold: threshold}
}

// TrackUsage adds size to the usage counter and evaluates pressure.
// Every TrackUsage that lands above the threshold runs the callbacks;
// there is no edge latching.
func (m *Monitor) TrackUsage(size int64) {
	m.mu.Lock()
	m.used += size
	over := float64(m.used)/float64(m.limit) > m.threshold
	var fns []func()
	if over {
		fns = make([]func(), len(m.callbacks))
		for i, reg := range m.callbacks {
			fns[i] = reg.fn
		}
		slog.Warn("Memory pressure detected", "used", m.used, "limit", m.limit, "callbacks", len(fns))
	}
	m.mu.Unlock()

	for _, fn := range fns {
		runCallback(fn)
	}
}

// ReleaseUsage subtracts size from the usage counter, clamped at zero.
func (m *Monitor) ReleaseUsage(size int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.used -= size
	if m.used < 0 {
		m.used = 0
	}
}

// OnPressure registers a cleanup callback, invoked in registration
// order on every pressure trip. The returned function removes the
// registration; callers tied to short-lived UI components must call it
// to avoid leaking the callback.
func (m *Monitor) OnPressure(fn func()) (unregister func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.callbacks = append(m.callbacks, registration{id: id, fn: fn})

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, reg := range m.callbacks {
			if reg.id == id {
				m.callbacks = append(m.callbacks[:i], m.callbacks[i+1:]...)
				return
			}
		}
	}
}

// Stats returns a snapshot of the usage counters.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	available := m.limit - m.used
	if available < 0 {
		available = 0
	}
	return Stats{
		Used:       m.used,
		Limit:      m.limit,
		Percentage: float64(m.used) / float64(m.limit),
		Available:  available,
	}
}

// runCallback isolates one callback so a panic cannot abort the sweep.
func runCallback(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Cleanup callback panicked", "panic", r)
		}
	}()
	fn()
}
