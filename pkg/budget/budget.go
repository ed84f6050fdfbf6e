// Package budget implements the Token Budget Manager: a running
// total/used/overhead ledger that callers draw down as they allocate
// response tokens across episodes, entities, facts, and temporal
// context during recall assembly.
package budget

import "math"

// overheadRatio reserves a fraction of the total budget as headroom
// that allocate never hands out, absorbing response-shaping overhead
// (wrapper JSON, field names) not accounted for by per-item estimates.
const overheadRatio = 0.1

// exhaustedRatio is the available/total ratio below which the budget
// reports itself exhausted.
const exhaustedRatio = 0.05

// Manager tracks a token budget for one recall response.
type Manager struct {
	total    int
	used     int
	overhead int
}

// New builds a Manager with a 10% overhead reservation taken off the
// top of total.
func New(total int) *Manager {
	if total < 0 {
		total = 0
	}
	return &Manager{
		total:    total,
		overhead: int(math.Ceil(float64(total) * overheadRatio)),
	}
}

// Available returns the tokens left to allocate.
func (m *Manager) Available() int {
	avail := m.total - m.overhead - m.used
	if avail < 0 {
		return 0
	}
	return avail
}

// Allocate reserves n tokens if they fit within Available, returning
// false without mutating state when they don't.
func (m *Manager) Allocate(n int) bool {
	if n < 0 || n > m.Available() {
		return false
	}
	m.used += n
	return true
}

// Stats is a point-in-time snapshot of the budget's accounting.
type Stats struct {
	Total       int
	Used        int
	Available   int
	Overhead    int
	PercentUsed float64
}

// GetStats returns the current accounting snapshot.
func (m *Manager) GetStats() Stats {
	var pct float64
	if m.total > 0 {
		pct = float64(m.used) / float64(m.total)
	}
	return Stats{
		Total:       m.total,
		Used:        m.used,
		Available:   m.Available(),
		Overhead:    m.overhead,
		PercentUsed: pct,
	}
}

// IsExhausted reports whether less than 5% of the total budget remains
// available.
func (m *Manager) IsExhausted() bool {
	if m.total <= 0 {
		return true
	}
	return float64(m.Available())/float64(m.total) < exhaustedRatio
}
