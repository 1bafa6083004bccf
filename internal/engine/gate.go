package engine

import "sync"

// Gate caps how many analysis runs may be active simultaneously for one
// domain. Admission is first-come-first-admitted up to the cap; there is
// no queueing, a run over the cap is rejected outright.
type Gate struct {
	mu     sync.Mutex
	cap    int
	active map[int64]int
}

// NewGate creates a gate with the given per-domain cap.
func NewGate(capacity int) *Gate {
	if capacity <= 0 {
		capacity = DefaultConcurrencyCap
	}
	return &Gate{cap: capacity, active: make(map[int64]int)}
}

// Admit reserves a run slot for the domain. It returns false, without
// incrementing the counter, when the domain is already at capacity.
func (g *Gate) Admit(domainID int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active[domainID] >= g.cap {
		return false
	}
	g.active[domainID]++
	return true
}

// Release frees a slot. Callers must defer it immediately after a
// successful Admit so the counter never leaks on error paths.
func (g *Gate) Release(domainID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active[domainID] <= 1 {
		delete(g.active, domainID)
		return
	}
	g.active[domainID]--
}

// Active returns the current active-run count for a domain.
func (g *Gate) Active(domainID int64) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active[domainID]
}
