package effects

import (
	"sort"
	"sync"

	"nanitecraft.ai/internal/sim/mining"
)

// DefaultMaxEffects bounds concurrently visible transit effects across all stations.
const DefaultMaxEffects = 256

type Stats struct {
	Active     int    `json:"active"`
	Registered uint64 `json:"registered"`
	Dropped    uint64 `json:"dropped"`
	Completed  uint64 `json:"completed"`
	Cancelled  uint64 `json:"cancelled"`
}

// Manager keeps the set of live transit effects under a global budget. Registration
// beyond the budget is dropped; tracking of the target itself is unaffected.
type Manager struct {
	max int

	mu     sync.Mutex
	active map[mining.CellKey]mining.TransitEffect
	stats  Stats
}

func NewManager(max int) *Manager {
	if max <= 0 {
		max = DefaultMaxEffects
	}
	return &Manager{max: max, active: map[mining.CellKey]mining.TransitEffect{}}
}

func (m *Manager) Register(e mining.TransitEffect) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[e.Target]; ok {
		m.active[e.Target] = e
		return true
	}
	if len(m.active) >= m.max {
		m.stats.Dropped++
		return false
	}
	m.active[e.Target] = e
	m.stats.Registered++
	return true
}

func (m *Manager) Complete(key mining.CellKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[key]; ok {
		delete(m.active, key)
		m.stats.Completed++
	}
}

func (m *Manager) Cancel(key mining.CellKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[key]; ok {
		delete(m.active, key)
		m.stats.Cancelled++
	}
}

// Active returns the live effects ordered by target.
func (m *Manager) Active() []mining.TransitEffect {
	m.mu.Lock()
	out := make([]mining.TransitEffect, 0, len(m.active))
	for _, e := range m.active {
		out = append(out, e)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Target.String() < out[j].Target.String() })
	return out
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.Active = len(m.active)
	return s
}

// Reset drops every live effect without counting it as completed or cancelled.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = map[mining.CellKey]mining.TransitEffect{}
}
