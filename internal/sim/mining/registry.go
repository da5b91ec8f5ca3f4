package mining

import (
	"sort"
	"sync"
)

// ClaimRegistry is the session-wide set of claimed cells. It is created once per
// session and shared by every station; collectors read it from worker goroutines,
// the scheduler writes it on the authoritative context.
//
// Entries are never removed when a target completes or is cancelled. Only a session
// reset (Reset) clears it.
type ClaimRegistry struct {
	mu     sync.RWMutex
	claims map[CellKey]string // cell -> claiming station
}

func NewClaimRegistry() *ClaimRegistry {
	return &ClaimRegistry{claims: map[CellKey]string{}}
}

// Claim records key for stationID. It reports false if the cell is already claimed.
func (r *ClaimRegistry) Claim(key CellKey, stationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.claims[key]; ok {
		return false
	}
	r.claims[key] = stationID
	return true
}

func (r *ClaimRegistry) Contains(key CellKey) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.claims[key]
	return ok
}

func (r *ClaimRegistry) Owner(key CellKey) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.claims[key]
	return id, ok
}

func (r *ClaimRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.claims)
}

type ClaimEntry struct {
	Key       CellKey
	StationID string
}

// Entries returns every claim in a stable order (field, x, y, z).
func (r *ClaimRegistry) Entries() []ClaimEntry {
	r.mu.RLock()
	out := make([]ClaimEntry, 0, len(r.claims))
	for k, id := range r.claims {
		out = append(out, ClaimEntry{Key: k, StationID: id})
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return lessKey(out[i].Key, out[j].Key) })
	return out
}

// Restore replaces the registry contents, e.g. when a snapshot is imported.
func (r *ClaimRegistry) Restore(entries []ClaimEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.claims = make(map[CellKey]string, len(entries))
	for _, e := range entries {
		r.claims[e.Key] = e.StationID
	}
}

func (r *ClaimRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.claims = map[CellKey]string{}
}

func lessKey(a, b CellKey) bool {
	if a.FieldID != b.FieldID {
		return a.FieldID < b.FieldID
	}
	if a.Local.X != b.Local.X {
		return a.Local.X < b.Local.X
	}
	if a.Local.Y != b.Local.Y {
		return a.Local.Y < b.Local.Y
	}
	return a.Local.Z < b.Local.Z
}

// SortKeys orders keys the same way Entries does.
func SortKeys(keys []CellKey) {
	sort.Slice(keys, func(i, j int) bool { return lessKey(keys[i], keys[j]) })
}
