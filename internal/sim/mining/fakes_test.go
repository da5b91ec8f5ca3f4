package mining

import (
	"sync"
	"time"

	"nanitecraft.ai/internal/sim/geom"
)

type fakeScanner struct {
	mu      sync.Mutex
	id      string
	owner   string
	pos     geom.Vec3
	groups  []DepositGroup
	err     error
	mined   map[CellKey]struct{}
	clears  int
	mclears int
}

func newFakeScanner(id string, groups ...DepositGroup) *fakeScanner {
	return &fakeScanner{id: id, owner: "alice", groups: groups, mined: map[CellKey]struct{}{}}
}

func (s *fakeScanner) ID() string          { return s.id }
func (s *fakeScanner) Owner() string       { return s.owner }
func (s *fakeScanner) Position() geom.Vec3 { return s.pos }

func (s *fakeScanner) DepositGroups() ([]DepositGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.groups, nil
}

func (s *fakeScanner) ClearDeposits() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clears++
}

func (s *fakeScanner) MarkMined(key CellKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mined[key] = struct{}{}
}

func (s *fakeScanner) IsMined(key CellKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.mined[key]
	return ok
}

func (s *fakeScanner) MinedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.mined)
}

func (s *fakeScanner) MinedPositions() []CellKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CellKey, 0, len(s.mined))
	for k := range s.mined {
		out = append(out, k)
	}
	return out
}

func (s *fakeScanner) ClearMinedPositions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mined = map[CellKey]struct{}{}
	s.mclears++
}

var testYield = YieldDef{ItemID: "IRON_ORE", YieldRatio: 1, ItemVolume: 0.0037}

// group builds a deposit group of cells along +X starting at x0.
func group(field string, material uint8, x0, n int) DepositGroup {
	g := DepositGroup{FieldID: field, MaterialID: material, Yield: testYield}
	for i := 0; i < n; i++ {
		x := x0 + i
		g.Cells = append(g.Cells, DepositCell{
			World: geom.Vec3{X: float64(x), Y: 0, Z: 0},
			Local: geom.Vec3i{X: x, Y: 0, Z: 0},
		})
	}
	return g
}

type fakeBudget struct {
	max       int
	power     float64
	perTarget float64
	minTravel time.Duration
	speed     float64
	userCap   int
	disabled  bool
}

func (b fakeBudget) MaxTargets() int              { return b.max }
func (b fakeBudget) PowerBudget() float64         { return b.power }
func (b fakeBudget) PowerPerTarget() float64      { return b.perTarget }
func (b fakeBudget) MinTravelTime() time.Duration { return b.minTravel }
func (b fakeBudget) Speed() float64               { return b.speed }
func (b fakeBudget) UserTargetCap() int           { return b.userCap }
func (b fakeBudget) IsEnabled() bool              { return !b.disabled }

func roomyBudget(max int) fakeBudget {
	return fakeBudget{max: max, power: 1000, perTarget: 1, minTravel: 5 * time.Second, speed: 10}
}

type statusLog struct{ reasons []string }

func (s *statusLog) ReportInvalidTarget(reason string) { s.reasons = append(s.reasons, reason) }

func (s *statusLog) last() string {
	if len(s.reasons) == 0 {
		return ""
	}
	return s.reasons[len(s.reasons)-1]
}

func newStation(id string, pos geom.Vec3, b Budget) *Station {
	return &Station{ID: id, Owner: "alice", Position: pos, Budget: b, Status: &statusLog{}}
}

func candidates(g DepositGroup, scannerID string) []CandidateTarget {
	out := make([]CandidateTarget, 0, len(g.Cells))
	for _, c := range g.Cells {
		out = append(out, CandidateTarget{
			Cell:      ResourceCell{FieldID: g.FieldID, World: c.World, Local: c.Local, MaterialID: g.MaterialID, Yield: g.Yield},
			ScannerID: scannerID,
		})
	}
	return out
}

type fakeField struct {
	size     geom.Vec3i
	content  map[geom.Vec3i]uint8
	material map[geom.Vec3i]uint8
	cuts     int
	readErr  error
}

func newFakeField(size int) *fakeField {
	return &fakeField{
		size:     geom.Splat(size),
		content:  map[geom.Vec3i]uint8{},
		material: map[geom.Vec3i]uint8{},
	}
}

func (f *fakeField) WorldToLocal(w geom.Vec3) geom.Vec3i {
	return geom.Vec3i{X: int(w.X), Y: int(w.Y), Z: int(w.Z)}
}

func (f *fakeField) Clamp(v geom.Vec3i) geom.Vec3i {
	c := func(n, hi int) int {
		if n < 0 {
			return 0
		}
		if n > hi-1 {
			return hi - 1
		}
		return n
	}
	return geom.Vec3i{X: c(v.X, f.size.X), Y: c(v.Y, f.size.Y), Z: c(v.Z, f.size.Z)}
}

func (f *fakeField) ReadRange(lo, hi geom.Vec3i) (Region, error) {
	if f.readErr != nil {
		return Region{}, f.readErr
	}
	r := Region{Min: lo, Max: hi}
	for z := lo.Z; z <= hi.Z; z++ {
		for y := lo.Y; y <= hi.Y; y++ {
			for x := lo.X; x <= hi.X; x++ {
				p := geom.Vec3i{X: x, Y: y, Z: z}
				r.Content = append(r.Content, f.content[p])
				r.Material = append(r.Material, f.material[p])
			}
		}
	}
	return r, nil
}

func (f *fakeField) Cut(center geom.Vec3, radius float64) {
	f.cuts++
	p := f.WorldToLocal(center)
	f.content[p] = 0
}

type fakeStore map[string]*fakeField

func (s fakeStore) Lookup(id string) (Field, bool) {
	f, ok := s[id]
	if !ok {
		return nil, false
	}
	return f, true
}

type fakeSink struct {
	capacity  float64
	stored    float64
	deposits  int
	rejectAll bool
}

func (s *fakeSink) CanAccept(item string, amount float64) bool {
	return !s.rejectAll && s.stored+amount <= s.capacity
}

func (s *fakeSink) Deposit(item string, amount float64) bool {
	if !s.CanAccept(item, amount) {
		return false
	}
	s.stored += amount
	s.deposits++
	return true
}

type minedLog struct{ keys []CellKey }

func (m *minedLog) RecordMined(t ActiveTarget) { m.keys = append(m.keys, t.Key()) }

type effectLog struct {
	budget     int
	registered []TransitEffect
	dropped    int
	completed  []CellKey
	cancelled  []CellKey
}

func (e *effectLog) Register(fx TransitEffect) bool {
	if e.budget > 0 && len(e.registered) >= e.budget {
		e.dropped++
		return false
	}
	e.registered = append(e.registered, fx)
	return true
}

func (e *effectLog) Complete(key CellKey) { e.completed = append(e.completed, key) }
func (e *effectLog) Cancel(key CellKey)   { e.cancelled = append(e.cancelled, key) }
