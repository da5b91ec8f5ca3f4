package scanner

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"nanitecraft.ai/internal/sim/field"
	"nanitecraft.ai/internal/sim/geom"
	"nanitecraft.ai/internal/sim/mining"
)

// YieldResolver maps a material id to what it yields. Materials without a yield are
// not reported as deposits.
type YieldResolver interface {
	Yield(material uint8) (mining.YieldDef, bool)
}

type Config struct {
	ID       string
	Owner    string
	FieldID  string
	Position geom.Vec3
	Range    float64
}

// Detector is an ore detector: it indexes the minable cells of one field within range
// and keeps the set of cells it has seen fully extracted.
//
// Rescan runs on the session loop goroutine; everything else is safe to call from
// collection workers.
type Detector struct {
	cfg    Config
	yields YieldResolver

	mu      sync.Mutex
	groups  []mining.DepositGroup
	indexed bool
	field   *field.Field
	gen     uint64
	mined   map[mining.CellKey]struct{}
}

func New(cfg Config, yields YieldResolver) *Detector {
	return &Detector{cfg: cfg, yields: yields, mined: map[mining.CellKey]struct{}{}}
}

func (d *Detector) ID() string          { return d.cfg.ID }
func (d *Detector) Owner() string       { return d.cfg.Owner }
func (d *Detector) FieldID() string     { return d.cfg.FieldID }
func (d *Detector) Position() geom.Vec3 { return d.cfg.Position }

// NeedsRescan reports whether the deposit cache is empty, either never built or cleared.
func (d *Detector) NeedsRescan() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.indexed
}

// Rescan rebuilds the deposit cache from f. Mined cells and cells whose material has
// no yield are left out. Groups are ordered by material id, cells by local position.
func (d *Detector) Rescan(f *field.Field) error {
	if f == nil || f.ID() != d.cfg.FieldID {
		return fmt.Errorf("scanner %s: field %s not available", d.cfg.ID, d.cfg.FieldID)
	}
	center := f.WorldToLocal(d.cfg.Position)
	reach := int(math.Ceil(d.cfg.Range / f.CellSize()))
	lo := f.Clamp(center.Add(geom.Splat(-reach)))
	hi := f.Clamp(center.Add(geom.Splat(reach)))
	r2 := d.cfg.Range * d.cfg.Range

	d.mu.Lock()
	mined := make(map[mining.CellKey]struct{}, len(d.mined))
	for k := range d.mined {
		mined[k] = struct{}{}
	}
	d.mu.Unlock()

	byMaterial := map[uint8]*mining.DepositGroup{}
	for z := lo.Z; z <= hi.Z; z++ {
		for y := lo.Y; y <= hi.Y; y++ {
			for x := lo.X; x <= hi.X; x++ {
				p := geom.Vec3i{X: x, Y: y, Z: z}
				content, material := f.Get(p)
				if content == 0 || material == 0 {
					continue
				}
				w := f.LocalToWorld(p)
				if geom.DistanceSquared(w, d.cfg.Position) > r2 {
					continue
				}
				if _, ok := mined[mining.CellKey{FieldID: f.ID(), Local: p}]; ok {
					continue
				}
				g, ok := byMaterial[material]
				if !ok {
					yd, ok := d.yields.Yield(material)
					if !ok {
						continue
					}
					g = &mining.DepositGroup{FieldID: f.ID(), MaterialID: material, Yield: yd}
					byMaterial[material] = g
				}
				g.Cells = append(g.Cells, mining.DepositCell{World: w, Local: p})
			}
		}
	}

	groups := make([]mining.DepositGroup, 0, len(byMaterial))
	for _, g := range byMaterial {
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].MaterialID < groups[j].MaterialID })

	d.mu.Lock()
	d.groups = groups
	d.indexed = true
	d.field = f
	d.gen = f.Generation()
	d.mu.Unlock()
	return nil
}

// DepositGroups returns the cached deposits. If the field was reshaped since the last
// rescan the error wraps mining.ErrIndexInvalidated.
func (d *Detector) DepositGroups() ([]mining.DepositGroup, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.indexed {
		return nil, nil
	}
	if d.field != nil && d.field.Generation() != d.gen {
		return nil, fmt.Errorf("scanner %s field %s gen %d != %d: %w", d.cfg.ID, d.cfg.FieldID, d.gen, d.field.Generation(), mining.ErrIndexInvalidated)
	}
	return d.groups, nil
}

func (d *Detector) ClearDeposits() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.groups = nil
	d.indexed = false
}

func (d *Detector) MarkMined(key mining.CellKey) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mined[key] = struct{}{}
}

func (d *Detector) IsMined(key mining.CellKey) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.mined[key]
	return ok
}

func (d *Detector) MinedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.mined)
}

// MinedPositions returns the mined set sorted by field then local position.
func (d *Detector) MinedPositions() []mining.CellKey {
	d.mu.Lock()
	out := make([]mining.CellKey, 0, len(d.mined))
	for k := range d.mined {
		out = append(out, k)
	}
	d.mu.Unlock()
	mining.SortKeys(out)
	return out
}

func (d *Detector) ClearMinedPositions() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mined = map[mining.CellKey]struct{}{}
}

// RestoreMined replaces the mined set and drops the deposit cache.
func (d *Detector) RestoreMined(keys []mining.CellKey) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mined = make(map[mining.CellKey]struct{}, len(keys))
	for _, k := range keys {
		d.mined[k] = struct{}{}
	}
	d.groups = nil
	d.indexed = false
}
