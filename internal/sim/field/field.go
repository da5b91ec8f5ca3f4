package field

import (
	"crypto/sha256"
	"fmt"
	"math"
	"sort"
	"sync/atomic"

	"nanitecraft.ai/internal/sim/geom"
	"nanitecraft.ai/internal/sim/mining"
)

// Ore places seeded spherical clusters of one material inside the solid part of a field.
type Ore struct {
	MaterialID uint8 `yaml:"material"`
	Grid       int   `yaml:"grid"`
	Radius     int   `yaml:"radius"`
	Permille   int   `yaml:"permille"`
}

type Gen struct {
	Seed int64 `yaml:"seed"`
	// HostMaterial fills solid cells not covered by an ore cluster.
	HostMaterial uint8 `yaml:"host_material"`
	// SurfaceY is the mean local height of the surface; 0 means half the field height.
	SurfaceY int   `yaml:"surface_y"`
	Ores     []Ore `yaml:"ores"`
}

type Config struct {
	ID       string
	Origin   geom.Vec3
	Size     geom.Vec3i
	CellSize float64
	Gen      Gen
}

// Field is one chunked volumetric field. Cell data is accessed only from the session
// loop goroutine; Generation may be read from anywhere.
type Field struct {
	cfg    Config
	chunks map[ChunkKey]*Chunk

	generation atomic.Uint64
}

func New(cfg Config) (*Field, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("field: missing id")
	}
	if cfg.Size.X <= 0 || cfg.Size.Y <= 0 || cfg.Size.Z <= 0 {
		return nil, fmt.Errorf("field %s: bad size %s", cfg.ID, cfg.Size)
	}
	if cfg.CellSize <= 0 {
		cfg.CellSize = 1
	}
	if cfg.Gen.SurfaceY <= 0 {
		cfg.Gen.SurfaceY = cfg.Size.Y / 2
	}
	f := &Field{cfg: cfg, chunks: map[ChunkKey]*Chunk{}}
	f.generation.Store(1)
	return f, nil
}

func (f *Field) ID() string         { return f.cfg.ID }
func (f *Field) Size() geom.Vec3i   { return f.cfg.Size }
func (f *Field) Origin() geom.Vec3  { return f.cfg.Origin }
func (f *Field) CellSize() float64  { return f.cfg.CellSize }
func (f *Field) Generation() uint64 { return f.generation.Load() }

func (f *Field) InBounds(p geom.Vec3i) bool {
	return p.X >= 0 && p.Y >= 0 && p.Z >= 0 &&
		p.X < f.cfg.Size.X && p.Y < f.cfg.Size.Y && p.Z < f.cfg.Size.Z
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (f *Field) Clamp(p geom.Vec3i) geom.Vec3i {
	return geom.Vec3i{
		X: clampInt(p.X, 0, f.cfg.Size.X-1),
		Y: clampInt(p.Y, 0, f.cfg.Size.Y-1),
		Z: clampInt(p.Z, 0, f.cfg.Size.Z-1),
	}
}

func (f *Field) WorldToLocal(w geom.Vec3) geom.Vec3i {
	d := w.Sub(f.cfg.Origin)
	cs := f.cfg.CellSize
	return geom.Vec3i{
		X: int(math.Floor(d.X / cs)),
		Y: int(math.Floor(d.Y / cs)),
		Z: int(math.Floor(d.Z / cs)),
	}
}

// LocalToWorld returns the world position of the center of cell p.
func (f *Field) LocalToWorld(p geom.Vec3i) geom.Vec3 {
	cs := f.cfg.CellSize
	return f.cfg.Origin.Add(geom.Vec3{
		X: (float64(p.X) + 0.5) * cs,
		Y: (float64(p.Y) + 0.5) * cs,
		Z: (float64(p.Z) + 0.5) * cs,
	})
}

// Get returns content and material of p; cells outside the field are empty.
func (f *Field) Get(p geom.Vec3i) (content, material uint8) {
	if !f.InBounds(p) {
		return 0, 0
	}
	ch := f.chunkFor(p)
	return ch.Get(mod(p.X, ChunkSize), mod(p.Y, ChunkSize), mod(p.Z, ChunkSize))
}

func (f *Field) Set(p geom.Vec3i, content, material uint8) {
	if !f.InBounds(p) {
		return
	}
	ch := f.chunkFor(p)
	ch.Set(mod(p.X, ChunkSize), mod(p.Y, ChunkSize), mod(p.Z, ChunkSize), content, material)
}

func (f *Field) chunkFor(p geom.Vec3i) *Chunk {
	return f.getOrGenChunk(ChunkKey{
		CX: floorDiv(p.X, ChunkSize),
		CY: floorDiv(p.Y, ChunkSize),
		CZ: floorDiv(p.Z, ChunkSize),
	})
}

func (f *Field) getOrGenChunk(k ChunkKey) *Chunk {
	if ch, ok := f.chunks[k]; ok {
		return ch
	}
	ch := newChunk(k)
	f.generateChunk(ch)
	ch.dirty = true
	_ = ch.Digest()
	f.chunks[k] = ch
	return ch
}

// ReadRange reads the inclusive box [min, max]. Element 0 of the region is min and
// x varies fastest, then y, then z.
func (f *Field) ReadRange(min, max geom.Vec3i) (mining.Region, error) {
	if !f.InBounds(min) || !f.InBounds(max) {
		return mining.Region{}, fmt.Errorf("field %s: range %s..%s out of bounds %s", f.cfg.ID, min, max, f.cfg.Size)
	}
	if min.X > max.X || min.Y > max.Y || min.Z > max.Z {
		return mining.Region{}, fmt.Errorf("field %s: inverted range %s..%s", f.cfg.ID, min, max)
	}
	n := (max.X - min.X + 1) * (max.Y - min.Y + 1) * (max.Z - min.Z + 1)
	r := mining.Region{Min: min, Max: max, Content: make([]uint8, 0, n), Material: make([]uint8, 0, n)}
	for z := min.Z; z <= max.Z; z++ {
		for y := min.Y; y <= max.Y; y++ {
			for x := min.X; x <= max.X; x++ {
				c, m := f.Get(geom.Vec3i{X: x, Y: y, Z: z})
				r.Content = append(r.Content, c)
				r.Material = append(r.Material, m)
			}
		}
	}
	return r, nil
}

// Cut empties every cell whose center lies within radius of center. Cutting already
// empty cells changes nothing.
func (f *Field) Cut(center geom.Vec3, radius float64) {
	if radius <= 0 {
		p := f.WorldToLocal(center)
		if c, _ := f.Get(p); c != 0 {
			f.Set(p, 0, 0)
		}
		return
	}
	reach := int(math.Ceil(radius/f.cfg.CellSize)) + 1
	c := f.WorldToLocal(center)
	lo := f.Clamp(c.Add(geom.Splat(-reach)))
	hi := f.Clamp(c.Add(geom.Splat(reach)))
	r2 := radius * radius
	for z := lo.Z; z <= hi.Z; z++ {
		for y := lo.Y; y <= hi.Y; y++ {
			for x := lo.X; x <= hi.X; x++ {
				p := geom.Vec3i{X: x, Y: y, Z: z}
				if geom.DistanceSquared(f.LocalToWorld(p), center) > r2 {
					continue
				}
				if content, _ := f.Get(p); content != 0 {
					f.Set(p, 0, 0)
				}
			}
		}
	}
}

func (f *Field) LoadedChunkKeys() []ChunkKey {
	keys := make([]ChunkKey, 0, len(f.chunks))
	for k := range f.chunks {
		keys = append(keys, k)
	}
	sortKeys(keys)
	return keys
}

func sortKeys(keys []ChunkKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CX != keys[j].CX {
			return keys[i].CX < keys[j].CX
		}
		if keys[i].CY != keys[j].CY {
			return keys[i].CY < keys[j].CY
		}
		return keys[i].CZ < keys[j].CZ
	})
}

// Digest hashes every modified chunk in key order. Two fields with the same config and
// the same digest hold identical cells.
func (f *Field) Digest() [32]byte {
	h := sha256.New()
	for _, k := range f.LoadedChunkKeys() {
		ch := f.chunks[k]
		if !ch.modified {
			continue
		}
		d := ch.Digest()
		fmt.Fprintf(h, "%d,%d,%d:", k.CX, k.CY, k.CZ)
		h.Write(d[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Reset drops all chunks so they regenerate on next access and invalidates every
// index built against the field.
func (f *Field) Reset() {
	f.chunks = map[ChunkKey]*Chunk{}
	f.generation.Add(1)
}
