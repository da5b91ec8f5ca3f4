package mining

import (
	"errors"
	"io"
	"log"
	"math/rand/v2"

	"nanitecraft.ai/internal/sim/geom"
)

// DefaultStallCycles is how many consecutive cycles a scanner's mined count may stay
// unchanged (while nonzero) before its deposit cache is forced to rescan.
const DefaultStallCycles = 20

type CollectorConfig struct {
	MaxDistance float64
	StallCycles int
	Relations   Relations
	Logger      *log.Logger
}

// Collector builds one station's candidate queue. Each station owns one collector;
// a collector is not safe for concurrent Collect calls.
type Collector struct {
	stationID string
	owner     string
	pos       geom.Vec3

	registry *ClaimRegistry
	cfg      CollectorConfig
	rng      *rand.Rand
	log      *log.Logger

	stall map[string]*stallState
}

type stallState struct {
	lastMined int
	run       int
}

func NewCollector(st *Station, registry *ClaimRegistry, cfg CollectorConfig, rng *rand.Rand) *Collector {
	if cfg.StallCycles <= 0 {
		cfg.StallCycles = DefaultStallCycles
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Collector{
		stationID: st.ID,
		owner:     st.Owner,
		pos:       st.Position,
		registry:  registry,
		cfg:       cfg,
		rng:       rng,
		log:       logger,
		stall:     map[string]*stallState{},
	}
}

func (c *Collector) inRange(p geom.Vec3) bool {
	if c.cfg.MaxDistance <= 0 {
		return true
	}
	return geom.DistanceSquared(c.pos, p) <= c.cfg.MaxDistance*c.cfg.MaxDistance
}

func (c *Collector) friendly(s ScannerFeed) bool {
	if c.cfg.Relations == nil {
		return s.Owner() == c.owner
	}
	return c.cfg.Relations.IsFriendly(c.owner, s.Owner())
}

// Collect runs one scan cycle and returns a freshly shuffled, deduplicated candidate
// queue. Scanner failures only affect that scanner's batch.
func (c *Collector) Collect(scanners []ScannerFeed) []CandidateTarget {
	var out []CandidateTarget
	seen := map[CellKey]struct{}{}

	for _, s := range scanners {
		if s == nil || !c.inRange(s.Position()) || !c.friendly(s) {
			continue
		}

		groups, err := s.DepositGroups()
		if err != nil {
			if errors.Is(err, ErrIndexInvalidated) {
				c.log.Printf("collector station=%s scanner=%s: %v; forcing rescan", c.stationID, s.ID(), err)
			} else {
				c.log.Printf("collector station=%s scanner=%s: deposit groups: %v", c.stationID, s.ID(), err)
			}
			s.ClearDeposits()
			continue
		}

		total := 0
		for _, g := range groups {
			total += len(g.Cells)
		}
		if total == 0 && s.MinedCount() > 0 {
			c.log.Printf("collector station=%s scanner=%s: no minable deposits left, clearing cache and %d mined positions", c.stationID, s.ID(), s.MinedCount())
			s.ClearMinedPositions()
			s.ClearDeposits()
			delete(c.stall, s.ID())
			continue
		}

		for _, g := range groups {
			for _, dc := range g.Cells {
				cell := ResourceCell{
					FieldID:    g.FieldID,
					World:      dc.World,
					Local:      dc.Local,
					MaterialID: g.MaterialID,
					Yield:      g.Yield,
				}
				key := cell.Key()
				if _, dup := seen[key]; dup {
					continue
				}
				if c.registry.Contains(key) || s.IsMined(key) {
					continue
				}
				seen[key] = struct{}{}
				out = append(out, CandidateTarget{Cell: cell, ScannerID: s.ID()})
			}
		}

		c.checkStall(s)
	}

	c.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func (c *Collector) checkStall(s ScannerFeed) {
	st := c.stall[s.ID()]
	if st == nil {
		st = &stallState{}
		c.stall[s.ID()] = st
	}
	mined := s.MinedCount()
	if mined > 0 && mined == st.lastMined {
		st.run++
	} else {
		st.lastMined = mined
		st.run = 0
		if mined > 0 {
			st.run = 1
		}
	}
	if st.run > c.cfg.StallCycles {
		c.log.Printf("collector station=%s scanner=%s: mined count stuck at %d for %d cycles, clearing deposits", c.stationID, s.ID(), mined, st.run)
		s.ClearDeposits()
		st.run = 0
	}
}
