package mining

import (
	"io"
	"log"
	"time"

	"nanitecraft.ai/internal/sim/geom"
)

type SchedulerConfig struct {
	MaxDistance float64
	Logger      *log.Logger
}

// Scheduler turns a station's candidate queue into claims. Assign must run on the
// authoritative context: it mutates the registry and the station's active list.
type Scheduler struct {
	registry *ClaimRegistry
	cfg      SchedulerConfig
	log      *log.Logger
}

type AssignResult struct {
	Claimed []ActiveTarget
	Dropped int
	Reason  string
}

func NewScheduler(registry *ClaimRegistry, cfg SchedulerConfig) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Scheduler{registry: registry, cfg: cfg, log: logger}
}

// Assign walks st.Candidates in order and claims what the station's budgets allow.
// stations is every station sharing the world, st included. Candidates that are
// claimed or permanently out of reach leave the queue; the rest stay for later passes.
func (s *Scheduler) Assign(st *Station, stations []*Station, now time.Duration) AssignResult {
	var res AssignResult
	if !st.enabled() {
		return res
	}

	maxTargets := st.Budget.MaxTargets()
	if len(st.Active) >= maxTargets {
		if len(st.Candidates) > 0 {
			res.Reason = ReasonMaxTargets
			st.report(res.Reason)
		}
		return res
	}

	count := len(st.Active)
	used := map[CellKey]struct{}{}
	keep := make([]CandidateTarget, 0, len(st.Candidates))
	stopped := false

	for _, c := range st.Candidates {
		if stopped {
			keep = append(keep, c)
			continue
		}
		key := c.Cell.Key()
		if st.HasActive(key) {
			continue
		}
		if _, dup := used[key]; dup || s.registry.Contains(key) {
			res.Reason = ReasonAlreadyTargeted
			keep = append(keep, c)
			continue
		}
		if !hasPowerFor(st.Budget, count+1) {
			res.Reason = ReasonInsufficientPower
			keep = append(keep, c)
			stopped = true
			continue
		}
		if claimedBySibling(st, stations, key) {
			res.Reason = ReasonOtherStation
			keep = append(keep, c)
			continue
		}

		nearest := NearestStation(stations, c.Cell.World)
		maxD := s.cfg.MaxDistance
		if nearest == nil || (maxD > 0 && geom.DistanceSquared(nearest.Position, c.Cell.World) >= maxD*maxD) {
			res.Dropped++
			continue
		}
		used[key] = struct{}{}

		if capReached(st.Budget, count) {
			res.Reason = ReasonUserLimit
			keep = append(keep, c)
			continue
		}
		if !s.registry.Claim(key, st.ID) {
			res.Reason = ReasonAlreadyTargeted
			continue
		}
		t := ActiveTarget{Cell: c.Cell, ScannerID: c.ScannerID, StationID: st.ID, ClaimedAt: now}
		st.Active = append(st.Active, t)
		res.Claimed = append(res.Claimed, t)
		s.log.Printf("claim station=%s field=%s pos=%s world=%s material=%d item=%s",
			st.ID, c.Cell.FieldID, c.Cell.Local, c.Cell.World, c.Cell.MaterialID, c.Cell.Yield.ItemID)

		count++
		if count >= maxTargets {
			stopped = true
		}
	}

	st.Candidates = keep
	if res.Reason != "" {
		st.report(res.Reason)
	}
	return res
}

func hasPowerFor(b Budget, targets int) bool {
	return float64(targets)*b.PowerPerTarget() <= b.PowerBudget()
}

func capReached(b Budget, count int) bool {
	limit := b.UserTargetCap()
	return limit > 0 && count >= limit
}

func claimedBySibling(st *Station, stations []*Station, key CellKey) bool {
	for _, o := range stations {
		if o == nil || o == st {
			continue
		}
		if o.HasActive(key) {
			return true
		}
	}
	return false
}

// NearestStation returns the closest enabled station to pos, or nil if none is enabled.
func NearestStation(stations []*Station, pos geom.Vec3) *Station {
	var best *Station
	bestD := 0.0
	for _, st := range stations {
		if !st.enabled() {
			continue
		}
		d := geom.DistanceSquared(st.Position, pos)
		if best == nil || d < bestD {
			best = st
			bestD = d
		}
	}
	return best
}
