package mining

import (
	"time"

	"nanitecraft.ai/internal/sim/geom"
)

type LifecycleState int

const (
	StateUnlocked LifecycleState = iota
	StateInTransit
	StateReady
	StateExtracting
	StateCompleted
	StateCancelled
)

func (s LifecycleState) String() string {
	switch s {
	case StateUnlocked:
		return "UNLOCKED"
	case StateInTransit:
		return "IN_TRANSIT"
	case StateReady:
		return "READY"
	case StateExtracting:
		return "EXTRACTING"
	case StateCompleted:
		return "COMPLETED"
	case StateCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

const (
	DefaultRecheckInterval = 2 * time.Second
	DefaultCarryMargin     = time.Second
)

var (
	effectStartColor = [4]float32{0.7, 0.2, 0.0, 1}
	effectEndColor   = [4]float32{0.2, 0.05, 0.0, 0.35}
)

type TrackedTarget struct {
	State       LifecycleState
	StationID   string
	StartTime   time.Duration
	CarryTime   time.Duration
	LastAttempt time.Duration
}

type TrackerConfig struct {
	RecheckInterval time.Duration
	CarryMargin     time.Duration
}

// Tracker holds per-target transit timing. Session time only advances on the
// authoritative context, so the tracker is never touched from elsewhere.
type Tracker struct {
	cfg     TrackerConfig
	effects TransitEffectSink
	entries map[CellKey]*TrackedTarget
}

func NewTracker(cfg TrackerConfig, effects TransitEffectSink) *Tracker {
	if cfg.RecheckInterval <= 0 {
		cfg.RecheckInterval = DefaultRecheckInterval
	}
	if cfg.CarryMargin <= 0 {
		cfg.CarryMargin = DefaultCarryMargin
	}
	return &Tracker{cfg: cfg, effects: effects, entries: map[CellKey]*TrackedTarget{}}
}

// CarryTime is max(minTravel, distance/speed) minus the safety margin.
func CarryTime(distance float64, b Budget, margin time.Duration) time.Duration {
	travel := b.MinTravelTime()
	if sp := b.Speed(); sp > 0 {
		if d := time.Duration(distance / sp * float64(time.Second)); d > travel {
			travel = d
		}
	}
	return travel - margin
}

// Observe makes sure t is tracked. The first observation starts the transit timer
// from the nearest station and asks for a transit effect.
func (tr *Tracker) Observe(t ActiveTarget, stations []*Station, now time.Duration) *TrackedTarget {
	key := t.Key()
	if e, ok := tr.entries[key]; ok {
		return e
	}
	nearest := NearestStation(stations, t.Cell.World)
	if nearest == nil {
		return nil
	}
	dist := geom.Distance(nearest.Position, t.Cell.World)
	e := &TrackedTarget{
		State:       StateInTransit,
		StationID:   t.StationID,
		StartTime:   now,
		CarryTime:   CarryTime(dist, nearest.Budget, tr.cfg.CarryMargin),
		LastAttempt: now,
	}
	tr.entries[key] = e

	if tr.effects != nil {
		tr.effects.Register(TransitEffect{
			StartColor: effectStartColor,
			EndColor:   effectEndColor,
			Duration:   nearest.Budget.MinTravelTime(),
			Speed:      nearest.Budget.Speed(),
			StationID:  nearest.ID,
			Target:     key,
			TargetPos:  t.Cell.World,
		})
	}
	return e
}

// ShouldAttempt reports whether an extraction may run now. It is true only once the
// carry time has elapsed and the previous attempt is at least the recheck interval old;
// a true result stamps the attempt.
func (tr *Tracker) ShouldAttempt(key CellKey, now time.Duration) bool {
	e, ok := tr.entries[key]
	if !ok {
		return false
	}
	if now-e.StartTime < e.CarryTime {
		return false
	}
	if e.State == StateInTransit {
		e.State = StateReady
	}
	if now-e.LastAttempt < tr.cfg.RecheckInterval {
		return false
	}
	e.LastAttempt = now
	e.State = StateExtracting
	return true
}

func (tr *Tracker) State(key CellKey) LifecycleState {
	if e, ok := tr.entries[key]; ok {
		return e.State
	}
	return StateUnlocked
}

func (tr *Tracker) Entry(key CellKey) (TrackedTarget, bool) {
	e, ok := tr.entries[key]
	if !ok {
		return TrackedTarget{}, false
	}
	return *e, true
}

func (tr *Tracker) Len() int { return len(tr.entries) }

// Complete releases the tracker entry and the transit effect of a finished target.
func (tr *Tracker) Complete(key CellKey) {
	tr.finish(key, StateCompleted)
	if tr.effects != nil {
		tr.effects.Complete(key)
	}
}

func (tr *Tracker) Cancel(key CellKey) {
	tr.finish(key, StateCancelled)
	if tr.effects != nil {
		tr.effects.Cancel(key)
	}
}

func (tr *Tracker) finish(key CellKey, state LifecycleState) {
	if e, ok := tr.entries[key]; ok {
		e.State = state
		delete(tr.entries, key)
	}
}

// Restore re-inserts an entry captured by a snapshot without registering an effect.
func (tr *Tracker) Restore(key CellKey, e TrackedTarget) {
	cp := e
	tr.entries[key] = &cp
}
