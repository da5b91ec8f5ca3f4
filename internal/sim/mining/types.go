package mining

import (
	"time"

	"nanitecraft.ai/internal/sim/geom"
)

// CellKey is the stable identity of one cell: its field and local coordinate.
// Claims, trackers and mined-position sets are all keyed by it.
type CellKey struct {
	FieldID string
	Local   geom.Vec3i
}

func (k CellKey) String() string { return k.FieldID + k.Local.String() }

// YieldDef describes what a material turns into when a cell is extracted.
type YieldDef struct {
	ItemID     string  `json:"item_id"`
	YieldRatio float64 `json:"yield_ratio"`
	ItemVolume float64 `json:"item_volume"`
}

func (y YieldDef) Valid() bool {
	return y.ItemID != "" && y.YieldRatio > 0 && y.ItemVolume > 0
}

type ResourceCell struct {
	FieldID    string
	World      geom.Vec3
	Local      geom.Vec3i
	MaterialID uint8
	Yield      YieldDef
}

func (c ResourceCell) Key() CellKey { return CellKey{FieldID: c.FieldID, Local: c.Local} }

// CandidateTarget only lives in a station's candidate queue for one cycle.
type CandidateTarget struct {
	Cell      ResourceCell
	ScannerID string
}

type ActiveTarget struct {
	Cell      ResourceCell
	ScannerID string
	StationID string
	ClaimedAt time.Duration
}

func (t ActiveTarget) Key() CellKey { return t.Cell.Key() }

type DepositCell struct {
	World geom.Vec3
	Local geom.Vec3i
}

// DepositGroup is one scanner result: every cell of a single material in one field.
type DepositGroup struct {
	FieldID    string
	MaterialID uint8
	Yield      YieldDef
	Cells      []DepositCell
}

// Station is one extraction station as seen by the scheduler.
// Active and Candidates are mutated only on the authoritative context.
type Station struct {
	ID       string
	Owner    string
	Position geom.Vec3
	Budget   Budget
	Status   StatusSink
	Sink     StorageSink

	Active     []ActiveTarget
	Candidates []CandidateTarget

	// PotentialTargets is the size of the last candidate queue handed over by a scan.
	PotentialTargets int
}

func (s *Station) HasActive(key CellKey) bool {
	for _, t := range s.Active {
		if t.Key() == key {
			return true
		}
	}
	return false
}

func (s *Station) ActiveTarget(key CellKey) (ActiveTarget, bool) {
	for _, t := range s.Active {
		if t.Key() == key {
			return t, true
		}
	}
	return ActiveTarget{}, false
}

// RemoveActive drops key from the active list and reports whether it was present.
func (s *Station) RemoveActive(key CellKey) bool {
	for i, t := range s.Active {
		if t.Key() != key {
			continue
		}
		s.Active = append(s.Active[:i], s.Active[i+1:]...)
		return true
	}
	return false
}

// ReplaceCandidates swaps in a fresh queue; the previous one is discarded wholesale.
func (s *Station) ReplaceCandidates(c []CandidateTarget) {
	s.Candidates = c
	s.PotentialTargets = len(c)
}

func (s *Station) enabled() bool {
	return s != nil && s.Budget != nil && s.Budget.IsEnabled()
}

func (s *Station) report(reason string) {
	if s.Status != nil && reason != "" {
		s.Status.ReportInvalidTarget(reason)
	}
}
