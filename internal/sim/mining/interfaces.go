package mining

import (
	"time"

	"nanitecraft.ai/internal/sim/geom"
)

// ScannerFeed produces deposit groups and owns the set of cells it has seen fully extracted.
// Implementations must be safe for concurrent use: collection runs on worker goroutines.
type ScannerFeed interface {
	ID() string
	Owner() string
	Position() geom.Vec3

	// DepositGroups returns the cached deposits. An error wrapping ErrIndexInvalidated
	// means the cache no longer matches the field and must be cleared.
	DepositGroups() ([]DepositGroup, error)
	ClearDeposits()

	MarkMined(key CellKey)
	IsMined(key CellKey) bool
	MinedCount() int
	MinedPositions() []CellKey
	ClearMinedPositions()
}

type StorageSink interface {
	CanAccept(itemID string, amount float64) bool
	Deposit(itemID string, amount float64) bool
}

// Region is a clamped box of cells read from a field. Index 0 is the min corner.
type Region struct {
	Min      geom.Vec3i
	Max      geom.Vec3i
	Content  []uint8
	Material []uint8
}

func (r Region) Len() int { return len(r.Content) }

// Field is one volumetric field instance. None of its methods are reentrant;
// they may only be called from the authoritative context.
type Field interface {
	WorldToLocal(world geom.Vec3) geom.Vec3i
	Clamp(v geom.Vec3i) geom.Vec3i
	ReadRange(min, max geom.Vec3i) (Region, error)
	// Cut empties every cell within radius of center. Cutting empty cells is a no-op.
	Cut(center geom.Vec3, radius float64)
}

type FieldStore interface {
	Lookup(fieldID string) (Field, bool)
}

type TransitEffect struct {
	StartColor [4]float32
	EndColor   [4]float32
	Duration   time.Duration
	Speed      float64
	StationID  string
	Target     CellKey
	TargetPos  geom.Vec3
}

// TransitEffectSink is best effort. Register reports false when the effect was dropped.
type TransitEffectSink interface {
	Register(e TransitEffect) bool
	Complete(key CellKey)
	Cancel(key CellKey)
}

// Budget is the read-only view of a station's upgrade-derived limits.
type Budget interface {
	MaxTargets() int
	PowerBudget() float64
	PowerPerTarget() float64
	MinTravelTime() time.Duration
	Speed() float64
	// UserTargetCap is the operator-configured cap; 0 means no cap.
	UserTargetCap() int
	IsEnabled() bool
}

type StatusSink interface {
	ReportInvalidTarget(reason string)
}

// Relations decides whether a station owner may use a scanner owned by someone else.
type Relations interface {
	IsFriendly(stationOwner, scannerOwner string) bool
}

// MinedRecorder records a cell as fully extracted with the scanner that found it.
type MinedRecorder interface {
	RecordMined(t ActiveTarget)
}
