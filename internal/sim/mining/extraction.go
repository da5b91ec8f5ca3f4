package mining

import (
	"fmt"
	"io"
	"log"
	"math"

	"nanitecraft.ai/internal/sim/geom"
)

// FullContent is the content level of a completely filled cell.
const FullContent = 255

type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeAlreadyEmpty
	OutcomeNoYield
	OutcomeNoSpace
	OutcomeEntityGone
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "SUCCESS"
	case OutcomeAlreadyEmpty:
		return "ALREADY_EMPTY"
	case OutcomeNoYield:
		return "NO_YIELD"
	case OutcomeNoSpace:
		return "NO_SPACE"
	case OutcomeEntityGone:
		return "ENTITY_GONE"
	default:
		return "UNKNOWN"
	}
}

type Outcome struct {
	Kind       OutcomeKind
	Amount     float64
	ItemID     string
	MaterialID uint8
	Err        error
}

// Completes reports whether the caller should complete (true) or cancel (false) the target.
func (o Outcome) Completes() bool {
	switch o.Kind {
	case OutcomeSuccess, OutcomeAlreadyEmpty, OutcomeNoYield:
		return true
	default:
		return false
	}
}

type EngineConfig struct {
	HarvestRatio float64
	CellVolume   float64
	CutRadius    float64
	RegionPad    int
	Logger       *log.Logger
}

// Engine runs the extraction transaction: bounded read, yield, deposit, cut.
// Extract must only run on the authoritative context.
type Engine struct {
	fields   FieldStore
	recorder MinedRecorder
	cfg      EngineConfig
	log      *log.Logger
}

func NewEngine(fields FieldStore, recorder MinedRecorder, cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if cfg.RegionPad < 0 {
		cfg.RegionPad = 0
	}
	return &Engine{fields: fields, recorder: recorder, cfg: cfg, log: logger}
}

// ComputeYield converts a raw content level into cubic meters and item count.
// The item count is rounded to six decimal places.
func ComputeYield(raw uint8, y YieldDef, cellVolume, harvestRatio float64) (cubicMeters, items float64) {
	cubicMeters = float64(raw) / FullContent * cellVolume * harvestRatio * y.YieldRatio
	if y.ItemVolume <= 0 {
		return cubicMeters, 0
	}
	items = math.Round(cubicMeters/y.ItemVolume*1e6) / 1e6
	return cubicMeters, items
}

func (e *Engine) Extract(t ActiveTarget, sink StorageSink) Outcome {
	cell := t.Cell

	field, ok := e.fields.Lookup(cell.FieldID)
	if !ok {
		e.log.Printf("extract station=%s field=%s pos=%s material=%d: field gone", t.StationID, cell.FieldID, cell.World, cell.MaterialID)
		return Outcome{Kind: OutcomeEntityGone, MaterialID: cell.MaterialID, Err: ErrEntityGone}
	}

	local := field.WorldToLocal(cell.World)
	pad := e.cfg.RegionPad
	lo := field.Clamp(local)
	hi := field.Clamp(local.Add(geom.Splat(pad)))

	region, err := field.ReadRange(lo, hi)
	if err != nil || region.Len() == 0 {
		if err == nil {
			err = fmt.Errorf("empty region %s..%s", lo, hi)
		}
		e.log.Printf("extract station=%s field=%s pos=%s material=%d: read: %v", t.StationID, cell.FieldID, cell.World, cell.MaterialID, err)
		return Outcome{Kind: OutcomeEntityGone, MaterialID: cell.MaterialID, Err: fmt.Errorf("%w: %v", ErrEntityGone, err)}
	}

	content := region.Content[0]
	material := region.Material[0]

	if content == 0 {
		e.log.Printf("extract station=%s field=%s pos=%s material=%d: content is empty", t.StationID, cell.FieldID, cell.World, material)
		e.recordMined(t)
		return Outcome{Kind: OutcomeAlreadyEmpty, MaterialID: material, Err: ErrAlreadyEmpty}
	}

	_, amount := ComputeYield(content, cell.Yield, e.cfg.CellVolume, e.cfg.HarvestRatio)
	if material == 0 || cell.Yield.ItemID == "" || amount == 0 {
		e.log.Printf("extract station=%s field=%s pos=%s material=%d amount=%g: no yield", t.StationID, cell.FieldID, cell.World, material, amount)
		e.recordMined(t)
		return Outcome{Kind: OutcomeNoYield, MaterialID: material, Err: ErrNoYield}
	}

	item := cell.Yield.ItemID
	if sink == nil || !sink.CanAccept(item, amount) || !sink.Deposit(item, amount) {
		e.log.Printf("extract station=%s field=%s pos=%s material=%d item=%s amount=%g: no free cargo space", t.StationID, cell.FieldID, cell.World, material, item, amount)
		return Outcome{Kind: OutcomeNoSpace, ItemID: item, MaterialID: material, Amount: amount, Err: ErrNoSpace}
	}

	field.Cut(cell.World, e.cfg.CutRadius)
	e.recordMined(t)
	e.log.Printf("extract station=%s field=%s pos=%s material=%d: deposited %g %s", t.StationID, cell.FieldID, cell.World, material, amount, item)
	return Outcome{Kind: OutcomeSuccess, ItemID: item, MaterialID: material, Amount: amount}
}

func (e *Engine) recordMined(t ActiveTarget) {
	if e.recorder != nil {
		e.recorder.RecordMined(t)
	}
}
