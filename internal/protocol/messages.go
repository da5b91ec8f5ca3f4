package protocol

// Client -> Server. First message on the observer WS connection; may be re-sent to
// change the station filter.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	// Stations limits station states and events to these ids; empty means all.
	Stations []string `json:"stations,omitempty"`
	// IncludeEffects adds the live transit effects to every tick.
	IncludeEffects bool `json:"include_effects,omitempty"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	WorldID         string      `json:"world_id"`
	Tick            uint64      `json:"tick"`
	TickRateHz      int         `json:"tick_rate_hz"`
	Fields          []FieldInfo `json:"fields"`
	Stations        []string    `json:"stations"`
	Scanners        []string    `json:"scanners"`
}

type FieldInfo struct {
	ID       string     `json:"id"`
	Origin   [3]float64 `json:"origin"`
	Size     [3]int     `json:"size"`
	CellSize float64    `json:"cell_size"`
}

// Server -> Client. Sent every tick.
type TickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`

	Stations []StationState `json:"stations"`
	Events   []TargetEvent  `json:"events,omitempty"`
	Effects  []EffectState  `json:"effects,omitempty"`
}

type StationState struct {
	ID               string  `json:"id"`
	Owner            string  `json:"owner"`
	Enabled          bool    `json:"enabled"`
	Active           int     `json:"active"`
	MaxTargets       int     `json:"max_targets"`
	Candidates       int     `json:"candidates"`
	PotentialTargets int     `json:"potential_targets"`
	LastReason       string  `json:"last_reason,omitempty"`
	CargoFree        float64 `json:"cargo_free_m3"`
}

// Target event kinds.
const (
	EventClaim    = "CLAIM"
	EventComplete = "COMPLETE"
	EventCancel   = "CANCEL"
)

type TargetEvent struct {
	Tick     uint64     `json:"tick"`
	Kind     string     `json:"kind"`
	Station  string     `json:"station"`
	Scanner  string     `json:"scanner,omitempty"`
	Field    string     `json:"field"`
	Pos      [3]int     `json:"pos"`
	World    [3]float64 `json:"world"`
	Material uint8      `json:"material"`
	Outcome  string     `json:"outcome,omitempty"`
	Item     string     `json:"item,omitempty"`
	Amount   float64    `json:"amount,omitempty"`
}

type EffectState struct {
	Station    string     `json:"station"`
	Field      string     `json:"field"`
	Pos        [3]int     `json:"pos"`
	Target     [3]float64 `json:"target"`
	DurationMs int64      `json:"duration_ms"`
	Speed      float64    `json:"speed"`
	StartColor [4]float32 `json:"start_color"`
	EndColor   [4]float32 `json:"end_color"`
}
