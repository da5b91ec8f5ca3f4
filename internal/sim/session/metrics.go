package session

import "nanitecraft.ai/internal/sim/effects"

// Metrics is a thread-safe read-only view of the session. It is replaced at the end
// of every step and read from HTTP handlers and tests.
type Metrics struct {
	SessionID     string `json:"session_id"`
	Tick          uint64 `json:"tick"`
	SessionTimeMs int64  `json:"session_time_ms"`

	Claims        int `json:"claims"`
	ActiveTargets int `json:"active_targets"`
	Tracked       int `json:"tracked"`
	Candidates    int `json:"candidates"`

	Completed   uint64             `json:"completed"`
	Cancelled   uint64             `json:"cancelled"`
	Outcomes    map[string]uint64  `json:"outcomes,omitempty"`
	Mined       map[string]float64 `json:"mined,omitempty"`
	Distributed float64            `json:"distributed"`

	Effects         effects.Stats `json:"effects"`
	QueueDepths     QueueDepths   `json:"queue_depths"`
	DroppedCommands uint64        `json:"dropped_commands"`
	Observers       int           `json:"observers"`
	LoadedChunks    int           `json:"loaded_chunks"`

	StepMS float64 `json:"step_ms"`

	Stations []StationStatus `json:"stations"`
}

type QueueDepths struct {
	Commands int `json:"commands"`
	Jobs     int `json:"jobs"`
}

type StationStatus struct {
	ID               string  `json:"id"`
	Owner            string  `json:"owner"`
	Enabled          bool    `json:"enabled"`
	Collecting       bool    `json:"collecting"`
	Active           int     `json:"active"`
	MaxTargets       int     `json:"max_targets"`
	UserTargetCap    int     `json:"user_target_cap"`
	Candidates       int     `json:"candidates"`
	PotentialTargets int     `json:"potential_targets"`
	LastReason       string  `json:"last_reason,omitempty"`
	CargoFree        float64 `json:"cargo_free_m3"`
	Links            int     `json:"links"`
}

func (s *Session) Metrics() Metrics {
	if s == nil {
		return Metrics{}
	}
	v := s.metrics.Load()
	if v == nil {
		return Metrics{}
	}
	m, ok := v.(Metrics)
	if !ok {
		return Metrics{}
	}
	return m
}

func (s *Session) publishMetrics() {
	m := Metrics{
		SessionID:       s.id,
		Tick:            s.tick.Load(),
		SessionTimeMs:   s.now.Milliseconds(),
		Claims:          s.registry.Len(),
		Tracked:         s.tracker.Len(),
		Completed:       s.stats.completed,
		Cancelled:       s.stats.cancelled,
		Outcomes:        make(map[string]uint64, len(s.stats.outcomes)),
		Mined:           make(map[string]float64, len(s.stats.mined)),
		Distributed:     s.stats.distributed,
		Effects:         s.effects.Stats(),
		QueueDepths:     QueueDepths{Commands: len(s.commands), Jobs: len(s.jobs)},
		DroppedCommands: s.droppedCmds.Load(),
		Observers:       len(s.observers),
		StepMS:          float64(s.lastStep.Microseconds()) / 1000,
	}
	for k, v := range s.stats.outcomes {
		m.Outcomes[k] = v
	}
	for k, v := range s.stats.mined {
		m.Mined[k] = v
	}
	for _, id := range s.fields.IDs() {
		if f, ok := s.fields.Get(id); ok {
			m.LoadedChunks += len(f.LoadedChunkKeys())
		}
	}
	m.Stations = make([]StationStatus, 0, len(s.stations))
	for _, st := range s.stations {
		m.ActiveTargets += len(st.view.Active)
		m.Candidates += len(st.view.Candidates)
		m.Stations = append(m.Stations, st.status())
	}
	s.metrics.Store(m)
}
