package session

import (
	"nanitecraft.ai/internal/sim/geom"
	"nanitecraft.ai/internal/sim/layout"
	"nanitecraft.ai/internal/sim/mining"
	"nanitecraft.ai/internal/sim/storage"
	"nanitecraft.ai/internal/sim/tuning"
)

type stationState struct {
	spec   layout.StationSpec
	view   *mining.Station
	budget *Budget
	cargo  *storage.Cargo
	links  []storage.Container

	collector *mining.Collector
	// collecting is set while a collection job for the station is queued or running.
	collecting bool

	lastReason string
}

func newStationState(spec layout.StationSpec, m tuning.Mining, volumes storage.ItemVolumes) *stationState {
	st := &stationState{
		spec:   spec,
		budget: NewBudget(spec, m),
		cargo:  storage.NewCargo(spec.ID, spec.CargoCapacity, volumes),
	}
	st.view = &mining.Station{
		ID:       spec.ID,
		Owner:    spec.Owner,
		Position: geom.Vec3FromArray(spec.Position),
		Budget:   st.budget,
		Status:   st,
		Sink:     st.cargo,
	}
	return st
}

func (st *stationState) ReportInvalidTarget(reason string) { st.lastReason = reason }

// hasSpareCapacity reports whether a scheduling pass could claim anything.
func (st *stationState) hasSpareCapacity() bool {
	return st.budget.IsEnabled() && len(st.view.Candidates) > 0 && len(st.view.Active) < st.budget.MaxTargets()
}

func (st *stationState) status() StationStatus {
	return StationStatus{
		ID:               st.view.ID,
		Owner:            st.view.Owner,
		Enabled:          st.budget.IsEnabled(),
		Collecting:       st.collecting,
		Active:           len(st.view.Active),
		MaxTargets:       st.budget.MaxTargets(),
		UserTargetCap:    st.budget.UserTargetCap(),
		Candidates:       len(st.view.Candidates),
		PotentialTargets: st.view.PotentialTargets,
		LastReason:       st.lastReason,
		CargoFree:        st.cargo.FreeVolume(),
		Links:            len(st.links),
	}
}
