package session

import (
	"sort"

	"nanitecraft.ai/internal/persistence/snapshot"
	"nanitecraft.ai/internal/sim/mining"
)

// ExportSnapshot captures the session after tick has been applied. It must run on the
// session goroutine.
func (s *Session) ExportSnapshot(tick uint64) snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version:   snapshot.Version,
			WorldID:   s.cfg.ID,
			SessionID: s.id,
			Tick:      tick,
		},
		Seed:        s.cfg.Seed,
		TickRateHz:  s.tune.TickRateHz,
		SessionTime: s.now,
	}

	for _, id := range s.fields.IDs() {
		f, _ := s.fields.Get(id)
		fv := snapshot.FieldV1{ID: id, Generation: f.Generation()}
		for _, c := range f.ModifiedChunks() {
			fv.Chunks = append(fv.Chunks, snapshot.ChunkV1{CX: c.CX, CY: c.CY, CZ: c.CZ, Content: c.Content, Material: c.Material})
		}
		snap.Fields = append(snap.Fields, fv)
	}

	for _, e := range s.registry.Entries() {
		snap.Claims = append(snap.Claims, snapshot.ClaimV1{Cell: cellV1(e.Key), Station: e.StationID})
	}

	for _, st := range s.stations {
		sv := snapshot.StationV1{
			ID:               st.view.ID,
			Enabled:          st.budget.enabled,
			UserTargetCap:    st.budget.userCap,
			LastReason:       st.lastReason,
			PotentialTargets: st.view.PotentialTargets,
		}
		for _, t := range st.view.Active {
			sv.Active = append(sv.Active, s.targetV1(t))
		}
		snap.Stations = append(snap.Stations, sv)
	}

	for _, d := range s.scanners {
		sc := snapshot.ScannerV1{ID: d.ID()}
		for _, k := range d.MinedPositions() {
			sc.Mined = append(sc.Mined, cellV1(k))
		}
		snap.Scanners = append(snap.Scanners, sc)
	}

	ids := make([]string, 0, len(s.cargo))
	for id := range s.cargo {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		c := s.cargo[id]
		cv := snapshot.CargoV1{ID: id, Removed: !c.Valid()}
		for _, it := range c.InventoryList() {
			cv.Items = append(cv.Items, snapshot.StackV1{Item: it.Item, Count: it.Count})
		}
		snap.Cargo = append(snap.Cargo, cv)
	}

	snap.Stats = snapshot.StatsV1{
		Claims:    s.stats.claims,
		Completed: s.stats.completed,
		Cancelled: s.stats.cancelled,
		Outcomes:  map[string]uint64{},
		Mined:     map[string]float64{},
	}
	for k, v := range s.stats.outcomes {
		snap.Stats.Outcomes[k] = v
	}
	for k, v := range s.stats.mined {
		snap.Stats.Mined[k] = v
	}
	return snap
}

func cellV1(k mining.CellKey) snapshot.CellV1 {
	return snapshot.CellV1{Field: k.FieldID, Pos: k.Local.ToArray()}
}

func (s *Session) targetV1(t mining.ActiveTarget) snapshot.TargetV1 {
	tv := snapshot.TargetV1{
		Cell:       cellV1(t.Key()),
		World:      t.Cell.World.ToArray(),
		Material:   t.Cell.MaterialID,
		ItemID:     t.Cell.Yield.ItemID,
		YieldRatio: t.Cell.Yield.YieldRatio,
		ItemVolume: t.Cell.Yield.ItemVolume,
		Scanner:    t.ScannerID,
		ClaimedAt:  t.ClaimedAt,
	}
	if e, ok := s.tracker.Entry(t.Key()); ok {
		tv.Tracked = true
		tv.State = e.State.String()
		tv.Start = e.StartTime
		tv.Carry = e.CarryTime
		tv.LastAttempt = e.LastAttempt
	}
	return tv
}
