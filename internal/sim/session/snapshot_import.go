package session

import (
	"fmt"

	"nanitecraft.ai/internal/persistence/snapshot"
	"nanitecraft.ai/internal/sim/field"
	"nanitecraft.ai/internal/sim/geom"
	"nanitecraft.ai/internal/sim/mining"
	"nanitecraft.ai/internal/sim/storage"
)

// ImportSnapshot restores a session exported by ExportSnapshot. It must be called
// before Run. Scanner caches are rebuilt on the next scan tick.
func (s *Session) ImportSnapshot(snap snapshot.SnapshotV1) error {
	if snap.Header.Version != snapshot.Version {
		return fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}

	for _, fv := range snap.Fields {
		f, ok := s.fields.Get(fv.ID)
		if !ok {
			return fmt.Errorf("snapshot field %q not in layout", fv.ID)
		}
		states := make([]field.ChunkState, 0, len(fv.Chunks))
		for _, c := range fv.Chunks {
			states = append(states, field.ChunkState{CX: c.CX, CY: c.CY, CZ: c.CZ, Content: c.Content, Material: c.Material})
		}
		if err := f.LoadChunks(states); err != nil {
			return err
		}
	}

	claims := make([]mining.ClaimEntry, 0, len(snap.Claims))
	for _, c := range snap.Claims {
		claims = append(claims, mining.ClaimEntry{Key: cellKey(c.Cell), StationID: c.Station})
	}
	s.registry.Restore(claims)

	for _, sv := range snap.Stations {
		st := s.stationByID[sv.ID]
		if st == nil {
			return fmt.Errorf("snapshot station %q not in layout", sv.ID)
		}
		st.budget.enabled = sv.Enabled
		st.budget.userCap = sv.UserTargetCap
		st.lastReason = sv.LastReason
		st.view.PotentialTargets = sv.PotentialTargets
		st.view.Active = st.view.Active[:0]
		for _, tv := range sv.Active {
			t := mining.ActiveTarget{
				Cell: mining.ResourceCell{
					FieldID:    tv.Cell.Field,
					World:      geom.Vec3FromArray(tv.World),
					Local:      geom.Vec3iFromArray(tv.Cell.Pos),
					MaterialID: tv.Material,
					Yield:      mining.YieldDef{ItemID: tv.ItemID, YieldRatio: tv.YieldRatio, ItemVolume: tv.ItemVolume},
				},
				ScannerID: tv.Scanner,
				StationID: sv.ID,
				ClaimedAt: tv.ClaimedAt,
			}
			st.view.Active = append(st.view.Active, t)
			if !tv.Tracked {
				continue
			}
			state, ok := parseLifecycleState(tv.State)
			if !ok {
				return fmt.Errorf("snapshot station %q target %v: bad state %q", sv.ID, tv.Cell.Pos, tv.State)
			}
			s.tracker.Restore(t.Key(), mining.TrackedTarget{
				State:       state,
				StationID:   sv.ID,
				StartTime:   tv.Start,
				CarryTime:   tv.Carry,
				LastAttempt: tv.LastAttempt,
			})
		}
	}

	for _, sc := range snap.Scanners {
		d := s.scannerByID[sc.ID]
		if d == nil {
			return fmt.Errorf("snapshot scanner %q not in layout", sc.ID)
		}
		keys := make([]mining.CellKey, 0, len(sc.Mined))
		for _, c := range sc.Mined {
			keys = append(keys, cellKey(c))
		}
		d.RestoreMined(keys)
	}

	for _, cv := range snap.Cargo {
		c := s.cargo[cv.ID]
		if c == nil {
			return fmt.Errorf("snapshot cargo %q not in layout", cv.ID)
		}
		items := make([]storage.ItemStack, 0, len(cv.Items))
		for _, it := range cv.Items {
			items = append(items, storage.ItemStack{Item: it.Item, Count: it.Count})
		}
		c.Restore(items)
		if cv.Removed {
			c.Remove()
		}
	}

	s.stats = newCounters()
	s.stats.claims = snap.Stats.Claims
	s.stats.completed = snap.Stats.Completed
	s.stats.cancelled = snap.Stats.Cancelled
	for k, v := range snap.Stats.Outcomes {
		s.stats.outcomes[k] = v
	}
	for k, v := range snap.Stats.Mined {
		s.stats.mined[k] = v
	}

	s.now = snap.SessionTime
	s.tick.Store(snap.Header.Tick + 1)
	s.publishMetrics()
	return nil
}

func cellKey(c snapshot.CellV1) mining.CellKey {
	return mining.CellKey{FieldID: c.Field, Local: geom.Vec3iFromArray(c.Pos)}
}

func parseLifecycleState(v string) (mining.LifecycleState, bool) {
	for st := mining.StateUnlocked; st <= mining.StateCancelled; st++ {
		if st.String() == v {
			return st, true
		}
	}
	return 0, false
}
