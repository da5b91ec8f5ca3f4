package session

import (
	"nanitecraft.ai/internal/protocol"
	"nanitecraft.ai/internal/sim/mining"
)

func (s *Session) assign(st *stationState) {
	res := s.scheduler.Assign(st.view, s.views, s.now)
	for _, t := range res.Claimed {
		s.stats.claims++
		s.emit(protocol.EventClaim, t, nil)
	}
	if res.Dropped > 0 {
		s.log.Printf("assign station=%s: dropped %d candidates beyond max distance", st.view.ID, res.Dropped)
	}
}

// advanceTargets runs the lifecycle of every active target of every enabled station:
// track transit, then extract once the tracker lets it.
func (s *Session) advanceTargets() {
	for _, st := range s.stations {
		if !st.budget.IsEnabled() || len(st.view.Active) == 0 {
			continue
		}
		active := append([]mining.ActiveTarget(nil), st.view.Active...)
		for _, t := range active {
			if s.tracker.Observe(t, s.views, s.now) == nil {
				continue
			}
			if !s.tracker.ShouldAttempt(t.Key(), s.now) {
				continue
			}
			out := s.engine.Extract(t, st.cargo)
			s.stats.record(out)
			s.finishTarget(st, t, out, out.Completes())
		}
	}
}

// finishTarget releases the active-list slot and the tracker entry. The claim in the
// registry is kept either way.
func (s *Session) finishTarget(st *stationState, t mining.ActiveTarget, out mining.Outcome, complete bool) {
	key := t.Key()
	st.view.RemoveActive(key)
	kind := protocol.EventCancel
	if complete {
		s.tracker.Complete(key)
		s.stats.completed++
		kind = protocol.EventComplete
	} else {
		s.tracker.Cancel(key)
		s.stats.cancelled++
	}
	s.emit(kind, t, &out)

	e := AuditEntry{
		Station:  t.StationID,
		Action:   kind,
		Field:    t.Cell.FieldID,
		Pos:      t.Cell.Local.ToArray(),
		Material: out.MaterialID,
		Outcome:  out.Kind.String(),
		Item:     out.ItemID,
	}
	if out.Kind == mining.OutcomeSuccess {
		e.Amount = out.Amount
	}
	if out.Err != nil {
		e.Reason = out.Err.Error()
	}
	s.audit(e)
}

func (s *Session) distribute() {
	for _, st := range s.stations {
		if len(st.links) == 0 {
			continue
		}
		res, err := s.distributor.Distribute(st.cargo, st.links)
		st.links = res.Links
		s.stats.distributed += res.Moved
		if res.Pruned > 0 {
			s.log.Printf("distribute station=%s: pruned %d links", st.view.ID, res.Pruned)
		}
		if err != nil {
			s.log.Printf("distribute station=%s: %v", st.view.ID, err)
		}
	}
}
