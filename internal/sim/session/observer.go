package session

import (
	"encoding/json"

	"nanitecraft.ai/internal/protocol"
)

type ObserverJoinRequest struct {
	SessionID      string
	TickOut        chan []byte
	Stations       []string
	IncludeEffects bool
}

type ObserverSubscribeRequest struct {
	SessionID      string
	Stations       []string
	IncludeEffects bool
}

type observerClient struct {
	id             string
	tickOut        chan []byte
	stations       map[string]bool
	includeEffects bool
}

func (s *Session) ObserverJoin() chan<- ObserverJoinRequest           { return s.observerJoin }
func (s *Session) ObserverSubscribe() chan<- ObserverSubscribeRequest { return s.observerSub }
func (s *Session) ObserverLeave() chan<- string                       { return s.observerLeave }

func stationFilter(ids []string) map[string]bool {
	if len(ids) == 0 {
		return nil
	}
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

func (s *Session) handleObserverJoin(req ObserverJoinRequest) {
	if req.SessionID == "" || req.TickOut == nil {
		return
	}
	if old := s.observers[req.SessionID]; old != nil {
		close(old.tickOut)
	}
	s.observers[req.SessionID] = &observerClient{
		id:             req.SessionID,
		tickOut:        req.TickOut,
		stations:       stationFilter(req.Stations),
		includeEffects: req.IncludeEffects,
	}
}

func (s *Session) handleObserverSubscribe(req ObserverSubscribeRequest) {
	c := s.observers[req.SessionID]
	if c == nil {
		return
	}
	c.stations = stationFilter(req.Stations)
	c.includeEffects = req.IncludeEffects
}

func (s *Session) handleObserverLeave(id string) {
	c := s.observers[id]
	if c == nil {
		return
	}
	close(c.tickOut)
	delete(s.observers, id)
}

func (c *observerClient) wants(stationID string) bool {
	return c.stations == nil || c.stations[stationID]
}

func (s *Session) broadcastObservers(tick uint64) {
	if len(s.observers) == 0 {
		return
	}
	states := make([]protocol.StationState, 0, len(s.stations))
	for _, st := range s.stations {
		ss := st.status()
		states = append(states, protocol.StationState{
			ID:               ss.ID,
			Owner:            ss.Owner,
			Enabled:          ss.Enabled,
			Active:           ss.Active,
			MaxTargets:       ss.MaxTargets,
			Candidates:       ss.Candidates,
			PotentialTargets: ss.PotentialTargets,
			LastReason:       ss.LastReason,
			CargoFree:        ss.CargoFree,
		})
	}

	var fx []protocol.EffectState
	for _, e := range s.effects.Active() {
		fx = append(fx, protocol.EffectState{
			Station:    e.StationID,
			Field:      e.Target.FieldID,
			Pos:        e.Target.Local.ToArray(),
			Target:     e.TargetPos.ToArray(),
			DurationMs: e.Duration.Milliseconds(),
			Speed:      e.Speed,
			StartColor: e.StartColor,
			EndColor:   e.EndColor,
		})
	}

	for _, c := range s.observers {
		msg := protocol.TickMsg{
			Type:            protocol.TypeTick,
			ProtocolVersion: protocol.Version,
			Tick:            tick,
			Stations:        []protocol.StationState{},
		}
		for _, st := range states {
			if c.wants(st.ID) {
				msg.Stations = append(msg.Stations, st)
			}
		}
		for _, ev := range s.tickEvents {
			if c.wants(ev.Station) {
				msg.Events = append(msg.Events, ev)
			}
		}
		if c.includeEffects {
			for _, e := range fx {
				if c.wants(e.Station) {
					msg.Effects = append(msg.Effects, e)
				}
			}
		}
		b, err := json.Marshal(msg)
		if err != nil {
			s.log.Printf("observer %s tick=%d: marshal: %v", c.id, tick, err)
			continue
		}
		sendLatest(c.tickOut, b)
	}
}

// sendLatest never blocks the session goroutine: a slow observer loses its oldest frame.
func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
