package session

import (
	"context"
	"errors"

	"nanitecraft.ai/internal/protocol"
	"nanitecraft.ai/internal/sim/mining"
)

type TickLogEntry struct {
	Tick     uint64                 `json:"tick"`
	TimeMs   int64                  `json:"time_ms"`
	Commands []string               `json:"commands,omitempty"`
	Events   []protocol.TargetEvent `json:"events,omitempty"`
	Digest   string                 `json:"digest"`
}

type AuditEntry struct {
	Tick     uint64  `json:"tick"`
	Station  string  `json:"station,omitempty"`
	Action   string  `json:"action"` // e.g. "COMPLETE", "CANCEL", "RESET_FIELD"
	Field    string  `json:"field,omitempty"`
	Pos      [3]int  `json:"pos"`
	Material uint8   `json:"material,omitempty"`
	Outcome  string  `json:"outcome,omitempty"`
	Item     string  `json:"item,omitempty"`
	Amount   float64 `json:"amount,omitempty"`
	Reason   string  `json:"reason,omitempty"`
}

func (s *Session) emit(kind string, t mining.ActiveTarget, out *mining.Outcome) {
	ev := protocol.TargetEvent{
		Tick:     s.tick.Load(),
		Kind:     kind,
		Station:  t.StationID,
		Scanner:  t.ScannerID,
		Field:    t.Cell.FieldID,
		Pos:      t.Cell.Local.ToArray(),
		World:    t.Cell.World.ToArray(),
		Material: t.Cell.MaterialID,
		Item:     t.Cell.Yield.ItemID,
	}
	if out != nil {
		ev.Outcome = out.Kind.String()
		if out.Kind == mining.OutcomeSuccess {
			ev.Amount = out.Amount
		}
	}
	s.tickEvents = append(s.tickEvents, ev)
	s.journal.append(ev)
}

func (s *Session) audit(e AuditEntry) {
	if s.auditLogger == nil {
		return
	}
	e.Tick = s.tick.Load()
	if err := s.auditLogger.WriteAudit(e); err != nil {
		s.log.Printf("audit tick=%d action=%s: %v", e.Tick, e.Action, err)
	}
}

func (s *Session) writeTickLog(tick uint64) {
	if s.tickLogger == nil {
		return
	}
	entry := TickLogEntry{
		Tick:   tick,
		TimeMs: s.now.Milliseconds(),
		Digest: s.stateDigest(tick),
	}
	if len(s.tickCmds) > 0 {
		entry.Commands = append([]string(nil), s.tickCmds...)
	}
	if len(s.tickEvents) > 0 {
		entry.Events = append([]protocol.TargetEvent(nil), s.tickEvents...)
	}
	if err := s.tickLogger.WriteTick(entry); err != nil {
		s.log.Printf("tick log tick=%d: %v", tick, err)
	}
}

const defaultJournalSize = 4096

// eventJournal keeps the most recent target events with monotonically increasing
// cursors. Cursor 0 means "from the oldest retained event".
type eventJournal struct {
	items []EventCursorItem
	max   int
	next  uint64
}

type EventCursorItem struct {
	Cursor uint64
	Event  protocol.TargetEvent
}

func newEventJournal(max int) *eventJournal {
	return &eventJournal{max: max, next: 1}
}

func (j *eventJournal) append(ev protocol.TargetEvent) {
	j.items = append(j.items, EventCursorItem{Cursor: j.next, Event: ev})
	j.next++
	if over := len(j.items) - j.max; over > 0 {
		j.items = append(j.items[:0], j.items[over:]...)
	}
}

// after returns up to limit events with a cursor greater than since, and the cursor
// to pass on the next call.
func (j *eventJournal) after(since uint64, limit int) ([]EventCursorItem, uint64) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	var out []EventCursorItem
	next := since
	for _, it := range j.items {
		if it.Cursor <= since {
			continue
		}
		out = append(out, it)
		next = it.Cursor
		if len(out) >= limit {
			break
		}
	}
	return out, next
}

type eventsReq struct {
	SinceCursor uint64
	Limit       int
	Resp        chan eventsResp
}

type eventsResp struct {
	Items      []EventCursorItem
	NextCursor uint64
}

// RequestEventsAfter reads the event journal from the session goroutine.
func (s *Session) RequestEventsAfter(ctx context.Context, sinceCursor uint64, limit int) ([]EventCursorItem, uint64, error) {
	if s == nil || s.eventsReq == nil {
		return nil, sinceCursor, errors.New("event query not available")
	}
	req := eventsReq{SinceCursor: sinceCursor, Limit: limit, Resp: make(chan eventsResp, 1)}
	select {
	case s.eventsReq <- req:
	case <-ctx.Done():
		return nil, sinceCursor, ctx.Err()
	}
	select {
	case resp := <-req.Resp:
		return resp.Items, resp.NextCursor, nil
	case <-ctx.Done():
		return nil, sinceCursor, ctx.Err()
	}
}

func (s *Session) handleEventsReq(req eventsReq) {
	items, next := s.journal.after(req.SinceCursor, req.Limit)
	select {
	case req.Resp <- eventsResp{Items: items, NextCursor: next}:
	default:
	}
}

type counters struct {
	claims      uint64
	completed   uint64
	cancelled   uint64
	distributed float64
	outcomes    map[string]uint64
	mined       map[string]float64
}

func newCounters() counters {
	return counters{outcomes: map[string]uint64{}, mined: map[string]float64{}}
}

func (c *counters) record(out mining.Outcome) {
	c.outcomes[out.Kind.String()]++
	if out.Kind == mining.OutcomeSuccess {
		c.mined[out.ItemID] += out.Amount
	}
}
