package log

import (
	"testing"
	"time"

	"nanitecraft.ai/internal/protocol"
	"nanitecraft.ai/internal/sim/session"
)

func TestTickLogger_WriteAndReadBack(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir)
	for i := uint64(0); i < 3; i++ {
		e := session.TickLogEntry{Tick: i, TimeMs: int64(i) * 50, Digest: "d"}
		if i == 1 {
			e.Events = []protocol.TargetEvent{{Tick: 1, Kind: protocol.EventClaim, Station: "S1"}}
		}
		if err := l.WriteTick(e); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	segs, err := Segments(TickDir(dir), "ticks")
	if err != nil {
		t.Fatalf("segments: %v", err)
	}
	if len(segs) == 0 {
		t.Fatalf("no segments written")
	}
	var got []session.TickLogEntry
	for _, p := range segs {
		if err := ReadJSONL(p, func(e session.TickLogEntry) error {
			got = append(got, e)
			return nil
		}); err != nil {
			t.Fatalf("read %s: %v", p, err)
		}
	}
	if len(got) != 3 {
		t.Fatalf("entries=%d want 3", len(got))
	}
	if got[1].Tick != 1 || len(got[1].Events) != 1 || got[1].Events[0].Station != "S1" {
		t.Fatalf("unexpected entry: %+v", got[1])
	}
}

func TestJSONLZstdWriter_RotatesPerHour(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "audit")
	base := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	cur := base
	w.now = func() time.Time { return cur }

	if err := w.Write(session.AuditEntry{Tick: 1, Action: "COMPLETE"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	cur = base.Add(2 * time.Minute)
	if err := w.Write(session.AuditEntry{Tick: 2, Action: "CANCEL"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	segs, err := Segments(dir, "audit")
	if err != nil {
		t.Fatalf("segments: %v", err)
	}
	if len(segs) != 2 {
		t.Fatalf("segments=%v want 2", segs)
	}
	if segs[0] != w.Path(base) {
		t.Fatalf("first segment=%s want %s", segs[0], w.Path(base))
	}
}
