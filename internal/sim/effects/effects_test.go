package effects

import (
	"testing"

	"nanitecraft.ai/internal/sim/geom"
	"nanitecraft.ai/internal/sim/mining"
)

func fx(x int) mining.TransitEffect {
	return mining.TransitEffect{StationID: "S1", Target: mining.CellKey{FieldID: "F1", Local: geom.Vec3i{X: x}}}
}

func TestManager_BudgetDropsOverflow(t *testing.T) {
	m := NewManager(2)
	if !m.Register(fx(1)) || !m.Register(fx(2)) {
		t.Fatalf("registration within budget failed")
	}
	if m.Register(fx(3)) {
		t.Fatalf("registration over budget accepted")
	}
	// Re-registering a live effect replaces it.
	if !m.Register(fx(1)) {
		t.Fatalf("re-registration rejected")
	}
	st := m.Stats()
	if st.Active != 2 || st.Registered != 2 || st.Dropped != 1 {
		t.Fatalf("stats=%+v", st)
	}

	m.Complete(fx(1).Target)
	m.Cancel(fx(2).Target)
	m.Cancel(fx(3).Target) // never registered
	st = m.Stats()
	if st.Active != 0 || st.Completed != 1 || st.Cancelled != 1 {
		t.Fatalf("stats=%+v", st)
	}
	if !m.Register(fx(3)) {
		t.Fatalf("budget not released")
	}
}

func TestManager_SatisfiesSink(t *testing.T) {
	var _ mining.TransitEffectSink = NewManager(0)
	m := NewManager(0)
	m.Register(fx(2))
	m.Register(fx(1))
	got := m.Active()
	if len(got) != 2 || got[0].Target.Local.X != 1 {
		t.Fatalf("active=%+v", got)
	}
	m.Reset()
	if m.Stats().Active != 0 {
		t.Fatalf("reset left effects")
	}
}
