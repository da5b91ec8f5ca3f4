package mining

import (
	"testing"
	"time"

	"nanitecraft.ai/internal/sim/geom"
)

func TestCarryTime(t *testing.T) {
	b := fakeBudget{minTravel: 5 * time.Second, speed: 10}
	cases := []struct {
		name     string
		distance float64
		want     time.Duration
	}{
		{"min travel dominates", 20, 4 * time.Second},
		{"distance dominates", 100, 9 * time.Second},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CarryTime(tc.distance, b, DefaultCarryMargin); got != tc.want {
				t.Fatalf("carry=%v want %v", got, tc.want)
			}
		})
	}
}

func TestTracker_GatesOnCarryTimeAndThrottle(t *testing.T) {
	fx := &effectLog{}
	tr := NewTracker(TrackerConfig{}, fx)
	st := newStation("S1", geom.Vec3{}, fakeBudget{max: 1, minTravel: 5 * time.Second, speed: 10})
	target := ActiveTarget{Cell: ResourceCell{FieldID: "F1", World: geom.Vec3{X: 20}, Local: geom.Vec3i{X: 20}}, StationID: "S1"}
	key := target.Key()

	start := 10 * time.Second
	e := tr.Observe(target, []*Station{st}, start)
	if e == nil || e.State != StateInTransit {
		t.Fatalf("entry=%+v", e)
	}
	if e.CarryTime != 4*time.Second {
		t.Fatalf("carry=%v", e.CarryTime)
	}
	if len(fx.registered) != 1 {
		t.Fatalf("effects registered=%d want 1", len(fx.registered))
	}
	tr.Observe(target, []*Station{st}, start+time.Second)
	if len(fx.registered) != 1 {
		t.Fatalf("effect registered twice")
	}

	if tr.ShouldAttempt(key, start+3*time.Second) {
		t.Fatalf("attempt before carry time")
	}
	if !tr.ShouldAttempt(key, start+4*time.Second) {
		t.Fatalf("no attempt after carry time")
	}
	if tr.State(key) != StateExtracting {
		t.Fatalf("state=%s", tr.State(key))
	}
	if tr.ShouldAttempt(key, start+5*time.Second) {
		t.Fatalf("attempt within recheck interval")
	}
	if !tr.ShouldAttempt(key, start+6*time.Second) {
		t.Fatalf("no attempt after recheck interval")
	}

	tr.Cancel(key)
	if tr.Len() != 0 || tr.State(key) != StateUnlocked {
		t.Fatalf("entry not released")
	}
	if len(fx.cancelled) != 1 {
		t.Fatalf("effect not cancelled")
	}
}

func TestTracker_ShortCarryStillWaitsForRecheck(t *testing.T) {
	tr := NewTracker(TrackerConfig{}, nil)
	st := newStation("S1", geom.Vec3{}, fakeBudget{max: 1, minTravel: time.Second, speed: 100})
	target := ActiveTarget{Cell: ResourceCell{FieldID: "F1", World: geom.Vec3{X: 1}}, StationID: "S1"}

	tr.Observe(target, []*Station{st}, 0)
	if tr.ShouldAttempt(target.Key(), time.Second) {
		t.Fatalf("attempted before recheck interval since start")
	}
	if tr.State(target.Key()) != StateReady {
		t.Fatalf("state=%s want READY", tr.State(target.Key()))
	}
	if !tr.ShouldAttempt(target.Key(), 2*time.Second) {
		t.Fatalf("expected attempt at 2s")
	}
}

func TestTracker_EffectBudgetDoesNotBlockTracking(t *testing.T) {
	fx := &effectLog{budget: 1}
	tr := NewTracker(TrackerConfig{}, fx)
	st := newStation("S1", geom.Vec3{}, roomyBudget(4))
	for x := 0; x < 3; x++ {
		target := ActiveTarget{Cell: ResourceCell{FieldID: "F1", World: geom.Vec3{X: float64(x)}, Local: geom.Vec3i{X: x}}}
		if tr.Observe(target, []*Station{st}, 0) == nil {
			t.Fatalf("target %d not tracked", x)
		}
	}
	if tr.Len() != 3 || fx.dropped != 2 {
		t.Fatalf("tracked=%d dropped=%d", tr.Len(), fx.dropped)
	}
}

func TestNewTracker_DefaultsCarryMargin(t *testing.T) {
	st := newStation("S1", geom.Vec3{}, fakeBudget{max: 1, minTravel: 3 * time.Second, speed: 10})
	target := ActiveTarget{Cell: ResourceCell{FieldID: "F1", World: geom.Vec3{X: 1}, Local: geom.Vec3i{X: 1}}, StationID: "S1"}

	for _, margin := range []time.Duration{0, -time.Second} {
		tr := NewTracker(TrackerConfig{CarryMargin: margin}, &effectLog{})
		e := tr.Observe(target, []*Station{st}, 0)
		if e == nil || e.CarryTime != 2*time.Second {
			t.Fatalf("margin=%v entry=%+v want carry 2s", margin, e)
		}
	}

	tr := NewTracker(TrackerConfig{CarryMargin: 500 * time.Millisecond}, &effectLog{})
	if e := tr.Observe(target, []*Station{st}, 0); e == nil || e.CarryTime != 2500*time.Millisecond {
		t.Fatalf("explicit margin entry=%+v", e)
	}
}
