package mining

import (
	"sync"
	"testing"
	"time"

	"nanitecraft.ai/internal/sim/geom"
)

func TestScheduler_ClaimsUpToMaximum(t *testing.T) {
	reg := NewClaimRegistry()
	s := NewScheduler(reg, SchedulerConfig{MaxDistance: 500})
	st := newStation("S1", geom.Vec3{}, roomyBudget(3))
	st.ReplaceCandidates(candidates(group("F1", 3, 0, 10), "D1"))

	res := s.Assign(st, []*Station{st}, time.Second)
	if len(res.Claimed) != 3 || len(st.Active) != 3 {
		t.Fatalf("claimed=%d active=%d want 3", len(res.Claimed), len(st.Active))
	}
	if reg.Len() != 3 {
		t.Fatalf("registry len=%d want 3", reg.Len())
	}
	if len(st.Candidates) != 7 {
		t.Fatalf("remaining candidates=%d want 7", len(st.Candidates))
	}

	// A full station does not consume its queue.
	res = s.Assign(st, []*Station{st}, 2*time.Second)
	if len(res.Claimed) != 0 || res.Reason != ReasonMaxTargets {
		t.Fatalf("second pass: claimed=%d reason=%q", len(res.Claimed), res.Reason)
	}
	if len(st.Candidates) != 7 {
		t.Fatalf("queue consumed while full: %d", len(st.Candidates))
	}
	if got := st.Status.(*statusLog).last(); got != ReasonMaxTargets {
		t.Fatalf("status=%q", got)
	}
}

func TestScheduler_InsufficientPowerStopsPass(t *testing.T) {
	reg := NewClaimRegistry()
	s := NewScheduler(reg, SchedulerConfig{MaxDistance: 500})
	b := roomyBudget(10)
	b.power = 2
	b.perTarget = 1
	st := newStation("S1", geom.Vec3{}, b)
	st.ReplaceCandidates(candidates(group("F1", 3, 0, 6), "D1"))

	res := s.Assign(st, []*Station{st}, 0)
	if len(res.Claimed) != 2 {
		t.Fatalf("claimed=%d want 2", len(res.Claimed))
	}
	if res.Reason != ReasonInsufficientPower {
		t.Fatalf("reason=%q", res.Reason)
	}
	if len(st.Candidates) != 4 {
		t.Fatalf("remaining=%d want 4", len(st.Candidates))
	}
}

func TestScheduler_RejectsAlreadyTargeted(t *testing.T) {
	reg := NewClaimRegistry()
	s := NewScheduler(reg, SchedulerConfig{MaxDistance: 500})
	st := newStation("S1", geom.Vec3{}, roomyBudget(10))
	cands := candidates(group("F1", 3, 0, 2), "D1")
	reg.Claim(cands[0].Cell.Key(), "OTHER")
	// Same cell reported twice in one queue.
	cands = append(cands, cands[1])
	st.ReplaceCandidates(cands)

	res := s.Assign(st, []*Station{st}, 0)
	if len(res.Claimed) != 1 {
		t.Fatalf("claimed=%d want 1", len(res.Claimed))
	}
	if res.Reason != ReasonAlreadyTargeted {
		t.Fatalf("reason=%q", res.Reason)
	}
}

func TestScheduler_RejectsCellHeldBySibling(t *testing.T) {
	reg := NewClaimRegistry()
	s := NewScheduler(reg, SchedulerConfig{MaxDistance: 500})
	a := newStation("A", geom.Vec3{}, roomyBudget(10))
	b := newStation("B", geom.Vec3{X: 5}, roomyBudget(10))
	cands := candidates(group("F1", 3, 0, 1), "D1")
	// B holds the cell but its registry insert has not landed yet.
	b.Active = append(b.Active, ActiveTarget{Cell: cands[0].Cell, StationID: "B"})
	a.ReplaceCandidates(cands)

	res := s.Assign(a, []*Station{a, b}, 0)
	if len(res.Claimed) != 0 || res.Reason != ReasonOtherStation {
		t.Fatalf("claimed=%d reason=%q", len(res.Claimed), res.Reason)
	}
	if len(a.Candidates) != 1 {
		t.Fatalf("candidate should stay queued")
	}
}

func TestScheduler_DropsCandidatesBeyondNearestStation(t *testing.T) {
	reg := NewClaimRegistry()
	s := NewScheduler(reg, SchedulerConfig{MaxDistance: 10})
	st := newStation("S1", geom.Vec3{}, roomyBudget(10))
	st.ReplaceCandidates(candidates(group("F1", 3, 8, 5), "D1")) // x = 8..12

	res := s.Assign(st, []*Station{st}, 0)
	if len(res.Claimed) != 2 {
		t.Fatalf("claimed=%d want 2", len(res.Claimed))
	}
	if res.Dropped != 3 {
		t.Fatalf("dropped=%d want 3", res.Dropped)
	}
	if len(st.Candidates) != 0 {
		t.Fatalf("remaining=%d want 0", len(st.Candidates))
	}
}

func TestScheduler_NearestStationExtendsReach(t *testing.T) {
	reg := NewClaimRegistry()
	s := NewScheduler(reg, SchedulerConfig{MaxDistance: 10})
	a := newStation("A", geom.Vec3{}, roomyBudget(10))
	b := newStation("B", geom.Vec3{X: 20}, roomyBudget(10))
	a.ReplaceCandidates(candidates(group("F1", 3, 18, 1), "D1"))

	res := s.Assign(a, []*Station{a, b}, 0)
	if len(res.Claimed) != 1 {
		t.Fatalf("claimed=%d want 1 (B is within reach)", len(res.Claimed))
	}
}

func TestScheduler_UserLimit(t *testing.T) {
	reg := NewClaimRegistry()
	s := NewScheduler(reg, SchedulerConfig{MaxDistance: 500})
	b := roomyBudget(10)
	b.userCap = 2
	st := newStation("S1", geom.Vec3{}, b)
	st.ReplaceCandidates(candidates(group("F1", 3, 0, 5), "D1"))

	res := s.Assign(st, []*Station{st}, 0)
	if len(res.Claimed) != 2 {
		t.Fatalf("claimed=%d want 2", len(res.Claimed))
	}
	if res.Reason != ReasonUserLimit {
		t.Fatalf("reason=%q", res.Reason)
	}
	if reg.Len() != 2 {
		t.Fatalf("registry len=%d want 2", reg.Len())
	}
}

func TestScheduler_DisabledStationDoesNothing(t *testing.T) {
	reg := NewClaimRegistry()
	s := NewScheduler(reg, SchedulerConfig{MaxDistance: 500})
	b := roomyBudget(10)
	b.disabled = true
	st := newStation("S1", geom.Vec3{}, b)
	st.ReplaceCandidates(candidates(group("F1", 3, 0, 5), "D1"))

	if res := s.Assign(st, []*Station{st}, 0); len(res.Claimed) != 0 {
		t.Fatalf("disabled station claimed %d", len(res.Claimed))
	}
}

// Stations discover the same cells concurrently; serialized assignment units must
// never hand one cell to two stations.
func TestScheduler_ConcurrentDiscoveryNeverDoubleClaims(t *testing.T) {
	reg := NewClaimRegistry()
	s := NewScheduler(reg, SchedulerConfig{MaxDistance: 500})

	var stations []*Station
	for i := 0; i < 6; i++ {
		stations = append(stations, newStation(string(rune('A'+i)), geom.Vec3{X: float64(i)}, roomyBudget(8)))
	}
	sc := newFakeScanner("D1", group("F1", 3, 0, 30))

	units := make(chan func(), len(stations))
	var wg sync.WaitGroup
	for _, st := range stations {
		st := st
		c := NewCollector(st, reg, CollectorConfig{}, nil)
		wg.Add(1)
		go func() {
			defer wg.Done()
			queue := c.Collect([]ScannerFeed{sc})
			units <- func() {
				st.ReplaceCandidates(queue)
				s.Assign(st, stations, 0)
			}
		}()
	}
	wg.Wait()
	close(units)
	for u := range units {
		u()
	}

	holders := map[CellKey]int{}
	for _, st := range stations {
		if len(st.Active) > st.Budget.MaxTargets() {
			t.Fatalf("%s over max: %d", st.ID, len(st.Active))
		}
		for _, a := range st.Active {
			holders[a.Key()]++
		}
	}
	for k, n := range holders {
		if n > 1 {
			t.Fatalf("%s held by %d stations", k, n)
		}
	}
	if len(holders) != 30 {
		t.Fatalf("claimed cells=%d want 30", len(holders))
	}
}

func TestScheduler_UserLimitRejectsEachCandidateAndKeepsScanning(t *testing.T) {
	reg := NewClaimRegistry()
	s := NewScheduler(reg, SchedulerConfig{MaxDistance: 500})
	b := roomyBudget(10)
	b.userCap = 1
	st := newStation("S1", geom.Vec3{}, b)
	st.ReplaceCandidates(candidates(group("F1", 3, 0, 3), "D1"))
	// The last candidate is already held elsewhere.
	last := st.Candidates[2].Cell.Key()
	if !reg.Claim(last, "OTHER") {
		t.Fatalf("pre-claim failed")
	}

	res := s.Assign(st, []*Station{st}, 0)
	if len(res.Claimed) != 1 || reg.Len() != 2 {
		t.Fatalf("claimed=%d registry=%d", len(res.Claimed), reg.Len())
	}
	// Scanning went past the capped candidate, so the latest rejection wins.
	if res.Reason != ReasonAlreadyTargeted {
		t.Fatalf("reason=%q want %q", res.Reason, ReasonAlreadyTargeted)
	}
	if len(st.Candidates) != 2 {
		t.Fatalf("queue=%d want 2 (capped and pre-claimed stay queued)", len(st.Candidates))
	}
	if owner, _ := reg.Owner(st.Candidates[0].Cell.Key()); owner != "" {
		t.Fatalf("capped candidate was claimed by %q", owner)
	}
}
