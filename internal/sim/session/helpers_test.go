package session

import (
	"testing"

	"nanitecraft.ai/internal/sim/catalogs"
	"nanitecraft.ai/internal/sim/field"
	"nanitecraft.ai/internal/sim/geom"
	"nanitecraft.ai/internal/sim/layout"
	"nanitecraft.ai/internal/sim/mining"
	"nanitecraft.ai/internal/sim/tuning"
)

const ironMaterial = 3

var testCells = []geom.Vec3i{{X: 8, Y: 2, Z: 8}, {X: 10, Y: 2, Z: 8}, {X: 12, Y: 2, Z: 8}}

func testCatalogs(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	return cats
}

func testTuning() tuning.Tuning {
	tune := tuning.Defaults()
	tune.ScanEveryTicks = 5
	tune.DistributeEveryTicks = 1000
	tune.SnapshotEveryTicks = 0
	tune.Workers = 2
	tune.Mining.MinTravelTimeMs = 1000
	tune.Mining.CarryMarginMs = 1000
	tune.Mining.RecheckIntervalMs = 200
	tune.Mining.CutRadius = 0
	return tune
}

// testLayout is one field with no minable host material, one detector and one station.
func testLayout() layout.Config {
	return layout.Config{
		Fields: []layout.FieldSpec{{
			ID:   "F",
			Size: [3]int{32, 16, 32},
			Gen:  field.Gen{Seed: 1},
		}},
		Scanners: []layout.ScannerSpec{
			{ID: "D1", Owner: "alice", Field: "F", Position: [3]float64{8, 4, 8}, Range: 12},
		},
		Stations: []layout.StationSpec{{
			ID:            "S1",
			Owner:         "alice",
			Position:      [3]float64{8, 12, 8},
			Upgrades:      map[string]int{UpgradeMiningNanites: 4},
			PowerBudget:   100,
			CargoCapacity: 10,
		}},
	}
}

func newTestSession(t *testing.T, tune tuning.Tuning, lay layout.Config) *Session {
	t.Helper()
	s, err := New(Config{ID: "W", Seed: 7, Tuning: tune, Layout: lay, Catalogs: testCatalogs(t)})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

// seedOre places full iron cells at testCells.
func seedOre(t *testing.T, s *Session) {
	t.Helper()
	f, ok := s.fields.Get("F")
	if !ok {
		t.Fatalf("field F missing")
	}
	for _, p := range testCells {
		f.Set(p, 200, ironMaterial)
	}
}

func runTicks(s *Session, n int) {
	for i := 0; i < n; i++ {
		s.StepOnce()
		s.WaitIdle()
	}
}

func expectedYield(t *testing.T, s *Session) float64 {
	t.Helper()
	y, ok := s.cfg.Catalogs.Yield(ironMaterial)
	if !ok {
		t.Fatalf("no yield for material %d", ironMaterial)
	}
	_, items := mining.ComputeYield(200, y, s.tune.Mining.CellVolumeM3, s.tune.Mining.HarvestRatio)
	return items
}
