package tuning

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_TuningYAML(t *testing.T) {
	tu, err := Load("../../../configs/tuning.yaml")
	if err != nil {
		t.Fatalf("load tuning.yaml: %v", err)
	}
	if tu.TickRateHz != 5 || tu.TickInterval() != 200*time.Millisecond {
		t.Fatalf("tick rate=%d interval=%v", tu.TickRateHz, tu.TickInterval())
	}
	if tu.Mining.CutRadius != 3.9 || tu.Mining.RegionPad != 4 {
		t.Fatalf("mining=%+v", tu.Mining)
	}
	if tu.Mining.RecheckInterval() != 2*time.Second || tu.Mining.CarryMargin() != time.Second {
		t.Fatalf("recheck=%v margin=%v", tu.Mining.RecheckInterval(), tu.Mining.CarryMargin())
	}
}

func TestLoad_EmptyPathIsDefaults(t *testing.T) {
	tu, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tu != Defaults() {
		t.Fatalf("empty path should yield defaults")
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("mining:\n  max_streams: 8\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tu, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tu.Mining.MaxStreams != 8 {
		t.Fatalf("max_streams=%d", tu.Mining.MaxStreams)
	}
	if tu.Mining.HarvestRatio != 0.37 || tu.Workers != 4 {
		t.Fatalf("defaults lost: %+v", tu)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Tuning)
	}{
		{"harvest ratio zero", func(t *Tuning) { t.Mining.HarvestRatio = 0 }},
		{"harvest ratio above one", func(t *Tuning) { t.Mining.HarvestRatio = 1.5 }},
		{"negative pad", func(t *Tuning) { t.Mining.RegionPad = -1 }},
		{"negative margin", func(t *Tuning) { t.Mining.CarryMarginMs = -5 }},
		{"tick rate too high", func(t *Tuning) { t.TickRateHz = 5000 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tu := Defaults()
			tc.mut(&tu)
			if err := tu.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestNormalize_ZeroCarryMarginUsesDefault(t *testing.T) {
	var tu Tuning
	tu.Mining.HarvestRatio = 0.5
	tu.Normalize()
	if tu.Mining.CarryMargin() != time.Second {
		t.Fatalf("margin=%v want 1s", tu.Mining.CarryMargin())
	}

	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("mining:\n  carry_margin_ms: 0\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Mining.CarryMarginMs != 1000 {
		t.Fatalf("carry_margin_ms=%d want 1000", loaded.Mining.CarryMarginMs)
	}
}
