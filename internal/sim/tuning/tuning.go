package tuning

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	TickRateHz           int `yaml:"tick_rate_hz"`
	ScanEveryTicks       int `yaml:"scan_every_ticks"`
	DistributeEveryTicks int `yaml:"distribute_every_ticks"`
	SnapshotEveryTicks   int `yaml:"snapshot_every_ticks"`
	Workers              int `yaml:"workers"`
	CommandQueue         int `yaml:"command_queue"`

	Mining Mining `yaml:"mining"`
}

// Mining holds the server-wide mining settings. Per-station limits are derived from
// these plus the station's upgrades.
type Mining struct {
	MaxDistance      float64 `yaml:"max_distance"`
	NanitesNoUpgrade int     `yaml:"nanites_no_upgrade"`
	MaxStreams       int     `yaml:"max_streams"`
	PowerPerStream   float64 `yaml:"power_per_stream"`
	MinTravelTimeMs  int     `yaml:"min_travel_time_ms"`
	DistanceDivisor  float64 `yaml:"distance_divisor"`

	HarvestRatio float64 `yaml:"harvest_ratio"`
	CellVolumeM3 float64 `yaml:"cell_volume_m3"`
	CutRadius    float64 `yaml:"cut_radius"`
	RegionPad    int     `yaml:"region_pad"`

	RecheckIntervalMs int `yaml:"recheck_interval_ms"`
	CarryMarginMs     int `yaml:"carry_margin_ms"`
	StallCycles       int `yaml:"stall_cycles"`
	MaxEffects        int `yaml:"max_effects"`
}

func Defaults() Tuning {
	return Tuning{
		TickRateHz:           5,
		ScanEveryTicks:       25,
		DistributeEveryTicks: 50,
		SnapshotEveryTicks:   3000,
		Workers:              4,
		CommandQueue:         1024,
		Mining: Mining{
			MaxDistance:       500,
			NanitesNoUpgrade:  2,
			MaxStreams:        40,
			PowerPerStream:    4,
			MinTravelTimeMs:   5000,
			DistanceDivisor:   10,
			HarvestRatio:      0.37,
			CellVolumeM3:      1,
			CutRadius:         3.9,
			RegionPad:         4,
			RecheckIntervalMs: 2000,
			CarryMarginMs:     1000,
			StallCycles:       20,
			MaxEffects:        256,
		},
	}
}

// Load reads tuning.yaml over the defaults. An empty path yields the defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// Normalize fills zero values with defaults.
func (t *Tuning) Normalize() {
	if t == nil {
		return
	}
	d := Defaults()
	if t.TickRateHz <= 0 {
		t.TickRateHz = d.TickRateHz
	}
	if t.ScanEveryTicks <= 0 {
		t.ScanEveryTicks = d.ScanEveryTicks
	}
	if t.DistributeEveryTicks <= 0 {
		t.DistributeEveryTicks = d.DistributeEveryTicks
	}
	if t.Workers <= 0 {
		t.Workers = d.Workers
	}
	if t.CommandQueue <= 0 {
		t.CommandQueue = d.CommandQueue
	}
	m := &t.Mining
	if m.NanitesNoUpgrade <= 0 {
		m.NanitesNoUpgrade = d.Mining.NanitesNoUpgrade
	}
	if m.MaxStreams <= 0 {
		m.MaxStreams = d.Mining.MaxStreams
	}
	if m.MinTravelTimeMs <= 0 {
		m.MinTravelTimeMs = d.Mining.MinTravelTimeMs
	}
	if m.DistanceDivisor <= 0 {
		m.DistanceDivisor = d.Mining.DistanceDivisor
	}
	if m.CellVolumeM3 <= 0 {
		m.CellVolumeM3 = d.Mining.CellVolumeM3
	}
	if m.RecheckIntervalMs <= 0 {
		m.RecheckIntervalMs = d.Mining.RecheckIntervalMs
	}
	if m.CarryMarginMs <= 0 {
		m.CarryMarginMs = d.Mining.CarryMarginMs
	}
	if m.StallCycles <= 0 {
		m.StallCycles = d.Mining.StallCycles
	}
	if m.MaxEffects <= 0 {
		m.MaxEffects = d.Mining.MaxEffects
	}
}

func (t Tuning) Validate() error {
	if t.TickRateHz > 1000 {
		return fmt.Errorf("tick_rate_hz must be <= 1000")
	}
	if t.SnapshotEveryTicks < 0 {
		return fmt.Errorf("snapshot_every_ticks must be >= 0")
	}
	m := t.Mining
	if m.MaxDistance < 0 {
		return fmt.Errorf("mining.max_distance must be >= 0")
	}
	if m.PowerPerStream < 0 {
		return fmt.Errorf("mining.power_per_stream must be >= 0")
	}
	if m.HarvestRatio <= 0 || m.HarvestRatio > 1 {
		return fmt.Errorf("mining.harvest_ratio must be in (0, 1]")
	}
	if m.CutRadius < 0 {
		return fmt.Errorf("mining.cut_radius must be >= 0")
	}
	if m.RegionPad < 0 {
		return fmt.Errorf("mining.region_pad must be >= 0")
	}
	if m.CarryMarginMs < 0 {
		return fmt.Errorf("mining.carry_margin_ms must be >= 0")
	}
	return nil
}

func (t Tuning) TickInterval() time.Duration {
	return time.Second / time.Duration(t.TickRateHz)
}

func (m Mining) MinTravelTime() time.Duration {
	return time.Duration(m.MinTravelTimeMs) * time.Millisecond
}

func (m Mining) RecheckInterval() time.Duration {
	return time.Duration(m.RecheckIntervalMs) * time.Millisecond
}

func (m Mining) CarryMargin() time.Duration {
	return time.Duration(m.CarryMarginMs) * time.Millisecond
}
