package layout

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"nanitecraft.ai/internal/sim/field"
)

// Config describes the fixed entities of a session: fields, scanners, stations and
// the cargo containers stations distribute into.
type Config struct {
	Factions []FactionSpec `yaml:"factions,omitempty"`
	Fields   []FieldSpec   `yaml:"fields"`
	Scanners []ScannerSpec `yaml:"scanners"`
	Stations []StationSpec `yaml:"stations"`
	Cargo    []CargoSpec   `yaml:"cargo,omitempty"`
}

type FactionSpec struct {
	ID      string   `yaml:"id"`
	Members []string `yaml:"members"`
	Allies  []string `yaml:"allies,omitempty"`
}

type FieldSpec struct {
	ID       string     `yaml:"id"`
	Origin   [3]float64 `yaml:"origin"`
	Size     [3]int     `yaml:"size"`
	CellSize float64    `yaml:"cell_size"`
	Gen      field.Gen  `yaml:"gen"`
}

type ScannerSpec struct {
	ID       string     `yaml:"id"`
	Owner    string     `yaml:"owner"`
	Field    string     `yaml:"field"`
	Position [3]float64 `yaml:"position"`
	Range    float64    `yaml:"range"`
}

type StationSpec struct {
	ID       string     `yaml:"id"`
	Owner    string     `yaml:"owner"`
	Position [3]float64 `yaml:"position"`

	// FactoryGroup is how many factories are grouped with the station (>= 1).
	FactoryGroup  int            `yaml:"factory_group"`
	Upgrades      map[string]int `yaml:"upgrades,omitempty"`
	UserTargetCap int            `yaml:"user_target_cap"`
	PowerBudget   float64        `yaml:"power_budget"`

	Enabled     *bool `yaml:"enabled,omitempty"`
	AllowMining *bool `yaml:"allow_mining,omitempty"`

	CargoCapacity float64  `yaml:"cargo_capacity"`
	Links         []string `yaml:"links,omitempty"`
}

func (s StationSpec) IsEnabled() bool     { return s.Enabled == nil || *s.Enabled }
func (s StationSpec) MiningAllowed() bool { return s.AllowMining == nil || *s.AllowMining }

type CargoSpec struct {
	ID       string  `yaml:"id"`
	Capacity float64 `yaml:"capacity"`
}

func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	cfg = Config{}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("stations.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("stations.yaml: %w", err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		Fields: []FieldSpec{
			{
				ID:       "ASTEROID_1",
				Size:     [3]int{64, 48, 64},
				CellSize: 1,
				Gen: field.Gen{
					Seed:         1337,
					HostMaterial: 1,
					Ores: []field.Ore{
						{MaterialID: 3, Grid: 16, Radius: 3, Permille: 500},
						{MaterialID: 4, Grid: 24, Radius: 2, Permille: 300},
					},
				},
			},
		},
		Scanners: []ScannerSpec{
			{ID: "DETECTOR_1", Owner: "player", Field: "ASTEROID_1", Position: [3]float64{32, 20, 32}, Range: 24},
		},
		Stations: []StationSpec{
			{ID: "STATION_1", Owner: "player", Position: [3]float64{32, 40, 32}, FactoryGroup: 1, PowerBudget: 100, CargoCapacity: 20},
		},
	}
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	for i := range c.Fields {
		if c.Fields[i].CellSize <= 0 {
			c.Fields[i].CellSize = 1
		}
	}
	for i := range c.Stations {
		if c.Stations[i].FactoryGroup <= 0 {
			c.Stations[i].FactoryGroup = 1
		}
	}
}

func (c Config) Validate() error {
	c.Normalize()
	if len(c.Stations) == 0 {
		return fmt.Errorf("stations must not be empty")
	}

	fields := map[string]bool{}
	for _, f := range c.Fields {
		if strings.TrimSpace(f.ID) == "" {
			return fmt.Errorf("field id must not be empty")
		}
		if fields[f.ID] {
			return fmt.Errorf("duplicate field id: %s", f.ID)
		}
		fields[f.ID] = true
		if f.Size[0] <= 0 || f.Size[1] <= 0 || f.Size[2] <= 0 {
			return fmt.Errorf("field %s size must be > 0 on every axis", f.ID)
		}
	}

	scanners := map[string]bool{}
	for _, s := range c.Scanners {
		if strings.TrimSpace(s.ID) == "" {
			return fmt.Errorf("scanner id must not be empty")
		}
		if scanners[s.ID] {
			return fmt.Errorf("duplicate scanner id: %s", s.ID)
		}
		scanners[s.ID] = true
		if !fields[s.Field] {
			return fmt.Errorf("scanner %s references unknown field %q", s.ID, s.Field)
		}
		if s.Range <= 0 {
			return fmt.Errorf("scanner %s range must be > 0", s.ID)
		}
	}

	// Cargo and station ids share one namespace: stations are cargo too.
	containers := map[string]bool{}
	for _, cg := range c.Cargo {
		if strings.TrimSpace(cg.ID) == "" {
			return fmt.Errorf("cargo id must not be empty")
		}
		if containers[cg.ID] {
			return fmt.Errorf("duplicate cargo id: %s", cg.ID)
		}
		containers[cg.ID] = true
		if cg.Capacity <= 0 {
			return fmt.Errorf("cargo %s capacity must be > 0", cg.ID)
		}
	}
	for _, st := range c.Stations {
		if strings.TrimSpace(st.ID) == "" {
			return fmt.Errorf("station id must not be empty")
		}
		if containers[st.ID] {
			return fmt.Errorf("duplicate station id: %s", st.ID)
		}
		containers[st.ID] = true
		if st.PowerBudget < 0 {
			return fmt.Errorf("station %s power_budget must be >= 0", st.ID)
		}
		if st.CargoCapacity < 0 {
			return fmt.Errorf("station %s cargo_capacity must be >= 0", st.ID)
		}
		if st.UserTargetCap < 0 {
			return fmt.Errorf("station %s user_target_cap must be >= 0", st.ID)
		}
	}
	for _, st := range c.Stations {
		for _, l := range st.Links {
			if !containers[l] {
				return fmt.Errorf("station %s links unknown cargo %q", st.ID, l)
			}
		}
	}

	factions := map[string]bool{}
	for _, f := range c.Factions {
		if factions[f.ID] {
			return fmt.Errorf("duplicate faction id: %s", f.ID)
		}
		factions[f.ID] = true
	}
	for _, f := range c.Factions {
		for _, a := range f.Allies {
			if !factions[a] {
				return fmt.Errorf("faction %s allied with unknown faction %q", f.ID, a)
			}
		}
	}
	return nil
}
