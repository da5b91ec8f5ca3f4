package catalogs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"nanitecraft.ai/internal/sim/mining"
)

type Catalogs struct {
	Materials MaterialCatalog
	Items     ItemCatalog
}

type MaterialCatalog struct {
	ByID   map[uint8]MaterialDef
	Digest string
}

// MaterialDef is one voxel material. Material 0 is reserved for "none" and may not be
// defined; a material without item_id yields nothing.
type MaterialDef struct {
	ID         uint8   `json:"id"`
	Name       string  `json:"name"`
	ItemID     string  `json:"item_id,omitempty"`
	YieldRatio float64 `json:"yield_ratio,omitempty"`
}

type ItemCatalog struct {
	Palette       []string
	Defs          map[string]ItemDef
	PaletteDigest string
	DefsDigest    string
}

type ItemDef struct {
	ID     string  `json:"id"`
	Kind   string  `json:"kind"` // "ORE","INGOT","COMPONENT"
	Volume float64 `json:"volume"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs
	if err := loadItems(filepath.Join(configDir, "items.json"), &c.Items); err != nil {
		return nil, err
	}
	if err := loadMaterials(filepath.Join(configDir, "materials.json"), &c.Materials); err != nil {
		return nil, err
	}
	for _, m := range c.Materials.ByID {
		if m.ItemID == "" {
			continue
		}
		if _, ok := c.Items.Defs[m.ItemID]; !ok {
			return nil, fmt.Errorf("materials.json: material %d (%s) yields unknown item %q", m.ID, m.Name, m.ItemID)
		}
	}
	return &c, nil
}

// Yield resolves what a cell of the given material turns into.
func (c *Catalogs) Yield(material uint8) (mining.YieldDef, bool) {
	m, ok := c.Materials.ByID[material]
	if !ok || m.ItemID == "" {
		return mining.YieldDef{}, false
	}
	it, ok := c.Items.Defs[m.ItemID]
	if !ok {
		return mining.YieldDef{}, false
	}
	y := mining.YieldDef{ItemID: it.ID, YieldRatio: m.YieldRatio, ItemVolume: it.Volume}
	return y, y.Valid()
}

// Volume returns the per-unit volume of an item; unknown items take no space.
func (c *Catalogs) Volume(itemID string) float64 {
	return c.Items.Defs[itemID].Volume
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func validate(name, schema string, raw []byte) error {
	s, err := jsonschema.CompileString(name+".schema.json", schema)
	if err != nil {
		return fmt.Errorf("%s: compile schema: %w", name, err)
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func loadItems(path string, out *ItemCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := validate("items.json", itemsSchema, raw); err != nil {
		return err
	}
	out.DefsDigest = sha256Hex(raw)

	var defs []ItemDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("items.json: %w", err)
	}
	out.Defs = map[string]ItemDef{}
	for _, d := range defs {
		if _, dup := out.Defs[d.ID]; dup {
			return fmt.Errorf("items.json: duplicate id %s", d.ID)
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out.Palette = ids
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

func loadMaterials(path string, out *MaterialCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := validate("materials.json", materialsSchema, raw); err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []MaterialDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("materials.json: %w", err)
	}
	out.ByID = map[uint8]MaterialDef{}
	for _, d := range defs {
		if _, dup := out.ByID[d.ID]; dup {
			return fmt.Errorf("materials.json: duplicate id %d", d.ID)
		}
		out.ByID[d.ID] = d
	}
	return nil
}
