package field

import (
	"fmt"

	"nanitecraft.ai/internal/sim/encoding"
)

// ChunkState is the snapshot form of one modified chunk; layers are RLE encoded.
type ChunkState struct {
	CX       int    `json:"cx"`
	CY       int    `json:"cy"`
	CZ       int    `json:"cz"`
	Content  string `json:"content"`
	Material string `json:"material"`
}

// ModifiedChunks returns every chunk that differs from its generated state, in key order.
// Unmodified chunks regenerate identically from the seed and are not exported.
func (f *Field) ModifiedChunks() []ChunkState {
	var out []ChunkState
	for _, k := range f.LoadedChunkKeys() {
		ch := f.chunks[k]
		if !ch.modified {
			continue
		}
		out = append(out, ChunkState{
			CX:       k.CX,
			CY:       k.CY,
			CZ:       k.CZ,
			Content:  encoding.EncodeLayer(ch.Content),
			Material: encoding.EncodeLayer(ch.Material),
		})
	}
	return out
}

// LoadChunks resets the field and installs the given chunks. Any index built against
// the previous contents is invalidated.
func (f *Field) LoadChunks(states []ChunkState) error {
	chunks := make(map[ChunkKey]*Chunk, len(states))
	for _, st := range states {
		k := ChunkKey{CX: st.CX, CY: st.CY, CZ: st.CZ}
		content, err := encoding.DecodeLayer(st.Content, chunkCells)
		if err != nil {
			return fmt.Errorf("field %s chunk %d,%d,%d content: %w", f.cfg.ID, k.CX, k.CY, k.CZ, err)
		}
		material, err := encoding.DecodeLayer(st.Material, chunkCells)
		if err != nil {
			return fmt.Errorf("field %s chunk %d,%d,%d material: %w", f.cfg.ID, k.CX, k.CY, k.CZ, err)
		}
		ch := &Chunk{Key: k, Content: content, Material: material, modified: true, dirty: true}
		_ = ch.Digest()
		chunks[k] = ch
	}
	f.chunks = chunks
	f.generation.Add(1)
	return nil
}
