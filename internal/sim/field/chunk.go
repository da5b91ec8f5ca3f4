package field

import (
	"crypto/sha256"
)

const ChunkSize = 16

const chunkCells = ChunkSize * ChunkSize * ChunkSize

type ChunkKey struct {
	CX int
	CY int
	CZ int
}

// Chunk is a 16x16x16 block of cells. Content is the fill level (0 empty, 255 full),
// Material the material id of each cell.
type Chunk struct {
	Key      ChunkKey
	Content  []byte
	Material []byte

	// modified is set once the chunk diverges from its generated state.
	modified bool
	dirty    bool
	hash     [32]byte
}

func newChunk(k ChunkKey) *Chunk {
	return &Chunk{
		Key:      k,
		Content:  make([]byte, chunkCells),
		Material: make([]byte, chunkCells),
	}
}

func (c *Chunk) index(x, y, z int) int {
	// x fastest, then y, then z
	return x + y*ChunkSize + z*ChunkSize*ChunkSize
}

func (c *Chunk) Get(x, y, z int) (content, material uint8) {
	i := c.index(x, y, z)
	return c.Content[i], c.Material[i]
}

func (c *Chunk) Set(x, y, z int, content, material uint8) bool {
	i := c.index(x, y, z)
	if c.Content[i] == content && c.Material[i] == material {
		return false
	}
	c.Content[i] = content
	c.Material[i] = material
	c.dirty = true
	c.modified = true
	return true
}

func (c *Chunk) Modified() bool { return c.modified }

func (c *Chunk) Digest() [32]byte {
	if c.dirty || c.hash == ([32]byte{}) {
		h := sha256.New()
		h.Write(c.Content)
		h.Write(c.Material)
		copy(c.hash[:], h.Sum(nil))
		c.dirty = false
	}
	return c.hash
}
