package field

func clampPermille(v int) uint64 {
	if v < 0 {
		return 0
	}
	if v > 1000 {
		return 1000
	}
	return uint64(v)
}

func (f *Field) generateChunk(ch *Chunk) {
	g := f.cfg.Gen
	for z := 0; z < ChunkSize; z++ {
		for y := 0; y < ChunkSize; y++ {
			for x := 0; x < ChunkSize; x++ {
				lx := ch.Key.CX*ChunkSize + x
				ly := ch.Key.CY*ChunkSize + y
				lz := ch.Key.CZ*ChunkSize + z
				if lx >= f.cfg.Size.X || ly >= f.cfg.Size.Y || lz >= f.cfg.Size.Z || lx < 0 || ly < 0 || lz < 0 {
					continue
				}

				// Gently rolling surface: +-2 cells over 8x8 columns.
				surface := g.SurfaceY + int(hash2(g.Seed, floorDiv(lx, 8), floorDiv(lz, 8))%5) - 2
				if ly > surface {
					continue
				}
				content := uint8(255)
				if ly == surface {
					content = uint8(96 + hash3(g.Seed+7, lx, ly, lz)%160)
				}

				material := g.HostMaterial
				for i, ore := range g.Ores {
					if inCluster(g.Seed+int64(i+1)*101, lx, ly, lz, ore.Grid, ore.Radius, clampPermille(ore.Permille)) {
						material = ore.MaterialID
						break
					}
				}

				i := ch.index(x, y, z)
				ch.Content[i] = content
				ch.Material[i] = material
			}
		}
	}
}
