package mining

import (
	"sync"
	"sync/atomic"
	"testing"

	"nanitecraft.ai/internal/sim/geom"
)

func TestClaimRegistry_ConcurrentClaimsHaveOneWinner(t *testing.T) {
	reg := NewClaimRegistry()
	key := CellKey{FieldID: "F1", Local: geom.Vec3i{X: 1, Y: 2, Z: 3}}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if reg.Claim(key, string(rune('A'+i%26))) {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("wins=%d want 1", wins.Load())
	}
}

func TestClaimRegistry_EntriesAndRestore(t *testing.T) {
	reg := NewClaimRegistry()
	reg.Claim(CellKey{FieldID: "F2", Local: geom.Vec3i{X: 1}}, "S1")
	reg.Claim(CellKey{FieldID: "F1", Local: geom.Vec3i{X: 9}}, "S2")
	reg.Claim(CellKey{FieldID: "F1", Local: geom.Vec3i{X: 2}}, "S1")

	entries := reg.Entries()
	if len(entries) != 3 || entries[0].Key.FieldID != "F1" || entries[0].Key.Local.X != 2 {
		t.Fatalf("entries=%+v", entries)
	}

	other := NewClaimRegistry()
	other.Restore(entries)
	if other.Len() != 3 {
		t.Fatalf("restored len=%d", other.Len())
	}
	if id, ok := other.Owner(CellKey{FieldID: "F1", Local: geom.Vec3i{X: 9}}); !ok || id != "S2" {
		t.Fatalf("owner=%q ok=%v", id, ok)
	}
	other.Reset()
	if other.Len() != 0 {
		t.Fatalf("reset left %d entries", other.Len())
	}
}
