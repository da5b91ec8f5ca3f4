package storage

import (
	"errors"
	"math"
	"testing"
)

type volumeTable map[string]float64

func (v volumeTable) Volume(item string) float64 { return v[item] }

var vols = volumeTable{"IRON_ORE": 0.01, "GRAVEL": 0.02}

func TestCargo_CapacityBound(t *testing.T) {
	c := NewCargo("C1", 1, vols)
	if !c.CanAccept("IRON_ORE", 100) {
		t.Fatalf("100 iron (1 m3) should fit")
	}
	if c.CanAccept("IRON_ORE", 101) {
		t.Fatalf("101 iron should not fit")
	}
	if !c.Deposit("IRON_ORE", 60) {
		t.Fatalf("deposit failed")
	}
	if c.Deposit("GRAVEL", 30) {
		t.Fatalf("0.6 m3 gravel accepted into 0.4 m3 free")
	}
	if got := c.FreeVolume(); math.Abs(got-0.4) > 1e-9 {
		t.Fatalf("free=%f want 0.4", got)
	}
	if got := c.Withdraw("IRON_ORE", 100); got != 60 {
		t.Fatalf("withdrew %f want 60", got)
	}
	if len(c.InventoryList()) != 0 {
		t.Fatalf("inventory not empty")
	}
}

func TestCargo_RemovedAcceptsNothing(t *testing.T) {
	c := NewCargo("C1", 10, vols)
	c.Remove()
	if c.CanAccept("IRON_ORE", 1) || c.Valid() {
		t.Fatalf("removed cargo still usable")
	}
}

func TestDistribute_MostFreeFirstAndPrunes(t *testing.T) {
	src := NewCargo("S", 10, vols)
	src.Deposit("IRON_ORE", 150) // 1.5 m3
	small := NewCargo("A", 0.5, vols)
	big := NewCargo("B", 2, vols)
	gone := NewCargo("C", 5, vols)
	gone.Remove()

	d := NewDistributor(vols, 0, nil)
	res, err := d.Distribute(src, []Container{small, gone, big, nil})
	if err != nil {
		t.Fatalf("Distribute: %v", err)
	}
	if res.Pruned != 2 || len(res.Links) != 2 {
		t.Fatalf("pruned=%d links=%d", res.Pruned, len(res.Links))
	}
	if big.Count("IRON_ORE") != 150 || small.Count("IRON_ORE") != 0 {
		t.Fatalf("big=%f small=%f", big.Count("IRON_ORE"), small.Count("IRON_ORE"))
	}
	if src.Count("IRON_ORE") != 0 || res.Moved != 150 {
		t.Fatalf("src=%f moved=%f", src.Count("IRON_ORE"), res.Moved)
	}
}

func TestDistribute_SpillsIntoNextTarget(t *testing.T) {
	src := NewCargo("S", 10, vols)
	src.Deposit("IRON_ORE", 300) // 3 m3
	a := NewCargo("A", 2, vols)
	b := NewCargo("B", 0.5, vols)

	d := NewDistributor(vols, 0, nil)
	if _, err := d.Distribute(src, []Container{b, a}); err != nil {
		t.Fatalf("Distribute: %v", err)
	}
	if a.Count("IRON_ORE") != 200 || b.Count("IRON_ORE") != 50 || src.Count("IRON_ORE") != 50 {
		t.Fatalf("a=%f b=%f src=%f", a.Count("IRON_ORE"), b.Count("IRON_ORE"), src.Count("IRON_ORE"))
	}
}

// meddler deposits into the source the first n times it receives items.
type meddler struct {
	*Cargo
	src   *Cargo
	times int
}

func (m *meddler) Deposit(item string, amount float64) bool {
	if m.times > 0 {
		m.times--
		m.src.Deposit("GRAVEL", 1)
	}
	return m.Cargo.Deposit(item, amount)
}

func TestDistribute_RetriesOnConcurrentModification(t *testing.T) {
	src := NewCargo("S", 10, vols)
	src.Deposit("IRON_ORE", 10)
	src.Deposit("GRAVEL", 10)
	m := &meddler{Cargo: NewCargo("M", 10, vols), src: src, times: 1}

	d := NewDistributor(vols, 0, nil)
	res, err := d.Distribute(src, []Container{m})
	if err != nil {
		t.Fatalf("Distribute: %v", err)
	}
	if res.Attempts != 2 {
		t.Fatalf("attempts=%d want 2", res.Attempts)
	}
	if len(src.InventoryList()) != 0 {
		t.Fatalf("source not drained: %+v", src.InventoryList())
	}
	if m.Count("GRAVEL") != 11 || m.Count("IRON_ORE") != 10 {
		t.Fatalf("target gravel=%f iron=%f", m.Count("GRAVEL"), m.Count("IRON_ORE"))
	}
}

func TestDistribute_GivesUpAfterBoundedAttempts(t *testing.T) {
	src := NewCargo("S", 10, vols)
	src.Deposit("IRON_ORE", 10)
	src.Deposit("GRAVEL", 10)
	m := &meddler{Cargo: NewCargo("M", 10, vols), src: src, times: 100}

	d := NewDistributor(vols, 3, nil)
	res, err := d.Distribute(src, []Container{m})
	if !errors.Is(err, ErrConcurrentModification) {
		t.Fatalf("err=%v", err)
	}
	if res.Attempts != 3 {
		t.Fatalf("attempts=%d want 3", res.Attempts)
	}
}
