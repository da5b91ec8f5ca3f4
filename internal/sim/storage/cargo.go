package storage

import (
	"math"
	"sort"
	"sync"
)

// ItemVolumes resolves the per-unit volume of an item in cubic meters.
type ItemVolumes interface {
	Volume(itemID string) float64
}

type ItemStack struct {
	Item  string  `json:"item"`
	Count float64 `json:"count"`
}

// Cargo is a volume-bounded item container. It is safe for concurrent use; Version
// increments on every mutation.
type Cargo struct {
	id       string
	capacity float64
	volumes  ItemVolumes

	mu        sync.Mutex
	inventory map[string]float64
	used      float64
	version   uint64
	removed   bool
}

func NewCargo(id string, capacity float64, volumes ItemVolumes) *Cargo {
	return &Cargo{id: id, capacity: capacity, volumes: volumes, inventory: map[string]float64{}}
}

func (c *Cargo) ID() string        { return c.id }
func (c *Cargo) Capacity() float64 { return c.capacity }
func (c *Cargo) volume(item string) float64 {
	if c.volumes == nil {
		return 0
	}
	return c.volumes.Volume(item)
}

func (c *Cargo) Valid() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.removed
}

// Remove marks the cargo as destroyed; links to it are pruned on the next distribution.
func (c *Cargo) Remove() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removed = true
	c.version++
}

func (c *Cargo) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

func (c *Cargo) FreeVolume() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.freeLocked()
}

func (c *Cargo) freeLocked() float64 {
	if c.removed {
		return 0
	}
	free := c.capacity - c.used
	if free < 0 {
		return 0
	}
	return free
}

func (c *Cargo) CanAccept(item string, amount float64) bool {
	if amount <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return amount*c.volume(item) <= c.freeLocked()+1e-9
}

func (c *Cargo) Deposit(item string, amount float64) bool {
	if amount <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v := amount * c.volume(item)
	if v > c.freeLocked()+1e-9 {
		return false
	}
	c.inventory[item] += amount
	c.used += v
	c.version++
	return true
}

// Withdraw removes up to amount of item and returns how much was taken.
func (c *Cargo) Withdraw(item string, amount float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	have := c.inventory[item]
	if amount > have {
		amount = have
	}
	if amount <= 0 {
		return 0
	}
	c.inventory[item] = have - amount
	if c.inventory[item] <= 1e-9 {
		delete(c.inventory, item)
	}
	c.used = math.Max(0, c.used-amount*c.volume(item))
	c.version++
	return amount
}

func (c *Cargo) Count(item string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inventory[item]
}

func (c *Cargo) InventoryList() []ItemStack {
	c.mu.Lock()
	out := make([]ItemStack, 0, len(c.inventory))
	for item, n := range c.inventory {
		if n <= 0 {
			continue
		}
		out = append(out, ItemStack{Item: item, Count: n})
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Item < out[j].Item })
	return out
}

// Restore replaces the inventory, e.g. from a snapshot.
func (c *Cargo) Restore(items []ItemStack) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inventory = make(map[string]float64, len(items))
	c.used = 0
	for _, it := range items {
		if it.Count <= 0 {
			continue
		}
		c.inventory[it.Item] += it.Count
		c.used += it.Count * c.volume(it.Item)
	}
	c.version++
}
