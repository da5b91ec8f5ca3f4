package storage

import (
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"sort"
)

// ErrConcurrentModification means the source changed underneath a distribution pass.
var ErrConcurrentModification = errors.New("storage: source modified during distribution")

// DefaultAttempts bounds how many full passes Distribute makes on concurrent modification.
const DefaultAttempts = 3

// Container is a downstream target of a distribution pass.
type Container interface {
	ID() string
	Valid() bool
	FreeVolume() float64
	Deposit(item string, amount float64) bool
}

type Result struct {
	Moved    float64
	Links    []Container
	Pruned   int
	Attempts int
}

type Distributor struct {
	volumes  ItemVolumes
	attempts int
	log      *log.Logger
}

func NewDistributor(volumes ItemVolumes, attempts int, logger *log.Logger) *Distributor {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Distributor{volumes: volumes, attempts: attempts, log: logger}
}

// Distribute moves items out of src into its linked containers, most free volume first.
// Invalid links are pruned and the surviving set is returned in Result.Links. A pass
// interrupted by ErrConcurrentModification is retried from scratch.
func (d *Distributor) Distribute(src *Cargo, links []Container) (Result, error) {
	var res Result
	res.Links = links
	for attempt := 1; attempt <= d.attempts; attempt++ {
		res.Attempts = attempt
		valid, pruned := pruneLinks(src, res.Links)
		res.Links = valid
		res.Pruned += pruned

		moved, err := d.pass(src, valid)
		res.Moved += moved
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, ErrConcurrentModification) {
			return res, err
		}
		d.log.Printf("distribute cargo=%s attempt=%d: %v", src.ID(), attempt, err)
	}
	return res, fmt.Errorf("distribute cargo=%s after %d attempts: %w", src.ID(), d.attempts, ErrConcurrentModification)
}

func pruneLinks(src *Cargo, links []Container) ([]Container, int) {
	out := make([]Container, 0, len(links))
	pruned := 0
	for _, l := range links {
		if l == nil || !l.Valid() || l.ID() == src.ID() {
			pruned++
			continue
		}
		out = append(out, l)
	}
	return out, pruned
}

func (d *Distributor) pass(src *Cargo, links []Container) (float64, error) {
	if len(links) == 0 {
		return 0, nil
	}
	targets := append([]Container(nil), links...)
	free := make(map[string]float64, len(targets))
	for _, t := range targets {
		free[t.ID()] = t.FreeVolume()
	}
	sort.SliceStable(targets, func(i, j int) bool {
		fi, fj := free[targets[i].ID()], free[targets[j].ID()]
		if fi != fj {
			return fi > fj
		}
		return targets[i].ID() < targets[j].ID()
	})

	moved := 0.0
	ver := src.Version()
	for _, stack := range src.InventoryList() {
		vol := d.volumes.Volume(stack.Item)
		remaining := stack.Count
		for _, t := range targets {
			if remaining <= 0 {
				break
			}
			if src.Version() != ver {
				return moved, ErrConcurrentModification
			}
			amount := remaining
			if vol > 0 {
				fit := math.Floor(t.FreeVolume()/vol*1e6) / 1e6
				amount = math.Min(amount, fit)
			}
			if amount <= 0 {
				continue
			}
			taken := src.Withdraw(stack.Item, amount)
			ver = src.Version()
			if taken <= 0 {
				break
			}
			if !t.Deposit(stack.Item, taken) {
				src.Deposit(stack.Item, taken)
				ver = src.Version()
				continue
			}
			moved += taken
			remaining -= taken
		}
	}
	return moved, nil
}
