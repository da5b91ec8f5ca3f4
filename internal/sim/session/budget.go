package session

import (
	"time"

	"nanitecraft.ai/internal/sim/layout"
	"nanitecraft.ai/internal/sim/tuning"
)

// Upgrade names understood in a station's upgrades map.
const (
	UpgradeMiningNanites = "mining_nanites"
	UpgradePowerNanites  = "power_nanites"
	UpgradeMinTravelTime = "min_travel_time"
	UpgradeSpeedNanites  = "speed_nanites"
)

// Budget is a station's limits derived from the server mining settings and its
// upgrades. It is only read and changed on the session goroutine.
type Budget struct {
	maxTargets     int
	powerBudget    float64
	powerPerTarget float64
	minTravel      time.Duration
	speed          float64

	userCap     int
	enabled     bool
	allowMining bool
}

func NewBudget(spec layout.StationSpec, m tuning.Mining) *Budget {
	group := spec.FactoryGroup
	if group < 1 {
		group = 1
	}
	up := spec.Upgrades

	maxTargets := m.NanitesNoUpgrade*group + up[UpgradeMiningNanites]
	if maxTargets > m.MaxStreams {
		maxTargets = m.MaxStreams
	}
	if maxTargets < 0 {
		maxTargets = 0
	}

	perTarget := m.PowerPerStream - float64(up[UpgradePowerNanites])
	if perTarget < 1 {
		perTarget = 1
	}

	minTravel := m.MinTravelTime() - time.Duration(up[UpgradeMinTravelTime])*time.Second
	if minTravel < time.Second {
		minTravel = time.Second
	}

	return &Budget{
		maxTargets:     maxTargets,
		powerBudget:    spec.PowerBudget,
		powerPerTarget: perTarget,
		minTravel:      minTravel,
		speed:          m.DistanceDivisor + float64(up[UpgradeSpeedNanites]),
		userCap:        spec.UserTargetCap,
		enabled:        spec.IsEnabled(),
		allowMining:    spec.MiningAllowed(),
	}
}

func (b *Budget) MaxTargets() int              { return b.maxTargets }
func (b *Budget) PowerBudget() float64         { return b.powerBudget }
func (b *Budget) PowerPerTarget() float64      { return b.powerPerTarget }
func (b *Budget) MinTravelTime() time.Duration { return b.minTravel }
func (b *Budget) Speed() float64               { return b.speed }
func (b *Budget) UserTargetCap() int           { return b.userCap }

// Functional is false for a station without any power.
func (b *Budget) Functional() bool { return b.powerBudget > 0 }

func (b *Budget) IsEnabled() bool {
	return b.enabled && b.allowMining && b.Functional()
}
