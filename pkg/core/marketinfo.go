package core

import "math"

// Market types. A FUTURE market with a SWAP cycle is normalized to PERP.
const (
	MarketSpot   = "SPOT"
	MarketPerp   = "PERP"
	MarketFuture = "FUTURE"
	MarketSpread = "SPREAD"
	MarketRepo   = "REPO"
)

// MarketInfo carries the static parameters of one market. Tick and
// QtyIncrement are already scaled by Factor and QtyFactor.
type MarketInfo struct {
	MarketID        uint64
	MarketCode      string
	Type            string
	ReferencePair   string
	Factor          uint64
	QtyFactor       uint64
	Tick            int64
	QtyIncrement    uint64
	MakerFee        int64 // pips
	OrderGroupCount int
}

// Normalize fills defaults and derives the normalized market type.
func (m *MarketInfo) Normalize(cycleType string) {
	if m.Factor == 0 {
		m.Factor = DefaultFactor
	}
	if m.QtyFactor == 0 {
		m.QtyFactor = DefaultFactor
	}
	if m.Tick == 0 {
		m.Tick = 1
	}
	if m.QtyIncrement == 0 {
		m.QtyIncrement = 1
	}
	if m.OrderGroupCount <= 0 {
		m.OrderGroupCount = DefaultOrderGroupCount
	}
	if m.Type == MarketFuture && cycleType == "SWAP" {
		m.Type = MarketPerp
	}
}

// IsRepo reports whether the market is a repo market.
func (m *MarketInfo) IsRepo() bool { return m.Type == MarketRepo }

// ScalePrice converts a decimal price into fixed-point ticks.
func ScalePrice(price float64, factor uint64) int64 {
	return int64(math.Round(price * float64(factor)))
}

// ScaleQuantity converts a decimal quantity into fixed-point units.
func ScaleQuantity(qty float64, factor uint64) uint64 {
	return uint64(math.Round(qty * float64(factor)))
}
