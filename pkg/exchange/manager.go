package exchange

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/erain9/crossmatch/pkg/core"
	"github.com/erain9/crossmatch/pkg/messaging"
)

// ErrUnknownMarket is returned when an order names a market id no group
// owns.
var ErrUnknownMarket = errors.New("unknown market")

// MarketSpec is one configured market plus its cross references that only
// make sense at wiring time.
type MarketSpec struct {
	Info core.MarketInfo
	// FutureMarket names the future leg of a spread market by market code.
	FutureMarket string
}

// Manager owns every reference pair group and routes inbound traffic to
// them.
type Manager struct {
	groups   map[string]*Group
	byMarket map[uint64]*Group
	logger   zerolog.Logger
}

// NewManager groups the specs by reference pair and builds one Group per
// pair.
func NewManager(specs []MarketSpec, deps Deps, logger zerolog.Logger) (*Manager, error) {
	m := &Manager{
		groups:   make(map[string]*Group),
		byMarket: make(map[uint64]*Group),
		logger:   logger,
	}

	byPair := make(map[string][]core.MarketInfo)
	codeToID := make(map[string]uint64, len(specs))
	for _, spec := range specs {
		byPair[spec.Info.ReferencePair] = append(byPair[spec.Info.ReferencePair], spec.Info)
		codeToID[spec.Info.MarketCode] = spec.Info.MarketID
	}

	spreadLegsByPair := make(map[string]map[uint64]uint64)
	for _, spec := range specs {
		if spec.Info.Type != core.MarketSpread {
			continue
		}
		futureID, ok := codeToID[spec.FutureMarket]
		if !ok {
			return nil, fmt.Errorf("spread market %q: future leg %q is not configured",
				spec.Info.MarketCode, spec.FutureMarket)
		}
		legs := spreadLegsByPair[spec.Info.ReferencePair]
		if legs == nil {
			legs = make(map[uint64]uint64)
			spreadLegsByPair[spec.Info.ReferencePair] = legs
		}
		legs[spec.Info.MarketID] = futureID
	}

	for pair, infos := range byPair {
		group := NewGroup(pair, infos, spreadLegsByPair[pair], deps, logger)
		m.groups[pair] = group
		for _, info := range infos {
			m.byMarket[info.MarketID] = group
		}
	}
	return m, nil
}

// Start launches the writer goroutine of every group.
func (m *Manager) Start() {
	for _, g := range m.groups {
		g.Start()
	}
}

// Close stops every group after draining its inbox.
func (m *Manager) Close() {
	for _, g := range m.groups {
		g.Close()
	}
}

// SubmitOrder routes one inbound order to its group.
func (m *Manager) SubmitOrder(order core.Order) error {
	g, ok := m.byMarket[order.MarketID]
	if !ok {
		m.logger.Warn().
			Uint64("market_id", order.MarketID).
			Uint64("order_id", order.OrderID).
			Msg("Order for unknown market dropped")
		return ErrUnknownMarket
	}
	g.Submit(order)
	return nil
}

// SubmitPrice routes one price tick to its group. Unknown markets are
// ignored, price feeds often cover more instruments than we match.
func (m *Manager) SubmitPrice(update messaging.PriceUpdate) {
	if g, ok := m.byMarket[update.MarketID]; ok {
		g.SubmitPrice(update)
	}
}

// Recover replays the journal through every group before Start. Orders are
// fed synchronously on the caller goroutine, nothing is published.
func (m *Manager) Recover(replay func(fn func(order core.Order) error) error) error {
	for _, g := range m.groups {
		g.beginRecovery()
	}

	count := 0
	err := replay(func(order core.Order) error {
		g, ok := m.byMarket[order.MarketID]
		if !ok {
			m.logger.Warn().
				Uint64("market_id", order.MarketID).
				Uint64("order_id", order.OrderID).
				Msg("Journaled order for unknown market skipped")
			return nil
		}
		g.replayOrder(order)
		count++
		return nil
	})

	for _, g := range m.groups {
		g.finishRecovery()
	}
	if err != nil {
		return fmt.Errorf("journal replay failed: %w", err)
	}

	m.logger.Info().Int("orders", count).Msg("Recovery replay complete")
	return nil
}

// Group returns the group owning the given reference pair.
func (m *Manager) Group(pair string) *Group {
	return m.groups[pair]
}

// OrdersCount sums the resting orders across every market.
func (m *Manager) OrdersCount() int {
	total := 0
	for _, g := range m.groups {
		for _, mk := range g.Markets() {
			total += mk.OrdersCount()
		}
	}
	return total
}
