package exchange

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/erain9/crossmatch/pkg/core"
	"github.com/erain9/crossmatch/pkg/messaging"
	"github.com/erain9/crossmatch/pkg/otel"
)

const inboxSize = 4096

// ArchiveSender persists batches of published order events.
type ArchiveSender interface {
	SendOrderBatch(ctx context.Context, orders []core.Order) error
}

// TriggerStore mirrors parked trigger orders.
type TriggerStore interface {
	SaveOrder(order *core.Order) error
}

// Appender journals accepted inbound orders for replay.
type Appender interface {
	Append(order core.Order) error
}

// Deps bundles the outbound surfaces of a group. Any of them may be nil,
// the group then skips that concern.
type Deps struct {
	Orders       messaging.OrderSender
	Books        messaging.BookSender
	Archive      ArchiveSender
	Store        TriggerStore
	Journal      Appender
	Depth        int
	ImpliedDepth int
}

type envelope struct {
	order *core.Order
	price *messaging.PriceUpdate
}

// Group owns every market of one reference pair. The markets share one
// IDGen and one writer goroutine: implied matching mutates several books in
// one step, so all mutations of the pair are serialized through the inbox.
type Group struct {
	pair    string
	ids     *core.SeqIDGen
	deps    Deps
	logger  zerolog.Logger
	markets map[uint64]*Market
	ordered []*Market

	inbox chan envelope
	done  chan struct{}

	// touched only before Start and on the writer goroutine
	recovering bool
	perpID     uint64
}

// NewGroup builds the markets of one reference pair and wires every implied
// topology their types allow. spreadLegs maps a spread market id to the id
// of its future leg.
func NewGroup(pair string, infos []core.MarketInfo, spreadLegs map[uint64]uint64, deps Deps, logger zerolog.Logger) *Group {
	if deps.Depth <= 0 {
		deps.Depth = 20
	}
	if deps.ImpliedDepth <= 0 {
		deps.ImpliedDepth = deps.Depth
	}

	g := &Group{
		pair:    pair,
		ids:     core.NewSeqIDGen(0, 0),
		deps:    deps,
		logger:  logger.With().Str("pair", pair).Logger(),
		markets: make(map[uint64]*Market, len(infos)),
		inbox:   make(chan envelope, inboxSize),
		done:    make(chan struct{}),
	}

	for _, info := range infos {
		m := newMarket(info, g, g.ids)
		g.markets[info.MarketID] = m
		g.ordered = append(g.ordered, m)
	}
	g.wireTopologies(spreadLegs)
	return g
}

// wireTopologies attaches an implier to every market whose price is implied
// by two sibling books.
func (g *Group) wireTopologies(spreadLegs map[uint64]uint64) {
	var spot, perp, repo *Market
	for _, m := range g.ordered {
		switch m.info.Type {
		case core.MarketSpot:
			spot = m
		case core.MarketPerp:
			perp = m
		case core.MarketRepo:
			repo = m
		}
	}

	if perp != nil {
		g.perpID = perp.info.MarketID
	}
	if perp != nil && repo != nil {
		for _, m := range g.ordered {
			m.engine.SetSiblingMarkets(perp.info.MarketID, repo.info.MarketID)
		}
	}

	addImplier := func(out *Market, leg1, leg2 *Market, topology core.ImpliedTopology, factor uint64) {
		out.engine.AddImplier(core.NewImplier(
			leg1.engine, leg2.engine, topology, out.info.Tick, factor, g.ids, out))
		g.logger.Info().
			Str("market", out.info.MarketCode).
			Str("topology", topology.String()).
			Str("leg1", leg1.info.MarketCode).
			Str("leg2", leg2.info.MarketCode).
			Msg("Wired implied topology")
	}

	if spot != nil && perp != nil && repo != nil {
		addImplier(spot, perp, repo, core.PerpRepoOutSpot, repo.info.Factor)
		addImplier(perp, spot, repo, core.SpotRepoOutPerp, repo.info.Factor)
		addImplier(repo, spot, perp, core.SpotPerpOutRepo, repo.info.Factor)
	}

	for spreadID, futureID := range spreadLegs {
		spread := g.markets[spreadID]
		future := g.markets[futureID]
		if spread == nil || future == nil || perp == nil {
			continue
		}
		addImplier(future, spread, perp, core.SpreadPerpOutFutures, future.info.Factor)
		addImplier(perp, future, spread, core.FuturesSpreadOutPerp, perp.info.Factor)
		addImplier(spread, future, perp, core.FuturesPerpOutSpread, spread.info.Factor)
	}
}

// Start launches the writer goroutine.
func (g *Group) Start() {
	go g.run()
}

// Close drains the inbox and stops the writer goroutine.
func (g *Group) Close() {
	close(g.inbox)
	<-g.done
}

// Submit queues one inbound order.
func (g *Group) Submit(order core.Order) {
	g.inbox <- envelope{order: &order}
}

// SubmitPrice queues one mark or last price tick.
func (g *Group) SubmitPrice(update messaging.PriceUpdate) {
	g.inbox <- envelope{price: &update}
}

// Market returns the market with the given id, nil when the group does not
// own it.
func (g *Group) Market(marketID uint64) *Market {
	return g.markets[marketID]
}

// Markets lists the markets of the group.
func (g *Group) Markets() []*Market {
	return g.ordered
}

func (g *Group) run() {
	for env := range g.inbox {
		g.process(env)
	}
	close(g.done)
}

func (g *Group) process(env envelope) {
	start := time.Now()
	switch {
	case env.order != nil:
		g.processOrder(env.order)
	case env.price != nil:
		g.processPrice(env.price)
	}
	g.flushDirtyBooks()

	if env.order != nil {
		if m := g.markets[env.order.MarketID]; m != nil {
			otel.GetMatchingMetrics().RecordProcessLatency(context.Background(), m.info.MarketCode, time.Since(start))
		}
	}
}

func (g *Group) processOrder(order *core.Order) {
	if order.Action == core.ActionRecoveryEnd {
		g.recovering = false
		g.logger.Info().Msg("Recovery finished, publishing enabled")
		return
	}

	m := g.markets[order.MarketID]
	if m == nil {
		g.logger.Warn().
			Uint64("market_id", order.MarketID).
			Uint64("order_id", order.OrderID).
			Msg("Order for unknown market dropped")
		return
	}

	if !g.recovering && g.deps.Journal != nil {
		if err := g.deps.Journal.Append(*order); err != nil {
			m.logger.Error().Err(err).Uint64("order_id", order.OrderID).Msg("Journal append failed")
		}
	}

	_, span := otel.StartOrderSpan(context.Background(), otel.SpanProcessOrder,
		attribute.String(otel.AttributeMarketCode, m.info.MarketCode),
		attribute.String(otel.AttributeOrderAction, string(order.Action)),
	)
	m.handleOrder(order)
	if span != nil {
		span.End()
	}
}

func (g *Group) processPrice(update *messaging.PriceUpdate) {
	m := g.markets[update.MarketID]
	if m == nil {
		return
	}

	switch update.Kind {
	case messaging.PriceKindMark:
		// The perp mark price also drives repo quantity conversion in the
		// sibling engines.
		if update.MarketID == g.perpID {
			for _, mk := range g.ordered {
				mk.engine.SetPerpMarkPrice(update.Price)
			}
		}
		m.triggers.MarkPriceTrigger(update.Price)
	case messaging.PriceKindLast:
		m.triggers.LastPriceTrigger(update.Price)
	default:
		g.logger.Warn().Str("kind", update.Kind).Msg("Unknown price update kind")
	}
}

func (g *Group) flushDirtyBooks() {
	for _, m := range g.ordered {
		if !m.bestDirty {
			continue
		}
		m.bestDirty = false
		if g.recovering || g.deps.Books == nil {
			continue
		}
		ctx := context.Background()
		if err := g.deps.Books.SendBookSnapshot(ctx, m.snapshot(g.deps.Depth, g.deps.ImpliedDepth)); err != nil {
			m.logger.Error().Err(err).Msg("Book snapshot publish failed")
		}
		if err := g.deps.Books.SendBestQuote(ctx, m.bestQuote()); err != nil {
			m.logger.Error().Err(err).Msg("Best quote publish failed")
		}
	}
}

func (g *Group) publishOrder(m *Market, order core.Order) {
	if g.recovering || g.deps.Orders == nil {
		return
	}
	if err := g.deps.Orders.SendOrder(context.Background(), order); err != nil {
		m.logger.Error().Err(err).Uint64("order_id", order.OrderID).Msg("Order event publish failed")
	}
}

func (g *Group) publishOrderList(m *Market, orders []core.Order) {
	if g.recovering || len(orders) == 0 {
		return
	}
	ctx := context.Background()
	if g.deps.Orders != nil {
		if err := g.deps.Orders.SendOrderList(ctx, orders); err != nil {
			m.logger.Error().Err(err).Int("count", len(orders)).Msg("Fill batch publish failed")
		}
	}
	if g.deps.Archive != nil {
		if err := g.deps.Archive.SendOrderBatch(ctx, orders); err != nil {
			m.logger.Error().Err(err).Int("count", len(orders)).Msg("Fill batch archive failed")
		}
	}
	otel.GetMatchingMetrics().RecordFills(ctx, m.info.MarketCode, int64(len(orders)))
}

func (g *Group) storeTriggerOrder(m *Market, order *core.Order) {
	if g.deps.Store == nil {
		return
	}
	if err := g.deps.Store.SaveOrder(order); err != nil {
		m.logger.Error().Err(err).Uint64("order_id", order.OrderID).Msg("Trigger order store failed")
	}
}

func (g *Group) triggerReleased(m *Market) {
	otel.GetMatchingMetrics().RecordTriggerFired(context.Background(), m.info.MarketCode, 1)
}

// beginRecovery flips the group into replay mode. Must be called before
// Start.
func (g *Group) beginRecovery() {
	g.recovering = true
}

// replayOrder feeds one journaled order through the group synchronously.
// New orders are replayed as RECOVERY so nothing is published or matched
// twice, cancels and amends replay as themselves.
func (g *Group) replayOrder(order core.Order) {
	if order.Action == core.ActionNew {
		order.Action = core.ActionRecovery
	}
	g.process(envelope{order: &order})
}

// finishRecovery re-enables publishing. Must be called before Start.
func (g *Group) finishRecovery() {
	g.recovering = false
}
