// Economy manager: owns every market, price engine, event, ripple, and
// route, orchestrates their advance steps, and executes trades.
package economy

import (
	"log/slog"
	"sort"

	"github.com/astralforge/starhold/internal/bus"
	"github.com/astralforge/starhold/internal/config"
	"github.com/astralforge/starhold/internal/entropy"
	"github.com/astralforge/starhold/internal/inventory"
	"github.com/astralforge/starhold/internal/resource"
	"github.com/astralforge/starhold/internal/simerr"
)

// TradeSide distinguishes buy from sell.
type TradeSide uint8

const (
	SideBuy TradeSide = iota
	SideSell
)

func (s TradeSide) String() string {
	if s == SideBuy {
		return "buy"
	}
	return "sell"
}

// Manager is the world's single owner of economic state.
type Manager struct {
	cfg *config.Config
	bus *bus.Bus

	markets map[MarketID]*Market
	engines map[MarketID]*PriceEngine

	Events   *EventSystem
	Ripples  *RippleSystem
	Analyzer *RouteAnalyzer

	priceRNG *entropy.Stream
	eventRNG *entropy.Stream

	now  float64 // sim seconds
	tick uint64

	marketAccum float64
	priceAccum  float64
}

// NewManager builds an empty economy under the given tuning.
func NewManager(cfg *config.Config, b *bus.Bus) *Manager {
	m := &Manager{
		cfg:      cfg,
		bus:      b,
		markets:  make(map[MarketID]*Market),
		engines:  make(map[MarketID]*PriceEngine),
		priceRNG: entropy.NewStream(cfg.Seed, "economy.price"),
		eventRNG: entropy.NewStream(cfg.Seed, "economy.event"),
	}
	m.Analyzer = NewRouteAnalyzer(&cfg.Economy, m.lookup)
	m.Ripples = NewRippleSystem(&cfg.Economy, b, m.lookup, m.neighborsBoth)
	m.Events = NewEventSystem(&cfg.Economy, m.eventRNG, b, m.lookup, m.MarketIDs, m.Ripples)
	return m
}

func (m *Manager) lookup(id MarketID) (*Market, *PriceEngine) {
	return m.markets[id], m.engines[id]
}

// neighborsBoth treats routes as propagation channels in both directions:
// a disruption travels against cargo flow as readily as with it.
func (m *Manager) neighborsBoth(id MarketID) []MarketID {
	seen := make(map[MarketID]bool)
	var out []MarketID
	for _, r := range m.Analyzer.Routes() {
		var other MarketID
		switch id {
		case r.Source:
			other = r.Destination
		case r.Destination:
			other = r.Source
		default:
			continue
		}
		if !seen[other] {
			seen[other] = true
			out = append(out, other)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Now returns the current simulation time in seconds.
func (m *Manager) Now() float64 { return m.now }

// SetClock restores the sim clock (snapshot load).
func (m *Manager) SetClock(now float64, tick uint64) {
	m.now = now
	m.tick = tick
}

// RegisterMarket takes ownership of a market and builds its price engine.
func (m *Manager) RegisterMarket(mk *Market) error {
	if _, exists := m.markets[mk.ID]; exists {
		return simerr.Validationf("market %s already registered", mk.ID)
	}
	m.markets[mk.ID] = mk
	m.engines[mk.ID] = NewPriceEngine(mk, &m.cfg.Economy, m.priceRNG)
	return nil
}

// UnregisterMarket drops a market; active events keep running for their
// other markets.
func (m *Manager) UnregisterMarket(id MarketID) error {
	if _, ok := m.markets[id]; !ok {
		return simerr.NotFound("market", id.String())
	}
	delete(m.markets, id)
	delete(m.engines, id)
	m.Events.DropMarket(id)
	return nil
}

// Market returns an owned market by id.
func (m *Manager) Market(id MarketID) (*Market, error) {
	mk, ok := m.markets[id]
	if !ok {
		return nil, simerr.NotFound("market", id.String())
	}
	return mk, nil
}

// Engine returns the price engine for a market.
func (m *Manager) Engine(id MarketID) (*PriceEngine, error) {
	pe, ok := m.engines[id]
	if !ok {
		return nil, simerr.NotFound("market", id.String())
	}
	return pe, nil
}

// MarketIDs returns all registered market ids, sorted.
func (m *Manager) MarketIDs() []MarketID {
	ids := make([]MarketID, 0, len(m.markets))
	for id := range m.markets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// BuyPrice implements the trading-provider contract for external callers.
func (m *Manager) BuyPrice(id MarketID, r resource.Type) (int64, error) {
	pe, err := m.Engine(id)
	if err != nil {
		return 0, err
	}
	return pe.BuyPrice(r)
}

// SellPrice implements the trading-provider contract for external callers.
func (m *Manager) SellPrice(id MarketID, r resource.Type) (int64, error) {
	pe, err := m.Engine(id)
	if err != nil {
		return 0, err
	}
	return pe.SellPrice(r)
}

// ExecuteTrade performs an all-or-nothing trade against one market. OMEN
// in the trader's inventory is the unit of account. Buying consumes market
// supply; selling deposits into it. Every trade records a price point and
// registers player demand pressure.
func (m *Manager) ExecuteTrade(id MarketID, r resource.Type, qty int64, side TradeSide, trader inventory.Provider) (int64, error) {
	if qty < 1 {
		return 0, simerr.Validationf("trade quantity %d", qty)
	}
	mk, err := m.Market(id)
	if err != nil {
		return 0, err
	}
	pe := m.engines[id]

	switch side {
	case SideBuy:
		total, err := pe.BuyPriceForQuantity(r, qty)
		if err != nil {
			return 0, err
		}
		// Reserve both sides before mutating anything.
		supply, err := mk.GetSupply(r)
		if err != nil {
			return 0, err
		}
		if supply < qty {
			return 0, simerr.Insufficientf("market %s has %d %s, want %d", id, supply, r, qty)
		}
		if !trader.Has(resource.OMEN, total) {
			return 0, simerr.Insufficientf("need %d omen, have %d", total, trader.Count(resource.OMEN))
		}
		if err := mk.RemoveSupply(r, qty); err != nil {
			return 0, err
		}
		trader.Remove(resource.OMEN, total)
		trader.Add(r, qty)
		mk.RegisterPlayerDemand(r, qty)
		mk.RecordPricePoint(r, m.now, total/qty, qty)
		m.publishTrade(id, r, qty, side, total)
		return total, nil

	case SideSell:
		price, err := pe.SellPrice(r)
		if err != nil {
			return 0, err
		}
		if !trader.Has(r, qty) {
			return 0, simerr.Insufficientf("trader has %d %s, want %d", trader.Count(r), r, qty)
		}
		total := price * qty
		trader.Remove(r, qty)
		trader.Add(resource.OMEN, total)
		mk.AddSupply(r, qty)
		mk.RecordPricePoint(r, m.now, price, qty)
		m.publishTrade(id, r, qty, side, total)
		return total, nil
	}
	return 0, simerr.Validationf("unknown trade side %d", side)
}

func (m *Manager) publishTrade(id MarketID, r resource.Type, qty int64, side TradeSide, total int64) {
	m.bus.Publish(m.tick, bus.KindTradeExecuted, bus.TradePayload{
		Market:    id.String(),
		Resource:  r.String(),
		Quantity:  qty,
		Side:      side.String(),
		UnitPrice: total / qty,
		Total:     total,
	})
}

// CombatSignal consumes the external combat contract: kills near a market
// spawn a combat-zone ripple scaled by damage.
func (m *Manager) CombatSignal(nearest MarketID, damage float64, wasKill bool) {
	if _, ok := m.markets[nearest]; !ok {
		slog.Warn("combat signal for unknown market", "market", nearest.String())
		return
	}
	intensity := damage / 1000
	if wasKill {
		intensity += 0.25
	}
	if intensity < 0.05 {
		return
	}
	m.Ripples.CreateCombatZone(nearest, intensity)
}

// CraftingDemandSignal consumes heavy crafting consumption upstream: a
// demand surge ripples out from the market nearest the facility.
func (m *Manager) CraftingDemandSignal(origin MarketID, r resource.Type, qty int64) {
	if _, ok := m.markets[origin]; !ok {
		return
	}
	magnitude := float64(qty) / 100
	if magnitude > 1 {
		magnitude = 1
	}
	if magnitude < 0.1 {
		return
	}
	m.Ripples.CreateCraftingDemandSurge(origin, r, magnitude)
}

// Advance steps the economy by dt sim-seconds in dependency order:
// markets, price engines, events, ripples, route analysis.
func (m *Manager) Advance(tick uint64, dt float64) error {
	m.tick = tick
	m.now += dt

	ids := m.MarketIDs()

	m.marketAccum += dt
	if m.marketAccum >= m.cfg.Economy.SimulationThresholdS {
		step := m.marketAccum
		m.marketAccum = 0
		dtHours := m.cfg.GameHours(step)
		for _, id := range ids {
			if err := m.markets[id].Advance(m.now, dtHours); err != nil {
				return err
			}
		}
	}

	m.priceAccum += dt
	if m.priceAccum >= m.cfg.Economy.PriceUpdateIntervalS {
		step := m.priceAccum
		m.priceAccum = 0
		for _, id := range ids {
			if err := m.engines[id].Advance(m.now, step); err != nil {
				return err
			}
		}
	}

	m.Events.Advance(tick, m.now, dt, m.cfg.GameHours(dt))
	m.Ripples.Advance(tick, m.now, dt)
	m.Analyzer.MaybeRefresh(m.now, dt)
	return nil
}

// RNGStates exposes the manager's stream positions for snapshots.
func (m *Manager) RNGStates() []entropy.State {
	return []entropy.State{m.priceRNG.State(), m.eventRNG.State()}
}

// RestoreRNG rewinds the named streams.
func (m *Manager) RestoreRNG(states []entropy.State) {
	for _, st := range states {
		switch st.Name {
		case "economy.price":
			m.priceRNG.Restore(st)
		case "economy.event":
			m.eventRNG.Restore(st)
		}
	}
}
