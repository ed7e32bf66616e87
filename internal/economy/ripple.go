// Ripple propagation: catastrophic events and external stimuli spread as
// dampened BFS waves across the trade-route graph.
package economy

import (
	"log/slog"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/astralforge/starhold/internal/bus"
	"github.com/astralforge/starhold/internal/config"
	"github.com/astralforge/starhold/internal/simerr"

	"github.com/astralforge/starhold/internal/resource"
)

// RippleType is the closed set of wave kinds; each maps to a specific
// perturbation on downstream markets.
type RippleType string

const (
	RippleSupplyShock     RippleType = "supply_shock"
	RippleDemandShock     RippleType = "demand_shock"
	RipplePriceShock      RippleType = "price_shock"
	RippleTradeDisruption RippleType = "trade_disruption"
	RippleCombatZone      RippleType = "combat_zone"
	RippleCraftingDemand  RippleType = "crafting_demand"
)

// Ripple is one active wave. Negative magnitude means supply decrease.
type Ripple struct {
	ID            string          `json:"id"`
	Type          RippleType      `json:"type"`
	Origin        MarketID        `json:"origin"`
	Resources     []resource.Type `json:"resources"`
	Magnitude     float64         `json:"magnitude"`
	CurrentDepth  int             `json:"current_depth"`
	MaxDepth      int             `json:"max_depth"`
	Dampening     float64         `json:"dampening"` // (0,1] per hop
	Visited       map[MarketID]bool `json:"visited"`
	WaveFront     []MarketID      `json:"wave_front"`
	SourceEventID string          `json:"source_event_id,omitempty"`
}

// EffectiveMagnitude at the current depth.
func (r *Ripple) EffectiveMagnitude() float64 {
	return r.Magnitude * math.Pow(r.Dampening, float64(r.CurrentDepth))
}

// RippleSystem owns all active ripples and advances them one hop per step.
type RippleSystem struct {
	cfg       *config.EconomyConfig
	bus       *bus.Bus
	lookup    func(MarketID) (*Market, *PriceEngine)
	neighbors func(MarketID) []MarketID

	active []*Ripple

	stepAccumulator float64
	tick            uint64
	now             float64
}

// NewRippleSystem wires ripples over market lookup and route adjacency.
func NewRippleSystem(cfg *config.EconomyConfig, b *bus.Bus,
	lookup func(MarketID) (*Market, *PriceEngine),
	neighbors func(MarketID) []MarketID) *RippleSystem {
	return &RippleSystem{cfg: cfg, bus: b, lookup: lookup, neighbors: neighbors}
}

// Spawn creates a ripple whose wave-front starts at the origin market.
func (rs *RippleSystem) Spawn(t RippleType, origin MarketID, resources []resource.Type, magnitude float64, sourceEventID string) *Ripple {
	r := &Ripple{
		ID:            uuid.NewString(),
		Type:          t,
		Origin:        origin,
		Resources:     append([]resource.Type(nil), resources...),
		Magnitude:     magnitude,
		MaxDepth:      rs.cfg.RippleMaxDepth,
		Dampening:     rs.cfg.RippleDampening,
		Visited:       make(map[MarketID]bool),
		WaveFront:     []MarketID{origin},
		SourceEventID: sourceEventID,
	}
	rs.active = append(rs.active, r)
	rs.bus.Publish(rs.tick, bus.KindRippleSpawned, map[string]any{
		"id": r.ID, "type": string(t), "origin": origin.String(), "magnitude": magnitude,
	})
	return r
}

// CreateCombatZone is the combat-signal entry point: a combat zone near a
// market depresses supply and raises risk-driven prices around it.
func (rs *RippleSystem) CreateCombatZone(nearest MarketID, intensity float64) *Ripple {
	if intensity > 1 {
		intensity = 1
	}
	return rs.Spawn(RippleCombatZone, nearest, resource.All[:4], -0.4*intensity, "")
}

// CreateCraftingDemandSurge is the crafting-signal entry point.
func (rs *RippleSystem) CreateCraftingDemandSurge(origin MarketID, r resource.Type, magnitude float64) *Ripple {
	return rs.Spawn(RippleCraftingDemand, origin, []resource.Type{r}, magnitude, "")
}

// Cancel removes a ripple by id.
func (rs *RippleSystem) Cancel(id string) error {
	for i, r := range rs.active {
		if r.ID == id {
			rs.active = append(rs.active[:i], rs.active[i+1:]...)
			return nil
		}
	}
	return simerr.NotFound("ripple", id)
}

// Active returns active ripples in id order.
func (rs *RippleSystem) Active() []*Ripple {
	out := append([]*Ripple(nil), rs.active...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Restore reinstates a ripple from a snapshot.
func (rs *RippleSystem) Restore(r *Ripple) {
	if r.Visited == nil {
		r.Visited = make(map[MarketID]bool)
	}
	rs.active = append(rs.active, r)
}

// Advance moves every active ripple one hop when the step interval elapses.
func (rs *RippleSystem) Advance(tick uint64, now, dt float64) {
	rs.tick, rs.now = tick, now
	rs.stepAccumulator += dt
	if rs.stepAccumulator < rs.cfg.RippleStepIntervalS {
		return
	}
	rs.stepAccumulator -= rs.cfg.RippleStepIntervalS

	kept := rs.active[:0]
	for _, r := range rs.active {
		if rs.step(r) {
			kept = append(kept, r)
		}
	}
	rs.active = kept
}

// step applies the current wave-front and builds the next one. Returns
// false when the ripple terminates.
func (rs *RippleSystem) step(r *Ripple) bool {
	eff := r.EffectiveMagnitude()
	if math.Abs(eff) < rs.cfg.MagnitudeCutoff || r.CurrentDepth > r.MaxDepth || len(r.WaveFront) == 0 {
		return false
	}

	next := make(map[MarketID]bool)
	for _, mid := range r.WaveFront {
		if r.Visited[mid] {
			continue
		}
		r.Visited[mid] = true

		market, engine := rs.lookup(mid)
		if market == nil {
			slog.Warn("ripple skipped dead market", "ripple", r.ID, "market", mid.String())
			rs.bus.Publish(rs.tick, bus.KindWarning, bus.WarningPayload{
				Subsystem: "ripple", Message: "skipped dead market " + mid.String(),
			})
		} else {
			rs.perturb(r, market, engine, eff)
		}

		for _, n := range rs.neighbors(mid) {
			if !r.Visited[n] {
				next[n] = true
			}
		}
	}

	r.WaveFront = r.WaveFront[:0]
	for mid := range next {
		r.WaveFront = append(r.WaveFront, mid)
	}
	sort.Slice(r.WaveFront, func(i, j int) bool { return r.WaveFront[i].String() < r.WaveFront[j].String() })

	r.CurrentDepth++
	if r.CurrentDepth > r.MaxDepth || len(r.WaveFront) == 0 {
		return false
	}
	return math.Abs(r.EffectiveMagnitude()) >= rs.cfg.MagnitudeCutoff
}

// rippleModifierTTL is how long one hop's perturbation lingers, sim seconds.
const rippleModifierTTL = 120.0

// perturb maps the ripple type onto a concrete short-lived modifier.
func (rs *RippleSystem) perturb(r *Ripple, market *Market, engine *PriceEngine, eff float64) {
	expires := rs.now + rippleModifierTTL
	for _, res := range r.Resources {
		if !market.Tracked(res) {
			continue
		}
		switch r.Type {
		case RippleSupplyShock, RippleCombatZone:
			// Negative magnitude = supply decrease.
			market.AddTransient(res, clampf(1+eff, 0.05, 4), 1, expires)
		case RippleDemandShock, RippleCraftingDemand:
			market.AddTransient(res, 1, clampf(1+math.Abs(eff), 1, 4), expires)
		case RipplePriceShock:
			engine.ApplyPriceShock(res, eff, 1.0/rippleModifierTTL*4)
		case RippleTradeDisruption:
			// Disrupted logistics: less inbound supply and costlier goods.
			market.AddTransient(res, clampf(1-math.Abs(eff)*0.5, 0.1, 1), 1, expires)
			engine.ApplyEventModifier(r.ID, res, clampf(1+math.Abs(eff)*0.3, 1, 2), expires)
		}
	}
}
