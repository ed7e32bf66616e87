// Trade routes and continuous arbitrage discovery across the market graph.
package economy

import (
	"sort"

	"github.com/astralforge/starhold/internal/config"
	"github.com/astralforge/starhold/internal/resource"
	"github.com/astralforge/starhold/internal/simerr"
)

// RouteRisk classifies the hazard of travelling a route.
type RouteRisk uint8

const (
	RiskSafe RouteRisk = iota
	RiskLow
	RiskModerate
	RiskHigh
	RiskExtreme
)

func (r RouteRisk) String() string {
	switch r {
	case RiskSafe:
		return "safe"
	case RiskLow:
		return "low"
	case RiskModerate:
		return "moderate"
	case RiskHigh:
		return "high"
	default:
		return "extreme"
	}
}

// Factor is the fraction of expected profit discounted for risk.
func (r RouteRisk) Factor() float64 {
	switch r {
	case RiskSafe:
		return 0
	case RiskLow:
		return 0.05
	case RiskModerate:
		return 0.15
	case RiskHigh:
		return 0.30
	default:
		return 0.50
	}
}

// TradeRoute is one directed edge; the reverse direction is a separate
// route.
type TradeRoute struct {
	Source      MarketID  `json:"source"`
	Destination MarketID  `json:"destination"`
	Distance    float64   `json:"distance"`
	TravelTime  float64   `json:"travel_time"` // sim seconds
	Risk        RouteRisk `json:"risk"`
}

// TradeOpportunity is a computed, short-lived arbitrage candidate.
type TradeOpportunity struct {
	Route              TradeRoute    `json:"route"`
	Resource           resource.Type `json:"resource"`
	BuyPrice           int64         `json:"buy_price"`
	SellPrice          int64         `json:"sell_price"`
	AchievableQuantity int64         `json:"achievable_quantity"`
	GrossProfit        int64         `json:"gross_profit"`
	NetProfit          int64         `json:"net_profit"`
	Score              float64       `json:"score"`
	ObservedAt         float64       `json:"observed_at"`
	ExpiresAt          float64       `json:"expires_at"`
}

// RouteAnalyzer owns the route graph and refreshes ranked opportunities.
type RouteAnalyzer struct {
	cfg    *config.EconomyConfig
	lookup func(MarketID) (*Market, *PriceEngine)

	routes    []TradeRoute
	adjacency map[MarketID][]MarketID

	opportunities []TradeOpportunity
	refreshAccum  float64
}

// NewRouteAnalyzer builds an analyzer over market lookups.
func NewRouteAnalyzer(cfg *config.EconomyConfig, lookup func(MarketID) (*Market, *PriceEngine)) *RouteAnalyzer {
	return &RouteAnalyzer{
		cfg:       cfg,
		lookup:    lookup,
		adjacency: make(map[MarketID][]MarketID),
	}
}

// AddRoute registers a directed route.
func (ra *RouteAnalyzer) AddRoute(r TradeRoute) error {
	if r.Source == r.Destination {
		return simerr.Validationf("route %s loops onto itself", r.Source)
	}
	if r.Distance < 0 || r.TravelTime < 0 {
		return simerr.Validationf("route %s->%s negative distance or time", r.Source, r.Destination)
	}
	for _, existing := range ra.routes {
		if existing.Source == r.Source && existing.Destination == r.Destination {
			return simerr.Validationf("route %s->%s already registered", r.Source, r.Destination)
		}
	}
	ra.routes = append(ra.routes, r)
	ra.adjacency[r.Source] = append(ra.adjacency[r.Source], r.Destination)
	sort.Slice(ra.adjacency[r.Source], func(i, j int) bool {
		return ra.adjacency[r.Source][i].String() < ra.adjacency[r.Source][j].String()
	})
	return nil
}

// Routes returns the full route graph.
func (ra *RouteAnalyzer) Routes() []TradeRoute { return ra.routes }

// Neighbors returns directly connected downstream markets, sorted.
func (ra *RouteAnalyzer) Neighbors(id MarketID) []MarketID {
	return ra.adjacency[id]
}

// Opportunities returns the latest ranked list, best first.
func (ra *RouteAnalyzer) Opportunities() []TradeOpportunity { return ra.opportunities }

// MaybeRefresh recomputes opportunities when the refresh interval elapses.
func (ra *RouteAnalyzer) MaybeRefresh(now, dt float64) {
	ra.refreshAccum += dt
	if ra.refreshAccum < ra.cfg.RouteRefreshIntervalS {
		return
	}
	ra.refreshAccum -= ra.cfg.RouteRefreshIntervalS
	ra.Refresh(now)
}

// perUnitFreight is the hauling cost per unit-distance, in OMEN.
const perUnitFreight = 0.02

// maxHaulQuantity caps a single opportunity's cargo.
const maxHaulQuantity = 200

// Refresh scans every route and resource for profitable spreads.
func (ra *RouteAnalyzer) Refresh(now float64) {
	opps := ra.opportunities[:0]
	for _, route := range ra.routes {
		srcMarket, srcEngine := ra.lookup(route.Source)
		dstMarket, dstEngine := ra.lookup(route.Destination)
		if srcMarket == nil || dstMarket == nil {
			continue
		}
		for _, r := range srcMarket.TrackedResources() {
			if !dstMarket.Tracked(r) {
				continue
			}
			buy, err := srcEngine.BuyPrice(r)
			if err != nil {
				continue
			}
			sell, err := dstEngine.SellPrice(r)
			if err != nil || sell <= buy {
				continue
			}
			supply, _ := srcMarket.GetSupply(r)
			qty := supply
			if qty > maxHaulQuantity {
				qty = maxHaulQuantity
			}
			if qty < 1 {
				continue
			}

			gross := (sell - buy) * qty
			freight := int64(route.Distance * perUnitFreight * float64(qty))
			riskCost := int64(float64(gross) * route.Risk.Factor())
			net := gross - freight - riskCost
			if net <= 0 {
				continue
			}

			score := float64(net)
			if route.TravelTime > 0 {
				score = float64(net) / (1 + ra.cfg.RouteRiskWeight*route.TravelTime/60)
			}

			opps = append(opps, TradeOpportunity{
				Route:              route,
				Resource:           r,
				BuyPrice:           buy,
				SellPrice:          sell,
				AchievableQuantity: qty,
				GrossProfit:        gross,
				NetProfit:          net,
				Score:              score,
				ObservedAt:         now,
				ExpiresAt:          now + ra.cfg.OpportunityTTLS,
			})
		}
	}
	sort.Slice(opps, func(i, j int) bool {
		if opps[i].Score != opps[j].Score {
			return opps[i].Score > opps[j].Score
		}
		return opps[i].Resource < opps[j].Resource
	})
	ra.opportunities = opps
}
