// Price engine: translates one market's supply/demand state into current
// buy/sell prices through smoothed multiplier chains.
package economy

import (
	"fmt"
	"math"

	"github.com/astralforge/starhold/internal/config"
	"github.com/astralforge/starhold/internal/entropy"
	"github.com/astralforge/starhold/internal/resource"
	"github.com/astralforge/starhold/internal/simerr"
)

// VolatilityClass buckets how wildly a price may swing per update.
type VolatilityClass uint8

const (
	VolVeryLow VolatilityClass = iota
	VolLow
	VolNormal
	VolHigh
	VolVeryHigh
	VolExtreme
)

func (v VolatilityClass) String() string {
	switch v {
	case VolVeryLow:
		return "very_low"
	case VolLow:
		return "low"
	case VolNormal:
		return "normal"
	case VolHigh:
		return "high"
	case VolVeryHigh:
		return "very_high"
	default:
		return "extreme"
	}
}

// Range returns the symmetric noise range for the class.
func (v VolatilityClass) Range() float64 {
	switch v {
	case VolVeryLow:
		return 0.02
	case VolLow:
		return 0.05
	case VolNormal:
		return 0.10
	case VolHigh:
		return 0.20
	case VolVeryHigh:
		return 0.35
	default:
		return 0.60
	}
}

// classForCoV maps a coefficient of variation onto a volatility class.
func classForCoV(cov float64) VolatilityClass {
	switch {
	case cov < 0.02:
		return VolVeryLow
	case cov < 0.05:
		return VolLow
	case cov < 0.10:
		return VolNormal
	case cov < 0.20:
		return VolHigh
	case cov < 0.35:
		return VolVeryHigh
	default:
		return VolExtreme
	}
}

// DynamicPrice is the live quote for one (market, resource).
type DynamicPrice struct {
	Resource        resource.Type   `json:"resource"`
	CurrentBuy      int64           `json:"current_buy"`
	CurrentSell     int64           `json:"current_sell"`
	BasePrice       int64           `json:"base_price"`
	PriceMultiplier float64         `json:"price_multiplier"`
	Volatility      VolatilityClass `json:"volatility"`
	Trend           Trend           `json:"trend"`
	TrendMomentum   float64         `json:"trend_momentum"`
	LastUpdate      float64         `json:"last_update"`
}

// EventPriceModifier is a multiplicative price modifier with an expiry.
type EventPriceModifier struct {
	EventID   string  `json:"event_id"`
	Mult      float64 `json:"mult"`
	ExpiresAt float64 `json:"expires_at"`
}

// PriceShock decays exponentially toward zero.
type PriceShock struct {
	Mult      float64 `json:"mult"` // additive on top of 1.0
	DecayRate float64 `json:"decay_rate"`
}

// PriceEngine owns the quote table for one market. Randomization uses the
// engine's own seeded stream so scenarios replay from (seed, tick).
type PriceEngine struct {
	market *Market
	cfg    *config.EconomyConfig
	rng    *entropy.Stream

	prices    map[resource.Type]*DynamicPrice
	modifiers map[resource.Type][]EventPriceModifier
	shocks    map[resource.Type][]PriceShock
}

// NewPriceEngine creates an engine over a market with prices seeded from
// resource base prices.
func NewPriceEngine(m *Market, cfg *config.EconomyConfig, rng *entropy.Stream) *PriceEngine {
	pe := &PriceEngine{
		market:    m,
		cfg:       cfg,
		rng:       rng,
		prices:    make(map[resource.Type]*DynamicPrice),
		modifiers: make(map[resource.Type][]EventPriceModifier),
		shocks:    make(map[resource.Type][]PriceShock),
	}
	for _, r := range m.TrackedResources() {
		base := resource.BasePrice(r)
		pe.prices[r] = &DynamicPrice{
			Resource:        r,
			BasePrice:       base,
			CurrentBuy:      base,
			CurrentSell:     int64(math.Round(float64(base) * cfg.SellRatio)),
			PriceMultiplier: 1,
			Volatility:      VolNormal,
		}
	}
	return pe
}

// Market returns the market this engine prices.
func (pe *PriceEngine) Market() *Market { return pe.market }

func (pe *PriceEngine) price(r resource.Type) (*DynamicPrice, error) {
	p, ok := pe.prices[r]
	if !ok {
		return nil, simerr.NotFound("price", fmt.Sprintf("%s@%s", r, pe.market.ID))
	}
	return p, nil
}

// BuyPrice returns the current per-unit buy price.
func (pe *PriceEngine) BuyPrice(r resource.Type) (int64, error) {
	p, err := pe.price(r)
	if err != nil {
		return 0, err
	}
	return p.CurrentBuy, nil
}

// SellPrice returns the current per-unit sell price.
func (pe *PriceEngine) SellPrice(r resource.Type) (int64, error) {
	p, err := pe.price(r)
	if err != nil {
		return 0, err
	}
	return p.CurrentSell, nil
}

// Quote returns a copy of the full dynamic price record.
func (pe *PriceEngine) Quote(r resource.Type) (DynamicPrice, error) {
	p, err := pe.price(r)
	if err != nil {
		return DynamicPrice{}, err
	}
	return *p, nil
}

// BuyPriceForQuantity applies the volume discount curve: per-unit price
// drops by up to VolumeDiscountMax as quantity grows.
func (pe *PriceEngine) BuyPriceForQuantity(r resource.Type, n int64) (int64, error) {
	p, err := pe.price(r)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, simerr.Validationf("quantity %d", n)
	}
	discount := float64(n) * pe.cfg.VolumeDiscountSlope
	if discount > pe.cfg.VolumeDiscountMax {
		discount = pe.cfg.VolumeDiscountMax
	}
	unit := float64(p.CurrentBuy) * (1 - discount)
	total := int64(math.Round(unit * float64(n)))
	if total < n { // never below one OMEN per unit
		total = n
	}
	return total, nil
}

// ApplyPriceShock layers an exponentially decaying shock onto a resource.
func (pe *PriceEngine) ApplyPriceShock(r resource.Type, mult, decayRate float64) error {
	if _, err := pe.price(r); err != nil {
		return err
	}
	if decayRate <= 0 {
		return simerr.Validationf("shock decay rate %v", decayRate)
	}
	pe.shocks[r] = append(pe.shocks[r], PriceShock{Mult: mult, DecayRate: decayRate})
	return nil
}

// ApplyEventModifier layers a multiplicative modifier that drops after
// duration seconds of sim time.
func (pe *PriceEngine) ApplyEventModifier(eventID string, r resource.Type, mult float64, expiresAt float64) error {
	if _, err := pe.price(r); err != nil {
		return err
	}
	if mult <= 0 {
		return simerr.Validationf("event price modifier %v", mult)
	}
	pe.modifiers[r] = append(pe.modifiers[r], EventPriceModifier{EventID: eventID, Mult: mult, ExpiresAt: expiresAt})
	return nil
}

// RemoveEventModifiers drops modifiers belonging to an event id early.
func (pe *PriceEngine) RemoveEventModifiers(eventID string) {
	for r, mods := range pe.modifiers {
		kept := mods[:0]
		for _, m := range mods {
			if m.EventID != eventID {
				kept = append(kept, m)
			}
		}
		pe.modifiers[r] = kept
	}
}

// eventModifierProduct folds unexpired modifiers, pruning dead ones.
func (pe *PriceEngine) eventModifierProduct(r resource.Type, now float64) float64 {
	product := 1.0
	kept := pe.modifiers[r][:0]
	for _, m := range pe.modifiers[r] {
		if m.ExpiresAt <= now {
			continue
		}
		kept = append(kept, m)
		product *= m.Mult
	}
	pe.modifiers[r] = kept
	return product
}

// shockSum folds active shocks and decays them by dt.
func (pe *PriceEngine) shockSum(r resource.Type, dt float64) float64 {
	sum := 0.0
	kept := pe.shocks[r][:0]
	for _, s := range pe.shocks[r] {
		s.Mult *= math.Exp(-s.DecayRate * dt)
		if math.Abs(s.Mult) < 1e-4 {
			continue
		}
		kept = append(kept, s)
		sum += s.Mult
	}
	pe.shocks[r] = kept
	return sum
}

// Advance recomputes every quote. now is sim seconds, dt the seconds since
// the last price update.
func (pe *PriceEngine) Advance(now, dt float64) error {
	for _, r := range pe.market.TrackedResources() {
		p := pe.prices[r]
		sd, err := pe.market.Record(r)
		if err != nil {
			return err
		}

		// Supply/demand pressure, tempered by elasticity exponent.
		demand := sd.BaseDemand*sd.DemandModifier + sd.DemandRate
		baseMult := math.Pow(demand/(sd.CurrentSupply+ratioEpsilon), pe.cfg.DemandElasticity)
		baseMult = clampf(baseMult, pe.cfg.MinMult, pe.cfg.MaxMult)
		sdFactor := 1 + (baseMult-1)*pe.cfg.SupplyDemandWeight

		// Volatility class follows observed dispersion; noise stays in class range.
		h, _ := pe.market.History(r)
		if h != nil && h.Len() >= 2 {
			p.Volatility = classForCoV(h.CoefficientOfVariation(pe.cfg.TrendWindow))
		}
		volRange := p.Volatility.Range()
		volatilityFactor := 1 + pe.rng.Range(-volRange, volRange)

		if h != nil {
			p.Trend, p.TrendMomentum = h.Analyze(pe.cfg.TrendWindow, pe.cfg.VolatilityThresh)
		}
		trendFactor := 1 + p.TrendMomentum*pe.cfg.TrendCoefficient

		eventMod := pe.eventModifierProduct(r, now)

		specMod := 1.0
		if pe.market.Specialized[r] {
			specMod = pe.market.SpecializationBonus
		}

		target := sdFactor * volatilityFactor * trendFactor * eventMod * specMod
		// Smoothing lerp never overshoots the target.
		p.PriceMultiplier += (target - p.PriceMultiplier) * pe.cfg.PriceSmoothing

		shock := pe.shockSum(r, dt)
		floor := pe.cfg.PriceFloor
		if pe.market.Specialized[r] {
			floor = int64(math.Round(float64(floor) * pe.market.SpecializationBonus))
		}
		buy := int64(math.Round(float64(p.BasePrice) * p.PriceMultiplier * (1 + shock)))
		p.CurrentBuy = clampi(buy, floor, pe.cfg.PriceCeiling)
		p.CurrentSell = int64(math.Round(float64(p.CurrentBuy) * pe.cfg.SellRatio))
		p.LastUpdate = now

		// Quotes feed the history so trend analysis sees idle markets too.
		pe.market.RecordPricePoint(r, now, p.CurrentBuy, 0)
	}
	return pe.CheckInvariants()
}

// PredictPrice extrapolates the buy price linearly on trend momentum.
func (pe *PriceEngine) PredictPrice(r resource.Type, hoursAhead float64) (int64, error) {
	p, err := pe.price(r)
	if err != nil {
		return 0, err
	}
	// Momentum is fractional change per sample; one sample per update.
	samples := hoursAhead * 3600.0 / pe.cfg.PriceUpdateIntervalS
	predicted := float64(p.CurrentBuy) * (1 + p.TrendMomentum*samples)
	return clampi(int64(math.Round(predicted)), pe.cfg.PriceFloor, pe.cfg.PriceCeiling), nil
}

// CheckInvariants verifies price bounds at the tick boundary.
func (pe *PriceEngine) CheckInvariants() error {
	for r, p := range pe.prices {
		if p.CurrentBuy < pe.cfg.PriceFloor || p.CurrentBuy > pe.cfg.PriceCeiling {
			return simerr.Corruptedf("price %s@%s buy %d outside [%d,%d]",
				r, pe.market.ID, p.CurrentBuy, pe.cfg.PriceFloor, pe.cfg.PriceCeiling)
		}
		if p.CurrentSell > p.CurrentBuy {
			return simerr.Corruptedf("price %s@%s sell %d above buy %d",
				r, pe.market.ID, p.CurrentSell, p.CurrentBuy)
		}
	}
	return nil
}

// Modifiers exposes active event modifiers for snapshotting.
func (pe *PriceEngine) Modifiers() map[resource.Type][]EventPriceModifier {
	return pe.modifiers
}

// Shocks exposes active decaying shocks for snapshotting.
func (pe *PriceEngine) Shocks() map[resource.Type][]PriceShock {
	return pe.shocks
}

// RestoreQuote replaces a quote record wholesale (snapshot restore).
func (pe *PriceEngine) RestoreQuote(q DynamicPrice) {
	cp := q
	pe.prices[q.Resource] = &cp
}

// RestoreModifiers replaces modifier and shock state (snapshot restore).
func (pe *PriceEngine) RestoreModifiers(mods map[resource.Type][]EventPriceModifier, shocks map[resource.Type][]PriceShock) {
	pe.modifiers = make(map[resource.Type][]EventPriceModifier, len(mods))
	for r, m := range mods {
		pe.modifiers[r] = append([]EventPriceModifier(nil), m...)
	}
	pe.shocks = make(map[resource.Type][]PriceShock, len(shocks))
	for r, s := range shocks {
		pe.shocks[r] = append([]PriceShock(nil), s...)
	}
}

func clampi(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
