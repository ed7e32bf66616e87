// Market supply/demand bookkeeping. Each market owns a SupplyDemand record
// per tracked resource and advances it over simulated time; prices are
// derived separately by the price engine.
package economy

import (
	"fmt"
	"math"

	"github.com/astralforge/starhold/internal/resource"
	"github.com/astralforge/starhold/internal/simerr"
)

// MarketID is the stable (region, market) identifier used as a map key.
type MarketID struct {
	Region string `json:"region"`
	Market string `json:"market"`
}

func (id MarketID) String() string {
	return id.Region + "/" + id.Market
}

// ParseMarketID splits a "region/market" string.
func ParseMarketID(s string) (MarketID, error) {
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			return MarketID{Region: s[:i], Market: s[i+1:]}, nil
		}
	}
	return MarketID{}, simerr.Validationf("market id %q missing region separator", s)
}

// SupplyDemand is the per-resource economic state of one market.
type SupplyDemand struct {
	CurrentSupply  float64 `json:"current_supply"`
	MaxSupply      float64 `json:"max_supply"`
	BaseDemand     float64 `json:"base_demand"`
	SupplyRate     float64 `json:"supply_rate"`  // units per game-hour
	DemandRate     float64 `json:"demand_rate"`  // units per game-hour
	SupplyModifier float64 `json:"supply_mod"`   // multiplicative, > 0
	DemandModifier float64 `json:"demand_mod"`   // multiplicative, > 0
	Elasticity     float64 `json:"elasticity"`
}

// transientMod is a time-limited multiplicative perturbation, used by
// ripples. Expired entries are pruned during the advance step.
type transientMod struct {
	SupplyMult float64 `json:"supply_mult"`
	DemandMult float64 `json:"demand_mult"`
	ExpiresAt  float64 `json:"expires_at"` // sim seconds
}

// Market owns supply/demand records and price history for one location.
type Market struct {
	ID MarketID `json:"id"`

	supplyDemand map[resource.Type]*SupplyDemand
	history      map[resource.Type]*PriceHistory
	transients   map[resource.Type][]transientMod

	// pendingDemand holds player-registered demand pulses consumed by the
	// next advance step, already elasticity-scaled.
	pendingDemand map[resource.Type]float64

	Specialized         map[resource.Type]bool `json:"specialized"`
	SpecializationBonus float64                `json:"specialization_bonus"`

	historyCap int
}

// NewMarket creates a market with no tracked resources.
func NewMarket(id MarketID, historyCap int) *Market {
	if historyCap <= 0 {
		historyCap = 100
	}
	return &Market{
		ID:                  id,
		supplyDemand:        make(map[resource.Type]*SupplyDemand),
		history:             make(map[resource.Type]*PriceHistory),
		transients:          make(map[resource.Type][]transientMod),
		pendingDemand:       make(map[resource.Type]float64),
		Specialized:         make(map[resource.Type]bool),
		SpecializationBonus: 1.15,
		historyCap:          historyCap,
	}
}

// Track registers a resource with its initial supply/demand record.
// Invariants are normalized on entry: modifiers default to 1, rates clamp
// at zero, supply clamps into [0, max].
func (m *Market) Track(r resource.Type, sd SupplyDemand) {
	if sd.SupplyModifier <= 0 {
		sd.SupplyModifier = 1
	}
	if sd.DemandModifier <= 0 {
		sd.DemandModifier = 1
	}
	if sd.SupplyRate < 0 {
		sd.SupplyRate = 0
	}
	if sd.DemandRate < 0 {
		sd.DemandRate = 0
	}
	if sd.MaxSupply <= 0 {
		sd.MaxSupply = 1
	}
	sd.CurrentSupply = clampf(sd.CurrentSupply, 0, sd.MaxSupply)
	m.supplyDemand[r] = &sd
	m.history[r] = NewPriceHistory(m.historyCap)
}

// Tracked reports whether the market tracks a resource.
func (m *Market) Tracked(r resource.Type) bool {
	_, ok := m.supplyDemand[r]
	return ok
}

// TrackedResources returns tracked resources in resource-type order.
func (m *Market) TrackedResources() []resource.Type {
	out := make([]resource.Type, 0, len(m.supplyDemand))
	for _, r := range resource.All {
		if _, ok := m.supplyDemand[r]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Specialize marks a resource as a local specialization; its supply rate
// gains the specialization bonus at ingestion and its price floor rises.
func (m *Market) Specialize(r resource.Type) {
	m.Specialized[r] = true
}

// record looks up the supply/demand entry, typed not-found otherwise.
func (m *Market) record(r resource.Type) (*SupplyDemand, error) {
	sd, ok := m.supplyDemand[r]
	if !ok {
		return nil, simerr.NotFound("resource", fmt.Sprintf("%s@%s", r, m.ID))
	}
	return sd, nil
}

// GetSupply returns whole units of current supply.
func (m *Market) GetSupply(r resource.Type) (int64, error) {
	sd, err := m.record(r)
	if err != nil {
		return 0, err
	}
	return int64(sd.CurrentSupply), nil
}

// GetDemandRate returns the effective demand rate per game-hour.
func (m *Market) GetDemandRate(r resource.Type) (float64, error) {
	sd, err := m.record(r)
	if err != nil {
		return 0, err
	}
	return sd.DemandRate * sd.DemandModifier, nil
}

// Scarcity returns 1 - supply/max, in [0,1].
func (m *Market) Scarcity(r resource.Type) (float64, error) {
	sd, err := m.record(r)
	if err != nil {
		return 0, err
	}
	return 1 - sd.CurrentSupply/sd.MaxSupply, nil
}

const ratioEpsilon = 1e-6

// Ratio returns the normalized supply/demand ratio; > 1 means oversupply.
func (m *Market) Ratio(r resource.Type) (float64, error) {
	sd, err := m.record(r)
	if err != nil {
		return 0, err
	}
	return (sd.CurrentSupply / sd.MaxSupply) / (sd.BaseDemand/sd.MaxSupply + ratioEpsilon), nil
}

// AddSupply deposits units, clamped at max supply.
func (m *Market) AddSupply(r resource.Type, n int64) error {
	sd, err := m.record(r)
	if err != nil {
		return err
	}
	if n < 0 {
		return simerr.Validationf("add supply %d", n)
	}
	sd.CurrentSupply = clampf(sd.CurrentSupply+float64(n), 0, sd.MaxSupply)
	return nil
}

// RemoveSupply withdraws units; fails with Insufficient when the market
// holds fewer whole units than requested.
func (m *Market) RemoveSupply(r resource.Type, n int64) error {
	sd, err := m.record(r)
	if err != nil {
		return err
	}
	if n < 0 {
		return simerr.Validationf("remove supply %d", n)
	}
	if float64(n) > sd.CurrentSupply {
		return simerr.Insufficientf("%s at %s: have %d want %d", r, m.ID, int64(sd.CurrentSupply), n)
	}
	sd.CurrentSupply -= float64(n)
	return nil
}

// RegisterPlayerDemand enqueues a demand pulse that raises the demand rate
// for exactly one advance step, scaled down by elasticity.
func (m *Market) RegisterPlayerDemand(r resource.Type, n int64) error {
	sd, err := m.record(r)
	if err != nil {
		return err
	}
	m.pendingDemand[r] += float64(n) / (1 + sd.Elasticity)
	return nil
}

// ApplyModifier multiplies the persistent supply/demand modifiers; events
// reverse themselves by applying reciprocals on expiry.
func (m *Market) ApplyModifier(r resource.Type, supplyMult, demandMult float64) error {
	sd, err := m.record(r)
	if err != nil {
		return err
	}
	if supplyMult <= 0 || demandMult <= 0 {
		return simerr.Validationf("modifier must be > 0: supply %v demand %v", supplyMult, demandMult)
	}
	sd.SupplyModifier *= supplyMult
	sd.DemandModifier *= demandMult
	return nil
}

// AddTransient applies a self-expiring supply/demand perturbation.
func (m *Market) AddTransient(r resource.Type, supplyMult, demandMult, expiresAt float64) error {
	if _, err := m.record(r); err != nil {
		return err
	}
	m.transients[r] = append(m.transients[r], transientMod{
		SupplyMult: supplyMult,
		DemandMult: demandMult,
		ExpiresAt:  expiresAt,
	})
	return nil
}

// effectiveModifiers folds persistent and unexpired transient modifiers.
func (m *Market) effectiveModifiers(r resource.Type, now float64) (supplyMult, demandMult float64) {
	sd := m.supplyDemand[r]
	supplyMult, demandMult = sd.SupplyModifier, sd.DemandModifier
	kept := m.transients[r][:0]
	for _, t := range m.transients[r] {
		if t.ExpiresAt <= now {
			continue
		}
		kept = append(kept, t)
		supplyMult *= t.SupplyMult
		demandMult *= t.DemandMult
	}
	m.transients[r] = kept
	return supplyMult, demandMult
}

// RecordPricePoint appends to the resource's bounded price history.
func (m *Market) RecordPricePoint(r resource.Type, now float64, price int64, volume int64) error {
	h, ok := m.history[r]
	if !ok {
		return simerr.NotFound("resource", fmt.Sprintf("%s@%s", r, m.ID))
	}
	h.Append(PricePoint{Timestamp: now, Price: price, Volume: volume})
	return nil
}

// History returns the price history for a resource.
func (m *Market) History(r resource.Type) (*PriceHistory, error) {
	h, ok := m.history[r]
	if !ok {
		return nil, simerr.NotFound("resource", fmt.Sprintf("%s@%s", r, m.ID))
	}
	return h, nil
}

// Advance steps supply/demand by dtHours of game time. now is sim seconds,
// used to expire transients.
func (m *Market) Advance(now, dtHours float64) error {
	for _, r := range m.TrackedResources() {
		sd := m.supplyDemand[r]
		supplyMult, demandMult := m.effectiveModifiers(r, now)

		scarcity := 1 - sd.CurrentSupply/sd.MaxSupply
		// Demand shrinks as scarcity rises: elastic buyers defer.
		elasticityResponse := 1 / (1 + sd.Elasticity*scarcity)
		effectiveDemand := (sd.BaseDemand*demandMult + sd.DemandRate) * elasticityResponse

		if pulse := m.pendingDemand[r]; pulse > 0 {
			effectiveDemand += pulse
			delete(m.pendingDemand, r)
		}

		supplyRate := sd.SupplyRate * supplyMult
		if m.Specialized[r] {
			supplyRate *= m.SpecializationBonus
		}

		sd.CurrentSupply = clampf(sd.CurrentSupply+(supplyRate-effectiveDemand)*dtHours, 0, sd.MaxSupply)
	}
	return m.CheckInvariants()
}

// CheckInvariants verifies the tick-boundary market invariants.
func (m *Market) CheckInvariants() error {
	for r, sd := range m.supplyDemand {
		if sd.CurrentSupply < 0 || sd.CurrentSupply > sd.MaxSupply || math.IsNaN(sd.CurrentSupply) {
			return simerr.Corruptedf("market %s resource %s supply %v outside [0,%v]",
				m.ID, r, sd.CurrentSupply, sd.MaxSupply)
		}
		if sd.SupplyModifier <= 0 || sd.DemandModifier <= 0 {
			return simerr.Corruptedf("market %s resource %s non-positive modifier", m.ID, r)
		}
	}
	return nil
}

// Record exposes a copy of the supply/demand entry for inspection and
// snapshotting.
func (m *Market) Record(r resource.Type) (SupplyDemand, error) {
	sd, err := m.record(r)
	if err != nil {
		return SupplyDemand{}, err
	}
	return *sd, nil
}

// SetRecord replaces a tracked record wholesale (snapshot restore).
func (m *Market) SetRecord(r resource.Type, sd SupplyDemand) {
	if _, ok := m.supplyDemand[r]; !ok {
		m.Track(r, sd)
		return
	}
	*m.supplyDemand[r] = sd
}

func clampf(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
