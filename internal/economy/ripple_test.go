package economy

import (
	"math"
	"testing"

	"github.com/astralforge/starhold/internal/bus"
	"github.com/astralforge/starhold/internal/config"
	"github.com/astralforge/starhold/internal/resource"
)

// lineManager builds markets connected in a chain: m0 - m1 - ... - m(n-1),
// each tracking silicate.
func lineManager(t *testing.T, n int) (*Manager, []MarketID) {
	t.Helper()
	cfg := config.Default()
	cfg.Economy.BaseEventChancePerHr = 0
	m := NewManager(&cfg, bus.New())

	ids := make([]MarketID, n)
	for i := 0; i < n; i++ {
		ids[i] = MarketID{Region: "lane", Market: string(rune('a' + i))}
		mk := NewMarket(ids[i], 10)
		mk.Track(resource.Silicate, SupplyDemand{
			CurrentSupply: 100, MaxSupply: 200, BaseDemand: 50,
		})
		if err := m.RegisterMarket(mk); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i+1 < n; i++ {
		if err := m.Analyzer.AddRoute(TradeRoute{Source: ids[i], Destination: ids[i+1], Distance: 1}); err != nil {
			t.Fatal(err)
		}
	}
	return m, ids
}

func TestEffectiveMagnitude_DampensPerHop(t *testing.T) {
	r := &Ripple{Magnitude: 1.0, Dampening: 0.6}
	want := []float64{1.0, 0.6, 0.36, 0.216}
	for depth, w := range want {
		r.CurrentDepth = depth
		if got := r.EffectiveMagnitude(); math.Abs(got-w) > 1e-12 {
			t.Errorf("depth %d: magnitude %v, want %v", depth, got, w)
		}
	}
}

func TestRipple_WaveVisitsEachMarketOnce(t *testing.T) {
	m, ids := lineManager(t, 4)
	step := m.cfg.Economy.RippleStepIntervalS

	r := m.Ripples.Spawn(RippleSupplyShock, ids[0], []resource.Type{resource.Silicate}, -0.8, "")

	// First step consumes the origin and fronts its neighbor.
	m.Ripples.Advance(1, step, step)
	if !r.Visited[ids[0]] {
		t.Fatal("origin not visited after first step")
	}
	if len(r.WaveFront) != 1 || r.WaveFront[0] != ids[1] {
		t.Fatalf("wave front after first step = %v", r.WaveFront)
	}

	// Subsequent steps walk the chain without revisiting.
	for i := 2; i <= 6; i++ {
		m.Ripples.Advance(uint64(i), float64(i)*step, step)
	}
	for i, id := range ids {
		if r.CurrentDepth > i && !r.Visited[id] {
			t.Errorf("market %s skipped", id)
		}
	}
	visits := 0
	for _, v := range r.Visited {
		if v {
			visits++
		}
	}
	if visits > len(ids) {
		t.Errorf("visited %d markets on a %d-market chain", visits, len(ids))
	}
}

func TestRipple_TerminatesAtMagnitudeCutoff(t *testing.T) {
	m, ids := lineManager(t, 8)
	m.cfg.Economy.RippleDampening = 0.5
	m.cfg.Economy.MagnitudeCutoff = 0.3
	step := m.cfg.Economy.RippleStepIntervalS

	r := m.Ripples.Spawn(RippleSupplyShock, ids[0], []resource.Type{resource.Silicate}, -1.0, "")
	// Effective magnitudes per depth: 1.0, 0.5, 0.25 -> dies after two hops.
	for i := 1; i <= 10; i++ {
		m.Ripples.Advance(uint64(i), float64(i)*step, step)
	}
	if len(m.Ripples.Active()) != 0 {
		t.Fatal("ripple still active past cutoff")
	}
	if r.Visited[ids[3]] {
		t.Error("ripple reached beyond cutoff depth")
	}
}

func TestRipple_TerminatesAtMaxDepth(t *testing.T) {
	m, ids := lineManager(t, 8)
	m.cfg.Economy.RippleMaxDepth = 2
	m.cfg.Economy.RippleDampening = 1.0
	step := m.cfg.Economy.RippleStepIntervalS

	m.Ripples.Spawn(RippleSupplyShock, ids[0], []resource.Type{resource.Silicate}, -1.0, "")
	for i := 1; i <= 10; i++ {
		m.Ripples.Advance(uint64(i), float64(i)*step, step)
	}
	if len(m.Ripples.Active()) != 0 {
		t.Fatal("ripple ignored max depth")
	}
}

func TestRipple_PerturbsDownstreamSupply(t *testing.T) {
	m, ids := lineManager(t, 3)
	step := m.cfg.Economy.RippleStepIntervalS

	m.Ripples.Spawn(RippleSupplyShock, ids[0], []resource.Type{resource.Silicate}, -0.8, "")
	// Walk the full chain.
	for i := 1; i <= 5; i++ {
		m.Ripples.Advance(uint64(i), float64(i)*step, step)
	}

	// The transient suppresses supply growth relative to an untouched market.
	hit, _ := m.Market(ids[1])
	clean := NewMarket(MarketID{Region: "x", Market: "clean"}, 10)
	clean.Track(resource.Silicate, SupplyDemand{
		CurrentSupply: 100, MaxSupply: 200, BaseDemand: 50, SupplyRate: 100,
	})
	hitSD, _ := hit.Record(resource.Silicate)
	hitSD.SupplyRate = 100
	hit.SetRecord(resource.Silicate, hitSD)

	now := 6 * step
	hit.Advance(now, 1)
	clean.Advance(now, 1)

	hitSupply, _ := hit.GetSupply(resource.Silicate)
	cleanSupply, _ := clean.GetSupply(resource.Silicate)
	if hitSupply >= cleanSupply {
		t.Errorf("ripple transient had no effect: hit %d clean %d", hitSupply, cleanSupply)
	}
}

func TestRipple_Cancel(t *testing.T) {
	m, ids := lineManager(t, 2)
	r := m.Ripples.Spawn(RipplePriceShock, ids[0], []resource.Type{resource.Silicate}, 0.5, "")
	if err := m.Ripples.Cancel(r.ID); err != nil {
		t.Fatal(err)
	}
	if len(m.Ripples.Active()) != 0 {
		t.Error("cancelled ripple still active")
	}
	if err := m.Ripples.Cancel(r.ID); err == nil {
		t.Error("double cancel succeeded")
	}
}

func TestCombatSignal_SpawnsZoneAboveThreshold(t *testing.T) {
	m, ids := lineManager(t, 2)
	m.CombatSignal(ids[0], 10, false) // intensity 0.01, below floor
	if len(m.Ripples.Active()) != 0 {
		t.Fatal("sub-threshold combat signal spawned a ripple")
	}
	m.CombatSignal(ids[0], 500, true) // 0.5 + 0.25
	active := m.Ripples.Active()
	if len(active) != 1 || active[0].Type != RippleCombatZone {
		t.Fatalf("active after combat signal = %+v", active)
	}
	if active[0].Magnitude >= 0 {
		t.Errorf("combat zone magnitude %v not negative", active[0].Magnitude)
	}
}
