package crafting

import (
	"errors"
	"math"
	"testing"

	"github.com/astralforge/starhold/internal/inventory"
	"github.com/astralforge/starhold/internal/resource"
	"github.com/astralforge/starhold/internal/simerr"
)

type stubPrices struct {
	buy  map[resource.Type]int64
	sell map[resource.Type]int64
}

func (s stubPrices) BuyPrice(r resource.Type) (int64, bool) {
	v, ok := s.buy[r]
	return v, ok
}

func (s stubPrices) SellPrice(r resource.Type) (int64, bool) {
	v, ok := s.sell[r]
	return v, ok
}

func newTestPlanner(t *testing.T, prices PriceSource) (*Planner, *Manager) {
	t.Helper()
	m, cfg, _ := newTestManager(t, inventory.NewBasic())
	pl := NewPlanner(&cfg.Crafting, m.Catalog(), m.Facilities(), m.Skills(), prices)
	return pl, m
}

func TestPlan_SingleStep(t *testing.T) {
	pl, _ := newTestPlanner(t, nil)

	p, err := pl.Plan("refine_silicate", 2, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Feasible {
		t.Fatalf("blocked: %+v", p.Blocking)
	}
	if len(p.Steps) != 1 || p.Steps[0].Runs != 2 || p.Steps[0].Depth != 0 {
		t.Errorf("steps = %+v", p.Steps)
	}
	if got := p.RawTotals[resource.Silicate]; got != 6 {
		t.Errorf("silicate total = %d, want 6", got)
	}
	// Two 8s runs at the orbital foundry's 1.2x.
	if math.Abs(p.TimeEstimateS-16.0/1.2) > 1e-9 {
		t.Errorf("time estimate = %v", p.TimeEstimateS)
	}
	if p.EnergyEstimate != 4 {
		t.Errorf("energy estimate = %v", p.EnergyEstimate)
	}
}

func TestPlan_ChainAggregatesRawTotals(t *testing.T) {
	pl, _ := newTestPlanner(t, nil)

	p, err := pl.Plan("weave_composite", 1, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	want := map[resource.Type]int64{
		resource.Carbon:    6, // 2 refined carbon -> 2 runs of refine_carbon
		resource.RareMetal: 2,
		resource.Silicate:  3, // 1 refined silicate for the alloy
	}
	for r, n := range want {
		if got := p.RawTotals[r]; got != n {
			t.Errorf("raw %s = %d, want %d", r, got, n)
		}
	}
	if len(p.RawTotals) != len(want) {
		t.Errorf("raw totals = %v", p.RawTotals)
	}

	// Leaves come first, the target closes the chain at depth 0.
	last := p.Steps[len(p.Steps)-1]
	if last.RecipeID != "weave_composite" || last.Depth != 0 {
		t.Errorf("final step = %+v", last)
	}

	// Fabrication skills are untrained, so the chain reports skill gates.
	if p.Feasible {
		t.Error("chain feasible without fabrication skills")
	}
	kinds := map[string]bool{}
	for _, b := range p.Blocking {
		kinds[b.Kind] = true
	}
	if !kinds["skill_requirement"] {
		t.Errorf("blocking = %+v", p.Blocking)
	}
}

func TestPlan_RawTotalsScaleLinearly(t *testing.T) {
	pl, _ := newTestPlanner(t, nil)

	single, err := pl.Plan("weave_composite", 1, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	double, err := pl.Plan("weave_composite", 2, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	for r, n := range single.RawTotals {
		if got := double.RawTotals[r]; got != 2*n {
			t.Errorf("raw %s = %d at double quantity, want %d", r, got, 2*n)
		}
	}
}

func TestPlan_AccountsInventory(t *testing.T) {
	pl, _ := newTestPlanner(t, nil)
	inv := inventory.FromMap(map[resource.Type]int64{
		resource.RefinedCarbon: 2,
		resource.AlloyIngot:    1,
	})

	p, err := pl.Plan("weave_composite", 1, inv, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.RawTotals) != 0 {
		t.Errorf("raw totals with full stock = %v", p.RawTotals)
	}
	if p.FromInventory[resource.RefinedCarbon] != 2 || p.FromInventory[resource.AlloyIngot] != 1 {
		t.Errorf("from inventory = %v", p.FromInventory)
	}
	if len(p.Steps) != 1 {
		t.Errorf("steps with full stock = %+v", p.Steps)
	}
}

func TestPlan_PartialStockReducesChildRuns(t *testing.T) {
	pl, _ := newTestPlanner(t, nil)
	inv := inventory.FromMap(map[resource.Type]int64{resource.RefinedCarbon: 1})

	p, err := pl.Plan("weave_composite", 1, inv, true)
	if err != nil {
		t.Fatal(err)
	}
	// One refined carbon on hand, one still to refine.
	if got := p.RawTotals[resource.Carbon]; got != 3 {
		t.Errorf("carbon = %d, want 3", got)
	}
	if p.FromInventory[resource.RefinedCarbon] != 1 {
		t.Errorf("from inventory = %v", p.FromInventory)
	}
}

func TestPlan_CacheReusesResolvedPlans(t *testing.T) {
	pl, _ := newTestPlanner(t, nil)

	p1, _ := pl.Plan("refine_silicate", 2, nil, false)
	p2, _ := pl.Plan("refine_silicate", 2, nil, false)
	if p1 != p2 {
		t.Error("identical request missed the cache")
	}

	p3, _ := pl.Plan("refine_silicate", 3, nil, false)
	if p3 == p1 {
		t.Error("different quantity shared a cache entry")
	}

	pl.Invalidate()
	p4, _ := pl.Plan("refine_silicate", 2, nil, false)
	if p4 == p1 {
		t.Error("invalidated cache still serving old plans")
	}
}

func TestPlan_CacheKeyedByInventory(t *testing.T) {
	pl, _ := newTestPlanner(t, nil)
	a := inventory.FromMap(map[resource.Type]int64{resource.RefinedCarbon: 1})
	b := inventory.FromMap(map[resource.Type]int64{resource.RefinedCarbon: 2})

	p1, _ := pl.Plan("weave_composite", 1, a, true)
	p2, _ := pl.Plan("weave_composite", 1, b, true)
	if p1 == p2 {
		t.Error("different inventories shared a cache entry")
	}
}

func TestPlan_DepthOverflow(t *testing.T) {
	pl, _ := newTestPlanner(t, nil)
	pl.cfg.MaxChainDepth = 1

	p, err := pl.Plan("weave_composite", 1, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if p.Feasible {
		t.Error("plan feasible past depth limit")
	}
	found := false
	for _, b := range p.Blocking {
		if b.Kind == "depth_overflow" {
			found = true
		}
	}
	if !found {
		t.Errorf("blocking = %+v", p.Blocking)
	}
}

func TestPlan_MissingFacility(t *testing.T) {
	pl, m := newTestPlanner(t, nil)
	m.Catalog().Register(Recipe{
		ID: "exotic_refine", Tier: 5, Category: CategoryRefining,
		PrimaryInputs:  []Stack{{resource.Silicate, 1}},
		PrimaryOutputs: []Stack{{resource.RefinedSilicate, 1}},
		BaseTimeS:      10,
	})

	p, err := pl.Plan("exotic_refine", 1, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if p.Feasible {
		t.Error("plan feasible with no tier 5 refinery")
	}
	found := false
	for _, b := range p.Blocking {
		if b.Kind == "missing_facility" {
			found = true
		}
	}
	if !found {
		t.Errorf("blocking = %+v", p.Blocking)
	}
}

func TestPlan_Validation(t *testing.T) {
	pl, _ := newTestPlanner(t, nil)
	if _, err := pl.Plan("refine_silicate", 0, nil, false); !errors.Is(err, simerr.ErrValidationFailure) {
		t.Errorf("zero quantity = %v", err)
	}
	if _, err := pl.Plan("transmute_gold", 1, nil, false); !errors.Is(err, simerr.ErrNotFound) {
		t.Errorf("unknown recipe = %v", err)
	}
}

func TestPlan_CostFromQuotes(t *testing.T) {
	prices := stubPrices{
		buy:  map[resource.Type]int64{resource.Silicate: 4},
		sell: map[resource.Type]int64{resource.RefinedSilicate: 30},
	}
	pl, _ := newTestPlanner(t, prices)

	p, err := pl.Plan("refine_silicate", 2, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if p.MaterialCost != 24 { // 6 silicate at 4
		t.Errorf("material cost = %d", p.MaterialCost)
	}
	if p.ExpectedValue != 60 { // 2 refined at 30, standard quality
		t.Errorf("expected value = %d", p.ExpectedValue)
	}
	if p.NetProfit() != 36 {
		t.Errorf("net profit = %d", p.NetProfit())
	}
}

func TestOptimalPlan_PicksCheaperDiscoveredVariation(t *testing.T) {
	prices := stubPrices{
		buy: map[resource.Type]int64{
			resource.Silicate:  50,
			resource.Ice:       1,
			resource.RareMetal: 10,
		},
		sell: map[resource.Type]int64{resource.AlloyIngot: 100},
	}
	pl, m := newTestPlanner(t, prices)

	levelSkill(t, m.Skills(), "ore_refining", 5)
	if err := m.Skills().Unlock("alloy_smithing"); err != nil {
		t.Fatal(err)
	}
	levelSkill(t, m.Skills(), "alloy_smithing", 1)
	if err := m.Skills().Unlock("cryo_processing"); err != nil {
		t.Fatal(err)
	}
	levelSkill(t, m.Skills(), "cryo_processing", 1)

	// Base form still wins while the variation is undiscovered.
	base, err := pl.OptimalPlan("smelt_alloy", 1, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if !base.Feasible {
		t.Fatalf("base blocked: %+v", base.Blocking)
	}
	for _, s := range base.Steps {
		if s.VariationID != "" {
			t.Fatalf("undiscovered variation used: %+v", s)
		}
	}

	if err := m.Catalog().DiscoverVariation("smelt_alloy", "smelt_alloy_cryo"); err != nil {
		t.Fatal(err)
	}
	pl.Invalidate()

	best, err := pl.OptimalPlan("smelt_alloy", 1, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	var chosen string
	for _, s := range best.Steps {
		if s.RecipeID == "smelt_alloy" {
			chosen = s.VariationID
		}
	}
	if chosen != "smelt_alloy_cryo" {
		t.Errorf("variation chosen = %q", chosen)
	}
	// Purified ice in, refined silicate out of the ingredient bill.
	if _, ok := best.RawTotals[resource.Silicate]; ok {
		t.Errorf("raw totals = %v", best.RawTotals)
	}
	if best.RawTotals[resource.Ice] != 2 {
		t.Errorf("ice = %d, want 2", best.RawTotals[resource.Ice])
	}
	if best.NetProfit() <= base.NetProfit() {
		t.Errorf("variation profit %d not above base %d", best.NetProfit(), base.NetProfit())
	}
}

func TestCeilDiv(t *testing.T) {
	cases := []struct{ a, b, want int64 }{
		{5, 2, 3},
		{4, 2, 2},
		{1, 3, 1},
		{0, 3, 0},
		{7, 0, 7},
	}
	for _, tc := range cases {
		if got := ceilDiv(tc.a, tc.b); got != tc.want {
			t.Errorf("ceilDiv(%d,%d) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}
