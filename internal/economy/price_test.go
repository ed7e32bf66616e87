package economy

import (
	"testing"

	"github.com/astralforge/starhold/internal/config"
	"github.com/astralforge/starhold/internal/entropy"
	"github.com/astralforge/starhold/internal/resource"
)

func testEngine(t *testing.T) (*PriceEngine, *Market, *config.EconomyConfig) {
	t.Helper()
	cfg := config.Default().Economy
	m := NewMarket(MarketID{Region: "core", Market: "exchange"}, cfg.PriceHistoryCap)
	// Balanced book: demand/supply ratio 1 keeps the multiplier near neutral.
	m.Track(resource.Silicate, SupplyDemand{
		CurrentSupply: 100,
		MaxSupply:     200,
		BaseDemand:    100,
	})
	rng := entropy.NewStream(42, "economy.price")
	return NewPriceEngine(m, &cfg, rng), m, &cfg
}

func TestNewPriceEngine_SeedsFromBasePrices(t *testing.T) {
	pe, _, cfg := testEngine(t)
	q, err := pe.Quote(resource.Silicate)
	if err != nil {
		t.Fatal(err)
	}
	if q.BasePrice != resource.BasePrice(resource.Silicate) {
		t.Errorf("base price = %d", q.BasePrice)
	}
	if q.CurrentBuy != q.BasePrice {
		t.Errorf("initial buy = %d, want base %d", q.CurrentBuy, q.BasePrice)
	}
	wantSell := int64(float64(q.BasePrice)*cfg.SellRatio + 0.5)
	if q.CurrentSell != wantSell {
		t.Errorf("initial sell = %d, want %d", q.CurrentSell, wantSell)
	}
}

func TestAdvance_PricesStayInBounds(t *testing.T) {
	pe, _, cfg := testEngine(t)
	for i := 0; i < 200; i++ {
		if err := pe.Advance(float64(i)*5, 5); err != nil {
			t.Fatal(err)
		}
		q, _ := pe.Quote(resource.Silicate)
		if q.CurrentBuy < cfg.PriceFloor || q.CurrentBuy > cfg.PriceCeiling {
			t.Fatalf("step %d: buy %d outside [%d,%d]", i, q.CurrentBuy, cfg.PriceFloor, cfg.PriceCeiling)
		}
		if q.CurrentSell > q.CurrentBuy {
			t.Fatalf("step %d: sell %d above buy %d", i, q.CurrentSell, q.CurrentBuy)
		}
	}
}

func TestAdvance_ScarcityRaisesPrice(t *testing.T) {
	pe, m, _ := testEngine(t)
	// Drain the book so demand dwarfs supply.
	if err := m.RemoveSupply(resource.Silicate, 99); err != nil {
		t.Fatal(err)
	}
	base := resource.BasePrice(resource.Silicate)
	for i := 0; i < 40; i++ {
		if err := pe.Advance(float64(i)*5, 5); err != nil {
			t.Fatal(err)
		}
	}
	q, _ := pe.Quote(resource.Silicate)
	if q.CurrentBuy <= base {
		t.Errorf("scarce buy price %d not above base %d", q.CurrentBuy, base)
	}
}

func TestBuyPriceForQuantity_VolumeDiscount(t *testing.T) {
	pe, _, cfg := testEngine(t)
	q, _ := pe.Quote(resource.Silicate)

	single, err := pe.BuyPriceForQuantity(resource.Silicate, 1)
	if err != nil {
		t.Fatal(err)
	}
	if single != q.CurrentBuy {
		t.Errorf("single unit total = %d, want %d", single, q.CurrentBuy)
	}

	bulk, err := pe.BuyPriceForQuantity(resource.Silicate, 100)
	if err != nil {
		t.Fatal(err)
	}
	if bulk >= q.CurrentBuy*100 {
		t.Errorf("no volume discount: %d for 100 units at %d", bulk, q.CurrentBuy)
	}

	// Discount saturates at the configured cap.
	huge, _ := pe.BuyPriceForQuantity(resource.Silicate, 1_000_000)
	perUnit := float64(huge) / 1_000_000
	minPerUnit := float64(q.CurrentBuy) * (1 - cfg.VolumeDiscountMax)
	if perUnit < minPerUnit-1 {
		t.Errorf("discount exceeded cap: per-unit %v below %v", perUnit, minPerUnit)
	}

	if _, err := pe.BuyPriceForQuantity(resource.Silicate, 0); err == nil {
		t.Fatal("zero quantity accepted")
	}
}

func TestPriceShock_AppliesAndDecaysOut(t *testing.T) {
	pe, _, _ := testEngine(t)
	base := resource.BasePrice(resource.Silicate)

	if err := pe.ApplyPriceShock(resource.Silicate, 1.0, 2.0); err != nil {
		t.Fatal(err)
	}
	if err := pe.Advance(0.1, 0.1); err != nil {
		t.Fatal(err)
	}
	q, _ := pe.Quote(resource.Silicate)
	if q.CurrentBuy <= base {
		t.Fatalf("shocked buy %d not above base %d", q.CurrentBuy, base)
	}

	// Long steps decay the shock below the keep threshold.
	for i := 0; i < 5; i++ {
		if err := pe.Advance(1+float64(i)*5, 5); err != nil {
			t.Fatal(err)
		}
	}
	if got := len(pe.Shocks()[resource.Silicate]); got != 0 {
		t.Errorf("shock not pruned after decay: %d remaining", got)
	}

	if err := pe.ApplyPriceShock(resource.Silicate, 0.5, 0); err == nil {
		t.Fatal("non-positive decay rate accepted")
	}
}

func TestEventModifier_RaisesThenRemovalReverts(t *testing.T) {
	pe, _, _ := testEngine(t)
	base := resource.BasePrice(resource.Silicate)

	if err := pe.ApplyEventModifier("ev-1", resource.Silicate, 2.0, 1e9); err != nil {
		t.Fatal(err)
	}
	avgBuy := func(from int) float64 {
		var sum int64
		for i := from; i < from+30; i++ {
			if err := pe.Advance(float64(i)*5, 5); err != nil {
				t.Fatal(err)
			}
			q, _ := pe.Quote(resource.Silicate)
			sum += q.CurrentBuy
		}
		return float64(sum) / 30
	}

	boosted := avgBuy(0)
	if boosted <= float64(base) {
		t.Fatalf("event modifier had no effect: avg buy %v base %d", boosted, base)
	}

	pe.RemoveEventModifiers("ev-1")
	if got := len(pe.Modifiers()[resource.Silicate]); got != 0 {
		t.Fatalf("modifiers not removed: %d remaining", got)
	}
	avgBuy(30) // settle
	reverted := avgBuy(60)
	if reverted >= boosted {
		t.Errorf("price did not relax after removal: avg %v -> %v", boosted, reverted)
	}
}

func TestEventModifier_ExpiresOnItsOwn(t *testing.T) {
	pe, _, _ := testEngine(t)
	if err := pe.ApplyEventModifier("ev-2", resource.Silicate, 3.0, 10); err != nil {
		t.Fatal(err)
	}
	// First step past expiry prunes during the fold.
	if err := pe.Advance(20, 5); err != nil {
		t.Fatal(err)
	}
	if got := len(pe.Modifiers()[resource.Silicate]); got != 0 {
		t.Errorf("expired modifier kept: %d", got)
	}
}

func TestRestoreQuote_ReplacesRecord(t *testing.T) {
	pe, _, _ := testEngine(t)
	pe.RestoreQuote(DynamicPrice{
		Resource:        resource.Silicate,
		CurrentBuy:      77,
		CurrentSell:     61,
		BasePrice:       10,
		PriceMultiplier: 7.7,
		Volatility:      VolHigh,
	})
	q, _ := pe.Quote(resource.Silicate)
	if q.CurrentBuy != 77 || q.CurrentSell != 61 || q.Volatility != VolHigh {
		t.Errorf("restored quote = %+v", q)
	}
}

func TestVolatilityClass_Mapping(t *testing.T) {
	cases := []struct {
		cov  float64
		want VolatilityClass
	}{
		{0.01, VolVeryLow},
		{0.03, VolLow},
		{0.07, VolNormal},
		{0.15, VolHigh},
		{0.30, VolVeryHigh},
		{0.50, VolExtreme},
	}
	for _, tc := range cases {
		if got := classForCoV(tc.cov); got != tc.want {
			t.Errorf("classForCoV(%v) = %s, want %s", tc.cov, got, tc.want)
		}
	}
}
