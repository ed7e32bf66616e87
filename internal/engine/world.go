// Package engine ties the simulation subsystems together and drives them
// in dependency order each frame.
package engine

import (
	"log/slog"
	"math"
	"time"

	"github.com/astralforge/starhold/internal/automation"
	"github.com/astralforge/starhold/internal/bus"
	"github.com/astralforge/starhold/internal/config"
	"github.com/astralforge/starhold/internal/crafting"
	"github.com/astralforge/starhold/internal/economy"
	"github.com/astralforge/starhold/internal/entropy"
	"github.com/astralforge/starhold/internal/inventory"
	"github.com/astralforge/starhold/internal/resource"
	"github.com/astralforge/starhold/internal/sector"
	"github.com/astralforge/starhold/internal/simerr"
)

// World is the complete simulation state behind the host surface.
type World struct {
	Cfg *config.Config
	Bus *bus.Bus

	Economy   *economy.Manager
	Crafting  *crafting.Manager
	Network   *automation.Network
	Planner   *crafting.Planner
	Inventory *inventory.Basic

	// HomeMarket is where the planner prices materials and crafting
	// demand signals land.
	HomeMarket economy.MarketID

	craftRNG *entropy.Stream
	autoRNG  *entropy.Stream

	tick uint64
	now  float64 // sim seconds
}

// NewWorld wires an empty world under the given tuning. Content comes
// from Generate or a snapshot restore.
func NewWorld(cfg config.Config) *World {
	w := &World{
		Cfg:       &cfg,
		Bus:       bus.New(),
		Inventory: inventory.NewBasic(),
		craftRNG:  entropy.NewStream(cfg.Seed, "crafting.quality"),
		autoRNG:   entropy.NewStream(cfg.Seed, "automation.quality"),
	}
	w.Economy = economy.NewManager(w.Cfg, w.Bus)

	skills := crafting.NewSkillSystem(&w.Cfg.Crafting, w.Bus)
	w.Crafting = crafting.NewManager(
		&w.Cfg.Crafting,
		crafting.NewCatalog(),
		crafting.NewFacilityRegistry(),
		skills,
		w.Inventory,
		w.Bus,
		w.craftRNG,
	)
	w.Network = automation.NewNetwork(&w.Cfg.Crafting, w.Crafting.Catalog(), w.Inventory, w.Bus, w.autoRNG)
	w.Planner = crafting.NewPlanner(&w.Cfg.Crafting, w.Crafting.Catalog(), w.Crafting.Facilities(), skills, (*plannerPrices)(w))

	// Crafting completion feeds market demand for consumed inputs.
	w.Bus.Subscribe("economy.crafting-demand", w.onCraftingSignal)
	return w
}

// Generate populates the world with the default sector and content set.
func (w *World) Generate() error {
	sec := sector.Generate(sector.DefaultGenConfig(w.Cfg.Seed))
	if err := sector.Apply(sec, w.Economy, w.Cfg); err != nil {
		return err
	}
	economy.RegisterDefaults(w.Economy.Events)
	if err := crafting.RegisterDefaults(w.Crafting); err != nil {
		return err
	}
	if ids := w.Economy.MarketIDs(); len(ids) > 0 {
		w.HomeMarket = ids[0]
	}
	slog.Info("world generated",
		"seed", w.Cfg.Seed,
		"markets", len(w.Economy.MarketIDs()),
		"recipes", len(w.Crafting.Catalog().Recipes()))
	return nil
}

// Tick returns the current tick counter.
func (w *World) Tick() uint64 { return w.tick }

// Now returns simulation time in seconds.
func (w *World) Now() float64 { return w.now }

// Advance moves the world forward dt simulation seconds: one frame.
// Subsystems run in dependency order, invariants are checked at the
// boundary, and buffered events flush last.
func (w *World) Advance(dt float64) ([]bus.Event, error) {
	if dt <= 0 || math.IsNaN(dt) || math.IsInf(dt, 0) {
		return nil, simerr.Validationf("advance dt %v", dt)
	}
	start := time.Now()
	w.tick++
	w.now += dt

	if err := w.Economy.Advance(w.tick, dt); err != nil {
		return nil, err
	}
	w.Crafting.Advance(w.tick, dt)
	w.Network.Advance(w.tick, dt)

	if err := w.CheckInvariants(); err != nil {
		slog.Error("invariant violation", "tick", w.tick, "err", err)
		return nil, err
	}

	events := w.Bus.Flush()
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		slog.Warn("slow frame", "tick", w.tick, "elapsed", elapsed)
	}
	return events, nil
}

// CheckInvariants validates cross-subsystem state at a tick boundary.
func (w *World) CheckInvariants() error {
	for _, id := range w.Economy.MarketIDs() {
		mk, err := w.Economy.Market(id)
		if err != nil {
			return err
		}
		if err := mk.CheckInvariants(); err != nil {
			return err
		}
		eng, err := w.Economy.Engine(id)
		if err != nil {
			return err
		}
		if err := eng.CheckInvariants(); err != nil {
			return err
		}
	}
	if err := w.Crafting.CheckInvariants(); err != nil {
		return err
	}
	ss := w.Crafting.Skills()
	granted := ss.TotalXPGranted
	accounted := ss.AccountedXP()
	if math.Abs(granted-accounted) > 1e-6*(1+math.Abs(granted)) {
		return simerr.Corruptedf("xp ledger drift: granted %v accounted %v", granted, accounted)
	}
	return nil
}

// onCraftingSignal forwards completed-job consumption into market demand
// at the home market.
func (w *World) onCraftingSignal(ev bus.Event) {
	if ev.Kind != bus.KindCraftingSignal {
		return
	}
	p, ok := ev.Payload.(bus.CraftingSignalPayload)
	if !ok {
		return
	}
	if (w.HomeMarket == economy.MarketID{}) {
		return
	}
	for name, qty := range p.Consumed {
		r, ok := resource.Parse(name)
		if !ok {
			continue
		}
		w.Economy.CraftingDemandSignal(w.HomeMarket, r, qty)
	}
}

// plannerPrices adapts the home market's price engine to the planner's
// read-only contract.
type plannerPrices World

func (pp *plannerPrices) BuyPrice(r resource.Type) (int64, bool) {
	w := (*World)(pp)
	price, err := w.Economy.BuyPrice(w.HomeMarket, r)
	if err != nil {
		return 0, false
	}
	return price, true
}

func (pp *plannerPrices) SellPrice(r resource.Type) (int64, bool) {
	w := (*World)(pp)
	price, err := w.Economy.SellPrice(w.HomeMarket, r)
	if err != nil {
		return 0, false
	}
	return price, true
}
