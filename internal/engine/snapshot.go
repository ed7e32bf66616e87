// Snapshot build and restore. A snapshot is a JSON-compatible record of
// all public simulation state; restore is all-or-nothing against a fresh
// world so a failed load leaves the caller's world untouched.
package engine

import (
	"log/slog"
	"sort"

	"github.com/astralforge/starhold/internal/automation"
	"github.com/astralforge/starhold/internal/config"
	"github.com/astralforge/starhold/internal/crafting"
	"github.com/astralforge/starhold/internal/economy"
	"github.com/astralforge/starhold/internal/entropy"
	"github.com/astralforge/starhold/internal/resource"
	"github.com/astralforge/starhold/internal/simerr"
)

// SaveVersion is the current snapshot schema version.
const SaveVersion = 1

// Snapshot is the complete serialized world.
type Snapshot struct {
	SaveVersion int     `json:"save_version"`
	Seed        int64   `json:"seed"`
	Tick        uint64  `json:"tick"`
	NowS        float64 `json:"now_s"`
	HomeMarket  string  `json:"home_market"`

	Inventory map[string]int64 `json:"inventory"`
	RNG       []entropy.State  `json:"rng_state"`

	Markets      []MarketSnap        `json:"markets"`
	TradeRoutes  []economy.TradeRoute `json:"trade_routes"`
	ActiveEvents []EventSnap         `json:"active_events"`
	Ripples      []RippleSnap        `json:"active_ripples"`

	Crafting CraftingSnap `json:"crafting"`
	Network  NetworkSnap  `json:"automation"`
}

// MarketSnap serializes one market with its quotes and modifiers.
type MarketSnap struct {
	ID          string                                        `json:"id"`
	Specialized []string                                      `json:"specialized_resources"`
	Resources   map[resource.Type]economy.SupplyDemand        `json:"supply_demand"`
	History     map[resource.Type][]economy.PricePoint        `json:"price_history"`
	Quotes      []economy.DynamicPrice                        `json:"prices"`
	Modifiers   map[resource.Type][]economy.EventPriceModifier `json:"event_modifiers"`
	Shocks      map[resource.Type][]economy.PriceShock        `json:"price_shocks"`
}

// EventSnap carries an active event plus its reversal ledger.
type EventSnap struct {
	Event   economy.ActiveEvent `json:"event"`
	Applied []AppliedSnap       `json:"applied"`
}

// AppliedSnap is the per-market reversal ledger entry.
type AppliedSnap struct {
	Market string                     `json:"market"`
	Mods   []economy.ResourceModifier `json:"mods"`
}

// RippleSnap flattens MarketID-keyed fields for serialization.
type RippleSnap struct {
	Ripple  economy.Ripple `json:"ripple"`
	Visited []string       `json:"visited_markets"`
	Front   []string       `json:"wave_front"`
}

// CraftingSnap serializes the production core.
type CraftingSnap struct {
	Jobs            []crafting.Job             `json:"active_jobs"`
	JobSeq          uint64                     `json:"job_seq"`
	Facilities      []crafting.Facility        `json:"facilities"`
	UnlockedRecipes []string                   `json:"unlocked_recipes"`
	Variations      []VariationSnap            `json:"discovered_variations"`
	Skills          []crafting.Skill           `json:"skills"`
	Masteries       []crafting.Mastery         `json:"masteries"`
	SkillPoints     int                        `json:"skill_points"`
	TotalXP         float64                    `json:"total_xp"`
	ConsumedXP      float64                    `json:"consumed_xp"`
	Research        []crafting.ResearchProject `json:"research"`
	Stats           crafting.Statistics        `json:"statistics"`
}

// VariationSnap names one discovered variation.
type VariationSnap struct {
	Recipe    string `json:"recipe"`
	Variation string `json:"variation"`
}

// NetworkSnap serializes the automation graph.
type NetworkSnap struct {
	Nodes       []automation.Node           `json:"nodes"`
	Connections []automation.Connection     `json:"connections"`
	Lines       []automation.ProductionLine `json:"production_lines"`
	NodeSeq     uint64                      `json:"node_seq"`
	ConnSeq     uint64                      `json:"conn_seq"`
}

// Snapshot captures the world. Call only at a tick boundary.
func (w *World) Snapshot() (*Snapshot, error) {
	s := &Snapshot{
		SaveVersion: SaveVersion,
		Seed:        w.Cfg.Seed,
		Tick:        w.tick,
		NowS:        w.now,
		HomeMarket:  w.HomeMarket.String(),
		Inventory:   make(map[string]int64),
		RNG:         w.rngStates(),
	}
	for r, n := range w.Inventory.Snapshot() {
		s.Inventory[r.String()] = n
	}

	for _, id := range w.Economy.MarketIDs() {
		snap, err := w.snapMarket(id)
		if err != nil {
			return nil, err
		}
		s.Markets = append(s.Markets, snap)
	}
	s.TradeRoutes = w.Economy.Analyzer.Routes()

	for _, ev := range w.Economy.Events.Active() {
		es := EventSnap{Event: *ev}
		applied := ev.AppliedModifiers()
		keys := make([]economy.MarketID, 0, len(applied))
		for id := range applied {
			keys = append(keys, id)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
		for _, id := range keys {
			es.Applied = append(es.Applied, AppliedSnap{Market: id.String(), Mods: applied[id]})
		}
		s.ActiveEvents = append(s.ActiveEvents, es)
	}

	for _, r := range w.Economy.Ripples.Active() {
		rs := RippleSnap{Ripple: *r}
		for id := range r.Visited {
			rs.Visited = append(rs.Visited, id.String())
		}
		sort.Strings(rs.Visited)
		for _, id := range r.WaveFront {
			rs.Front = append(rs.Front, id.String())
		}
		rs.Ripple.Visited = nil
		rs.Ripple.WaveFront = nil
		s.Ripples = append(s.Ripples, rs)
	}

	s.Crafting = w.snapCrafting()
	s.Network = w.snapNetwork()
	return s, nil
}

func (w *World) rngStates() []entropy.State {
	states := w.Economy.RNGStates()
	states = append(states, w.craftRNG.State(), w.autoRNG.State())
	return states
}

func (w *World) snapMarket(id economy.MarketID) (MarketSnap, error) {
	mk, err := w.Economy.Market(id)
	if err != nil {
		return MarketSnap{}, err
	}
	eng, err := w.Economy.Engine(id)
	if err != nil {
		return MarketSnap{}, err
	}
	snap := MarketSnap{
		ID:        id.String(),
		Resources: make(map[resource.Type]economy.SupplyDemand),
		History:   make(map[resource.Type][]economy.PricePoint),
		Modifiers: eng.Modifiers(),
		Shocks:    eng.Shocks(),
	}
	for _, r := range mk.TrackedResources() {
		sd, err := mk.Record(r)
		if err != nil {
			return MarketSnap{}, err
		}
		snap.Resources[r] = sd
		if h, err := mk.History(r); err == nil {
			snap.History[r] = append([]economy.PricePoint(nil), h.Points()...)
		}
		if q, err := eng.Quote(r); err == nil {
			snap.Quotes = append(snap.Quotes, q)
		}
		if mk.Specialized[r] {
			snap.Specialized = append(snap.Specialized, r.String())
		}
	}
	sort.Strings(snap.Specialized)
	return snap, nil
}

func (w *World) snapCrafting() CraftingSnap {
	cm := w.Crafting
	ss := cm.Skills()
	cs := CraftingSnap{
		JobSeq:          cm.Seq(),
		UnlockedRecipes: cm.Catalog().UnlockedRecipes(),
		SkillPoints:     ss.SkillPoints,
		TotalXP:         ss.TotalXPGranted,
		ConsumedXP:      ss.ConsumedXP(),
		Stats:           cm.Stats(),
	}
	for _, id := range cm.Jobs() {
		if j, err := cm.Job(id); err == nil {
			cs.Jobs = append(cs.Jobs, *j)
		}
	}
	for _, id := range cm.Facilities().IDs() {
		if f, err := cm.Facilities().Facility(id); err == nil {
			cs.Facilities = append(cs.Facilities, *f)
		}
	}
	for _, rid := range cm.Catalog().Recipes() {
		for _, v := range cm.Catalog().DiscoveredVariations(rid) {
			cs.Variations = append(cs.Variations, VariationSnap{Recipe: rid, Variation: v.ID})
		}
	}
	for _, sk := range ss.Skills() {
		cs.Skills = append(cs.Skills, *sk)
	}
	for _, m := range ss.Masteries() {
		cs.Masteries = append(cs.Masteries, *m)
	}
	for _, id := range cm.Research().Projects() {
		if p, err := cm.Research().Project(id); err == nil {
			cs.Research = append(cs.Research, *p)
		}
	}
	return cs
}

func (w *World) snapNetwork() NetworkSnap {
	nw := w.Network
	ns := NetworkSnap{}
	ns.NodeSeq, ns.ConnSeq = nw.Seqs()
	for _, id := range nw.NodeIDs() {
		if n, err := nw.Node(id); err == nil {
			ns.Nodes = append(ns.Nodes, *n)
		}
	}
	for _, id := range nw.ConnectionIDs() {
		if c, err := nw.Connection(id); err == nil {
			ns.Connections = append(ns.Connections, *c)
		}
	}
	for _, id := range nw.LineIDs() {
		if l, err := nw.Line(id); err == nil {
			ns.Lines = append(ns.Lines, *l)
		}
	}
	return ns
}

// RestoreWorld builds a new world from a snapshot. The caller's existing
// world is untouched; swap only on success.
func RestoreWorld(cfg config.Config, s *Snapshot) (*World, error) {
	if s.SaveVersion > SaveVersion {
		return nil, simerr.Corruptedf("snapshot version %d newer than supported %d", s.SaveVersion, SaveVersion)
	}
	if s.SaveVersion < SaveVersion {
		if err := migrate(s); err != nil {
			return nil, err
		}
	}

	cfg.Seed = s.Seed
	w := NewWorld(cfg)
	w.tick = s.Tick
	w.now = s.NowS
	w.Economy.SetClock(s.NowS, s.Tick)

	for name, n := range s.Inventory {
		r, ok := resource.Parse(name)
		if !ok {
			return nil, simerr.Corruptedf("inventory resource %q unknown", name)
		}
		w.Inventory.Add(r, n)
	}

	// Content definitions are code, not snapshot data.
	economy.RegisterDefaults(w.Economy.Events)
	if err := crafting.RegisterDefaults(w.Crafting); err != nil {
		return nil, err
	}

	if err := w.restoreEconomy(s); err != nil {
		return nil, err
	}
	if err := w.restoreCrafting(&s.Crafting); err != nil {
		return nil, err
	}
	if err := w.restoreNetwork(&s.Network); err != nil {
		return nil, err
	}

	if s.HomeMarket != "" {
		id, err := economy.ParseMarketID(s.HomeMarket)
		if err != nil {
			return nil, simerr.Corruptedf("home market: %v", err)
		}
		w.HomeMarket = id
	}

	if err := w.CheckInvariants(); err != nil {
		return nil, simerr.Corruptedf("restored state: %v", err)
	}
	slog.Info("world restored", "tick", w.tick, "markets", len(s.Markets))
	return w, nil
}

func (w *World) restoreEconomy(s *Snapshot) error {
	for _, ms := range s.Markets {
		id, err := economy.ParseMarketID(ms.ID)
		if err != nil {
			return simerr.Corruptedf("market id %q: %v", ms.ID, err)
		}
		mk := economy.NewMarket(id, w.Cfg.Economy.PriceHistoryCap)
		for r, sd := range ms.Resources {
			mk.Track(r, sd)
		}
		for _, name := range ms.Specialized {
			r, ok := resource.Parse(name)
			if !ok {
				return simerr.Corruptedf("specialization %q unknown", name)
			}
			mk.Specialize(r)
		}
		for r, pts := range ms.History {
			for _, p := range pts {
				if err := mk.RecordPricePoint(r, p.Timestamp, p.Price, p.Volume); err != nil {
					return simerr.Corruptedf("history for %s/%s: %v", ms.ID, r, err)
				}
			}
		}
		if err := w.Economy.RegisterMarket(mk); err != nil {
			return err
		}
		eng, err := w.Economy.Engine(id)
		if err != nil {
			return err
		}
		for _, q := range ms.Quotes {
			eng.RestoreQuote(q)
		}
		eng.RestoreModifiers(ms.Modifiers, ms.Shocks)
	}

	for _, rt := range s.TradeRoutes {
		if err := w.Economy.Analyzer.AddRoute(rt); err != nil {
			return simerr.Corruptedf("route %s->%s: %v", rt.Source, rt.Destination, err)
		}
	}

	for _, es := range s.ActiveEvents {
		ev := es.Event
		applied := make(map[economy.MarketID][]economy.ResourceModifier, len(es.Applied))
		for _, a := range es.Applied {
			id, err := economy.ParseMarketID(a.Market)
			if err != nil {
				return simerr.Corruptedf("event %s ledger: %v", ev.ID, err)
			}
			applied[id] = a.Mods
		}
		w.Economy.Events.RestoreActive(&ev, applied)
	}

	for _, rs := range s.Ripples {
		r := rs.Ripple
		r.Visited = make(map[economy.MarketID]bool, len(rs.Visited))
		for _, name := range rs.Visited {
			id, err := economy.ParseMarketID(name)
			if err != nil {
				return simerr.Corruptedf("ripple %s visited: %v", r.ID, err)
			}
			r.Visited[id] = true
		}
		for _, name := range rs.Front {
			id, err := economy.ParseMarketID(name)
			if err != nil {
				return simerr.Corruptedf("ripple %s front: %v", r.ID, err)
			}
			r.WaveFront = append(r.WaveFront, id)
		}
		w.Economy.Ripples.Restore(&r)
	}

	crafts, autos := splitRNG(s.RNG)
	w.Economy.RestoreRNG(s.RNG)
	if crafts != nil {
		w.craftRNG.Restore(*crafts)
	}
	if autos != nil {
		w.autoRNG.Restore(*autos)
	}
	return nil
}

func splitRNG(states []entropy.State) (craft, auto *entropy.State) {
	for i := range states {
		switch states[i].Name {
		case "crafting.quality":
			craft = &states[i]
		case "automation.quality":
			auto = &states[i]
		}
	}
	return craft, auto
}

func (w *World) restoreCrafting(cs *CraftingSnap) error {
	cm := w.Crafting
	for _, f := range cs.Facilities {
		if err := cm.Facilities().Register(f); err != nil {
			return err
		}
	}
	for _, rid := range cs.UnlockedRecipes {
		if _, err := cm.Catalog().Recipe(rid); err != nil {
			return simerr.Corruptedf("unlocked recipe %s: %v", rid, err)
		}
		cm.Catalog().ForceUnlock(rid)
	}
	for _, vs := range cs.Variations {
		if err := cm.Catalog().DiscoverVariation(vs.Recipe, vs.Variation); err != nil {
			return simerr.Corruptedf("variation %s/%s: %v", vs.Recipe, vs.Variation, err)
		}
	}

	ss := cm.Skills()
	for _, sk := range cs.Skills {
		ss.Register(sk)
	}
	for _, m := range cs.Masteries {
		ss.RegisterMastery(m)
	}
	ss.RestoreLedger(cs.TotalXP, cs.ConsumedXP, cs.SkillPoints)

	for _, p := range cs.Research {
		cm.Research().Restore(p)
	}
	for _, j := range cs.Jobs {
		if err := cm.RestoreJob(j); err != nil {
			return simerr.Corruptedf("job %s: %v", j.ID, err)
		}
	}
	cm.SetSeq(cs.JobSeq)
	cm.SetStats(cs.Stats)
	return nil
}

func (w *World) restoreNetwork(ns *NetworkSnap) error {
	nw := w.Network
	for _, n := range ns.Nodes {
		nw.RestoreNode(n)
	}
	for _, c := range ns.Connections {
		nw.RestoreConnection(c)
	}
	for _, l := range ns.Lines {
		if err := nw.AddLine(l); err != nil {
			return simerr.Corruptedf("production line %s: %v", l.ID, err)
		}
	}
	nw.SetSeqs(ns.NodeSeq, ns.ConnSeq)
	return nil
}

// migrate applies in-order schema transformations for older versions.
// Version 1 is the first schema, so the table is empty; entries are
// appended as the schema evolves.
func migrate(s *Snapshot) error {
	migrations := map[int]func(*Snapshot) error{}
	for v := s.SaveVersion; v < SaveVersion; v++ {
		fn, ok := migrations[v]
		if !ok {
			return simerr.Corruptedf("no migration from snapshot version %d", v)
		}
		if err := fn(s); err != nil {
			return err
		}
		s.SaveVersion = v + 1
	}
	return nil
}
