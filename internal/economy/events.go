// Economic event system: templated perturbations applied to markets and
// price engines, with cooldowns, chain successors, and exact reversal.
package economy

import (
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/astralforge/starhold/internal/bus"
	"github.com/astralforge/starhold/internal/config"
	"github.com/astralforge/starhold/internal/entropy"
	"github.com/astralforge/starhold/internal/resource"
	"github.com/astralforge/starhold/internal/simerr"
)

// EventType names a template family.
type EventType string

const (
	EventSupplyShortage   EventType = "supply_shortage"
	EventSupplyGlut       EventType = "supply_glut"
	EventDemandSpike      EventType = "demand_spike"
	EventDemandCollapse   EventType = "demand_collapse"
	EventPriceShockEvent  EventType = "price_shock"
	EventTradeDisruption  EventType = "trade_disruption"
	EventPirateRaid       EventType = "pirate_raid"
	EventTechBreakthrough EventType = "tech_breakthrough"
)

// Severity scales an event's modifiers.
type Severity uint8

const (
	SeverityMinor Severity = iota
	SeverityModerate
	SeverityMajor
	SeverityCatastrophic
)

func (s Severity) String() string {
	switch s {
	case SeverityMinor:
		return "minor"
	case SeverityModerate:
		return "moderate"
	case SeverityMajor:
		return "major"
	default:
		return "catastrophic"
	}
}

// Multiplier scales how far a severity pushes a template's modifiers away
// from neutral.
func (s Severity) Multiplier() float64 {
	switch s {
	case SeverityMinor:
		return 0.5
	case SeverityModerate:
		return 1.0
	case SeverityMajor:
		return 1.6
	default:
		return 2.5
	}
}

// ResourceModifier is the per-resource perturbation a template applies
// while active. All three are multiplicative; 1.0 means untouched.
type ResourceModifier struct {
	Resource   resource.Type `json:"resource"`
	SupplyMult float64       `json:"supply_mult"`
	DemandMult float64       `json:"demand_mult"`
	PriceMult  float64       `json:"price_mult"`
}

// EventTemplate declares an event family.
type EventTemplate struct {
	ID              string
	Type            EventType
	BaseChancePerHr float64
	SeverityWeights [4]float64
	DurationMinS    float64
	DurationMaxS    float64
	CooldownS       float64
	Modifiers       []ResourceModifier
	ChainSuccessors []string
	Catastrophic    bool // may roll SeverityCatastrophic
	// Emits a ripple with this magnitude when severity is catastrophic.
	RippleMagnitude float64
	RippleType      RippleType
	Headline        string
}

// EventState tracks the lifecycle: Scheduled -> Active -> Expired.
type EventState uint8

const (
	EventScheduled EventState = iota
	EventActive
	EventExpired
)

func (s EventState) String() string {
	switch s {
	case EventScheduled:
		return "scheduled"
	case EventActive:
		return "active"
	default:
		return "expired"
	}
}

// ActiveEvent is one instantiated event.
type ActiveEvent struct {
	ID           string          `json:"id"`
	TemplateID   string          `json:"template_id"`
	Type         EventType       `json:"type"`
	State        EventState      `json:"state"`
	Severity     Severity        `json:"severity"`
	SeverityMult float64         `json:"severity_mult"`
	StartTime    float64         `json:"start_time"`
	ExpireTime   float64         `json:"expire_time"`
	Markets      []MarketID      `json:"markets"`
	Resources    []resource.Type `json:"resources"`
	// applied remembers exactly what was multiplied in, per market, so
	// expiry can reverse it even if the template changes.
	applied map[MarketID][]ResourceModifier
}

// EventSystem owns templates, scheduled and active events, and history.
type EventSystem struct {
	cfg     *config.EconomyConfig
	rng     *entropy.Stream
	markets func(MarketID) (*Market, *PriceEngine)
	allIDs  func() []MarketID
	ripples *RippleSystem
	bus     *bus.Bus

	templates map[string]*EventTemplate
	active    []*ActiveEvent
	scheduled []*ActiveEvent
	history   []*ActiveEvent

	lastFireAt       map[EventType]float64
	lastEventAt      float64
	lastCatastrophe  float64
	checkAccumulator float64
	tick             uint64
}

// NewEventSystem wires an event system over market lookups. ripples may be
// nil when ripple propagation is disabled.
func NewEventSystem(cfg *config.EconomyConfig, rng *entropy.Stream, b *bus.Bus,
	lookup func(MarketID) (*Market, *PriceEngine), allIDs func() []MarketID,
	ripples *RippleSystem) *EventSystem {
	return &EventSystem{
		cfg:         cfg,
		rng:         rng,
		bus:         b,
		markets:     lookup,
		allIDs:      allIDs,
		ripples:     ripples,
		templates:   make(map[string]*EventTemplate),
		lastFireAt:  make(map[EventType]float64),
		lastEventAt: -1e18,
	}
}

// RegisterTemplate adds or replaces an event template.
func (es *EventSystem) RegisterTemplate(t EventTemplate) error {
	if t.ID == "" {
		return simerr.Validationf("event template missing id")
	}
	if t.DurationMinS <= 0 || t.DurationMaxS < t.DurationMinS {
		return simerr.Validationf("event template %s duration range %v..%v", t.ID, t.DurationMinS, t.DurationMaxS)
	}
	es.templates[t.ID] = &t
	return nil
}

// Template returns a registered template.
func (es *EventSystem) Template(id string) (*EventTemplate, error) {
	t, ok := es.templates[id]
	if !ok {
		return nil, simerr.NotFound("event template", id)
	}
	return t, nil
}

// Active returns active events in id order.
func (es *EventSystem) Active() []*ActiveEvent {
	out := append([]*ActiveEvent(nil), es.active...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// History returns expired events, oldest first.
func (es *EventSystem) History() []*ActiveEvent { return es.history }

// Trigger manually instantiates and activates a template against markets.
func (es *EventSystem) Trigger(templateID string, markets []MarketID, now float64) (*ActiveEvent, error) {
	t, err := es.Template(templateID)
	if err != nil {
		return nil, err
	}
	if len(es.active) >= es.cfg.MaxActiveEvents {
		return nil, simerr.Capacityf("active events at %d", len(es.active))
	}
	sev := es.drawSeverity(t)
	ev := es.instantiate(t, markets, sev, now, 0)
	es.activate(ev, now)
	if ev.State == EventActive {
		es.active = append(es.active, ev)
	}
	return ev, nil
}

// instantiate builds an ActiveEvent; delay > 0 leaves it scheduled.
func (es *EventSystem) instantiate(t *EventTemplate, markets []MarketID, sev Severity, now, delay float64) *ActiveEvent {
	duration := es.rng.Range(t.DurationMinS, t.DurationMaxS)
	resources := make([]resource.Type, 0, len(t.Modifiers))
	for _, m := range t.Modifiers {
		resources = append(resources, m.Resource)
	}
	ev := &ActiveEvent{
		ID:           uuid.NewString(),
		TemplateID:   t.ID,
		Type:         t.Type,
		State:        EventScheduled,
		Severity:     sev,
		SeverityMult: sev.Multiplier(),
		StartTime:    now + delay,
		ExpireTime:   now + delay + duration,
		Markets:      append([]MarketID(nil), markets...),
		Resources:    resources,
		applied:      make(map[MarketID][]ResourceModifier),
	}
	if delay > 0 {
		es.scheduled = append(es.scheduled, ev)
	}
	return ev
}

// severityScale pushes a multiplier away from 1.0 by the severity factor.
func severityScale(mult, factor float64) float64 {
	scaled := 1 + (mult-1)*factor
	if scaled <= 0 {
		scaled = 0.05
	}
	return scaled
}

// activate applies template modifiers to every affected market and engine.
func (es *EventSystem) activate(ev *ActiveEvent, now float64) {
	t, err := es.Template(ev.TemplateID)
	if err != nil {
		// Template unregistered since scheduling; drop the event.
		slog.Warn("scheduled event references missing template", "event", ev.ID, "template", ev.TemplateID)
		ev.State = EventExpired
		return
	}

	ev.State = EventActive
	for _, mid := range ev.Markets {
		market, engine := es.markets(mid)
		if market == nil {
			slog.Warn("event market unregistered at activation", "event", ev.ID, "market", mid.String())
			continue
		}
		for _, mod := range t.Modifiers {
			scaled := ResourceModifier{
				Resource:   mod.Resource,
				SupplyMult: severityScale(mod.SupplyMult, ev.SeverityMult),
				DemandMult: severityScale(mod.DemandMult, ev.SeverityMult),
				PriceMult:  severityScale(mod.PriceMult, ev.SeverityMult),
			}
			if err := market.ApplyModifier(mod.Resource, scaled.SupplyMult, scaled.DemandMult); err != nil {
				continue // resource not tracked here
			}
			engine.ApplyEventModifier(ev.ID, mod.Resource, scaled.PriceMult, ev.ExpireTime)
			ev.applied[mid] = append(ev.applied[mid], scaled)
		}
	}

	es.lastFireAt[ev.Type] = now
	es.lastEventAt = now
	if ev.Severity == SeverityCatastrophic {
		es.lastCatastrophe = now
		if es.ripples != nil && t.RippleMagnitude != 0 && len(ev.Markets) > 0 {
			es.ripples.Spawn(t.RippleType, ev.Markets[0], ev.Resources, t.RippleMagnitude*ev.SeverityMult, ev.ID)
		}
	}

	// Chain successors arrive after a uniform random delay.
	for _, succID := range t.ChainSuccessors {
		succ, ok := es.templates[succID]
		if !ok {
			slog.Warn("chain successor template missing", "event", ev.ID, "successor", succID)
			continue
		}
		delay := es.rng.Range(es.cfg.ChainDelayMinS, es.cfg.ChainDelayMaxS)
		es.instantiate(succ, ev.Markets, es.drawSeverity(succ), now, delay)
	}

	es.publish(ev, bus.KindEconomicEvent, t.Headline)
	slog.Info("economic event activated",
		"event", ev.ID, "type", string(ev.Type), "severity", ev.Severity.String(),
		"markets", len(ev.Markets), "duration_s", ev.ExpireTime-ev.StartTime)
}

// expire reverses all applied modifiers exactly via reciprocals.
func (es *EventSystem) expire(ev *ActiveEvent) {
	for mid, mods := range ev.applied {
		market, engine := es.markets(mid)
		if market == nil {
			slog.Warn("event market unregistered before expiry", "event", ev.ID, "market", mid.String())
			continue
		}
		for _, mod := range mods {
			market.ApplyModifier(mod.Resource, 1/mod.SupplyMult, 1/mod.DemandMult)
		}
		engine.RemoveEventModifiers(ev.ID)
	}
	ev.State = EventExpired
	es.history = append(es.history, ev)
	if len(es.history) > es.cfg.EventHistoryCap {
		es.history = es.history[len(es.history)-es.cfg.EventHistoryCap:]
	}
	es.publish(ev, bus.KindEventExpired, "")
}

func (es *EventSystem) publish(ev *ActiveEvent, kind, headline string) {
	resources := make([]string, 0, len(ev.Resources))
	for _, r := range ev.Resources {
		resources = append(resources, r.String())
	}
	markets := make([]string, 0, len(ev.Markets))
	for _, m := range ev.Markets {
		markets = append(markets, m.String())
	}
	es.bus.Publish(es.tick, kind, bus.EconomicEventPayload{
		ID:        ev.ID,
		Type:      string(ev.Type),
		Severity:  ev.Severity.String(),
		Markets:   markets,
		Resources: resources,
		DurationS: ev.ExpireTime - ev.StartTime,
		Headline:  headline,
	})
}

// drawSeverity samples from the template's weight distribution, honouring
// the catastrophic gate and minimum gap.
func (es *EventSystem) drawSeverity(t *EventTemplate) Severity {
	weights := t.SeverityWeights
	if !t.Catastrophic || !es.cfg.CatastrophicEnabled {
		weights[SeverityCatastrophic] = 0
	}
	idx := es.rng.WeightedIndex(weights[:])
	if idx < 0 {
		return SeverityModerate
	}
	return Severity(idx)
}

// Advance runs scheduled activations, random generation, and expiry.
// Ordering within one tick is by event id for determinism.
func (es *EventSystem) Advance(tick uint64, now, dt, dtHours float64) {
	es.tick = tick

	// Scheduled events whose time has come, id order.
	sort.Slice(es.scheduled, func(i, j int) bool { return es.scheduled[i].ID < es.scheduled[j].ID })
	remaining := es.scheduled[:0]
	for _, ev := range es.scheduled {
		if ev.StartTime > now {
			remaining = append(remaining, ev)
			continue
		}
		if len(es.active) >= es.cfg.MaxActiveEvents {
			// Due but no free slot; hold it until one opens.
			remaining = append(remaining, ev)
			continue
		}
		es.activate(ev, now)
		if ev.State == EventActive {
			es.active = append(es.active, ev)
		}
	}
	es.scheduled = remaining

	// Random generation on its own interval.
	es.checkAccumulator += dt
	if es.checkAccumulator >= es.cfg.EventCheckIntervalS {
		intervalHours := es.cfg.EventCheckIntervalS / dt * dtHours
		es.checkAccumulator -= es.cfg.EventCheckIntervalS
		es.generateRandom(now, intervalHours)
	}

	// Expiry, id order.
	sort.Slice(es.active, func(i, j int) bool { return es.active[i].ID < es.active[j].ID })
	kept := es.active[:0]
	for _, ev := range es.active {
		if now >= ev.ExpireTime {
			es.expire(ev)
			continue
		}
		kept = append(kept, ev)
	}
	es.active = kept
}

// generateRandom rolls each eligible template once per check interval.
func (es *EventSystem) generateRandom(now, dtHours float64) {
	if now-es.lastEventAt < es.cfg.MinTimeBetweenEventsS {
		return
	}
	ids := make([]string, 0, len(es.templates))
	for id := range es.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		t := es.templates[id]
		if len(es.active) >= es.cfg.MaxActiveEvents {
			return
		}
		if last, ok := es.lastFireAt[t.Type]; ok && now-last < t.CooldownS {
			continue
		}
		chance := t.BaseChancePerHr * dtHours * es.cfg.BaseEventChancePerHr
		if !es.rng.Chance(chance) {
			continue
		}
		sev := es.drawSeverity(t)
		if sev == SeverityCatastrophic {
			if now-es.lastCatastrophe < es.cfg.CatastrophicMinGapS || !es.rng.Chance(es.cfg.CatastrophicChance) {
				sev = SeverityMajor
			}
		}
		markets := es.pickMarkets(t)
		if len(markets) == 0 {
			continue
		}
		ev := es.instantiate(t, markets, sev, now, 0)
		es.activate(ev, now)
		if ev.State == EventActive {
			es.active = append(es.active, ev)
		}
	}
}

// pickMarkets selects affected markets for a random event: one origin, or
// origin plus a second market for disruption-type events.
func (es *EventSystem) pickMarkets(t *EventTemplate) []MarketID {
	ids := es.allIDs()
	if len(ids) == 0 {
		return nil
	}
	origin := ids[es.rng.Intn(len(ids))]
	if t.Type == EventTradeDisruption && len(ids) > 1 {
		second := ids[es.rng.Intn(len(ids))]
		if second != origin {
			return []MarketID{origin, second}
		}
	}
	return []MarketID{origin}
}

// DropMarket detaches an unregistered market from all active events so the
// remainder keeps running; the modifiers for that market are lost with it.
func (es *EventSystem) DropMarket(id MarketID) {
	for _, ev := range es.active {
		delete(ev.applied, id)
	}
}

// CancelScheduledFor removes scheduled references to a template (load-time
// repair when a template is missing).
func (es *EventSystem) CancelScheduledFor(templateID string) int {
	kept := es.scheduled[:0]
	dropped := 0
	for _, ev := range es.scheduled {
		if ev.TemplateID == templateID {
			dropped++
			continue
		}
		kept = append(kept, ev)
	}
	es.scheduled = kept
	return dropped
}

// RestoreActive reinstates an event from a snapshot without re-applying
// modifiers (market state already carries them).
func (es *EventSystem) RestoreActive(ev *ActiveEvent, applied map[MarketID][]ResourceModifier) {
	ev.applied = applied
	if ev.applied == nil {
		ev.applied = make(map[MarketID][]ResourceModifier)
	}
	es.active = append(es.active, ev)
}

// AppliedModifiers exposes exactly what an event multiplied in, for
// snapshots.
func (ev *ActiveEvent) AppliedModifiers() map[MarketID][]ResourceModifier {
	return ev.applied
}

// RemainingS reports seconds until expiry.
func (ev *ActiveEvent) RemainingS(now float64) float64 {
	if ev.ExpireTime <= now {
		return 0
	}
	return ev.ExpireTime - now
}
