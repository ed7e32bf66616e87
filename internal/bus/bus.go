// Package bus carries typed simulation events to registered subscribers.
// Subsystems publish during their tick; delivery happens only when the
// world flushes at the tick boundary, so subscribers never observe state
// mid-mutation and publishers never re-enter each other.
package bus

import "sort"

// Event is one published occurrence. Payload is one of the typed structs
// below; Kind discriminates for subscribers and the wire.
type Event struct {
	Tick    uint64 `json:"tick"`
	Kind    string `json:"kind"`
	Payload any    `json:"payload"`
}

// Payload kinds.
const (
	KindEconomicEvent    = "economic_event"
	KindEventExpired     = "economic_event_expired"
	KindRippleSpawned    = "ripple_spawned"
	KindTradeExecuted    = "trade_executed"
	KindJobCompleted     = "job_completed"
	KindItemCrafted      = "item_crafted"
	KindCraftingSignal   = "crafting_signal"
	KindSkillLevelUp     = "skill_level_up"
	KindMasteryUnlocked  = "mastery_unlocked"
	KindResearchComplete = "research_complete"
	KindVariationFound   = "variation_found"
	KindBottleneck       = "bottleneck_detected"
	KindWarning          = "warning"
)

// EconomicEventPayload describes an event activation or expiration.
type EconomicEventPayload struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Severity string   `json:"severity"`
	Markets  []string `json:"markets"`
	Resources []string `json:"resources"`
	DurationS float64  `json:"duration_s"`
	Headline  string   `json:"headline,omitempty"`
}

// TradePayload describes an executed trade.
type TradePayload struct {
	Market   string `json:"market"`
	Resource string `json:"resource"`
	Quantity int64  `json:"quantity"`
	Side     string `json:"side"`
	UnitPrice int64 `json:"unit_price"`
	Total     int64 `json:"total"`
}

// CraftingSignalPayload is the outward crafting signal contract: consumed
// and produced resources plus XP granted, for external listeners.
type CraftingSignalPayload struct {
	Consumed map[string]int64 `json:"consumed"`
	Produced map[string]int64 `json:"produced"`
	Quality  string           `json:"quality"`
	SkillsXP map[string]float64 `json:"skills_xp"`
}

// JobPayload describes a queue lifecycle transition.
type JobPayload struct {
	JobID    string `json:"job_id"`
	RecipeID string `json:"recipe_id"`
	Completed int64 `json:"completed"`
	Quantity  int64 `json:"quantity"`
}

// ItemCraftedPayload describes one produced unit and its rolled quality.
type ItemCraftedPayload struct {
	JobID    string `json:"job_id,omitempty"`
	RecipeID string `json:"recipe_id"`
	Resource string `json:"resource"`
	Quantity int64  `json:"quantity"`
	Quality  string `json:"quality"`
	Critical bool   `json:"critical"`
}

// WarningPayload is non-fatal telemetry (dead-market ripple skips, node
// state transitions, modifiers on unregistered markets).
type WarningPayload struct {
	Subsystem string `json:"subsystem"`
	Message   string `json:"message"`
}

// Subscriber receives flushed events.
type Subscriber func(Event)

// Bus buffers published events until Flush.
type Bus struct {
	pending []Event
	subs    map[string]Subscriber
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[string]Subscriber)}
}

// Subscribe registers a subscriber under an id, replacing any previous one.
func (b *Bus) Subscribe(id string, fn Subscriber) {
	b.subs[id] = fn
}

// Unsubscribe removes a subscriber.
func (b *Bus) Unsubscribe(id string) {
	delete(b.subs, id)
}

// Publish buffers an event for the next flush.
func (b *Bus) Publish(tick uint64, kind string, payload any) {
	b.pending = append(b.pending, Event{Tick: tick, Kind: kind, Payload: payload})
}

// Flush delivers all buffered events to every subscriber in stable
// subscriber-id order, then clears the buffer.
func (b *Bus) Flush() []Event {
	if len(b.pending) == 0 {
		return nil
	}
	flushed := b.pending
	b.pending = nil

	ids := make([]string, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, ev := range flushed {
		for _, id := range ids {
			b.subs[id](ev)
		}
	}
	return flushed
}

// Pending reports how many events wait for the next flush.
func (b *Bus) Pending() int { return len(b.pending) }
