// Stock event templates. These are data, not behaviour; hosts may register
// their own or replace these wholesale.
package economy

import "github.com/astralforge/starhold/internal/resource"

// DefaultTemplates returns the stock template set.
func DefaultTemplates() []EventTemplate {
	return []EventTemplate{
		{
			ID:              "mining_strike",
			Type:            EventSupplyShortage,
			BaseChancePerHr: 0.6,
			SeverityWeights: [4]float64{0.5, 0.3, 0.15, 0.05},
			DurationMinS:    120,
			DurationMaxS:    600,
			CooldownS:       300,
			Modifiers: []ResourceModifier{
				{Resource: resource.Silicate, SupplyMult: 0.5, DemandMult: 1, PriceMult: 1.4},
				{Resource: resource.RareMetal, SupplyMult: 0.6, DemandMult: 1, PriceMult: 1.3},
			},
			Catastrophic:    true,
			RippleMagnitude: -0.8,
			RippleType:      RippleSupplyShock,
			ChainSuccessors: []string{"refinery_slowdown"},
			Headline:        "Miners walk out across the belt",
		},
		{
			ID:              "refinery_slowdown",
			Type:            EventSupplyShortage,
			BaseChancePerHr: 0.3,
			SeverityWeights: [4]float64{0.6, 0.3, 0.1, 0},
			DurationMinS:    180,
			DurationMaxS:    480,
			CooldownS:       600,
			Modifiers: []ResourceModifier{
				{Resource: resource.RefinedSilicate, SupplyMult: 0.6, DemandMult: 1, PriceMult: 1.35},
				{Resource: resource.RefinedCarbon, SupplyMult: 0.6, DemandMult: 1, PriceMult: 1.35},
			},
			Headline: "Refinery throughput drops on feedstock shortage",
		},
		{
			ID:              "harvest_glut",
			Type:            EventSupplyGlut,
			BaseChancePerHr: 0.5,
			SeverityWeights: [4]float64{0.5, 0.35, 0.15, 0},
			DurationMinS:    240,
			DurationMaxS:    900,
			CooldownS:       600,
			Modifiers: []ResourceModifier{
				{Resource: resource.Carbon, SupplyMult: 1.8, DemandMult: 1, PriceMult: 0.7},
				{Resource: resource.Ice, SupplyMult: 1.6, DemandMult: 1, PriceMult: 0.75},
			},
			Headline: "Bumper extraction cycle floods local exchanges",
		},
		{
			ID:              "colony_expansion",
			Type:            EventDemandSpike,
			BaseChancePerHr: 0.4,
			SeverityWeights: [4]float64{0.4, 0.4, 0.2, 0},
			DurationMinS:    300,
			DurationMaxS:    1200,
			CooldownS:       900,
			Modifiers: []ResourceModifier{
				{Resource: resource.AlloyIngot, SupplyMult: 1, DemandMult: 1.7, PriceMult: 1.3},
				{Resource: resource.CompositeMaterial, SupplyMult: 1, DemandMult: 1.5, PriceMult: 1.25},
			},
			Headline: "Habitat ring breaks ground, construction demand surges",
		},
		{
			ID:              "pirate_blockade",
			Type:            EventTradeDisruption,
			BaseChancePerHr: 0.35,
			SeverityWeights: [4]float64{0.3, 0.4, 0.2, 0.1},
			DurationMinS:    180,
			DurationMaxS:    600,
			CooldownS:       600,
			Modifiers: []ResourceModifier{
				{Resource: resource.FusionCell, SupplyMult: 0.7, DemandMult: 1.2, PriceMult: 1.5},
				{Resource: resource.CircuitModule, SupplyMult: 0.8, DemandMult: 1.1, PriceMult: 1.3},
			},
			Catastrophic:    true,
			RippleMagnitude: -0.6,
			RippleType:      RippleTradeDisruption,
			Headline:        "Convoys rerouted around contested lanes",
		},
		{
			ID:              "fabricator_breakthrough",
			Type:            EventTechBreakthrough,
			BaseChancePerHr: 0.15,
			SeverityWeights: [4]float64{0.5, 0.35, 0.15, 0},
			DurationMinS:    600,
			DurationMaxS:    1800,
			CooldownS:       1800,
			Modifiers: []ResourceModifier{
				{Resource: resource.CircuitModule, SupplyMult: 1.4, DemandMult: 1, PriceMult: 0.8},
			},
			Headline: "New fabricator firmware lifts module yields",
		},
	}
}

// RegisterDefaults loads the stock templates into an event system.
func RegisterDefaults(es *EventSystem) {
	for _, t := range DefaultTemplates() {
		es.RegisterTemplate(t)
	}
}
