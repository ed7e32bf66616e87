package crafting

import "github.com/astralforge/starhold/internal/resource"

// DefaultSkills returns the starting skill tree.
func DefaultSkills() []Skill {
	return []Skill{
		{
			ID: "ore_refining", Category: CategoryRefining,
			SpeedPerLevel: 0.02, QualityPerLevel: 0.01, MaterialEffPerLevel: 0.005,
		},
		{
			ID: "cryo_processing", Category: CategoryRefining,
			SpeedPerLevel: 0.015, QualityPerLevel: 0.012,
			Prerequisites: map[SkillID]int{"ore_refining": 3},
		},
		{
			ID: "alloy_smithing", Category: CategoryFabrication,
			SpeedPerLevel: 0.02, QualityPerLevel: 0.015,
			Prerequisites: map[SkillID]int{"ore_refining": 5},
		},
		{
			ID: "composite_assembly", Category: CategoryFabrication,
			SpeedPerLevel: 0.015, QualityPerLevel: 0.02, MaterialEffPerLevel: 0.004,
			Prerequisites: map[SkillID]int{"alloy_smithing": 4},
		},
		{
			ID: "circuit_design", Category: CategoryEngineering,
			SpeedPerLevel: 0.01, QualityPerLevel: 0.025,
			Prerequisites: map[SkillID]int{"composite_assembly": 3},
		},
		{
			ID: "fusion_engineering", Category: CategoryEngineering,
			SpeedPerLevel: 0.01, QualityPerLevel: 0.03,
			Prerequisites: map[SkillID]int{"circuit_design": 5, "cryo_processing": 5},
		},
	}
}

// DefaultMasteries returns the category mastery table.
func DefaultMasteries() []Mastery {
	return []Mastery{
		{
			ID: "master_refiner", Category: CategoryRefining,
			RequiredTotalLevels: 20, SpeedMult: 1.25, QualityMult: 1.1,
		},
		{
			ID: "master_fabricator", Category: CategoryFabrication,
			RequiredTotalLevels: 25, SpeedMult: 1.2, QualityMult: 1.15,
			ExclusiveRecipes: []string{"composite_lattice"},
		},
		{
			ID: "master_engineer", Category: CategoryEngineering,
			RequiredTotalLevels: 30, SpeedMult: 1.15, QualityMult: 1.2,
			UniqueItemChance: 0.02,
		},
	}
}

// DefaultRecipes returns the base production chain from raw ores up to
// fusion cells.
func DefaultRecipes() []Recipe {
	return []Recipe{
		{
			ID: "refine_silicate", Name: "Refine Silicate", Tier: 1, Category: CategoryRefining,
			PrimaryInputs:  []Stack{{resource.Silicate, 3}},
			PrimaryOutputs: []Stack{{resource.RefinedSilicate, 1}},
			BaseTimeS:      8, EnergyCost: 2, BaseQualityChance: 0.45,
			SkillXPRewards: map[SkillID]float64{"ore_refining": 5},
			CanAutomate:    true, AutomationPenalty: 0.1,
		},
		{
			ID: "refine_carbon", Name: "Refine Carbon", Tier: 1, Category: CategoryRefining,
			PrimaryInputs:  []Stack{{resource.Carbon, 3}},
			PrimaryOutputs: []Stack{{resource.RefinedCarbon, 1}},
			BaseTimeS:      8, EnergyCost: 2, BaseQualityChance: 0.45,
			SkillXPRewards: map[SkillID]float64{"ore_refining": 5},
			CanAutomate:    true, AutomationPenalty: 0.1,
		},
		{
			ID: "purify_ice", Name: "Purify Ice", Tier: 1, Category: CategoryRefining,
			PrimaryInputs:  []Stack{{resource.Ice, 2}},
			PrimaryOutputs: []Stack{{resource.PurifiedIce, 1}},
			BaseTimeS:      6, EnergyCost: 3, BaseQualityChance: 0.5,
			SkillXPRewards: map[SkillID]float64{"cryo_processing": 6},
			RequiredSkills: map[SkillID]int{"cryo_processing": 1},
			CanAutomate:    true, AutomationPenalty: 0.1,
		},
		{
			ID: "smelt_alloy", Name: "Smelt Alloy Ingot", Tier: 2, Category: CategoryFabrication,
			PrimaryInputs:  []Stack{{resource.RareMetal, 2}, {resource.RefinedSilicate, 1}},
			AlternativeInputSets: [][]Stack{
				{{resource.RareMetal, 1}, {resource.RefinedSilicate, 3}},
			},
			PrimaryOutputs: []Stack{{resource.AlloyIngot, 1}},
			BaseTimeS:      15, EnergyCost: 6, ToolWear: 0.02, BaseQualityChance: 0.5,
			SkillXPRewards: map[SkillID]float64{"alloy_smithing": 10},
			RequiredSkills: map[SkillID]int{"alloy_smithing": 1},
			CanAutomate:    true, AutomationPenalty: 0.15,
		},
		{
			ID: "weave_composite", Name: "Weave Composite", Tier: 2, Category: CategoryFabrication,
			PrimaryInputs:  []Stack{{resource.RefinedCarbon, 2}, {resource.AlloyIngot, 1}},
			OptionalInputs: []Stack{{resource.PurifiedIce, 1}},
			PrimaryOutputs: []Stack{{resource.CompositeMaterial, 1}},
			BonusOutputs:   []Stack{{resource.RefinedCarbon, 1}},
			BonusChance:    0.1,
			BaseTimeS:      20, EnergyCost: 8, ToolWear: 0.03, BaseQualityChance: 0.55,
			SkillXPRewards: map[SkillID]float64{"composite_assembly": 14},
			RequiredSkills: map[SkillID]int{"composite_assembly": 1},
			CanAutomate:    true, AutomationPenalty: 0.2,
		},
		{
			ID: "etch_circuit", Name: "Etch Circuit Module", Tier: 3, Category: CategoryEngineering,
			PrimaryInputs:  []Stack{{resource.RefinedSilicate, 2}, {resource.RareMetal, 1}},
			PrimaryOutputs: []Stack{{resource.CircuitModule, 1}},
			BaseTimeS:      25, EnergyCost: 12, BaseQualityChance: 0.6,
			SkillXPRewards: map[SkillID]float64{"circuit_design": 20},
			RequiredSkills: map[SkillID]int{"circuit_design": 1},
			Prerequisites:  []string{"refine_silicate"},
			CanAutomate:    false,
		},
		{
			ID: "assemble_fusion_cell", Name: "Assemble Fusion Cell", Tier: 3, Category: CategoryEngineering,
			PrimaryInputs:  []Stack{{resource.PurifiedIce, 2}, {resource.CircuitModule, 1}, {resource.CompositeMaterial, 1}},
			PrimaryOutputs: []Stack{{resource.FusionCell, 1}},
			BaseTimeS:      40, EnergyCost: 25, ToolWear: 0.05, BaseQualityChance: 0.65,
			SkillXPRewards: map[SkillID]float64{"fusion_engineering": 40},
			RequiredSkills: map[SkillID]int{"fusion_engineering": 1},
			Prerequisites:  []string{"etch_circuit", "purify_ice"},
			CanAutomate:    false,
		},
		{
			ID: "composite_lattice", Name: "Composite Lattice", Tier: 3, Category: CategoryFabrication,
			PrimaryInputs:  []Stack{{resource.CompositeMaterial, 2}, {resource.AlloyIngot, 2}},
			PrimaryOutputs: []Stack{{resource.CompositeMaterial, 3}},
			BaseTimeS:      30, EnergyCost: 10, BaseQualityChance: 0.7,
			SkillXPRewards: map[SkillID]float64{"composite_assembly": 25},
			Prerequisites:  []string{"weave_composite", "smelt_alloy"},
			CanAutomate:    false,
		},
	}
}

// DefaultFacilities returns the starting stations.
func DefaultFacilities() []Facility {
	return []Facility{
		{
			ID: "basic_refinery", Name: "Basic Refinery", Tier: 1, Level: 1,
			Slots: 4, SpeedMult: 1.0, QualityBonus: 0,
			Categories: []string{CategoryRefining},
		},
		{
			ID: "orbital_foundry", Name: "Orbital Foundry", Tier: 2, Level: 1,
			Slots: 2, SpeedMult: 1.2, QualityBonus: 0.05,
			Categories: []string{CategoryRefining, CategoryFabrication},
		},
		{
			ID: "precision_lab", Name: "Precision Lab", Tier: 3, Level: 1,
			Slots: 1, SpeedMult: 0.9, QualityBonus: 0.15, EnergyMult: 1.3,
			Categories: []string{CategoryEngineering, CategoryFabrication},
		},
	}
}

// DefaultVariations returns discoverable recipe variations.
func DefaultVariations() []Variation {
	return []Variation{
		{
			ID: "smelt_alloy_cryo", BaseRecipe: "smelt_alloy",
			InputSet:    []Stack{{resource.RareMetal, 2}, {resource.PurifiedIce, 1}},
			TimeMult:    0.8, QualityMult: 1.1,
			RequiredSkills: map[SkillID]int{"alloy_smithing": 3},
		},
		{
			ID: "weave_composite_dense", BaseRecipe: "weave_composite",
			InputSet:    []Stack{{resource.RefinedCarbon, 3}, {resource.AlloyIngot, 2}},
			TimeMult:    1.3, QualityMult: 1.25,
			RequiredSkills: map[SkillID]int{"composite_assembly": 4},
		},
	}
}

// DefaultResearch returns the starting blueprint projects.
func DefaultResearch() []ResearchProject {
	return []ResearchProject{
		{
			ID: "circuit_blueprints", Name: "Circuit Blueprints",
			RequiredTimeS:  300,
			UnlocksRecipes: []string{"etch_circuit"},
			RequiredSkills: map[SkillID]int{"circuit_design": 1},
			SkillCategory:  CategoryEngineering,
		},
		{
			ID: "fusion_blueprints", Name: "Fusion Cell Blueprints",
			RequiredTimeS:  900,
			UnlocksRecipes: []string{"assemble_fusion_cell"},
			RequiredSkills: map[SkillID]int{"fusion_engineering": 1},
			SkillCategory:  CategoryEngineering,
		},
	}
}

// RegisterDefaults loads the full default content set into a manager.
func RegisterDefaults(m *Manager) error {
	for _, s := range DefaultSkills() {
		m.Skills().Register(s)
	}
	for _, ms := range DefaultMasteries() {
		m.Skills().RegisterMastery(ms)
	}
	for _, r := range DefaultRecipes() {
		if err := m.Catalog().Register(r); err != nil {
			return err
		}
	}
	for _, f := range DefaultFacilities() {
		if err := m.Facilities().Register(f); err != nil {
			return err
		}
	}
	for _, v := range DefaultVariations() {
		if err := m.Catalog().AddVariation(v); err != nil {
			return err
		}
	}
	for _, p := range DefaultResearch() {
		if err := m.Research().Define(p); err != nil {
			return err
		}
	}
	return nil
}
