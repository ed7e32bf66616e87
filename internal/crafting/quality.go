// Quality rolling for crafted units.
package crafting

import (
	"github.com/astralforge/starhold/internal/config"
	"github.com/astralforge/starhold/internal/entropy"
	"github.com/astralforge/starhold/internal/resource"
)

// ModifierSource tags where a quality modifier came from.
type ModifierSource uint8

const (
	ModSkill ModifierSource = iota
	ModFacility
	ModMaterial
	ModTool
	ModCatalyst
	ModRandom
	ModTemporary
)

// QualityModifier adjusts a roll. Additive modifiers sum into the score;
// multiplicative ones chain onto the clamped sum.
type QualityModifier struct {
	Source         ModifierSource
	Additive       float64
	Multiplicative float64 // 0 means "not multiplicative"
}

// QualityResult reports one resolved roll.
type QualityResult struct {
	Tier     resource.Quality
	Score    float64
	Critical bool
}

// RollQuality resolves a single crafted unit's quality:
// base chance plus noise, plus additive modifiers, clamped, then scaled by
// the multiplicative chain, with a critical draw escalating tiers.
func RollQuality(cfg *config.CraftingConfig, baseChance float64, mods []QualityModifier, criticalChance float64, rng *entropy.Stream) QualityResult {
	v := cfg.BaseQualityVariance
	score := baseChance + rng.Range(-v, v)

	additive := 0.0
	multiplicative := 1.0
	for _, m := range mods {
		additive += m.Additive
		if m.Multiplicative > 0 {
			multiplicative *= m.Multiplicative
		}
	}

	score = clampf(score+additive, 0, 1) * multiplicative

	if criticalChance <= 0 {
		criticalChance = cfg.BaseCriticalChance
	}
	critical := rng.Chance(criticalChance)

	tier := resource.TierForScore(clampf(score, 0, 1), resource.DefaultQualityBands)
	if critical {
		tier = resource.ClampTier(int(tier) + cfg.CriticalQualityBonus)
	}

	return QualityResult{Tier: tier, Score: score, Critical: critical}
}

// CapTier bounds a rolled tier; automation output never exceeds Standard.
func CapTier(r QualityResult, cap resource.Quality) QualityResult {
	if r.Tier > cap {
		r.Tier = cap
	}
	return r
}

// ItemValue prices a crafted item: base value scaled by the quality tier
// and current market appetite.
func ItemValue(baseValue int64, q resource.Quality, marketPriceMultiplier float64) int64 {
	if marketPriceMultiplier <= 0 {
		marketPriceMultiplier = 1
	}
	v := float64(baseValue) * resource.ValueMultipliers[q] * marketPriceMultiplier
	if v < 1 {
		return 1
	}
	return int64(v)
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
