package crafting

import (
	"log/slog"

	"github.com/astralforge/starhold/internal/bus"
)

// Experiment submits a candidate ingredient set against a base recipe.
// If the set hashes to a defined variation and the skill requirement is
// met, discovery succeeds with probability base_experimentation_chance
// plus the category skill bonus. Failed candidates are recorded so the
// same set is never re-rolled.
func (m *Manager) Experiment(recipeID string, candidate []Stack) (bool, error) {
	r, err := m.catalog.Recipe(recipeID)
	if err != nil {
		return false, err
	}
	hash := HashInputSet(candidate)
	if m.catalog.attempted(recipeID, hash) {
		return false, nil
	}

	var match *Variation
	for _, v := range m.catalog.Variations(recipeID) {
		if v.Hash() == hash {
			match = v
			break
		}
	}
	if match == nil {
		m.catalog.markAttempted(recipeID, hash)
		return false, nil
	}
	if match.Discovered {
		return true, nil
	}
	if !m.skills.MeetsRequirements(match.RequiredSkills) {
		return false, nil
	}

	chance := m.cfg.BaseExperimentationChance + m.skills.QualityAdditive(r.Category)
	if !m.rng.Chance(chance) {
		m.catalog.markAttempted(recipeID, hash)
		return false, nil
	}

	match.Discovered = true
	m.bus.Publish(m.tick, bus.KindVariationFound, map[string]any{
		"recipe":    recipeID,
		"variation": match.ID,
	})
	slog.Info("variation discovered", "recipe", recipeID, "variation", match.ID)
	return true, nil
}
