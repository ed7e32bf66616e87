// Skill progression: XP curves, skill points, prerequisite-gated unlocks,
// and category masteries.
package crafting

import (
	"math"
	"sort"

	"github.com/astralforge/starhold/internal/bus"
	"github.com/astralforge/starhold/internal/config"
	"github.com/astralforge/starhold/internal/simerr"
)

// SkillID names one skill node.
type SkillID string

// Skill categories group skills for mastery accounting.
const (
	CategoryRefining    = "refining"
	CategoryFabrication = "fabrication"
	CategoryEngineering = "engineering"
)

// Skill is one node in the skill tree.
type Skill struct {
	ID       SkillID `json:"id"`
	Category string  `json:"category"`
	Level    int     `json:"level"`
	MaxLevel int     `json:"max_level"`
	XP       float64 `json:"xp"`
	XPToNext float64 `json:"xp_to_next"`

	// Per-level effect coefficients.
	SpeedPerLevel       float64 `json:"speed_per_level"`
	QualityPerLevel     float64 `json:"quality_per_level"`
	SuccessPerLevel     float64 `json:"success_per_level"`
	MaterialEffPerLevel float64 `json:"material_eff_per_level"`

	Prerequisites map[SkillID]int `json:"prerequisites,omitempty"`
	Unlocks       []string        `json:"unlocks,omitempty"`
	Unlocked      bool            `json:"unlocked"`
}

// Mastery is a category-wide multiplier earned by total skill investment.
type Mastery struct {
	ID                  string   `json:"id"`
	Category            string   `json:"category"`
	RequiredTotalLevels int      `json:"required_total_levels"`
	Unlocked            bool     `json:"unlocked"`
	SpeedMult           float64  `json:"speed_mult"`
	QualityMult         float64  `json:"quality_mult"`
	UniqueItemChance    float64  `json:"unique_item_chance"`
	ExclusiveRecipes    []string `json:"exclusive_recipes,omitempty"`
}

// SkillSystem owns all skills and masteries for one commander.
type SkillSystem struct {
	cfg *config.CraftingConfig
	bus *bus.Bus

	skills    map[SkillID]*Skill
	masteries map[string]*Mastery

	SkillPoints int `json:"skill_points"`
	// TotalXPGranted tracks every point ever granted; consumed level-up
	// costs plus current buckets must always equal it.
	TotalXPGranted float64 `json:"total_xp"`
	// consumedXP accumulates the XP spent on completed level-ups.
	consumedXP float64

	tick uint64
}

// NewSkillSystem creates an empty skill system.
func NewSkillSystem(cfg *config.CraftingConfig, b *bus.Bus) *SkillSystem {
	return &SkillSystem{
		cfg:       cfg,
		bus:       b,
		skills:    make(map[SkillID]*Skill),
		masteries: make(map[string]*Mastery),
	}
}

// SetTick updates the tick stamp used on published events.
func (ss *SkillSystem) SetTick(t uint64) { ss.tick = t }

// Register adds a skill definition. Skills without prerequisites start
// unlocked.
func (ss *SkillSystem) Register(s Skill) {
	if s.MaxLevel <= 0 {
		s.MaxLevel = 50
	}
	if s.XPToNext <= 0 {
		s.XPToNext = ss.xpForLevel(maxInt(s.Level, 1))
	}
	if len(s.Prerequisites) == 0 {
		s.Unlocked = true
	}
	ss.skills[s.ID] = &s
}

// RegisterMastery adds a mastery definition.
func (ss *SkillSystem) RegisterMastery(m Mastery) {
	ss.masteries[m.ID] = &m
}

// Skill returns a skill by id.
func (ss *SkillSystem) Skill(id SkillID) (*Skill, error) {
	s, ok := ss.skills[id]
	if !ok {
		return nil, simerr.NotFound("skill", string(id))
	}
	return s, nil
}

// Skills returns all skills sorted by id.
func (ss *SkillSystem) Skills() []*Skill {
	out := make([]*Skill, 0, len(ss.skills))
	for _, s := range ss.skills {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Masteries returns all masteries sorted by id.
func (ss *SkillSystem) Masteries() []*Mastery {
	out := make([]*Mastery, 0, len(ss.masteries))
	for _, m := range ss.masteries {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (ss *SkillSystem) xpForLevel(level int) float64 {
	return math.Pow(float64(level), ss.cfg.ExperienceCurveExponent) * 100 * ss.cfg.ExperienceCurveMultiplier
}

// GrantXP adds XP to a skill, advancing levels while the bucket overflows.
// Points and level-ups are awarded per level gained.
func (ss *SkillSystem) GrantXP(id SkillID, xp float64) error {
	s, err := ss.Skill(id)
	if err != nil {
		return err
	}
	if xp < 0 {
		return simerr.Validationf("negative xp %v", xp)
	}
	ss.TotalXPGranted += xp
	s.XP += xp
	for s.Level < s.MaxLevel && s.XP >= s.XPToNext {
		s.XP -= s.XPToNext
		ss.consumedXP += s.XPToNext
		s.Level++
		s.XPToNext = ss.xpForLevel(s.Level)
		ss.SkillPoints += ss.cfg.SkillPointsPerLevel
		ss.bus.Publish(ss.tick, bus.KindSkillLevelUp, map[string]any{
			"skill": string(id), "level": s.Level,
		})
	}
	ss.checkMasteries()
	return nil
}

// Unlockable reports whether every prerequisite pair is satisfied.
func (ss *SkillSystem) Unlockable(id SkillID) (bool, error) {
	s, err := ss.Skill(id)
	if err != nil {
		return false, err
	}
	for pre, min := range s.Prerequisites {
		p, ok := ss.skills[pre]
		if !ok || p.Level < min {
			return false, nil
		}
	}
	return true, nil
}

// Unlock marks a skill available. Unlocking consumes nothing.
func (ss *SkillSystem) Unlock(id SkillID) error {
	ok, err := ss.Unlockable(id)
	if err != nil {
		return err
	}
	if !ok {
		return simerr.Unavailablef("skill %s prerequisites unmet", id)
	}
	ss.skills[id].Unlocked = true
	return nil
}

// SpendSkillPoint raises an unlocked skill's level directly.
func (ss *SkillSystem) SpendSkillPoint(id SkillID) error {
	s, err := ss.Skill(id)
	if err != nil {
		return err
	}
	if !s.Unlocked {
		return simerr.Unavailablef("skill %s locked", id)
	}
	if ss.SkillPoints < 1 {
		return simerr.Insufficientf("no skill points")
	}
	if s.Level >= s.MaxLevel {
		return simerr.Validationf("skill %s at max level %d", id, s.MaxLevel)
	}
	ss.SkillPoints--
	s.Level++
	s.XPToNext = ss.xpForLevel(s.Level)
	ss.checkMasteries()
	return nil
}

// MeetsRequirements checks a recipe's skill gates.
func (ss *SkillSystem) MeetsRequirements(reqs map[SkillID]int) bool {
	for id, min := range reqs {
		s, ok := ss.skills[id]
		if !ok || !s.Unlocked || s.Level < min {
			return false
		}
	}
	return true
}

// CategoryLevelTotal sums levels across a category.
func (ss *SkillSystem) CategoryLevelTotal(category string) int {
	total := 0
	for _, s := range ss.skills {
		if s.Category == category {
			total += s.Level
		}
	}
	return total
}

func (ss *SkillSystem) checkMasteries() {
	for _, m := range ss.masteries {
		if m.Unlocked {
			continue
		}
		if ss.CategoryLevelTotal(m.Category) >= m.RequiredTotalLevels {
			m.Unlocked = true
			ss.bus.Publish(ss.tick, bus.KindMasteryUnlocked, map[string]any{
				"mastery": m.ID, "category": m.Category,
			})
		}
	}
}

// mastery returns the unlocked mastery for a category, if any.
func (ss *SkillSystem) mastery(category string) *Mastery {
	for _, m := range ss.masteries {
		if m.Unlocked && m.Category == category {
			return m
		}
	}
	return nil
}

// SpeedBonus is the additive crafting speed bonus for a category, times
// any mastery multiplier. Clamped so total speed never drops below 0.1x.
func (ss *SkillSystem) SpeedBonus(category string) float64 {
	bonus := 0.0
	for _, s := range ss.skills {
		if s.Category == category {
			bonus += float64(s.Level) * s.SpeedPerLevel
		}
	}
	if m := ss.mastery(category); m != nil && m.SpeedMult > 0 {
		bonus = (1+bonus)*m.SpeedMult - 1
	}
	if bonus < -0.9 {
		bonus = -0.9
	}
	return bonus
}

// QualityAdditive is the additive quality-score bonus for a category.
func (ss *SkillSystem) QualityAdditive(category string) float64 {
	bonus := 0.0
	for _, s := range ss.skills {
		if s.Category == category {
			bonus += float64(s.Level) * s.QualityPerLevel
		}
	}
	return bonus
}

// QualityMultiplier is the mastery quality multiplier for a category.
func (ss *SkillSystem) QualityMultiplier(category string) float64 {
	if m := ss.mastery(category); m != nil && m.QualityMult > 0 {
		return m.QualityMult
	}
	return 1
}

// MaterialEfficiency is the fractional ingredient reduction for a
// category, capped at 50%.
func (ss *SkillSystem) MaterialEfficiency(category string) float64 {
	eff := 0.0
	for _, s := range ss.skills {
		if s.Category == category {
			eff += float64(s.Level) * s.MaterialEffPerLevel
		}
	}
	if eff > 0.5 {
		eff = 0.5
	}
	return eff
}

// ExclusiveRecipeUnlocked reports whether a mastery grants a recipe.
func (ss *SkillSystem) ExclusiveRecipeUnlocked(recipeID string) bool {
	for _, m := range ss.masteries {
		if !m.Unlocked {
			continue
		}
		for _, r := range m.ExclusiveRecipes {
			if r == recipeID {
				return true
			}
		}
	}
	return false
}

// AccountedXP sums XP consumed by level-ups plus current buckets. It must
// equal TotalXPGranted at every tick boundary.
func (ss *SkillSystem) AccountedXP() float64 {
	total := ss.consumedXP
	for _, s := range ss.skills {
		total += s.XP
	}
	return total
}

// RestoreLedger reinstates the XP ledger from a snapshot.
func (ss *SkillSystem) RestoreLedger(totalGranted, consumed float64, points int) {
	ss.TotalXPGranted = totalGranted
	ss.consumedXP = consumed
	ss.SkillPoints = points
}

// ConsumedXP exposes the level-up ledger for snapshots.
func (ss *SkillSystem) ConsumedXP() float64 { return ss.consumedXP }

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
