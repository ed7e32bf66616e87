// Recipe catalog: definitions, unlock tracking, variations, and the
// producer index the planner walks.
package crafting

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/astralforge/starhold/internal/resource"
	"github.com/astralforge/starhold/internal/simerr"
)

// Stack is a resource quantity pair.
type Stack struct {
	Resource resource.Type `json:"resource"`
	Quantity int64         `json:"quantity"`
}

// Recipe declares one craftable transformation.
type Recipe struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Tier     int    `json:"tier"`
	Category string `json:"category"`

	PrimaryInputs        []Stack   `json:"primary_inputs"`
	OptionalInputs       []Stack   `json:"optional_inputs,omitempty"`
	AlternativeInputSets [][]Stack `json:"alternative_input_sets,omitempty"`
	PrimaryOutputs       []Stack   `json:"primary_outputs"`
	BonusOutputs         []Stack   `json:"bonus_outputs,omitempty"`
	BonusChance          float64   `json:"bonus_chance"`

	BaseTimeS         float64 `json:"base_time_s"`
	EnergyCost        float64 `json:"energy_cost"`
	ToolWear          float64 `json:"tool_wear"`
	BaseQualityChance float64 `json:"base_quality_chance"`

	SkillXPRewards map[SkillID]float64 `json:"skill_xp_rewards,omitempty"`
	RequiredSkills map[SkillID]int     `json:"required_skills,omitempty"`
	Prerequisites  []string            `json:"prerequisites,omitempty"`
	Unlocks        []string            `json:"unlocks,omitempty"`

	CanAutomate       bool    `json:"can_automate"`
	AutomationPenalty float64 `json:"automation_penalty"`
}

// PrimaryOutputCount sums primary output quantities.
func (r *Recipe) PrimaryOutputCount() int64 {
	var n int64
	for _, s := range r.PrimaryOutputs {
		n += s.Quantity
	}
	if n < 1 {
		return 1
	}
	return n
}

// Variation is an alternative configuration of a base recipe, subject to
// discovery.
type Variation struct {
	ID             string          `json:"id"`
	BaseRecipe     string          `json:"base_recipe"`
	InputSet       []Stack         `json:"input_set"`
	TimeMult       float64         `json:"time_mult"`
	QualityMult    float64         `json:"quality_mult"`
	RequiredSkills map[SkillID]int `json:"required_skills,omitempty"`
	Discovered     bool            `json:"discovered"`
	hash           string
}

// Hash returns the canonical ingredient-set hash used by experimentation.
func (v *Variation) Hash() string {
	if v.hash == "" {
		v.hash = HashInputSet(v.InputSet)
	}
	return v.hash
}

// HashInputSet digests an ingredient set independent of declared order.
func HashInputSet(set []Stack) string {
	sorted := append([]Stack(nil), set...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Resource != sorted[j].Resource {
			return sorted[i].Resource < sorted[j].Resource
		}
		return sorted[i].Quantity < sorted[j].Quantity
	})
	h := sha256.New()
	for _, s := range sorted {
		h.Write([]byte{byte(s.Resource)})
		for i := 0; i < 8; i++ {
			h.Write([]byte{byte(s.Quantity >> (8 * i))})
		}
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// Catalog owns recipe definitions, unlock state, and variations.
type Catalog struct {
	recipes    map[string]*Recipe
	unlocked   map[string]bool
	variations map[string][]*Variation
	// producers maps each resource to the recipe ids that output it.
	producers map[resource.Type][]string
	// attemptedHashes records failed experimentation sets per recipe so
	// the same candidate is never re-rolled.
	attemptedHashes map[string]map[string]bool
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		recipes:         make(map[string]*Recipe),
		unlocked:        make(map[string]bool),
		variations:      make(map[string][]*Variation),
		producers:       make(map[resource.Type][]string),
		attemptedHashes: make(map[string]map[string]bool),
	}
}

// Register adds a recipe; recipes without prerequisites start unlocked.
func (c *Catalog) Register(r Recipe) error {
	if r.ID == "" {
		return simerr.Validationf("recipe missing id")
	}
	if len(r.PrimaryOutputs) == 0 {
		return simerr.Validationf("recipe %s has no outputs", r.ID)
	}
	if r.BaseTimeS <= 0 {
		return simerr.Validationf("recipe %s base time %v", r.ID, r.BaseTimeS)
	}
	c.recipes[r.ID] = &r
	if len(r.Prerequisites) == 0 {
		c.unlocked[r.ID] = true
	}
	for _, out := range r.PrimaryOutputs {
		c.producers[out.Resource] = append(c.producers[out.Resource], r.ID)
	}
	return nil
}

// Recipe returns a definition by id.
func (c *Catalog) Recipe(id string) (*Recipe, error) {
	r, ok := c.recipes[id]
	if !ok {
		return nil, simerr.NotFound("recipe", id)
	}
	return r, nil
}

// Recipes returns all recipe ids, sorted.
func (c *Catalog) Recipes() []string {
	ids := make([]string, 0, len(c.recipes))
	for id := range c.recipes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Unlocked reports whether a recipe may be crafted.
func (c *Catalog) Unlocked(id string) bool { return c.unlocked[id] }

// UnlockedRecipes returns unlocked ids, sorted.
func (c *Catalog) UnlockedRecipes() []string {
	ids := make([]string, 0, len(c.unlocked))
	for id, ok := range c.unlocked {
		if ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Unlock marks a recipe craftable if its prerequisite recipes are
// unlocked.
func (c *Catalog) Unlock(id string) error {
	r, err := c.Recipe(id)
	if err != nil {
		return err
	}
	for _, pre := range r.Prerequisites {
		if !c.unlocked[pre] {
			return simerr.Unavailablef("recipe %s requires %s", id, pre)
		}
	}
	c.unlocked[id] = true
	return nil
}

// ForceUnlock sets unlock state without prerequisite checks (research
// completion, mastery grants, snapshot restore).
func (c *Catalog) ForceUnlock(id string) { c.unlocked[id] = true }

// Producers returns recipe ids that output a resource, sorted. A resource
// with no producers is a raw material.
func (c *Catalog) Producers(r resource.Type) []string {
	ids := append([]string(nil), c.producers[r]...)
	sort.Strings(ids)
	return ids
}

// IsRaw reports whether no recipe produces the resource.
func (c *Catalog) IsRaw(r resource.Type) bool {
	return len(c.producers[r]) == 0
}

// AddVariation registers a (possibly undiscovered) variation.
func (c *Catalog) AddVariation(v Variation) error {
	if _, err := c.Recipe(v.BaseRecipe); err != nil {
		return err
	}
	if v.TimeMult <= 0 {
		v.TimeMult = 1
	}
	if v.QualityMult <= 0 {
		v.QualityMult = 1
	}
	vc := v
	vc.Hash()
	c.variations[v.BaseRecipe] = append(c.variations[v.BaseRecipe], &vc)
	return nil
}

// Variations returns all variations of a recipe, discovered or not.
func (c *Catalog) Variations(recipeID string) []*Variation {
	return c.variations[recipeID]
}

// DiscoveredVariations returns only discovered variations.
func (c *Catalog) DiscoveredVariations(recipeID string) []*Variation {
	var out []*Variation
	for _, v := range c.variations[recipeID] {
		if v.Discovered {
			out = append(out, v)
		}
	}
	return out
}

// DiscoverVariation marks a variation found without an experimentation
// roll (snapshot restore, quest rewards).
func (c *Catalog) DiscoverVariation(recipeID, variationID string) error {
	for _, v := range c.variations[recipeID] {
		if v.ID == variationID {
			v.Discovered = true
			return nil
		}
	}
	return simerr.NotFound("variation", variationID)
}

// markAttempted records a failed experimentation hash.
func (c *Catalog) markAttempted(recipeID, hash string) {
	if c.attemptedHashes[recipeID] == nil {
		c.attemptedHashes[recipeID] = make(map[string]bool)
	}
	c.attemptedHashes[recipeID][hash] = true
}

// attempted reports whether a candidate set was already tried and failed.
func (c *Catalog) attempted(recipeID, hash string) bool {
	return c.attemptedHashes[recipeID][hash]
}
