// Production-chain planner: walks the recipe DAG depth first, aggregates
// raw-material totals, estimates time, energy, and cost, and reports why
// a chain cannot run.
package crafting

import (
	"fmt"
	"math"
	"sort"

	"github.com/astralforge/starhold/internal/config"
	"github.com/astralforge/starhold/internal/inventory"
	"github.com/astralforge/starhold/internal/resource"
	"github.com/astralforge/starhold/internal/simerr"
)

// PriceSource quotes unit prices at the nearest market. The planner only
// reads; it never trades.
type PriceSource interface {
	BuyPrice(r resource.Type) (int64, bool)
	SellPrice(r resource.Type) (int64, bool)
}

// PlanStep is one crafting run inside a chain, leaves first.
type PlanStep struct {
	RecipeID    string `json:"recipe_id"`
	VariationID string `json:"variation_id,omitempty"`
	Runs        int64  `json:"runs"`
	Output      int64  `json:"output"`
	Depth       int    `json:"depth"`
}

// BlockingReason explains one infeasibility.
type BlockingReason struct {
	Kind   string `json:"kind"` // locked_recipe, missing_facility, skill_requirement, depth_overflow
	Detail string `json:"detail"`
}

// Plan is the resolved production chain for a target recipe.
type Plan struct {
	TargetRecipe string                  `json:"target_recipe"`
	Quantity     int64                   `json:"quantity"`
	Steps        []PlanStep              `json:"steps"`
	RawTotals    map[resource.Type]int64 `json:"raw_totals"`
	FromInventory map[resource.Type]int64 `json:"from_inventory,omitempty"`

	TimeEstimateS  float64 `json:"time_estimate_s"`
	EnergyEstimate float64 `json:"energy_estimate"`
	MaterialCost   int64   `json:"material_cost"`
	ExpectedValue  int64   `json:"expected_value"`

	Feasible bool             `json:"feasible"`
	Blocking []BlockingReason `json:"blocking,omitempty"`
}

// NetProfit is expected value minus material cost.
func (p *Plan) NetProfit() int64 { return p.ExpectedValue - p.MaterialCost }

// Planner resolves chains against the catalog with an LRU plan cache.
type Planner struct {
	cfg        *config.CraftingConfig
	catalog    *Catalog
	facilities *FacilityRegistry
	skills     *SkillSystem
	prices     PriceSource

	cache      map[string]*Plan
	cacheOrder []string
}

// NewPlanner creates a planner. prices may be nil; cost fields stay zero.
func NewPlanner(cfg *config.CraftingConfig, cat *Catalog, fr *FacilityRegistry, ss *SkillSystem, prices PriceSource) *Planner {
	return &Planner{
		cfg:        cfg,
		catalog:    cat,
		facilities: fr,
		skills:     ss,
		prices:     prices,
		cache:      make(map[string]*Plan),
	}
}

// Plan resolves the chain for quantity outputs of the target recipe.
// With accountInventory, on-hand stock reduces the totals. inv may be nil
// when accountInventory is false.
func (pl *Planner) Plan(targetRecipe string, quantity int64, inv inventory.Provider, accountInventory bool) (*Plan, error) {
	if quantity < 1 {
		return nil, simerr.Validationf("plan quantity %d", quantity)
	}
	if _, err := pl.catalog.Recipe(targetRecipe); err != nil {
		return nil, err
	}

	key := pl.cacheKey(targetRecipe, quantity, inv, accountInventory)
	if p, ok := pl.cache[key]; ok {
		pl.touch(key)
		return p, nil
	}

	p := pl.resolve(targetRecipe, quantity, inv, accountInventory, nil)
	pl.store(key, p)
	return p, nil
}

// OptimalPlan enumerates discovered variation combinations across the
// chain, bounded per recipe, and returns the highest net-profit plan.
func (pl *Planner) OptimalPlan(targetRecipe string, quantity int64, inv inventory.Provider, accountInventory bool) (*Plan, error) {
	base, err := pl.Plan(targetRecipe, quantity, inv, accountInventory)
	if err != nil {
		return nil, err
	}

	// Collect per-recipe options: nil means the base form.
	type option struct {
		recipe string
		vars   []*Variation
	}
	var opts []option
	for _, step := range base.Steps {
		vars := pl.catalog.DiscoveredVariations(step.RecipeID)
		if len(vars) == 0 {
			continue
		}
		cap := pl.cfg.MaxVariationsPerRecipe
		if cap > 0 && len(vars) > cap {
			vars = vars[:cap]
		}
		opts = append(opts, option{recipe: step.RecipeID, vars: vars})
	}
	if len(opts) == 0 {
		return base, nil
	}

	best := base
	choices := make(map[string]*Variation)
	var walk func(i int)
	walk = func(i int) {
		if i == len(opts) {
			p := pl.resolve(targetRecipe, quantity, inv, accountInventory, choices)
			if p.Feasible && (!best.Feasible || p.NetProfit() > best.NetProfit()) {
				best = p
			}
			return
		}
		o := opts[i]
		walk(i + 1) // base form
		for _, v := range o.vars {
			choices[o.recipe] = v
			walk(i + 1)
		}
		delete(choices, o.recipe)
	}
	walk(0)
	return best, nil
}

// Invalidate clears the cache. Called when recipes unlock or facilities
// change.
func (pl *Planner) Invalidate() {
	pl.cache = make(map[string]*Plan)
	pl.cacheOrder = nil
}

func (pl *Planner) cacheKey(target string, qty int64, inv inventory.Provider, account bool) string {
	h := "-"
	if account && inv != nil {
		h = inventory.Hash(inv)
	}
	return fmt.Sprintf("%s|%d|%s", target, qty, h)
}

func (pl *Planner) touch(key string) {
	for i, k := range pl.cacheOrder {
		if k == key {
			pl.cacheOrder = append(pl.cacheOrder[:i], pl.cacheOrder[i+1:]...)
			break
		}
	}
	pl.cacheOrder = append(pl.cacheOrder, key)
}

func (pl *Planner) store(key string, p *Plan) {
	max := pl.cfg.MaxPlanCacheSize
	if max < 1 {
		max = 1
	}
	for len(pl.cache) >= max && len(pl.cacheOrder) > 0 {
		oldest := pl.cacheOrder[0]
		pl.cacheOrder = pl.cacheOrder[1:]
		delete(pl.cache, oldest)
	}
	pl.cache[key] = p
	pl.cacheOrder = append(pl.cacheOrder, key)
}

type resolveState struct {
	plan    *Plan
	onHand  map[resource.Type]int64
	visited map[string]bool
	choices map[string]*Variation
}

func (pl *Planner) resolve(target string, quantity int64, inv inventory.Provider, account bool, choices map[string]*Variation) *Plan {
	st := &resolveState{
		plan: &Plan{
			TargetRecipe: target,
			Quantity:     quantity,
			RawTotals:    make(map[resource.Type]int64),
			Feasible:     true,
		},
		visited: make(map[string]bool),
		choices: choices,
	}
	if account && inv != nil {
		st.onHand = inv.Snapshot()
		st.plan.FromInventory = make(map[resource.Type]int64)
	}

	r, _ := pl.catalog.Recipe(target)
	runs := ceilDiv(quantity, r.PrimaryOutputCount())
	pl.expand(st, target, runs, 0)

	pl.cost(st.plan)
	return st.plan
}

// expand appends the step for runs of a recipe after recursing into its
// craftable inputs.
func (pl *Planner) expand(st *resolveState, recipeID string, runs int64, depth int) {
	p := st.plan
	if depth >= pl.cfg.MaxChainDepth {
		p.Feasible = false
		p.Blocking = append(p.Blocking, BlockingReason{
			Kind:   "depth_overflow",
			Detail: fmt.Sprintf("chain exceeds max depth %d at %s", pl.cfg.MaxChainDepth, recipeID),
		})
		return
	}
	if st.visited[recipeID] {
		return
	}
	st.visited[recipeID] = true
	defer delete(st.visited, recipeID)

	r, err := pl.catalog.Recipe(recipeID)
	if err != nil {
		p.Feasible = false
		p.Blocking = append(p.Blocking, BlockingReason{Kind: "locked_recipe", Detail: err.Error()})
		return
	}

	pl.checkFeasibility(p, r)

	inputs := r.PrimaryInputs
	timeMult := 1.0
	variationID := ""
	if v := st.choices[recipeID]; v != nil {
		inputs = v.InputSet
		timeMult = v.TimeMult
		variationID = v.ID
	}

	for _, in := range inputs {
		need := in.Quantity * runs
		if st.onHand != nil {
			if have := st.onHand[in.Resource]; have > 0 {
				used := have
				if used > need {
					used = need
				}
				st.onHand[in.Resource] -= used
				st.plan.FromInventory[in.Resource] += used
				need -= used
			}
		}
		if need == 0 {
			continue
		}
		if pl.catalog.IsRaw(in.Resource) {
			p.RawTotals[in.Resource] += need
			continue
		}
		producers := pl.catalog.Producers(in.Resource)
		child, perr := pl.catalog.Recipe(producers[0])
		if perr != nil {
			p.RawTotals[in.Resource] += need
			continue
		}
		childRuns := ceilDiv(need, child.PrimaryOutputCount())
		pl.expand(st, child.ID, childRuns, depth+1)
	}

	speed := pl.bestSpeed(r)
	p.Steps = append(p.Steps, PlanStep{
		RecipeID:    recipeID,
		VariationID: variationID,
		Runs:        runs,
		Output:      runs * r.PrimaryOutputCount(),
		Depth:       depth,
	})
	p.TimeEstimateS += r.BaseTimeS * timeMult * float64(runs) / speed
	p.EnergyEstimate += r.EnergyCost * float64(runs)
}

func (pl *Planner) checkFeasibility(p *Plan, r *Recipe) {
	if !pl.catalog.Unlocked(r.ID) && !pl.skills.ExclusiveRecipeUnlocked(r.ID) {
		p.Feasible = false
		p.Blocking = append(p.Blocking, BlockingReason{
			Kind:   "locked_recipe",
			Detail: fmt.Sprintf("recipe %s is locked", r.ID),
		})
	}
	if !pl.skills.MeetsRequirements(r.RequiredSkills) {
		p.Feasible = false
		p.Blocking = append(p.Blocking, BlockingReason{
			Kind:   "skill_requirement",
			Detail: fmt.Sprintf("skill requirements for %s not met", r.ID),
		})
	}
	if !pl.anyFacility(r) {
		p.Feasible = false
		p.Blocking = append(p.Blocking, BlockingReason{
			Kind:   "missing_facility",
			Detail: fmt.Sprintf("no facility of tier %d accepts %s", r.Tier, r.Category),
		})
	}
}

// anyFacility reports a registered facility that could ever run the
// recipe, regardless of current load.
func (pl *Planner) anyFacility(r *Recipe) bool {
	for _, id := range pl.facilities.IDs() {
		f, _ := pl.facilities.Facility(id)
		if f.Accepts(r.Category) && f.Tier >= r.Tier {
			return true
		}
	}
	return false
}

// bestSpeed is the highest speed multiplier among facilities able to run
// the recipe; 1 when none exists.
func (pl *Planner) bestSpeed(r *Recipe) float64 {
	best := 0.0
	for _, id := range pl.facilities.IDs() {
		f, _ := pl.facilities.Facility(id)
		if f.Accepts(r.Category) && f.Tier >= r.Tier && f.SpeedMult > best {
			best = f.SpeedMult
		}
	}
	if best <= 0 {
		return 1
	}
	return best * (1 + pl.skills.SpeedBonus(r.Category))
}

// cost fills material cost and expected output value from current quotes.
func (pl *Planner) cost(p *Plan) {
	if pl.prices == nil {
		return
	}
	raws := make([]resource.Type, 0, len(p.RawTotals))
	for r := range p.RawTotals {
		raws = append(raws, r)
	}
	sort.Slice(raws, func(i, j int) bool { return raws[i] < raws[j] })
	for _, r := range raws {
		if unit, ok := pl.prices.BuyPrice(r); ok {
			p.MaterialCost += unit * p.RawTotals[r]
		}
	}

	target, err := pl.catalog.Recipe(p.TargetRecipe)
	if err != nil {
		return
	}
	expectedMult := resource.ValueMultipliers[resource.QualityStandard]
	for _, out := range target.PrimaryOutputs {
		if unit, ok := pl.prices.SellPrice(out.Resource); ok {
			v := float64(unit*out.Quantity*p.Quantity) * expectedMult
			p.ExpectedValue += int64(math.Floor(v))
		}
	}
}

func ceilDiv(a, b int64) int64 {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}
