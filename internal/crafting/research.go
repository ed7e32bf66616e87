package crafting

import (
	"log/slog"
	"sort"

	"github.com/astralforge/starhold/internal/bus"
	"github.com/astralforge/starhold/internal/config"
	"github.com/astralforge/starhold/internal/simerr"
)

// ResearchProject is one blueprint under study. Completion unlocks its
// declared recipes atomically.
type ResearchProject struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	RequiredTimeS  float64         `json:"required_time_s"`
	Progress       float64         `json:"progress"` // accumulated seconds
	UnlocksRecipes []string        `json:"unlocks_recipes"`
	RequiredSkills map[SkillID]int `json:"required_skills,omitempty"`
	SkillCategory  string          `json:"skill_category,omitempty"`
	Active         bool            `json:"active"`
	Completed      bool            `json:"completed"`
}

// Fraction reports completion in [0,1].
func (p *ResearchProject) Fraction() float64 {
	if p.RequiredTimeS <= 0 {
		return 1
	}
	f := p.Progress / p.RequiredTimeS
	if f > 1 {
		return 1
	}
	return f
}

// ResearchSystem advances concurrent blueprint projects.
type ResearchSystem struct {
	cfg      *config.CraftingConfig
	catalog  *Catalog
	skills   *SkillSystem
	bus      *bus.Bus
	projects map[string]*ResearchProject
}

func newResearchSystem(cfg *config.CraftingConfig, cat *Catalog, ss *SkillSystem, b *bus.Bus) *ResearchSystem {
	return &ResearchSystem{
		cfg:      cfg,
		catalog:  cat,
		skills:   ss,
		bus:      b,
		projects: make(map[string]*ResearchProject),
	}
}

// Define registers a project without starting it.
func (rs *ResearchSystem) Define(p ResearchProject) error {
	if p.ID == "" {
		return simerr.Validationf("research project missing id")
	}
	if p.RequiredTimeS <= 0 {
		return simerr.Validationf("research %s required time %v", p.ID, p.RequiredTimeS)
	}
	for _, rid := range p.UnlocksRecipes {
		if _, err := rs.catalog.Recipe(rid); err != nil {
			return err
		}
	}
	pc := p
	rs.projects[p.ID] = &pc
	return nil
}

// Project returns a project by id.
func (rs *ResearchSystem) Project(id string) (*ResearchProject, error) {
	p, ok := rs.projects[id]
	if !ok {
		return nil, simerr.NotFound("research project", id)
	}
	return p, nil
}

// Projects returns all project ids, sorted.
func (rs *ResearchSystem) Projects() []string {
	ids := make([]string, 0, len(rs.projects))
	for id := range rs.projects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (rs *ResearchSystem) activeCount() int {
	n := 0
	for _, p := range rs.projects {
		if p.Active && !p.Completed {
			n++
		}
	}
	return n
}

// Start activates a project, bounded by max_concurrent_research.
func (rs *ResearchSystem) Start(id string) error {
	p, err := rs.Project(id)
	if err != nil {
		return err
	}
	if p.Completed {
		return simerr.Validationf("research %s already completed", id)
	}
	if p.Active {
		return nil
	}
	if !rs.skills.MeetsRequirements(p.RequiredSkills) {
		return simerr.Unavailablef("skill requirements for research %s not met", id)
	}
	if rs.activeCount() >= rs.cfg.MaxConcurrentResearch {
		return simerr.Capacityf("research slots full (%d)", rs.cfg.MaxConcurrentResearch)
	}
	p.Active = true
	return nil
}

// Cancel halts a project, keeping accumulated progress.
func (rs *ResearchSystem) Cancel(id string) error {
	p, err := rs.Project(id)
	if err != nil {
		return err
	}
	p.Active = false
	return nil
}

func (rs *ResearchSystem) advance(tick uint64, dt float64) {
	for _, id := range rs.Projects() {
		p := rs.projects[id]
		if !p.Active || p.Completed {
			continue
		}
		bonus := 1 + rs.skills.SpeedBonus(p.SkillCategory)
		if bonus < 0.1 {
			bonus = 0.1
		}
		p.Progress += dt * rs.cfg.ResearchSpeedMultiplier * bonus
		if p.Progress >= p.RequiredTimeS {
			rs.complete(tick, p)
		}
	}
}

// complete unlocks every declared recipe; the unlock set applies as a
// whole or not at all.
func (rs *ResearchSystem) complete(tick uint64, p *ResearchProject) {
	for _, rid := range p.UnlocksRecipes {
		if _, err := rs.catalog.Recipe(rid); err != nil {
			slog.Error("research unlock target missing", "project", p.ID, "recipe", rid)
			p.Active = false
			return
		}
	}
	for _, rid := range p.UnlocksRecipes {
		rs.catalog.ForceUnlock(rid)
	}
	p.Progress = p.RequiredTimeS
	p.Completed = true
	p.Active = false
	rs.bus.Publish(tick, bus.KindResearchComplete, map[string]any{
		"project": p.ID,
		"recipes": p.UnlocksRecipes,
	})
	slog.Info("research complete", "project", p.ID, "recipes", len(p.UnlocksRecipes))
}

// Restore reinstates a snapshot project.
func (rs *ResearchSystem) Restore(p ResearchProject) {
	pc := p
	rs.projects[p.ID] = &pc
}
