// Crafting manager: the job queue. Enqueues jobs against facilities,
// consumes ingredients atomically, advances progress on a fixed cadence,
// and rolls one quality result per produced unit.
package crafting

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/astralforge/starhold/internal/bus"
	"github.com/astralforge/starhold/internal/config"
	"github.com/astralforge/starhold/internal/entropy"
	"github.com/astralforge/starhold/internal/inventory"
	"github.com/astralforge/starhold/internal/resource"
	"github.com/astralforge/starhold/internal/simerr"
)

// JobState is the lifecycle state of a queued job.
type JobState string

const (
	JobIdle      JobState = "idle"
	JobCrafting  JobState = "crafting"
	JobPaused    JobState = "paused"
	JobCompleted JobState = "completed"
	JobCancelled JobState = "cancelled"
	JobFailed    JobState = "failed"
)

// ProducedItem is one output unit with its rolled quality.
type ProducedItem struct {
	Resource resource.Type    `json:"resource"`
	Quantity int64            `json:"quantity"`
	Quality  resource.Quality `json:"quality"`
	Critical bool             `json:"critical"`
}

// Job is one queued crafting order.
type Job struct {
	ID                string         `json:"id"`
	RecipeID          string         `json:"recipe_id"`
	Quantity          int64          `json:"quantity"`
	CompletedQuantity int64          `json:"completed_quantity"`
	TotalTimeS        float64        `json:"total_time_s"`
	RemainingTimeS    float64        `json:"remaining_time_s"`
	State             JobState       `json:"state"`
	FacilityID        string         `json:"facility_id"`
	Priority          int            `json:"priority"`
	Produced          []ProducedItem `json:"produced"`

	// Consumed is what StartJob actually removed from the inventory,
	// kept for cancellation refunds.
	Consumed []Stack `json:"consumed"`

	enqueueSeq   uint64
	perUnitTimeS float64
	unitAccumS   float64
	autoPaused   bool
}

// Progress reports overall completion in [0,1].
func (j *Job) Progress() float64 {
	if j.TotalTimeS <= 0 {
		return 1
	}
	done := float64(j.CompletedQuantity)*j.perUnitTimeS + j.unitAccumS
	p := done / j.TotalTimeS
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// Statistics accumulates crafting totals for the snapshot and host surface.
type Statistics struct {
	JobsStarted   int64                      `json:"jobs_started"`
	JobsCompleted int64                      `json:"jobs_completed"`
	JobsCancelled int64                      `json:"jobs_cancelled"`
	ItemsCrafted  int64                      `json:"items_crafted"`
	CriticalCrafts int64                     `json:"critical_crafts"`
	QualityCounts map[resource.Quality]int64 `json:"quality_counts"`
}

// Manager owns recipes, facilities, and the job queue.
type Manager struct {
	cfg        *config.CraftingConfig
	catalog    *Catalog
	facilities *FacilityRegistry
	skills     *SkillSystem
	inv        inventory.Provider
	bus        *bus.Bus
	rng        *entropy.Stream

	jobs  map[string]*Job
	seq   uint64
	accum float64
	tick  uint64
	stats Statistics

	research *ResearchSystem
}

// NewManager wires the crafting subsystem together.
func NewManager(cfg *config.CraftingConfig, cat *Catalog, fr *FacilityRegistry, ss *SkillSystem, inv inventory.Provider, b *bus.Bus, rng *entropy.Stream) *Manager {
	m := &Manager{
		cfg:        cfg,
		catalog:    cat,
		facilities: fr,
		skills:     ss,
		inv:        inv,
		bus:        b,
		rng:        rng,
		jobs:       make(map[string]*Job),
		stats:      Statistics{QualityCounts: make(map[resource.Quality]int64)},
	}
	m.research = newResearchSystem(cfg, cat, ss, b)
	return m
}

// Catalog exposes the recipe catalog.
func (m *Manager) Catalog() *Catalog { return m.catalog }

// Facilities exposes the facility registry.
func (m *Manager) Facilities() *FacilityRegistry { return m.facilities }

// Skills exposes the skill system.
func (m *Manager) Skills() *SkillSystem { return m.skills }

// Research exposes blueprint research.
func (m *Manager) Research() *ResearchSystem { return m.research }

// Stats returns accumulated totals.
func (m *Manager) Stats() Statistics { return m.stats }

// Job returns a job by id.
func (m *Manager) Job(id string) (*Job, error) {
	j, ok := m.jobs[id]
	if !ok {
		return nil, simerr.NotFound("job", id)
	}
	return j, nil
}

// Jobs returns all job ids, sorted.
func (m *Manager) Jobs() []string {
	ids := make([]string, 0, len(m.jobs))
	for id := range m.jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *Manager) activeCount() int {
	n := 0
	for _, j := range m.jobs {
		if j.State == JobCrafting || j.State == JobPaused {
			n++
		}
	}
	return n
}

// resolveInputs picks the ingredient set for one unit: the primary set if
// the inventory covers quantity units of it, otherwise the first declared
// alternative set that does. Optional inputs join only when fully present.
// Material efficiency reduces each total, never below 1 per ingredient.
func (m *Manager) resolveInputs(r *Recipe, quantity int64) ([]Stack, error) {
	sets := append([][]Stack{r.PrimaryInputs}, r.AlternativeInputSets...)
	eff := m.skills.MaterialEfficiency(r.Category)

	scale := func(set []Stack) []Stack {
		out := make([]Stack, 0, len(set))
		for _, s := range set {
			total := s.Quantity * quantity
			reduced := int64(math.Floor(float64(total) * (1 - eff)))
			if reduced < 1 {
				reduced = 1
			}
			out = append(out, Stack{Resource: s.Resource, Quantity: reduced})
		}
		return out
	}

	for _, set := range sets {
		need := scale(set)
		ok := true
		for _, s := range need {
			if !m.inv.Has(s.Resource, s.Quantity) {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		for _, opt := range scale(r.OptionalInputs) {
			if m.inv.Has(opt.Resource, opt.Quantity) {
				need = append(need, opt)
			}
		}
		return need, nil
	}
	return nil, simerr.Insufficientf("ingredients for recipe %s x%d", r.ID, quantity)
}

// consume removes a resolved ingredient set all-or-nothing.
func (m *Manager) consume(need []Stack) error {
	removed := make([]Stack, 0, len(need))
	for _, s := range need {
		if !m.inv.Remove(s.Resource, s.Quantity) {
			for _, r := range removed {
				m.inv.Add(r.Resource, r.Quantity)
			}
			return simerr.Insufficientf("%d %s", s.Quantity, s.Resource)
		}
		removed = append(removed, s)
	}
	return nil
}

// validate runs the shared StartJob and InstantCraft checks and returns
// the recipe with its resolved ingredient set. Nothing is consumed.
func (m *Manager) validate(recipeID string, quantity int64) (*Recipe, []Stack, error) {
	if quantity < 1 {
		return nil, nil, simerr.Validationf("quantity %d", quantity)
	}
	r, err := m.catalog.Recipe(recipeID)
	if err != nil {
		return nil, nil, err
	}
	if !m.catalog.Unlocked(recipeID) && !m.skills.ExclusiveRecipeUnlocked(recipeID) {
		return nil, nil, simerr.Unavailablef("recipe %s is locked", recipeID)
	}
	if !m.skills.MeetsRequirements(r.RequiredSkills) {
		return nil, nil, simerr.Unavailablef("skill requirements for %s not met", recipeID)
	}
	need, err := m.resolveInputs(r, quantity)
	if err != nil {
		return nil, nil, err
	}
	return r, need, nil
}

// StartJob validates, consumes ingredients atomically, and enqueues a
// job in state Crafting.
func (m *Manager) StartJob(recipeID string, quantity int64, facilityID string, priority int) (string, error) {
	r, need, err := m.validate(recipeID, quantity)
	if err != nil {
		return "", err
	}
	if m.activeCount() >= m.cfg.MaxGlobalConcurrentJobs {
		return "", simerr.Capacityf("job queue full (%d active)", m.activeCount())
	}

	var fac *Facility
	if facilityID != "" {
		fac, err = m.facilities.Facility(facilityID)
		if err != nil {
			return "", err
		}
		switch {
		case fac.State != FacilityOnline:
			return "", simerr.Unavailablef("facility %s is %s", facilityID, fac.State)
		case !fac.Accepts(r.Category):
			return "", simerr.Validationf("facility %s does not accept %s", facilityID, r.Category)
		case fac.Tier < r.Tier:
			return "", simerr.Validationf("facility %s tier %d below recipe tier %d", facilityID, fac.Tier, r.Tier)
		case !fac.HasCapacity():
			return "", simerr.Capacityf("facility %s has no free slots", facilityID)
		}
	} else {
		fac, err = m.facilities.Best(r.Category, r.Tier)
		if err != nil {
			return "", err
		}
	}

	if err := m.consume(need); err != nil {
		return "", err
	}

	speed := fac.SpeedMult * (1 + m.skills.SpeedBonus(r.Category))
	if speed <= 0 {
		speed = 0.1
	}
	total := r.BaseTimeS * float64(quantity) / speed

	m.seq++
	j := &Job{
		ID:             fmt.Sprintf("job-%06d", m.seq),
		RecipeID:       recipeID,
		Quantity:       quantity,
		TotalTimeS:     total,
		RemainingTimeS: total,
		State:          JobCrafting,
		FacilityID:     fac.ID,
		Priority:       priority,
		Consumed:       need,
		enqueueSeq:     m.seq,
		perUnitTimeS:   total / float64(quantity),
	}
	m.jobs[j.ID] = j
	m.facilities.acquire(fac)
	m.stats.JobsStarted++

	slog.Debug("job started",
		"job", j.ID, "recipe", recipeID, "qty", quantity,
		"facility", fac.ID, "total_s", total)
	return j.ID, nil
}

// CancelJob stops a Crafting or Paused job. With refundMaterials, each
// consumed ingredient is refunded at floor((1-progress) * quantity).
func (m *Manager) CancelJob(id string, refundMaterials bool) (bool, error) {
	j, err := m.Job(id)
	if err != nil {
		return false, err
	}
	if j.State != JobCrafting && j.State != JobPaused {
		return false, nil
	}
	p := j.Progress()
	if refundMaterials {
		for _, s := range j.Consumed {
			back := int64(math.Floor((1 - p) * float64(s.Quantity)))
			if back > 0 {
				m.inv.Add(s.Resource, back)
			}
		}
	}
	j.State = JobCancelled
	m.releaseFacility(j)
	m.stats.JobsCancelled++
	return true, nil
}

// PauseJob suspends a Crafting job with progress preserved.
func (m *Manager) PauseJob(id string) error {
	j, err := m.Job(id)
	if err != nil {
		return err
	}
	if j.State != JobCrafting {
		return simerr.Validationf("job %s is %s, not crafting", id, j.State)
	}
	j.State = JobPaused
	j.autoPaused = false
	return nil
}

// ResumeJob returns a Paused job to Crafting if its facility is online.
func (m *Manager) ResumeJob(id string) error {
	j, err := m.Job(id)
	if err != nil {
		return err
	}
	if j.State != JobPaused {
		return simerr.Validationf("job %s is %s, not paused", id, j.State)
	}
	f, err := m.facilities.Facility(j.FacilityID)
	if err != nil {
		return err
	}
	if f.State != FacilityOnline {
		return simerr.Unavailablef("facility %s is %s", f.ID, f.State)
	}
	j.State = JobCrafting
	j.autoPaused = false
	return nil
}

// InstantCraft validates and consumes identically to StartJob, then
// applies all outputs immediately.
func (m *Manager) InstantCraft(recipeID string, quantity int64) ([]ProducedItem, error) {
	r, need, err := m.validate(recipeID, quantity)
	if err != nil {
		return nil, err
	}
	if err := m.consume(need); err != nil {
		return nil, err
	}
	var out []ProducedItem
	for i := int64(0); i < quantity; i++ {
		out = append(out, m.produceUnit(r, "")...)
	}
	return out, nil
}

func (m *Manager) releaseFacility(j *Job) {
	if f, err := m.facilities.Facility(j.FacilityID); err == nil {
		m.facilities.release(f)
	}
}

// produceUnit rolls quality for one unit, applies outputs to the
// inventory, grants XP, and publishes events.
func (m *Manager) produceUnit(r *Recipe, jobID string) []ProducedItem {
	mods := []QualityModifier{
		{Source: ModSkill, Additive: m.skills.QualityAdditive(r.Category)},
	}
	if f, err := m.facilities.Facility(m.jobFacility(jobID)); err == nil {
		mods = append(mods, QualityModifier{Source: ModFacility, Additive: f.QualityBonus})
	}
	if mult := m.skills.QualityMultiplier(r.Category); mult != 1 {
		mods = append(mods, QualityModifier{Source: ModSkill, Multiplicative: mult})
	}
	q := RollQuality(m.cfg, r.BaseQualityChance, mods, m.cfg.BaseCriticalChance, m.rng)

	var produced []ProducedItem
	for _, out := range r.PrimaryOutputs {
		m.inv.Add(out.Resource, out.Quantity)
		produced = append(produced, ProducedItem{
			Resource: out.Resource, Quantity: out.Quantity,
			Quality: q.Tier, Critical: q.Critical,
		})
		m.bus.Publish(m.tick, bus.KindItemCrafted, bus.ItemCraftedPayload{
			JobID: jobID, RecipeID: r.ID,
			Resource: out.Resource.String(), Quantity: out.Quantity,
			Quality: q.Tier.String(), Critical: q.Critical,
		})
	}
	if len(r.BonusOutputs) > 0 && m.rng.Chance(r.BonusChance) {
		for _, out := range r.BonusOutputs {
			m.inv.Add(out.Resource, out.Quantity)
			produced = append(produced, ProducedItem{
				Resource: out.Resource, Quantity: out.Quantity, Quality: q.Tier,
			})
		}
	}

	for id, xp := range r.SkillXPRewards {
		if err := m.skills.GrantXP(id, xp*resource.XPMultipliers[q.Tier]); err != nil {
			slog.Warn("xp grant failed", "skill", id, "err", err)
		}
	}

	m.stats.ItemsCrafted++
	m.stats.QualityCounts[q.Tier]++
	if q.Critical {
		m.stats.CriticalCrafts++
	}
	return produced
}

func (m *Manager) jobFacility(jobID string) string {
	if j, ok := m.jobs[jobID]; ok {
		return j.FacilityID
	}
	return ""
}

// Advance runs the queue on the job update cadence.
func (m *Manager) Advance(tick uint64, dt float64) {
	m.tick = tick
	m.skills.SetTick(tick)
	m.accum += dt
	step := m.cfg.JobUpdateFrequencyS
	if step <= 0 {
		step = 0.1
	}
	for m.accum >= step {
		m.accum -= step
		m.step(step)
	}
	m.research.advance(tick, dt)
}

func (m *Manager) step(dt float64) {
	m.syncFacilityState()

	active := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j.State == JobCrafting {
			active = append(active, j)
		}
	}
	sort.SliceStable(active, func(i, k int) bool {
		if active[i].Priority != active[k].Priority {
			return active[i].Priority > active[k].Priority
		}
		return active[i].enqueueSeq < active[k].enqueueSeq
	})

	batch := m.cfg.JobBatchSize
	if batch < 1 {
		batch = 1
	}
	if len(active) < batch {
		batch = len(active)
	}
	for _, j := range active[:batch] {
		m.advanceJob(j, dt)
	}
}

// syncFacilityState pauses jobs whose facility went offline and resumes
// ones it paused once the facility is back.
func (m *Manager) syncFacilityState() {
	for _, id := range m.Jobs() {
		j := m.jobs[id]
		f, err := m.facilities.Facility(j.FacilityID)
		if err != nil {
			continue
		}
		switch {
		case j.State == JobCrafting && f.State != FacilityOnline:
			j.State = JobPaused
			j.autoPaused = true
			slog.Info("job paused, facility offline", "job", j.ID, "facility", f.ID)
		case j.State == JobPaused && j.autoPaused && f.State == FacilityOnline:
			j.State = JobCrafting
			j.autoPaused = false
		}
	}
}

func (m *Manager) advanceJob(j *Job, dt float64) {
	r, err := m.catalog.Recipe(j.RecipeID)
	if err != nil {
		j.State = JobFailed
		m.releaseFacility(j)
		slog.Error("job lost its recipe", "job", j.ID, "recipe", j.RecipeID)
		return
	}

	j.RemainingTimeS -= dt
	if j.RemainingTimeS < 0 {
		j.RemainingTimeS = 0
	}
	j.unitAccumS += dt

	for j.unitAccumS >= j.perUnitTimeS && j.CompletedQuantity < j.Quantity {
		j.unitAccumS -= j.perUnitTimeS
		j.Produced = append(j.Produced, m.produceUnit(r, j.ID)...)
		j.CompletedQuantity++
	}

	if j.CompletedQuantity >= j.Quantity {
		j.State = JobCompleted
		m.releaseFacility(j)
		m.stats.JobsCompleted++
		m.bus.Publish(m.tick, bus.KindJobCompleted, bus.JobPayload{
			JobID: j.ID, RecipeID: j.RecipeID,
			Completed: j.CompletedQuantity, Quantity: j.Quantity,
		})
		m.publishSignal(j, r)
		delete(m.jobs, j.ID)
	}
}

// publishSignal emits the outward crafting signal with consumed and
// produced totals for external listeners (economy demand coupling).
func (m *Manager) publishSignal(j *Job, r *Recipe) {
	consumed := make(map[string]int64)
	for _, s := range j.Consumed {
		consumed[s.Resource.String()] += s.Quantity
	}
	produced := make(map[string]int64)
	top := resource.QualityScrap
	for _, p := range j.Produced {
		produced[p.Resource.String()] += p.Quantity
		if p.Quality > top {
			top = p.Quality
		}
	}
	xp := make(map[string]float64)
	for id, base := range r.SkillXPRewards {
		xp[string(id)] = base
	}
	m.bus.Publish(m.tick, bus.KindCraftingSignal, bus.CraftingSignalPayload{
		Consumed: consumed, Produced: produced,
		Quality: top.String(), SkillsXP: xp,
	})
}

// CheckInvariants verifies job-queue bounds at a tick boundary.
func (m *Manager) CheckInvariants() error {
	for _, id := range m.Jobs() {
		j := m.jobs[id]
		if j.CompletedQuantity < 0 || j.CompletedQuantity > j.Quantity {
			return simerr.Corruptedf("job %s completed %d of %d", id, j.CompletedQuantity, j.Quantity)
		}
		if p := j.Progress(); p < 0 || p > 1 {
			return simerr.Corruptedf("job %s progress %v", id, p)
		}
	}
	return nil
}

// RestoreJob reinstates a snapshot job, reacquiring its facility slot for
// active states.
func (m *Manager) RestoreJob(j Job) error {
	if _, err := m.catalog.Recipe(j.RecipeID); err != nil {
		return err
	}
	if j.Quantity > 0 {
		j.perUnitTimeS = j.TotalTimeS / float64(j.Quantity)
	}
	// Partial progress on the current unit comes back from the elapsed
	// time the snapshot kept.
	elapsed := j.TotalTimeS - j.RemainingTimeS
	j.unitAccumS = elapsed - float64(j.CompletedQuantity)*j.perUnitTimeS
	if j.unitAccumS < 0 {
		j.unitAccumS = 0
	}
	jc := j
	m.jobs[j.ID] = &jc
	if jc.enqueueSeq == 0 {
		m.seq++
		jc.enqueueSeq = m.seq
	}
	if jc.State == JobCrafting || jc.State == JobPaused {
		if f, err := m.facilities.Facility(jc.FacilityID); err == nil {
			m.facilities.acquire(f)
		}
	}
	return nil
}

// Seq exposes the job id counter for snapshots.
func (m *Manager) Seq() uint64 { return m.seq }

// SetSeq restores the job id counter.
func (m *Manager) SetSeq(seq uint64) { m.seq = seq }

// SetStats restores accumulated totals from a snapshot.
func (m *Manager) SetStats(s Statistics) {
	if s.QualityCounts == nil {
		s.QualityCounts = make(map[resource.Quality]int64)
	}
	m.stats = s
}
