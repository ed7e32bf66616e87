package crafting

import (
	"sort"

	"github.com/astralforge/starhold/internal/simerr"
)

// FacilityState tracks whether a facility accepts work.
type FacilityState string

const (
	FacilityOnline      FacilityState = "online"
	FacilityOffline     FacilityState = "offline"
	FacilityMaintenance FacilityState = "maintenance"
)

// Facility is a crafting station with limited job slots.
type Facility struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	State        FacilityState `json:"state"`
	Tier         int           `json:"tier"`
	Level        int           `json:"level"`
	Slots        int           `json:"slots"`
	SpeedMult    float64       `json:"speed_mult"`
	QualityBonus float64       `json:"quality_bonus"`
	EnergyMult   float64       `json:"energy_mult"`
	// Categories limits which recipe categories the facility accepts.
	// Empty means any.
	Categories []string `json:"categories,omitempty"`

	activeJobs int
}

// Accepts reports whether the facility can run recipes of a category.
func (f *Facility) Accepts(category string) bool {
	if len(f.Categories) == 0 {
		return true
	}
	for _, c := range f.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// HasCapacity reports at least one free slot on an online facility.
func (f *Facility) HasCapacity() bool {
	return f.State == FacilityOnline && f.activeJobs < f.Slots
}

// ActiveJobs returns the occupied slot count.
func (f *Facility) ActiveJobs() int { return f.activeJobs }

// FacilityRegistry owns facilities and picks stations for jobs.
type FacilityRegistry struct {
	facilities map[string]*Facility
}

// NewFacilityRegistry creates an empty registry.
func NewFacilityRegistry() *FacilityRegistry {
	return &FacilityRegistry{facilities: make(map[string]*Facility)}
}

// Register adds a facility, defaulting multipliers to 1.
func (fr *FacilityRegistry) Register(f Facility) error {
	if f.ID == "" {
		return simerr.Validationf("facility missing id")
	}
	if f.Slots < 1 {
		f.Slots = 1
	}
	if f.SpeedMult <= 0 {
		f.SpeedMult = 1
	}
	if f.EnergyMult <= 0 {
		f.EnergyMult = 1
	}
	if f.State == "" {
		f.State = FacilityOnline
	}
	fr.facilities[f.ID] = &f
	return nil
}

// Facility returns a station by id.
func (fr *FacilityRegistry) Facility(id string) (*Facility, error) {
	f, ok := fr.facilities[id]
	if !ok {
		return nil, simerr.NotFound("facility", id)
	}
	return f, nil
}

// IDs returns all facility ids, sorted.
func (fr *FacilityRegistry) IDs() []string {
	ids := make([]string, 0, len(fr.facilities))
	for id := range fr.facilities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SetState transitions a facility. Jobs running on a facility taken
// offline are handled by the crafting manager.
func (fr *FacilityRegistry) SetState(id string, state FacilityState) error {
	f, err := fr.Facility(id)
	if err != nil {
		return err
	}
	f.State = state
	return nil
}

// Best selects the facility with the highest quality_bonus + 0.1*speed_mult
// score among online stations of sufficient tier with free capacity that
// accept the recipe category. Ties break on lowest id.
func (fr *FacilityRegistry) Best(category string, minTier int) (*Facility, error) {
	var best *Facility
	bestScore := 0.0
	for _, id := range fr.IDs() {
		f := fr.facilities[id]
		if !f.HasCapacity() || !f.Accepts(category) || f.Tier < minTier {
			continue
		}
		score := f.QualityBonus + 0.1*f.SpeedMult
		if best == nil || score > bestScore {
			best = f
			bestScore = score
		}
	}
	if best == nil {
		return nil, simerr.Unavailablef("no facility available for %q", category)
	}
	return best, nil
}

func (fr *FacilityRegistry) acquire(f *Facility) { f.activeJobs++ }

func (fr *FacilityRegistry) release(f *Facility) {
	if f.activeJobs > 0 {
		f.activeJobs--
	}
}

// OfflineFacilities returns ids of facilities not currently accepting work.
func (fr *FacilityRegistry) OfflineFacilities() []string {
	var out []string
	for _, id := range fr.IDs() {
		if fr.facilities[id].State != FacilityOnline {
			out = append(out, id)
		}
	}
	return out
}
