package crafting

import (
	"errors"
	"testing"

	"github.com/astralforge/starhold/internal/simerr"
)

func defaultFacilities(t *testing.T) *FacilityRegistry {
	t.Helper()
	fr := NewFacilityRegistry()
	for _, f := range DefaultFacilities() {
		if err := fr.Register(f); err != nil {
			t.Fatal(err)
		}
	}
	return fr
}

func TestFacilityRegister_Defaults(t *testing.T) {
	fr := NewFacilityRegistry()
	if err := fr.Register(Facility{}); !errors.Is(err, simerr.ErrValidationFailure) {
		t.Errorf("missing id = %v", err)
	}
	if err := fr.Register(Facility{ID: "bare"}); err != nil {
		t.Fatal(err)
	}
	f, _ := fr.Facility("bare")
	if f.Slots != 1 || f.SpeedMult != 1 || f.EnergyMult != 1 || f.State != FacilityOnline {
		t.Errorf("defaults = %+v", f)
	}
	if !f.Accepts(CategoryEngineering) {
		t.Error("no declared categories should accept anything")
	}
}

func TestBest_ScoresQualityOverSpeed(t *testing.T) {
	fr := defaultFacilities(t)

	// Refining: the foundry's quality bonus beats the refinery.
	f, err := fr.Best(CategoryRefining, 1)
	if err != nil {
		t.Fatal(err)
	}
	if f.ID != "orbital_foundry" {
		t.Errorf("best refining = %s", f.ID)
	}

	// Fabrication at tier 3: only the lab qualifies.
	f, err = fr.Best(CategoryFabrication, 3)
	if err != nil {
		t.Fatal(err)
	}
	if f.ID != "precision_lab" {
		t.Errorf("best tier-3 fabrication = %s", f.ID)
	}

	if _, err := fr.Best(CategoryEngineering, 4); !errors.Is(err, simerr.ErrUnavailable) {
		t.Errorf("impossible tier = %v", err)
	}
}

func TestBest_SkipsFullAndOfflineStations(t *testing.T) {
	fr := defaultFacilities(t)

	foundry, _ := fr.Facility("orbital_foundry")
	fr.acquire(foundry)
	fr.acquire(foundry)
	f, err := fr.Best(CategoryRefining, 1)
	if err != nil {
		t.Fatal(err)
	}
	if f.ID != "basic_refinery" {
		t.Errorf("best with full foundry = %s", f.ID)
	}

	fr.SetState("basic_refinery", FacilityMaintenance)
	if _, err := fr.Best(CategoryRefining, 1); !errors.Is(err, simerr.ErrUnavailable) {
		t.Errorf("all stations busy or down = %v", err)
	}
}

func TestReleaseFloorsAtZero(t *testing.T) {
	fr := defaultFacilities(t)
	f, _ := fr.Facility("basic_refinery")
	fr.release(f)
	if f.ActiveJobs() != 0 {
		t.Errorf("active jobs = %d", f.ActiveJobs())
	}
}

func TestOfflineFacilities(t *testing.T) {
	fr := defaultFacilities(t)
	if got := fr.OfflineFacilities(); len(got) != 0 {
		t.Errorf("fresh registry offline = %v", got)
	}
	fr.SetState("precision_lab", FacilityOffline)
	fr.SetState("basic_refinery", FacilityMaintenance)
	got := fr.OfflineFacilities()
	if len(got) != 2 || got[0] != "basic_refinery" || got[1] != "precision_lab" {
		t.Errorf("offline = %v", got)
	}
}
