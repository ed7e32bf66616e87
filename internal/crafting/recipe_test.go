package crafting

import (
	"errors"
	"testing"

	"github.com/astralforge/starhold/internal/resource"
	"github.com/astralforge/starhold/internal/simerr"
)

func defaultCatalog(t *testing.T) *Catalog {
	t.Helper()
	c := NewCatalog()
	for _, r := range DefaultRecipes() {
		if err := c.Register(r); err != nil {
			t.Fatal(err)
		}
	}
	return c
}

func TestRegister_Validation(t *testing.T) {
	c := NewCatalog()
	out := []Stack{{resource.RefinedSilicate, 1}}

	cases := []struct {
		name string
		r    Recipe
	}{
		{"missing id", Recipe{PrimaryOutputs: out, BaseTimeS: 1}},
		{"no outputs", Recipe{ID: "r", BaseTimeS: 1}},
		{"bad time", Recipe{ID: "r", PrimaryOutputs: out}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := c.Register(tc.r); !errors.Is(err, simerr.ErrValidationFailure) {
				t.Errorf("error = %v", err)
			}
		})
	}
}

func TestRegister_PrerequisiteFreeRecipesStartUnlocked(t *testing.T) {
	c := defaultCatalog(t)
	for id, want := range map[string]bool{
		"refine_silicate":      true,
		"smelt_alloy":          true,
		"etch_circuit":         false,
		"assemble_fusion_cell": false,
		"composite_lattice":    false,
	} {
		if got := c.Unlocked(id); got != want {
			t.Errorf("%s unlocked = %v, want %v", id, got, want)
		}
	}
}

func TestUnlock_ChecksRecipePrerequisites(t *testing.T) {
	c := defaultCatalog(t)

	// composite_lattice needs weave_composite and smelt_alloy, both
	// already unlocked, so it can be unlocked directly.
	if err := c.Unlock("composite_lattice"); err != nil {
		t.Fatal(err)
	}

	// assemble_fusion_cell needs etch_circuit, which is still locked.
	if err := c.Unlock("assemble_fusion_cell"); !errors.Is(err, simerr.ErrUnavailable) {
		t.Errorf("error = %v", err)
	}
	c.ForceUnlock("etch_circuit")
	if err := c.Unlock("assemble_fusion_cell"); err != nil {
		t.Fatal(err)
	}
}

func TestProducersAndRawness(t *testing.T) {
	c := defaultCatalog(t)

	for _, raw := range []resource.Type{resource.Silicate, resource.Carbon, resource.Ice, resource.RareMetal} {
		if !c.IsRaw(raw) {
			t.Errorf("%s should be raw", raw)
		}
	}
	if c.IsRaw(resource.RefinedSilicate) {
		t.Error("refined silicate has a producer")
	}
	// Two recipes output composite material; the list comes back sorted.
	got := c.Producers(resource.CompositeMaterial)
	if len(got) != 2 || got[0] != "composite_lattice" || got[1] != "weave_composite" {
		t.Errorf("producers = %v", got)
	}
}

func TestPrimaryOutputCount(t *testing.T) {
	r := Recipe{PrimaryOutputs: []Stack{{resource.CompositeMaterial, 3}}}
	if got := r.PrimaryOutputCount(); got != 3 {
		t.Errorf("count = %d", got)
	}
	empty := Recipe{}
	if got := empty.PrimaryOutputCount(); got != 1 {
		t.Errorf("empty count = %d, want 1 floor", got)
	}
}

func TestHashInputSet_OrderIndependent(t *testing.T) {
	a := HashInputSet([]Stack{{resource.RareMetal, 2}, {resource.PurifiedIce, 1}})
	b := HashInputSet([]Stack{{resource.PurifiedIce, 1}, {resource.RareMetal, 2}})
	if a != b {
		t.Error("hash depends on declaration order")
	}
	c := HashInputSet([]Stack{{resource.RareMetal, 3}, {resource.PurifiedIce, 1}})
	if a == c {
		t.Error("different quantities collided")
	}
}
