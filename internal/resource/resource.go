// Package resource defines the closed resource set and quality tiers shared
// by the economy, crafting, and automation subsystems.
package resource

import "fmt"

// Type identifies a tradeable resource. OMEN is the single unit of account.
type Type uint8

const (
	None Type = iota
	Silicate
	Carbon
	Ice
	RareMetal
	RefinedSilicate
	RefinedCarbon
	PurifiedIce
	AlloyIngot
	CompositeMaterial
	CircuitModule
	FusionCell
	OMEN // currency
)

// All lists every tradeable resource, in declaration order. OMEN is included:
// markets may quote it but never track supply for it.
var All = []Type{
	Silicate, Carbon, Ice, RareMetal,
	RefinedSilicate, RefinedCarbon, PurifiedIce, AlloyIngot,
	CompositeMaterial, CircuitModule, FusionCell, OMEN,
}

var names = map[Type]string{
	None:              "none",
	Silicate:          "silicate",
	Carbon:            "carbon",
	Ice:               "ice",
	RareMetal:         "rare_metal",
	RefinedSilicate:   "refined_silicate",
	RefinedCarbon:     "refined_carbon",
	PurifiedIce:       "purified_ice",
	AlloyIngot:        "alloy_ingot",
	CompositeMaterial: "composite_material",
	CircuitModule:     "circuit_module",
	FusionCell:        "fusion_cell",
	OMEN:              "omen",
}

func (t Type) String() string {
	if n, ok := names[t]; ok {
		return n
	}
	return "unknown"
}

// Parse returns the resource matching a snapshot/config name.
func Parse(name string) (Type, bool) {
	for t, n := range names {
		if n == name {
			return t, true
		}
	}
	return None, false
}

// MarshalText serializes the resource by name so JSON maps keyed on Type
// stay readable in save files.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText restores a resource from its name.
func (t *Type) UnmarshalText(b []byte) error {
	r, ok := Parse(string(b))
	if !ok {
		return fmt.Errorf("unknown resource %q", string(b))
	}
	*t = r
	return nil
}

// BasePrices gives production-cost price floors in OMEN. Raw resources are
// cheap; each refinement tier roughly triples value.
var BasePrices = map[Type]int64{
	Silicate:          4,
	Carbon:            5,
	Ice:               3,
	RareMetal:         12,
	RefinedSilicate:   14,
	RefinedCarbon:     16,
	PurifiedIce:       10,
	AlloyIngot:        40,
	CompositeMaterial: 55,
	CircuitModule:     90,
	FusionCell:        150,
}

// BasePrice returns the configured floor price, or 1 for unpriced resources.
func BasePrice(t Type) int64 {
	if p, ok := BasePrices[t]; ok {
		return p
	}
	return 1
}
