package inventory

import (
	"testing"

	"github.com/astralforge/starhold/internal/resource"
)

func TestBasic_AddRemove(t *testing.T) {
	inv := NewBasic()
	inv.Add(resource.Silicate, 10)
	if !inv.Has(resource.Silicate, 10) {
		t.Fatal("expected 10 silicate")
	}
	if inv.Remove(resource.Silicate, 11) {
		t.Fatal("removed more than held")
	}
	if !inv.Remove(resource.Silicate, 10) {
		t.Fatal("remove of exact count failed")
	}
	if inv.Count(resource.Silicate) != 0 {
		t.Fatalf("count = %d after full removal", inv.Count(resource.Silicate))
	}
}

func TestBasic_NegativeAmountsRejected(t *testing.T) {
	inv := NewBasic()
	if inv.Add(resource.Carbon, -1) {
		t.Error("negative add accepted")
	}
	if inv.Remove(resource.Carbon, -1) {
		t.Error("negative remove accepted")
	}
}

func TestFromMap_DropsNonPositive(t *testing.T) {
	inv := FromMap(map[resource.Type]int64{
		resource.Ice:    5,
		resource.Carbon: 0,
	})
	if inv.Count(resource.Ice) != 5 {
		t.Fatalf("ice = %d, want 5", inv.Count(resource.Ice))
	}
	if len(inv.Snapshot()) != 1 {
		t.Fatalf("snapshot has %d entries, want 1", len(inv.Snapshot()))
	}
}

func TestHash_StableAndContentSensitive(t *testing.T) {
	a := FromMap(map[resource.Type]int64{resource.Silicate: 3, resource.Ice: 7})
	b := FromMap(map[resource.Type]int64{resource.Ice: 7, resource.Silicate: 3})
	if Hash(a) != Hash(b) {
		t.Fatal("hash depends on insertion order")
	}
	b.Add(resource.Ice, 1)
	if Hash(a) == Hash(b) {
		t.Fatal("hash did not change with contents")
	}
}
