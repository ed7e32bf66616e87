package automation

import (
	"testing"

	"github.com/astralforge/starhold/internal/resource"
)

func TestBuffer_AddBoundedByCapacity(t *testing.T) {
	b := NewBuffer(10)

	if got := b.Add(resource.Silicate, 6); got != 6 {
		t.Errorf("accepted = %d", got)
	}
	if got := b.Add(resource.Carbon, 6); got != 4 {
		t.Errorf("overflow accepted = %d, want 4", got)
	}
	if b.Total() != 10 || b.FreeSpace() != 0 {
		t.Errorf("total = %d, free = %d", b.Total(), b.FreeSpace())
	}
	if got := b.Add(resource.Ice, 1); got != 0 {
		t.Errorf("full buffer accepted %d", got)
	}
	if got := b.Add(resource.Ice, -3); got != 0 {
		t.Errorf("negative add accepted %d", got)
	}
}

func TestBuffer_RemoveAllOrNothing(t *testing.T) {
	b := NewBuffer(10)
	b.Add(resource.Silicate, 5)

	if b.Remove(resource.Silicate, 6) {
		t.Error("removed more than held")
	}
	if b.Count(resource.Silicate) != 5 {
		t.Errorf("failed remove mutated buffer: %d", b.Count(resource.Silicate))
	}
	if !b.Remove(resource.Silicate, 5) {
		t.Error("exact remove failed")
	}
	if b.Total() != 0 {
		t.Errorf("total = %d", b.Total())
	}
	if _, ok := b.Items[resource.Silicate]; ok {
		t.Error("empty entry not pruned")
	}
}

func TestBuffer_AvailableWithFilter(t *testing.T) {
	b := NewBuffer(20)
	b.Add(resource.Silicate, 4)
	b.Add(resource.Carbon, 3)
	b.Add(resource.Ice, 2)

	if got := b.Available(nil); got != 9 {
		t.Errorf("unfiltered = %d", got)
	}
	got := b.Available([]resource.Type{resource.Silicate, resource.Ice})
	if got != 6 {
		t.Errorf("filtered = %d, want 6", got)
	}
}

func TestBuffer_DrainPrefersFilterOrder(t *testing.T) {
	b := NewBuffer(20)
	b.Add(resource.Silicate, 4)
	b.Add(resource.Carbon, 3)

	out := b.drain([]resource.Type{resource.Carbon}, 5)
	if out[resource.Carbon] != 3 || out[resource.Silicate] != 0 {
		t.Errorf("drained = %v", out)
	}
	if b.Count(resource.Silicate) != 4 {
		t.Errorf("silicate touched: %d", b.Count(resource.Silicate))
	}

	// Without a filter, drain walks types in declaration order.
	out = b.drain(nil, 3)
	if out[resource.Silicate] != 3 {
		t.Errorf("unfiltered drain = %v", out)
	}
}

func TestBuffer_SnapshotRestore(t *testing.T) {
	b := NewBuffer(50)
	b.Add(resource.Silicate, 7)
	b.Add(resource.RareMetal, 2)

	snap := b.Snapshot()
	snap[resource.Silicate] = 99 // copies, not aliases
	if b.Count(resource.Silicate) != 7 {
		t.Error("snapshot aliases live items")
	}

	fresh := NewBuffer(50)
	fresh.Restore(map[resource.Type]int64{
		resource.Silicate: 7,
		resource.Carbon:   0,
		resource.Ice:      -4,
	})
	if fresh.Total() != 7 {
		t.Errorf("restored total = %d", fresh.Total())
	}
	if fresh.Count(resource.Carbon) != 0 || fresh.Count(resource.Ice) != 0 {
		t.Error("non-positive entries restored")
	}
}
