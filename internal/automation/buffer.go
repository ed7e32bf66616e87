// Package automation runs the node-and-connection production network:
// buffered resource flow, per-kind node processing, state tracking, and
// bottleneck detection.
package automation

import (
	"github.com/astralforge/starhold/internal/resource"
)

// ResourceBuffer holds typed items up to a shared capacity.
type ResourceBuffer struct {
	Capacity int64                   `json:"capacity"`
	Items    map[resource.Type]int64 `json:"items"`
	total    int64
}

// NewBuffer creates an empty buffer.
func NewBuffer(capacity int64) *ResourceBuffer {
	return &ResourceBuffer{
		Capacity: capacity,
		Items:    make(map[resource.Type]int64),
	}
}

// Count returns the held quantity of one resource.
func (b *ResourceBuffer) Count(r resource.Type) int64 { return b.Items[r] }

// Total returns the held quantity across all resources.
func (b *ResourceBuffer) Total() int64 { return b.total }

// FreeSpace returns remaining capacity.
func (b *ResourceBuffer) FreeSpace() int64 {
	free := b.Capacity - b.total
	if free < 0 {
		return 0
	}
	return free
}

// Available returns the total matching an optional filter. An empty
// filter matches everything.
func (b *ResourceBuffer) Available(filter []resource.Type) int64 {
	if len(filter) == 0 {
		return b.total
	}
	var n int64
	for _, r := range filter {
		n += b.Items[r]
	}
	return n
}

// Add inserts up to n units, bounded by free space, and returns how many
// were accepted.
func (b *ResourceBuffer) Add(r resource.Type, n int64) int64 {
	if n <= 0 {
		return 0
	}
	if free := b.FreeSpace(); n > free {
		n = free
	}
	b.Items[r] += n
	b.total += n
	return n
}

// Remove takes exactly n units or nothing.
func (b *ResourceBuffer) Remove(r resource.Type, n int64) bool {
	if n < 0 || b.Items[r] < n {
		return false
	}
	b.Items[r] -= n
	b.total -= n
	if b.Items[r] == 0 {
		delete(b.Items, r)
	}
	return true
}

// Has reports n units present.
func (b *ResourceBuffer) Has(r resource.Type, n int64) bool {
	return b.Items[r] >= n
}

// drain removes up to n units preferring the filter order, then any
// resource in type order. Returns what was taken.
func (b *ResourceBuffer) drain(filter []resource.Type, n int64) map[resource.Type]int64 {
	out := make(map[resource.Type]int64)
	take := func(r resource.Type) {
		if n <= 0 {
			return
		}
		have := b.Items[r]
		if have == 0 {
			return
		}
		q := have
		if q > n {
			q = n
		}
		b.Remove(r, q)
		out[r] += q
		n -= q
	}
	if len(filter) > 0 {
		for _, r := range filter {
			take(r)
		}
		return out
	}
	for _, r := range resource.All {
		take(r)
	}
	return out
}

// Snapshot returns a copy of held items.
func (b *ResourceBuffer) Snapshot() map[resource.Type]int64 {
	out := make(map[resource.Type]int64, len(b.Items))
	for r, n := range b.Items {
		out[r] = n
	}
	return out
}

// reindex rebuilds the running total from Items. JSON decoding bypasses
// Add, so a decoded buffer carries a zero total until this runs.
func (b *ResourceBuffer) reindex() {
	items := b.Items
	b.Items = make(map[resource.Type]int64, len(items))
	b.total = 0
	for r, n := range items {
		if n > 0 {
			b.Items[r] = n
			b.total += n
		}
	}
}

// Restore replaces contents from a snapshot.
func (b *ResourceBuffer) Restore(items map[resource.Type]int64) {
	b.Items = make(map[resource.Type]int64, len(items))
	b.total = 0
	for r, n := range items {
		if n > 0 {
			b.Items[r] = n
			b.total += n
		}
	}
}
