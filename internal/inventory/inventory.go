// Package inventory defines the external inventory contract consumed by
// trading, crafting, automation I/O nodes, and the planner, plus the
// map-backed implementation the host and tests use.
package inventory

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"

	"github.com/astralforge/starhold/internal/resource"
)

// Provider is the consumed contract. Implementations must be synchronous;
// none of the simulation holds a Provider across a tick boundary.
type Provider interface {
	Add(r resource.Type, n int64) bool
	Remove(r resource.Type, n int64) bool
	Has(r resource.Type, n int64) bool
	Count(r resource.Type) int64
	Snapshot() map[resource.Type]int64
}

// Basic is a map-backed inventory with no capacity limit.
type Basic struct {
	items map[resource.Type]int64
}

// NewBasic creates an empty inventory.
func NewBasic() *Basic {
	return &Basic{items: make(map[resource.Type]int64)}
}

// FromMap seeds an inventory from initial counts.
func FromMap(m map[resource.Type]int64) *Basic {
	b := NewBasic()
	for r, n := range m {
		if n > 0 {
			b.items[r] = n
		}
	}
	return b
}

func (b *Basic) Add(r resource.Type, n int64) bool {
	if n < 0 {
		return false
	}
	b.items[r] += n
	return true
}

func (b *Basic) Remove(r resource.Type, n int64) bool {
	if n < 0 || b.items[r] < n {
		return false
	}
	b.items[r] -= n
	if b.items[r] == 0 {
		delete(b.items, r)
	}
	return true
}

func (b *Basic) Has(r resource.Type, n int64) bool {
	return b.items[r] >= n
}

func (b *Basic) Count(r resource.Type) int64 {
	return b.items[r]
}

// Snapshot returns a copy of current holdings.
func (b *Basic) Snapshot() map[resource.Type]int64 {
	out := make(map[resource.Type]int64, len(b.items))
	for r, n := range b.items {
		out[r] = n
	}
	return out
}

// Hash digests holdings for plan-cache keys. Stable across map order.
func Hash(p Provider) string {
	snap := p.Snapshot()
	keys := make([]resource.Type, 0, len(snap))
	for r := range snap {
		keys = append(keys, r)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	h := sha256.New()
	var buf [10]byte
	for _, r := range keys {
		buf[0] = byte(r)
		buf[1] = 0
		binary.LittleEndian.PutUint64(buf[2:], uint64(snap[r]))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil)[:12])
}
