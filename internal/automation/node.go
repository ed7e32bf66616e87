package automation

import (
	"github.com/astralforge/starhold/internal/resource"
)

// NodeKind is the processing role of a network node.
type NodeKind string

const (
	NodeInput      NodeKind = "input"
	NodeOutput     NodeKind = "output"
	NodeProcessing NodeKind = "processing"
	NodeStorage    NodeKind = "storage"
	NodeSplitter   NodeKind = "splitter"
	NodeMerger     NodeKind = "merger"
	NodeFilter     NodeKind = "filter"
)

// NodeState is the observed condition after each network step.
type NodeState string

const (
	StateIdle     NodeState = "idle"
	StateActive   NodeState = "active"
	StateStarved  NodeState = "starved"
	StateBlocked  NodeState = "blocked"
	StateError    NodeState = "error"
	StateDisabled NodeState = "disabled"
)

// Node is one vertex of the automation network.
type Node struct {
	ID    string    `json:"id"`
	Kind  NodeKind  `json:"kind"`
	State NodeState `json:"state"`

	// ProcessingSpeed is units per second for I/O nodes and progress per
	// second for processing nodes.
	ProcessingSpeed float64 `json:"processing_speed"`
	RecipeID        string  `json:"recipe_id,omitempty"`
	BatchSize       int64   `json:"batch_size"`
	CurrentProgress float64 `json:"current_progress"`

	InputBuffer  *ResourceBuffer `json:"input_buffer"`
	OutputBuffer *ResourceBuffer `json:"output_buffer"`

	// Filter whitelists resources for filter and input nodes.
	Filter []resource.Type `json:"filter,omitempty"`

	InputSlots  int `json:"input_slots"`
	OutputSlots int `json:"output_slots"`

	RequiresPower bool `json:"requires_power"`
	Powered       bool `json:"powered"`
	Disabled      bool `json:"disabled"`

	TotalItemsProcessed int64  `json:"total_items_processed"`
	LineID              string `json:"line_id,omitempty"`

	// io accumulator for fractional per-step transfer rates.
	ioAccum float64

	// per-window metric counters.
	activeTicks  int64
	starvedTicks int64
	blockedTicks int64
	totalTicks   int64
}

// Efficiency is uptime_ratio * (1 - avg_block_time) over the metric
// window.
func (n *Node) Efficiency() float64 {
	if n.totalTicks == 0 {
		return 0
	}
	uptime := float64(n.activeTicks) / float64(n.totalTicks)
	blocked := float64(n.blockedTicks) / float64(n.totalTicks)
	return uptime * (1 - blocked)
}

// StarvedRatio is the fraction of recent ticks spent starved.
func (n *Node) StarvedRatio() float64 {
	if n.totalTicks == 0 {
		return 0
	}
	return float64(n.starvedTicks) / float64(n.totalTicks)
}

// BlockedRatio is the fraction of recent ticks spent blocked.
func (n *Node) BlockedRatio() float64 {
	if n.totalTicks == 0 {
		return 0
	}
	return float64(n.blockedTicks) / float64(n.totalTicks)
}

func (n *Node) recordState() {
	n.totalTicks++
	switch n.State {
	case StateActive:
		n.activeTicks++
	case StateStarved:
		n.starvedTicks++
	case StateBlocked:
		n.blockedTicks++
	}
	// Bound the window so old history fades.
	if n.totalTicks > 600 {
		n.totalTicks /= 2
		n.activeTicks /= 2
		n.starvedTicks /= 2
		n.blockedTicks /= 2
	}
}
