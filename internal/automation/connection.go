package automation

import (
	"github.com/astralforge/starhold/internal/resource"
)

// flowEWMAAlpha smooths the observed connection flow rate.
const flowEWMAAlpha = 0.2

// Connection is one directed edge moving items from a source node's
// output buffer to a target node's input buffer.
type Connection struct {
	ID         string `json:"id"`
	SourceID   string `json:"source_id"`
	TargetID   string `json:"target_id"`
	SourceSlot int    `json:"source_slot"`
	TargetSlot int    `json:"target_slot"`

	// TransferRate is units per second.
	TransferRate float64         `json:"transfer_rate"`
	Filter       []resource.Type `json:"filter,omitempty"`
	Active       bool            `json:"active"`

	// CurrentFlow is the EWMA of units actually moved per second.
	CurrentFlow float64 `json:"current_flow"`

	carry float64
}

func (c *Connection) observeFlow(moved int64, dt float64) {
	if dt <= 0 {
		return
	}
	rate := float64(moved) / dt
	c.CurrentFlow += flowEWMAAlpha * (rate - c.CurrentFlow)
}
