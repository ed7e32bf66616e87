package automation

import (
	"sort"

	"github.com/astralforge/starhold/internal/bus"
	"github.com/astralforge/starhold/internal/resource"
	"github.com/astralforge/starhold/internal/simerr"
)

// Weights for the bottleneck score.
const (
	starvedWeight = 1.0
	blockedWeight = 0.8
)

// ProductionLine groups nodes for throughput accounting.
type ProductionLine struct {
	ID           string        `json:"id"`
	NodeIDs      []string      `json:"node_ids"`
	FinalProduct resource.Type `json:"final_product"`

	itemsOut int64
	elapsed  float64

	LastBottleneck *BottleneckReport `json:"last_bottleneck,omitempty"`
}

func (l *ProductionLine) removeNode(id string) {
	for i, nid := range l.NodeIDs {
		if nid == id {
			l.NodeIDs = append(l.NodeIDs[:i], l.NodeIDs[i+1:]...)
			return
		}
	}
}

func (l *ProductionLine) contains(id string) bool {
	for _, nid := range l.NodeIDs {
		if nid == id {
			return true
		}
	}
	return false
}

// ProductionRate is final-product units leaving output nodes per second.
func (l *ProductionLine) ProductionRate() float64 {
	if l.elapsed <= 0 {
		return 0
	}
	return float64(l.itemsOut) / l.elapsed
}

// BottleneckReport identifies the worst node in a line.
type BottleneckReport struct {
	LineID          string   `json:"line_id"`
	NodeID          string   `json:"node_id"`
	Severity        float64  `json:"severity"`
	StarvedRatio    float64  `json:"starved_ratio"`
	BlockedRatio    float64  `json:"blocked_ratio"`
	Recommendations []string `json:"recommendations"`
}

// AddLine registers a production line over existing nodes.
func (nw *Network) AddLine(line ProductionLine) error {
	if line.ID == "" {
		return simerr.Validationf("production line missing id")
	}
	for _, nid := range line.NodeIDs {
		if _, err := nw.Node(nid); err != nil {
			return err
		}
	}
	lc := line
	nw.lines[line.ID] = &lc
	for _, nid := range line.NodeIDs {
		nw.nodes[nid].LineID = line.ID
	}
	return nil
}

// Line returns a production line by id.
func (nw *Network) Line(id string) (*ProductionLine, error) {
	l, ok := nw.lines[id]
	if !ok {
		return nil, simerr.NotFound("production line", id)
	}
	return l, nil
}

// LineIDs returns all line ids, sorted.
func (nw *Network) LineIDs() []string {
	ids := make([]string, 0, len(nw.lines))
	for id := range nw.lines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LineEfficiency is the mean node efficiency across a line.
func (nw *Network) LineEfficiency(id string) (float64, error) {
	l, err := nw.Line(id)
	if err != nil {
		return 0, err
	}
	if len(l.NodeIDs) == 0 {
		return 0, nil
	}
	var sum float64
	for _, nid := range l.NodeIDs {
		if n, err := nw.Node(nid); err == nil {
			sum += n.Efficiency()
		}
	}
	return sum / float64(len(l.NodeIDs)), nil
}

// creditLines attributes output-node withdrawals to the node's line.
func (nw *Network) creditLines(n *Node, r resource.Type, qty int64) {
	if n.LineID == "" {
		return
	}
	l, ok := nw.lines[n.LineID]
	if !ok || !l.contains(n.ID) {
		return
	}
	if l.FinalProduct == resource.None || l.FinalProduct == r {
		l.itemsOut += qty
	}
}

// detectBottlenecks scores each line's nodes and publishes a report for
// the worst one.
func (nw *Network) detectBottlenecks() {
	for _, lid := range nw.LineIDs() {
		l := nw.lines[lid]
		var worst *Node
		worstScore := 0.0
		for _, nid := range l.NodeIDs {
			n, err := nw.Node(nid)
			if err != nil {
				continue
			}
			score := starvedWeight*n.StarvedRatio() + blockedWeight*n.BlockedRatio()
			if score > worstScore {
				worst = n
				worstScore = score
			}
		}
		if worst == nil || worstScore < 0.05 {
			l.LastBottleneck = nil
			continue
		}
		report := &BottleneckReport{
			LineID:          lid,
			NodeID:          worst.ID,
			Severity:        worstScore,
			StarvedRatio:    worst.StarvedRatio(),
			BlockedRatio:    worst.BlockedRatio(),
			Recommendations: recommend(worst),
		}
		l.LastBottleneck = report
		nw.bus.Publish(nw.tick, bus.KindBottleneck, report)
	}
}

// recommend maps the dominant failure mode to fixed advice.
func recommend(n *Node) []string {
	var out []string
	if n.StarvedRatio() >= n.BlockedRatio() {
		out = append(out, "increase upstream capacity or transfer rate")
		if n.Kind == NodeProcessing {
			out = append(out, "reduce batch size to match input flow")
		}
	} else {
		out = append(out, "add buffer capacity or downstream processing")
		if n.Kind == NodeProcessing {
			out = append(out, "add another output connection")
		}
	}
	if n.RequiresPower && !n.Powered {
		out = append(out, "restore power to the node")
	}
	return out
}
