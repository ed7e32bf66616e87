package automation

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/astralforge/starhold/internal/bus"
	"github.com/astralforge/starhold/internal/config"
	"github.com/astralforge/starhold/internal/crafting"
	"github.com/astralforge/starhold/internal/entropy"
	"github.com/astralforge/starhold/internal/inventory"
	"github.com/astralforge/starhold/internal/resource"
	"github.com/astralforge/starhold/internal/simerr"
)

func newTestNetwork(t *testing.T, inv inventory.Provider) (*Network, *config.Config, *bus.Bus) {
	t.Helper()
	cfg := config.Default()
	b := bus.New()
	cat := crafting.NewCatalog()
	for _, r := range crafting.DefaultRecipes() {
		if err := cat.Register(r); err != nil {
			t.Fatal(err)
		}
	}
	nw := NewNetwork(&cfg.Crafting, cat, inv, b, entropy.NewStream(42, "automation.quality"))
	return nw, &cfg, b
}

func mustAdd(t *testing.T, nw *Network, n Node) string {
	t.Helper()
	id, err := nw.AddNode(n)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func mustConnect(t *testing.T, nw *Network, src, dst string, rate float64) string {
	t.Helper()
	id, err := nw.Connect(Connection{SourceID: src, TargetID: dst, TransferRate: rate})
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestAddNode_DefaultsAndCap(t *testing.T) {
	nw, cfg, _ := newTestNetwork(t, inventory.NewBasic())

	id := mustAdd(t, nw, Node{Kind: NodeStorage})
	if id != "node-0001" {
		t.Errorf("assigned id = %s", id)
	}
	n, _ := nw.Node(id)
	if n.BatchSize != 1 || n.ProcessingSpeed != 1 || n.InputSlots != 1 || n.OutputSlots != 1 {
		t.Errorf("defaults = %+v", n)
	}
	if n.InputBuffer == nil || n.OutputBuffer == nil {
		t.Fatal("buffers not allocated")
	}
	if n.State != StateIdle {
		t.Errorf("initial state = %s", n.State)
	}

	if _, err := nw.AddNode(Node{ID: id, Kind: NodeStorage}); !errors.Is(err, simerr.ErrValidationFailure) {
		t.Errorf("duplicate id = %v", err)
	}
	if _, err := nw.AddNode(Node{}); !errors.Is(err, simerr.ErrValidationFailure) {
		t.Errorf("missing kind = %v", err)
	}

	cfg.Crafting.MaxNodesInNetwork = 1
	if _, err := nw.AddNode(Node{Kind: NodeStorage}); !errors.Is(err, simerr.ErrCapacityExceeded) {
		t.Errorf("over cap = %v", err)
	}
}

func TestConnect_Validation(t *testing.T) {
	nw, _, _ := newTestNetwork(t, inventory.NewBasic())
	a := mustAdd(t, nw, Node{Kind: NodeStorage})
	b := mustAdd(t, nw, Node{Kind: NodeStorage})

	if _, err := nw.Connect(Connection{SourceID: "ghost", TargetID: b}); !errors.Is(err, simerr.ErrNotFound) {
		t.Errorf("unknown source = %v", err)
	}
	if _, err := nw.Connect(Connection{SourceID: a, TargetID: b, SourceSlot: 3}); !errors.Is(err, simerr.ErrValidationFailure) {
		t.Errorf("slot out of range = %v", err)
	}

	id, err := nw.Connect(Connection{SourceID: a, TargetID: b})
	if err != nil {
		t.Fatal(err)
	}
	c, _ := nw.Connection(id)
	if c.TransferRate != 1 || !c.Active {
		t.Errorf("connection defaults = %+v", c)
	}
}

func TestConnect_RejectsCycles(t *testing.T) {
	nw, _, _ := newTestNetwork(t, inventory.NewBasic())
	a := mustAdd(t, nw, Node{Kind: NodeStorage})
	b := mustAdd(t, nw, Node{Kind: NodeStorage})
	c := mustAdd(t, nw, Node{Kind: NodeStorage})

	mustConnect(t, nw, a, b, 1)
	mustConnect(t, nw, b, c, 1)

	if _, err := nw.Connect(Connection{SourceID: c, TargetID: a}); !errors.Is(err, simerr.ErrValidationFailure) {
		t.Errorf("transitive cycle = %v", err)
	}
	if _, err := nw.Connect(Connection{SourceID: b, TargetID: a}); !errors.Is(err, simerr.ErrValidationFailure) {
		t.Errorf("direct cycle = %v", err)
	}
	// The reverse pair on disjoint nodes is fine.
	d := mustAdd(t, nw, Node{Kind: NodeStorage})
	mustConnect(t, nw, c, d, 1)
}

func TestRemoveNode_DropsConnections(t *testing.T) {
	nw, _, _ := newTestNetwork(t, inventory.NewBasic())
	a := mustAdd(t, nw, Node{Kind: NodeStorage})
	b := mustAdd(t, nw, Node{Kind: NodeStorage})
	cid := mustConnect(t, nw, a, b, 1)

	if err := nw.RemoveNode(b); err != nil {
		t.Fatal(err)
	}
	if _, err := nw.Connection(cid); !errors.Is(err, simerr.ErrNotFound) {
		t.Errorf("dangling connection = %v", err)
	}
	if err := nw.RemoveNode(b); !errors.Is(err, simerr.ErrNotFound) {
		t.Errorf("double remove = %v", err)
	}
}

func TestAssignRecipe(t *testing.T) {
	nw, _, _ := newTestNetwork(t, inventory.NewBasic())
	proc := mustAdd(t, nw, Node{Kind: NodeProcessing})
	store := mustAdd(t, nw, Node{Kind: NodeStorage})

	if err := nw.AssignRecipe(store, "refine_silicate"); !errors.Is(err, simerr.ErrValidationFailure) {
		t.Errorf("recipe on storage node = %v", err)
	}
	// etch_circuit is hand-work only.
	if err := nw.AssignRecipe(proc, "etch_circuit"); !errors.Is(err, simerr.ErrValidationFailure) {
		t.Errorf("non-automatable recipe = %v", err)
	}
	if err := nw.AssignRecipe(proc, "refine_silicate"); err != nil {
		t.Fatal(err)
	}
	n, _ := nw.Node(proc)
	if n.RecipeID != "refine_silicate" {
		t.Errorf("recipe = %s", n.RecipeID)
	}
}

func TestFlow_RespectsTransferRate(t *testing.T) {
	nw, _, _ := newTestNetwork(t, inventory.NewBasic())
	src := mustAdd(t, nw, Node{Kind: NodeStorage})
	dst := mustAdd(t, nw, Node{Kind: NodeStorage, ProcessingSpeed: 0.001})
	mustConnect(t, nw, src, dst, 2)

	s, _ := nw.Node(src)
	s.OutputBuffer.Add(resource.Silicate, 100)

	nw.Advance(1, 5)
	d, _ := nw.Node(dst)
	moved := d.InputBuffer.Total() + d.OutputBuffer.Total()
	if moved != 10 { // 2 units per second for 5 seconds
		t.Errorf("moved = %d, want 10", moved)
	}
	if s.OutputBuffer.Total() != 90 {
		t.Errorf("source left = %d", s.OutputBuffer.Total())
	}
	c, _ := nw.Connection(nw.ConnectionIDs()[0])
	if c.CurrentFlow <= 0 {
		t.Errorf("observed flow = %v", c.CurrentFlow)
	}
}

func TestSplitter_SharesWithRemainderToLowestTarget(t *testing.T) {
	nw, _, _ := newTestNetwork(t, inventory.NewBasic())
	split := mustAdd(t, nw, Node{Kind: NodeSplitter})
	left := mustAdd(t, nw, Node{Kind: NodeStorage, ProcessingSpeed: 0.001})
	right := mustAdd(t, nw, Node{Kind: NodeStorage, ProcessingSpeed: 0.001})
	mustConnect(t, nw, split, left, 100)
	mustConnect(t, nw, split, right, 100)

	s, _ := nw.Node(split)
	s.OutputBuffer.Add(resource.Carbon, 11)

	nw.Advance(1, 0.1)
	l, _ := nw.Node(left)
	r, _ := nw.Node(right)
	lGot := l.InputBuffer.Total() + l.OutputBuffer.Total()
	rGot := r.InputBuffer.Total() + r.OutputBuffer.Total()
	if lGot != 6 || rGot != 5 {
		t.Errorf("split = %d / %d, want 6 / 5", lGot, rGot)
	}
}

func TestProcessingNode_StateTransitions(t *testing.T) {
	nw, _, _ := newTestNetwork(t, inventory.NewBasic())
	proc := mustAdd(t, nw, Node{Kind: NodeProcessing})
	if err := nw.AssignRecipe(proc, "refine_silicate"); err != nil {
		t.Fatal(err)
	}
	n, _ := nw.Node(proc)

	nw.Advance(1, 0.1)
	if n.State != StateStarved {
		t.Errorf("empty inputs state = %s", n.State)
	}

	n.InputBuffer.Add(resource.Silicate, 3)
	filler := n.OutputBuffer.Capacity
	n.OutputBuffer.Add(resource.Carbon, filler)
	nw.Advance(2, 0.1)
	if n.State != StateBlocked {
		t.Errorf("full output state = %s", n.State)
	}

	n.OutputBuffer.Remove(resource.Carbon, filler)
	nw.Advance(3, 0.1)
	if n.State != StateActive {
		t.Errorf("running state = %s", n.State)
	}
}

func TestProcessingNode_CompletesBatches(t *testing.T) {
	nw, _, b := newTestNetwork(t, inventory.NewBasic())
	proc := mustAdd(t, nw, Node{Kind: NodeProcessing, ProcessingSpeed: 2})
	if err := nw.AssignRecipe(proc, "refine_silicate"); err != nil {
		t.Fatal(err)
	}
	n, _ := nw.Node(proc)
	n.InputBuffer.Add(resource.Silicate, 9)

	// Progress accrues at 2 * (1 - 0.1) per second.
	nw.Advance(1, 2)
	if got := n.OutputBuffer.Count(resource.RefinedSilicate); got != 3 {
		t.Errorf("refined = %d, want 3", got)
	}
	if n.InputBuffer.Count(resource.Silicate) != 0 {
		t.Errorf("inputs left = %d", n.InputBuffer.Count(resource.Silicate))
	}
	if n.TotalItemsProcessed != 3 {
		t.Errorf("processed = %d", n.TotalItemsProcessed)
	}

	capped := true
	sawCraft := false
	for _, ev := range b.Flush() {
		if ev.Kind != bus.KindItemCrafted {
			continue
		}
		sawCraft = true
		p := ev.Payload.(bus.ItemCraftedPayload)
		var q resource.Quality
		if err := q.UnmarshalText([]byte(p.Quality)); err != nil || q > resource.QualityStandard {
			capped = false
		}
	}
	if !sawCraft {
		t.Fatal("no craft events published")
	}
	if !capped {
		t.Error("automated output exceeded standard quality")
	}
}

func TestNode_PowerAndDisable(t *testing.T) {
	nw, _, _ := newTestNetwork(t, inventory.NewBasic())
	id := mustAdd(t, nw, Node{Kind: NodeProcessing, RequiresPower: true})
	n, _ := nw.Node(id)

	nw.Advance(1, 0.1)
	if n.State != StateError {
		t.Errorf("unpowered state = %s", n.State)
	}

	nw.SetPowered(id, true)
	nw.Advance(2, 0.1)
	if n.State != StateIdle { // powered but no recipe assigned
		t.Errorf("powered idle state = %s", n.State)
	}

	nw.SetDisabled(id, true)
	nw.Advance(3, 0.1)
	if n.State != StateDisabled {
		t.Errorf("disabled state = %s", n.State)
	}
}

func TestInputOutputNodes_BridgeInventory(t *testing.T) {
	inv := inventory.FromMap(map[resource.Type]int64{resource.Silicate: 30})
	nw, _, _ := newTestNetwork(t, inv)

	in := mustAdd(t, nw, Node{
		Kind: NodeInput, ProcessingSpeed: 5,
		Filter: []resource.Type{resource.Silicate},
	})
	proc := mustAdd(t, nw, Node{Kind: NodeProcessing, ProcessingSpeed: 2})
	out := mustAdd(t, nw, Node{Kind: NodeOutput, ProcessingSpeed: 5})
	mustConnect(t, nw, in, proc, 5)
	mustConnect(t, nw, proc, out, 5)
	if err := nw.AssignRecipe(proc, "refine_silicate"); err != nil {
		t.Fatal(err)
	}

	nw.Advance(1, 60)

	if got := inv.Count(resource.RefinedSilicate); got == 0 {
		t.Error("pipeline produced nothing")
	}
	// Every refined unit cost three silicate; nothing is created from air.
	refined := inv.Count(resource.RefinedSilicate)
	inNode, _ := nw.Node(in)
	procNode, _ := nw.Node(proc)
	outNode, _ := nw.Node(out)
	buffered := int64(0)
	for _, n := range []*Node{inNode, procNode, outNode} {
		buffered += n.InputBuffer.Count(resource.Silicate) + n.OutputBuffer.Count(resource.Silicate)
		buffered += 3 * (n.InputBuffer.Count(resource.RefinedSilicate) + n.OutputBuffer.Count(resource.RefinedSilicate))
	}
	total := inv.Count(resource.Silicate) + 3*refined + buffered
	if total != 30 {
		t.Errorf("material balance = %d, want 30", total)
	}
}

func TestBottleneck_ReportsStarvedNode(t *testing.T) {
	nw, _, b := newTestNetwork(t, inventory.NewBasic())
	proc := mustAdd(t, nw, Node{Kind: NodeProcessing})
	if err := nw.AssignRecipe(proc, "refine_silicate"); err != nil {
		t.Fatal(err)
	}
	if err := nw.AddLine(ProductionLine{ID: "line-1", NodeIDs: []string{proc}}); err != nil {
		t.Fatal(err)
	}

	// Starve it past two detection windows.
	nw.Advance(1, 12)

	l, _ := nw.Line("line-1")
	if l.LastBottleneck == nil {
		t.Fatal("no bottleneck detected")
	}
	if l.LastBottleneck.NodeID != proc {
		t.Errorf("bottleneck node = %s", l.LastBottleneck.NodeID)
	}
	if l.LastBottleneck.StarvedRatio < 0.9 {
		t.Errorf("starved ratio = %v", l.LastBottleneck.StarvedRatio)
	}
	if len(l.LastBottleneck.Recommendations) == 0 {
		t.Error("no recommendations")
	}

	saw := false
	for _, ev := range b.Flush() {
		if ev.Kind == bus.KindBottleneck {
			saw = true
		}
	}
	if !saw {
		t.Error("no bottleneck event published")
	}
}

func TestLine_EfficiencyAndValidation(t *testing.T) {
	nw, _, _ := newTestNetwork(t, inventory.NewBasic())

	if err := nw.AddLine(ProductionLine{ID: ""}); !errors.Is(err, simerr.ErrValidationFailure) {
		t.Errorf("missing id = %v", err)
	}
	if err := nw.AddLine(ProductionLine{ID: "l", NodeIDs: []string{"ghost"}}); !errors.Is(err, simerr.ErrNotFound) {
		t.Errorf("unknown node = %v", err)
	}

	id := mustAdd(t, nw, Node{Kind: NodeStorage})
	if err := nw.AddLine(ProductionLine{ID: "l", NodeIDs: []string{id}}); err != nil {
		t.Fatal(err)
	}
	n, _ := nw.Node(id)
	if n.LineID != "l" {
		t.Errorf("line id = %s", n.LineID)
	}

	n.InputBuffer.Add(resource.Silicate, 50)
	nw.Advance(1, 10)
	eff, err := nw.LineEfficiency("l")
	if err != nil {
		t.Fatal(err)
	}
	if eff <= 0 || eff > 1 {
		t.Errorf("efficiency = %v", eff)
	}
}

func TestRestore_NodesConnectionsAndSeqs(t *testing.T) {
	nw, _, _ := newTestNetwork(t, inventory.NewBasic())

	nw.RestoreNode(Node{ID: "node-0007", Kind: NodeStorage, State: StateIdle})
	nw.RestoreConnection(Connection{ID: "conn-0003", SourceID: "node-0007", TargetID: "node-0007", Active: true})
	nw.SetSeqs(7, 3)

	if _, err := nw.Node("node-0007"); err != nil {
		t.Fatal(err)
	}
	if _, err := nw.Connection("conn-0003"); err != nil {
		t.Fatal(err)
	}
	ns, cs := nw.Seqs()
	if ns != 7 || cs != 3 {
		t.Errorf("seqs = %d / %d", ns, cs)
	}

	// New ids continue past the restored counters.
	id := mustAdd(t, nw, Node{Kind: NodeStorage})
	if id != "node-0008" {
		t.Errorf("next id = %s", id)
	}
}

func TestRestoreNode_RecountsBufferTotals(t *testing.T) {
	nw, _, _ := newTestNetwork(t, inventory.NewBasic())

	src := Node{ID: "node-0001", Kind: NodeStorage, State: StateIdle}
	src.InputBuffer = NewBuffer(100)
	src.InputBuffer.Add(resource.Silicate, 40)
	src.OutputBuffer = NewBuffer(100)
	src.OutputBuffer.Add(resource.RefinedSilicate, 12)

	// The buffer running total is not serialized; restoring a decoded
	// node must rebuild it from the item map.
	raw, err := json.Marshal(src)
	if err != nil {
		t.Fatal(err)
	}
	var decoded Node
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatal(err)
	}
	nw.RestoreNode(decoded)

	n, err := nw.Node("node-0001")
	if err != nil {
		t.Fatal(err)
	}
	if got := n.InputBuffer.Total(); got != 40 {
		t.Errorf("input total = %d, want 40", got)
	}
	if got := n.InputBuffer.FreeSpace(); got != 60 {
		t.Errorf("input free space = %d, want 60", got)
	}
	if got := n.InputBuffer.Available(nil); got != 40 {
		t.Errorf("input available = %d, want 40", got)
	}
	if got := n.OutputBuffer.Total(); got != 12 {
		t.Errorf("output total = %d, want 12", got)
	}
}
