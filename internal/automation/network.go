package automation

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/astralforge/starhold/internal/bus"
	"github.com/astralforge/starhold/internal/config"
	"github.com/astralforge/starhold/internal/crafting"
	"github.com/astralforge/starhold/internal/entropy"
	"github.com/astralforge/starhold/internal/inventory"
	"github.com/astralforge/starhold/internal/resource"
	"github.com/astralforge/starhold/internal/simerr"
)

const defaultBufferCapacity = 100

// Network is the automation graph. Single-threaded; everything happens
// inside Advance on a fixed cadence.
type Network struct {
	cfg     *config.CraftingConfig
	catalog *crafting.Catalog
	inv     inventory.Provider
	bus     *bus.Bus
	rng     *entropy.Stream

	nodes map[string]*Node
	conns map[string]*Connection
	lines map[string]*ProductionLine

	nodeSeq uint64
	connSeq uint64

	accum           float64
	bottleneckAccum float64
	tick            uint64
	elapsed         float64
}

// NewNetwork wires the automation subsystem.
func NewNetwork(cfg *config.CraftingConfig, cat *crafting.Catalog, inv inventory.Provider, b *bus.Bus, rng *entropy.Stream) *Network {
	return &Network{
		cfg:     cfg,
		catalog: cat,
		inv:     inv,
		bus:     b,
		rng:     rng,
		nodes:   make(map[string]*Node),
		conns:   make(map[string]*Connection),
		lines:   make(map[string]*ProductionLine),
	}
}

// AddNode inserts a node, bounded by max_nodes_in_network. A blank id is
// assigned.
func (nw *Network) AddNode(n Node) (string, error) {
	if len(nw.nodes) >= nw.cfg.MaxNodesInNetwork {
		return "", simerr.Capacityf("network full (%d nodes)", nw.cfg.MaxNodesInNetwork)
	}
	if n.ID == "" {
		nw.nodeSeq++
		n.ID = fmt.Sprintf("node-%04d", nw.nodeSeq)
	}
	if _, ok := nw.nodes[n.ID]; ok {
		return "", simerr.Validationf("node %s already exists", n.ID)
	}
	if n.Kind == "" {
		return "", simerr.Validationf("node %s missing kind", n.ID)
	}
	if n.InputBuffer == nil {
		n.InputBuffer = NewBuffer(defaultBufferCapacity)
	}
	if n.OutputBuffer == nil {
		n.OutputBuffer = NewBuffer(defaultBufferCapacity)
	}
	if n.BatchSize < 1 {
		n.BatchSize = 1
	}
	if n.InputSlots < 1 {
		n.InputSlots = 1
	}
	if n.OutputSlots < 1 {
		n.OutputSlots = 1
	}
	if n.ProcessingSpeed <= 0 {
		n.ProcessingSpeed = 1
	}
	n.State = StateIdle
	nc := n
	nw.nodes[n.ID] = &nc
	return n.ID, nil
}

// Node returns a node by id.
func (nw *Network) Node(id string) (*Node, error) {
	n, ok := nw.nodes[id]
	if !ok {
		return nil, simerr.NotFound("node", id)
	}
	return n, nil
}

// NodeIDs returns all node ids, sorted.
func (nw *Network) NodeIDs() []string {
	ids := make([]string, 0, len(nw.nodes))
	for id := range nw.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RemoveNode deletes a node and every connection touching it.
func (nw *Network) RemoveNode(id string) error {
	if _, ok := nw.nodes[id]; !ok {
		return simerr.NotFound("node", id)
	}
	for _, cid := range nw.ConnectionIDs() {
		c := nw.conns[cid]
		if c.SourceID == id || c.TargetID == id {
			delete(nw.conns, cid)
		}
	}
	for _, line := range nw.lines {
		line.removeNode(id)
	}
	delete(nw.nodes, id)
	return nil
}

// AssignRecipe sets a processing node's recipe; the recipe must allow
// automation.
func (nw *Network) AssignRecipe(nodeID, recipeID string) error {
	n, err := nw.Node(nodeID)
	if err != nil {
		return err
	}
	if n.Kind != NodeProcessing {
		return simerr.Validationf("node %s is %s, not processing", nodeID, n.Kind)
	}
	r, err := nw.catalog.Recipe(recipeID)
	if err != nil {
		return err
	}
	if !r.CanAutomate {
		return simerr.Validationf("recipe %s cannot be automated", recipeID)
	}
	n.RecipeID = recipeID
	n.CurrentProgress = 0
	return nil
}

// Connect adds a directed edge after validating endpoints, slots, filter
// compatibility, and acyclicity.
func (nw *Network) Connect(c Connection) (string, error) {
	src, err := nw.Node(c.SourceID)
	if err != nil {
		return "", err
	}
	dst, err := nw.Node(c.TargetID)
	if err != nil {
		return "", err
	}
	if c.SourceSlot < 0 || c.SourceSlot >= src.OutputSlots {
		return "", simerr.Validationf("source slot %d out of range for %s", c.SourceSlot, src.ID)
	}
	if c.TargetSlot < 0 || c.TargetSlot >= dst.InputSlots {
		return "", simerr.Validationf("target slot %d out of range for %s", c.TargetSlot, dst.ID)
	}
	if len(c.Filter) > 0 && dst.Kind == NodeOutput && len(dst.Filter) > 0 && !filterOverlaps(c.Filter, dst.Filter) {
		return "", simerr.Validationf("filter on %s never matches output node %s", c.SourceID, dst.ID)
	}
	if c.TransferRate <= 0 {
		c.TransferRate = 1
	}
	c.Active = true
	if nw.wouldCycle(c.TargetID, c.SourceID) {
		return "", simerr.Validationf("connection %s -> %s creates a cycle", c.SourceID, c.TargetID)
	}
	nw.connSeq++
	c.ID = fmt.Sprintf("conn-%04d", nw.connSeq)
	cc := c
	nw.conns[c.ID] = &cc
	return c.ID, nil
}

func filterOverlaps(a, b []resource.Type) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

// wouldCycle reports whether target already reaches source along active
// connections.
func (nw *Network) wouldCycle(from, to string) bool {
	seen := make(map[string]bool)
	var dfs func(id string) bool
	dfs = func(id string) bool {
		if id == to {
			return true
		}
		if seen[id] {
			return false
		}
		seen[id] = true
		for _, c := range nw.conns {
			if c.Active && c.SourceID == id && dfs(c.TargetID) {
				return true
			}
		}
		return false
	}
	return dfs(from)
}

// Disconnect removes a connection.
func (nw *Network) Disconnect(id string) error {
	if _, ok := nw.conns[id]; !ok {
		return simerr.NotFound("connection", id)
	}
	delete(nw.conns, id)
	return nil
}

// Connection returns an edge by id.
func (nw *Network) Connection(id string) (*Connection, error) {
	c, ok := nw.conns[id]
	if !ok {
		return nil, simerr.NotFound("connection", id)
	}
	return c, nil
}

// ConnectionIDs returns all connection ids, sorted.
func (nw *Network) ConnectionIDs() []string {
	ids := make([]string, 0, len(nw.conns))
	for id := range nw.conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SetDisabled toggles a node externally.
func (nw *Network) SetDisabled(id string, disabled bool) error {
	n, err := nw.Node(id)
	if err != nil {
		return err
	}
	n.Disabled = disabled
	return nil
}

// SetPowered toggles node power.
func (nw *Network) SetPowered(id string, powered bool) error {
	n, err := nw.Node(id)
	if err != nil {
		return err
	}
	n.Powered = powered
	return nil
}

// Seqs exposes the id counters for snapshots.
func (nw *Network) Seqs() (nodeSeq, connSeq uint64) { return nw.nodeSeq, nw.connSeq }

// SetSeqs restores the id counters.
func (nw *Network) SetSeqs(nodeSeq, connSeq uint64) {
	nw.nodeSeq, nw.connSeq = nodeSeq, connSeq
}

// RestoreNode reinstates a snapshot node without capacity checks.
func (nw *Network) RestoreNode(n Node) {
	if n.InputBuffer == nil {
		n.InputBuffer = NewBuffer(defaultBufferCapacity)
	}
	if n.OutputBuffer == nil {
		n.OutputBuffer = NewBuffer(defaultBufferCapacity)
	}
	n.InputBuffer.reindex()
	n.OutputBuffer.reindex()
	nc := n
	nw.nodes[n.ID] = &nc
}

// RestoreConnection reinstates a snapshot edge without revalidation; the
// snapshot was validated as a whole.
func (nw *Network) RestoreConnection(c Connection) {
	cc := c
	nw.conns[c.ID] = &cc
}

// Advance runs network steps on the update cadence.
func (nw *Network) Advance(tick uint64, dt float64) {
	nw.tick = tick
	nw.accum += dt
	step := nw.cfg.NetworkUpdateFrequencyS
	if step <= 0 {
		step = 0.1
	}
	for nw.accum >= step {
		nw.accum -= step
		nw.step(step)
	}

	nw.bottleneckAccum += dt
	interval := nw.cfg.BottleneckDetectionIntervalS
	if interval <= 0 {
		interval = 5
	}
	for nw.bottleneckAccum >= interval {
		nw.bottleneckAccum -= interval
		nw.detectBottlenecks()
	}
}

// step executes one network tick in the fixed order: flow, processing,
// state, metrics.
func (nw *Network) step(dt float64) {
	nw.elapsed += dt
	nw.flowStep(dt)
	for _, id := range nw.NodeIDs() {
		nw.processNode(nw.nodes[id], dt)
	}
	for _, id := range nw.NodeIDs() {
		nw.nodes[id].recordState()
	}
	for _, line := range nw.lines {
		line.elapsed += dt
	}
}

// flowStep moves items along active connections in id order. Splitter
// sources share their output evenly; the remainder goes to the lowest-id
// target.
func (nw *Network) flowStep(dt float64) {
	shares := nw.splitterShares(dt)
	for _, id := range nw.ConnectionIDs() {
		c := nw.conns[id]
		if !c.Active {
			continue
		}
		src, serr := nw.Node(c.SourceID)
		dst, derr := nw.Node(c.TargetID)
		if serr != nil || derr != nil {
			continue
		}

		c.carry += c.TransferRate * dt
		budget := int64(math.Floor(c.carry))
		if budget <= 0 {
			c.observeFlow(0, dt)
			continue
		}

		limit := budget
		if avail := src.OutputBuffer.Available(c.Filter); avail < limit {
			limit = avail
		}
		if free := dst.InputBuffer.FreeSpace(); free < limit {
			limit = free
		}
		if share, ok := shares[id]; ok && share < limit {
			limit = share
		}
		if limit <= 0 {
			c.observeFlow(0, dt)
			continue
		}

		moved := int64(0)
		for r, q := range src.OutputBuffer.drain(c.Filter, limit) {
			dst.InputBuffer.Add(r, q)
			moved += q
		}
		c.carry -= float64(moved)
		if c.carry > c.TransferRate {
			c.carry = c.TransferRate
		}
		c.observeFlow(moved, dt)
	}
}

// splitterShares computes per-connection caps for splitter sources: an
// even split of available output with the remainder on the lowest-id
// target.
func (nw *Network) splitterShares(dt float64) map[string]int64 {
	shares := make(map[string]int64)
	for _, nid := range nw.NodeIDs() {
		n := nw.nodes[nid]
		if n.Kind != NodeSplitter {
			continue
		}
		var outs []*Connection
		for _, cid := range nw.ConnectionIDs() {
			c := nw.conns[cid]
			if c.Active && c.SourceID == nid {
				outs = append(outs, c)
			}
		}
		if len(outs) == 0 {
			continue
		}
		sort.Slice(outs, func(i, j int) bool { return outs[i].TargetID < outs[j].TargetID })
		avail := n.OutputBuffer.Total()
		each := avail / int64(len(outs))
		rem := avail % int64(len(outs))
		for i, c := range outs {
			s := each
			if i == 0 {
				s += rem
			}
			shares[c.ID] = s
		}
	}
	return shares
}

// processNode advances one node and sets its observed state.
func (nw *Network) processNode(n *Node, dt float64) {
	switch {
	case n.Disabled:
		n.State = StateDisabled
		return
	case n.RequiresPower && !n.Powered:
		n.State = StateError
		return
	}

	switch n.Kind {
	case NodeInput:
		nw.runInput(n, dt)
	case NodeOutput:
		nw.runOutput(n, dt)
	case NodeProcessing:
		nw.runProcessing(n, dt)
	case NodeStorage, NodeMerger, NodeSplitter:
		nw.runPassthrough(n, dt, nil)
	case NodeFilter:
		nw.runPassthrough(n, dt, n.Filter)
	}
}

// runInput injects whitelisted resources from the external inventory.
func (nw *Network) runInput(n *Node, dt float64) {
	if len(n.Filter) == 0 {
		n.State = StateIdle
		return
	}
	n.ioAccum += n.ProcessingSpeed * dt
	budget := int64(math.Floor(n.ioAccum))
	if budget <= 0 {
		n.State = StateActive
		return
	}
	if free := n.OutputBuffer.FreeSpace(); free < budget {
		budget = free
	}
	if budget <= 0 {
		n.State = StateBlocked
		return
	}
	moved := int64(0)
	for _, r := range n.Filter {
		if moved >= budget {
			break
		}
		want := budget - moved
		have := nw.inv.Count(r)
		if have < want {
			want = have
		}
		if want <= 0 {
			continue
		}
		if nw.inv.Remove(r, want) {
			n.OutputBuffer.Add(r, want)
			moved += want
		}
	}
	n.ioAccum -= float64(moved)
	if n.ioAccum > n.ProcessingSpeed {
		n.ioAccum = n.ProcessingSpeed
	}
	if moved == 0 {
		n.State = StateStarved
		return
	}
	n.State = StateActive
}

// runOutput withdraws buffered items into the external inventory.
func (nw *Network) runOutput(n *Node, dt float64) {
	n.ioAccum += n.ProcessingSpeed * dt
	budget := int64(math.Floor(n.ioAccum))
	if budget <= 0 {
		n.State = StateActive
		return
	}
	if n.InputBuffer.Total() == 0 {
		n.State = StateStarved
		return
	}
	moved := int64(0)
	for r, q := range n.InputBuffer.drain(n.Filter, budget) {
		nw.inv.Add(r, q)
		moved += q
		nw.creditLines(n, r, q)
	}
	n.ioAccum -= float64(moved)
	if n.ioAccum > n.ProcessingSpeed {
		n.ioAccum = n.ProcessingSpeed
	}
	n.State = StateActive
}

// runProcessing advances an assigned recipe and completes batches.
func (nw *Network) runProcessing(n *Node, dt float64) {
	if n.RecipeID == "" {
		n.State = StateIdle
		return
	}
	r, err := nw.catalog.Recipe(n.RecipeID)
	if err != nil {
		n.State = StateError
		slog.Warn("automation node lost its recipe", "node", n.ID, "recipe", n.RecipeID)
		return
	}

	for _, in := range r.PrimaryInputs {
		if !n.InputBuffer.Has(in.Resource, in.Quantity*n.BatchSize) {
			n.State = StateStarved
			return
		}
	}
	var outTotal int64
	for _, out := range r.PrimaryOutputs {
		outTotal += out.Quantity * n.BatchSize
	}
	if n.OutputBuffer.FreeSpace() < outTotal {
		n.State = StateBlocked
		return
	}

	n.CurrentProgress += n.ProcessingSpeed * dt * (1 - r.AutomationPenalty)
	n.State = StateActive
	for n.CurrentProgress >= 1 {
		n.CurrentProgress -= 1
		nw.completeBatch(n, r)
		// Re-check the next batch is still possible.
		ready := true
		for _, in := range r.PrimaryInputs {
			if !n.InputBuffer.Has(in.Resource, in.Quantity*n.BatchSize) {
				ready = false
				break
			}
		}
		if !ready || n.OutputBuffer.FreeSpace() < outTotal {
			n.CurrentProgress = 0
			break
		}
	}
}

// completeBatch deducts inputs and emits outputs at automation-capped
// quality.
func (nw *Network) completeBatch(n *Node, r *crafting.Recipe) {
	for _, in := range r.PrimaryInputs {
		n.InputBuffer.Remove(in.Resource, in.Quantity*n.BatchSize)
	}
	q := crafting.CapTier(
		crafting.RollQuality(nw.cfg, r.BaseQualityChance, nil, nw.cfg.BaseCriticalChance, nw.rng),
		resource.QualityStandard,
	)
	for _, out := range r.PrimaryOutputs {
		qty := out.Quantity * n.BatchSize
		n.OutputBuffer.Add(out.Resource, qty)
		n.TotalItemsProcessed += qty
		nw.bus.Publish(nw.tick, bus.KindItemCrafted, bus.ItemCraftedPayload{
			RecipeID: r.ID,
			Resource: out.Resource.String(),
			Quantity: qty,
			Quality:  q.Tier.String(),
		})
	}
}

// runPassthrough moves items from input to output buffer, honouring an
// optional whitelist.
func (nw *Network) runPassthrough(n *Node, dt float64, filter []resource.Type) {
	n.ioAccum += n.ProcessingSpeed * dt
	budget := int64(math.Floor(n.ioAccum))
	if budget <= 0 {
		n.State = StateActive
		return
	}
	avail := n.InputBuffer.Available(filter)
	if avail == 0 {
		n.State = StateStarved
		return
	}
	if free := n.OutputBuffer.FreeSpace(); free < budget {
		budget = free
	}
	if budget <= 0 {
		n.State = StateBlocked
		return
	}
	moved := int64(0)
	for r, qn := range n.InputBuffer.drain(filter, budget) {
		n.OutputBuffer.Add(r, qn)
		moved += qn
	}
	n.ioAccum -= float64(moved)
	if n.ioAccum > n.ProcessingSpeed {
		n.ioAccum = n.ProcessingSpeed
	}
	n.State = StateActive
}
