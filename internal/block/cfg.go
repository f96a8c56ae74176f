package block

import (
	"sort"

	"github.com/pkg/errors"

	"pcodecore/internal/pcode"
	"pcodecore/internal/varnode"
)

// ErrBadData is raised when the raw stream is disconnected or its
// sequence numbers are inconsistent — fatal to the function, not the
// process (spec.md §4.2 failure semantics).
var ErrBadData = errors.New("block: bad control-flow data")

// RawOp is one entry in the translator's output stream: an operation
// plus the flow information the translator alone knows (fall-through
// and branch targets are not otherwise recoverable from the op itself
// once BRANCHIND targets have not yet been resolved).
type RawOp struct {
	Op            *varnode.Operation
	FallsThrough  bool
	BranchTargets []uint64
}

// CFG owns every basic block for one function.
type CFG struct {
	store  *varnode.Store
	blocks []*Block
	nextID int

	entry *Block
}

func (c *CFG) Store() *varnode.Store { return c.store }
func (c *CFG) Blocks() []*Block      { return c.blocks }
func (c *CFG) Entry() *Block         { return c.entry }

func (c *CFG) newBlock() *Block {
	c.nextID++
	b := &Block{id: c.nextID, store: c.store}
	c.blocks = append(c.blocks, b)
	return b
}

// Build partitions a raw operation stream into maximal straight-line
// runs and materializes block boundaries at branch targets and after
// branch/call-return operations (spec.md §4.2 "initial build").
func Build(store *varnode.Store, stream []RawOp) (*CFG, error) {
	if len(stream) == 0 {
		return &CFG{store: store}, nil
	}
	sorted := append([]RawOp(nil), stream...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Op.SeqNum().Less(sorted[j].Op.SeqNum())
	})
	for i := 1; i < len(sorted); i++ {
		if !sorted[i-1].Op.SeqNum().Less(sorted[i].Op.SeqNum()) {
			return nil, errors.Wrapf(ErrBadData, "non-increasing sequence number at %s", sorted[i].Op.SeqNum())
		}
	}

	// A leader starts a new block: the stream's first op, every
	// recorded branch target, and every op immediately following a
	// branch or call (spec.md §4.2 "initial build": "maximal
	// straight-line runs ... block boundaries at branch targets and
	// after branch/call-return ops").
	leaders := map[uint64]bool{sorted[0].Op.SeqNum().Offset: true}
	for _, r := range sorted {
		for _, t := range r.BranchTargets {
			leaders[t] = true
		}
	}
	for i := 1; i < len(sorted); i++ {
		prevOp := sorted[i-1].Op
		if prevOp.Opcode().IsBranch() || prevOp.Opcode().IsCall() {
			leaders[sorted[i].Op.SeqNum().Offset] = true
		}
	}

	c := &CFG{store: store}
	var cur *Block
	blockByLeader := map[uint64]*Block{}

	for _, r := range sorted {
		addr := r.Op.SeqNum().Offset
		if b, already := blockByLeader[addr]; already {
			cur = b
		} else if leaders[addr] {
			cur = c.newBlock()
			cur.loRange = addr
			blockByLeader[addr] = cur
		}
		store.InsertEnd(r.Op, cur)
		cur.hiRange = addr
	}
	if len(c.blocks) > 0 {
		c.entry = c.blocks[0]
	}

	rawByOp := map[*varnode.Operation]RawOp{}
	for _, r := range sorted {
		rawByOp[r.Op] = r
	}
	for _, b := range c.blocks {
		ops := b.Ops()
		if len(ops) == 0 {
			continue
		}
		last := ops[len(ops)-1]
		raw := rawByOp[last]
		for _, t := range raw.BranchTargets {
			target := blockByLeader[t]
			if target == nil {
				continue
			}
			c.addEdge(b, target)
		}
		if raw.FallsThrough {
			// fall-through target is the block whose lo range is the
			// address immediately following this block's last op.
			if idx := indexOfBlock(c.blocks, b); idx >= 0 && idx+1 < len(c.blocks) {
				c.addEdge(b, c.blocks[idx+1])
			}
		}
	}

	return c, nil
}

func indexOfBlock(blocks []*Block, b *Block) int {
	for i, x := range blocks {
		if x == b {
			return i
		}
	}
	return -1
}

func (c *CFG) addEdge(from, to *Block) *Edge {
	e := &Edge{From: from, To: to}
	from.out = append(from.out, e)
	to.in = append(to.in, e)
	return e
}

// removeEdge removes e from its source's out-edges and its target's
// in-edges.
func (c *CFG) removeEdge(e *Edge) {
	e.From.out = removeEdgePtr(e.From.out, e)
	e.To.in = removeEdgePtr(e.To.in, e)
}

func removeEdgePtr(edges []*Edge, target *Edge) []*Edge {
	out := edges[:0]
	for _, e := range edges {
		if e != target {
			out = append(out, e)
		}
	}
	return out
}

// RemoveUnreachable deletes every block with no in-edges except the
// entry, cascading to their contained operations (spec.md §4.2
// "unreachable removal").
func (c *CFG) RemoveUnreachable() {
	changed := true
	for changed {
		changed = false
		for _, b := range c.blocks {
			if b == c.entry || len(b.in) > 0 {
				continue
			}
			c.deleteBlock(b)
			changed = true
			break
		}
	}
}

func (c *CFG) deleteBlock(b *Block) {
	for _, e := range append([]*Edge(nil), b.out...) {
		c.removeEdge(e)
	}
	for _, e := range append([]*Edge(nil), b.in...) {
		c.removeEdge(e)
	}
	for _, op := range b.Ops() {
		c.store.Detach(op)
		_ = c.store.DestroyRaw(op)
	}
	c.store.DropBlockList(b)
	c.blocks = removeBlockPtr(c.blocks, b)
}

func removeBlockPtr(blocks []*Block, target *Block) []*Block {
	out := blocks[:0]
	for _, b := range blocks {
		if b != target {
			out = append(out, b)
		}
	}
	return out
}

// RemoveNoOpBlocks removes any non-entry block containing only an
// unconditional branch by redirecting every one of its in-edges to its
// single out-edge's target (spec.md §4.2 "no-op block removal"). A
// block that branches to itself is not removed.
func (c *CFG) RemoveNoOpBlocks() {
	changed := true
	for changed {
		changed = false
		for _, b := range c.blocks {
			if b == c.entry {
				continue
			}
			ops := b.Ops()
			if len(ops) != 1 || ops[0].Opcode() != pcode.Branch {
				continue
			}
			if len(b.out) != 1 {
				continue
			}
			target := b.out[0].To
			if target == b {
				// self-loop no-op block: nothing downstream to
				// redirect to but itself; leave it for structuring to
				// report as an infinite loop rather than deleting it.
				continue
			}
			for _, e := range append([]*Edge(nil), b.in...) {
				c.removeEdge(e)
				c.addEdge(e.From, target)
			}
			c.deleteBlock(b)
			changed = true
			break
		}
	}
}

// RemoveBranch converts a conditional branch to unconditional by
// deleting one of its out-edges (spec.md §4.2 "branch removal / push").
func (c *CFG) RemoveBranch(b *Block, keep *Block) error {
	if len(b.out) != 2 {
		return errors.New("block: RemoveBranch requires exactly two out-edges")
	}
	var drop *Edge
	for _, e := range b.out {
		if e.To != keep {
			drop = e
		}
	}
	if drop == nil {
		return errors.New("block: RemoveBranch: keep is not a successor")
	}
	c.removeEdge(drop)
	ops := b.Ops()
	if n := len(ops); n > 0 && ops[n-1].Opcode() == pcode.CBranch {
		c.store.SetOpcode(ops[n-1], pcode.Branch)
	}
	return nil
}

// EdgeSwitch redirects one out-edge of b from oldTo to newTo (spec.md
// §4.2 "edge switch"). It only relinks the edge: MULTIEQUAL operand
// slots in oldTo and newTo are not updated.
func (c *CFG) EdgeSwitch(b, oldTo, newTo *Block) error {
	idx := b.InEdgeIndexOut(oldTo)
	if idx < 0 {
		return errors.New("block: EdgeSwitch: oldTo is not a successor")
	}
	e := b.out[idx]
	oldTo.in = removeEdgePtr(oldTo.in, e)
	e.To = newTo
	newTo.in = append(newTo.in, e)
	return nil
}

// InEdgeIndexOut returns the index of the out-edge to `to`, or -1.
func (b *Block) InEdgeIndexOut(to *Block) int {
	for i, e := range b.out {
		if e.To == to {
			return i
		}
	}
	return -1
}
