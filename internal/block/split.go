package block

import (
	"github.com/pkg/errors"

	"pcodecore/internal/pcode"
	"pcodecore/internal/varnode"
)

// Split duplicates b along the single in-edge from `pred`, cloning all
// of b's operations and selecting, for every MULTIEQUAL, the one
// phi-input that corresponds to the split edge (spec.md §4.2 "node
// split... cloning all its ops and phi-inputs"). The clone has exactly
// one predecessor, so a phi with one input per predecessor edge cannot
// survive as a phi in the clone: it collapses to the single selected
// value, and every clone-side use of the phi's output is rewired to
// that value directly rather than to a spurious one-input MULTIEQUAL.
//
// The clone takes over the in-edge from pred and gets a copy of each of
// b's out-edges; b keeps its remaining in-edges and its own out-edges.
func (c *CFG) Split(b, pred *Block) (*Block, error) {
	idx := b.InEdgeIndex(pred)
	if idx < 0 {
		return nil, errors.New("block: Split: pred is not a predecessor")
	}

	clone := c.newBlock()
	clone.loRange, clone.hiRange = b.loRange, b.hiRange

	varMap := map[*varnode.Variable]*varnode.Variable{}
	for _, op := range b.Ops() {
		if op.Opcode() == pcode.MultiEqual && len(op.Inputs()) == len(b.Predecessors()) {
			selected := remap(varMap, op.Input(idx))
			if op.Output() != nil {
				varMap[op.Output()] = selected
			}
			continue
		}

		cop := c.store.CloneOp(op)
		for slot, in := range op.Inputs() {
			_ = c.store.SetInput(cop, slot, remap(varMap, in))
		}
		if op.Output() != nil {
			nv, _ := c.store.NewOutputOf(cop, op.Output().Storage())
			varMap[op.Output()] = nv
		}
		c.store.InsertEnd(cop, clone)
	}

	removedEdge := b.in[idx]
	c.removeEdge(removedEdge)
	c.addEdge(pred, clone)

	for _, e := range append([]*Edge(nil), b.out...) {
		c.addEdge(clone, e.To)
	}

	return clone, nil
}

// remap resolves in to its clone-side value, if op that defined it was
// itself cloned or folded away by a phi selection above; otherwise in
// is defined outside b (an entry input, a constant, or a value live
// into b from every predecessor alike) and passes through unchanged.
func remap(varMap map[*varnode.Variable]*varnode.Variable, in *varnode.Variable) *varnode.Variable {
	if in == nil {
		return nil
	}
	if mapped, ok := varMap[in]; ok {
		return mapped
	}
	return in
}
