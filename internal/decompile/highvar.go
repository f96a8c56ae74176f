// highvar.go implements spec.md §3's high-variable: the merge of SSA
// variables proven to be renamings of the same source-level storage,
// gated by a cover/interference check rather than storage equality
// alone — two same-storage variables whose live ranges overlap are two
// distinct source variables sharing one physical slot at different
// times, not one high-variable.
package decompile

import (
	"pcodecore/internal/block"
	"pcodecore/internal/types"
	"pcodecore/internal/varnode"
)

// Range is an inclusive span of operation positions within one basic
// block.
type Range struct {
	Start, End varnode.Address
}

func (r Range) overlaps(o Range) bool {
	return !r.End.Less(o.Start) && !o.End.Less(r.Start)
}

// Cover is a variable's or high-variable's liveness, recorded as at
// most one bounding range per basic block it touches (spec.md §3's
// cover, consulted for interference checks during merging).
type Cover struct {
	ranges map[int]Range
}

func newCover() *Cover { return &Cover{ranges: map[int]Range{}} }

// IsEmpty reports whether the cover touches no block at all — true only
// for a variable with neither a live definer nor any reader.
func (c *Cover) IsEmpty() bool { return len(c.ranges) == 0 }

func (c *Cover) touch(blockID int, at varnode.Address) {
	if r, ok := c.ranges[blockID]; ok {
		if at.Less(r.Start) {
			r.Start = at
		}
		if r.End.Less(at) {
			r.End = at
		}
		c.ranges[blockID] = r
		return
	}
	c.ranges[blockID] = Range{Start: at, End: at}
}

func (c *Cover) extend(blockID int, start, end varnode.Address) {
	c.touch(blockID, start)
	c.touch(blockID, end)
}

// Intersects reports whether c and o share a live position in any
// common block.
func (c *Cover) Intersects(o *Cover) bool {
	for id, r := range c.ranges {
		if or, ok := o.ranges[id]; ok && r.overlaps(or) {
			return true
		}
	}
	return false
}

func (c *Cover) merge(o *Cover) {
	for id, r := range o.ranges {
		c.extend(id, r.Start, r.End)
	}
}

// blockBounds is the position of a block's first and last operation,
// used to conservatively extend a cross-block-live variable's range to
// the edges of every block it passes through.
type blockBounds struct{ first, last varnode.Address }

func computeBlockBounds(cfg *block.CFG) map[int]blockBounds {
	out := map[int]blockBounds{}
	for _, blk := range cfg.Blocks() {
		ops := blk.Ops()
		if len(ops) == 0 {
			continue
		}
		out[blk.BlockID()] = blockBounds{first: ops[0].SeqNum(), last: ops[len(ops)-1].SeqNum()}
	}
	return out
}

// coverOf computes v's cover: in its defining block, from the definer's
// position to its last same-block reader, extended to the block's last
// op if any reader lies in a different block (the value survives to the
// block's exit); in every other block holding a reader, from that
// block's first op to the reader (the value is assumed live from block
// entry, since no dataflow liveness pass narrows this further).
func coverOf(v *varnode.Variable, bounds map[int]blockBounds) *Cover {
	c := newCover()
	def := v.Definer()
	readers := v.Readers()

	hasDefBlock := def != nil && def.Block() != nil
	var defBlockID int
	if hasDefBlock {
		defBlockID = def.Block().BlockID()
		end := def.SeqNum()
		liveOut := false
		for _, r := range readers {
			if r.Block() == nil {
				continue
			}
			if r.Block().BlockID() == defBlockID {
				if end.Less(r.SeqNum()) {
					end = r.SeqNum()
				}
			} else {
				liveOut = true
			}
		}
		if liveOut {
			if b, ok := bounds[defBlockID]; ok && end.Less(b.last) {
				end = b.last
			}
		}
		c.extend(defBlockID, def.SeqNum(), end)
	}

	for _, r := range readers {
		if r.Block() == nil {
			continue
		}
		id := r.Block().BlockID()
		if hasDefBlock && id == defBlockID {
			continue
		}
		start := r.SeqNum()
		if b, ok := bounds[id]; ok && b.first.Less(start) {
			start = b.first
		}
		c.extend(id, start, r.SeqNum())
	}
	return c
}

// HighVariable is the merge of every SSA variable proven to be a
// renaming of the same source-level storage (spec.md §3).
type HighVariable struct {
	id      uint64
	storage varnode.Storage
	members []*varnode.Variable
	cover   *Cover
	dtype   types.Type
}

func (h *HighVariable) ID() uint64                   { return h.id }
func (h *HighVariable) Storage() varnode.Storage     { return h.storage }
func (h *HighVariable) Cover() *Cover                { return h.cover }
func (h *HighVariable) Members() []*varnode.Variable { return h.members }
func (h *HighVariable) Type() types.Type             { return h.dtype }

// buildHighVariables groups the store's SSA variables by storage, then
// splits each storage's SSA family into one high-variable per
// non-interfering subset: a variable joins the first existing group in
// definition order whose cover it does not intersect, or starts a new
// group otherwise (spec.md §3's cover/interference merge check).
func buildHighVariables(store *varnode.Store, bounds map[int]blockBounds) []*HighVariable {
	grouped := map[varnode.Storage][]*varnode.Variable{}
	var order []varnode.Storage
	for _, v := range store.ByStorage() {
		if v.IsConstant() {
			continue
		}
		st := v.Storage()
		if _, ok := grouped[st]; !ok {
			order = append(order, st)
		}
		grouped[st] = append(grouped[st], v)
	}

	var highs []*HighVariable
	var nextID uint64
	for _, st := range order {
		var groups []*HighVariable
		for _, v := range grouped[st] {
			vc := coverOf(v, bounds)
			placed := false
			for _, g := range groups {
				if vc.IsEmpty() || g.cover.IsEmpty() || !vc.Intersects(g.cover) {
					g.members = append(g.members, v)
					g.cover.merge(vc)
					if g.dtype == nil {
						if t, ok := v.Type().(types.Type); ok {
							g.dtype = t
						}
					}
					placed = true
					break
				}
			}
			if !placed {
				nextID++
				g := &HighVariable{id: nextID, storage: st, cover: newCover()}
				g.members = append(g.members, v)
				g.cover.merge(vc)
				if t, ok := v.Type().(types.Type); ok {
					g.dtype = t
				}
				groups = append(groups, g)
			}
		}
		highs = append(highs, groups...)
	}
	return highs
}
