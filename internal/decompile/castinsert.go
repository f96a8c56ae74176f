// castinsert.go implements the cast-insertion step of spec.md §4.6's
// action sequence, run after high-variable construction and merging:
// wherever a value flows into an operation but carries a different
// type than the high-variable it was just merged into, an explicit
// CAST op is spliced in ahead of the consuming operation so the
// mismatch is visible in the IR rather than silently tolerated.
package decompile

import (
	"pcodecore/internal/pcode"
	"pcodecore/internal/types"
	"pcodecore/internal/varnode"
)

// insertCasts walks every alive operation's inputs and, for any input
// whose own propagated type differs (in metatype or size) from its
// high-variable's canonical type, splices a CAST between the input and
// the consuming operation. MULTIEQUAL is skipped: its inputs arrive
// from distinct predecessor blocks, and a cast belongs at the end of
// the producing predecessor, not immediately before the join — a
// placement this pass does not attempt.
func insertCasts(store *varnode.Store, highs []*HighVariable) int {
	canonical := map[*varnode.Variable]types.Type{}
	for _, h := range highs {
		if h.dtype == nil {
			continue
		}
		for _, m := range h.members {
			canonical[m] = h.dtype
		}
	}

	inserted := 0
	for _, op := range store.AliveOps() {
		if op.Opcode() == pcode.MultiEqual || op.Opcode() == pcode.Cast {
			continue
		}
		for slot, in := range op.Inputs() {
			if in == nil || in.IsConstant() {
				continue
			}
			want, ok := canonical[in]
			if !ok || want == nil {
				continue
			}
			have, ok := in.Type().(types.Type)
			if ok && have != nil && have.Metatype() == want.Metatype() && have.Size() == want.Size() {
				continue
			}
			if spliceCast(store, op, slot, in, want) {
				inserted++
			}
		}
	}
	return inserted
}

// spliceCast inserts `CAST in -> want` immediately before op and
// rewires op's slot to read the cast's output instead of in directly.
func spliceCast(store *varnode.Store, op *varnode.Operation, slot int, in *varnode.Variable, want types.Type) bool {
	castOp := store.NewOp(pcode.Cast, 1, op.SeqNum())
	if err := store.SetInput(castOp, 0, in); err != nil {
		return false
	}
	castOut, err := store.NewOutputOf(castOp, in.Storage())
	if err != nil {
		return false
	}
	castOut.SetType(want)
	if err := store.InsertBefore(castOp, op); err != nil {
		return false
	}
	return store.SetInput(op, slot, castOut) == nil
}
