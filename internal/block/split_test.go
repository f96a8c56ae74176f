package block

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pcodecore/internal/pcode"
	"pcodecore/internal/varnode"
)

// TestSplitFoldsMultiEqualToSelectedEdge builds a diamond (entry falling
// through to armA, branching to armD, both rejoining at join) with a
// MULTIEQUAL at the join reading each arm's definition, then splits join
// along the armA edge. The clone has exactly one predecessor, so its
// phi cannot survive with two inputs: it must fold away entirely, and
// every clone-side reader of the phi's output must be rewired straight
// to the value that arrived along the split edge.
func TestSplitFoldsMultiEqualToSelectedEdge(t *testing.T) {
	store := varnode.New()
	reg := varnode.Storage{Space: varnode.SpaceRegister, Offset: 0x100, Size: 4}

	entryOp := store.NewOp(pcode.CBranch, 0, varnode.Address{Offset: 0x1000})

	defA := store.NewOp(pcode.Copy, 1, varnode.Address{Offset: 0x1004})
	require.NoError(t, store.SetInput(defA, 0, store.NewConstant(1, 4)))
	armAOut, err := store.NewOutputOf(defA, reg)
	require.NoError(t, err)
	armAOp := store.NewOp(pcode.Branch, 0, varnode.Address{Offset: 0x1008})

	defD := store.NewOp(pcode.Copy, 1, varnode.Address{Offset: 0x2000})
	require.NoError(t, store.SetInput(defD, 0, store.NewConstant(2, 4)))
	armDOut, err := store.NewOutputOf(defD, reg)
	require.NoError(t, err)
	armDOp := store.NewOp(pcode.Branch, 0, varnode.Address{Offset: 0x2004})

	phi := store.NewOp(pcode.MultiEqual, 2, varnode.Address{Offset: 0x3000})
	require.NoError(t, store.SetInput(phi, 0, armAOut))
	require.NoError(t, store.SetInput(phi, 1, armDOut))
	phiOut, err := store.NewOutputOf(phi, reg)
	require.NoError(t, err)

	joinOp := store.NewOp(pcode.Return, 1, varnode.Address{Offset: 0x3004})
	require.NoError(t, store.SetInput(joinOp, 0, phiOut))

	stream := []RawOp{
		{Op: entryOp, FallsThrough: true, BranchTargets: []uint64{0x2000}},
		{Op: defA, FallsThrough: false},
		{Op: armAOp, FallsThrough: false, BranchTargets: []uint64{0x3000}},
		{Op: defD, FallsThrough: false},
		{Op: armDOp, FallsThrough: false, BranchTargets: []uint64{0x3000}},
		{Op: phi, FallsThrough: false},
		{Op: joinOp, FallsThrough: false},
	}

	cfg, err := Build(store, stream)
	require.NoError(t, err)

	var armA, join *Block
	for _, b := range cfg.Blocks() {
		lo, _ := b.AddressRange()
		switch lo {
		case 0x1004:
			armA = b
		case 0x3000:
			join = b
		}
	}
	require.NotNil(t, armA)
	require.NotNil(t, join)
	require.Len(t, join.In(), 2)
	require.Same(t, armA, join.In()[0].From, "armA must be predecessor 0 for phi.Input(0) to line up")

	clone, err := cfg.Split(join, armA)
	require.NoError(t, err)

	require.Len(t, clone.In(), 1)
	assert.Same(t, armA, clone.In()[0].From)

	cloneOps := clone.Ops()
	require.Len(t, cloneOps, 1, "the phi folds away entirely, leaving only the cloned RETURN")
	assert.Equal(t, pcode.Return, cloneOps[0].Opcode())
	assert.Same(t, armAOut, cloneOps[0].Input(0), "clone-side use of the phi output must resolve to armA's value")

	// The original block is untouched: its phi still carries both inputs.
	require.Len(t, join.In(), 1)
	assert.Equal(t, 2, phi.NumInputs())
	assert.Same(t, armAOut, phi.Input(0))
	assert.Same(t, armDOut, phi.Input(1))
}
