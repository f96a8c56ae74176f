package heritage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pcodecore/internal/block"
	"pcodecore/internal/pcode"
	"pcodecore/internal/varnode"
)

func findBlock(t *testing.T, cfg *block.CFG, addr uint64) *block.Block {
	t.Helper()
	for _, b := range cfg.Blocks() {
		if lo, _ := b.AddressRange(); lo == addr {
			return b
		}
	}
	t.Fatalf("no block at %#x", addr)
	return nil
}

// TestPhiPlacementDiamond builds a diamond CFG — entry branching into two
// arms that each write the same register storage differently, rejoining
// at a block that reads it — and confirms heritage places exactly one
// MULTIEQUAL at the join, wired to both arms' definitions in predecessor
// order, and that the join's read is rewritten to consume it.
func TestPhiPlacementDiamond(t *testing.T) {
	store := varnode.New()
	regStorage := varnode.Storage{Space: varnode.SpaceRegister, Offset: 0x100, Size: 4}

	entryOp := store.NewOp(pcode.CBranch, 0, varnode.Address{Offset: 0x1000})

	armAOp := store.NewOp(pcode.Copy, 1, varnode.Address{Offset: 0x1004})
	require.NoError(t, store.SetInput(armAOp, 0, store.NewConstant(1, 4)))
	armAOut, err := store.NewOutputOf(armAOp, regStorage)
	require.NoError(t, err)

	armDOp := store.NewOp(pcode.Copy, 1, varnode.Address{Offset: 0x2000})
	require.NoError(t, store.SetInput(armDOp, 0, store.NewConstant(2, 4)))
	armDOut, err := store.NewOutputOf(armDOp, regStorage)
	require.NoError(t, err)

	joinOp := store.NewOp(pcode.IntAdd, 2, varnode.Address{Offset: 0x3000})
	require.NoError(t, store.SetInput(joinOp, 0, store.NewInput(regStorage)))
	require.NoError(t, store.SetInput(joinOp, 1, store.NewConstant(3, 4)))
	_, err = store.NewOutputOf(joinOp, varnode.Storage{Space: varnode.SpaceUnique, Offset: 1, Size: 4})
	require.NoError(t, err)

	stream := []block.RawOp{
		{Op: entryOp, FallsThrough: true, BranchTargets: []uint64{0x2000}},
		{Op: armAOp, FallsThrough: false, BranchTargets: []uint64{0x3000}},
		{Op: armDOp, FallsThrough: false, BranchTargets: []uint64{0x3000}},
		{Op: joinOp, FallsThrough: false},
	}

	cfg, err := block.Build(store, stream)
	require.NoError(t, err)
	cfg.ComputeDominators()

	builder := NewBuilder(store, cfg, nil)
	phiCount, err := builder.RunPass(varnode.SpaceRegister)
	require.NoError(t, err)
	assert.Equal(t, 1, phiCount)

	join := findBlock(t, cfg, 0x3000)
	var phi *varnode.Operation
	for _, op := range join.Ops() {
		if op.Opcode() == pcode.MultiEqual {
			phi = op
		}
	}
	require.NotNil(t, phi, "expected a MULTIEQUAL at the join block")
	require.Equal(t, 2, phi.NumInputs())
	assert.Same(t, armAOut, phi.Input(0))
	assert.Same(t, armDOut, phi.Input(1))

	assert.Same(t, phi.Output(), joinOp.Input(0))
}

func TestRunPassSkipsIneligibleSpace(t *testing.T) {
	store := varnode.New()
	cfg, err := block.Build(store, nil)
	require.NoError(t, err)

	builder := NewBuilder(store, cfg, []SpacePolicy{{Space: varnode.SpaceRegister, Delay: 5}})
	n, err := builder.RunPass(varnode.SpaceRegister)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestDCEEligibleRequiresDelayAfterFirstHeritage(t *testing.T) {
	store := varnode.New()
	cfg, err := block.Build(store, nil)
	require.NoError(t, err)

	builder := NewBuilder(store, cfg, []SpacePolicy{{Space: varnode.SpaceRegister, DeadCodeDelay: 2}})
	assert.False(t, builder.DCEEligible(varnode.SpaceRegister))

	_, err = builder.RunPass(varnode.SpaceRegister)
	require.NoError(t, err)
	assert.False(t, builder.DCEEligible(varnode.SpaceRegister))

	_, err = builder.RunPass(varnode.SpaceRegister)
	require.NoError(t, err)
	assert.False(t, builder.DCEEligible(varnode.SpaceRegister))

	_, err = builder.RunPass(varnode.SpaceRegister)
	require.NoError(t, err)
	assert.True(t, builder.DCEEligible(varnode.SpaceRegister))
}

func TestHeritagedAtTracksMostRecentPass(t *testing.T) {
	store := varnode.New()
	regStorage := varnode.Storage{Space: varnode.SpaceRegister, Offset: 0x200, Size: 4}
	blk := stubBlock{id: 1}

	op := store.NewOp(pcode.Copy, 1, varnode.Address{Offset: 0x1000})
	require.NoError(t, store.SetInput(op, 0, store.NewConstant(9, 4)))
	_, err := store.NewOutputOf(op, regStorage)
	require.NoError(t, err)
	store.InsertEnd(op, blk)

	cfg, err := block.Build(store, nil)
	require.NoError(t, err)
	builder := NewBuilder(store, cfg, nil)

	assert.Equal(t, 0, builder.HeritagedAt(regStorage))
	_, err = builder.RunPass(varnode.SpaceRegister)
	require.NoError(t, err)
	assert.Equal(t, 1, builder.HeritagedAt(regStorage))
}

type stubBlock struct{ id int }

func (b stubBlock) BlockID() int { return b.id }
