package block

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pcodecore/internal/pcode"
	"pcodecore/internal/varnode"
)

func rawOp(store *varnode.Store, opcode pcode.Opcode, addr uint64, fallsThrough bool, targets ...uint64) RawOp {
	op := store.NewOp(opcode, 0, varnode.Address{Offset: addr})
	return RawOp{Op: op, FallsThrough: fallsThrough, BranchTargets: targets}
}

func TestBuildPartitionsBasicBlocks(t *testing.T) {
	store := varnode.New()
	stream := []RawOp{
		rawOp(store, pcode.CBranch, 0x1000, true, 0x2000),
		rawOp(store, pcode.Branch, 0x1004, false, 0x3000),
		rawOp(store, pcode.Branch, 0x2000, false, 0x3000),
		rawOp(store, pcode.Return, 0x3000, false),
	}

	cfg, err := Build(store, stream)
	require.NoError(t, err)
	require.Len(t, cfg.Blocks(), 4)

	entry := cfg.Entry()
	lo, _ := entry.AddressRange()
	assert.Equal(t, uint64(0x1000), lo)
	assert.Len(t, entry.Out(), 2)

	var join *Block
	for _, b := range cfg.Blocks() {
		if lo, _ := b.AddressRange(); lo == 0x3000 {
			join = b
		}
	}
	require.NotNil(t, join)
	assert.Len(t, join.In(), 2)
	assert.Empty(t, join.Out())
}

func TestClassifyEdgesFindsBackEdgeAndLoopDepth(t *testing.T) {
	store := varnode.New()
	stream := []RawOp{
		rawOp(store, pcode.CBranch, 0x1000, true, 0x3000),
		rawOp(store, pcode.Branch, 0x1004, false, 0x1000),
		rawOp(store, pcode.Return, 0x3000, false),
	}

	cfg, err := Build(store, stream)
	require.NoError(t, err)
	cfg.ComputeDominators()
	backEdges := cfg.ClassifyEdges()

	require.Len(t, backEdges, 1)
	assert.Equal(t, EdgeBack, backEdges[0].Kind)
	loLo, _ := backEdges[0].From.AddressRange()
	assert.Equal(t, uint64(0x1004), loLo)

	headers := cfg.LoopHeaders(backEdges)
	require.Len(t, headers, 1)
	headerLo, _ := headers[0].AddressRange()
	assert.Equal(t, uint64(0x1000), headerLo)

	assert.Equal(t, 1, headers[0].LoopDepth())
	assert.Equal(t, 1, backEdges[0].From.LoopDepth())
}

func TestStructureIfThenElse(t *testing.T) {
	store := varnode.New()
	stream := []RawOp{
		rawOp(store, pcode.CBranch, 0x1000, true, 0x2000),
		rawOp(store, pcode.Branch, 0x1004, false, 0x3000),
		rawOp(store, pcode.Branch, 0x2000, false, 0x3000),
		rawOp(store, pcode.Return, 0x3000, false),
	}

	cfg, err := Build(store, stream)
	require.NoError(t, err)
	cfg.ComputeDominators()

	root, gotoTargets := cfg.Structure()
	require.NotNil(t, root)
	assert.Empty(t, gotoTargets)
	require.Equal(t, StructSequence, root.Kind)
	require.Len(t, root.Children, 2)
	assert.Equal(t, StructIfThenElse, root.Children[0].Kind)
	assert.Len(t, root.Children[0].Children, 3)
}

func TestStructureIrreducibleRemnant(t *testing.T) {
	store := varnode.New()
	stream := []RawOp{
		rawOp(store, pcode.CBranch, 0x1000, true, 0x3000),
		rawOp(store, pcode.Branch, 0x1004, false, 0x3000),
		rawOp(store, pcode.Branch, 0x3000, false, 0x1004),
	}

	cfg, err := Build(store, stream)
	require.NoError(t, err)
	cfg.ComputeDominators()

	root, gotoTargets := cfg.Structure()
	require.NotNil(t, root)
	assert.Equal(t, StructGoto, root.Kind)
	assert.NotEmpty(t, gotoTargets)
}
