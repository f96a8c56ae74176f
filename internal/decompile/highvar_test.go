package decompile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pcodecore/internal/pcode"
	"pcodecore/internal/varnode"
)

func highVariablesForStorage(highs []*HighVariable, st varnode.Storage) []*HighVariable {
	var out []*HighVariable
	for _, h := range highs {
		if h.Storage() == st {
			out = append(out, h)
		}
	}
	return out
}

// TestBuildHighVariablesMergesNonInterferingSameStorage covers the
// routine case a high-variable exists to model: a register is written,
// consumed, and then reused by an unrelated later value within the same
// block. The two SSA variables never have a live position in common, so
// they merge into a single high-variable.
func TestBuildHighVariablesMergesNonInterferingSameStorage(t *testing.T) {
	store := varnode.New()
	reg := varnode.Storage{Space: varnode.SpaceRegister, Offset: 0x10, Size: 4}

	defA := store.NewOp(pcode.Copy, 1, varnode.Address{Offset: 0x1000})
	require.NoError(t, store.SetInput(defA, 0, store.NewConstant(1, 4)))
	a, err := store.NewOutputOf(defA, reg)
	require.NoError(t, err)

	readA := store.NewOp(pcode.IntAdd, 2, varnode.Address{Offset: 0x1004})
	require.NoError(t, store.SetInput(readA, 0, a))
	require.NoError(t, store.SetInput(readA, 1, store.NewConstant(2, 4)))
	_, err = store.NewOutputOf(readA, varnode.Storage{Space: varnode.SpaceUnique, Offset: 1, Size: 4})
	require.NoError(t, err)

	defB := store.NewOp(pcode.Copy, 1, varnode.Address{Offset: 0x1008})
	require.NoError(t, store.SetInput(defB, 0, store.NewConstant(3, 4)))
	b, err := store.NewOutputOf(defB, reg)
	require.NoError(t, err)

	retOp := store.NewOp(pcode.Return, 1, varnode.Address{Offset: 0x100c})
	require.NoError(t, store.SetInput(retOp, 0, b))

	insertAll(store, defA, readA, defB, retOp)

	bounds := map[int]blockBounds{1: {first: defA.SeqNum(), last: retOp.SeqNum()}}
	highs := buildHighVariables(store, bounds)

	group := highVariablesForStorage(highs, reg)
	require.Len(t, group, 1, "non-interfering same-storage variables must merge into one high-variable")
	assert.ElementsMatch(t, []*varnode.Variable{a, b}, group[0].Members())
}

// TestBuildHighVariablesSplitsInterferingSameStorage covers the false-
// merge case a cover/interference check exists to catch: one variable
// crosses into a block where a second, unrelated variable already
// occupies the same storage and is simultaneously live. The two must
// stay separate high-variables even though they share a storage slot.
func TestBuildHighVariablesSplitsInterferingSameStorage(t *testing.T) {
	store := varnode.New()
	reg := varnode.Storage{Space: varnode.SpaceRegister, Offset: 0x20, Size: 4}

	defA := store.NewOp(pcode.Copy, 1, varnode.Address{Offset: 0x1000})
	require.NoError(t, store.SetInput(defA, 0, store.NewConstant(9, 4)))
	a, err := store.NewOutputOf(defA, reg)
	require.NoError(t, err)

	defB := store.NewOp(pcode.Copy, 1, varnode.Address{Offset: 0x2000})
	require.NoError(t, store.SetInput(defB, 0, store.NewConstant(11, 4)))
	b, err := store.NewOutputOf(defB, reg)
	require.NoError(t, err)

	readA := store.NewOp(pcode.IntAdd, 2, varnode.Address{Offset: 0x2004})
	require.NoError(t, store.SetInput(readA, 0, a))
	require.NoError(t, store.SetInput(readA, 1, store.NewConstant(1, 4)))
	_, err = store.NewOutputOf(readA, varnode.Storage{Space: varnode.SpaceUnique, Offset: 1, Size: 4})
	require.NoError(t, err)

	readB := store.NewOp(pcode.IntAdd, 2, varnode.Address{Offset: 0x2008})
	require.NoError(t, store.SetInput(readB, 0, b))
	require.NoError(t, store.SetInput(readB, 1, store.NewConstant(2, 4)))
	_, err = store.NewOutputOf(readB, varnode.Storage{Space: varnode.SpaceUnique, Offset: 2, Size: 4})
	require.NoError(t, err)

	blk1 := stubBlock{id: 1}
	blk2 := stubBlock{id: 2}
	store.InsertEnd(defA, blk1)
	store.InsertEnd(defB, blk2)
	store.InsertEnd(readA, blk2)
	store.InsertEnd(readB, blk2)

	bounds := map[int]blockBounds{
		1: {first: defA.SeqNum(), last: defA.SeqNum()},
		2: {first: defB.SeqNum(), last: readB.SeqNum()},
	}
	highs := buildHighVariables(store, bounds)

	group := highVariablesForStorage(highs, reg)
	require.Len(t, group, 2, "variables live at the same time over the same storage must not merge")
}
