package decompile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pcodecore/internal/pcode"
	"pcodecore/internal/types"
	"pcodecore/internal/varnode"
)

func newTestTypeFactory() *types.Factory {
	return types.NewFactory(types.DataOrganization{PointerSize: 8, IntSize: 4, LongSize: 8, DefaultAlign: 8})
}

// TestPropagateTypesThroughCopyChain covers the fixed-point loop's core
// job: a constant with no prior typed context flows through two COPYs
// to a RETURN, and every stage along the chain ends up typed, including
// the constant itself, which starts out with no type at all.
func TestPropagateTypesThroughCopyChain(t *testing.T) {
	store := varnode.New()
	factory := newTestTypeFactory()

	c := store.NewConstant(7, 4)
	require.Nil(t, c.Type())

	copy1 := store.NewOp(pcode.Copy, 1, varnode.Address{Offset: 0x1000})
	require.NoError(t, store.SetInput(copy1, 0, c))
	mid, err := store.NewOutputOf(copy1, varnode.Storage{Space: varnode.SpaceRegister, Offset: 0x10, Size: 4})
	require.NoError(t, err)

	copy2 := store.NewOp(pcode.Copy, 1, varnode.Address{Offset: 0x1004})
	require.NoError(t, store.SetInput(copy2, 0, mid))
	final, err := store.NewOutputOf(copy2, varnode.Storage{Space: varnode.SpaceRegister, Offset: 0x14, Size: 4})
	require.NoError(t, err)

	insertAll(store, copy1, copy2)

	n := propagateTypes(store, factory)
	assert.Greater(t, n, 0)

	require.NotNil(t, c.Type())
	require.NotNil(t, mid.Type())
	require.NotNil(t, final.Type())
	assert.Equal(t, types.UInt, mid.Type().(types.Type).Metatype())
	assert.Equal(t, mid.Type(), final.Type(), "a bare COPY propagates its input's type verbatim")
}

// TestPropagateTypesBoolOutputFromComparison confirms a comparison
// opcode's output is typed bool regardless of its operands, per
// pcode.Describe's BoolOutput flag.
func TestPropagateTypesBoolOutputFromComparison(t *testing.T) {
	store := varnode.New()
	factory := newTestTypeFactory()

	cmp := store.NewOp(pcode.IntLess, 2, varnode.Address{Offset: 0x1000})
	require.NoError(t, store.SetInput(cmp, 0, store.NewConstant(1, 4)))
	require.NoError(t, store.SetInput(cmp, 1, store.NewConstant(2, 4)))
	out, err := store.NewOutputOf(cmp, varnode.Storage{Space: varnode.SpaceUnique, Offset: 1, Size: 1})
	require.NoError(t, err)
	insertAll(store, cmp)

	propagateTypes(store, factory)

	require.NotNil(t, out.Type())
	assert.Equal(t, types.Bool, out.Type().(types.Type).Metatype())
	assert.Equal(t, 1, out.Type().(types.Type).Size())
}

// TestPropagateTypesMultiEqualRequiresAgreement covers phi-coalescing's
// type rule: a MULTIEQUAL's output is only typed once every input
// agrees on metatype and size, never guessed from a majority or a
// first input.
func TestPropagateTypesMultiEqualRequiresAgreement(t *testing.T) {
	store := varnode.New()
	factory := newTestTypeFactory()

	entryArg := store.NewInput(varnode.Storage{Space: varnode.SpaceRegister, Offset: 0x8, Size: 4})
	entryArg.SetType(factory.Base(4, types.Int))

	mismatched := store.NewInput(varnode.Storage{Space: varnode.SpaceRegister, Offset: 0xc, Size: 8})
	mismatched.SetType(factory.Base(8, types.UInt))

	phi := store.NewOp(pcode.MultiEqual, 2, varnode.Address{Offset: 0x1000})
	require.NoError(t, store.SetInput(phi, 0, entryArg))
	require.NoError(t, store.SetInput(phi, 1, mismatched))
	merged, err := store.NewOutputOf(phi, varnode.Storage{Space: varnode.SpaceRegister, Offset: 0x10, Size: 4})
	require.NoError(t, err)
	insertAll(store, phi)

	propagateTypes(store, factory)
	assert.Nil(t, merged.Type(), "disagreeing MULTIEQUAL inputs must leave the merge untyped")

	agreeing := store.NewInput(varnode.Storage{Space: varnode.SpaceRegister, Offset: 0x18, Size: 4})
	agreeing.SetType(factory.Base(4, types.Int))

	phi2 := store.NewOp(pcode.MultiEqual, 2, varnode.Address{Offset: 0x1004})
	require.NoError(t, store.SetInput(phi2, 0, entryArg))
	require.NoError(t, store.SetInput(phi2, 1, agreeing))
	merged2, err := store.NewOutputOf(phi2, varnode.Storage{Space: varnode.SpaceRegister, Offset: 0x20, Size: 4})
	require.NoError(t, err)
	insertAll(store, phi2)

	propagateTypes(store, factory)
	require.NotNil(t, merged2.Type())
	assert.Equal(t, types.Int, merged2.Type().(types.Type).Metatype())
}
