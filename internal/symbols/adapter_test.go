package symbols

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pcodecore/internal/external"
	"pcodecore/internal/types"
)

func TestScopeAdapterSatisfiesSymbolScopeDB(t *testing.T) {
	var _ external.SymbolScopeDB = (*ScopeAdapter)(nil)
}

func TestScopeAdapterFunctionAndLabelLookup(t *testing.T) {
	root := NewScope("global", nil)
	a := NewScopeAdapter(root)

	a.DefineFunction(0x1000, "main")
	a.DefineCodeLabel(0x1010, "LAB_1010")

	name, ok := a.FindFunction(0x1000)
	require.True(t, ok)
	assert.Equal(t, "main", name)

	_, ok = a.FindFunction(0x9999)
	assert.False(t, ok)

	label, ok := a.FindCodeLabel(0x1010)
	require.True(t, ok)
	assert.Equal(t, "LAB_1010", label)
}

func TestScopeAdapterQueryPropertiesWrapsThreeValueShape(t *testing.T) {
	root := NewScope("global", nil)
	a := NewScopeAdapter(root)
	i32 := types.NewFactory(types.DataOrganization{PointerSize: 8, IntSize: 4, LongSize: 8, DefaultAlign: 8}).Base(4, types.Int)
	root.AddSymbol("g", i32, Range{Low: 0x2000, High: 0x2004}, Range{Low: 0, High: 0xffffffff})

	entry, flags, ok := a.QueryProperties(0x2000, 4, 0x10)
	require.True(t, ok)
	assert.Equal(t, external.FlagNone, flags)
	assert.Equal(t, "g", entry.Name())

	_, _, ok = a.QueryProperties(0x9999, 4, 0x10)
	assert.False(t, ok)
}

func TestScopeAdapterAddDynamicSymbolReturnsExternalEntry(t *testing.T) {
	root := NewScope("global", nil)
	a := NewScopeAdapter(root)
	i32 := types.NewFactory(types.DataOrganization{PointerSize: 8, IntSize: 4, LongSize: 8, DefaultAlign: 8}).Base(4, types.Int)
	fp := Fingerprint("register", "EAX")

	entry := a.AddDynamicSymbol("eax_val", i32, 0x3000, fp)
	assert.Equal(t, "eax_val", entry.Name())
	assert.Same(t, i32, entry.Type())
}

func TestScopeAdapterScopesWalksParentChain(t *testing.T) {
	root := NewScope("global", nil)
	child := NewScope("myFunc", root)
	a := NewScopeAdapter(child)

	scopes := a.Scopes()
	require.Len(t, scopes, 2)
	assert.Equal(t, "myFunc", scopes[0].ScopeName())
	assert.Equal(t, "global", scopes[1].ScopeName())
}
