package action

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pcodecore/internal/pcode"
	"pcodecore/internal/rules"
	"pcodecore/internal/varnode"
)

func TestLeafActionRunsEveryCallWithoutOncePerFunction(t *testing.T) {
	leaf := NewLeaf("always", "g", Flags{}, func(fc *FuncContext) (bool, bool) { return true, true })
	fc := &FuncContext{}

	res, err := leaf.Apply(fc)
	require.NoError(t, err)
	assert.Equal(t, ResultComplete, res)

	res, err = leaf.Apply(fc)
	require.NoError(t, err)
	assert.Equal(t, ResultComplete, res)
	assert.Equal(t, Counters{Tests: 2, Apply: 2}, leaf.Counters())
}

func TestLeafActionOncePerFunctionSkipsAfterFirstRun(t *testing.T) {
	leaf := NewLeaf("once", "g", Flags{OncePerFunction: true}, func(fc *FuncContext) (bool, bool) { return true, true })
	fc := &FuncContext{}

	_, err := leaf.Apply(fc)
	require.NoError(t, err)
	res, err := leaf.Apply(fc)
	require.NoError(t, err)

	assert.Equal(t, ResultComplete, res)
	assert.Equal(t, Counters{Tests: 1, Apply: 1}, leaf.Counters())
}

func TestLeafActionBreakOnEntryStopsBeforeBody(t *testing.T) {
	called := false
	leaf := NewLeaf("breaks", "g", Flags{}, func(fc *FuncContext) (bool, bool) {
		called = true
		return true, true
	})
	leaf.SetBreakpoints(Breakpoints{BreakOnEntry: true})

	res, err := leaf.Apply(&FuncContext{})
	require.NoError(t, err)

	assert.Equal(t, ResultPartial, res)
	assert.Equal(t, StatusStartedBreakHit, leaf.Status())
	assert.False(t, called)
	assert.Equal(t, Counters{}, leaf.Counters())
}

func TestGroupActionSequencesChildrenWithoutRepeat(t *testing.T) {
	l1 := NewLeaf("l1", "g", Flags{}, func(fc *FuncContext) (bool, bool) { return false, true })
	l2 := NewLeaf("l2", "g", Flags{}, func(fc *FuncContext) (bool, bool) { return false, true })
	group := NewGroup("group", "g", Flags{}, false, l1, l2)

	res, err := group.Apply(&FuncContext{})
	require.NoError(t, err)

	assert.Equal(t, ResultComplete, res)
	assert.Equal(t, StatusEnd, group.Status())
	assert.Equal(t, 2, group.Counters().Tests)
	assert.Equal(t, 0, group.Counters().Apply)
}

func TestGroupActionRepeatUntilFixedStopsWhenChildStopsChanging(t *testing.T) {
	calls := 0
	leaf := NewLeaf("shrinking", "g", Flags{}, func(fc *FuncContext) (bool, bool) {
		changed := calls == 0
		calls++
		return changed, true
	})
	group := NewGroup("group", "g", Flags{}, true, leaf)

	res, err := group.Apply(&FuncContext{})
	require.NoError(t, err)

	assert.Equal(t, ResultComplete, res)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, leaf.Counters().Tests)
	assert.Equal(t, 1, leaf.Counters().Apply)
	assert.Equal(t, 2, group.Counters().Tests)
	assert.Equal(t, 1, group.Counters().Apply)
}

func TestRestartGroupActionRestartsThenCompletes(t *testing.T) {
	restarted := false
	leaf := NewLeaf("restarter", "g", Flags{}, func(fc *FuncContext) (bool, bool) {
		if !restarted {
			restarted = true
			fc.RequestRestart()
		}
		return false, true
	})
	restart := NewRestartGroup("rg", "g", Flags{}, 2, leaf)

	res, err := restart.Apply(&FuncContext{})
	require.NoError(t, err)

	assert.Equal(t, ResultComplete, res)
	assert.Equal(t, 2, leaf.Counters().Tests)
}

func TestRestartGroupActionExhaustsRestarts(t *testing.T) {
	leaf := NewLeaf("always-restarts", "g", Flags{}, func(fc *FuncContext) (bool, bool) {
		fc.RequestRestart()
		return false, true
	})
	restart := NewRestartGroup("rg", "g", Flags{}, 1, leaf)

	_, err := restart.Apply(&FuncContext{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRestartExhausted))
}

func TestDatabaseDefineRootFiltersByGroup(t *testing.T) {
	keepMe := NewLeaf("keep", "keep-group", Flags{}, func(fc *FuncContext) (bool, bool) { return false, true })
	dropMe := NewLeaf("drop", "drop-group", Flags{}, func(fc *FuncContext) (bool, bool) { return false, true })
	universal := NewGroup("universal", "root", Flags{}, false, keepMe, dropMe)

	db := NewDatabase(universal)

	_, err := db.Current()
	assert.Error(t, err)

	db.DefineRoot(GroupList{Name: "only-keep", Groups: []string{"keep-group"}})
	require.NoError(t, db.SelectRoot("only-keep"))

	current, err := db.Current()
	require.NoError(t, err)
	group, ok := current.(*GroupAction)
	require.True(t, ok)
	require.Len(t, group.Children, 1)
	assert.Equal(t, "keep", group.Children[0].Name())

	assert.Error(t, db.SelectRoot("no-such-root"))
}

type stubBlock struct{ id int }

func (b stubBlock) BlockID() int { return b.id }

func TestDefaultActionDatabaseDrivesCopyPropagationToFixedPoint(t *testing.T) {
	pool := rules.Default(8)
	db := Default(pool)

	store := varnode.New()
	blk := stubBlock{id: 1}
	src := store.NewInput(varnode.Storage{Space: varnode.SpaceRegister, Offset: 0, Size: 4})
	copyOp := store.NewOp(pcode.Copy, 1, varnode.Address{Offset: 0x1000})
	require.NoError(t, store.SetInput(copyOp, 0, src))
	copyOut, err := store.NewOutputOf(copyOp, varnode.Storage{Space: varnode.SpaceUnique, Offset: 1, Size: 4})
	require.NoError(t, err)
	store.InsertEnd(copyOp, blk)

	addOp := store.NewOp(pcode.IntAdd, 2, varnode.Address{Offset: 0x1004})
	require.NoError(t, store.SetInput(addOp, 0, copyOut))
	require.NoError(t, store.SetInput(addOp, 1, store.NewConstant(0, 4)))
	store.InsertEnd(addOp, blk)

	root, err := db.Current()
	require.NoError(t, err)

	fc := &FuncContext{RuleCtx: &rules.Context{Store: store}}
	res, err := root.Apply(fc)
	require.NoError(t, err)

	assert.Equal(t, ResultComplete, res)
	assert.Same(t, src, addOp.Input(0))
}
