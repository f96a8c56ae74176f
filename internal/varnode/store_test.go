package varnode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pcodecore/internal/pcode"
)

func TestNewConstantSingleReaderRule(t *testing.T) {
	s := New()
	a := s.NewConstant(42, 4)
	op := s.NewOp(pcode.IntAdd, 2, Address{Offset: 0x1000})

	// A second read of the same value/size dedups onto the same
	// variable while it still has no reader.
	b := s.NewConstant(42, 4)
	assert.Same(t, a, b)

	// Once a has a reader, requesting the same value again must not
	// reuse it: constants may have at most one reader (spec.md §3).
	require.NoError(t, s.SetInput(op, 0, a))
	require.NoError(t, s.SetInput(op, 1, a))
	c := s.NewConstant(42, 4)
	assert.NotSame(t, a, c)
}

func TestSetInputMaintainsReaderList(t *testing.T) {
	s := New()
	op1 := s.NewOp(pcode.Copy, 1, Address{Offset: 0x1000})
	v, err := s.NewOutputOf(op1, Storage{Space: SpaceRegister, Offset: 0, Size: 4})
	require.NoError(t, err)

	op2 := s.NewOp(pcode.Copy, 1, Address{Offset: 0x1004})
	require.NoError(t, s.SetInput(op2, 0, v))
	assert.Contains(t, v.Readers(), op2)

	other := s.NewInput(Storage{Space: SpaceRegister, Offset: 8, Size: 4})
	require.NoError(t, s.SetInput(op2, 0, other))
	assert.NotContains(t, v.Readers(), op2)
	assert.Contains(t, other.Readers(), op2)
}

func TestDestroyOpRequiresDetach(t *testing.T) {
	s := New()
	op := s.NewOp(pcode.MultiEqual, 0, Address{Offset: 0x1000})
	blk := stubBlock{id: 1}
	s.InsertEnd(op, blk)

	err := s.DestroyOp(op)
	assert.Error(t, err)

	s.Detach(op)
	assert.NoError(t, s.DestroyOp(op))
}

func TestByOpcodeAndAliveOps(t *testing.T) {
	s := New()
	blk := stubBlock{id: 1}
	add := s.NewOp(pcode.IntAdd, 2, Address{Offset: 0x1000})
	s.InsertEnd(add, blk)
	sub := s.NewOp(pcode.IntSub, 2, Address{Offset: 0x1004})
	s.InsertEnd(sub, blk)

	assert.ElementsMatch(t, []*Operation{add}, s.ByOpcode(pcode.IntAdd))
	assert.ElementsMatch(t, []*Operation{add, sub}, s.AliveOps())
}

type stubBlock struct{ id int }

func (b stubBlock) BlockID() int { return b.id }
