package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOrg() DataOrganization {
	return DataOrganization{PointerSize: 8, IntSize: 4, LongSize: 8, DefaultAlign: 8}
}

func TestBaseCachesBySizeAndMetatype(t *testing.T) {
	f := NewFactory(testOrg())

	a := f.Base(4, Int)
	b := f.Base(4, Int)
	assert.Same(t, a, b)
	assert.Equal(t, 4, a.Size())
	assert.Equal(t, Int, a.Metatype())

	c := f.Base(4, UInt)
	assert.NotSame(t, a, c)
	assert.Equal(t, UInt, c.Metatype())
}

func TestPointerToWrapsTargetAndUsesOrgPointerSize(t *testing.T) {
	f := NewFactory(testOrg())
	inner := f.Base(4, Int)

	p := f.PointerTo(inner)
	assert.Equal(t, 8, p.Size())
	assert.Equal(t, Pointer, p.Metatype())
	assert.Equal(t, "int32_t *", p.String())

	opaque := f.PointerTo(nil)
	assert.Equal(t, "void *", opaque.String())
}

func TestDefineStructComputesSizeFromLastField(t *testing.T) {
	f := NewFactory(testOrg())
	i32 := f.Base(4, Int)
	i8 := f.Base(1, Int)

	st := f.DefineStruct("point3", []Field{
		{Name: "x", Offset: 0, Type: i32},
		{Name: "y", Offset: 4, Type: i32},
		{Name: "flag", Offset: 8, Type: i8},
	})

	assert.Equal(t, 9, st.Size())

	field, ok := st.FieldAt(5)
	require.True(t, ok)
	assert.Equal(t, "y", field.Name)

	_, ok = st.FieldAt(9)
	assert.False(t, ok)
}

func TestSubtypeAtRecursesIntoNestedStructs(t *testing.T) {
	f := NewFactory(testOrg())
	i32 := f.Base(4, Int)

	inner := f.DefineStruct("inner", []Field{
		{Name: "a", Offset: 0, Type: i32},
		{Name: "b", Offset: 4, Type: i32},
	})
	outer := f.DefineStruct("outer", []Field{
		{Name: "head", Offset: 0, Type: i32},
		{Name: "nested", Offset: 4, Type: inner},
	})

	sub, ok := f.SubtypeAt(outer, 8)
	require.True(t, ok)
	assert.Same(t, i32, sub)

	_, ok = f.SubtypeAt(i32, 0)
	assert.False(t, ok)
}

func TestAlignmentClampsToDefaultAlign(t *testing.T) {
	f := NewFactory(testOrg())

	assert.Equal(t, 1, f.Alignment(f.Base(1, Int)))
	assert.Equal(t, 4, f.Alignment(f.Base(4, Int)))
	assert.Equal(t, 8, f.Alignment(f.Base(8, Int)))
	assert.Equal(t, 8, f.Alignment(f.PointerTo(nil)))
	assert.Equal(t, 1, f.Alignment(f.Base(0, Void)))
}
