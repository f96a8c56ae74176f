// Package types implements the data-type factory collaborator described
// in spec.md §4 and §6: base types by size and metatype, subtype lookup
// at a byte offset, and a size/alignment policy.
package types

import "fmt"

// Metatype is the structural kind of a recovered type — the decompiler
// analogue of the teacher's builtin-type table (internal/types/builtins.go),
// generalized from a source language's static types to structural
// metatypes a decompiler can infer without source.
type Metatype int

const (
	Unknown Metatype = iota
	Int
	UInt
	Bool
	Float
	Pointer
	Array
	Struct
	Code
	Void
)

// Type is the interface internal/varnode.DataType requires plus the
// richer queries the type-propagation action needs.
type Type interface {
	Size() int
	Metatype() Metatype
	String() string
}

type baseType struct {
	name string
	size int
	meta Metatype
}

func (b *baseType) Size() int         { return b.size }
func (b *baseType) Metatype() Metatype { return b.meta }
func (b *baseType) String() string    { return b.name }

// PointerType is a pointer-to-T type; T may be nil for an opaque/void*.
type PointerType struct {
	baseType
	Target Type
}

func (p *PointerType) String() string {
	if p.Target == nil {
		return "void *"
	}
	return p.Target.String() + " *"
}

// StructType is a structured aggregate with named, offset-located
// fields, supporting "subtype lookup at byte offset" (spec.md §4).
type StructType struct {
	baseType
	Fields []Field
}

type Field struct {
	Name   string
	Offset int
	Type   Type
}

// FieldAt returns the top-level field covering the given byte offset,
// or ok=false if offset lies outside the struct or in padding. Nested
// fields are not descended into.
func (s *StructType) FieldAt(offset int) (Field, bool) {
	for _, f := range s.Fields {
		if offset >= f.Offset && offset < f.Offset+f.Type.Size() {
			return f, true
		}
	}
	return Field{}, false
}

// ArrayType is a fixed-length array of a homogeneous element type.
type ArrayType struct {
	baseType
	Element Type
	Length  int
}

// CodeType represents a function/code-address type (used for CALL
// target variables and jump-table entries).
type CodeType struct {
	baseType
}

// DataOrganization carries the alignment/size policy this factory
// derives base types against, mirroring the calling-convention model's
// upstream data-organization spec named in spec.md §4.
type DataOrganization struct {
	PointerSize  int
	IntSize      int
	LongSize     int
	DefaultAlign int
}

// Factory is the concrete implementation of the §4/§6 "type factory"
// collaborator contract.
type Factory struct {
	org       DataOrganization
	base      map[string]Type
	structs   map[string]*StructType
}

func NewFactory(org DataOrganization) *Factory {
	f := &Factory{org: org, base: map[string]Type{}, structs: map[string]*StructType{}}
	f.registerBuiltins()
	return f
}

func (f *Factory) registerBuiltins() {
	sizes := []int{1, 2, 4, 8}
	for _, sz := range sizes {
		f.base[fmt.Sprintf("int%d", sz*8)] = &baseType{name: fmt.Sprintf("int%d_t", sz*8), size: sz, meta: Int}
		f.base[fmt.Sprintf("uint%d", sz*8)] = &baseType{name: fmt.Sprintf("uint%d_t", sz*8), size: sz, meta: UInt}
	}
	f.base["bool"] = &baseType{name: "bool", size: 1, meta: Bool}
	f.base["float4"] = &baseType{name: "float", size: 4, meta: Float}
	f.base["float8"] = &baseType{name: "double", size: 8, meta: Float}
	f.base["void"] = &baseType{name: "void", size: 0, meta: Void}
}

// Base returns (or lazily creates) the base type of the given byte size
// and metatype (spec.md §4 "base(size, metatype)").
func (f *Factory) Base(size int, meta Metatype) Type {
	key := fmt.Sprintf("m%d/%d", meta, size)
	if t, ok := f.base[key]; ok {
		return t
	}
	var name string
	switch meta {
	case Int:
		name = fmt.Sprintf("int%d_t", size*8)
	case UInt:
		name = fmt.Sprintf("uint%d_t", size*8)
	case Float:
		name = fmt.Sprintf("float%d", size)
	case Bool:
		name = "bool"
	default:
		name = fmt.Sprintf("undefined%d", size)
	}
	t := &baseType{name: name, size: size, meta: meta}
	f.base[key] = t
	return t
}

// TypeCode returns the metatype describing a code/function address
// (spec.md §4 "type-code()").
func (f *Factory) TypeCode() Type {
	return &CodeType{baseType{name: "code", size: 0, meta: Code}}
}

// PointerTo returns a pointer type to target, sized per the data
// organization's pointer size.
func (f *Factory) PointerTo(target Type) Type {
	return &PointerType{baseType: baseType{name: "ptr", size: f.org.PointerSize, meta: Pointer}, Target: target}
}

// DefineStruct registers a struct type available for later SubtypeAt
// lookups.
func (f *Factory) DefineStruct(name string, fields []Field) *StructType {
	size := 0
	for _, fl := range fields {
		end := fl.Offset + fl.Type.Size()
		if end > size {
			size = end
		}
	}
	st := &StructType{baseType: baseType{name: name, size: size, meta: Struct}, Fields: fields}
	f.structs[name] = st
	return st
}

// SubtypeAt looks up the subtype of t occupying byte offset off,
// recursing into nested structs (spec.md §4 "subtype lookup at byte
// offset").
func (f *Factory) SubtypeAt(t Type, off int) (Type, bool) {
	st, ok := t.(*StructType)
	if !ok {
		return nil, false
	}
	field, ok := st.FieldAt(off)
	if !ok {
		return nil, false
	}
	if nested, ok := field.Type.(*StructType); ok {
		return f.SubtypeAt(nested, off-field.Offset)
	}
	return field.Type, true
}

// Alignment returns the required alignment for t under this factory's
// data organization.
func (f *Factory) Alignment(t Type) int {
	if t.Size() >= f.org.DefaultAlign {
		return f.org.DefaultAlign
	}
	if t.Size() == 0 {
		return 1
	}
	return t.Size()
}
