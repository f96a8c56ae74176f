package varnode

import "pcodecore/internal/pcode"

// BlockHandle is the minimal identity an owning basic block must expose
// to the IR store. internal/block's Block type implements it; varnode
// never imports internal/block, keeping the leaf-first dependency order
// spec.md §2 requires (IR store has no knowledge of the CFG component).
type BlockHandle interface {
	BlockID() int
}

// DataType is the minimal shape the IR store needs from a type-factory
// result: its byte size and a printable name. internal/types.Type
// satisfies this.
type DataType interface {
	Size() int
	String() string
}

// SymbolBinding is an opaque handle to a symbol/scope-database entry
// bound to a variable (spec.md §3 "optional symbol binding").
type SymbolBinding interface {
	SymbolName() string
}

// Variable is one SSA value: a storage descriptor, an optional defining
// operation, an insertion-ordered reader list, a type, a known-zero
// mask, an optional symbol binding, and a property bitset.
type Variable struct {
	id      uint64 // creation index — strictly increasing, used for stable iteration under mutation
	storage Storage

	definer *Operation // nil => input/free
	readers []*Operation // insertion order; an op appears at most once

	dtype    DataType
	zeroMask uint64 // known-zero bits, capped at 64 per SPEC_FULL.md
	symbol   SymbolBinding
	flags    VarFlag

	block BlockHandle // for annotation variables encoding an address space, else nil
}

// ID returns the strictly increasing creation index used as the
// tie-break for stable iteration while the store mutates (spec.md §5).
func (v *Variable) ID() uint64 { return v.id }

// Storage returns the variable's immutable location.
func (v *Variable) Storage() Storage { return v.storage }

// Definer returns the operation that defines this variable, or nil if
// the variable is free (an input or a constant).
func (v *Variable) Definer() *Operation { return v.definer }

// Readers returns the insertion-ordered list of operations reading this
// variable. Callers must not mutate the returned slice.
func (v *Variable) Readers() []*Operation { return v.readers }

// IsConstant reports whether the variable lives in the constant space,
// whose Offset is the constant's value.
func (v *Variable) IsConstant() bool { return v.storage.Space == SpaceConstant }

// ConstantValue returns the constant's value. Callers must check
// IsConstant first.
func (v *Variable) ConstantValue() uint64 { return v.storage.Offset }

// Type returns the variable's data type, possibly nil before type
// propagation has run.
func (v *Variable) Type() DataType { return v.dtype }

// SetType assigns a data type. Type propagation, cast insertion and
// tests call it; it keeps no type-locked bookkeeping.
func (v *Variable) SetType(t DataType) { v.dtype = t }

// ZeroMask returns the known-zero bitmask, valid only "to the extent it
// was last computed" per spec.md §4.4 — rules must not assume freshness
// beyond that.
func (v *Variable) ZeroMask() uint64 { return v.zeroMask }

func (v *Variable) SetZeroMask(mask uint64) { v.zeroMask = mask }

func (v *Variable) Symbol() SymbolBinding    { return v.symbol }
func (v *Variable) SetSymbol(s SymbolBinding) { v.symbol = s }

func (v *Variable) Flags() VarFlag { return v.flags }
func (v *Variable) HasFlag(f VarFlag) bool { return v.flags.Has(f) }
func (v *Variable) SetFlag(f VarFlag)   { v.flags |= f }
func (v *Variable) ClearFlag(f VarFlag) { v.flags &^= f }

// IsFree reports whether the variable has no defining operation.
func (v *Variable) IsFree() bool { return v.definer == nil }

// indexOfReader returns op's index in the reader list, or -1 if op is
// not a reader.
func (v *Variable) indexOfReader(op *Operation) int {
	for i, r := range v.readers {
		if r == op {
			return i
		}
	}
	return -1
}

func (v *Variable) addReader(op *Operation) {
	if v.indexOfReader(op) >= 0 {
		return
	}
	v.readers = append(v.readers, op)
}

func (v *Variable) removeReader(op *Operation) bool {
	idx := v.indexOfReader(op)
	if idx < 0 {
		return false
	}
	v.readers = append(v.readers[:idx], v.readers[idx+1:]...)
	return true
}

// opcodeOf is a tiny convenience used by store diagnostics; kept here so
// callers formatting a variable's definer opcode don't need to import
// pcode separately.
func opcodeOf(op *Operation) pcode.Opcode {
	if op == nil {
		return pcode.Invalid
	}
	return op.Opcode()
}

func (v *Variable) String() string {
	if v.IsConstant() {
		return "#" + v.storage.String()
	}
	return v.storage.String() + "[def=" + opcodeOf(v.definer).String() + "]"
}
