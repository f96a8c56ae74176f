// Package external declares the shape of every collaborator the
// decompilation core consumes but does not implement itself: the
// instruction translator, the symbol/scope database, and the type
// factory (spec.md §6 "Inbound"), plus the emitter contract the driver
// exposes outward once a function reaches terminal completion. Nothing
// in this package has a concrete implementation — the pattern is
// borrowed from the teacher's standard-library module table, which
// names a module's shape without inlining its implementation.
package external

import (
	"context"

	"pcodecore/internal/pcode"
	"pcodecore/internal/types"
)

// OperandKind distinguishes a raw operand supplied by the translator.
type OperandKind int

const (
	OperandNone OperandKind = iota
	OperandConstant
	OperandAddress
	OperandUnique
)

// Operand is one raw operand of a lifted instruction, before the driver
// has turned it into a varnode.Variable.
type Operand struct {
	Kind   OperandKind
	Space  int
	Offset uint64
	Size   int
}

// RawInstruction is one p-code operation as handed to the driver by the
// translator (spec.md §6 "Inbound — translator").
type RawInstruction struct {
	Opcode  pcode.Opcode
	Output  *Operand // nil when the opcode has no output
	Inputs  []Operand
	Address uint64
}

// Translator is the inbound instruction-lifting collaborator. It is
// never implemented by this module — machine-code decoding is out of
// scope (spec.md §1 Non-goals) — but the driver depends on this exact
// contract to pull raw operations for one function at a time.
type Translator interface {
	// OneInstruction lifts the instruction at address and invokes emit
	// once per resulting p-code operation, in execution order.
	OneInstruction(ctx context.Context, address uint64, emit func(RawInstruction) error) error
	// InstructionLength returns the machine-code length in bytes of the
	// instruction starting at address, without lifting it.
	InstructionLength(ctx context.Context, address uint64) (int, error)
}

// SymbolEntry is the read side of a symbol/scope database lookup —
// deliberately narrower than internal/symbols.Entry so a Translator's
// consumer never needs to import internal/symbols directly.
type SymbolEntry interface {
	Name() string
	Type() types.Type
}

// ScopeFlags carries the flag bits returned alongside a symbol-entry
// query (spec.md §6 "query-properties(...) -> (symbol-entry?, flag-bits)").
type ScopeFlags uint32

const (
	FlagNone ScopeFlags = 0
	FlagReadOnly ScopeFlags = 1 << (iota - 1)
	FlagVolatile
	FlagPersistent
)

// SymbolScopeDB is the inbound symbol/scope-database collaborator
// contract (spec.md §6 "Inbound — symbol/scope database").
type SymbolScopeDB interface {
	QueryProperties(addr uint64, size int, usepoint uint64) (SymbolEntry, ScopeFlags, bool)
	FindFunction(addr uint64) (name string, ok bool)
	FindCodeLabel(addr uint64) (name string, ok bool)
	BuildVariableName(addr, usepoint uint64, t types.Type, seed string) string
	AddDynamicSymbol(name string, t types.Type, useAddr uint64, hash [16]byte) SymbolEntry
	Scopes() []ScopeIterator
}

// ScopeIterator exposes one scope's entries for iteration, per §6's
// "iteration over scopes and per-scope entries".
type ScopeIterator interface {
	ScopeName() string
	Entries() []SymbolEntry
}

// TypeFactory is the inbound type-factory collaborator contract
// (spec.md §6 "Inbound — type factory").
type TypeFactory interface {
	Base(size int, meta types.Metatype) types.Type
	TypeCode() types.Type
	SubtypeAt(t types.Type, offset int) (types.Type, bool)
	Alignment(t types.Type) int
}

// StructuredNode is the minimal shape the emitter walks — matched
// structurally, not by importing internal/block, to keep the emitter
// contract independent of the block package's internals.
type StructuredNode interface {
	NodeChildren() []StructuredNode
	NodeBlockID() (int, bool)
}

// Prototype is a recovered function signature: return type, ordered
// parameter list, and calling-convention name.
type Prototype struct {
	ReturnType types.Type
	Params     []Parameter
	Convention string
}

// Parameter is one recovered formal parameter.
type Parameter struct {
	Name string
	Type types.Type
}

// JumpTable is one recovered indirect-branch case table, keyed by the
// address of the BRANCHIND it resolves.
type JumpTable struct {
	SwitchAddress uint64
	Cases         []uint64
	DefaultCase   uint64
}

// MemoryReader is the inbound collaborator jump-table recovery consults
// to resolve a case table's contents once its address and stride are
// known (spec.md §4.6 "load outside read-only region" failure mode
// requires knowing both readability and the stored value).
type MemoryReader interface {
	// ReadOnlyValue reports whether [addr, addr+size) lies in a
	// read-only region and, if so, returns the little-endian value
	// stored there.
	ReadOnlyValue(addr uint64, size int) (value uint64, readOnly bool)
}

// Emitter is the outbound contract the driver satisfies once a
// function's analysis reaches terminal completion (spec.md §6
// "Outbound — emitter").
type Emitter interface {
	StructuredRoot() StructuredNode
	OperationAt(seq uint64) (op interface{}, ok bool)
	HighVariableOf(varID uint64) (highID uint64, ok bool)
	SymbolOf(highID uint64) (SymbolEntry, bool)
	TypeOf(highID uint64) (types.Type, bool)
	Prototype() Prototype
	JumpTables() []JumpTable
	Warnings() []string
}
