package decompile

import (
	"pcodecore/internal/block"
	"pcodecore/internal/external"
	"pcodecore/internal/types"
)

// structuredNode adapts *block.Structured to external.StructuredNode
// without internal/external ever importing internal/block, per that
// package's "matched structurally" note.
type structuredNode struct {
	node *block.Structured
}

func (s structuredNode) NodeChildren() []external.StructuredNode {
	if s.node == nil || len(s.node.Children) == 0 {
		return nil
	}
	out := make([]external.StructuredNode, len(s.node.Children))
	for i, c := range s.node.Children {
		out[i] = structuredNode{c}
	}
	return out
}

func (s structuredNode) NodeBlockID() (int, bool) {
	if s.node == nil || s.node.Block == nil {
		return 0, false
	}
	return s.node.Block.BlockID(), true
}

// functionEmitter implements external.Emitter over one completed
// Result. High-variable identity comes from Result.HighVariables, the
// driver's cover/interference merge over the store's SSA variables —
// this type only indexes that result for the emitter's per-variable and
// per-high-variable lookups.
type functionEmitter struct {
	result  *Result
	symbols external.SymbolScopeDB
	types   external.TypeFactory

	highOfVar map[uint64]uint64 // varnode.Variable.ID() -> HighVariable.id
	highs     map[uint64]*HighVariable
}

func newFunctionEmitter(result *Result, symbols external.SymbolScopeDB, tf external.TypeFactory) *functionEmitter {
	e := &functionEmitter{
		result:    result,
		symbols:   symbols,
		types:     tf,
		highOfVar: map[uint64]uint64{},
		highs:     map[uint64]*HighVariable{},
	}
	for _, h := range result.HighVariables {
		e.highs[h.id] = h
		for _, m := range h.members {
			e.highOfVar[m.ID()] = h.id
		}
	}
	return e
}

func (e *functionEmitter) StructuredRoot() external.StructuredNode {
	if e.result.Root == nil {
		return nil
	}
	return structuredNode{e.result.Root}
}

func (e *functionEmitter) OperationAt(seq uint64) (interface{}, bool) {
	for _, op := range e.result.Store.AliveOps() {
		if op.ID() == seq {
			return op, true
		}
	}
	return nil, false
}

func (e *functionEmitter) HighVariableOf(varID uint64) (uint64, bool) {
	id, ok := e.highOfVar[varID]
	return id, ok
}

func (e *functionEmitter) SymbolOf(highID uint64) (external.SymbolEntry, bool) {
	h, ok := e.highs[highID]
	if !ok {
		return nil, false
	}
	entry, _, ok := e.symbols.QueryProperties(h.storage.Offset, h.storage.Size, e.result.Entry)
	return entry, ok
}

func (e *functionEmitter) TypeOf(highID uint64) (types.Type, bool) {
	h, ok := e.highs[highID]
	if !ok || h.dtype == nil {
		return nil, false
	}
	return h.dtype, true
}

func (e *functionEmitter) Prototype() external.Prototype    { return e.result.Prototype }
func (e *functionEmitter) JumpTables() []external.JumpTable { return e.result.JumpTables }

func (e *functionEmitter) Warnings() []string {
	var out []string
	for _, w := range e.result.Reporter.Warnings() {
		out = append(out, w.Error())
	}
	return out
}
