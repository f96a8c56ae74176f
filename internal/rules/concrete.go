package rules

import (
	"pcodecore/internal/pcode"
	"pcodecore/internal/varnode"
)

// CopyPropagation replaces every read of a COPY's output with the
// COPY's input, letting dead-code elimination reclaim the COPY
// afterward. Grounded on the teacher's CommonSubexpressionElimination
// replaceValue walk (internal/ir/optimizations.go), generalized from a
// same-block value table to a store-wide reader-list rewrite (spec.md
// §8 scenario 1).
type CopyPropagation struct{}

func (CopyPropagation) Name() string  { return "copy-propagation" }
func (CopyPropagation) Group() string { return "simplify" }
func (CopyPropagation) OpcodeFilter() []pcode.Opcode {
	return []pcode.Opcode{pcode.Copy}
}

func (CopyPropagation) Apply(ctx *Context, op *varnode.Operation) bool {
	out := op.Output()
	if out == nil {
		return false
	}
	src := op.Input(0)
	if src == nil || src == out {
		return false
	}
	changed := false
	for _, reader := range append([]*varnode.Operation(nil), out.Readers()...) {
		for slot, in := range reader.Inputs() {
			if in == out {
				if err := ctx.Store.SetInput(reader, slot, src); err == nil {
					changed = true
				}
			}
		}
	}
	return changed
}

// ConstantFold folds INT_ADD and INT_SUB of two constant inputs into a
// single constant, bit-exact on the declared output size. Grounded on
// the teacher's ConstantFolding.computeBinaryOp switch
// (internal/ir/optimizations.go), narrowed from the teacher's
// arbitrary-precision `+`/`-` on uint64 to the fixed-width, masked
// arithmetic the p-code opcode set actually requires.
type ConstantFold struct{}

func (ConstantFold) Name() string  { return "constant-fold-add-sub" }
func (ConstantFold) Group() string { return "simplify" }
func (ConstantFold) OpcodeFilter() []pcode.Opcode {
	return []pcode.Opcode{pcode.IntAdd, pcode.IntSub}
}

func (ConstantFold) Apply(ctx *Context, op *varnode.Operation) bool {
	out := op.Output()
	if out == nil {
		return false
	}
	a, b := op.Input(0), op.Input(1)
	if a == nil || b == nil || !a.IsConstant() || !b.IsConstant() {
		return false
	}
	size := out.Storage().Size
	mask := sizeMask(size)
	var result uint64
	switch op.Opcode() {
	case pcode.IntAdd:
		result = (a.ConstantValue() + b.ConstantValue()) & mask
	case pcode.IntSub:
		result = (a.ConstantValue() - b.ConstantValue()) & mask
	}
	folded := ctx.Store.NewConstant(result, size)
	changed := false
	for _, reader := range append([]*varnode.Operation(nil), out.Readers()...) {
		for slot, in := range reader.Inputs() {
			if in == out {
				if err := ctx.Store.SetInput(reader, slot, folded); err == nil {
					changed = true
				}
			}
		}
	}
	return changed
}

func sizeMask(size int) uint64 {
	if size >= 8 {
		return ^uint64(0)
	}
	return (uint64(1) << (uint(size) * 8)) - 1
}

// LessEqualNormalize rewrites `CBRANCH taken_if(INT_LESSEQUAL x, #k)` to
// `CBRANCH taken_if(INT_LESS x, #(k+1))`, matching spec.md §8 scenario
// 3. It only fires when the constant operand does not already sit at
// the type's maximum, since #k+1 would overflow the comparison's
// declared width and change the truth table.
type LessEqualNormalize struct{}

func (LessEqualNormalize) Name() string  { return "lessequal-to-less" }
func (LessEqualNormalize) Group() string { return "normalize" }
func (LessEqualNormalize) OpcodeFilter() []pcode.Opcode {
	return []pcode.Opcode{pcode.IntLessEqual}
}

func (LessEqualNormalize) Apply(ctx *Context, op *varnode.Operation) bool {
	out := op.Output()
	if out == nil {
		return false
	}
	x, k := op.Input(0), op.Input(1)
	if x == nil || k == nil || !k.IsConstant() {
		return false
	}
	size := k.Storage().Size
	if k.ConstantValue() == sizeMask(size) {
		return false // #k is already the max value of its width; #(k+1) would wrap
	}
	ctx.Store.SetOpcode(op, pcode.IntLess)
	bumped := ctx.Store.NewConstant(k.ConstantValue()+1, size)
	return ctx.Store.SetInput(op, 1, bumped) == nil
}

// DeadMultiEqualPrune removes a MULTIEQUAL whose output has no readers
// — spec.md §8's
// boundary behavior "an operation whose sole reader is itself ... must
// survive dead-code elimination until its block becomes unreachable"
// means this rule must not fire on a self-referential phi; it only
// fires when the reader list is empty outright.
type DeadMultiEqualPrune struct{}

func (DeadMultiEqualPrune) Name() string  { return "dead-multiequal-prune" }
func (DeadMultiEqualPrune) Group() string { return "cleanup" }
func (DeadMultiEqualPrune) OpcodeFilter() []pcode.Opcode {
	return []pcode.Opcode{pcode.MultiEqual}
}

func (DeadMultiEqualPrune) Apply(ctx *Context, op *varnode.Operation) bool {
	out := op.Output()
	if out == nil || len(out.Readers()) != 0 {
		return false
	}
	ctx.Store.Detach(op)
	return ctx.Store.DestroyOp(op) == nil
}

// Default returns the pool the driver loads by default: every concrete
// rule this package defines, registered in a deterministic order.
func Default(maxSweeps int) *Pool {
	p := NewPool(maxSweeps)
	p.Register(CopyPropagation{})
	p.Register(ConstantFold{})
	p.Register(LessEqualNormalize{})
	p.Register(DeadMultiEqualPrune{})
	return p
}
