// typeprop.go implements the type-propagation step of spec.md §4.6's
// action sequence: every alive variable is assigned a data type driven
// by the opcode that produces it, run to a fixed point since one op's
// inferred output type feeds the next op's input.
package decompile

import (
	"pcodecore/internal/external"
	"pcodecore/internal/pcode"
	"pcodecore/internal/types"
	"pcodecore/internal/varnode"
)

// maxTypePropRounds bounds the fixed-point loop; a function's type
// dependency chains are far shorter than this in practice, so hitting
// the bound just stops propagation early rather than looping forever.
const maxTypePropRounds = 8

// propagateTypes assigns a type to every untyped free variable (an
// entry input with no further evidence gets an unknown-metatype base
// type of its declared size) and then repeatedly assigns types to
// operation outputs from their inputs until no output changes.
func propagateTypes(store *varnode.Store, factory external.TypeFactory) int {
	total := 0
	for _, v := range store.ByStorage() {
		if v.IsConstant() || v.Type() != nil || v.Definer() != nil {
			continue
		}
		v.SetType(factory.Base(v.Storage().Size, types.Unknown))
		total++
	}

	for round := 0; round < maxTypePropRounds; round++ {
		changed := 0
		for _, op := range store.AliveOps() {
			if assignOutputType(op, factory) {
				changed++
			}
		}
		total += changed
		if changed == 0 {
			break
		}
	}
	return total
}

// assignOutputType infers op's output type from its opcode and inputs.
// It never overwrites an already-typed output — type propagation only
// fills gaps, it does not second-guess an earlier assignment.
func assignOutputType(op *varnode.Operation, factory external.TypeFactory) bool {
	out := op.Output()
	if out == nil || out.Type() != nil {
		return false
	}
	size := out.Storage().Size

	if pcode.Describe(op.Opcode()).BoolOutput {
		out.SetType(factory.Base(1, types.Bool))
		return true
	}

	switch op.Opcode() {
	case pcode.IntSext:
		out.SetType(factory.Base(size, types.Int))
		return true
	case pcode.IntZext:
		out.SetType(factory.Base(size, types.UInt))
		return true
	case pcode.Copy, pcode.Cast:
		in := op.Input(0)
		if in == nil {
			return false
		}
		t, ok := in.Type().(types.Type)
		if !ok || t == nil {
			if !in.IsConstant() {
				return false
			}
			// A constant reaching a bare COPY/CAST with no prior typed
			// context is only ever read here (the single-reader rule
			// duplicates a constant on every further use), so it is safe
			// to type it directly from this use.
			t = factory.Base(in.Storage().Size, types.UInt)
			in.SetType(t)
		}
		out.SetType(t)
		return true
	case pcode.MultiEqual:
		common := mergedInputType(op)
		if common == nil {
			return false
		}
		out.SetType(common)
		return true
	}

	out.SetType(factory.Base(size, types.UInt))
	return true
}

// mergedInputType returns the common type shared by every input of a
// MULTIEQUAL, or nil if any input is not yet typed or the inputs
// disagree on metatype or size (spec.md §4.6's phi-coalescing needs
// agreement before it can assign the merge a single type).
func mergedInputType(op *varnode.Operation) types.Type {
	var common types.Type
	for _, in := range op.Inputs() {
		if in == nil {
			return nil
		}
		t, ok := in.Type().(types.Type)
		if !ok || t == nil {
			return nil
		}
		if common == nil {
			common = t
			continue
		}
		if common.Metatype() != t.Metatype() || common.Size() != t.Size() {
			return nil
		}
	}
	return common
}
