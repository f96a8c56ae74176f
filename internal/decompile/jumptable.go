// jumptable.go implements indirect-branch (BRANCHIND) recovery (spec.md
// §4.6): the value feeding a BRANCHIND is walked backward through the
// function's own store (COPY/CAST pass-through, then a LOAD whose
// address is an INT_ADD of a constant base and an index scaled by
// INT_MULT/INT_LEFT) looking for a base-plus-scaled-index addressing
// pattern, an index bound supplied by a comparison against a constant,
// and case values that resolve to a read-only memory region. No
// separate sub-decompilation is run, and MULTIEQUAL is not followed.
package decompile

import (
	"github.com/pkg/errors"

	"pcodecore/internal/diag"
	"pcodecore/internal/external"
	"pcodecore/internal/pcode"
	"pcodecore/internal/varnode"
)

// ErrNotIndirectBranch is returned when recoverJumpTable is asked to
// resolve an operation other than BRANCHIND.
var ErrNotIndirectBranch = errors.New("decompile: not a BRANCHIND operation")

// addressing is the base-plus-scaled-index shape recoverJumpTable looks
// for feeding a LOAD that in turn feeds the BRANCHIND target.
type addressing struct {
	tableBase uint64
	scale     uint64
	entrySize int
}

// recoverJumpTable attempts to resolve one BRANCHIND into an explicit
// case table. bound is the statically-determined number of cases (from
// a comparison the caller has already found with indexBound); it is the
// caller's responsibility to supply it.
func recoverJumpTable(store *varnode.Store, br *varnode.Operation, bound int, limits Limits, mem external.MemoryReader) (*external.JumpTable, error) {
	if br.Opcode() != pcode.BranchInd {
		return nil, ErrNotIndirectBranch
	}
	if bound <= 0 {
		return nil, diag.New(diag.JumpTableFailure, "no statically-determined case bound")
	}
	if bound > limits.MaxJumpTableCases {
		return nil, diag.New(diag.JumpTableFailure, "case count exceeds configured limit")
	}

	target := br.Input(0)
	if target == nil {
		return nil, diag.New(diag.JumpTableFailure, "BRANCHIND has no target operand")
	}
	addr, ok := simplifyLoadAddress(target)
	if !ok {
		return nil, diag.New(diag.JumpTableFailure, "upstream slice did not simplify to a base+index load")
	}

	cases := make([]uint64, 0, bound)
	for i := 0; i < bound; i++ {
		caseAddr := addr.tableBase + uint64(i)*addr.scale
		value, readOnly := mem.ReadOnlyValue(caseAddr, addr.entrySize)
		if !readOnly {
			return nil, diag.New(diag.JumpTableFailure, "case load address outside read-only region")
		}
		cases = append(cases, value)
	}

	return &external.JumpTable{
		SwitchAddress: br.SeqNum().Offset,
		Cases:         cases,
		DefaultCase:   0,
	}, nil
}

// simplifyLoadAddress walks target's definer chain looking for a LOAD
// whose address input is an INT_ADD of a constant table base and a
// scaled index (INT_MULT or INT_LEFT by a constant), or an unscaled
// index (entrySize 1). It gives up (ok=false) once it can no longer
// make progress through a recognized opcode.
func simplifyLoadAddress(v *varnode.Variable) (addressing, bool) {
	for steps := 0; steps < 32; steps++ {
		def := v.Definer()
		if def == nil {
			return addressing{}, false
		}
		switch def.Opcode() {
		case pcode.Copy, pcode.Cast:
			if def.Input(0) == nil {
				return addressing{}, false
			}
			v = def.Input(0)
			continue
		case pcode.Load:
			addrInput := def.Input(1)
			if addrInput == nil {
				return addressing{}, false
			}
			size := 4
			if def.Output() != nil {
				size = def.Output().Storage().Size
			}
			return decomposeAddress(addrInput, size)
		default:
			return addressing{}, false
		}
	}
	return addressing{}, false
}

// decomposeAddress splits addr = base + index*scale into an addressing
// value, requiring base to be a plain constant.
func decomposeAddress(addr *varnode.Variable, entrySize int) (addressing, bool) {
	def := addr.Definer()
	if def == nil || def.Opcode() != pcode.IntAdd {
		if addr.IsConstant() {
			return addressing{tableBase: addr.ConstantValue(), scale: uint64(entrySize), entrySize: entrySize}, true
		}
		return addressing{}, false
	}
	a, b := def.Input(0), def.Input(1)
	if a == nil || b == nil {
		return addressing{}, false
	}
	base, scaled := a, b
	if b.IsConstant() && b.Definer() == nil {
		base, scaled = b, a
	}
	if !base.IsConstant() {
		return addressing{}, false
	}
	scale := uint64(entrySize)
	if sdef := scaled.Definer(); sdef != nil {
		switch sdef.Opcode() {
		case pcode.IntMult:
			if k := sdef.Input(1); k != nil && k.IsConstant() {
				scale = k.ConstantValue()
			}
		case pcode.IntLeft:
			if k := sdef.Input(1); k != nil && k.IsConstant() {
				scale = uint64(1) << k.ConstantValue()
			}
		}
	}
	return addressing{tableBase: base.ConstantValue(), scale: scale, entrySize: entrySize}, true
}

// indexBound looks for a comparison that bounds the index feeding br
// against a constant — the "N cases" discovery step spec.md §4.6
// requires before recoverJumpTable can trust a bound. It scans every
// INT_LESS/INT_LESSEQUAL op in the store for one whose non-constant
// operand lies in br's target ancestry, returning the constant operand
// as-is (INT_LESS) or plus one (INT_LESSEQUAL). Whether the comparison
// dominates br is not checked.
func indexBound(store *varnode.Store, br *varnode.Operation) (int, bool) {
	target := br.Input(0)
	if target == nil {
		return 0, false
	}
	roots := ancestryRoots(target, 32)

	for _, cmp := range append(store.ByOpcode(pcode.IntLess), store.ByOpcode(pcode.IntLessEqual)...) {
		a, b := cmp.Input(0), cmp.Input(1)
		if a == nil || b == nil {
			continue
		}
		var candidate, k *varnode.Variable
		switch {
		case b.IsConstant() && !a.IsConstant():
			candidate, k = a, b
		case a.IsConstant() && !b.IsConstant():
			candidate, k = b, a
		default:
			continue
		}
		if !roots[candidate] {
			continue
		}
		n := int(k.ConstantValue())
		if cmp.Opcode() == pcode.IntLess {
			return n, true
		}
		return n + 1, true
	}
	return 0, false
}

// ancestryRoots collects the set of non-constant variables reachable by
// walking v's definer chain up to maxSteps deep, used to test whether a
// comparison operand shares ancestry with the BRANCHIND target.
func ancestryRoots(v *varnode.Variable, maxSteps int) map[*varnode.Variable]bool {
	out := map[*varnode.Variable]bool{v: true}
	frontier := []*varnode.Variable{v}
	for step := 0; step < maxSteps && len(frontier) > 0; step++ {
		var next []*varnode.Variable
		for _, cur := range frontier {
			def := cur.Definer()
			if def == nil {
				continue
			}
			for _, in := range def.Inputs() {
				if in == nil || in.IsConstant() || out[in] {
					continue
				}
				out[in] = true
				next = append(next, in)
			}
		}
		frontier = next
	}
	return out
}
