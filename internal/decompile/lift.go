// lift.go implements the driver's second step (spec.md §4.2 "initial
// build"): walking the reachable instruction graph from a function's
// entry address, materializing every emitted p-code operation into a
// varnode.Store, and annotating the resulting stream with the
// fall-through bit and branch-target set that block.Build partitions
// into basic blocks. Grounded on the teacher's driver-owns-the-loop
// idiom (the translator only ever sees one instruction at a time; the
// caller owns traversal), generalized from AST-walking to worklist
// instruction discovery.
package decompile

import (
	"context"

	"github.com/pkg/errors"

	"pcodecore/internal/block"
	"pcodecore/internal/diag"
	"pcodecore/internal/external"
	"pcodecore/internal/pcode"
	"pcodecore/internal/varnode"
)

// flowTracker is the lift-time worklist of instruction addresses:
// seeded with the function entry, grown as direct branch and
// conditional-branch targets are discovered. BRANCHIND targets are
// deliberately never enqueued here — they resolve later, if at all,
// through jump-table recovery (jumptable.go), after which buildCFG
// (driver.go) lifts each recovered case address in a further call.
type flowTracker struct {
	pending []uint64
	queued  map[uint64]bool
	done    map[uint64]bool
}

func newFlowTracker(entry uint64) *flowTracker {
	t := &flowTracker{queued: map[uint64]bool{}, done: map[uint64]bool{}}
	t.enqueue(entry)
	return t
}

func (t *flowTracker) hasPending() bool { return len(t.pending) > 0 }

func (t *flowTracker) next() uint64 {
	addr := t.pending[0]
	t.pending = t.pending[1:]
	return addr
}

func (t *flowTracker) visited(addr uint64) bool { return t.done[addr] }

func (t *flowTracker) markVisited(addr uint64) { t.done[addr] = true }

func (t *flowTracker) enqueue(addr uint64) {
	if t.queued[addr] {
		return
	}
	t.queued[addr] = true
	t.pending = append(t.pending, addr)
}

// lift walks every instruction reachable from entry, in worklist order,
// and returns the raw operation stream block.Build expects. It never
// visits an address twice and never emits more than limits.MaxInstructions
// operations, failing with diag.LiftError once the budget is exhausted
// (spec.md §5 "Timeouts are implemented as configurable per-function
// limits").
func lift(ctx context.Context, store *varnode.Store, tr external.Translator, entry uint64, limits Limits) ([]block.RawOp, error) {
	tracker := newFlowTracker(entry)
	var stream []block.RawOp
	count := 0

	for tracker.hasPending() {
		addr := tracker.next()
		if tracker.visited(addr) {
			continue
		}
		tracker.markVisited(addr)

		instrOps, fallsThrough, targets, err := liftOne(ctx, store, tr, addr, limits, &count)
		if err != nil {
			return nil, err
		}
		if len(instrOps) == 0 {
			continue
		}

		if fallsThrough {
			length, err := tr.InstructionLength(ctx, addr)
			if err != nil {
				return nil, errors.Wrapf(err, "lift: instruction length at %#x", addr)
			}
			tracker.enqueue(addr + uint64(length))
		}
		for _, t := range targets {
			tracker.enqueue(t)
		}

		instrOps[len(instrOps)-1].FallsThrough = fallsThrough
		instrOps[len(instrOps)-1].BranchTargets = targets
		stream = append(stream, instrOps...)
	}

	return stream, nil
}

// liftOne materializes one instruction's p-code operations and derives
// its control-flow exit: the fall-through bit and any direct branch
// targets. Instructions default to falling through; only an emitted
// branch, indirect branch, or return op overrides that.
func liftOne(ctx context.Context, store *varnode.Store, tr external.Translator, addr uint64, limits Limits, count *int) ([]block.RawOp, bool, []uint64, error) {
	var ops []block.RawOp
	fallsThrough := true
	var targets []uint64
	order := 0

	err := tr.OneInstruction(ctx, addr, func(raw external.RawInstruction) error {
		*count++
		if *count > limits.MaxInstructions {
			return diag.New(diag.LiftError, "instruction budget exceeded")
		}

		op := store.NewOp(raw.Opcode, len(raw.Inputs), varnode.Address{Offset: addr, Order: order})
		order++
		for i, in := range raw.Inputs {
			if err := store.SetInput(op, i, materializeOperand(store, in)); err != nil {
				return errors.Wrap(err, "lift: binding input")
			}
		}
		if raw.Output != nil {
			if _, err := store.NewOutputOf(op, operandStorage(*raw.Output)); err != nil {
				return errors.Wrap(err, "lift: binding output")
			}
		}
		ops = append(ops, block.RawOp{Op: op})

		switch raw.Opcode {
		case pcode.Branch:
			fallsThrough = false
			if t, ok := addressTarget(raw); ok {
				targets = append(targets, t)
			}
		case pcode.CBranch:
			fallsThrough = true
			if t, ok := addressTarget(raw); ok {
				targets = append(targets, t)
			}
		case pcode.BranchInd, pcode.Return:
			fallsThrough = false
		default:
			if raw.Opcode.IsCall() {
				fallsThrough = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, false, nil, err
	}
	return ops, fallsThrough, targets, nil
}

// materializeOperand turns one raw operand into a store-owned variable,
// per operand kind: constants dedup through the single-reader rule,
// uniques get a fresh store-assigned offset, everything else is a plain
// read with no prior definition in this function.
func materializeOperand(store *varnode.Store, op external.Operand) *varnode.Variable {
	switch op.Kind {
	case external.OperandConstant:
		return store.NewConstant(op.Offset, op.Size)
	case external.OperandUnique:
		return store.NewUnique(op.Size)
	default:
		return store.NewInput(operandStorage(op))
	}
}

func operandStorage(op external.Operand) varnode.Storage {
	return varnode.Storage{Space: varnode.SpaceID(op.Space), Offset: op.Offset, Size: op.Size}
}

// addressTarget extracts a direct branch's target address from its
// first operand, when the translator supplied it as a resolved address
// rather than a computed value.
func addressTarget(raw external.RawInstruction) (uint64, bool) {
	if len(raw.Inputs) == 0 {
		return 0, false
	}
	in := raw.Inputs[0]
	if in.Kind != external.OperandAddress {
		return 0, false
	}
	return in.Offset, true
}
