// Package varnode implements the IR store: the owner of every variable
// and operation for one function, and the sole entry point for mutating
// data-flow edges (spec.md §4.1).
package varnode

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/petermattis/goid"
	deadlock "github.com/sasha-s/go-deadlock"

	"pcodecore/internal/pcode"
)

// ErrInvariantViolation is the sentinel wrapped by every invariant
// failure the store detects (spec.md §7 diag.InvariantViolation).
var ErrInvariantViolation = errors.New("varnode: invariant violation")

// violation wraps ErrInvariantViolation with a specific message,
// keeping the taxonomy closed while still giving a human a reason.
func violation(format string, args ...any) error {
	return errors.Wrapf(ErrInvariantViolation, format, args...)
}

// Store owns all variables and operations for one function. Per the
// concurrency contract in spec.md §5, a Store is single-threaded. Every
// method takes a deadlock-detecting mutex, so a second goroutine's call
// waits for the first instead of racing with it. ownerGoroutine records
// the creating goroutine's id; nothing checks it.
type Store struct {
	mu deadlock.Mutex

	ownerGoroutine int64

	nextVarID uint64
	nextOpID  uint64

	vars []*Variable
	ops  []*Operation

	// byStorage / byDefAddr realize the two ordered indexes spec.md §3
	// requires: (storage, definition-address) and (definition-address,
	// storage). Kept as sorted slices rebuilt lazily rather than a
	// balanced tree — functions are small enough (single-digit
	// thousands of operations at most) that O(n log n) resort on
	// demand beats maintaining tree-balance invariants by hand, and it
	// keeps the store's mutation API simple: every edit just marks the
	// indexes dirty.
	byStorage    []*Variable
	byDefAddr    []*Variable
	indexesDirty bool

	constantByValue map[Storage]*Variable // dedup key including size, before the single-reader rule forces a split

	blockLists map[BlockHandle]*blockList
}

// New creates an empty store for one function, owned by the calling
// goroutine.
func New() *Store {
	return &Store{ownerGoroutine: goid.Get(), constantByValue: make(map[Storage]*Variable)}
}

func (s *Store) lock() func() {
	s.mu.Lock()
	return s.mu.Unlock
}

// --- Variable factories ---------------------------------------------

func (s *Store) newVariable(st Storage, flags VarFlag) *Variable {
	s.nextVarID++
	v := &Variable{id: s.nextVarID, storage: st, flags: flags}
	s.vars = append(s.vars, v)
	s.indexesDirty = true
	return v
}

// NewInput creates a free variable representing a read with no prior
// definition in this function (spec.md §4.1 "create input").
func (s *Store) NewInput(st Storage) *Variable {
	defer s.lock()()
	return s.newVariable(st, VarInput|VarFree)
}

// NewConstant creates (or, per the single-reader rule, duplicates) a
// constant variable of the given value and byte size.
func (s *Store) NewConstant(value uint64, size int) *Variable {
	defer s.lock()()
	st := Storage{Space: SpaceConstant, Offset: value, Size: size}
	if existing, ok := s.constantByValue[st]; ok && len(existing.readers) == 0 {
		return existing
	}
	v := s.newVariable(st, VarConstant|VarFree)
	s.constantByValue[st] = v
	return v
}

// NewUnique creates a unique-space temporary of the given byte size —
// used by rules that need scratch storage with no source-level meaning.
func (s *Store) NewUnique(size int) *Variable {
	defer s.lock()()
	s.nextVarID++ // burn an id so unique offsets stay distinct even across many temporaries
	offset := s.nextVarID
	return s.newVariable(Storage{Space: SpaceUnique, Offset: offset, Size: size}, VarFree)
}

// NewAnnotation creates an annotation variable (e.g. one encoding a
// pointer to another operation or an address space). Annotation
// variables never participate in data flow: they are never legal
// operation inputs to arithmetic, only to bookkeeping opcodes such as
// INDIRECT's second slot.
func (s *Store) NewAnnotation(st Storage) *Variable {
	defer s.lock()()
	return s.newVariable(st, VarAnnotation|VarFree)
}

// NewOutputOf atomically creates a fresh variable and binds it as op's
// output. Atomic because the store never observes an output variable
// that lacks a definer or an op whose Output() disagrees with the
// variable's Definer().
func (s *Store) NewOutputOf(op *Operation, st Storage) (*Variable, error) {
	defer s.lock()()
	if op.output != nil {
		return nil, violation("op %s already has an output", op)
	}
	v := s.newVariable(st, 0)
	v.definer = op
	v.flags &^= VarFree
	op.output = v
	return v, nil
}

// --- Operation factories ---------------------------------------------

// NewOp creates a detached operation with n empty input slots at the
// given instruction address.
func (s *Store) NewOp(opcode pcode.Opcode, n int, at Address) *Operation {
	defer s.lock()()
	s.nextOpID++
	op := &Operation{
		id:     s.nextOpID,
		opcode: opcode,
		inputs: make([]*Variable, n),
		seq:    at,
		list:   listDetached,
	}
	s.ops = append(s.ops, op)
	return op
}

// CloneOp copies opcode, flags, and output address (but not block
// linkage or inputs) from src into a new detached operation.
func (s *Store) CloneOp(src *Operation) *Operation {
	clone := s.NewOp(src.opcode, len(src.inputs), src.seq)
	clone.flags = src.flags
	return clone
}

// --- Linkage edits ----------------------------------------------------
//
// These are the sole entry points for mutating data flow (spec.md
// §4.1). Every edit preserves the reader-list invariant: an operation
// appears exactly once in the reader list of each of its current
// inputs.

// SetOpcode changes an operation's opcode in place. Callers are
// responsible for ensuring the new opcode's arity matches the existing
// input count; the rule engine's helpers do this before calling in.
func (s *Store) SetOpcode(op *Operation, opcode pcode.Opcode) {
	defer s.lock()()
	op.opcode = opcode
}

// SetInput binds variable v into op's slot i, removing op from the
// prior occupant's reader list and adding it to v's. If v is a constant
// that already has a reader, the single-reader rule forces a duplicate
// constant variable to be substituted instead of sharing v.
func (s *Store) SetInput(op *Operation, slot int, v *Variable) error {
	defer s.lock()()
	if slot < 0 || slot >= len(op.inputs) {
		return violation("SetInput: slot %d out of range for %s", slot, op)
	}
	if v != nil && v.IsConstant() && len(v.readers) > 0 {
		dup := s.newVariable(v.storage, v.flags)
		v = dup
	}
	if old := op.inputs[slot]; old != nil {
		old.removeReader(op)
	}
	op.inputs[slot] = v
	if v != nil {
		v.addReader(op)
	}
	return nil
}

// UnsetInput clears slot i, removing op from the prior occupant's
// reader list.
func (s *Store) UnsetInput(op *Operation, slot int) error {
	defer s.lock()()
	if slot < 0 || slot >= len(op.inputs) {
		return violation("UnsetInput: slot %d out of range for %s", slot, op)
	}
	if old := op.inputs[slot]; old != nil {
		if !old.removeReader(op) {
			return violation("UnsetInput: %s missing from reader list of %s", op, old)
		}
	}
	op.inputs[slot] = nil
	return nil
}

// InsertInput inserts v as a new slot at position i, shifting later
// slots up by one.
func (s *Store) InsertInput(op *Operation, slot int, v *Variable) error {
	defer s.lock()()
	if slot < 0 || slot > len(op.inputs) {
		return violation("InsertInput: slot %d out of range for %s", slot, op)
	}
	if v != nil && v.IsConstant() && len(v.readers) > 0 {
		v = s.newVariable(v.storage, v.flags)
	}
	op.inputs = append(op.inputs, nil)
	copy(op.inputs[slot+1:], op.inputs[slot:])
	op.inputs[slot] = v
	if v != nil {
		v.addReader(op)
	}
	return nil
}

// RemoveInput removes slot i entirely, shifting later slots down by
// one.
func (s *Store) RemoveInput(op *Operation, slot int) error {
	defer s.lock()()
	if slot < 0 || slot >= len(op.inputs) {
		return violation("RemoveInput: slot %d out of range for %s", slot, op)
	}
	if old := op.inputs[slot]; old != nil {
		if !old.removeReader(op) {
			return violation("RemoveInput: %s missing from reader list of %s", op, old)
		}
	}
	op.inputs = append(op.inputs[:slot], op.inputs[slot+1:]...)
	return nil
}

// SetAllInputs replaces every input slot at once.
func (s *Store) SetAllInputs(op *Operation, vs []*Variable) error {
	defer s.lock()()
	for _, old := range op.inputs {
		if old != nil {
			old.removeReader(op)
		}
	}
	out := make([]*Variable, len(vs))
	for i, v := range vs {
		if v != nil && v.IsConstant() && len(v.readers) > 0 {
			v = s.newVariable(v.storage, v.flags)
		}
		out[i] = v
		if v != nil {
			v.addReader(op)
		}
	}
	op.inputs = out
	return nil
}

// SetOutput binds v as op's output. v must not already be bound to a
// different definer.
func (s *Store) SetOutput(op *Operation, v *Variable) error {
	defer s.lock()()
	if op.output != nil {
		return violation("SetOutput: %s already has an output", op)
	}
	if v.definer != nil {
		return violation("SetOutput: %s already bound to %s", v, v.definer)
	}
	op.output = v
	v.definer = op
	v.flags &^= VarFree
	return nil
}

// UnsetOutput frees op's output without destroying the variable.
func (s *Store) UnsetOutput(op *Operation) *Variable {
	defer s.lock()()
	v := op.output
	if v == nil {
		return nil
	}
	op.output = nil
	v.definer = nil
	v.flags |= VarFree
	return v
}

// SwapInputs exchanges the variables in slots a and b. Reader lists are
// unaffected since each variable's own reader entry (pointing at op,
// not at a slot) does not change.
func (s *Store) SwapInputs(op *Operation, a, b int) error {
	defer s.lock()()
	if a < 0 || a >= len(op.inputs) || b < 0 || b >= len(op.inputs) {
		return violation("SwapInputs: slot out of range for %s", op)
	}
	op.inputs[a], op.inputs[b] = op.inputs[b], op.inputs[a]
	return nil
}

// SetIOP annotates an INDIRECT guard with the effect-producing
// operation it shadows (spec.md §4.3 step 3).
func (s *Store) SetIOP(indirect, effect *Operation) {
	defer s.lock()()
	indirect.iop = effect
}

// --- Destruction -------------------------------------------------------

// DestroyOp removes op from the store, unlinking its inputs and output
// first. Refuses to destroy an op still attached to a block: callers
// must Detach first (spec.md §4.1 failure semantics).
func (s *Store) DestroyOp(op *Operation) error {
	defer s.lock()()
	if op.list == listAlive {
		return violation("DestroyOp: %s is attached to a block", op)
	}
	for _, in := range op.inputs {
		if in != nil {
			in.removeReader(op)
		}
	}
	if op.output != nil {
		if len(op.output.readers) > 0 {
			return violation("DestroyOp: output of %s still has readers", op)
		}
		op.output.definer = nil
	}
	op.output = nil
	op.inputs = nil
	return nil
}

// DestroyRaw destroys op like DestroyOp and additionally drops every
// input constant that becomes reader-less as a result from the
// constant dedup table (spec.md §4.1 "destroy-raw"). The constant
// variables themselves stay in the store.
func (s *Store) DestroyRaw(op *Operation) error {
	consts := make([]*Variable, 0, len(op.inputs))
	for _, in := range op.inputs {
		if in != nil && in.IsConstant() {
			consts = append(consts, in)
		}
	}
	if err := s.DestroyOp(op); err != nil {
		return err
	}
	defer s.lock()()
	for _, c := range consts {
		if len(c.readers) == 0 {
			delete(s.constantByValue, c.storage)
		}
	}
	return nil
}

// --- Ordered indexes ---------------------------------------------------

func (s *Store) rebuildIndexes() {
	if !s.indexesDirty {
		return
	}
	s.byStorage = append(s.byStorage[:0], s.vars...)
	sort.SliceStable(s.byStorage, func(i, j int) bool {
		a, b := s.byStorage[i], s.byStorage[j]
		if a.storage.Space != b.storage.Space {
			return a.storage.Space < b.storage.Space
		}
		if a.storage.Offset != b.storage.Offset {
			return a.storage.Offset < b.storage.Offset
		}
		return defAddrOf(a).Less(defAddrOf(b))
	})
	s.byDefAddr = append(s.byDefAddr[:0], s.vars...)
	sort.SliceStable(s.byDefAddr, func(i, j int) bool {
		a, b := s.byDefAddr[i], s.byDefAddr[j]
		da, db := defAddrOf(a), defAddrOf(b)
		if da != db {
			return da.Less(db)
		}
		if a.storage.Space != b.storage.Space {
			return a.storage.Space < b.storage.Space
		}
		return a.storage.Offset < b.storage.Offset
	})
	s.indexesDirty = false
}

func defAddrOf(v *Variable) Address {
	if v.definer != nil {
		return v.definer.seq
	}
	return Address{}
}

// ByStorage returns variables ordered by (storage, definition-address).
func (s *Store) ByStorage() []*Variable {
	defer s.lock()()
	s.rebuildIndexes()
	out := make([]*Variable, len(s.byStorage))
	copy(out, s.byStorage)
	return out
}

// ByDefAddr returns variables ordered by (definition-address, storage).
func (s *Store) ByDefAddr() []*Variable {
	defer s.lock()()
	s.rebuildIndexes()
	out := make([]*Variable, len(s.byDefAddr))
	copy(out, s.byDefAddr)
	return out
}

// ByOpcode returns every alive operation with the given opcode, in
// creation order.
func (s *Store) ByOpcode(opcode pcode.Opcode) []*Operation {
	defer s.lock()()
	var out []*Operation
	for _, op := range s.ops {
		if op.list == listAlive && op.opcode == opcode {
			out = append(out, op)
		}
	}
	return out
}

// AliveOps returns every alive operation in creation order — the
// iteration order spec.md §5 requires for rule-pool sweeps.
func (s *Store) AliveOps() []*Operation {
	defer s.lock()()
	out := make([]*Operation, 0, len(s.ops))
	for _, op := range s.ops {
		if op.list == listAlive {
			out = append(out, op)
		}
	}
	return out
}

// BySeqNum returns the alive operation with the given sequence number,
// or nil.
func (s *Store) BySeqNum(seq Address) *Operation {
	defer s.lock()()
	for _, op := range s.ops {
		if op.list == listAlive && op.seq == seq {
			return op
		}
	}
	return nil
}

// InAddressRange returns every alive operation whose sequence number's
// instruction address falls within [lo, hi).
func (s *Store) InAddressRange(lo, hi uint64) []*Operation {
	defer s.lock()()
	var out []*Operation
	for _, op := range s.ops {
		if op.list == listAlive && op.seq.Offset >= lo && op.seq.Offset < hi {
			out = append(out, op)
		}
	}
	return out
}

// --- Insertion ----------------------------------------------------------
//
// The store owns the per-block intrusive linked list (spec.md §4.1):
// blocks themselves hold only an opaque BlockHandle identity, never the
// list pointers. internal/block calls these primitives and is
// responsible for the ordering policy (phis first, branch last,
// INDIRECT adjacent to its shadowed op); the store only guarantees the
// splice itself is consistent.

type blockList struct {
	head, tail *Operation
}

func (s *Store) list(blk BlockHandle) *blockList {
	if s.blockLists == nil {
		s.blockLists = make(map[BlockHandle]*blockList)
	}
	l, ok := s.blockLists[blk]
	if !ok {
		l = &blockList{}
		s.blockLists[blk] = l
	}
	return l
}

// InsertBegin makes op the first operation in blk.
func (s *Store) InsertBegin(op *Operation, blk BlockHandle) {
	defer s.lock()()
	s.detachLocked(op)
	l := s.list(blk)
	op.block = blk
	op.list = listAlive
	op.prevInList = nil
	op.nextInList = l.head
	if l.head != nil {
		l.head.prevInList = op
	}
	l.head = op
	if l.tail == nil {
		l.tail = op
	}
}

// InsertEnd makes op the last operation in blk.
func (s *Store) InsertEnd(op *Operation, blk BlockHandle) {
	defer s.lock()()
	s.detachLocked(op)
	l := s.list(blk)
	op.block = blk
	op.list = listAlive
	op.nextInList = nil
	op.prevInList = l.tail
	if l.tail != nil {
		l.tail.nextInList = op
	}
	l.tail = op
	if l.head == nil {
		l.head = op
	}
}

// InsertBefore inserts op immediately before follow, in follow's block.
func (s *Store) InsertBefore(op, follow *Operation) error {
	defer s.lock()()
	if follow.block == nil {
		return violation("InsertBefore: follow op %s is not attached to a block", follow)
	}
	s.detachLocked(op)
	l := s.list(follow.block)
	op.block = follow.block
	op.list = listAlive
	op.prevInList = follow.prevInList
	op.nextInList = follow
	if follow.prevInList != nil {
		follow.prevInList.nextInList = op
	} else {
		l.head = op
	}
	follow.prevInList = op
	return nil
}

// InsertAfter inserts op immediately after prev, in prev's block.
func (s *Store) InsertAfter(op, prev *Operation) error {
	defer s.lock()()
	if prev.block == nil {
		return violation("InsertAfter: prev op %s is not attached to a block", prev)
	}
	s.detachLocked(op)
	l := s.list(prev.block)
	op.block = prev.block
	op.list = listAlive
	op.nextInList = prev.nextInList
	op.prevInList = prev
	if prev.nextInList != nil {
		prev.nextInList.prevInList = op
	} else {
		l.tail = op
	}
	prev.nextInList = op
	return nil
}

// Detach removes op from its block's alive list and moves it to the
// dead list; it remains a fully linked (inputs/output intact)
// operation that can later be re-inserted.
func (s *Store) Detach(op *Operation) {
	defer s.lock()()
	s.detachLocked(op)
	op.list = listDead
}

func (s *Store) detachLocked(op *Operation) {
	if op.block == nil {
		op.list = listDetached
		return
	}
	l := s.list(op.block)
	if op.prevInList != nil {
		op.prevInList.nextInList = op.nextInList
	} else if l.head == op {
		l.head = op.nextInList
	}
	if op.nextInList != nil {
		op.nextInList.prevInList = op.prevInList
	} else if l.tail == op {
		l.tail = op.prevInList
	}
	op.prevInList = nil
	op.nextInList = nil
	op.block = nil
}

// OpsInBlock returns blk's alive operations in list order, the order
// the insertion calls above produced.
func (s *Store) OpsInBlock(blk BlockHandle) []*Operation {
	defer s.lock()()
	l := s.list(blk)
	var out []*Operation
	for op := l.head; op != nil; op = op.nextInList {
		out = append(out, op)
	}
	return out
}

// DropBlockList discards a block's list bookkeeping once every
// contained operation has been destroyed (called when a block itself is
// deleted).
func (s *Store) DropBlockList(blk BlockHandle) {
	defer s.lock()()
	delete(s.blockLists, blk)
}
