// Package decompile implements the per-function driver: the six-step
// orchestration of spec.md §4 that takes an entry address and the
// module's external collaborators and produces a fully analyzed
// function ready for emission. Grounded on the teacher's top-level
// Analyze/analyzeContract orchestration (internal/semantic/analyzer.go)
// and cmd/kanso-cli/main.go's parse-then-analyze-then-report pipeline
// shape, generalized from a one-shot AST pass to a bounded,
// resumable-on-restart per-function pipeline over machine code.
package decompile

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"

	"pcodecore/internal/action"
	"pcodecore/internal/block"
	"pcodecore/internal/diag"
	"pcodecore/internal/external"
	"pcodecore/internal/heritage"
	"pcodecore/internal/pcode"
	"pcodecore/internal/rules"
	"pcodecore/internal/types"
	"pcodecore/internal/varnode"
)

// Driver owns the external collaborators one decompile session needs
// and drives every function through the same fixed pipeline.
type Driver struct {
	Translator external.Translator
	Symbols    external.SymbolScopeDB
	Types      external.TypeFactory
	Memory     external.MemoryReader
	Rules      *rules.Pool
	Actions    *action.Database
	Limits     Limits
}

// Result is one function's completed analysis, ready to be wrapped in
// an Emitter and handed to the host.
type Result struct {
	Entry         uint64
	Name          string
	Store         *varnode.Store
	CFG           *block.CFG
	Root          *block.Structured
	GotoTargets   []*block.Block
	Prototype     external.Prototype
	JumpTables    []external.JumpTable
	HighVariables []*HighVariable
	Reporter      *diag.Reporter
}

// DecompileFunction runs the full pipeline for one function: (1) name
// and scope setup, (2) lifting, (3) initial CFG construction with
// jump-table recovery, (4) SSA construction, (5) the rule/action
// pipeline, (6) structuring and prototype recovery. A non-nil error
// means the function hit a fatal (non-recoverable) diagnostic; a
// non-fatal diagnostic is instead recorded on the returned Result's
// Reporter and analysis continues with best effort.
func (d *Driver) DecompileFunction(ctx context.Context, entry uint64) (*Result, error) {
	name, ok := d.Symbols.FindFunction(entry)
	if !ok || name == "" {
		name = fmt.Sprintf("FUN_%08x", entry)
	}
	reporter := diag.NewReporter(name)
	store := varnode.New()

	cfg, tables, err := d.buildCFG(ctx, store, entry, reporter)
	if err != nil {
		return nil, err
	}
	cfg.ComputeDominators()
	cfg.ClassifyEdges()

	if err := d.runHeritage(store, cfg, reporter); err != nil {
		return nil, err
	}

	if err := d.runActions(store, reporter); err != nil {
		return nil, err
	}

	propagateTypes(store, d.Types)

	candidates := trialParameters(store)
	proto := d.buildPrototype(entry, store, candidates)

	bounds := computeBlockBounds(cfg)
	highs := buildHighVariables(store, bounds)

	root, gotoTargets := cfg.Structure()
	if len(gotoTargets) > 0 {
		reporter.Report(diag.New(diag.StructuringIrreducible,
			fmt.Sprintf("%d block(s) left unstructured, emitted as goto targets", len(gotoTargets))))
	}

	insertCasts(store, highs)

	return &Result{
		Entry:         entry,
		Name:          name,
		Store:         store,
		CFG:           cfg,
		Root:          root,
		GotoTargets:   gotoTargets,
		Prototype:     proto,
		JumpTables:    tables,
		HighVariables: highs,
		Reporter:      reporter,
	}, nil
}

// Emitter wraps result into the outbound external.Emitter contract.
func (d *Driver) Emitter(result *Result) external.Emitter {
	return newFunctionEmitter(result, d.Symbols, d.Types)
}

// buildCFG performs step 2 (lift) and step 3 (initial CFG
// construction), resolving indirect branches through jump-table
// recovery on the function's own store before block partitioning is
// considered final (spec.md §4.6). Every round re-lifts newly
// discovered case addresses and rebuilds the block partition from the
// combined stream; it gives up after a small fixed number of rounds
// rather than looping on a pathological table-of-tables input.
func (d *Driver) buildCFG(ctx context.Context, store *varnode.Store, entry uint64, reporter *diag.Reporter) (*block.CFG, []external.JumpTable, error) {
	stream, err := lift(ctx, store, d.Translator, entry, d.Limits)
	if err != nil {
		return nil, nil, errors.Wrap(err, "decompile: lifting entry")
	}

	var tables []external.JumpTable
	const maxRounds = 8
	for round := 0; round < maxRounds; round++ {
		cfg, err := block.Build(store, stream)
		if err != nil {
			return nil, nil, errors.Wrap(err, "decompile: building control-flow graph")
		}
		cfg.RemoveUnreachable()

		unresolved := unresolvedIndirectBranches(cfg)
		if len(unresolved) == 0 {
			cfg.RemoveNoOpBlocks()
			return cfg, tables, nil
		}

		progressed := false
		for _, br := range unresolved {
			bound, ok := indexBound(store, br)
			if !ok {
				reporter.Report(diag.New(diag.JumpTableFailure, "no statically-determined bound for indirect branch"))
				continue
			}
			table, terr := recoverJumpTable(store, br, bound, d.Limits, d.Memory)
			if terr != nil {
				reporter.Report(asJumpTableDiagnostic(terr))
				continue
			}
			for _, c := range table.Cases {
				extra, lerr := lift(ctx, store, d.Translator, c, d.Limits)
				if lerr != nil {
					return nil, nil, errors.Wrapf(lerr, "decompile: lifting jump-table case at %#x", c)
				}
				stream = append(stream, extra...)
			}
			for i := range stream {
				if stream[i].Op == br {
					stream[i].BranchTargets = table.Cases
					stream[i].FallsThrough = false
					break
				}
			}
			tables = append(tables, *table)
			progressed = true
		}
		if !progressed {
			cfg.RemoveNoOpBlocks()
			return cfg, tables, nil
		}
	}
	return nil, nil, diag.New(diag.JumpTableFailure, "jump-table recovery did not converge")
}

func unresolvedIndirectBranches(cfg *block.CFG) []*varnode.Operation {
	var out []*varnode.Operation
	for _, blk := range cfg.Blocks() {
		ops := blk.Ops()
		if len(ops) == 0 {
			continue
		}
		last := ops[len(ops)-1]
		if last.Opcode() == pcode.BranchInd && len(blk.Out()) == 0 {
			out = append(out, last)
		}
	}
	return out
}

func asJumpTableDiagnostic(err error) *diag.Diagnostic {
	if d, ok := err.(*diag.Diagnostic); ok {
		return d
	}
	return diag.Wrap(diag.JumpTableFailure, err, "jump table recovery failed")
}

// reportOrFail records d on reporter; a non-recoverable class turns
// into a returned error the caller must abort on, a recoverable one
// returns nil so the pipeline proceeds with the diagnostic on record.
func reportOrFail(reporter *diag.Reporter, d *diag.Diagnostic) error {
	if !reporter.Report(d) {
		return d
	}
	return nil
}

// runHeritage performs step 4: SSA construction over every tracked
// address space, one pass at a time, until two consecutive passes over
// a space insert no new phi operations (spec.md §4.3's per-space pass
// loop) or the function's total heritage-pass budget is exhausted.
func (d *Driver) runHeritage(store *varnode.Store, cfg *block.CFG, reporter *diag.Reporter) error {
	policies := []heritage.SpacePolicy{
		{Space: varnode.SpaceRegister},
		{Space: varnode.SpaceStack},
		{Space: varnode.SpaceRAM},
	}
	hb := heritage.NewBuilder(store, cfg, policies)

	total := 0
	for _, p := range policies {
		quiet := 0
		for quiet < 2 {
			total++
			if total > d.Limits.MaxHeritagePasses {
				return reportOrFail(reporter, diag.New(diag.HeritageOverrun, "heritage pass budget exceeded"))
			}
			n, err := hb.RunPass(p.Space)
			if err != nil {
				return reportOrFail(reporter, diag.Wrap(diag.InvariantViolation, err, "heritage pass failed"))
			}
			if n == 0 {
				quiet++
			} else {
				quiet = 0
			}
		}
	}
	return nil
}

// runActions performs step 5: apply the currently selected root action
// to a fixed point, observing restart requests and the per-function
// iteration budget (spec.md §4.5/§9). A persistent breakpoint with no
// attached console will exhaust the iteration budget rather than hang,
// surfacing as a recoverable rule-nontermination diagnostic.
func (d *Driver) runActions(store *varnode.Store, reporter *diag.Reporter) error {
	current, err := d.Actions.Current()
	if err != nil {
		return reportOrFail(reporter, diag.Wrap(diag.ConfigError, err, "no root action selected"))
	}
	current.Reset()
	fc := &action.FuncContext{RuleCtx: &rules.Context{Store: store}}

	for i := 0; ; i++ {
		if i >= d.Limits.MaxActionIterations {
			return reportOrFail(reporter, diag.New(diag.RuleNontermination, "action pipeline exceeded iteration limit"))
		}
		res, err := current.Apply(fc)
		if err != nil {
			if stderrors.Is(err, action.ErrRestartExhausted) {
				return reportOrFail(reporter, diag.Wrap(diag.RestartExhausted, err, "action restart budget exhausted"))
			}
			return reportOrFail(reporter, diag.Wrap(diag.InvariantViolation, err, "action pipeline failed"))
		}
		if res == action.ResultComplete {
			return nil
		}
	}
}

// buildPrototype assembles a recovered signature from the accepted
// parameter-trial candidates, in storage-offset order (spec.md §4.6).
// Each parameter's type comes from type propagation when available,
// falling back to an unknown-metatype base type of its declared size.
// The return type is likewise read off the RETURN sites' own operand
// type when every RETURN in the function agrees; nothing in this
// pipeline observes a callee's own return-value convention beyond that
// without inspecting its callers, which is out of scope for a
// per-function driver.
func (d *Driver) buildPrototype(entry uint64, store *varnode.Store, candidates []ParamCandidate) external.Prototype {
	var params []external.Parameter
	for _, c := range candidates {
		if c.Verdict != ParamAccept {
			continue
		}
		t := candidateType(c, d.Types)
		seed := fmt.Sprintf("param_%x", c.Storage.Offset)
		name := d.Symbols.BuildVariableName(entry, c.Storage.Offset, t, seed)
		params = append(params, external.Parameter{Name: name, Type: t})
	}
	return external.Prototype{
		ReturnType: returnType(store, d.Types),
		Params:     params,
		Convention: "default",
	}
}

// candidateType prefers the candidate's own propagated type, falling
// back to an unknown base type of its declared storage size.
func candidateType(c ParamCandidate, factory external.TypeFactory) types.Type {
	if c.Variable != nil {
		if t, ok := c.Variable.Type().(types.Type); ok && t != nil {
			return t
		}
	}
	return factory.Base(c.Storage.Size, types.Unknown)
}

// returnType reads the operand type every RETURN site shares, falling
// back to an unknown 8-byte value when the function has no RETURN, a
// RETURN with an untyped operand, or RETURNs that disagree.
func returnType(store *varnode.Store, factory external.TypeFactory) types.Type {
	var common types.Type
	for _, op := range store.ByOpcode(pcode.Return) {
		v := op.Input(0)
		if v == nil {
			return factory.Base(8, types.Unknown)
		}
		t, ok := v.Type().(types.Type)
		if !ok || t == nil {
			return factory.Base(8, types.Unknown)
		}
		if common == nil {
			common = t
			continue
		}
		if common.Metatype() != t.Metatype() || common.Size() != t.Size() {
			return factory.Base(8, types.Unknown)
		}
	}
	if common == nil {
		return factory.Base(8, types.Unknown)
	}
	return common
}
