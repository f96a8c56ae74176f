// Package rules implements the opcode-indexed local-rewrite engine of
// spec.md §4.4. The teacher's optimization pipeline
// (internal/ir/optimizations.go) applies a short, hardcoded pass list
// once per program; this package generalizes that Name/Apply pass
// shape into named, grouped rules gathered into pools, indexed per
// opcode, and driven to a fixed point with per-rule statistics and
// breakpoints, which spec.md's rule engine requires and the teacher's
// single-shot pipeline does not.
package rules

import (
	"fmt"

	"pcodecore/internal/pcode"
	"pcodecore/internal/varnode"
)

// Context is the per-function state a rule may consult while deciding
// whether to fire.
type Context struct {
	Store *varnode.Store
}

// Rule is a stateless (per-function) local rewrite (spec.md §4.4).
type Rule interface {
	Name() string
	Group() string
	// OpcodeFilter lists the opcodes this rule triggers on; an empty
	// slice means "all opcodes".
	OpcodeFilter() []pcode.Opcode
	// Apply attempts the rewrite against op. It returns true if it
	// mutated the store, false if it declined.
	Apply(ctx *Context, op *varnode.Operation) bool
}

// Stats tracks per-rule tests/successes (spec.md §4.4 "Per-rule
// statistics").
type Stats struct {
	Tests     int
	Successes int
}

// Breakpoints tracks the four persistent/one-shot break flavors a rule
// may carry (spec.md §4.4 "break-on-change / break-on-entry
// breakpoints").
type Breakpoints struct {
	BreakOnEntry       bool
	BreakOnChange      bool
	OneShotOnEntry     bool
	OneShotOnChange    bool
}

type ruleRecord struct {
	rule Rule
	stats Stats
	bp    Breakpoints
}

// Pool gathers a set of rules indexed per opcode (spec.md §4.4 "rule
// pool").
type Pool struct {
	records    []*ruleRecord
	byOpcode   map[pcode.Opcode][]*ruleRecord
	universal  []*ruleRecord // rules whose filter is empty ("all")
	maxSweeps  int
}

// NewPool creates an empty rule pool with a fixed-point iteration cap.
func NewPool(maxSweeps int) *Pool {
	if maxSweeps <= 0 {
		maxSweeps = 1
	}
	return &Pool{byOpcode: map[pcode.Opcode][]*ruleRecord{}, maxSweeps: maxSweeps}
}

// Register adds a rule to the pool, indexing it by every opcode in its
// filter, or into the universal set if the filter is empty.
func (p *Pool) Register(r Rule) {
	rec := &ruleRecord{rule: r}
	p.records = append(p.records, rec)
	filter := r.OpcodeFilter()
	if len(filter) == 0 {
		p.universal = append(p.universal, rec)
		return
	}
	for _, op := range filter {
		p.byOpcode[op] = append(p.byOpcode[op], rec)
	}
}

// SetBreakpoints installs the breakpoint configuration for the named
// rule.
func (p *Pool) SetBreakpoints(name string, bp Breakpoints) error {
	for _, rec := range p.records {
		if rec.rule.Name() == name {
			rec.bp = bp
			return nil
		}
	}
	return fmt.Errorf("rules: no rule named %q registered", name)
}

// StatsFor returns a copy of the named rule's accumulated statistics.
func (p *Pool) StatsFor(name string) (Stats, bool) {
	for _, rec := range p.records {
		if rec.rule.Name() == name {
			return rec.stats, true
		}
	}
	return Stats{}, false
}

// candidatesFor returns the ordered list of rules eligible for op,
// applied "in registration order" (spec.md §4.4) — opcode-specific
// rules before universal ones, since a targeted rule is more likely to
// fire and the spec only requires a deterministic order, not a
// specific one.
func (p *Pool) candidatesFor(op *varnode.Operation) []*ruleRecord {
	out := append([]*ruleRecord(nil), p.byOpcode[op.Opcode()]...)
	out = append(out, p.universal...)
	return out
}

// SweepResult reports the outcome of Apply.
type SweepResult struct {
	Sweeps       int
	Applications int
	BrokeAt      *BreakEvent // nil unless a breakpoint fired
}

// BreakEvent identifies which rule/operation caused Apply to stop
// early (spec.md §4.4/§4.5: "When a break fires during apply, the
// action returns -1").
type BreakEvent struct {
	RuleName string
	OpID     uint64
	OnEntry  bool
}

// Apply runs the pool to a fixed point over every alive op in creation
// order, per spec.md §4.4: "for each alive op in creation order, for
// each rule whose opcode filter matches, attempt it in registration
// order until one returns non-zero or all decline. On any success the
// pool is marked dirty; after a full sweep it is reapplied until no
// rule triggers ... bounded by a configurable maximum iteration count."
func (p *Pool) Apply(ctx *Context) SweepResult {
	var result SweepResult
	for sweep := 0; sweep < p.maxSweeps; sweep++ {
		result.Sweeps++
		dirty := false
		for _, op := range ctx.Store.AliveOps() {
			for _, rec := range p.candidatesFor(op) {
				if rec.bp.BreakOnEntry || rec.bp.OneShotOnEntry {
					rec.bp.OneShotOnEntry = false
					result.BrokeAt = &BreakEvent{RuleName: rec.rule.Name(), OpID: op.ID(), OnEntry: true}
					return result
				}
				rec.stats.Tests++
				if rec.rule.Apply(ctx, op) {
					rec.stats.Successes++
					dirty = true
					result.Applications++
					if rec.bp.BreakOnChange || rec.bp.OneShotOnChange {
						rec.bp.OneShotOnChange = false
						result.BrokeAt = &BreakEvent{RuleName: rec.rule.Name(), OpID: op.ID(), OnEntry: false}
						return result
					}
					break
				}
			}
		}
		if !dirty {
			break
		}
	}
	return result
}
