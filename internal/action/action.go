// Package action implements the leaf/group/restart-group action
// pipeline of spec.md §4.5, using the explicit state machine spec.md §9
// prescribes in place of the source's coroutine-like breakpoint pause.
// Ordering and error-collection follow the teacher's
// internal/semantic/analyzer.go orchestration; the pass-list shape is
// the teacher's OptimizationPipeline (internal/ir/optimizations.go)
// generalized to a tree of named, groupable actions instead of a flat
// list run exactly once.
package action

import (
	"github.com/pkg/errors"

	"pcodecore/internal/rules"
)

// Status is one state of the per-action resume state machine (spec.md
// §9: "explicit state machine per action with states {start,
// started-break-hit, repeating, middle, end, action-break}").
type Status int

const (
	StatusStart Status = iota
	StatusStartedBreakHit
	StatusRepeating
	StatusMiddle
	StatusEnd
	StatusActionBreak
)

// Flags carries the per-action property bits of spec.md §4.5.
type Flags struct {
	OncePerFunction bool
	ChangeOnlyOnce  bool
	WarningsEnabled bool
}

// Counters tracks the tests/apply counters spec.md §4.5 requires: "Each
// application increments a tests counter; reports of change increment
// an apply counter."
type Counters struct {
	Tests int
	Apply int
}

// Breakpoints mirrors internal/rules.Breakpoints for actions (spec.md
// §4.5: "each action and each rule may have a persistent break-on-entry,
// persistent break-on-change, and one-shot variant of each").
type Breakpoints struct {
	BreakOnEntry    bool
	BreakOnChange   bool
	OneShotOnEntry  bool
	OneShotOnChange bool
}

// Result is the outcome of one Apply call: 0 for full completion, -1
// for a partial application stopped at a breakpoint.
type Result int

const (
	ResultComplete Result = 0
	ResultPartial  Result = -1
)

// FuncContext is the per-function state actions and rules mutate.
type FuncContext struct {
	RuleCtx        *rules.Context
	RestartPending bool
}

// RequestRestart implements spec.md §4.5's restart signal: "an action
// sets a per-function restart-pending flag."
func (fc *FuncContext) RequestRestart() { fc.RestartPending = true }

// Action is the common contract every pipeline node satisfies.
type Action interface {
	Name() string
	Group() string
	Flags() Flags
	Status() Status
	// Reset re-initializes the action to StatusStart (spec.md §4.5
	// "reset (which re-initializes each sub-action to initial status)").
	Reset()
	// Apply performs (or resumes) the action's work, returning
	// ResultComplete or ResultPartial. A non-nil error is always fatal
	// for the function (spec.md §9: "a result type with a typed error
	// payload ... no exception-style unwinding across rule boundaries").
	Apply(fc *FuncContext) (Result, error)
	Counters() Counters
	SetBreakpoints(Breakpoints)
}

// baseAction holds the fields common to every Action implementation.
type baseAction struct {
	name     string
	group    string
	flags    Flags
	status   Status
	counters Counters
	bp       Breakpoints
	ranOnce  bool
}

func (b *baseAction) Name() string        { return b.name }
func (b *baseAction) Group() string       { return b.group }
func (b *baseAction) Flags() Flags        { return b.flags }
func (b *baseAction) Status() Status      { return b.status }
func (b *baseAction) Counters() Counters  { return b.counters }
func (b *baseAction) SetBreakpoints(bp Breakpoints) { b.bp = bp }
func (b *baseAction) Reset() {
	b.status = StatusStart
	b.ranOnce = false
}

// LeafAction is a single transformation with a body (spec.md §4.5
// "Leaf action").
type LeafAction struct {
	baseAction
	Body func(fc *FuncContext) (changed bool, complete bool)
}

// NewLeaf constructs a leaf action.
func NewLeaf(name, group string, flags Flags, body func(fc *FuncContext) (bool, bool)) *LeafAction {
	return &LeafAction{baseAction: baseAction{name: name, group: group, flags: flags, status: StatusStart}, Body: body}
}

func (l *LeafAction) Apply(fc *FuncContext) (Result, error) {
	if l.flags.OncePerFunction && l.ranOnce {
		l.status = StatusEnd
		return ResultComplete, nil
	}
	if l.bp.BreakOnEntry || l.bp.OneShotOnEntry {
		l.bp.OneShotOnEntry = false
		l.status = StatusStartedBreakHit
		return ResultPartial, nil
	}
	l.counters.Tests++
	changed, complete := l.Body(fc)
	if changed {
		l.counters.Apply++
	}
	if l.flags.ChangeOnlyOnce && changed {
		l.ranOnce = true
	}
	if l.bp.BreakOnChange && changed || l.bp.OneShotOnChange && changed {
		l.bp.OneShotOnChange = false
		l.status = StatusActionBreak
		return ResultPartial, nil
	}
	if !complete {
		l.status = StatusMiddle
		return ResultPartial, nil
	}
	l.ranOnce = true
	l.status = StatusEnd
	return ResultComplete, nil
}

// GroupAction runs an ordered list of sub-actions sequentially, with an
// optional repeat-until-fixed-point flag (spec.md §4.5 "Group action").
type GroupAction struct {
	baseAction
	Children            []Action
	RepeatUntilFixed    bool
	cursor              int
}

func NewGroup(name, group string, flags Flags, repeatUntilFixed bool, children ...Action) *GroupAction {
	return &GroupAction{
		baseAction:       baseAction{name: name, group: group, flags: flags, status: StatusStart},
		Children:         children,
		RepeatUntilFixed: repeatUntilFixed,
	}
}

func (g *GroupAction) Reset() {
	g.baseAction.Reset()
	g.cursor = 0
	for _, c := range g.Children {
		c.Reset()
	}
}

func (g *GroupAction) Apply(fc *FuncContext) (Result, error) {
	if g.status == StatusStart {
		g.status = StatusMiddle
	}
	anyChanged := false
	for g.cursor < len(g.Children) {
		child := g.Children[g.cursor]
		before := child.Counters().Apply
		res, err := child.Apply(fc)
		if err != nil {
			return ResultPartial, errors.Wrapf(err, "action %s: sub-action %s failed", g.name, child.Name())
		}
		after := child.Counters().Apply
		if after > before {
			anyChanged = true
			g.counters.Apply++
		}
		g.counters.Tests++
		if res == ResultPartial {
			g.status = StatusActionBreak
			return ResultPartial, nil
		}
		g.cursor++
	}
	if g.RepeatUntilFixed && anyChanged {
		g.cursor = 0
		for _, c := range g.Children {
			c.Reset()
		}
		g.status = StatusRepeating
		return g.Apply(fc)
	}
	g.status = StatusEnd
	return ResultComplete, nil
}

// RestartGroupAction is a GroupAction that also observes and services
// the function's restart-pending flag, up to MaxRestarts (spec.md §4.5
// "Restart group action").
type RestartGroupAction struct {
	GroupAction
	MaxRestarts int
	restarts    int
}

// ErrRestartExhausted is returned (wrapped with the action name) when a
// restart-group action has already used MaxRestarts.
var ErrRestartExhausted = errors.New("action: restart-exhausted")

func NewRestartGroup(name, group string, flags Flags, maxRestarts int, children ...Action) *RestartGroupAction {
	return &RestartGroupAction{
		GroupAction: GroupAction{baseAction: baseAction{name: name, group: group, flags: flags, status: StatusStart}, Children: children},
		MaxRestarts: maxRestarts,
	}
}

func (r *RestartGroupAction) Reset() {
	r.GroupAction.Reset()
	r.restarts = 0
}

// Apply runs the group; on return, if the function requested a restart,
// this action clears the flag, resets its subtree, and re-runs, up to
// MaxRestarts (spec.md §4.5: "on return from the current group
// application, the restart-group action observes the flag, clears it,
// calls reset on the group ... and re-runs").
func (r *RestartGroupAction) Apply(fc *FuncContext) (Result, error) {
	res, err := r.GroupAction.Apply(fc)
	if err != nil {
		return ResultPartial, err
	}
	if res == ResultPartial {
		return ResultPartial, nil
	}
	if !fc.RestartPending {
		return ResultComplete, nil
	}
	if r.restarts >= r.MaxRestarts {
		return ResultPartial, errors.Wrapf(ErrRestartExhausted, "%s exceeded %d restarts", r.name, r.MaxRestarts)
	}
	fc.RestartPending = false
	r.restarts++
	r.GroupAction.Reset()
	return r.Apply(fc)
}
