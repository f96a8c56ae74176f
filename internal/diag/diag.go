// Package diag implements the closed error taxonomy of spec.md §7:
// nine diagnostic classes, each carrying a fixed recoverability, plus a
// Reporter that accumulates non-fatal diagnostics into a function's
// warning header. Grounded on the teacher's
// internal/errors/{codes.go,reporter.go} (CompilerError, ErrorLevel,
// FormatError's caret-style rendering), narrowed from an open,
// growable error-code space to the spec's fixed nine-row table.
package diag

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/pkg/errors"
)

// Class is one row of spec.md §7's error taxonomy.
type Class int

const (
	LiftError Class = iota
	InvariantViolation
	HeritageOverrun
	StructuringIrreducible
	RuleNontermination
	RestartExhausted
	JumpTableFailure
	ParameterTrialUnrealistic
	ConfigError
)

var classNames = map[Class]string{
	LiftError:                 "lift-error",
	InvariantViolation:        "invariant-violation",
	HeritageOverrun:           "heritage-overrun",
	StructuringIrreducible:    "structuring-irreducible",
	RuleNontermination:        "rule-nontermination",
	RestartExhausted:          "restart-exhausted",
	JumpTableFailure:          "jump-table-failure",
	ParameterTrialUnrealistic: "parameter-trial-unrealistic",
	ConfigError:               "config-error",
}

func (c Class) String() string {
	if n, ok := classNames[c]; ok {
		return n
	}
	return fmt.Sprintf("diag.Class(%d)", int(c))
}

// Recoverable reports whether a diagnostic of this class permits the
// driver to continue the current function, per spec.md §7's Recovery
// column. Fatal classes (invariant-violation, heritage-overrun,
// restart-exhausted, config-error) abort the current function.
func (c Class) Recoverable() bool {
	switch c {
	case InvariantViolation, HeritageOverrun, RestartExhausted, ConfigError:
		return false
	default:
		return true
	}
}

// Diagnostic is one recorded error or warning.
type Diagnostic struct {
	Class   Class
	Message string
	Cause   error
}

func (d *Diagnostic) Error() string {
	if d.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", d.Class, d.Message, d.Cause)
	}
	return fmt.Sprintf("%s: %s", d.Class, d.Message)
}

// New constructs a Diagnostic with no cause.
func New(class Class, message string) *Diagnostic {
	return &Diagnostic{Class: class, Message: message}
}

// Wrap constructs a Diagnostic whose cause chain is preserved via
// github.com/pkg/errors, matching the teacher's habit of wrapping
// low-level errors with contextual messages rather than discarding
// them.
func Wrap(class Class, cause error, message string) *Diagnostic {
	return &Diagnostic{Class: class, Message: message, Cause: errors.Wrap(cause, message)}
}

// Reporter accumulates non-fatal diagnostics into a function's warning
// header (spec.md §7 "Recovery policy: all non-fatal classes surface
// as a header-scoped warning comment"), grounded on the teacher's
// ErrorReporter.FormatError caret-style rendering, replacing source
// caret positions with function-address context since diagnostics here
// are address-scoped, not source-column-scoped.
type Reporter struct {
	functionName string
	warnings     []*Diagnostic
	fatal        *Diagnostic
}

// NewReporter creates a reporter scoped to one function's analysis.
func NewReporter(functionName string) *Reporter {
	return &Reporter{functionName: functionName}
}

// Report records d. If d.Class is not recoverable and no fatal
// diagnostic has been recorded yet, this becomes the reporter's fatal
// diagnostic and Report returns false to signal the driver should
// abort the function.
func (r *Reporter) Report(d *Diagnostic) bool {
	if !d.Class.Recoverable() {
		if r.fatal == nil {
			r.fatal = d
		}
		return false
	}
	r.warnings = append(r.warnings, d)
	return true
}

// Fatal returns the reporter's fatal diagnostic, if any.
func (r *Reporter) Fatal() *Diagnostic { return r.fatal }

// Warnings returns the accumulated non-fatal diagnostics in report
// order.
func (r *Reporter) Warnings() []*Diagnostic { return r.warnings }

// WarningHeader assembles the function's warning header as one text
// block, matching the "one block" ordering resolved from
// original_source (each line prefixed identically, no per-class
// re-sorting) — grounded on the teacher's FormatError block-of-lines
// assembly.
func (r *Reporter) WarningHeader(colorize bool) string {
	if len(r.warnings) == 0 {
		return ""
	}
	prefix := "WARNING: "
	if colorize {
		prefix = color.YellowString("WARNING: ")
	}
	var out string
	for _, w := range r.warnings {
		out += fmt.Sprintf("%s%s: %s\n", prefix, w.Class, w.Message)
	}
	return out
}
