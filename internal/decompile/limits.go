package decompile

// Limits carries the per-function resource caps of spec.md §5:
// "Timeouts are implemented as configurable per-function limits."
// Breaching MaxInstructions fails lifting with diag.LiftError,
// MaxHeritagePasses reports diag.HeritageOverrun, MaxActionIterations
// reports diag.RuleNontermination, and a case count above
// MaxJumpTableCases is a diag.JumpTableFailure that leaves that branch
// unresolved. MaxStructuringIterations and MaxRulePoolIterations are
// not read by the driver.
type Limits struct {
	MaxInstructions           int
	MaxHeritagePasses         int
	MaxActionIterations       int
	MaxStructuringIterations  int
	MaxRulePoolIterations     int
	MaxJumpTableCases         int
}

// DefaultLimits returns a conservative limit set suitable for a single
// interactive decompile request.
func DefaultLimits() Limits {
	return Limits{
		MaxInstructions:          100000,
		MaxHeritagePasses:        64,
		MaxActionIterations:      256,
		MaxStructuringIterations: 4096,
		MaxRulePoolIterations:    64,
		MaxJumpTableCases:        512,
	}
}
