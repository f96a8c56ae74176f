package diag

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassRecoverability(t *testing.T) {
	fatal := []Class{InvariantViolation, HeritageOverrun, RestartExhausted, ConfigError}
	for _, c := range fatal {
		assert.False(t, c.Recoverable(), "%s should be fatal", c)
	}
	recoverable := []Class{LiftError, StructuringIrreducible, RuleNontermination, JumpTableFailure, ParameterTrialUnrealistic}
	for _, c := range recoverable {
		assert.True(t, c.Recoverable(), "%s should be recoverable", c)
	}
}

func TestClassStringUnknown(t *testing.T) {
	assert.Equal(t, "lift-error", LiftError.String())
	assert.Contains(t, Class(99).String(), "diag.Class(99)")
}

func TestWrapPreservesCauseChain(t *testing.T) {
	cause := errors.New("boom")
	d := Wrap(JumpTableFailure, cause, "reading case table")

	assert.True(t, errors.Is(d.Cause, cause))
	assert.Contains(t, d.Error(), "boom")
	assert.Contains(t, d.Error(), "jump-table-failure")
}

func TestReporterAccumulatesWarningsAndStopsAtFirstFatal(t *testing.T) {
	r := NewReporter("myFunc")

	ok := r.Report(New(LiftError, "instruction skipped"))
	assert.True(t, ok)

	ok = r.Report(New(InvariantViolation, "store corrupted"))
	assert.False(t, ok)

	ok = r.Report(New(ConfigError, "second fatal ignored"))
	assert.False(t, ok)

	assert.NotNil(t, r.Fatal())
	assert.Equal(t, InvariantViolation, r.Fatal().Class)
	assert.Len(t, r.Warnings(), 1)
}

func TestWarningHeaderFormatsOneBlockPerWarning(t *testing.T) {
	r := NewReporter("myFunc")
	r.Report(New(LiftError, "first"))
	r.Report(New(ParameterTrialUnrealistic, "second"))

	header := r.WarningHeader(false)
	lines := strings.Split(strings.TrimRight(header, "\n"), "\n")

	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "lift-error")
	assert.Contains(t, lines[1], "parameter-trial-unrealistic")
}

func TestWarningHeaderEmptyWhenNoWarnings(t *testing.T) {
	r := NewReporter("myFunc")
	assert.Equal(t, "", r.WarningHeader(true))
}
