package decompile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pcodecore/internal/action"
	"pcodecore/internal/block"
	"pcodecore/internal/external"
	"pcodecore/internal/pcode"
	"pcodecore/internal/rules"
	"pcodecore/internal/symbols"
	"pcodecore/internal/types"
	"pcodecore/internal/varnode"
)

const (
	testEntry  = 0x400000
	testReturn = 0x400004
)

// straightLineTranslator lifts a two-instruction function: a COPY of a
// constant into a register, then a RETURN of that register. Neither
// instruction branches, so lift's fall-through worklist walk visits
// testEntry then testReturn and stops.
type straightLineTranslator struct{}

func (straightLineTranslator) InstructionLength(ctx context.Context, addr uint64) (int, error) {
	return 4, nil
}

func (straightLineTranslator) OneInstruction(ctx context.Context, addr uint64, emit func(external.RawInstruction) error) error {
	switch addr {
	case testEntry:
		return emit(external.RawInstruction{
			Opcode:  pcode.Copy,
			Output:  &external.Operand{Space: int(varnode.SpaceRegister), Offset: 0x10, Size: 4},
			Inputs:  []external.Operand{{Kind: external.OperandConstant, Offset: 42, Size: 4}},
			Address: addr,
		})
	case testReturn:
		return emit(external.RawInstruction{
			Opcode:  pcode.Return,
			Inputs:  []external.Operand{{Kind: external.OperandNone, Space: int(varnode.SpaceRegister), Offset: 0x10, Size: 4}},
			Address: addr,
		})
	}
	return nil
}

type emptyMemReader struct{}

func (emptyMemReader) ReadOnlyValue(addr uint64, size int) (uint64, bool) { return 0, false }

func newTestDriver() *Driver {
	root := symbols.NewScope("global", nil)
	adapter := symbols.NewScopeAdapter(root)
	factory := types.NewFactory(types.DataOrganization{PointerSize: 8, IntSize: 4, LongSize: 8, DefaultAlign: 8})
	pool := rules.Default(8)

	return &Driver{
		Translator: straightLineTranslator{},
		Symbols:    adapter,
		Types:      factory,
		Memory:     emptyMemReader{},
		Rules:      pool,
		Actions:    action.Default(pool),
		Limits:     DefaultLimits(),
	}
}

// TestDriverDecompileFunctionStraightLine exercises the full six-step
// pipeline on a function with no control flow: lift, CFG build, SSA
// construction, the rule/action pipeline, and structuring all run and
// the return's read is heritaged back to the constant it copies,
// leaving no accepted parameters and a single leaf structured node.
func TestDriverDecompileFunctionStraightLine(t *testing.T) {
	d := newTestDriver()

	result, err := d.DecompileFunction(context.Background(), testEntry)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, uint64(testEntry), result.Entry)
	assert.Equal(t, "FUN_00400000", result.Name)
	assert.Nil(t, result.Reporter.Fatal())
	assert.Empty(t, result.GotoTargets)
	require.NotNil(t, result.Root)
	assert.Equal(t, block.StructLeaf, result.Root.Kind)
	assert.Empty(t, result.Prototype.Params, "the returned register is a locally computed constant, not a parameter")
}

func TestDriverEmitterWrapsResult(t *testing.T) {
	d := newTestDriver()

	result, err := d.DecompileFunction(context.Background(), testEntry)
	require.NoError(t, err)

	emitter := d.Emitter(result)
	require.NotNil(t, emitter)
	assert.NotNil(t, emitter.StructuredRoot())
	assert.Equal(t, "default", emitter.Prototype().Convention)
	assert.Empty(t, emitter.JumpTables())
}
