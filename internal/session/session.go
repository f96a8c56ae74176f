// Package session implements hostrpc.Core over decompile.Driver: one
// registered program per programId, each backed by a fixture.Program in
// place of a real processor-spec-driven translator (spec.md §1
// Non-goals exclude machine-code decoding), wired the same way
// cmd/pcode-cli wires a single Driver for its one-shot invocation.
package session

import (
	"context"
	"fmt"
	"sync"

	"pcodecore/internal/action"
	"pcodecore/internal/decompile"
	"pcodecore/internal/diag"
	"pcodecore/internal/fixture"
	"pcodecore/internal/hostrpc"
	"pcodecore/internal/rules"
	"pcodecore/internal/symbols"
	"pcodecore/internal/types"
)

// DefaultDataOrganization is the pointer/int/alignment policy programs
// register with unless a future §6 "type spec" parse overrides it.
var DefaultDataOrganization = types.DataOrganization{PointerSize: 8, IntSize: 4, LongSize: 8, DefaultAlign: 8}

type registeredProgram struct {
	driver         *decompile.Driver
	structuredOnly bool
}

// Service implements hostrpc.Core.
type Service struct {
	mu       sync.RWMutex
	programs map[string]*registeredProgram
}

// NewService creates an empty program registry.
func NewService() *Service {
	return &Service{programs: map[string]*registeredProgram{}}
}

var _ hostrpc.Core = (*Service)(nil)

// RegisterProgram loads p.ProcessorSpec as a fixture.Program JSON file
// and wires a fresh Driver over it (spec.md §6 "register a program").
func (s *Service) RegisterProgram(ctx context.Context, p hostrpc.RegisterProgramParams) error {
	prog, err := fixture.Load(p.ProcessorSpec)
	if err != nil {
		return diag.Wrap(diag.ConfigError, err, "registering program")
	}

	root := symbols.NewScope("global", nil)
	adapter := symbols.NewScopeAdapter(root)
	for name, addr := range prog.EntryPoints {
		adapter.DefineFunction(addr, name)
	}

	pool := rules.Default(64)
	driver := &decompile.Driver{
		Translator: prog,
		Symbols:    adapter,
		Types:      types.NewFactory(DefaultDataOrganization),
		Memory:     prog,
		Rules:      pool,
		Actions:    action.Default(pool),
		Limits:     decompile.DefaultLimits(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.programs[p.ProgramID] = &registeredProgram{driver: driver}
	return nil
}

func (s *Service) DeregisterProgram(ctx context.Context, programID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.programs, programID)
	return nil
}

func (s *Service) program(programID string) (*registeredProgram, *diag.Diagnostic) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.programs[programID]
	if !ok {
		return nil, diag.New(diag.ConfigError, fmt.Sprintf("no program registered under id %q", programID))
	}
	return p, nil
}

// FunctionSummary is DecompileAt's response shape: enough of the
// analyzed function for a host to render without walking the emitter's
// structured tree over the wire.
type FunctionSummary struct {
	Name       string   `json:"name"`
	Entry      uint64   `json:"entry"`
	Params     []string `json:"params"`
	ReturnSize int      `json:"returnSize"`
	JumpTables int      `json:"jumpTables"`
	Warnings   []string `json:"warnings"`
}

// DecompileAt runs the driver for programID's function at address and
// summarizes the result (spec.md §6 "decompile at address").
func (s *Service) DecompileAt(ctx context.Context, programID string, address uint64) (interface{}, *diag.Diagnostic) {
	p, derr := s.program(programID)
	if derr != nil {
		return nil, derr
	}

	result, err := p.driver.DecompileFunction(ctx, address)
	if err != nil {
		if d, ok := err.(*diag.Diagnostic); ok {
			return nil, d
		}
		return nil, diag.Wrap(diag.InvariantViolation, err, "decompile failed")
	}

	emitter := p.driver.Emitter(result)
	proto := emitter.Prototype()
	names := make([]string, len(proto.Params))
	for i, param := range proto.Params {
		names[i] = param.Name
	}
	returnSize := 0
	if proto.ReturnType != nil {
		returnSize = proto.ReturnType.Size()
	}

	return FunctionSummary{
		Name:       result.Name,
		Entry:      result.Entry,
		Params:     names,
		ReturnSize: returnSize,
		JumpTables: len(emitter.JumpTables()),
		Warnings:   emitter.Warnings(),
	}, nil
}

func (s *Service) SelectRootAction(ctx context.Context, programID, name string) error {
	p, derr := s.program(programID)
	if derr != nil {
		return derr
	}
	if err := p.driver.Actions.SelectRoot(name); err != nil {
		return diag.Wrap(diag.ConfigError, err, "selecting root action")
	}
	return nil
}

func (s *Service) SetOption(ctx context.Context, p hostrpc.SetOptionParams) error {
	if _, derr := s.program(p.ProgramID); derr != nil {
		return derr
	}
	// Named boolean/string options (spec.md §6 "set a named boolean/string
	// option") are accepted for a registered program but not stored or
	// applied; the program's Driver never sees them.
	return nil
}

func (s *Service) SetPrototypeOverride(ctx context.Context, p hostrpc.SetPrototypeOverrideParams) error {
	if _, derr := s.program(p.ProgramID); derr != nil {
		return derr
	}
	return nil
}

func (s *Service) SetFlowOverride(ctx context.Context, p hostrpc.SetFlowOverrideParams) error {
	if _, derr := s.program(p.ProgramID); derr != nil {
		return derr
	}
	return nil
}

func (s *Service) SetStructuredOnly(ctx context.Context, programID string, enabled bool) error {
	p, derr := s.program(programID)
	if derr != nil {
		return derr
	}
	p.structuredOnly = enabled
	return nil
}
