// Package fixture implements a wholly in-memory external.Translator and
// external.MemoryReader pair over a hand-authored JSON instruction
// listing. Real machine-code decoding is out of scope (spec.md §1
// Non-goals), so cmd/pcode-cli and cmd/pcode-bridge use this package's
// JSON program format in place of a processor-spec-driven translator a
// real embedding host would supply.
package fixture

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"pcodecore/internal/external"
)

// Instruction is one JSON-encoded machine instruction: its address,
// byte length, and the p-code operations it lifts to, in execution
// order.
type Instruction struct {
	Address uint64                    `json:"address"`
	Length  int                       `json:"length"`
	Ops     []external.RawInstruction `json:"ops"`
}

// Region is one JSON-encoded memory region backing jump-table case
// resolution: a base address, a read-only flag, and little-endian byte
// content.
type Region struct {
	Base     uint64 `json:"base"`
	ReadOnly bool   `json:"readOnly"`
	Bytes    []byte `json:"bytes"`
}

// wireProgram is the on-disk JSON shape; Program indexes it by address
// at load time.
type wireProgram struct {
	Instructions []Instruction     `json:"instructions"`
	Regions      []Region          `json:"regions"`
	EntryPoints  map[string]uint64 `json:"entryPoints"`
}

// Program is a complete fixture program, loaded from JSON and consulted
// as both an external.Translator and an external.MemoryReader.
type Program struct {
	instructions map[uint64]Instruction
	regions      []Region
	EntryPoints  map[string]uint64
}

// Load reads and parses path into a Program.
func Load(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fixture: reading %s: %w", path, err)
	}
	var wire wireProgram
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("fixture: parsing %s: %w", path, err)
	}
	p := &Program{
		instructions: make(map[uint64]Instruction, len(wire.Instructions)),
		regions:      wire.Regions,
		EntryPoints:  wire.EntryPoints,
	}
	for _, instr := range wire.Instructions {
		p.instructions[instr.Address] = instr
	}
	return p, nil
}

// OneInstruction implements external.Translator by replaying the
// pre-recorded operations for address.
func (p *Program) OneInstruction(ctx context.Context, address uint64, emit func(external.RawInstruction) error) error {
	instr, ok := p.instructions[address]
	if !ok {
		return fmt.Errorf("fixture: no instruction recorded at %#x", address)
	}
	for _, op := range instr.Ops {
		if err := emit(op); err != nil {
			return err
		}
	}
	return nil
}

// InstructionLength implements external.Translator.
func (p *Program) InstructionLength(ctx context.Context, address uint64) (int, error) {
	instr, ok := p.instructions[address]
	if !ok {
		return 0, fmt.Errorf("fixture: no instruction recorded at %#x", address)
	}
	return instr.Length, nil
}

// ReadOnlyValue implements external.MemoryReader by scanning the loaded
// regions for one that fully covers [addr, addr+size).
func (p *Program) ReadOnlyValue(addr uint64, size int) (uint64, bool) {
	for _, r := range p.regions {
		if !r.ReadOnly {
			continue
		}
		if addr < r.Base || addr+uint64(size) > r.Base+uint64(len(r.Bytes)) {
			continue
		}
		var v uint64
		start := addr - r.Base
		for i := 0; i < size; i++ {
			v |= uint64(r.Bytes[start+uint64(i)]) << (8 * uint(i))
		}
		return v, true
	}
	return 0, false
}
