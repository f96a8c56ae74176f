package symbols

import (
	"pcodecore/internal/external"
	"pcodecore/internal/types"
)

// symbolAdapter satisfies external.SymbolEntry over a *Symbol.
type symbolAdapter struct{ sym *Symbol }

func (a symbolAdapter) Name() string     { return a.sym.Name }
func (a symbolAdapter) Type() types.Type { return a.sym.Type }

// scopeIterator satisfies external.ScopeIterator over a *Scope.
type scopeIterator struct{ scope *Scope }

func (si scopeIterator) ScopeName() string { return si.scope.Name() }

func (si scopeIterator) Entries() []external.SymbolEntry {
	entries := si.scope.Entries()
	out := make([]external.SymbolEntry, len(entries))
	for i, e := range entries {
		out[i] = symbolAdapter{e.Symbol}
	}
	return out
}

// ScopeAdapter satisfies external.SymbolScopeDB over a *Scope, closing
// the gap between Scope's local (addr, size, usepoint) -> (*Entry, bool)
// query shape and the driver's (addr, size, usepoint) -> (SymbolEntry,
// ScopeFlags, bool) contract, plus the function-name and code-label
// registries Scope itself has no notion of.
type ScopeAdapter struct {
	root      *Scope
	functions map[uint64]string
	labels    map[uint64]string
}

// NewScopeAdapter wraps root, the global scope of one program's symbol
// database.
func NewScopeAdapter(root *Scope) *ScopeAdapter {
	return &ScopeAdapter{root: root, functions: map[uint64]string{}, labels: map[uint64]string{}}
}

// DefineFunction records addr as the entry point of a function named
// name, consulted by FindFunction.
func (a *ScopeAdapter) DefineFunction(addr uint64, name string) { a.functions[addr] = name }

// DefineCodeLabel records addr as a named code label, consulted by
// FindCodeLabel.
func (a *ScopeAdapter) DefineCodeLabel(addr uint64, name string) { a.labels[addr] = name }

func (a *ScopeAdapter) QueryProperties(addr uint64, size int, usepoint uint64) (external.SymbolEntry, external.ScopeFlags, bool) {
	e, ok := a.root.QueryProperties(addr, size, usepoint)
	if !ok {
		return nil, external.FlagNone, false
	}
	return symbolAdapter{e.Symbol}, external.FlagNone, true
}

func (a *ScopeAdapter) FindFunction(addr uint64) (string, bool) {
	name, ok := a.functions[addr]
	return name, ok
}

func (a *ScopeAdapter) FindCodeLabel(addr uint64) (string, bool) {
	name, ok := a.labels[addr]
	return name, ok
}

func (a *ScopeAdapter) BuildVariableName(addr, usepoint uint64, t types.Type, seed string) string {
	return a.root.BuildVariableName(addr, usepoint, t, seed)
}

func (a *ScopeAdapter) AddDynamicSymbol(name string, t types.Type, useAddr uint64, hash [16]byte) external.SymbolEntry {
	return symbolAdapter{a.root.AddDynamicSymbol(name, t, useAddr, hash)}
}

func (a *ScopeAdapter) Scopes() []external.ScopeIterator {
	var out []external.ScopeIterator
	for s := a.root; s != nil; s = s.Parent() {
		out = append(out, scopeIterator{s})
	}
	return out
}
