// Package symbols implements the symbol/scope database collaborator
// contract from spec.md §3 and §6: a hierarchical name-and-address-range
// database consulted on every type and name lookup, plus dynamic
// symbols identified by data-flow fingerprint rather than address.
package symbols

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"

	"github.com/iancoleman/strcase"
	"github.com/segmentio/ksuid"
	"golang.org/x/crypto/blake2b"

	"pcodecore/internal/types"
)

// Range is a half-open [Low, High) address range.
type Range struct {
	Low, High uint64
}

func (r Range) Contains(addr uint64) bool { return addr >= r.Low && addr < r.High }

// Symbol is one named entity in a scope.
type Symbol struct {
	ID   string // ksuid, stable across the symbol's lifetime
	Name string
	Type types.Type
}

func (s *Symbol) SymbolName() string { return s.Name } // satisfies varnode.SymbolBinding

// Entry is a (symbol, storage range, use range) triple, as required by
// spec.md §3: storage may be dynamic, identified by a fingerprint hash
// rather than an address.
type Entry struct {
	Symbol       *Symbol
	StorageRange Range   // zero value for a dynamic entry
	Fingerprint  [16]byte // valid only when StorageRange is the zero value
	UseRange     Range
}

func (e *Entry) isDynamic() bool { return e.StorageRange == (Range{}) }

// Scope is one level of the hierarchical symbol database.
type Scope struct {
	mu      sync.RWMutex
	name    string
	parent  *Scope
	entries []*Entry
	byName  map[string]*Entry
	byFP    map[[16]byte]*Entry
}

// NewScope creates a scope nested under parent (nil for the global
// scope).
func NewScope(name string, parent *Scope) *Scope {
	return &Scope{name: name, parent: parent, byName: map[string]*Entry{}, byFP: map[[16]byte]*Entry{}}
}

func (s *Scope) Name() string   { return s.name }
func (s *Scope) Parent() *Scope { return s.parent }

// Fingerprint computes the data-flow fingerprint hash used to identify
// dynamic storage (spec.md §3): a 16-byte BLAKE2b digest of seedParts,
// each followed by a zero byte, so the same seed list always hashes
// identically. The caller chooses what the seed parts describe.
func Fingerprint(seedParts ...string) [16]byte {
	h, _ := blake2b.New(16, nil)
	for _, p := range seedParts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	var out [16]byte
	copy(out[:], h.Sum(nil))
	return out
}

// QueryProperties implements spec.md §6's
// `query-properties(addr, size, usepoint) -> (symbol-entry?, flags)` for
// address-backed storage: it walks from this scope up to the global
// scope, returning the first entry whose storage range contains addr
// and whose use range contains usepoint.
func (s *Scope) QueryProperties(addr uint64, size int, usepoint uint64) (*Entry, bool) {
	for scope := s; scope != nil; scope = scope.parent {
		scope.mu.RLock()
		for _, e := range scope.entries {
			if e.isDynamic() {
				continue
			}
			if e.StorageRange.Contains(addr) && e.StorageRange.Contains(addr+uint64(size)-1) && e.UseRange.Contains(usepoint) {
				scope.mu.RUnlock()
				return e, true
			}
		}
		scope.mu.RUnlock()
	}
	return nil, false
}

// QueryDynamic looks up a dynamic symbol entry by fingerprint, walking
// the same parent chain as QueryProperties.
func (s *Scope) QueryDynamic(fp [16]byte) (*Entry, bool) {
	for scope := s; scope != nil; scope = scope.parent {
		scope.mu.RLock()
		e, ok := scope.byFP[fp]
		scope.mu.RUnlock()
		if ok {
			return e, true
		}
	}
	return nil, false
}

// AddSymbol defines a new address-backed symbol entry in this scope.
func (s *Scope) AddSymbol(name string, t types.Type, storage, use Range) *Entry {
	sym := &Symbol{ID: ksuid.New().String(), Name: name, Type: t}
	e := &Entry{Symbol: sym, StorageRange: storage, UseRange: use}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	s.byName[name] = e
	return e
}

// AddDynamicSymbol implements spec.md §6's
// `add-dynamic-symbol(name, type, use-addr, hash) -> symbol`: the
// symbol's storage is identified by fingerprint hash, not address.
func (s *Scope) AddDynamicSymbol(name string, t types.Type, useAddr uint64, fp [16]byte) *Symbol {
	sym := &Symbol{ID: ksuid.New().String(), Name: name, Type: t}
	e := &Entry{Symbol: sym, Fingerprint: fp, UseRange: Range{Low: useAddr, High: useAddr + 1}}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	s.byName[name] = e
	s.byFP[fp] = e
	return sym
}

// LookupLocal finds a symbol by name in this scope only.
func (s *Scope) LookupLocal(name string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byName[name]
	return e, ok
}

// Lookup finds a symbol by name, walking up through parent scopes.
func (s *Scope) Lookup(name string) (*Entry, bool) {
	for scope := s; scope != nil; scope = scope.parent {
		if e, ok := scope.LookupLocal(name); ok {
			return e, true
		}
	}
	return nil, false
}

// Entries returns this scope's entries in a stable, name-sorted order —
// used by the emitter's per-scope iteration (spec.md §6 "iteration over
// scopes and per-scope entries").
func (s *Scope) Entries() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]*Entry(nil), s.entries...)
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol.Name < out[j].Symbol.Name })
	return out
}

// BuildVariableName implements spec.md §6's
// `build-variable-name(addr, usepoint, type, seed) -> string`: a seed
// string (often a register or field name recovered elsewhere) is cased
// into a valid identifier, disambiguated against this scope if needed.
func (s *Scope) BuildVariableName(addr uint64, usepoint uint64, t types.Type, seed string) string {
	base := strcase.ToLowerCamel(seed)
	if base == "" {
		base = fmt.Sprintf("var_%08x", addr)
	}
	name := base
	for i := 1; ; i++ {
		if _, exists := s.LookupLocal(name); !exists {
			return name
		}
		name = fmt.Sprintf("%s_%d", base, i)
	}
}

// randomSuffix is used only by tests that need a collision-free scratch
// name without depending on iteration order.
func randomSuffix() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
