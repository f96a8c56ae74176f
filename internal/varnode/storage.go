package varnode

import "fmt"

// SpaceID names an address space. The constant space is reserved: a
// variable whose storage is in SpaceConstant carries the constant's
// value as its Offset, never a real memory address.
type SpaceID int

const (
	SpaceConstant SpaceID = iota
	SpaceUnique
	SpaceRegister
	SpaceStack
	SpaceRAM
	firstUserSpace
)

// Storage is a variable's immutable location: address-space id, byte
// offset within that space, and byte size. Immutable after creation
// per the data-model invariant in spec.md §3.
type Storage struct {
	Space  SpaceID
	Offset uint64
	Size   int // bytes, always — see SPEC_FULL.md's byte-vs-wordsize resolution
}

func (s Storage) String() string {
	return fmt.Sprintf("(space%d,0x%x,%d)", s.Space, s.Offset, s.Size)
}

// Overlaps reports whether two storages address any common byte.
func (s Storage) Overlaps(o Storage) bool {
	if s.Space != o.Space {
		return false
	}
	sEnd := s.Offset + uint64(s.Size)
	oEnd := o.Offset + uint64(o.Size)
	return s.Offset < oEnd && o.Offset < sEnd
}

// Contains reports whether o's byte range lies entirely within s.
func (s Storage) Contains(o Storage) bool {
	if s.Space != o.Space {
		return false
	}
	return o.Offset >= s.Offset && o.Offset+uint64(o.Size) <= s.Offset+uint64(s.Size)
}

// Address is an instruction address: the address space is implicit
// (code space) and order distinguishes multiple p-code ops lifted from
// the same machine instruction.
type Address struct {
	Offset uint64
	Order  int // sub-order within the instruction at Offset
}

func (a Address) Less(o Address) bool {
	if a.Offset != o.Offset {
		return a.Offset < o.Offset
	}
	return a.Order < o.Order
}

func (a Address) String() string {
	return fmt.Sprintf("%#x.%d", a.Offset, a.Order)
}
