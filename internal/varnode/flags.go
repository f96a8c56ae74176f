package varnode

// VarFlag is a bit in a Variable's property bitset (spec.md §3).
type VarFlag uint32

const (
	VarInput VarFlag = 1 << iota
	VarConstant
	VarPersistent
	VarAddrTied
	VarReadOnly
	VarAnnotation
	VarMapped
	VarTypeLocked
	VarNameLocked
	VarIndirectCreation
	VarIncidentalCopy
	VarSpacebase
	VarWritten
	VarFree
	VarAddrForced
	VarVolatile
	VarImplicit
	VarExplicit
	VarMark
)

func (f VarFlag) Has(bit VarFlag) bool { return f&bit != 0 }

// OpFlag is a bit in an Operation's flag bitset (spec.md §3).
type OpFlag uint32

const (
	OpMark OpFlag = 1 << iota
	OpStartBasic
	OpBranch
	OpCall
	OpIndirectSource
	OpWarning
	OpHalt
	OpBadInstruction
	OpUnimplemented
	OpNoReturn
	OpSpecialProp
	OpIndirectCreation
)

func (f OpFlag) Has(bit OpFlag) bool { return f&bit != 0 }
