package slot

import "fmt"

// Handle packs a slot index, a generation stamp and an allocated flag into a
// single word.
//
// Layout (LSB first):
//
//	bits  0..31  index
//	bits 32..47  version (0 is never issued)
//	bits 48..62  reserved, zero
//	bit  63      allocated
type Handle uint64

const (
	versionShift  = 32
	versionMask   = 0xFFFF
	allocatedBit  = Handle(1) << 63
	indexMask     = 0xFFFFFFFF
	MaxVersion    = versionMask
	invalidHandle = Handle(0)
)

// NewHandle creates a Handle from its parts.
func NewHandle(index uint32, version uint16, allocated bool) Handle {
	h := Handle(version)<<versionShift | Handle(index)
	if allocated {
		h |= allocatedBit
	}
	return h
}

// Index returns the slot position the handle refers to.
func (h Handle) Index() uint32 {
	return uint32(h & indexMask)
}

// Version returns the generation stamp.
func (h Handle) Version() uint16 {
	return uint16(h >> versionShift & versionMask)
}

// Allocated reports whether the handle came from a successful allocation.
func (h Handle) Allocated() bool {
	return h&allocatedBit != 0
}

// IsZero reports whether h is the zero handle.
func (h Handle) IsZero() bool {
	return h == invalidHandle
}

func (h Handle) withIndex(index uint32) Handle {
	return h&^indexMask | Handle(index)
}

func (h Handle) String() string {
	switch {
	case h.IsZero():
		return "Handle(none)"
	case !h.Allocated():
		return fmt.Sprintf("Handle(%d@v%d, unallocated)", h.Index(), h.Version())
	default:
		return fmt.Sprintf("Handle(%d@v%d)", h.Index(), h.Version())
	}
}

// Compare orders handles by their packed value, for use with slices.SortFunc.
func Compare(a, b Handle) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Move records one relocation performed by Store.Compact or Store.SwapSlots.
type Move struct {
	Old Handle
	New Handle
}
