package slot

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidHandle matches every handle rejection reported as a *HandleError.
	ErrInvalidHandle = errors.New("slot: invalid handle")

	// ErrNotAllocated indicates a handle whose allocated bit is unset, such as the zero Handle.
	ErrNotAllocated = errors.New("handle was never allocated")

	// ErrIndexOutOfRange indicates a handle index beyond the store's tracked length.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrSlotFree indicates the slot the handle points at has been freed.
	ErrSlotFree = errors.New("slot is free")

	// ErrVersionMismatch indicates the slot was reused since the handle was issued.
	ErrVersionMismatch = errors.New("version mismatch")

	// ErrDoubleFree indicates Free was called on a slot that is already free.
	ErrDoubleFree = errors.New("double free")

	// ErrDuplicateHandle indicates the same slot appeared twice in one batch.
	ErrDuplicateHandle = errors.New("duplicate handle in batch")

	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("slot: store closed")

	// ErrNegativeCount indicates a batch allocation asked for fewer than zero slots.
	ErrNegativeCount = errors.New("slot: negative slot count")

	// ErrFull indicates the store cannot address any more slots.
	ErrFull = errors.New("slot: store full")
)

// HandleError describes a rejected handle. Reason is one of the handle
// sentinels above and is reachable through errors.Is.
type HandleError struct {
	Op     string
	Handle Handle
	Reason error
}

func (e *HandleError) Error() string {
	return fmt.Sprintf("slot: %s %s: %v", e.Op, e.Handle, e.Reason)
}

func (e *HandleError) Unwrap() error {
	return e.Reason
}

// Is makes every HandleError match ErrInvalidHandle.
func (e *HandleError) Is(target error) bool {
	return target == ErrInvalidHandle
}

func reasonLabel(reason error) string {
	switch reason {
	case ErrNotAllocated:
		return "not_allocated"
	case ErrIndexOutOfRange:
		return "out_of_range"
	case ErrSlotFree:
		return "slot_free"
	case ErrVersionMismatch:
		return "version_mismatch"
	case ErrDoubleFree:
		return "double_free"
	case ErrDuplicateHandle:
		return "duplicate"
	default:
		return "unknown"
	}
}
