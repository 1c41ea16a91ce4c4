package heap

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfMemory is returned when the page source cannot supply memory.
	ErrOutOfMemory = errors.New("heap: out of memory")

	// ErrFatalOOM identifies a collection that could not obtain to-space.
	// The PCB is unusable afterwards.
	ErrFatalOOM = errors.New("heap: fatal out of memory during collection")

	// ErrBadRootSlot is returned for a root slot outside [0, RootSlots).
	ErrBadRootSlot = errors.New("heap: root slot out of range")

	// ErrUnknownCallback is returned for a released or never-exported callback.
	ErrUnknownCallback = errors.New("heap: unknown callback locative")

	// ErrStackOverflow is returned when a push crosses the frame redline.
	ErrStackOverflow = errors.New("heap: native stack overflow")

	// ErrStackUnderflow is returned when popping an empty stack.
	ErrStackUnderflow = errors.New("heap: native stack underflow")

	// ErrBadAllocation is returned for a non-positive size or a tag that
	// does not name a heap object.
	ErrBadAllocation = errors.New("heap: bad allocation request")

	// ErrClosed is returned by operations on a closed PCB.
	ErrClosed = errors.New("heap: pcb closed")
)

// FatalError records the collection that failed. It wraps ErrFatalOOM and
// the page source error.
type FatalError struct {
	CollectionID int
	Phase        GCState
	Requested    int
	Err          error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("heap: fatal out of memory in collection %d (%s, %d bytes requested): %v",
		e.CollectionID, e.Phase, e.Requested, e.Err)
}

func (e *FatalError) Unwrap() []error {
	return []error{ErrFatalOOM, e.Err}
}

// KindError is returned when a value has the wrong kind for an operation.
type KindError struct {
	Op   string
	Want string
	Got  string
}

func (e *KindError) Error() string {
	return fmt.Sprintf("heap: %s: expected %s, got %s", e.Op, e.Want, e.Got)
}
