package alloc

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrDoubleFree indicates a release of a pointer whose span is already free.
	ErrDoubleFree = errors.New("alloc: pointer being freed was already released")

	// ErrNotOwned indicates a pointer that was not allocated via this allocator.
	ErrNotOwned = errors.New("alloc: pointer was not allocated via this allocator")

	// ErrOutOfMemory indicates the system refused memory for a new chunk.
	ErrOutOfMemory = errors.New("alloc: out of memory")

	// ErrTooLarge indicates a request larger than the largest possible chunk.
	ErrTooLarge = errors.New("alloc: allocation too large")

	// ErrClosed indicates use of the allocator after Close.
	ErrClosed = errors.New("alloc: allocator closed")

	// ErrBadConfig indicates an invalid Config value.
	ErrBadConfig = errors.New("alloc: bad config")
)

// FatalError is handed to Config.OnFatal for programming errors and
// unrecoverable exhaustion. It identifies the operation and the pointer.
type FatalError struct {
	Op  string // allocate, release, validate
	Ptr Ptr
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("blockalloc: %s 0x%016x: %v", e.Op, uintptr(e.Ptr), e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// PanicOnFatal is the default fatal handler. It panics with the error,
// which terminates the process unless a caller recovers.
func PanicOnFatal(err error) {
	panic(err)
}
