package alloc

import "github.com/joshuapare/blockmem/internal/format"

// Ptr is the address of an allocation. The zero Ptr is the null pointer.
//
// A Ptr always points into memory obtained from the operating system by the
// allocator, never into the Go heap, so it stays valid as an integer until
// it is released.
type Ptr uintptr

// IsNil reports whether p is the null pointer.
func (p Ptr) IsNil() bool { return p == 0 }

// Add returns p advanced by n bytes.
func (p Ptr) Add(n int) Ptr { return p + Ptr(n) }

// MaxAllocationSize is the largest request the allocator can satisfy.
const MaxAllocationSize = format.MaxChunkCapacity

// Source names where an allocation was served from.
type Source string

const (
	SourcePool48 Source = "pool48"
	SourcePool96 Source = "pool96"
	SourceChunk  Source = "chunk"
)
