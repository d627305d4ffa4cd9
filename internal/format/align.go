package format

// Alignment utilities for the block allocator.
// Every alignment handled here is a power of two, so rounding is a mask operation.

// AlignUp returns n rounded up to the next multiple of align.
// align must be a power of two.
//
// Example:
//
//	AlignUp(1, 32)  = 32
//	AlignUp(32, 32) = 32
//	AlignUp(33, 32) = 64
func AlignUp(n, align int) int {
	m := align - 1
	return (n + m) &^ m
}

// AlignDown returns n rounded down to a multiple of align.
//
// Example:
//
//	AlignDown(31, 32) = 0
//	AlignDown(65, 32) = 64
func AlignDown(n, align int) int {
	return n &^ (align - 1)
}

// AlignUpU32 is the uint32 version of AlignUp, used for chunk record offsets.
func AlignUpU32(n, align uint32) uint32 {
	m := align - 1
	return (n + m) &^ m
}

// AlignUintptr rounds an address up to align.
func AlignUintptr(p, align uintptr) uintptr {
	m := align - 1
	return (p + m) &^ m
}

// IsAligned reports whether p is a multiple of align.
func IsAligned(p, align uintptr) bool {
	return p&(align-1) == 0
}

// IsPow2 reports whether n is a positive power of two.
func IsPow2(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// AllocationSize rounds a requested size up to MinAllocationSize.
// A zero request still occupies one minimum-sized span.
func AllocationSize(n int) int {
	if n <= 0 {
		return MinAllocationSize
	}
	return AlignUp(n, MinAllocationSize)
}
