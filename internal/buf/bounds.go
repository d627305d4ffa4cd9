// Package buf contains overflow-checked size arithmetic and address range
// helpers used when carving system memory into chunks and pools.
package buf

import "math"

// AddOverflowSafe adds a and b, returning ok = false when the result would overflow int.
func AddOverflowSafe(a, b int) (int, bool) {
	switch {
	case b > 0 && a > math.MaxInt-b:
		return 0, false
	case b < 0 && a < math.MinInt-b:
		return 0, false
	default:
		return a + b, true
	}
}

// MulOverflowSafe multiplies a and b, returning ok = false when the result would overflow int.
func MulOverflowSafe(a, b int) (int, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if a > 0 && b > 0 {
		if a > math.MaxInt/b {
			return 0, false
		}
	}
	if a < 0 && b < 0 {
		if a < math.MaxInt/b {
			return 0, false
		}
	}
	if a > 0 && b < 0 {
		if b < math.MinInt/a {
			return 0, false
		}
	}
	if a < 0 && b > 0 {
		if a < math.MinInt/b {
			return 0, false
		}
	}
	return a * b, true
}

// InRange reports whether p lies in [lo, hi).
func InRange(p, lo, hi uintptr) bool {
	return p >= lo && p < hi
}

// Offset returns p - base when p lies in [base, base+n).
func Offset(p, base uintptr, n int) (int, bool) {
	if n <= 0 || !InRange(p, base, base+uintptr(n)) {
		return 0, false
	}
	return int(p - base), true
}

// Index returns the slot index of p in a region of count slots of stride
// bytes starting at base. ok is false when p is outside the region or not
// on a slot boundary.
func Index(p, base uintptr, stride, count int) (int, bool) {
	off, ok := Offset(p, base, stride*count)
	if !ok || off%stride != 0 {
		return 0, false
	}
	return off / stride, true
}
