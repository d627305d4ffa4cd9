//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly || windows)

package sysmem

// guaranteedAlign is the alignment of every mapping: what the Go heap guarantees for byte slices.
const guaranteedAlign = 8

// mapMemory uses the Go heap when no mapping primitive is available.
// The Go collector does not move heap objects, and the Block keeps the
// slice reachable until Release.
func mapMemory(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func unmapMemory([]byte) error { return nil }
