package alloc

import (
	"go.uber.org/zap"
)

// Leak is an allocation still live when the allocator was closed.
type Leak struct {
	Source Source
	Addr   Ptr
	Offset int // slot index for pools, data offset for chunks
	Size   int
}

// LeakReport is the teardown report returned by Close.
type LeakReport struct {
	Leaks []Leak
}

// Empty reports whether nothing leaked.
func (r LeakReport) Empty() bool { return len(r.Leaks) == 0 }

// Bytes returns the total leaked size.
func (r LeakReport) Bytes() int {
	n := 0
	for _, l := range r.Leaks {
		n += l.Size
	}
	return n
}

// Log writes one line per leak. Logging is left to the caller so Close
// stays free of side effects.
func (r LeakReport) Log(l *zap.Logger) {
	for _, lk := range r.Leaks {
		l.Warn("memory leak detected",
			zap.String("source", string(lk.Source)),
			zap.Uintptr("ptr", uintptr(lk.Addr)),
			zap.Int("offset", lk.Offset),
			zap.Int("bytes", lk.Size))
	}
}
