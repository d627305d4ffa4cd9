// Package sysmem provides raw, aligned memory regions taken directly from the
// operating system. Regions are released as a unit.
//
// On unix systems a region is an anonymous private mapping; on Windows it is
// a VirtualAlloc reservation; elsewhere it falls back to a Go byte slice that
// the Block keeps reachable. In every case the memory does not move for the
// lifetime of the Block, so its address can be handed out as an integer.
package sysmem

import (
	"os"
	"sync/atomic"
	"unsafe"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/blockmem/internal/buf"
	"github.com/joshuapare/blockmem/internal/format"
)

var (
	// ErrBadSize indicates a non-positive or overflowing region size.
	ErrBadSize = errors.New("sysmem: bad region size")

	// ErrBadAlignment indicates an alignment that is not a power of two.
	ErrBadAlignment = errors.New("sysmem: alignment must be a power of two")

	// ErrReleased indicates use of a Block after Release.
	ErrReleased = errors.New("sysmem: block already released")
)

// Platform hooks, replaced in tests.
var (
	mapFunc   = mapMemory
	unmapFunc = unmapMemory
)

var mappedBytes atomic.Int64

// MappedBytes returns the number of bytes currently held by live Blocks.
func MappedBytes() int64 { return mappedBytes.Load() }

// PageSize returns the system page size.
func PageSize() int { return os.Getpagesize() }

// Block is a fixed-capacity region of aligned system memory.
type Block struct {
	raw  []byte // whole mapping, as returned by the platform
	data []byte // aligned window of raw, len == size
	addr uintptr
	size int
}

// Alloc obtains size bytes aligned to align from the system.
func Alloc(size, align int) (*Block, error) {
	if size <= 0 {
		return nil, errors.Wrapf(ErrBadSize, "size=%d", size)
	}
	if !format.IsPow2(align) {
		return nil, errors.Wrapf(ErrBadAlignment, "align=%d", align)
	}

	// Platform memory is already aligned to guaranteedAlign; only larger
	// alignments need slack.
	total := size
	if align > guaranteedAlign {
		var ok bool
		if total, ok = buf.AddOverflowSafe(size, align); !ok {
			return nil, errors.Wrapf(ErrBadSize, "size=%d align=%d", size, align)
		}
	}

	raw, err := mapFunc(total)
	if err != nil {
		return nil, errors.Wrapf(err, "sysmem: map %d bytes", total)
	}

	base := uintptr(unsafe.Pointer(unsafe.SliceData(raw)))
	skip := int(format.AlignUintptr(base, uintptr(align)) - base)
	if skip+size > len(raw) {
		_ = unmapFunc(raw)
		return nil, errors.Wrapf(ErrBadSize, "mapping of %d bytes cannot hold %d aligned to %d", len(raw), size, align)
	}

	b := &Block{
		raw:  raw,
		data: raw[skip : skip+size : skip+size],
		addr: base + uintptr(skip),
		size: size,
	}
	mappedBytes.Add(int64(len(raw)))
	return b, nil
}

// Addr returns the address of the first byte of the block.
func (b *Block) Addr() uintptr { return b.addr }

// End returns the address one past the last byte of the block.
func (b *Block) End() uintptr { return b.addr + uintptr(b.size) }

// Size returns the usable size in bytes.
func (b *Block) Size() int { return b.size }

// Bytes returns the block memory. The slice is invalid after Release.
func (b *Block) Bytes() []byte { return b.data }

// Contains reports whether p lies inside the block.
func (b *Block) Contains(p uintptr) bool {
	return b.raw != nil && buf.InRange(p, b.addr, b.End())
}

// Released reports whether Release has been called.
func (b *Block) Released() bool { return b.raw == nil }

// Release returns the memory to the system. Releasing twice is an error.
func (b *Block) Release() error {
	if b.raw == nil {
		return ErrReleased
	}
	raw := b.raw
	b.raw, b.data = nil, nil
	mappedBytes.Add(-int64(len(raw)))
	if err := unmapFunc(raw); err != nil {
		return errors.Wrapf(err, "sysmem: unmap %d bytes at 0x%x", len(raw), b.addr)
	}
	return nil
}
