package alloc

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/joshuapare/blockmem/internal/buf"
	"github.com/joshuapare/blockmem/internal/format"
	"github.com/joshuapare/blockmem/internal/sysmem"
)

// newBlock is the system memory source. Tests replace it to simulate OOM.
var newBlock = sysmem.Alloc

// Chunk manages one contiguous region of system memory as an ordered list
// of free and allocated spans.
//
// The front of the region holds the record array, sized for the worst case
// of one record per MinAllocationSize bytes. Usable data starts at
// dataOffset. The sum of all record lengths is always the capacity.
type Chunk struct {
	block      *sysmem.Block
	capacity   int
	dataOffset int
	dataStart  uintptr
	dataEnd    uintptr
	records    recordList

	splits int
	merges int

	debug        bool
	breakOnAlloc bool
	stats        sizeStats
	log          *zap.Logger
}

// newChunk reserves a chunk with capacity usable bytes.
func newChunk(capacity int, debug bool, log *zap.Logger) (*Chunk, error) {
	if capacity <= 0 || capacity > format.MaxChunkCapacity || capacity%format.MinAllocationSize != 0 {
		return nil, errors.Wrapf(ErrTooLarge, "chunk capacity %d", capacity)
	}

	dataOffset := format.DataOffset(capacity)
	total, ok := buf.AddOverflowSafe(dataOffset, capacity)
	if !ok {
		return nil, errors.Wrapf(ErrTooLarge, "chunk capacity %d", capacity)
	}

	block, err := newBlock(format.AlignUp(total, format.MinAllocationSize), format.MinAllocationSize)
	if err != nil {
		return nil, errors.Mark(err, ErrOutOfMemory)
	}

	// The header area is reinterpreted as the record array. Records hold no
	// pointers, so this memory never needs to be visible to the collector.
	maxRecords := format.MaxRecords(capacity)
	all := unsafe.Slice((*record)(unsafe.Pointer(unsafe.SliceData(block.Bytes()))), maxRecords)

	c := &Chunk{
		block:      block,
		capacity:   capacity,
		dataOffset: dataOffset,
		dataStart:  block.Addr() + uintptr(dataOffset),
		dataEnd:    block.Addr() + uintptr(dataOffset+capacity),
		records:    all[:1],
		debug:      debug,
		log:        log,
	}
	c.records[0] = record{state: stateFree, begin: 0, length: uint32(capacity)}
	return c, nil
}

// TryAllocate takes size bytes from the first free span large enough.
// size must already be a multiple of MinAllocationSize. A false result
// only means this chunk cannot satisfy the request.
func (c *Chunk) TryAllocate(size int) (Ptr, bool) {
	p, _, ok := c.tryAllocate(size)
	return p, ok
}

// tryAllocate is TryAllocate that also returns the length of the span
// taken, which exceeds size when a small leftover was absorbed.
func (c *Chunk) tryAllocate(size int) (Ptr, int, bool) {
	for i := range c.records {
		r := &c.records[i]
		if !r.free() || int(r.length) < size {
			continue
		}

		remaining := int(r.length) - size
		r.state = stateAllocated
		p := Ptr(c.dataStart + uintptr(r.begin))

		// Small leftovers stay inside the allocated span.
		if remaining > format.MinAllocationSize {
			r.length = uint32(size)
			c.records.insertAt(i+1, record{
				state:  stateFree,
				begin:  r.begin + uint32(size),
				length: uint32(remaining),
			})
			c.splits++
		}

		n := int(r.length)
		if c.debug {
			c.stats.alloc[format.HistogramBucket(n)]++
		}
		if c.breakOnAlloc {
			c.log.Info("chunk allocation",
				zap.Uintptr("ptr", uintptr(p)),
				zap.Int("bytes", n),
				zap.Int("kb", n/format.Kilobyte),
				zap.Int("mb", n/format.Megabyte))
		}
		return p, n, true
	}
	return 0, 0, false
}

// offset converts p to a data offset when p lies in the data area.
func (c *Chunk) offset(p Ptr) (uint32, bool) {
	off, ok := buf.Offset(uintptr(p), c.dataStart, c.capacity)
	return uint32(off), ok
}

// ContainsPointer reports whether p is the start of any span in this chunk.
func (c *Chunk) ContainsPointer(p Ptr) bool {
	off, ok := c.offset(p)
	return ok && c.records.find(off) >= 0
}

// owns reports whether p is the start of an allocated span.
func (c *Chunk) owns(p Ptr) bool {
	off, ok := c.offset(p)
	if !ok {
		return false
	}
	i := c.records.find(off)
	return i >= 0 && !c.records[i].free()
}

// Free releases the span starting at p and merges free neighbours.
// found is false when p is not a span start of this chunk. Freeing a span
// that is already free returns ErrDoubleFree and changes nothing.
func (c *Chunk) Free(p Ptr) (size int, found bool, err error) {
	off, ok := c.offset(p)
	if !ok {
		return 0, false, nil
	}
	i := c.records.find(off)
	if i < 0 {
		return 0, false, nil
	}

	r := &c.records[i]
	if r.free() {
		return 0, true, errors.Wrapf(ErrDoubleFree, "chunk offset %d", off)
	}

	size = int(r.length)
	if c.debug {
		c.stats.freed[format.HistogramBucket(size)]++
	}
	if c.breakOnAlloc {
		c.log.Info("chunk deallocation",
			zap.Uintptr("ptr", uintptr(p)),
			zap.Int("bytes", size),
			zap.Int("kb", size/format.Kilobyte),
			zap.Int("mb", size/format.Megabyte))
	}

	r.state = stateFree
	c.compress()
	return size, true, nil
}

// compress merges every pair of adjacent free records into one.
func (c *Chunk) compress() {
	i := 0
	for i < len(c.records) {
		if c.records[i].free() && i+1 < len(c.records) && c.records[i+1].free() {
			c.records[i].length += c.records[i+1].length
			c.records.removeAt(i + 1)
			c.merges++
			continue
		}
		i++
	}
}

// Capacity returns the usable bytes of the chunk.
func (c *Chunk) Capacity() int { return c.capacity }

// Used returns the bytes covered by allocated spans.
func (c *Chunk) Used() int {
	used := 0
	for i := range c.records {
		if !c.records[i].free() {
			used += int(c.records[i].length)
		}
	}
	return used
}

// Records returns the number of spans.
func (c *Chunk) Records() int { return len(c.records) }

// allocatedRecords returns the number of allocated spans.
func (c *Chunk) allocatedRecords() int {
	n := 0
	for i := range c.records {
		if !c.records[i].free() {
			n++
		}
	}
	return n
}

// empty reports whether no span is allocated.
func (c *Chunk) empty() bool {
	for i := range c.records {
		if !c.records[i].free() {
			return false
		}
	}
	return true
}

// largestFree returns the length of the largest free span.
func (c *Chunk) largestFree() int {
	largest := 0
	for i := range c.records {
		if c.records[i].free() {
			largest = max(largest, int(c.records[i].length))
		}
	}
	return largest
}

// leaks lists the spans still allocated.
func (c *Chunk) leaks() []Leak {
	var out []Leak
	for i := range c.records {
		r := &c.records[i]
		if !r.free() {
			out = append(out, Leak{
				Source: SourceChunk,
				Addr:   Ptr(c.dataStart + uintptr(r.begin)),
				Offset: int(r.begin),
				Size:   int(r.length),
			})
		}
	}
	return out
}

// release returns the region to the system. The chunk is unusable after.
func (c *Chunk) release() error {
	c.records = nil
	return c.block.Release()
}

// regionBytes returns the full system footprint including the header.
func (c *Chunk) regionBytes() int { return c.block.Size() }
