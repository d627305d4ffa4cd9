package alloc

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/joshuapare/blockmem/internal/format"
	"github.com/joshuapare/blockmem/internal/sysmem"
)

// sizeStats counts allocations and frees per size bucket.
type sizeStats struct {
	alloc [format.HistogramBuckets]uint64
	freed [format.HistogramBuckets]uint64
}

// Stats holds allocator counters for testing and instrumentation.
type Stats struct {
	AllocCalls     int   // Total Allocate() calls
	FreeCalls      int   // Total Release() calls with a non-nil pointer
	Pool48Hits     int   // Allocations served by the 48-byte pool
	Pool96Hits     int   // Allocations served by the 96-byte pool
	PoolFallbacks  int   // Small requests that fell through to chunks
	ChunkAllocs    int   // Allocations served by chunks
	ChunksCreated  int   // Chunks created, including the initial one
	ChunksFlushed  int   // Chunks released by FlushUnusedBlocks
	BytesFlushed   int64 // Capacity released by FlushUnusedBlocks
	BytesAllocated int64 // Aligned bytes handed out
	BytesFreed     int64 // Aligned bytes returned
	Splits         int   // Span splits, including flushed chunks
	Merges         int   // Span merges, including flushed chunks
	FatalErrors    int   // Calls to the fatal handler
}

// BucketInfo is one row of a chunk's size histogram.
type BucketInfo struct {
	Lo    int // inclusive
	Hi    int // exclusive; -1 for the open-ended last bucket
	Alloc uint64
	Freed uint64
}

// Live returns allocations in the bucket not yet freed.
func (b BucketInfo) Live() uint64 { return b.Alloc - b.Freed }

// ChunkInfo describes one chunk.
type ChunkInfo struct {
	Index       int
	Capacity    int
	Used        int
	Records     int
	Allocated   int
	LargestFree int
	Splits      int
	Merges      int
	Histogram   []BucketInfo // only non-empty buckets, debug mode only
}

// PoolInfo describes one small-block pool.
type PoolInfo struct {
	SlotSize  int
	Slots     int
	Allocated int
	Cursor    int
	Exhausted bool
}

// Info is a consistent snapshot of the allocator.
type Info struct {
	Chunks      []ChunkInfo
	Pools       []PoolInfo
	MappedBytes int64
	Stats       Stats
}

func (c *Chunk) info(index int) ChunkInfo {
	ci := ChunkInfo{
		Index:       index,
		Capacity:    c.capacity,
		Used:        c.Used(),
		Records:     c.Records(),
		Allocated:   c.allocatedRecords(),
		LargestFree: c.largestFree(),
		Splits:      c.splits,
		Merges:      c.merges,
	}
	if !c.debug {
		return ci
	}
	for i := range format.HistogramBuckets {
		if c.stats.alloc[i] == 0 {
			continue
		}
		hi := (i + 1) * format.HistogramBucketWidth
		if i == format.HistogramBuckets-1 {
			hi = -1
		}
		ci.Histogram = append(ci.Histogram, BucketInfo{
			Lo:    i * format.HistogramBucketWidth,
			Hi:    hi,
			Alloc: c.stats.alloc[i],
			Freed: c.stats.freed[i],
		})
	}
	return ci
}

func (p *SmallPool) info() PoolInfo {
	return PoolInfo{
		SlotSize:  p.slotSize,
		Slots:     p.slots,
		Allocated: p.live,
		Cursor:    p.cursor,
		Exhausted: p.slots > 0 && !p.haveFree,
	}
}

// Lines renders the snapshot as a human-readable report, one entry per line.
// The format is a debugging aid, not a parse target.
func (in Info) Lines() []string {
	pr := message.NewPrinter(language.English)
	num := func(n int64) string { return pr.Sprintf("%d", n) }

	var lines []string
	add := func(indent int, f string, args ...any) {
		lines = append(lines, strings.Repeat("\t", indent)+fmt.Sprintf(f, args...))
	}

	add(0, "Memory allocator has %d chunks:", len(in.Chunks))
	add(0, "{")
	for _, c := range in.Chunks {
		add(1, "{")
		for _, b := range c.Histogram {
			if b.Hi < 0 {
				add(2, "%04d-.... : live: %d (alloc: %d, freed: %d)", b.Lo, b.Live(), b.Alloc, b.Freed)
			} else {
				add(2, "%04d-%04d : live: %d (alloc: %d, freed: %d)", b.Lo, b.Hi, b.Live(), b.Alloc, b.Freed)
			}
		}
		if len(c.Histogram) > 0 {
			add(2, "------------")
		}
		add(2, "Total memory used: %s (%dKb, %dMb) of %s (%dKb, %dMb)",
			num(int64(c.Used)), c.Used/format.Kilobyte, c.Used/format.Megabyte,
			num(int64(c.Capacity)), c.Capacity/format.Kilobyte, c.Capacity/format.Megabyte)
		add(2, "Records: %d (%d allocated), largest free span: %s", c.Records, c.Allocated, num(int64(c.LargestFree)))
		add(1, "}")
	}

	prev := 0
	for _, p := range in.Pools {
		add(1, "%d...%d bytes", prev, p.SlotSize)
		add(1, "{")
		add(2, "allocated blocks : %s of %s", num(int64(p.Allocated)), num(int64(p.Slots)))
		add(2, "current offset : %d", p.Cursor)
		add(1, "}")
		prev = p.SlotSize
	}
	add(0, "}")
	add(0, "System memory mapped: %s bytes", num(in.MappedBytes))
	return lines
}

// String returns Lines joined by newlines.
func (in Info) String() string { return strings.Join(in.Lines(), "\n") }

// mappedBytes is the process-wide system memory held by allocators.
func mappedBytes() int64 { return sysmem.MappedBytes() }
