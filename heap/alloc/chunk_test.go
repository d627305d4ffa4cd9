package alloc

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/blockmem/internal/format"
	"github.com/joshuapare/blockmem/internal/sysmem"
)

func Test_Chunk_New_SingleFreeRecord(t *testing.T) {
	c := newTestChunk(t, 4096)

	require.Equal(t, 1, c.Records())
	assert.True(t, c.records[0].free())
	assert.Equal(t, uint32(4096), c.records[0].length)
	assert.Equal(t, 4096, c.Capacity())
	assert.Equal(t, 0, c.Used())
	assert.True(t, c.empty())
	assert.Equal(t, format.DataOffset(4096), c.dataOffset)
	assert.Zero(t, c.dataStart%format.MinAllocationSize, "data area must be 32-byte aligned")
	assert.Equal(t, c.dataStart+4096, c.dataEnd)
	assertChunkInvariants(t, c)
}

func Test_Chunk_New_RejectsBadCapacity(t *testing.T) {
	for _, capacity := range []int{0, -32, 100, format.MaxChunkCapacity + 32} {
		_, err := newChunk(capacity, false, nil)
		require.Error(t, err, "capacity %d", capacity)
		assert.True(t, errors.Is(err, ErrTooLarge), "capacity %d", capacity)
	}
}

func Test_Chunk_TryAllocate_SplitsFirstFit(t *testing.T) {
	c := newTestChunk(t, 4096)

	p1, ok := c.TryAllocate(64)
	require.True(t, ok)
	assert.Equal(t, Ptr(c.dataStart), p1)
	require.Equal(t, 2, c.Records())
	assert.Equal(t, record{state: stateAllocated, begin: 0, length: 64}, c.records[0])
	assert.Equal(t, record{state: stateFree, begin: 64, length: 4032}, c.records[1])

	p2, ok := c.TryAllocate(128)
	require.True(t, ok)
	assert.Equal(t, p1.Add(64), p2)
	assert.Equal(t, 3, c.Records())
	assert.Equal(t, 192, c.Used())
	assert.Equal(t, 2, c.splits)
	assertChunkInvariants(t, c)
}

func Test_Chunk_TryAllocate_AbsorbsSmallLeftover(t *testing.T) {
	c := newTestChunk(t, 128)

	// 128 - 96 = 32 is not > 32, so the span is not split.
	p, n, ok := c.tryAllocate(96)
	require.True(t, ok)
	assert.Equal(t, Ptr(c.dataStart), p)
	assert.Equal(t, 128, n, "leftover must stay in the allocated span")
	require.Equal(t, 1, c.Records())
	assert.Equal(t, 128, c.Used())
	assert.Zero(t, c.splits)
	assertChunkInvariants(t, c)

	_, ok = c.TryAllocate(32)
	assert.False(t, ok, "chunk is full")
}

func Test_Chunk_Histogram_CountsAbsorbedSpan(t *testing.T) {
	c := newTestChunk(t, 96)

	// 64 bytes land in bucket 0, but the absorbed span is 96 bytes long.
	p, n, ok := c.tryAllocate(64)
	require.True(t, ok)
	require.Equal(t, 96, n)

	size, found, err := c.Free(p)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 96, size)

	hist := c.info(0).Histogram
	assert.Equal(t, []BucketInfo{{Lo: 96, Hi: 192, Alloc: 1, Freed: 1}}, hist)
	for _, b := range hist {
		assert.Zero(t, b.Live(), "bucket %d-%d", b.Lo, b.Hi)
	}
	assert.Equal(t, c.stats.alloc, c.stats.freed)
}

func Test_Chunk_TryAllocate_SplitsLeftoverAbove32(t *testing.T) {
	c := newTestChunk(t, 128)

	_, n, ok := c.tryAllocate(64)
	require.True(t, ok)
	assert.Equal(t, 64, n)
	require.Equal(t, 2, c.Records())
	assert.Equal(t, uint32(64), c.records[1].length)
	assertChunkInvariants(t, c)
}

func Test_Chunk_TryAllocate_TooLarge(t *testing.T) {
	c := newTestChunk(t, 4096)

	_, ok := c.TryAllocate(8192)
	assert.False(t, ok)
	assert.Equal(t, 1, c.Records())
}

func Test_Chunk_TryAllocate_FillsToCapacity(t *testing.T) {
	c := newTestChunk(t, 4096)

	// The last two minimum spans are taken as one: a 32-byte leftover is
	// never split off.
	const fits = 4096/32 - 1
	for i := range fits {
		_, ok := c.TryAllocate(32)
		require.True(t, ok, "allocation %d", i)
	}
	assert.Equal(t, 4096, c.Used())
	assert.Equal(t, fits, c.Records())
	assert.Equal(t, uint32(64), c.records[fits-1].length)
	_, ok := c.TryAllocate(32)
	assert.False(t, ok)
	assertChunkInvariants(t, c)
}

func Test_Chunk_Free_MergesNeighbours(t *testing.T) {
	c := newTestChunk(t, 4096)

	a, _ := c.TryAllocate(64)
	b, _ := c.TryAllocate(64)
	_, _ = c.TryAllocate(64)

	size, found, err := c.Free(a)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 64, size)

	_, found, err = c.Free(b)
	require.NoError(t, err)
	require.True(t, found)

	// [free 128][allocated 64][free rest]
	require.Equal(t, 3, c.Records())
	assert.Equal(t, record{state: stateFree, begin: 0, length: 128}, c.records[0])
	assertChunkInvariants(t, c)

	p, ok := c.TryAllocate(128)
	require.True(t, ok)
	assert.Equal(t, a, p, "merged span must be reusable as one block")
}

func Test_Chunk_Free_MergesInEitherOrder(t *testing.T) {
	c := newTestChunk(t, 4096)

	a, _ := c.TryAllocate(64)
	b, _ := c.TryAllocate(64)
	_, _ = c.TryAllocate(64)

	_, _, err := c.Free(b)
	require.NoError(t, err)
	_, _, err = c.Free(a)
	require.NoError(t, err)

	require.Equal(t, 3, c.Records())
	assert.Equal(t, uint32(128), c.records[0].length)
	assertChunkInvariants(t, c)
}

func Test_Chunk_Free_AllRestoresSingleRecord(t *testing.T) {
	c := newTestChunk(t, 4096)

	var ptrs []Ptr
	for _, size := range []int{32, 64, 96, 256, 1024} {
		p, ok := c.TryAllocate(size)
		require.True(t, ok)
		ptrs = append(ptrs, p)
	}
	for _, i := range []int{3, 0, 4, 1, 2} {
		_, found, err := c.Free(ptrs[i])
		require.NoError(t, err)
		require.True(t, found)
		assertChunkInvariants(t, c)
	}

	require.Equal(t, 1, c.Records())
	assert.True(t, c.empty())
	assert.Equal(t, 4096, c.largestFree())
}

func Test_Chunk_Free_DoubleFree(t *testing.T) {
	c := newTestChunk(t, 4096)

	a, _ := c.TryAllocate(64)
	_, _ = c.TryAllocate(64)
	_, _, err := c.Free(a)
	require.NoError(t, err)

	_, found, err := c.Free(a)
	assert.True(t, found, "a free record start is still found")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDoubleFree))
	assertChunkInvariants(t, c)
}

func Test_Chunk_Free_UnknownPointer(t *testing.T) {
	c := newTestChunk(t, 4096)
	a, _ := c.TryAllocate(64)

	_, found, err := c.Free(a.Add(32))
	assert.NoError(t, err)
	assert.False(t, found, "interior pointer is not a span start")

	_, found, err = c.Free(Ptr(c.dataEnd))
	assert.NoError(t, err)
	assert.False(t, found, "pointer past the data area")

	_, found, err = c.Free(Ptr(c.dataStart - 32))
	assert.NoError(t, err)
	assert.False(t, found, "pointer in the header area")
}

func Test_Chunk_ContainsPointer(t *testing.T) {
	c := newTestChunk(t, 4096)
	a, _ := c.TryAllocate(64)

	assert.True(t, c.ContainsPointer(a))
	assert.True(t, c.ContainsPointer(a.Add(64)), "start of the free tail record")
	assert.False(t, c.ContainsPointer(a.Add(32)), "interior pointer")
	assert.False(t, c.ContainsPointer(Ptr(c.dataEnd)))

	assert.True(t, c.owns(a))
	assert.False(t, c.owns(a.Add(64)), "free record is not owned")

	_, _, err := c.Free(a)
	require.NoError(t, err)
	assert.True(t, c.ContainsPointer(a))
	assert.False(t, c.owns(a))
}

func Test_Chunk_Leaks(t *testing.T) {
	c := newTestChunk(t, 4096)
	a, _ := c.TryAllocate(64)
	b, _ := c.TryAllocate(256)
	_, _, _ = c.Free(a)

	leaks := c.leaks()
	require.Len(t, leaks, 1)
	assert.Equal(t, Leak{Source: SourceChunk, Addr: b, Offset: 64, Size: 256}, leaks[0])
}

func Test_Chunk_Release(t *testing.T) {
	c, err := newChunk(4096, false, nil)
	require.NoError(t, err)
	before := sysmem.MappedBytes()
	footprint := c.regionBytes()

	require.NoError(t, c.release())
	assert.LessOrEqual(t, sysmem.MappedBytes(), before-int64(footprint))
	assert.Nil(t, c.records)
}

func Test_RecordList_InsertRemove(t *testing.T) {
	backing := make([]record, 4)
	l := recordList(backing[:1])
	l[0] = record{begin: 0, length: 96}

	l.insertAt(1, record{begin: 96, length: 32})
	l.insertAt(1, record{begin: 64, length: 32})
	require.Len(t, l, 3)
	assert.Equal(t, uint32(64), l[1].begin)
	assert.Equal(t, 2, l.find(96))
	assert.Equal(t, -1, l.find(32))

	l.removeAt(1)
	require.Len(t, l, 2)
	assert.Equal(t, uint32(96), l[1].begin)
	assert.Equal(t, record{}, backing[2], "vacated slot is cleared")

	l.insertAt(2, record{begin: 128})
	l.insertAt(3, record{begin: 160})
	assert.Panics(t, func() { l.insertAt(4, record{begin: 192}) }, "insert into a full array")
}
