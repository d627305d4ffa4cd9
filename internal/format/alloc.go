// Package format holds the constants and alignment arithmetic shared by the
// block allocator packages. Nothing here allocates or locks.
package format

const (
	// Kilobyte and Megabyte are binary units.
	Kilobyte = 1024
	Megabyte = 1024 * Kilobyte

	// MinAllocationSize is the smallest span handed out and the alignment of
	// every chunk allocation. Requests are rounded up to a multiple of it.
	MinAllocationSize = 32

	// DefaultChunkSize is the capacity granularity of chunks.
	DefaultChunkSize = 16 * Megabyte

	// MaxChunkCapacity bounds a chunk so record offsets fit in uint32.
	MaxChunkCapacity = 1 << 31

	// DefaultPoolBudget is the data footprint of one small-block pool.
	DefaultPoolBudget = 8 * Megabyte

	// SmallClassWidth is the width of one small size class.
	// sizeClass = (alignedSize - 1) / SmallClassWidth.
	SmallClassWidth = 48

	// SmallSlot48 and SmallSlot96 are the slot sizes of the two pools.
	SmallSlot48 = 48
	SmallSlot96 = 96

	// PoolAlignment is the alignment of a pool's data region.
	PoolAlignment = 16

	// RecordSize is the footprint of one allocation record: state, begin,
	// length and one padding word, four uint32 each.
	RecordSize = 16

	// HistogramBucketWidth is the width of a size-statistics bucket.
	HistogramBucketWidth = 96

	// HistogramBuckets is the bucket count; the last bucket is open ended.
	HistogramBuckets = (2048 + HistogramBucketWidth) / HistogramBucketWidth
)

// DataOffset returns the number of bytes reserved at the front of a chunk
// region for its record array: one record per minimum-sized span plus one,
// padded to MinAllocationSize.
func DataOffset(capacity int) int {
	return AlignUp((capacity/MinAllocationSize+1)*RecordSize, MinAllocationSize)
}

// MaxRecords returns the record array capacity reserved by DataOffset.
func MaxRecords(capacity int) int {
	return capacity/MinAllocationSize + 1
}

// ChunkCapacity returns the capacity of a chunk able to hold size bytes:
// size rounded up to a multiple of chunkSize.
func ChunkCapacity(size, chunkSize int) int {
	if size < chunkSize {
		return chunkSize
	}
	return AlignUp(size, chunkSize)
}

// SizeClass returns the small size class of an aligned size.
// 0 routes to the 48-byte pool, 1 to the 96-byte pool, anything larger
// goes straight to the chunk list.
func SizeClass(aligned int) int {
	return (aligned - 1) / SmallClassWidth
}

// HistogramBucket returns the statistics bucket for size.
func HistogramBucket(size int) int {
	return min(HistogramBuckets-1, size/HistogramBucketWidth)
}
