package alloc

import (
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/joshuapare/blockmem/internal/format"
)

// BlockAllocator routes allocations to two small-block pools or to a list
// of chunks, all behind one mutex.
//
// Every pointer it returns belongs to exactly one of pool48, pool96 or a
// chunk, and ownership is decided from the address alone.
type BlockAllocator struct {
	mu sync.Mutex

	cfg Config
	log *zap.Logger

	chunks chunkList
	pool48 *SmallPool
	pool96 *SmallPool

	stats         Stats
	retiredSplits int // splits of flushed chunks
	retiredMerges int // merges of flushed chunks
	closed        bool
}

// New creates an allocator with its two pools and one initial chunk.
func New(cfg Config) (*BlockAllocator, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	log := cfg.Logger.Named("blockalloc")

	budget := max(cfg.PoolBudget, 0)
	pool48, err := newSmallPool(format.SmallSlot48, budget, log)
	if err != nil {
		return nil, err
	}
	pool96, err := newSmallPool(format.SmallSlot96, budget, log)
	if err != nil {
		_ = pool48.release()
		return nil, err
	}

	a := &BlockAllocator{
		cfg:    cfg,
		log:    log,
		chunks: newChunkList(),
		pool48: pool48,
		pool96: pool96,
	}
	if _, err := a.grow(cfg.ChunkSize); err != nil {
		_ = pool48.release()
		_ = pool96.release()
		return nil, err
	}
	return a, nil
}

// Allocate returns size bytes aligned to at least 16 bytes.
//
// Requests are rounded up to MinAllocationSize. Sizes of one or two small
// classes try the matching pool first; when a pool is full the request
// falls through to the next pool and then to the chunk list. A new chunk
// is created when no existing chunk fits. Failure to get memory from the
// system is fatal.
func (a *BlockAllocator) Allocate(size int) Ptr {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		a.fatal("allocate", 0, ErrClosed)
		return 0
	}
	if size > MaxAllocationSize {
		a.fatal("allocate", 0, errors.Wrapf(ErrTooLarge, "%d bytes", size))
		return 0
	}

	aligned := format.AllocationSize(size)
	a.stats.AllocCalls++
	if logAlloc {
		a.log.Debug("allocate", zap.Int("requested", size), zap.Int("aligned", aligned))
	}

	switch format.SizeClass(aligned) {
	case 0:
		if p, ok := a.fromPool(a.pool48, SourcePool48); ok {
			a.stats.Pool48Hits++
			return p
		}
		fallthrough
	case 1:
		if p, ok := a.fromPool(a.pool96, SourcePool96); ok {
			a.stats.Pool96Hits++
			return p
		}
		a.stats.PoolFallbacks++
	}

	return a.fromChunks(aligned)
}

func (a *BlockAllocator) fromPool(p *SmallPool, src Source) (Ptr, bool) {
	if !p.HaveFreeBlocks() {
		return 0, false
	}
	ptr, ok := p.Allocate()
	if !ok {
		a.cfg.Metrics.poolExhausted(src)
		return 0, false
	}
	a.served(src, p.slotSize)
	return ptr, true
}

func (a *BlockAllocator) fromChunks(aligned int) Ptr {
	for _, c := range a.chunks.all() {
		if p, n, ok := c.tryAllocate(aligned); ok {
			a.stats.ChunkAllocs++
			a.served(SourceChunk, n)
			return p
		}
	}

	c, err := a.grow(aligned)
	if err != nil {
		a.fatal("allocate", 0, err)
		return 0
	}
	p, n, ok := c.tryAllocate(aligned)
	if !ok {
		a.fatal("allocate", 0, errors.AssertionFailedf("new chunk of %d bytes cannot fit %d", c.capacity, aligned))
		return 0
	}
	a.stats.ChunkAllocs++
	a.served(SourceChunk, n)
	return p
}

func (a *BlockAllocator) served(src Source, n int) {
	a.stats.BytesAllocated += int64(n)
	a.cfg.Metrics.allocated(src, n)
}

// grow appends a chunk able to hold size bytes.
func (a *BlockAllocator) grow(size int) (*Chunk, error) {
	capacity := format.ChunkCapacity(size, a.cfg.ChunkSize)
	if capacity > format.MaxChunkCapacity {
		return nil, errors.Wrapf(ErrTooLarge, "chunk of %d bytes", capacity)
	}
	c, err := newChunk(capacity, a.cfg.Debug, a.log)
	if err != nil {
		return nil, err
	}
	a.chunks.add(c)
	a.stats.ChunksCreated++
	a.cfg.Metrics.chunkAdded(capacity)
	a.log.Debug("chunk created",
		zap.Int("capacity", capacity),
		zap.Int("data_offset", c.dataOffset),
		zap.Int("chunks", a.chunks.len()))
	return c, nil
}

// Release frees p. Releasing nil is a no-op. Releasing a pointer twice or
// one this allocator never returned is fatal.
func (a *BlockAllocator) Release(p Ptr) {
	if p.IsNil() {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		a.fatal("release", p, ErrClosed)
		return
	}
	a.stats.FreeCalls++

	size, err := a.release(p)
	if err != nil {
		a.fatal("release", p, err)
		return
	}
	a.stats.BytesFreed += int64(size)
	a.cfg.Metrics.released(size)
}

// release finds the owner of p: pool48, then pool96, then the chunks.
func (a *BlockAllocator) release(p Ptr) (int, error) {
	for _, pool := range [...]*SmallPool{a.pool48, a.pool96} {
		if pool.ContainsPointer(p) {
			if err := pool.Free(p); err != nil {
				return 0, err
			}
			return pool.slotSize, nil
		}
	}

	if c := a.chunks.find(p); c != nil {
		size, found, err := c.Free(p)
		if err != nil {
			return 0, err
		}
		if found {
			return size, nil
		}
	}
	return 0, ErrNotOwned
}

// ValidatePointer reports whether p is a live allocation of this allocator.
// nil is valid. With abortOnFail an invalid pointer is fatal.
func (a *BlockAllocator) ValidatePointer(p Ptr, abortOnFail bool) bool {
	if p.IsNil() {
		return true
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		if abortOnFail {
			a.fatal("validate", p, ErrClosed)
		}
		return false
	}
	if a.owns(p) {
		return true
	}
	if abortOnFail {
		a.fatal("validate", p, ErrNotOwned)
	}
	return false
}

func (a *BlockAllocator) owns(p Ptr) bool {
	if a.pool48.ContainsPointer(p) {
		return a.pool48.owns(p)
	}
	if a.pool96.ContainsPointer(p) {
		return a.pool96.owns(p)
	}
	c := a.chunks.find(p)
	return c != nil && c.owns(p)
}

// FlushResult summarizes one FlushUnusedBlocks pass.
type FlushResult struct {
	Chunks int // chunks released
	Bytes  int // their total capacity
}

// FlushUnusedBlocks releases every chunk with no allocated span.
//
// Callers must make sure no pointer into such a chunk is still in use,
// which is why this never runs automatically.
func (a *BlockAllocator) FlushUnusedBlocks() FlushResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	var res FlushResult
	for _, c := range a.chunks.removeIf((*Chunk).empty) {
		res.Chunks++
		res.Bytes += c.capacity
		a.retiredSplits += c.splits
		a.retiredMerges += c.merges
		a.cfg.Metrics.chunkFlushed(c.capacity)
		if err := c.release(); err != nil {
			a.log.Error("chunk release failed", zap.Error(err))
		}
	}

	a.stats.ChunksFlushed += res.Chunks
	a.stats.BytesFlushed += int64(res.Bytes)
	if res.Chunks > 0 {
		a.log.Info("blocks flushed",
			zap.Int("blocks", res.Chunks),
			zap.Int("bytes_released", res.Bytes))
	}
	return res
}

// Snapshot returns a consistent view of chunks, pools and counters.
func (a *BlockAllocator) Snapshot() Info {
	a.mu.Lock()
	defer a.mu.Unlock()

	in := Info{
		MappedBytes: mappedBytes(),
		Stats:       a.statsLocked(),
	}
	for i, c := range a.chunks.all() {
		in.Chunks = append(in.Chunks, c.info(i))
	}
	in.Pools = []PoolInfo{a.pool48.info(), a.pool96.info()}
	return in
}

// PrintInfo logs the diagnostic report, one log entry per line.
func (a *BlockAllocator) PrintInfo() {
	for _, line := range a.Snapshot().Lines() {
		a.log.Info(line)
	}
}

// Stats returns a copy of the allocator counters.
func (a *BlockAllocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.statsLocked()
}

func (a *BlockAllocator) statsLocked() Stats {
	s := a.stats
	s.Splits, s.Merges = a.retiredSplits, a.retiredMerges
	for _, c := range a.chunks.all() {
		s.Splits += c.splits
		s.Merges += c.merges
	}
	return s
}

// ChunkCount returns the number of live chunks.
func (a *BlockAllocator) ChunkCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.chunks.len()
}

// SetBreakOnAllocation makes chunk i log every allocation and free.
func (a *BlockAllocator) SetBreakOnAllocation(i int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if i < 0 || i >= a.chunks.len() {
		return errors.Newf("alloc: chunk index %d out of range [0, %d)", i, a.chunks.len())
	}
	a.chunks.at(i).breakOnAlloc = true
	return nil
}

// Bytes returns the n bytes at p as a slice. p must be a live allocation
// of at least n bytes; the slice must not be used after Release.
func (a *BlockAllocator) Bytes(p Ptr, n int) []byte {
	if p.IsNil() {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(p)), n)
}

// AllocateBytes allocates n bytes and returns them as a slice. The slice
// capacity is the aligned size, so even a zero-length result carries the
// address ReleaseBytes needs.
func (a *BlockAllocator) AllocateBytes(n int) []byte {
	p := a.Allocate(n)
	if p.IsNil() {
		return nil
	}
	return a.Bytes(p, format.AllocationSize(n))[:max(n, 0)]
}

// ReleaseBytes releases a slice returned by AllocateBytes.
func (a *BlockAllocator) ReleaseBytes(b []byte) {
	if cap(b) == 0 {
		return
	}
	a.Release(Ptr(unsafe.Pointer(unsafe.SliceData(b))))
}

// Close releases all system memory and reports allocations still live.
// The allocator is unusable afterwards.
func (a *BlockAllocator) Close() LeakReport {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return LeakReport{}
	}
	a.closed = true

	var report LeakReport
	report.Leaks = append(report.Leaks, a.pool48.leaks(SourcePool48)...)
	report.Leaks = append(report.Leaks, a.pool96.leaks(SourcePool96)...)
	for _, c := range a.chunks.all() {
		report.Leaks = append(report.Leaks, c.leaks()...)
	}

	for _, pool := range [...]*SmallPool{a.pool48, a.pool96} {
		if err := pool.release(); err != nil {
			a.log.Error("pool release failed", zap.Int("slot_size", pool.slotSize), zap.Error(err))
		}
	}
	for _, c := range a.chunks.all() {
		if err := c.release(); err != nil {
			a.log.Error("chunk release failed", zap.Error(err))
		}
		a.cfg.Metrics.chunkClosed(c.capacity)
	}
	a.chunks.reset()
	return report
}

// fatal hands a programming error or unrecoverable exhaustion to OnFatal.
func (a *BlockAllocator) fatal(op string, p Ptr, err error) {
	a.stats.FatalErrors++
	fe := &FatalError{Op: op, Ptr: p, Err: err}
	a.log.Error("fatal allocator error",
		zap.String("op", op),
		zap.Uintptr("ptr", uintptr(p)),
		zap.Error(err))
	a.cfg.OnFatal(fe)
}
