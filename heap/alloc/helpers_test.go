package alloc

import (
	"sort"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joshuapare/blockmem/internal/format"
)

// testChunkSize keeps chunk mappings small so tests can create many.
const testChunkSize = 64 * format.Kilobyte

// fatalRecorder collects errors passed to OnFatal instead of panicking.
type fatalRecorder struct {
	mu   sync.Mutex
	errs []error
}

func (r *fatalRecorder) handle(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *fatalRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

func (r *fatalRecorder) last() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.errs) == 0 {
		return nil
	}
	return r.errs[len(r.errs)-1]
}

// newTestAllocator builds an allocator with small chunks and pools of
// 100 slots (48-byte pool) and 50 slots (96-byte pool) unless cfg says
// otherwise. Memory is released when the test ends.
func newTestAllocator(t testing.TB, cfg Config) *BlockAllocator {
	t.Helper()
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = testChunkSize
	}
	if cfg.PoolBudget == 0 {
		cfg.PoolBudget = 48 * 100
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	a, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

// newRecordingAllocator is newTestAllocator with a fatalRecorder installed.
func newRecordingAllocator(t testing.TB, cfg Config) (*BlockAllocator, *fatalRecorder) {
	t.Helper()
	rec := &fatalRecorder{}
	cfg.OnFatal = rec.handle
	return newTestAllocator(t, cfg), rec
}

// newTestChunk creates a standalone chunk released at test end.
func newTestChunk(t testing.TB, capacity int) *Chunk {
	t.Helper()
	c, err := newChunk(capacity, true, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		if c.block != nil && !c.block.Released() {
			_ = c.release()
		}
	})
	return c
}

// assertChunkInvariants checks that records are ordered, contiguous and
// cover exactly the chunk capacity, and that no two free records touch.
func assertChunkInvariants(t testing.TB, c *Chunk) {
	t.Helper()
	require.NotEmpty(t, c.records, "chunk must have at least one record")
	require.Equal(t, uint32(0), c.records[0].begin, "first record must start at offset 0")

	total := 0
	for i := range c.records {
		r := c.records[i]
		require.Zero(t, r.begin%format.MinAllocationSize, "record %d begin %d not aligned", i, r.begin)
		require.NotZero(t, r.length, "record %d has zero length", i)
		total += int(r.length)
		if i > 0 {
			prev := c.records[i-1]
			require.Equal(t, prev.end(), r.begin, "record %d not contiguous with record %d", i, i-1)
			require.False(t, prev.free() && r.free(), "records %d and %d are both free", i-1, i)
		}
	}
	require.Equal(t, c.capacity, total, "record lengths must sum to capacity")
}

// span is a live allocation used by overlap checks.
type span struct {
	p    Ptr
	size int
}

// assertNoOverlap fails if any two spans share a byte.
func assertNoOverlap(t testing.TB, spans []span) {
	t.Helper()
	sorted := append([]span(nil), spans...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].p < sorted[j].p })
	for i := 1; i < len(sorted); i++ {
		prev := sorted[i-1]
		require.LessOrEqual(t, uintptr(prev.p)+uintptr(prev.size), uintptr(sorted[i].p),
			"span 0x%x+%d overlaps 0x%x", prev.p, prev.size, sorted[i].p)
	}
}

// requireFatal runs fn with the default handler and returns the FatalError
// it panicked with.
func requireFatal(t testing.TB, fn func()) *FatalError {
	t.Helper()
	var recovered any
	func() {
		defer func() { recovered = recover() }()
		fn()
	}()
	require.NotNil(t, recovered, "expected a fatal panic")
	err, ok := recovered.(error)
	require.True(t, ok, "panic value %v is not an error", recovered)
	var fe *FatalError
	require.True(t, errors.As(err, &fe), "panic value %v is not a FatalError", err)
	return fe
}
