package blockmem

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/blockmem/heap/alloc"
)

// Re-exported types so callers rarely need to import heap/alloc.
type (
	Ptr         = alloc.Ptr
	Config      = alloc.Config
	Info        = alloc.Info
	Stats       = alloc.Stats
	FlushResult = alloc.FlushResult
	LeakReport  = alloc.LeakReport
)

var (
	mu  sync.Mutex
	def *alloc.BlockAllocator
)

// Default returns the process-wide allocator, creating it with
// alloc.DefaultConfig() on first use. It panics if the system refuses the
// initial memory, as any allocation would.
func Default() *alloc.BlockAllocator {
	mu.Lock()
	defer mu.Unlock()

	if def == nil {
		a, err := alloc.New(alloc.DefaultConfig())
		if err != nil {
			panic(errors.Wrap(err, "blockmem: create default allocator"))
		}
		def = a
	}
	return def
}

// Init replaces the default allocator with one built from cfg. The previous
// instance, if any, is returned so the caller can close it once its
// pointers are no longer in use.
func Init(cfg Config) (*alloc.BlockAllocator, error) {
	a, err := alloc.New(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "blockmem: init")
	}
	return SetDefault(a), nil
}

// SetDefault installs a as the default allocator and returns the previous
// one. A nil a makes the next call to Default create a fresh instance.
func SetDefault(a *alloc.BlockAllocator) *alloc.BlockAllocator {
	mu.Lock()
	defer mu.Unlock()
	prev := def
	def = a
	return prev
}

// Shutdown closes the default allocator and forgets it. It returns an
// empty report if no allocator was ever created.
func Shutdown() LeakReport {
	prev := SetDefault(nil)
	if prev == nil {
		return LeakReport{}
	}
	return prev.Close()
}

// Allocate returns size bytes from the default allocator.
func Allocate(size int) Ptr { return Default().Allocate(size) }

// Release frees p in the default allocator. Releasing nil is a no-op.
func Release(p Ptr) { Default().Release(p) }

// Validate reports whether p is a live allocation of the default allocator.
func Validate(p Ptr, abortOnFail bool) bool { return Default().ValidatePointer(p, abortOnFail) }

// Flush releases the default allocator's unused chunks.
func Flush() FlushResult { return Default().FlushUnusedBlocks() }

// PrintInfo logs the default allocator's diagnostic report.
func PrintInfo() { Default().PrintInfo() }

// Snapshot returns the default allocator's diagnostic snapshot.
func Snapshot() Info { return Default().Snapshot() }

// Bytes exposes n bytes at p as a slice.
func Bytes(p Ptr, n int) []byte { return Default().Bytes(p, n) }

// AllocateBytes allocates n bytes and returns them as a slice.
func AllocateBytes(n int) []byte { return Default().AllocateBytes(n) }

// ReleaseBytes releases a slice returned by AllocateBytes.
func ReleaseBytes(b []byte) { Default().ReleaseBytes(b) }
