// Package alloc provides a thread-safe block memory allocator built on raw,
// aligned system memory.
//
// # Overview
//
// BlockAllocator hands out fixed addresses (Ptr) from memory it maps
// directly from the operating system, so the Go collector never scans or
// moves it. It is meant for engine objects that want predictable
// allocation cost and inspectable statistics.
//
// # Components
//
//   - SmallPool: a fixed ring of 48-byte or 96-byte slots, scanned from a
//     cursor. One pool per small size class.
//   - Chunk: a variable-size region split into an ordered list of spans
//     (records). Allocation is first fit with splitting; freeing merges
//     adjacent free spans.
//   - BlockAllocator: owns both pools, the chunk list and one mutex.
//
// # Routing
//
// Requests are rounded up to 32 bytes, then:
//
//	sizeClass = (aligned - 1) / 48
//
//	0    -> pool48, then pool96, then chunks
//	1    -> pool96, then chunks
//	2+   -> chunks
//
// A full pool is skipped until one of its slots is freed. When no chunk
// has a large enough free span a new chunk is appended, sized to the
// request rounded up to the chunk size (16 MiB by default):
//
//	Allocate(20 MiB) -> new 32 MiB chunk
//
// Release and ValidatePointer test pool48, pool96 and then the chunks by
// address; no per-allocation header is stored.
//
// # Usage Example
//
//	a, err := alloc.New(alloc.Config{})
//	if err != nil {
//	    return err
//	}
//	defer a.Close().Log(logger.L)
//
//	p := a.Allocate(200)
//	buf := a.Bytes(p, 200)
//	copy(buf, payload)
//	a.Release(p)
//
//	// At a quiescent point, give empty chunks back to the system.
//	a.FlushUnusedBlocks()
//
// # Errors
//
// Double frees, foreign pointers and system out-of-memory are programming
// or unrecoverable errors. They are logged and passed as a *FatalError to
// Config.OnFatal, which panics by default. A full pool or a chunk without
// room is never an error; the request moves on to the next candidate.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Every operation holds the one
// allocator mutex for its whole body, including diagnostics. Independent
// allocators share nothing.
//
// # Debugging
//
// Config.Debug (always on with -tags blockmemdebug) keeps per-chunk
// histograms of allocation and free sizes in 96-byte buckets, shown by
// PrintInfo. SetBreakOnAllocation logs every operation on one chunk.
// BLOCKMEM_LOG_ALLOC=1 traces every request at debug level.
package alloc
