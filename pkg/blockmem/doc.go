/*
Package blockmem is the process-wide entry point to the block allocator.

Most programs want one shared allocator, the same way they use one heap.
This package holds that instance and forwards to it. Code that needs an
isolated allocator, such as tests, should use heap/alloc directly.

# Quick Start

	p := blockmem.Allocate(256)
	buf := blockmem.Bytes(p, 256)
	copy(buf, payload)
	blockmem.Release(p)

# Configuration

The default instance is created on first use with alloc.DefaultConfig().
Call Init before any allocation to use a different configuration:

	cfg := alloc.DefaultConfig()
	cfg.ChunkSize = 4 << 20
	if err := blockmem.Init(cfg); err != nil {
	    log.Fatal(err)
	}

# Teardown

Shutdown closes the default instance and returns the allocations that
were never released:

	report := blockmem.Shutdown()
	report.Log(logger.L)

Using a pointer after Shutdown is undefined; the next call to any
allocation function creates a fresh instance.
*/
package blockmem
