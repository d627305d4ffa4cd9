package alloc

import (
	"os"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/joshuapare/blockmem/internal/format"
	"github.com/joshuapare/blockmem/internal/logger"
)

// Runtime trace flag for allocations - controlled by BLOCKMEM_LOG_ALLOC env var.
var logAlloc = os.Getenv("BLOCKMEM_LOG_ALLOC") != ""

// Config controls a BlockAllocator. The zero value is usable.
type Config struct {
	// ChunkSize is the capacity granularity of chunks. It must be a power of
	// two and at least MinAllocationSize. Default: 16 MiB.
	ChunkSize int

	// PoolBudget is the data footprint of each small-block pool.
	// Default: 8 MiB. A negative value disables both pools.
	PoolBudget int

	// Debug enables per-chunk allocation size histograms. It never changes
	// allocation decisions. Always on in blockmemdebug builds.
	Debug bool

	// Logger receives diagnostics. Default: logger.L.
	Logger *zap.Logger

	// Metrics, when set, is updated on every operation.
	Metrics *Metrics

	// OnFatal receives programming errors (double free, foreign pointer)
	// and unrecoverable out-of-memory. Default: PanicOnFatal. If it
	// returns, the failing operation becomes a no-op.
	OnFatal func(error)
}

// DefaultConfig returns the configuration used by the engine.
func DefaultConfig() Config {
	return Config{
		ChunkSize:  format.DefaultChunkSize,
		PoolBudget: format.DefaultPoolBudget,
		Debug:      debugBuild,
	}
}

// withDefaults fills zero fields and validates the rest.
func (c Config) withDefaults() (Config, error) {
	if c.ChunkSize == 0 {
		c.ChunkSize = format.DefaultChunkSize
	}
	if c.PoolBudget == 0 {
		c.PoolBudget = format.DefaultPoolBudget
	}
	c.Debug = c.Debug || debugBuild
	if c.Logger == nil {
		c.Logger = logger.L
	}
	if c.OnFatal == nil {
		c.OnFatal = PanicOnFatal
	}

	if !format.IsPow2(c.ChunkSize) || c.ChunkSize < format.MinAllocationSize {
		return c, errors.Wrapf(ErrBadConfig, "chunk size %d must be a power of two >= %d", c.ChunkSize, format.MinAllocationSize)
	}
	if c.ChunkSize > format.MaxChunkCapacity {
		return c, errors.Wrapf(ErrBadConfig, "chunk size %d exceeds %d", c.ChunkSize, format.MaxChunkCapacity)
	}
	return c, nil
}
