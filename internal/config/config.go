// Package config loads blockmem settings from a TOML file and the
// environment.
//
// Precedence, lowest first: built-in defaults, the file, BLOCKMEM_*
// environment variables. Every loaded File is validated before use.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"

	"github.com/joshuapare/blockmem/heap/alloc"
	"github.com/joshuapare/blockmem/internal/format"
	"github.com/joshuapare/blockmem/internal/logger"
)

// File is the on-disk configuration.
type File struct {
	Allocator Allocator `toml:"allocator"`
	Log       Log       `toml:"log"`
	Stress    Stress    `toml:"stress"`
}

// Allocator configures the block allocator.
type Allocator struct {
	// ChunkSize is the capacity granularity of chunks. Must be a power of two.
	ChunkSize ByteSize `toml:"chunk-size"`
	// PoolBudget is the footprint of each small-block pool. Negative disables the pools.
	PoolBudget ByteSize `toml:"pool-budget"`
	// Debug enables per-chunk size histograms.
	Debug bool `toml:"debug"`
	// Metrics registers prometheus collectors for the allocator.
	Metrics bool `toml:"metrics"`
}

// Log configures the logger, see logger.Options.
type Log struct {
	Enabled    bool   `toml:"enabled"`
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	Filename   string `toml:"filename"`
	MaxSize    int    `toml:"max-size"`
	MaxDays    int    `toml:"max-days"`
	MaxBackups int    `toml:"max-backups"`
}

// Stress configures the workload runner.
type Stress struct {
	Workers      int      `toml:"workers"`
	Operations   int      `toml:"operations"`
	MinSize      ByteSize `toml:"min-size"`
	MaxSize      ByteSize `toml:"max-size"`
	HoldMax      int      `toml:"hold-max"`
	ReleaseRatio float64  `toml:"release-ratio"`
	Seed         int64    `toml:"seed"`
}

// Default returns the built-in configuration.
func Default() File {
	return File{
		Allocator: Allocator{
			ChunkSize:  format.DefaultChunkSize,
			PoolBudget: format.DefaultPoolBudget,
		},
		Log: Log{
			Level:  "info",
			Format: "console",
		},
		Stress: Stress{
			Workers:      8,
			Operations:   100000,
			MinSize:      1,
			MaxSize:      4 * format.Kilobyte,
			HoldMax:      64,
			ReleaseRatio: 0.5,
			Seed:         1,
		},
	}
}

// lookupEnv is replaced in tests.
var lookupEnv = os.LookupEnv

// Load reads path on top of the defaults, applies environment overrides
// and validates the result. An empty path skips the file.
func Load(path string) (File, error) {
	f := Default()
	if path != "" {
		md, err := toml.DecodeFile(path, &f)
		if err != nil {
			return File{}, errors.Wrapf(err, "config: decode %s", path)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return File{}, errors.Newf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}
	if err := f.applyEnv(); err != nil {
		return File{}, err
	}
	if err := f.Validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

// Decode parses TOML text on top of the defaults without reading the
// environment.
func Decode(text string) (File, error) {
	f := Default()
	if _, err := toml.Decode(text, &f); err != nil {
		return File{}, errors.Wrap(err, "config: decode")
	}
	return f, f.Validate()
}

func (f *File) applyEnv() error {
	sizes := []struct {
		key string
		dst *ByteSize
	}{
		{"BLOCKMEM_CHUNK_SIZE", &f.Allocator.ChunkSize},
		{"BLOCKMEM_POOL_BUDGET", &f.Allocator.PoolBudget},
	}
	for _, s := range sizes {
		if v, ok := lookupEnv(s.key); ok {
			if err := s.dst.UnmarshalText([]byte(v)); err != nil {
				return errors.Wrapf(err, "config: %s", s.key)
			}
		}
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{"BLOCKMEM_DEBUG", &f.Allocator.Debug},
		{"BLOCKMEM_METRICS", &f.Allocator.Metrics},
		{"BLOCKMEM_LOG", &f.Log.Enabled},
	}
	for _, b := range bools {
		if v, ok := lookupEnv(b.key); ok {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				return errors.Wrapf(err, "config: %s", b.key)
			}
			*b.dst = parsed
		}
	}

	if v, ok := lookupEnv("BLOCKMEM_LOG_LEVEL"); ok {
		f.Log.Level = v
	}
	if v, ok := lookupEnv("BLOCKMEM_LOG_FILE"); ok {
		f.Log.Filename = v
	}
	return nil
}

// Validate checks ranges and cross-field constraints.
func (f File) Validate() error {
	a := f.Allocator
	if !format.IsPow2(a.ChunkSize.Int()) || a.ChunkSize < format.MinAllocationSize {
		return errors.Newf("config: allocator.chunk-size %d must be a power of two >= %d", a.ChunkSize, format.MinAllocationSize)
	}
	if a.ChunkSize > format.MaxChunkCapacity {
		return errors.Newf("config: allocator.chunk-size %d exceeds %d", a.ChunkSize, format.MaxChunkCapacity)
	}
	if a.PoolBudget == 0 {
		return errors.New("config: allocator.pool-budget must be non-zero; use a negative value to disable pools")
	}

	switch strings.ToLower(f.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return errors.Newf("config: log.level %q must be one of debug, info, warn, error", f.Log.Level)
	}
	switch f.Log.Format {
	case "console", "json":
	default:
		return errors.Newf("config: log.format %q must be console or json", f.Log.Format)
	}

	s := f.Stress
	if s.Workers <= 0 || s.Operations <= 0 {
		return errors.Newf("config: stress.workers %d and stress.operations %d must be positive", s.Workers, s.Operations)
	}
	if s.MinSize < 0 || s.MaxSize < s.MinSize {
		return errors.Newf("config: stress size range [%d, %d] is empty", s.MinSize, s.MaxSize)
	}
	if s.MaxSize > alloc.MaxAllocationSize {
		return errors.Newf("config: stress.max-size %d exceeds %d", s.MaxSize, alloc.MaxAllocationSize)
	}
	if s.ReleaseRatio < 0 || s.ReleaseRatio > 1 {
		return errors.Newf("config: stress.release-ratio %v must be within [0, 1]", s.ReleaseRatio)
	}
	if s.HoldMax <= 0 {
		return errors.Newf("config: stress.hold-max %d must be positive", s.HoldMax)
	}
	return nil
}

// AllocatorConfig converts the allocator table. The logger and metrics are
// left for the caller to wire.
func (f File) AllocatorConfig() alloc.Config {
	return alloc.Config{
		ChunkSize:  f.Allocator.ChunkSize.Int(),
		PoolBudget: f.Allocator.PoolBudget.Int(),
		Debug:      f.Allocator.Debug,
	}
}

// LoggerOptions converts the log table.
func (f File) LoggerOptions() logger.Options {
	return logger.Options{
		Enabled:    f.Log.Enabled,
		Level:      f.Log.Level,
		Format:     f.Log.Format,
		Filename:   f.Log.Filename,
		MaxSize:    f.Log.MaxSize,
		MaxDays:    f.Log.MaxDays,
		MaxBackups: f.Log.MaxBackups,
	}
}

// Encode renders f as TOML.
func (f File) Encode() (string, error) {
	var sb strings.Builder
	if err := toml.NewEncoder(&sb).Encode(f); err != nil {
		return "", errors.Wrap(err, "config: encode")
	}
	return sb.String(), nil
}
