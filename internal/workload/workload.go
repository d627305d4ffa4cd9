// Package workload drives an allocator with a randomized mix of
// allocations and releases from a pool of goroutines.
//
// Every allocation is filled with a pattern derived from its size and
// worker, and the pattern is checked before release, so overlapping
// allocations show up as corruptions.
package workload

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/joshuapare/blockmem/heap/alloc"
)

// ErrCorruption is returned when a worker finds its data overwritten.
var ErrCorruption = errors.New("workload: allocation contents changed before release")

// Options controls one run.
type Options struct {
	Workers      int     // concurrent workers; default 1
	Operations   int     // total allocate+release operations across workers
	MinSize      int     // smallest request
	MaxSize      int     // largest request
	HoldMax      int     // allocations a worker holds before it must release; default 64
	ReleaseRatio float64 // chance an operation is a release when holding anything
	Seed         int64   // worker i uses Seed+i
	Logger       *zap.Logger
}

// Result summarizes one run.
type Result struct {
	Operations     int64
	Allocations    int64
	Releases       int64
	BytesRequested int64
	Corruptions    int64
	PeakHeld       int64 // most allocations held at once across workers
	Duration       time.Duration
}

// OpsPerSecond returns the throughput of the run.
func (r Result) OpsPerSecond() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return float64(r.Operations) / r.Duration.Seconds()
}

type counters struct {
	ops, allocs, releases, bytes, corruptions atomic.Int64
	held, peak                                atomic.Int64
}

func (c *counters) hold(delta int64) {
	n := c.held.Add(delta)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

// Run executes the workload against a. It returns when every worker has
// finished or ctx is done; all memory taken by the workload is released
// either way.
func Run(ctx context.Context, a *alloc.BlockAllocator, opts Options) (Result, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return Result{}, err
	}
	log := opts.Logger.Named("workload")

	var (
		c         counters
		panicMu   sync.Mutex
		panicked  error
		wg        sync.WaitGroup
		recordErr = func(v any) {
			panicMu.Lock()
			defer panicMu.Unlock()
			if panicked == nil {
				if err, ok := v.(error); ok {
					panicked = errors.Wrap(err, "workload: worker panicked")
				} else {
					panicked = errors.Newf("workload: worker panicked: %v", v)
				}
			}
		}
	)

	pool, err := ants.NewPool(opts.Workers, ants.WithPanicHandler(func(v any) {
		recordErr(v)
		wg.Done()
	}))
	if err != nil {
		return Result{}, errors.Wrap(err, "workload: create pool")
	}
	defer pool.Release()

	start := time.Now()
	for i := range opts.Workers {
		ops := opts.Operations / opts.Workers
		if i < opts.Operations%opts.Workers {
			ops++
		}
		w := &worker{
			id:    i,
			a:     a,
			opts:  opts,
			rng:   rand.New(rand.NewSource(opts.Seed + int64(i))),
			stats: &c,
		}
		wg.Add(1)
		if err := pool.Submit(func() {
			w.run(ctx, ops)
			wg.Done()
		}); err != nil {
			wg.Done()
			recordErr(errors.Wrap(err, "submit"))
		}
	}
	wg.Wait()

	res := Result{
		Operations:     c.ops.Load(),
		Allocations:    c.allocs.Load(),
		Releases:       c.releases.Load(),
		BytesRequested: c.bytes.Load(),
		Corruptions:    c.corruptions.Load(),
		PeakHeld:       c.peak.Load(),
		Duration:       time.Since(start),
	}
	log.Info("workload finished",
		zap.Int("workers", opts.Workers),
		zap.Int64("operations", res.Operations),
		zap.Int64("corruptions", res.Corruptions),
		zap.Duration("duration", res.Duration))

	switch {
	case panicked != nil:
		return res, panicked
	case res.Corruptions > 0:
		return res, errors.Wrapf(ErrCorruption, "%d allocations", res.Corruptions)
	}
	return res, ctx.Err()
}

func (o Options) withDefaults() (Options, error) {
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.HoldMax <= 0 {
		o.HoldMax = 64
	}
	if o.MaxSize == 0 {
		o.MaxSize = o.MinSize
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.MinSize < 0 || o.MaxSize < o.MinSize {
		return o, errors.Newf("workload: bad size range [%d, %d]", o.MinSize, o.MaxSize)
	}
	if o.ReleaseRatio < 0 || o.ReleaseRatio > 1 {
		return o, errors.Newf("workload: release ratio %v outside [0, 1]", o.ReleaseRatio)
	}
	return o, nil
}

// held is one live allocation of a worker.
type held struct {
	p    alloc.Ptr
	size int
}

type worker struct {
	id    int
	a     *alloc.BlockAllocator
	opts  Options
	rng   *rand.Rand
	stats *counters
	live  []held
}

func (w *worker) run(ctx context.Context, ops int) {
	defer w.releaseAll()

	for i := range ops {
		if i%256 == 0 && ctx.Err() != nil {
			return
		}
		w.stats.ops.Add(1)
		if len(w.live) > 0 && (len(w.live) >= w.opts.HoldMax || w.rng.Float64() < w.opts.ReleaseRatio) {
			w.releaseAt(w.rng.Intn(len(w.live)))
			continue
		}
		w.allocate()
	}
}

func (w *worker) allocate() {
	size := w.opts.MinSize
	if span := w.opts.MaxSize - w.opts.MinSize; span > 0 {
		size += w.rng.Intn(span + 1)
	}
	p := w.a.Allocate(size)
	if p.IsNil() {
		return
	}
	w.fill(p, size)
	w.live = append(w.live, held{p, size})
	w.stats.allocs.Add(1)
	w.stats.bytes.Add(int64(size))
	w.stats.hold(1)
}

func (w *worker) releaseAt(i int) {
	h := w.live[i]
	if !w.verify(h.p, h.size) {
		w.stats.corruptions.Add(1)
	}
	w.a.Release(h.p)
	w.live[i] = w.live[len(w.live)-1]
	w.live = w.live[:len(w.live)-1]
	w.stats.releases.Add(1)
	w.stats.hold(-1)
}

func (w *worker) releaseAll() {
	for len(w.live) > 0 {
		w.releaseAt(len(w.live) - 1)
	}
}

func (w *worker) pattern(size int) byte { return byte(w.id*31 + size) }

func (w *worker) fill(p alloc.Ptr, size int) {
	b := w.a.Bytes(p, size)
	seed := w.pattern(size)
	for i := range b {
		b[i] = seed + byte(i)
	}
}

func (w *worker) verify(p alloc.Ptr, size int) bool {
	b := w.a.Bytes(p, size)
	seed := w.pattern(size)
	for i := range b {
		if b[i] != seed+byte(i) {
			return false
		}
	}
	return true
}
