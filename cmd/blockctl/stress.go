package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/cockroachdb/errors"
	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/joshuapare/blockmem/heap/alloc"
	"github.com/joshuapare/blockmem/internal/config"
	"github.com/joshuapare/blockmem/internal/logger"
	"github.com/joshuapare/blockmem/internal/workload"
)

var (
	stressWorkers int
	stressOps     int
	stressMinSize string
	stressMaxSize string
	stressHold    int
	stressRelease float64
	stressSeed    int64
	stressTimeout time.Duration
	stressFlush   bool
	stressReport  bool
	stressMetrics bool
)

func init() {
	cmd := newStressCmd()
	cmd.Flags().IntVarP(&stressWorkers, "workers", "w", 0, "Concurrent workers (default from config)")
	cmd.Flags().IntVarP(&stressOps, "ops", "n", 0, "Total operations (default from config)")
	cmd.Flags().StringVar(&stressMinSize, "min-size", "", "Smallest request, e.g. 16 or 1KiB")
	cmd.Flags().StringVar(&stressMaxSize, "max-size", "", "Largest request, e.g. 4KiB or 2MiB")
	cmd.Flags().IntVar(&stressHold, "hold", 0, "Allocations a worker may hold at once")
	cmd.Flags().Float64Var(&stressRelease, "release-ratio", -1, "Chance an operation releases (0..1)")
	cmd.Flags().Int64Var(&stressSeed, "seed", 0, "Random seed (default from config)")
	cmd.Flags().DurationVar(&stressTimeout, "timeout", 0, "Stop after this long")
	cmd.Flags().BoolVar(&stressFlush, "flush", true, "Flush unused chunks after the run")
	cmd.Flags().BoolVar(&stressReport, "report", false, "Print the allocator report after the run")
	cmd.Flags().BoolVar(&stressMetrics, "metrics", false, "Print prometheus metrics after the run")
	rootCmd.AddCommand(cmd)
}

func newStressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Run a randomized allocation workload",
		Long: `The stress command runs concurrent workers that allocate, fill, verify
and release memory, then reports throughput and allocator statistics.
Any overlapping allocation shows up as a corruption and fails the run.

Example:
  blockctl stress
  blockctl stress -w 16 -n 1000000 --max-size 64KiB
  blockctl stress --report --metrics
  blockctl stress --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStress(cmd.Context())
		},
	}
	return cmd
}

// StressReport is the JSON output of the stress command.
type StressReport struct {
	Workers        int               `json:"workers"`
	Operations     int64             `json:"operations"`
	Allocations    int64             `json:"allocations"`
	Releases       int64             `json:"releases"`
	BytesRequested int64             `json:"bytes_requested"`
	Corruptions    int64             `json:"corruptions"`
	PeakHeld       int64             `json:"peak_held"`
	Duration       time.Duration     `json:"duration_ns"`
	OpsPerSecond   float64           `json:"ops_per_second"`
	Stats          alloc.Stats       `json:"stats"`
	Flushed        alloc.FlushResult `json:"flushed"`
	Leaks          int               `json:"leaks"`
}

// stressOptions merges command flags over the [stress] config table.
func stressOptions() (workload.Options, error) {
	s := cfg.Stress
	if stressWorkers > 0 {
		s.Workers = stressWorkers
	}
	if stressOps > 0 {
		s.Operations = stressOps
	}
	for _, f := range []struct {
		flag string
		dst  *config.ByteSize
	}{{stressMinSize, &s.MinSize}, {stressMaxSize, &s.MaxSize}} {
		if f.flag == "" {
			continue
		}
		if err := f.dst.UnmarshalText([]byte(f.flag)); err != nil {
			return workload.Options{}, err
		}
	}
	if stressHold > 0 {
		s.HoldMax = stressHold
	}
	if stressRelease >= 0 {
		s.ReleaseRatio = stressRelease
	}
	if stressSeed != 0 {
		s.Seed = stressSeed
	}

	merged := cfg
	merged.Stress = s
	if err := merged.Validate(); err != nil {
		return workload.Options{}, err
	}
	return workload.Options{
		Workers:      s.Workers,
		Operations:   s.Operations,
		MinSize:      s.MinSize.Int(),
		MaxSize:      s.MaxSize.Int(),
		HoldMax:      s.HoldMax,
		ReleaseRatio: s.ReleaseRatio,
		Seed:         s.Seed,
		Logger:       logger.L,
	}, nil
}

func runStress(ctx context.Context) error {
	opts, err := stressOptions()
	if err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	if stressTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, stressTimeout)
		defer cancel()
	}

	a, reg, err := newAllocator(stressMetrics)
	if err != nil {
		return err
	}

	printVerbose("Running %s operations on %d workers, sizes %s..%s\n",
		humanize.Comma(int64(opts.Operations)), opts.Workers,
		config.ByteSize(opts.MinSize), config.ByteSize(opts.MaxSize))

	res, runErr := workload.Run(ctx, a, opts)
	if err := stressFailure(ctx, runErr); err != nil {
		a.Close()
		return err
	}

	report := StressReport{
		Workers:        opts.Workers,
		Operations:     res.Operations,
		Allocations:    res.Allocations,
		Releases:       res.Releases,
		BytesRequested: res.BytesRequested,
		Corruptions:    res.Corruptions,
		PeakHeld:       res.PeakHeld,
		Duration:       res.Duration,
		OpsPerSecond:   res.OpsPerSecond(),
	}
	if stressFlush {
		report.Flushed = a.FlushUnusedBlocks()
	}
	report.Stats = a.Stats()
	snapshot := a.Snapshot()

	var metrics string
	if reg != nil {
		if metrics, err = metricsText(reg); err != nil {
			a.Close()
			return err
		}
	}

	leaks := a.Close()
	leaks.Log(logger.L)
	report.Leaks = len(leaks.Leaks)

	if jsonOut {
		return printJSON(report)
	}

	printInfo("Workers:      %d\n", report.Workers)
	printInfo("Operations:   %s (%s allocations, %s releases)\n",
		humanize.Comma(report.Operations), humanize.Comma(report.Allocations), humanize.Comma(report.Releases))
	printInfo("Requested:    %s\n", humanize.IBytes(uint64(report.BytesRequested)))
	printInfo("Peak held:    %s allocations\n", humanize.Comma(report.PeakHeld))
	printInfo("Duration:     %s (%s ops/s)\n", report.Duration.Round(time.Millisecond), humanize.Commaf(float64(int64(report.OpsPerSecond))))
	printInfo("Pool hits:    48: %s, 96: %s, fallbacks: %s\n",
		humanize.Comma(int64(report.Stats.Pool48Hits)), humanize.Comma(int64(report.Stats.Pool96Hits)),
		humanize.Comma(int64(report.Stats.PoolFallbacks)))
	printInfo("Chunks:       %d created, %d flushed (%s)\n",
		report.Stats.ChunksCreated, report.Stats.ChunksFlushed, humanize.IBytes(uint64(report.Stats.BytesFlushed)))
	printInfo("Splits:       %s, merges: %s\n",
		humanize.Comma(int64(report.Stats.Splits)), humanize.Comma(int64(report.Stats.Merges)))
	if ctx.Err() != nil {
		printInfo("Stopped early: %v\n", ctx.Err())
	}
	if report.Leaks > 0 {
		printError("%d allocations leaked\n", report.Leaks)
	}

	if stressReport || verbose {
		printInfo("\n%s\n", snapshot.String())
	}
	if metrics != "" {
		printInfo("\n%s", metrics)
	}
	return nil
}

// stressFailure returns the workload error that should fail the command.
// Stopping on interrupt or timeout is not a failure; corruption and task
// panics always are.
func stressFailure(ctx context.Context, runErr error) error {
	if runErr == nil {
		return nil
	}
	if ctx.Err() != nil && errors.Is(runErr, ctx.Err()) {
		return nil
	}
	return runErr
}
