package main

import (
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/joshuapare/blockmem/heap/alloc"
	"github.com/joshuapare/blockmem/internal/config"
)

var (
	infoSample []string
)

func init() {
	cmd := newInfoCmd()
	cmd.Flags().StringSliceVar(&infoSample, "sample", nil, "Sizes to allocate before reporting, e.g. 16,200,1MiB")
	rootCmd.AddCommand(cmd)
}

func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show the allocator layout for the current config",
		Long: `The info command creates an allocator from the effective configuration,
optionally makes a few sample allocations, and prints its diagnostic
report: chunks with usage and size histograms, pool occupancy, and mapped
system memory.

Example:
  blockctl info
  blockctl info --sample 16,200,20MiB
  blockctl -c blockmem.toml info --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo()
		},
	}
	return cmd
}

func runInfo() error {
	sizes, err := parseSizes(infoSample)
	if err != nil {
		return err
	}

	a, _, err := newAllocator(false)
	if err != nil {
		return err
	}
	defer a.Close()

	for _, n := range sizes {
		p := a.Allocate(n)
		printVerbose("Allocated %d bytes at 0x%x\n", n, uintptr(p))
	}

	in := a.Snapshot()
	if jsonOut {
		return printJSON(in)
	}
	printInfo("%s\n", in.String())
	return nil
}

// parseSizes parses human-readable sizes bounded by MaxAllocationSize.
func parseSizes(list []string) ([]int, error) {
	sizes := make([]int, 0, len(list))
	for _, s := range list {
		var b config.ByteSize
		if err := b.UnmarshalText([]byte(s)); err != nil {
			return nil, err
		}
		if b < 0 || b > alloc.MaxAllocationSize {
			return nil, errors.Newf("size %s out of range [0, %d]", s, alloc.MaxAllocationSize)
		}
		sizes = append(sizes, b.Int())
	}
	return sizes, nil
}
