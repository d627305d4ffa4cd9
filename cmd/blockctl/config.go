package main

import (
	"github.com/spf13/cobra"

	"github.com/joshuapare/blockmem/internal/config"
)

func init() {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or check configuration",
	}
	cmd.AddCommand(newConfigShowCmd(), newConfigValidateCmd())
	rootCmd.AddCommand(cmd)
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `The show command prints the configuration after defaults, the config
file and BLOCKMEM_* environment variables are applied, as TOML or JSON.

Example:
  blockctl config show
  BLOCKMEM_CHUNK_SIZE=4MiB blockctl config show --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow()
		},
	}
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a TOML config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigValidate(args)
		},
	}
}

func runConfigShow() error {
	if jsonOut {
		return printJSON(cfg)
	}
	text, err := cfg.Encode()
	if err != nil {
		return err
	}
	printInfo("%s", text)
	return nil
}

func runConfigValidate(args []string) error {
	if _, err := config.Load(args[0]); err != nil {
		return err
	}
	printInfo("%s: OK\n", args[0])
	return nil
}
