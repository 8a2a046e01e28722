package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teranos/baseline/cmd/baseline/commands"
	"github.com/teranos/baseline/errors"
	"github.com/teranos/baseline/logger"
)

var rootCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Metadata-driven baseline runner",
	Long: `baseline - Run statistical baselines over recent log data.

Each baseline is a definition whose comment carries YAML metadata naming a
log source, a module and the values to template into it. A pass discovers
every definition matching a pattern, queries the log window, evaluates the
module and overwrites the baseline's result table.

Available commands:
  run     - Run every discovered baseline (or one, with --only)
  list    - List discovered baselines and whether their metadata is valid
  history - Show recent baseline outcomes
  config  - Show or validate configuration
  db      - Manage the sqlite database

Examples:
  baseline run                     # Run all baselines matching baselines.pattern
  baseline run --only LOGIN_BASELINE
  baseline list --pattern 'AUTH_%'
  baseline history --limit 50`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount(commands.FlagVerbose)
		jsonLogs, _ := cmd.Flags().GetBool(commands.FlagJSONLogs)
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP(commands.FlagVerbose, "v", "Increase output verbosity (repeat for more detail: -v, -vv)")
	rootCmd.PersistentFlags().Bool(commands.FlagJSONLogs, false, "Emit logs as JSON")
	rootCmd.PersistentFlags().String(commands.FlagConfig, "", "Read configuration from this file only")

	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.ListCmd)
	rootCmd.AddCommand(commands.HistoryCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	if err == nil {
		return
	}

	// Child runs report their outcome through the exit code alone
	var exit *commands.ExitError
	if errors.As(err, &exit) {
		os.Exit(exit.Code)
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	for _, hint := range errors.GetAllHints(err) {
		fmt.Fprintln(os.Stderr, "Hint:", hint)
	}
	os.Exit(1)
}
