// Package main provides the CLI entry point for gasbench, a deposit-contract
// gas benchmarking tool backed by a local Anvil chain.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gateway-fm/gasbench/internal/config"
	"github.com/gateway-fm/gasbench/internal/storage"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	root := newRootCmd(logger)
	if err := root.Execute(); err != nil {
		logger.Error("command failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newRootCmd(logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:   "gasbench",
		Short: "Benchmark deposit-contract gas costs against a local chain",
		Long: `Gasbench compiles the deposit contracts with forge, launches a local
Anvil chain, deploys the contracts and measures per-call gas usage, producing
summary statistics, CSV reports and charts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newPipelineCmd(logger))
	root.AddCommand(newPrecountCmd(logger))
	root.AddCommand(newHistoryCmd(logger))

	return root
}

// addCommonFlags registers the flags shared by both benchmark modes. Every
// flag defaults to the corresponding environment variable so the tool can be
// driven either way.
func addCommonFlags(cmd *cobra.Command, cfg *config.Config, contractsDir *string) {
	flags := cmd.Flags()
	flags.StringVar(&cfg.RPCURL, "rpc-url", cfg.RPCURL,
		"HTTP JSON-RPC endpoint of the local chain")
	flags.StringVar(&cfg.WSURL, "ws-url", cfg.WSURL,
		"WebSocket endpoint for block watching (empty = disabled)")
	flags.IntVar(&cfg.BlockTime, "block-time", cfg.BlockTime,
		"Seconds between mined blocks (0 = mine every transaction instantly)")
	flags.Int64Var(&cfg.GasPriceGwei, "gas-gwei", cfg.GasPriceGwei,
		"Gas price in gwei for all benchmark transactions")
	flags.StringVar(&cfg.OutDir, "out-dir", cfg.OutDir,
		"Directory for CSV and chart output")
	flags.StringVar(&cfg.DatabasePath, "db", cfg.DatabasePath,
		"SQLite history database path (empty = no persistence)")
	flags.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr,
		"Prometheus listen address, e.g. :9090 (empty = disabled)")
	flags.BoolVar(&cfg.SkipBuild, "skip-build", cfg.SkipBuild,
		"Skip the forge build step")
	flags.StringVar(contractsDir, "contracts-dir", ".",
		"Directory containing the foundry project to build")
}

func newPipelineCmd(logger *slog.Logger) *cobra.Command {
	cfg := config.Load()
	var contractsDir string

	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Submit N deposits per contract through a multi-account pipeline",
		Long: `Pipeline mode funds a pool of accounts, submits the full deposit batch
without waiting for confirmations, then collects every receipt in submission
order. Gas per call is reported against the call index.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runPipeline(cmd.Context(), logger, cfg, contractsDir)
		},
	}

	addCommonFlags(cmd, cfg, &contractsDir)
	flags := cmd.Flags()
	flags.IntVar(&cfg.CallCount, "calls", cfg.CallCount,
		"Deposit calls per contract")
	flags.IntVar(&cfg.NumAccounts, "accounts", cfg.NumAccounts,
		"Number of funded sender accounts")

	return cmd
}

func newPrecountCmd(logger *slog.Logger) *cobra.Command {
	cfg := config.Load()
	var contractsDir string

	cmd := &cobra.Command{
		Use:   "precount",
		Short: "Measure marginal deposit cost at power-of-two counter boundaries",
		Long: `Precount mode walks k from 1 to the configured maximum. At each step it
forces the contract's deposit counter to 2^k - 1, performs a single deposit and
records its gas, producing one measurement per exponent.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runPrecount(cmd.Context(), logger, cfg, contractsDir)
		},
	}

	addCommonFlags(cmd, cfg, &contractsDir)
	cmd.Flags().IntVar(&cfg.MaxPower, "max-power", cfg.MaxPower,
		"Highest exponent k (counter is stepped to 2^k - 1)")

	return cmd
}

func newHistoryCmd(logger *slog.Logger) *cobra.Command {
	var dbPath string
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List persisted benchmark runs, or show one run's results",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				return fmt.Errorf("--db is required")
			}

			store, err := storage.NewSQLiteStorage(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 1 {
				return printRunResults(cmd, store, args[0])
			}
			return printRunList(cmd, store, limit)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", os.Getenv("DATABASE_PATH"),
		"SQLite history database path")
	cmd.Flags().IntVar(&limit, "limit", 20,
		"Maximum number of runs to list")

	return cmd
}

func printRunList(cmd *cobra.Command, store storage.Storage, limit int) error {
	runs, err := store.ListRuns(cmd.Context(), limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODE\tSTARTED\tSTATUS\tCALLS\tACCOUNTS")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n",
			run.ID, run.Mode, run.StartedAt.Format("2006-01-02 15:04:05"),
			run.Status, run.CallCount, run.NumAccounts)
	}
	return w.Flush()
}

func printRunResults(cmd *cobra.Command, store storage.Storage, runID string) error {
	run, err := store.GetRun(cmd.Context(), runID)
	if err != nil {
		return err
	}
	results, err := store.GetResults(cmd.Context(), runID)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "run %s (%s, %s)\n", run.ID, run.Mode, run.Status)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CONTRACT\tI\tGAS\tTXHASH")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", r.Contract, r.Index, r.GasUsed, r.TxHash)
	}
	return w.Flush()
}
