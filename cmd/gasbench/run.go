package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gateway-fm/gasbench/internal/account"
	"github.com/gateway-fm/gasbench/internal/artifact"
	"github.com/gateway-fm/gasbench/internal/bench"
	"github.com/gateway-fm/gasbench/internal/blockwatch"
	"github.com/gateway-fm/gasbench/internal/chain"
	"github.com/gateway-fm/gasbench/internal/config"
	"github.com/gateway-fm/gasbench/internal/contract"
	"github.com/gateway-fm/gasbench/internal/metrics"
	"github.com/gateway-fm/gasbench/internal/report"
	"github.com/gateway-fm/gasbench/internal/rpc"
	"github.com/gateway-fm/gasbench/internal/storage"
)

// benchTarget names one contract under measurement and where forge puts its
// artifact.
type benchTarget struct {
	name     string
	artifact string
	fn       string
}

var depositContracts = []benchTarget{
	{
		name:     "DepositContract",
		artifact: "out/DepositContract.sol/DepositContract.json",
		fn:       "deposit",
	},
	{
		name:     "DepositContractWithProofs",
		artifact: "out/DepositContractWithProofs.sol/DepositContractWithProofs.json",
		fn:       "deposit",
	},
}

// runEnv holds everything a benchmark run needs: the chain subprocess, RPC
// client and the optional metrics, storage and block-watching surfaces.
type runEnv struct {
	cfg     *config.Config
	logger  *slog.Logger
	client  rpc.Client
	chainID *big.Int

	node       *chain.Node
	watcher    *blockwatch.Watcher
	metrics    *metrics.Metrics
	metricsSrv *metrics.Server
	store      storage.Storage
}

// setupRun builds the contracts, launches the chain and wires the optional
// components. Callers must Close the returned environment.
func setupRun(ctx context.Context, logger *slog.Logger, cfg *config.Config, contractsDir string) (*runEnv, error) {
	if !cfg.SkipBuild {
		if err := chain.BuildContracts(ctx, logger, contractsDir); err != nil {
			return nil, err
		}
	}

	node, err := chain.Start(ctx, chain.DefaultNodeConfig(cfg.RPCURL, cfg.BlockTime))
	if err != nil {
		return nil, err
	}

	env := &runEnv{cfg: cfg, logger: logger, node: node}

	clientCfg := rpc.DefaultClientConfig(cfg.RPCURL)
	clientCfg.Logger = logger
	env.client = rpc.NewHTTPClient(clientCfg)

	chainID, err := env.client.GetChainID(ctx)
	if err != nil {
		env.Close()
		return nil, fmt.Errorf("failed to fetch chain id: %w", err)
	}
	env.chainID = chainID
	logger.Info("connected to chain", slog.Uint64("chain_id", chainID.Uint64()))

	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		env.metrics = metrics.New(reg)
		env.metricsSrv = metrics.StartServer(cfg.MetricsAddr, reg, logger)
	}

	if cfg.DatabasePath != "" {
		store, err := storage.NewSQLiteStorage(cfg.DatabasePath)
		if err != nil {
			env.Close()
			return nil, fmt.Errorf("failed to open history database: %w", err)
		}
		env.store = store
	}

	if cfg.WSURL != "" {
		watcher := blockwatch.New(cfg.WSURL, logger)
		if err := watcher.Start(ctx); err != nil {
			// Block watching is observability only; a chain without WS
			// support should not stop the benchmark.
			logger.Warn("block watcher disabled", slog.String("error", err.Error()))
		} else {
			env.watcher = watcher
		}
	}

	return env, nil
}

// observer returns the pipeline observer, nil when metrics are disabled.
func (env *runEnv) observer() bench.Observer {
	if env.metrics == nil {
		return nil
	}
	return env.metrics
}

// Close tears the environment down in reverse setup order. The chain process
// is always terminated, whatever else failed.
func (env *runEnv) Close() {
	if env.watcher != nil {
		env.watcher.Stop()
	}
	if env.store != nil {
		env.store.Close()
	}
	if env.metricsSrv != nil {
		env.metricsSrv.Stop()
	}
	env.node.Stop()
}

// beginRun records a run in the history database, if one is configured.
func (env *runEnv) beginRun(ctx context.Context, mode storage.RunMode) string {
	if env.store == nil {
		return ""
	}

	run := &storage.BenchRun{
		ID:           storage.NewRunID(mode, time.Now()),
		StartedAt:    time.Now(),
		Mode:         mode,
		CallCount:    env.cfg.CallCount,
		NumAccounts:  env.cfg.NumAccounts,
		GasPriceGwei: env.cfg.GasPriceGwei,
		Status:       storage.StatusRunning,
	}
	if err := env.store.SaveRun(ctx, run); err != nil {
		env.logger.Warn("failed to persist run", slog.String("error", err.Error()))
		return ""
	}
	return run.ID
}

// finishRun marks the run completed or failed. Persistence problems are
// logged, never fatal.
func (env *runEnv) finishRun(ctx context.Context, runID string, runErr error) {
	if env.store == nil || runID == "" {
		return
	}

	status := storage.StatusCompleted
	msg := ""
	if runErr != nil {
		status = storage.StatusError
		msg = runErr.Error()
	}
	if err := env.store.CompleteRun(ctx, runID, status, msg); err != nil {
		env.logger.Warn("failed to finalize run", slog.String("error", err.Error()))
	}
}

// saveResults persists one contract's measurements under the run.
func (env *runEnv) saveResults(ctx context.Context, runID, name string, results []bench.Result) {
	if env.store == nil || runID == "" {
		return
	}

	rows := make([]storage.ResultRow, len(results))
	for i, r := range results {
		rows[i] = storage.ResultRow{
			RunID:    runID,
			Contract: name,
			Index:    r.Index,
			GasUsed:  r.GasUsed,
			TxHash:   r.TxHash,
		}
	}
	if err := env.store.SaveResults(ctx, rows); err != nil {
		env.logger.Warn("failed to persist results", slog.String("error", err.Error()))
	}
}

// deployTargets deploys every benchmark contract from the given account.
func deployTargets(ctx context.Context, env *runEnv, deployer *account.Account, contractsDir string) ([]*contract.Handle, error) {
	d := contract.NewDeployer(env.client, env.chainID, env.cfg.GasPriceWei(), env.logger)

	handles := make([]*contract.Handle, 0, len(depositContracts))
	for _, target := range depositContracts {
		art, err := artifact.Load(filepath.Join(contractsDir, target.artifact))
		if err != nil {
			return nil, err
		}
		h, err := d.Deploy(ctx, deployer, target.name, art)
		if err != nil {
			return nil, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// runPipeline is the multi-account batch benchmark: N deposits per contract,
// submitted ahead and confirmed later.
func runPipeline(ctx context.Context, logger *slog.Logger, cfg *config.Config, contractsDir string) error {
	env, err := setupRun(ctx, logger, cfg, contractsDir)
	if err != nil {
		return err
	}
	defer env.Close()

	runID := env.beginRun(ctx, storage.ModePipeline)

	pool, err := account.NewPool(account.AnvilPrivateKey, cfg.NumAccounts, env.chainID, cfg.GasPriceWei(), logger)
	if err != nil {
		env.finishRun(ctx, runID, err)
		return err
	}
	if err := pool.Fund(ctx, env.client); err != nil {
		env.finishRun(ctx, runID, err)
		return err
	}

	handles, err := deployTargets(ctx, env, pool.Base(), contractsDir)
	if err != nil {
		env.finishRun(ctx, runID, err)
		return err
	}

	pipeliner := bench.NewPipeliner(bench.PipelinerConfig{
		Client:   env.client,
		ChainID:  env.chainID,
		GasPrice: cfg.GasPriceWei(),
		Observer: env.observer(),
		Logger:   logger,
	})
	args := bench.LeafArgs()

	var rows []report.Row
	var series []report.Series

	for i, h := range handles {
		logger.Info("running pipeline benchmark",
			slog.String("contract", h.Name),
			slog.Int("calls", cfg.CallCount),
		)

		results, err := pipeliner.Run(ctx, h, depositContracts[i].fn, args, pool.Accounts(), cfg.CallCount)
		if err != nil {
			env.finishRun(ctx, runID, err)
			return fmt.Errorf("pipeline benchmark for %s: %w", h.Name, err)
		}

		report.Summarize(bench.GasValues(results)).Log(logger, h.Name)
		env.saveResults(ctx, runID, h.Name, results)

		rows = append(rows, report.RowsFromResults(h.Name, results)...)
		series = append(series, report.SeriesFromResults(h.Name, results))
	}

	if err := writePipelineReports(logger, cfg.OutDir, rows, series); err != nil {
		env.finishRun(ctx, runID, err)
		return err
	}

	env.finishRun(ctx, runID, nil)
	return nil
}

func writePipelineReports(logger *slog.Logger, outDir string, rows []report.Row, series []report.Series) error {
	csvPath := filepath.Join(outDir, "gas_report1.csv")
	if err := report.SaveCSV(csvPath, rows); err != nil {
		return err
	}
	logger.Info("saved CSV report", slog.String("path", csvPath))

	scatterPath := filepath.Join(outDir, "scatter.png")
	if err := report.SaveScatter(scatterPath, "Deposit Contracts Gas Cost (scatter)", "Call index", series); err != nil {
		return err
	}
	boxPath := filepath.Join(outDir, "boxplot.png")
	if err := report.SaveBoxPlot(boxPath, "Deposit Contracts Gas Cost (distribution)", series); err != nil {
		return err
	}
	logger.Info("saved charts",
		slog.String("scatter", scatterPath),
		slog.String("boxplot", boxPath),
	)
	return nil
}

// runPrecount is the sequential benchmark: force the deposit counter to
// 2^k - 1, measure one deposit, for k up to the configured maximum.
func runPrecount(ctx context.Context, logger *slog.Logger, cfg *config.Config, contractsDir string) error {
	env, err := setupRun(ctx, logger, cfg, contractsDir)
	if err != nil {
		return err
	}
	defer env.Close()

	runID := env.beginRun(ctx, storage.ModePrecount)

	acct, err := account.NewAccountFromHex(account.AnvilPrivateKey)
	if err != nil {
		env.finishRun(ctx, runID, err)
		return err
	}

	handles, err := deployTargets(ctx, env, acct, contractsDir)
	if err != nil {
		env.finishRun(ctx, runID, err)
		return err
	}

	stepper := bench.NewStepper(bench.StepperConfig{
		Client:   env.client,
		ChainID:  env.chainID,
		GasPrice: cfg.GasPriceWei(),
		Logger:   logger,
	})
	args := bench.LeafArgs()

	var rows []report.Row
	var series []report.Series

	for i, h := range handles {
		logger.Info("running precount benchmark",
			slog.String("contract", h.Name),
			slog.Int("max_power", cfg.MaxPower),
		)

		checkpoints, err := stepper.Run(ctx, h, "setDepositCount", depositContracts[i].fn, args, acct, cfg.MaxPower)
		if err != nil {
			env.finishRun(ctx, runID, err)
			return fmt.Errorf("precount benchmark for %s: %w", h.Name, err)
		}

		results := bench.Checkpoints(checkpoints)
		report.Summarize(bench.GasValues(results)).Log(logger, h.Name)
		env.saveResults(ctx, runID, h.Name, results)

		rows = append(rows, report.RowsFromResults(h.Name, results)...)
		series = append(series, report.SeriesFromCheckpoints(h.Name, checkpoints))
	}

	csvPath := filepath.Join(cfg.OutDir, "gas_report2.csv")
	if err := report.SaveCSV(csvPath, rows); err != nil {
		env.finishRun(ctx, runID, err)
		return err
	}
	logger.Info("saved CSV report", slog.String("path", csvPath))

	scatterPath := filepath.Join(cfg.OutDir, "scatter2.png")
	if err := report.SaveScatter(scatterPath, "Deposit Contracts Gas Cost (scatter)", "Depth exponent k (count = 2^k-1)", series); err != nil {
		env.finishRun(ctx, runID, err)
		return err
	}
	logger.Info("saved chart", slog.String("scatter", scatterPath))

	env.finishRun(ctx, runID, nil)
	return nil
}
