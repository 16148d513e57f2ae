package bench

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/gateway-fm/gasbench/internal/account"
	"github.com/gateway-fm/gasbench/internal/contract"
	"github.com/gateway-fm/gasbench/internal/rpc"
	"github.com/gateway-fm/gasbench/internal/txbuilder"
)

// DefaultCallGasLimit bounds each benchmark call. Deposit inserts stay well
// under this.
const DefaultCallGasLimit = 300_000

// StatusPolicy controls how the pipeliner treats non-success receipts.
type StatusPolicy int

const (
	// StatusIgnore records every receipt's gas as-is without checking its
	// status. This matches the benchmark's original behavior, which assumes
	// all submitted transactions succeed.
	StatusIgnore StatusPolicy = iota

	// StatusFailFast aborts the run on the first non-success receipt.
	StatusFailFast
)

// ReceiptStatusError reports a transaction that mined but did not succeed.
type ReceiptStatusError struct {
	TxHash string
	Index  int
}

func (e *ReceiptStatusError) Error() string {
	return fmt.Sprintf("transaction %s (call %d) mined with failure status", e.TxHash, e.Index)
}

// PipelinerConfig configures a Pipeliner.
type PipelinerConfig struct {
	Client   rpc.Client
	ChainID  *big.Int
	GasPrice *big.Int
	GasLimit uint64 // 0 = DefaultCallGasLimit
	Policy   StatusPolicy
	Observer Observer // optional
	Logger   *slog.Logger
}

// Pipeliner submits a large batch of contract calls as fast as the node
// accepts them, cycling through a pool of accounts, then collects receipts.
//
// Submission is decoupled from confirmation: every call's nonce is assigned
// from the account's local counter at sign time, so the whole batch is on the
// wire before the first receipt is fetched. Waiting for each receipt before
// the next send would serialize throughput at one network round trip per call.
//
// Known limitation: a transaction that never mines stalls receipt collection
// indefinitely. The pipeliner does not replace stuck transactions.
type Pipeliner struct {
	client   rpc.Client
	chainID  *big.Int
	gasPrice *big.Int
	gasLimit uint64
	policy   StatusPolicy
	observer Observer
	logger   *slog.Logger
}

// NewPipeliner creates a Pipeliner.
func NewPipeliner(cfg PipelinerConfig) *Pipeliner {
	gasLimit := cfg.GasLimit
	if gasLimit == 0 {
		gasLimit = DefaultCallGasLimit
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeliner{
		client:   cfg.Client,
		chainID:  cfg.ChainID,
		gasPrice: cfg.GasPrice,
		gasLimit: gasLimit,
		policy:   cfg.Policy,
		observer: cfg.Observer,
		logger:   logger,
	}
}

// Run submits n calls to h.fn and returns one Result per call, in submission
// order. Call index i is assigned to accounts[i mod len(accounts)]; each
// account's nonces form a strictly increasing, gapless sequence anchored to
// its on-chain nonce at batch start.
func (p *Pipeliner) Run(
	ctx context.Context,
	h *contract.Handle,
	fn string,
	args ArgFactory,
	accounts []*account.Account,
	n int,
) ([]Result, error) {
	if n < 1 {
		return nil, fmt.Errorf("call count must be at least 1, got %d", n)
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("at least one account is required")
	}
	if !h.HasFunction(fn) {
		return nil, fmt.Errorf("contract %s has no function %q", h.Name, fn)
	}

	// Anchor every account's local nonce counter to mined chain state.
	for i, acc := range accounts {
		if err := acc.ResyncFromChain(ctx, p.client); err != nil {
			return nil, fmt.Errorf("resync account %d: %w", i, err)
		}
	}

	logger := p.logger.With(
		slog.String("contract", h.Name),
		slog.String("fn", fn),
	)

	// Phase 1: sign and submit everything.
	start := time.Now()
	hashes := make([]string, 0, n)

	for i := 0; i < n; i++ {
		acc := accounts[i%len(accounts)]

		data, err := h.Pack(fn, args(i)...)
		if err != nil {
			return nil, fmt.Errorf("call %d: %w", i, err)
		}

		nonce := acc.ReserveNonce()
		tx := txbuilder.NewCallTx(nonce.Value(), h.Address, p.gasLimit, p.gasPrice, data)
		rlp, txHash, err := txbuilder.Sign(tx, p.chainID, acc.PrivateKey)
		if err != nil {
			nonce.Rollback()
			return nil, fmt.Errorf("sign call %d: %w", i, err)
		}

		if err := p.client.SendRawTransaction(ctx, rlp); err != nil {
			nonce.Rollback()
			return nil, fmt.Errorf("send call %d: %w", i, err)
		}
		nonce.Commit()

		hashes = append(hashes, txHash.Hex())
		if p.observer != nil {
			p.observer.TxSent(h.Name)
		}
	}

	logger.Info("batch submitted",
		slog.Int("calls", n),
		slog.Int("accounts", len(accounts)),
		slog.Duration("elapsed", time.Since(start)),
	)

	// Phase 2: collect receipts in submission order.
	results := make([]Result, 0, n)
	decile := max(1, n/10)

	for i, txHash := range hashes {
		receipt, err := p.client.WaitForReceipt(ctx, txHash)
		if err != nil {
			return results, fmt.Errorf("receipt for call %d: %w", i, err)
		}

		if p.policy == StatusFailFast && !receipt.Succeeded() {
			return results, &ReceiptStatusError{TxHash: txHash, Index: i}
		}

		results = append(results, Result{
			Index:   i,
			GasUsed: receipt.GasUsed,
			TxHash:  txHash,
		})
		if p.observer != nil {
			p.observer.ReceiptCollected(h.Name, receipt.GasUsed)
		}

		// Progress at power-of-two insert counts and at deciles.
		// Observability only; no effect on control flow.
		count := i + 1
		if count&(count-1) == 0 {
			logger.Info("gas sample",
				slog.Int("insert", count),
				slog.Uint64("gas", receipt.GasUsed),
			)
		}
		if count%decile == 0 {
			elapsed := time.Since(start)
			logger.Info("receipts collected",
				slog.Int("done", count),
				slog.Int("total", n),
				slog.Float64("tx_per_sec", float64(count)/elapsed.Seconds()),
			)
		}
	}

	logger.Info("batch complete",
		slog.Int("calls", n),
		slog.Duration("elapsed", time.Since(start)),
	)

	return results, nil
}
