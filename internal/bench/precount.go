package bench

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/gateway-fm/gasbench/internal/account"
	"github.com/gateway-fm/gasbench/internal/contract"
	"github.com/gateway-fm/gasbench/internal/rpc"
	"github.com/gateway-fm/gasbench/internal/txbuilder"
)

// Checkpoint is one precount measurement: the gas cost of a single marginal
// operation after the contract's counter was forced to 2^k - 1.
type Checkpoint struct {
	K       int    // Exponent
	Target  uint64 // Counter value the state was set to (2^k - 1)
	GasUsed uint64 // Gas of the measured operation
	TxHash  string // Measured operation's transaction
}

// StepperConfig configures a Stepper.
type StepperConfig struct {
	Client   rpc.Client
	ChainID  *big.Int
	GasPrice *big.Int
	GasLimit uint64 // 0 = DefaultCallGasLimit
	Logger   *slog.Logger
}

// Stepper measures the marginal gas cost of an operation as a function of
// prior accumulated state. It is strictly sequential by necessity: each
// measured call's precondition is the counter value set by the previous call,
// so every transaction is waited on before the next is submitted.
type Stepper struct {
	client   rpc.Client
	chainID  *big.Int
	gasPrice *big.Int
	gasLimit uint64
	logger   *slog.Logger
}

// NewStepper creates a Stepper.
func NewStepper(cfg StepperConfig) *Stepper {
	gasLimit := cfg.GasLimit
	if gasLimit == 0 {
		gasLimit = DefaultCallGasLimit
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Stepper{
		client:   cfg.Client,
		chainID:  cfg.ChainID,
		gasPrice: cfg.GasPrice,
		gasLimit: gasLimit,
		logger:   logger,
	}
}

// Run walks k from 1 to maxPower. At each k it sets the contract's counter to
// 2^k - 1 via setFn, then measures one measureFn call, recording its gas
// against k. Any non-success receipt aborts the run; checkpoints recorded
// before the failure are returned alongside the error.
func (s *Stepper) Run(
	ctx context.Context,
	h *contract.Handle,
	setFn, measureFn string,
	args ArgFactory,
	acc *account.Account,
	maxPower int,
) ([]Checkpoint, error) {
	if maxPower < 1 {
		return nil, fmt.Errorf("max power must be at least 1, got %d", maxPower)
	}
	if !h.HasFunction(setFn) {
		return nil, fmt.Errorf("contract %s has no function %q", h.Name, setFn)
	}
	if !h.HasFunction(measureFn) {
		return nil, fmt.Errorf("contract %s has no function %q", h.Name, measureFn)
	}

	if err := acc.ResyncFromChain(ctx, s.client); err != nil {
		return nil, fmt.Errorf("resync account: %w", err)
	}

	logger := s.logger.With(slog.String("contract", h.Name))
	checkpoints := make([]Checkpoint, 0, maxPower)

	for k := 1; k <= maxPower; k++ {
		target := uint64(1)<<uint(k) - 1

		receipt, _, err := s.submitAndWait(ctx, h, setFn,
			[]interface{}{new(big.Int).SetUint64(target)}, acc)
		if err != nil {
			return checkpoints, fmt.Errorf("%s at k=%d: %w", setFn, k, err)
		}
		if !receipt.Succeeded() {
			return checkpoints, fmt.Errorf("%s failed at k=%d (target %d)", setFn, k, target)
		}

		// Reuse k as the call index so each measured call gets a unique leaf.
		receipt, txHash, err := s.submitAndWait(ctx, h, measureFn, args(k), acc)
		if err != nil {
			return checkpoints, fmt.Errorf("%s at k=%d: %w", measureFn, k, err)
		}
		if !receipt.Succeeded() {
			return checkpoints, fmt.Errorf("%s failed at k=%d (target %d)", measureFn, k, target)
		}

		checkpoints = append(checkpoints, Checkpoint{
			K:       k,
			Target:  target,
			GasUsed: receipt.GasUsed,
			TxHash:  txHash,
		})

		logger.Info("checkpoint measured",
			slog.Int("k", k),
			slog.Uint64("target", target),
			slog.Uint64("gas", receipt.GasUsed),
		)
	}

	return checkpoints, nil
}

// submitAndWait signs, submits and waits out a single call.
func (s *Stepper) submitAndWait(
	ctx context.Context,
	h *contract.Handle,
	fn string,
	args []interface{},
	acc *account.Account,
) (*rpc.TransactionReceipt, string, error) {
	data, err := h.Pack(fn, args...)
	if err != nil {
		return nil, "", err
	}

	nonce := acc.ReserveNonce()
	tx := txbuilder.NewCallTx(nonce.Value(), h.Address, s.gasLimit, s.gasPrice, data)
	rlp, txHash, err := txbuilder.Sign(tx, s.chainID, acc.PrivateKey)
	if err != nil {
		nonce.Rollback()
		return nil, "", fmt.Errorf("sign: %w", err)
	}

	if err := s.client.SendRawTransaction(ctx, rlp); err != nil {
		nonce.Rollback()
		return nil, "", fmt.Errorf("send: %w", err)
	}
	nonce.Commit()

	receipt, err := s.client.WaitForReceipt(ctx, txHash.Hex())
	if err != nil {
		return nil, "", fmt.Errorf("receipt: %w", err)
	}

	return receipt, txHash.Hex(), nil
}

// Checkpoints converts checkpoints to the generic result shape used by
// reporting, with k as the index.
func Checkpoints(cps []Checkpoint) []Result {
	results := make([]Result, len(cps))
	for i, cp := range cps {
		results[i] = Result{Index: cp.K, GasUsed: cp.GasUsed, TxHash: cp.TxHash}
	}
	return results
}
