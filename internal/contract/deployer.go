package contract

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/gateway-fm/gasbench/internal/account"
	"github.com/gateway-fm/gasbench/internal/artifact"
	"github.com/gateway-fm/gasbench/internal/rpc"
	"github.com/gateway-fm/gasbench/internal/txbuilder"
)

// deployGasLimit is generous on purpose: deployment cost is not what this
// tool measures.
const deployGasLimit = 5_000_000

// Deployer submits contract creation transactions and waits for them to mine.
type Deployer struct {
	client   rpc.Client
	chainID  *big.Int
	gasPrice *big.Int
	logger   *slog.Logger
}

// NewDeployer creates a new contract deployer.
func NewDeployer(client rpc.Client, chainID, gasPrice *big.Int, logger *slog.Logger) *Deployer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deployer{
		client:   client,
		chainID:  chainID,
		gasPrice: gasPrice,
		logger:   logger,
	}
}

// Deploy deploys the artifact from the given account and returns a callable
// handle. It blocks until the creation transaction is mined and fails on a
// non-success receipt.
func (d *Deployer) Deploy(ctx context.Context, deployer *account.Account, name string, art *artifact.Artifact) (*Handle, error) {
	// Fetch a fresh nonce per deployment; deployments are sequential and
	// anchoring to chain state here avoids drift from earlier funding traffic.
	nonce, err := d.client.GetNonce(ctx, deployer.Address.Hex())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch nonce for %s: %w", name, err)
	}
	deployer.SetNonce(nonce + 1)

	tx := txbuilder.NewDeployTx(nonce, deployGasLimit, d.gasPrice, art.Bytecode)
	rlp, txHash, err := txbuilder.Sign(tx, d.chainID, deployer.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign %s deployment: %w", name, err)
	}

	d.logger.Info("deploying contract",
		slog.String("name", name),
		slog.String("tx", txHash.Hex()),
	)

	if err := d.client.SendRawTransaction(ctx, rlp); err != nil {
		return nil, fmt.Errorf("failed to send %s deployment: %w", name, err)
	}

	receipt, err := d.client.WaitForReceipt(ctx, txHash.Hex())
	if err != nil {
		return nil, fmt.Errorf("failed waiting for %s deployment: %w", name, err)
	}
	if !receipt.Succeeded() {
		return nil, fmt.Errorf("%s deployment reverted (tx %s)", name, txHash.Hex())
	}

	addr := common.HexToAddress(receipt.ContractAddress)
	if addr == (common.Address{}) {
		// Some nodes omit contractAddress on the receipt; derive it.
		addr = crypto.CreateAddress(deployer.Address, nonce)
	}

	d.logger.Info("contract deployed",
		slog.String("name", name),
		slog.String("address", addr.Hex()),
		slog.Uint64("gas", receipt.GasUsed),
	)

	return &Handle{
		Name:    name,
		Address: addr,
		ABI:     art.ABI,
	}, nil
}
