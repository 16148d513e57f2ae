package account

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/gateway-fm/gasbench/internal/rpc"
	"github.com/gateway-fm/gasbench/internal/txbuilder"
)

// FundAmountWei is what every derived account is funded with (100 ETH).
var FundAmountWei, _ = new(big.Int).SetString("100000000000000000000", 10)

// Pool is a fixed set of signing accounts. accounts[0] is the chain's
// pre-funded base account; the rest are derived deterministically from an
// index so that runs are reproducible.
type Pool struct {
	accounts []*Account
	chainID  *big.Int
	gasPrice *big.Int
	logger   *slog.Logger
}

// NewPool derives a pool of size from the base private key. Derived keys are
// keccak256("extra-<i>") — simple and reproducible, not secure, which is fine
// for a throwaway test chain.
func NewPool(baseKeyHex string, size int, chainID, gasPrice *big.Int, logger *slog.Logger) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("pool size must be at least 1, got %d", size)
	}
	if logger == nil {
		logger = slog.Default()
	}

	base, err := NewAccountFromHex(baseKeyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to load base account: %w", err)
	}

	accounts := make([]*Account, 0, size)
	accounts = append(accounts, base)

	for i := 0; i < size-1; i++ {
		seed := crypto.Keccak256([]byte(fmt.Sprintf("extra-%d", i)))
		key, err := crypto.ToECDSA(seed)
		if err != nil {
			return nil, fmt.Errorf("failed to derive key %d: %w", i, err)
		}
		accounts = append(accounts, NewAccount(key))
	}

	return &Pool{
		accounts: accounts,
		chainID:  chainID,
		gasPrice: gasPrice,
		logger:   logger,
	}, nil
}

// Accounts returns all accounts in the pool, base account first.
func (p *Pool) Accounts() []*Account {
	return p.accounts
}

// Base returns the pre-funded base account, used for deployment and funding.
func (p *Pool) Base() *Account {
	return p.accounts[0]
}

// Size returns the number of accounts in the pool.
func (p *Pool) Size() int {
	return len(p.accounts)
}

// Fund sends FundAmountWei from the base account to every derived account
// whose balance is zero, using strictly sequential base nonces, then waits
// until all funding transactions are confirmed on chain.
func (p *Pool) Fund(ctx context.Context, client rpc.Client) error {
	if len(p.accounts) == 1 {
		return nil
	}

	base := p.Base()
	if err := base.ResyncFromChain(ctx, client); err != nil {
		return fmt.Errorf("resync base account: %w", err)
	}
	startNonce := base.PeekNonce()

	sent := 0
	for i, acc := range p.accounts[1:] {
		balance, err := client.GetBalance(ctx, acc.Address.Hex())
		if err != nil {
			return fmt.Errorf("balance check for account %d: %w", i+1, err)
		}
		if balance.Sign() != 0 {
			continue // Already funded from a previous run
		}

		if err := p.fundAccount(ctx, client, base, acc); err != nil {
			return fmt.Errorf("fund account %d: %w", i+1, err)
		}
		sent++
	}

	p.logger.Info("funding transactions sent",
		slog.Int("sent", sent),
		slog.Int("pool_size", len(p.accounts)),
	)

	if sent == 0 {
		return nil
	}

	expectedNonce := startNonce + uint64(sent)
	if err := p.waitForNonceConfirmation(ctx, client, expectedNonce, 2*time.Minute); err != nil {
		return fmt.Errorf("funding confirmation: %w", err)
	}

	p.logger.Info("account funding confirmed", slog.Int("funded", sent))
	return nil
}

// fundAccount sends a single funding transfer. Reserve nonce, sign, send, commit.
func (p *Pool) fundAccount(ctx context.Context, client rpc.Client, from, to *Account) error {
	n := from.ReserveNonce()
	defer n.Rollback()

	tx := txbuilder.NewTransferTx(n.Value(), to.Address, FundAmountWei, 21000, p.gasPrice)

	data, _, err := txbuilder.Sign(tx, p.chainID, from.PrivateKey)
	if err != nil {
		return fmt.Errorf("sign: %w", err)
	}

	if err := client.SendRawTransaction(ctx, data); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	n.Commit()
	return nil
}

// waitForNonceConfirmation polls the base account's confirmed nonce until it
// reaches expectedNonce. Confirmed (latest) state is what matters here; the
// pending nonce would report the transfers as done while they still sit in
// the mempool.
func (p *Pool) waitForNonceConfirmation(ctx context.Context, client rpc.Client, expectedNonce uint64, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	pollInterval := 200 * time.Millisecond

	for time.Now().Before(deadline) {
		onChainNonce, err := client.GetConfirmedNonce(ctx, p.Base().Address.Hex())
		if err != nil {
			return fmt.Errorf("get confirmed nonce: %w", err)
		}

		if onChainNonce >= expectedNonce {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}

	return fmt.Errorf("timeout waiting for nonce %d", expectedNonce)
}
