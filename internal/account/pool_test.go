package account

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/gateway-fm/gasbench/internal/rpc"
)

// fundClient is an instantly-mining chain stub for funding flows.
type fundClient struct {
	mu        sync.Mutex
	chainID   *big.Int
	balances  map[common.Address]*big.Int
	confirmed map[common.Address]uint64
	transfers []struct {
		From, To common.Address
		Value    *big.Int
	}
}

var _ rpc.Client = (*fundClient)(nil)

func newFundClient() *fundClient {
	return &fundClient{
		chainID:   big.NewInt(31337),
		balances:  make(map[common.Address]*big.Int),
		confirmed: make(map[common.Address]uint64),
	}
}

func (c *fundClient) SendRawTransaction(_ context.Context, txRLP []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx := new(ethtypes.Transaction)
	if err := tx.UnmarshalBinary(txRLP); err != nil {
		return err
	}
	from, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(c.chainID), tx)
	if err != nil {
		return err
	}
	if tx.Nonce() != c.confirmed[from] {
		return fmt.Errorf("invalid nonce %d, want %d", tx.Nonce(), c.confirmed[from])
	}
	c.confirmed[from]++

	to := *tx.To()
	if c.balances[to] == nil {
		c.balances[to] = new(big.Int)
	}
	c.balances[to] = new(big.Int).Add(c.balances[to], tx.Value())

	c.transfers = append(c.transfers, struct {
		From, To common.Address
		Value    *big.Int
	}{from, to, tx.Value()})
	return nil
}

func (c *fundClient) GetBalance(_ context.Context, address string) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b := c.balances[common.HexToAddress(address)]; b != nil {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (c *fundClient) GetConfirmedNonce(_ context.Context, address string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.confirmed[common.HexToAddress(address)], nil
}

func (c *fundClient) GetNonce(ctx context.Context, address string) (uint64, error) {
	return c.GetConfirmedNonce(ctx, address)
}

func (c *fundClient) GetChainID(context.Context) (*big.Int, error) { return c.chainID, nil }

func (c *fundClient) GetBlockNumber(context.Context) (uint64, error) { return 1, nil }

func (c *fundClient) GetGasPrice(context.Context) (uint64, error) { return 1e9, nil }

func (c *fundClient) GetCode(context.Context, string) (string, error) { return "0x", nil }

func (c *fundClient) GetTransactionReceipt(context.Context, string) (*rpc.TransactionReceipt, error) {
	return &rpc.TransactionReceipt{Status: 1, GasUsed: 21000}, nil
}

func (c *fundClient) WaitForReceipt(ctx context.Context, txHash string) (*rpc.TransactionReceipt, error) {
	return c.GetTransactionReceipt(ctx, txHash)
}

func (c *fundClient) Call(context.Context, string, []interface{}) (json.RawMessage, error) {
	return nil, nil
}

func TestPoolFund(t *testing.T) {
	client := newFundClient()
	pool, err := NewPool(AnvilPrivateKey, 4, client.chainID, big.NewInt(1e9), nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := pool.Fund(context.Background(), client); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(client.transfers) != 3 {
		t.Fatalf("sent %d transfers, want 3", len(client.transfers))
	}

	base := pool.Base().Address
	for i, tr := range client.transfers {
		if tr.From != base {
			t.Errorf("transfer %d from %s, want base", i, tr.From.Hex())
		}
		if tr.To != pool.Accounts()[i+1].Address {
			t.Errorf("transfer %d to %s, want account %d", i, tr.To.Hex(), i+1)
		}
		if tr.Value.Cmp(FundAmountWei) != 0 {
			t.Errorf("transfer %d value = %s, want %s", i, tr.Value, FundAmountWei)
		}
	}

	// Every derived account now holds the funding amount.
	for _, acct := range pool.Accounts()[1:] {
		balance, _ := client.GetBalance(context.Background(), acct.Address.Hex())
		if balance.Cmp(FundAmountWei) != 0 {
			t.Errorf("account %s balance = %s", acct.Address.Hex(), balance)
		}
	}
}

func TestPoolFundSkipsFundedAccounts(t *testing.T) {
	client := newFundClient()
	pool, err := NewPool(AnvilPrivateKey, 3, client.chainID, big.NewInt(1e9), nil)
	if err != nil {
		t.Fatal(err)
	}

	// First derived account already holds funds from a previous run.
	client.balances[pool.Accounts()[1].Address] = big.NewInt(1)

	if err := pool.Fund(context.Background(), client); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(client.transfers) != 1 {
		t.Errorf("sent %d transfers, want 1", len(client.transfers))
	}
	if client.transfers[0].To != pool.Accounts()[2].Address {
		t.Error("transfer must target the unfunded account")
	}
}

func TestPoolFundSingleAccount(t *testing.T) {
	client := newFundClient()
	pool, err := NewPool(AnvilPrivateKey, 1, client.chainID, big.NewInt(1e9), nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := pool.Fund(context.Background(), client); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(client.transfers) != 0 {
		t.Errorf("sent %d transfers, want 0", len(client.transfers))
	}
}
