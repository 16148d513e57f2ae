package bench

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/gateway-fm/gasbench/internal/contract"
	"github.com/gateway-fm/gasbench/internal/rpc"
)

const depositABI = `[
	{"type":"function","name":"deposit","stateMutability":"nonpayable",
	 "inputs":[{"name":"leaf","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"setDepositCount","stateMutability":"nonpayable",
	 "inputs":[{"name":"count","type":"uint256"}],"outputs":[]}
]`

func gasPrice() *big.Int {
	return big.NewInt(1_000_000_000)
}

func testHandle(t *testing.T) *contract.Handle {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(depositABI))
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	return &contract.Handle{
		Name:    "DepositContract",
		Address: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		ABI:     parsed,
	}
}

// sentTx is one transaction the mock chain accepted, decoded back from its
// signed RLP encoding.
type sentTx struct {
	From  common.Address
	Nonce uint64
	To    common.Address
	Data  []byte
	Hash  common.Hash
}

// mockChain implements rpc.Client as an instantly-mining chain: every
// accepted transaction gets a receipt immediately and bumps the sender's
// confirmed nonce. Nonce gaps are rejected the way a real node would.
type mockChain struct {
	mu       sync.Mutex
	chainID  *big.Int
	nonces   map[common.Address]uint64
	sent     []sentTx
	receipts map[string]*rpc.TransactionReceipt

	baseGas uint64
	// failHashAt marks the i-th accepted transaction (0-based) to mine with
	// failure status.
	failAt map[int]bool
	// sendErrAt rejects the i-th submission outright.
	sendErrAt map[int]bool
}

var _ rpc.Client = (*mockChain)(nil)

func newMockChain() *mockChain {
	return &mockChain{
		chainID:  big.NewInt(31337),
		nonces:   make(map[common.Address]uint64),
		receipts: make(map[string]*rpc.TransactionReceipt),
		baseGas:  50_000,
	}
}

func (m *mockChain) SendRawTransaction(_ context.Context, txRLP []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seq := len(m.sent)
	if m.sendErrAt[seq] {
		return fmt.Errorf("mock send rejected")
	}

	tx := new(ethtypes.Transaction)
	if err := tx.UnmarshalBinary(txRLP); err != nil {
		return fmt.Errorf("decode tx: %w", err)
	}

	signer := ethtypes.LatestSignerForChainID(m.chainID)
	from, err := ethtypes.Sender(signer, tx)
	if err != nil {
		return fmt.Errorf("recover sender: %w", err)
	}

	if tx.Nonce() != m.nonces[from] {
		return fmt.Errorf("invalid nonce %d for %s, want %d", tx.Nonce(), from.Hex(), m.nonces[from])
	}
	m.nonces[from]++

	var to common.Address
	if tx.To() != nil {
		to = *tx.To()
	}
	m.sent = append(m.sent, sentTx{
		From:  from,
		Nonce: tx.Nonce(),
		To:    to,
		Data:  tx.Data(),
		Hash:  tx.Hash(),
	})

	status := uint64(1)
	if m.failAt[seq] {
		status = 0
	}
	m.receipts[tx.Hash().Hex()] = &rpc.TransactionReceipt{
		Status:  status,
		GasUsed: m.baseGas + uint64(seq),
	}
	return nil
}

func (m *mockChain) GetTransactionReceipt(_ context.Context, txHash string) (*rpc.TransactionReceipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.receipts[txHash], nil
}

func (m *mockChain) WaitForReceipt(ctx context.Context, txHash string) (*rpc.TransactionReceipt, error) {
	receipt, _ := m.GetTransactionReceipt(ctx, txHash)
	if receipt == nil {
		return nil, fmt.Errorf("unknown transaction %s", txHash)
	}
	return receipt, nil
}

func (m *mockChain) GetNonce(_ context.Context, address string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nonces[common.HexToAddress(address)], nil
}

func (m *mockChain) GetConfirmedNonce(ctx context.Context, address string) (uint64, error) {
	return m.GetNonce(ctx, address)
}

func (m *mockChain) GetChainID(_ context.Context) (*big.Int, error) {
	return m.chainID, nil
}

func (m *mockChain) GetBlockNumber(_ context.Context) (uint64, error) { return 1, nil }

func (m *mockChain) GetGasPrice(_ context.Context) (uint64, error) { return 1_000_000_000, nil }

func (m *mockChain) GetBalance(_ context.Context, _ string) (*big.Int, error) {
	return big.NewInt(1e18), nil
}

func (m *mockChain) GetCode(_ context.Context, _ string) (string, error) { return "0x", nil }

func (m *mockChain) Call(_ context.Context, _ string, _ []interface{}) (json.RawMessage, error) {
	return nil, nil
}

func (m *mockChain) sentTxs() []sentTx {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sentTx, len(m.sent))
	copy(out, m.sent)
	return out
}
