package account

import (
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

// anvilAddress is the address of AnvilPrivateKey.
const anvilAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

func TestNewAccountFromHex(t *testing.T) {
	acct, err := NewAccountFromHex(AnvilPrivateKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acct.Address.Hex() != anvilAddress {
		t.Errorf("address = %s, want %s", acct.Address.Hex(), anvilAddress)
	}

	if _, err := NewAccountFromHex("not-hex"); err == nil {
		t.Error("expected error for invalid key")
	}
}

func TestReserveCommit(t *testing.T) {
	acct := newTestAccount(t)

	n1 := acct.ReserveNonce()
	n2 := acct.ReserveNonce()
	if n1.Value() != 0 || n2.Value() != 1 {
		t.Errorf("reserved %d, %d, want 0, 1", n1.Value(), n2.Value())
	}

	n1.Commit()
	n2.Commit()
	if got := acct.PeekNonce(); got != 2 {
		t.Errorf("nonce = %d after commits, want 2", got)
	}
}

func TestRollbackMostRecent(t *testing.T) {
	acct := newTestAccount(t)

	n := acct.ReserveNonce()
	n.Rollback()
	if got := acct.PeekNonce(); got != 0 {
		t.Errorf("nonce = %d after rollback, want 0", got)
	}

	// Rollback is idempotent and ignored after commit.
	n = acct.ReserveNonce()
	n.Commit()
	n.Rollback()
	if got := acct.PeekNonce(); got != 1 {
		t.Errorf("nonce = %d, want 1: rollback after commit must be a no-op", got)
	}
}

func TestRollbackOutOfOrder(t *testing.T) {
	acct := newTestAccount(t)

	n1 := acct.ReserveNonce()
	n2 := acct.ReserveNonce()

	// n1 is no longer the most recent reservation; rolling it back would
	// punch a hole in the sequence, so the counter must not move.
	n1.Rollback()
	if got := acct.PeekNonce(); got != 2 {
		t.Errorf("nonce = %d, want 2", got)
	}

	n2.Rollback()
	if got := acct.PeekNonce(); got != 1 {
		t.Errorf("nonce = %d after rolling back the latest, want 1", got)
	}
}

func TestReserveNonceConcurrent(t *testing.T) {
	acct := newTestAccount(t)

	const goroutines = 50
	var wg sync.WaitGroup
	seen := make(chan uint64, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n := acct.ReserveNonce()
			seen <- n.Value()
			n.Commit()
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[uint64]bool)
	for v := range seen {
		if unique[v] {
			t.Fatalf("nonce %d issued twice", v)
		}
		unique[v] = true
	}
	if got := acct.PeekNonce(); got != goroutines {
		t.Errorf("nonce = %d, want %d", got, goroutines)
	}
}

func TestSetNonce(t *testing.T) {
	acct := newTestAccount(t)
	acct.SetNonce(7)
	if got := acct.PeekNonce(); got != 7 {
		t.Errorf("nonce = %d, want 7", got)
	}
	n := acct.ReserveNonce()
	if n.Value() != 7 {
		t.Errorf("reserved %d, want 7", n.Value())
	}
	n.Commit()
}

func TestPoolDerivationIsDeterministic(t *testing.T) {
	chainID := big.NewInt(31337)
	gasPrice := big.NewInt(1e9)

	p1, err := NewPool(AnvilPrivateKey, 4, chainID, gasPrice, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p2, err := NewPool(AnvilPrivateKey, 4, chainID, gasPrice, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p1.Size() != 4 || p2.Size() != 4 {
		t.Fatalf("pool sizes = %d, %d, want 4", p1.Size(), p2.Size())
	}
	if p1.Base().Address.Hex() != anvilAddress {
		t.Errorf("base address = %s, want %s", p1.Base().Address.Hex(), anvilAddress)
	}

	a1, a2 := p1.Accounts(), p2.Accounts()
	for i := range a1 {
		if a1[i].Address != a2[i].Address {
			t.Errorf("account %d differs between identical pools", i)
		}
	}

	// Derived accounts must be distinct from each other and the base.
	seen := make(map[string]bool)
	for _, acct := range a1 {
		addr := acct.Address.Hex()
		if seen[addr] {
			t.Errorf("duplicate account %s", addr)
		}
		seen[addr] = true
	}
}

func TestPoolRejectsInvalidInput(t *testing.T) {
	chainID := big.NewInt(31337)
	gasPrice := big.NewInt(1e9)

	if _, err := NewPool(AnvilPrivateKey, 0, chainID, gasPrice, nil); err == nil {
		t.Error("expected error for zero pool size")
	}
	if _, err := NewPool("zz", 2, chainID, gasPrice, nil); err == nil {
		t.Error("expected error for invalid base key")
	}
}

func newTestAccount(t *testing.T) *Account {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return NewAccount(key)
}
