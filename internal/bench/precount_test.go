package bench

import (
	"bytes"
	"context"
	"math/big"
	"testing"
)

func TestStepperSequence(t *testing.T) {
	chain := newMockChain()
	h := testHandle(t)
	acct := testAccounts(t, 1)[0]

	s := NewStepper(StepperConfig{
		Client:   chain,
		ChainID:  chain.chainID,
		GasPrice: gasPrice(),
	})

	const maxPower = 4
	checkpoints, err := s.Run(context.Background(), h, "setDepositCount", "deposit", LeafArgs(), acct, maxPower)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(checkpoints) != maxPower {
		t.Fatalf("got %d checkpoints, want %d", len(checkpoints), maxPower)
	}

	sent := chain.sentTxs()
	// Two transactions per step: setDepositCount then deposit.
	if len(sent) != 2*maxPower {
		t.Fatalf("chain accepted %d txs, want %d", len(sent), 2*maxPower)
	}

	for i, cp := range checkpoints {
		k := i + 1
		wantTarget := uint64(1)<<uint(k) - 1

		if cp.K != k {
			t.Errorf("checkpoint %d has k=%d, want %d", i, cp.K, k)
		}
		if cp.Target != wantTarget {
			t.Errorf("k=%d target = %d, want %d", k, cp.Target, wantTarget)
		}

		setTx := sent[2*i]
		measureTx := sent[2*i+1]

		wantSet, err := h.Pack("setDepositCount", new(big.Int).SetUint64(wantTarget))
		if err != nil {
			t.Fatalf("pack setDepositCount: %v", err)
		}
		if !bytes.Equal(setTx.Data, wantSet) {
			t.Errorf("k=%d setDepositCount calldata mismatch", k)
		}

		wantMeasure, err := h.Pack("deposit", LeafArgs()(k)...)
		if err != nil {
			t.Fatalf("pack deposit: %v", err)
		}
		if !bytes.Equal(measureTx.Data, wantMeasure) {
			t.Errorf("k=%d deposit calldata mismatch", k)
		}

		// Gas and hash come from the measured deposit, never the setter.
		if cp.GasUsed != chain.baseGas+uint64(2*i+1) {
			t.Errorf("k=%d gas = %d, want %d", k, cp.GasUsed, chain.baseGas+uint64(2*i+1))
		}
		if cp.TxHash != measureTx.Hash.Hex() {
			t.Errorf("k=%d tx hash is not the deposit tx", k)
		}
	}

	// Single account, strictly sequential nonces.
	for i, tx := range sent {
		if tx.Nonce != uint64(i) {
			t.Errorf("tx %d nonce = %d, want %d", i, tx.Nonce, i)
		}
	}
}

func TestStepperAbortsOnSetterFailure(t *testing.T) {
	chain := newMockChain()
	// Steps submit (set, deposit) pairs, so tx 4 is the k=3 setter.
	chain.failAt = map[int]bool{4: true}
	h := testHandle(t)
	acct := testAccounts(t, 1)[0]

	s := NewStepper(StepperConfig{
		Client:   chain,
		ChainID:  chain.chainID,
		GasPrice: gasPrice(),
	})

	checkpoints, err := s.Run(context.Background(), h, "setDepositCount", "deposit", LeafArgs(), acct, 5)
	if err == nil {
		t.Fatal("expected error from failed setter")
	}
	if len(checkpoints) != 2 {
		t.Errorf("got %d checkpoints before failure, want 2", len(checkpoints))
	}
}

func TestStepperAbortsOnMeasureFailure(t *testing.T) {
	chain := newMockChain()
	// Tx 3 is the k=2 deposit.
	chain.failAt = map[int]bool{3: true}
	h := testHandle(t)
	acct := testAccounts(t, 1)[0]

	s := NewStepper(StepperConfig{
		Client:   chain,
		ChainID:  chain.chainID,
		GasPrice: gasPrice(),
	})

	checkpoints, err := s.Run(context.Background(), h, "setDepositCount", "deposit", LeafArgs(), acct, 5)
	if err == nil {
		t.Fatal("expected error from failed deposit")
	}
	if len(checkpoints) != 1 {
		t.Errorf("got %d checkpoints before failure, want 1", len(checkpoints))
	}
}

func TestStepperValidation(t *testing.T) {
	chain := newMockChain()
	h := testHandle(t)
	acct := testAccounts(t, 1)[0]

	s := NewStepper(StepperConfig{
		Client:   chain,
		ChainID:  chain.chainID,
		GasPrice: gasPrice(),
	})

	if _, err := s.Run(context.Background(), h, "setDepositCount", "deposit", LeafArgs(), acct, 0); err == nil {
		t.Error("expected error for zero max power")
	}
	if _, err := s.Run(context.Background(), h, "reset", "deposit", LeafArgs(), acct, 1); err == nil {
		t.Error("expected error for unknown setter")
	}
	if _, err := s.Run(context.Background(), h, "setDepositCount", "withdraw", LeafArgs(), acct, 1); err == nil {
		t.Error("expected error for unknown measured function")
	}
}

func TestCheckpointsConversion(t *testing.T) {
	cps := []Checkpoint{
		{K: 1, Target: 1, GasUsed: 100, TxHash: "0xa"},
		{K: 2, Target: 3, GasUsed: 200, TxHash: "0xb"},
	}
	results := Checkpoints(cps)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Index != 1 || results[1].Index != 2 {
		t.Error("checkpoint k must become the result index")
	}
	if results[1].GasUsed != 200 || results[1].TxHash != "0xb" {
		t.Error("gas and tx hash must carry over")
	}
}
