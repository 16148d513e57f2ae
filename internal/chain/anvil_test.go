package chain

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestWaitForRPC(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Answer only after a couple of probes, like a node still booting.
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x7a69"}`))
	}))
	defer srv.Close()

	if err := waitForRPC(context.Background(), srv.URL, 5*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := calls.Load(); got < 3 {
		t.Errorf("probed %d times, want at least 3", got)
	}
}

func TestWaitForRPCTimeout(t *testing.T) {
	// Nothing listening here.
	err := waitForRPC(context.Background(), "http://127.0.0.1:1", 300*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestWaitForRPCHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := waitForRPC(ctx, "http://127.0.0.1:1", 5*time.Second)
	if err == nil {
		t.Fatal("expected context error")
	}
}

func TestDefaultNodeConfig(t *testing.T) {
	cfg := DefaultNodeConfig("http://127.0.0.1:8545", 2)
	if cfg.Command != "anvil" {
		t.Errorf("command = %q", cfg.Command)
	}
	if cfg.BlockTime != 2 {
		t.Errorf("block time = %d", cfg.BlockTime)
	}
	if cfg.StartTimeout <= 0 || cfg.StopGrace <= 0 {
		t.Error("timeouts must be positive")
	}
}

func TestStopNilNode(t *testing.T) {
	// Stop must be safe on a node that never started.
	var n *Node
	n.Stop()
	(&Node{}).Stop()
}
