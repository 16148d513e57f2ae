// Package chain manages the local test-chain subprocess and the contract
// build step that must run before any benchmark logic.
package chain

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/exec"
	"strconv"
	"syscall"
	"time"
)

// NodeConfig describes how to launch the local chain.
type NodeConfig struct {
	Command      string        // Binary to run (default "anvil")
	RPCURL       string        // HTTP endpoint the node is expected to bind
	BlockTime    int           // Seconds between blocks (0 = instamine)
	StartTimeout time.Duration // How long to wait for the RPC to answer
	StopGrace    time.Duration // How long to wait after SIGTERM before SIGKILL
	Logger       *slog.Logger
}

// DefaultNodeConfig returns the standard Anvil configuration.
func DefaultNodeConfig(rpcURL string, blockTime int) NodeConfig {
	return NodeConfig{
		Command:      "anvil",
		RPCURL:       rpcURL,
		BlockTime:    blockTime,
		StartTimeout: 10 * time.Second,
		StopGrace:    3 * time.Second,
		Logger:       slog.Default(),
	}
}

// Node is a running local chain subprocess.
type Node struct {
	cmd       *exec.Cmd
	stopGrace time.Duration
	logger    *slog.Logger
}

// Start launches the chain process and blocks until its RPC endpoint answers
// eth_chainId, or fails. On failure the process is already terminated.
func Start(ctx context.Context, cfg NodeConfig) (*Node, error) {
	command := cfg.Command
	if command == "" {
		command = "anvil"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	args := []string{"--silent"}
	if cfg.BlockTime > 0 {
		args = append(args, "--block-time", strconv.Itoa(cfg.BlockTime))
	}

	cmd := exec.Command(command, args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	logger.Info("starting local chain",
		slog.String("command", command),
		slog.Int("block_time", cfg.BlockTime),
	)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", command, err)
	}

	node := &Node{
		cmd:       cmd,
		stopGrace: cfg.StopGrace,
		logger:    logger.With(slog.String("command", command)),
	}

	if err := waitForRPC(ctx, cfg.RPCURL, cfg.StartTimeout); err != nil {
		node.Stop()
		return nil, fmt.Errorf("chain did not bind %s: %w", cfg.RPCURL, err)
	}

	logger.Info("local chain ready", slog.String("rpc", cfg.RPCURL))
	return node, nil
}

// Stop terminates the chain process: SIGTERM, then SIGKILL after the grace
// period. Safe to call after the process has already exited.
func (n *Node) Stop() {
	if n == nil || n.cmd == nil || n.cmd.Process == nil {
		return
	}

	n.logger.Info("stopping local chain")

	if err := n.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Process already gone
		return
	}

	done := make(chan error, 1)
	go func() { done <- n.cmd.Wait() }()

	grace := n.stopGrace
	if grace <= 0 {
		grace = 3 * time.Second
	}

	select {
	case <-done:
	case <-time.After(grace):
		n.logger.Warn("chain did not exit, killing")
		_ = n.cmd.Process.Kill()
		<-done
	}
}

// waitForRPC polls the endpoint with eth_chainId until it answers.
var chainIDProbe = []byte(`{"jsonrpc":"2.0","method":"eth_chainId","params":[],"id":1}`)

func waitForRPC(ctx context.Context, url string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: 500 * time.Millisecond}

	for time.Now().Before(deadline) {
		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(chainIDProbe))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}

	return fmt.Errorf("no response within %s", timeout)
}
