package chain

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
)

// BuildContracts runs `forge build` in dir, streaming tool output to stderr.
// Contract artifacts land under dir/out and are consumed by the artifact
// loader afterwards.
func BuildContracts(ctx context.Context, logger *slog.Logger, dir string) error {
	if logger == nil {
		logger = slog.Default()
	}

	logger.InfoContext(ctx, "compiling contracts",
		slog.String("tool", "forge"),
		slog.String("dir", dir),
	)

	cmd := exec.CommandContext(ctx, "forge", "build")
	if dir != "" {
		cmd.Dir = dir
	}
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("forge build failed: %w", err)
	}

	return nil
}
