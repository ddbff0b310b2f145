// Package main provides the CLI entry point for securepol.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ozgurural/SecurePoL-Watermarking/cmd/securepol/commands"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "securepol",
	Short: "SecurePoL - proof-of-learning verification with watermark corroboration",
	Long: `SecurePoL records, verifies and attacks proofs of learning.

It provides:
  - Deterministic training recording with checkpoint proofs
  - Interval recomputation and distance-based verification
  - Query-budgeted sampling with an adversary-blind schedule
  - Keyed watermark embedding and corroboration
  - Forgery strategies for stress-testing the verifier`,
	Version: version,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd.AddCommand(commands.RecordCmd)
	rootCmd.AddCommand(commands.VerifyCmd)
	rootCmd.AddCommand(commands.SpoofCmd)
	rootCmd.AddCommand(commands.WatermarkCmd)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
