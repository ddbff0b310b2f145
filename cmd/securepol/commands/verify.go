// Package commands provides CLI command implementations.
package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ozgurural/SecurePoL-Watermarking/internal/application/verifier"
	"github.com/ozgurural/SecurePoL-Watermarking/internal/domain/pol"
	domainWatermark "github.com/ozgurural/SecurePoL-Watermarking/internal/domain/watermark"
	infraWatermark "github.com/ozgurural/SecurePoL-Watermarking/internal/infrastructure/watermark"
	"github.com/ozgurural/SecurePoL-Watermarking/internal/infrastructure/proofstore"
	"github.com/ozgurural/SecurePoL-Watermarking/internal/infrastructure/runstore"
)

// Verify command flags
var (
	verifyModelDir     string
	verifyMetrics      []string
	verifyBudget       int
	verifyDelta        float64
	verifyScheduleSeed int64
	verifyWorkers      int
	verifyFailFast     bool
	verifyWatermarkKey string
	verifyResults      string
	verifyRunID        string
	verifyConfigFile   string
	verifyFormat       string
)

// ErrProofInvalid signals a completed verification with a negative
// verdict; the process exits nonzero while deferred cleanup still runs.
var ErrProofInvalid = errors.New("proof of learning is invalid")

// verifyFileConfig is the optional YAML configuration for the verify
// command. Flags set explicitly on the command line take precedence.
type verifyFileConfig struct {
	ModelDir     string   `yaml:"modelDir"`
	Metrics      []string `yaml:"dist"`
	QueryBudget  int      `yaml:"q"`
	Delta        float64  `yaml:"delta"`
	ScheduleSeed int64    `yaml:"scheduleSeed"`
	Workers      int      `yaml:"workers"`
	FailFast     bool     `yaml:"failFast"`
	WatermarkKey string   `yaml:"watermarkKey"`
	Results      string   `yaml:"results"`
}

// VerifyCmd verifies a proof of learning.
var VerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a proof of learning",
	Long: `Verify a recorded proof of learning by recomputing checkpoint intervals
and comparing them against the recorded snapshots.

Modes:
  - full:     every interval is checked (q <= 0)
  - budgeted: q intervals per epoch, chosen by a seeded schedule

Watermark corroboration runs when a key is supplied; the overall verdict
is then distance-valid AND watermark-present.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if verifyConfigFile != "" {
			if err := applyVerifyConfigFile(cmd); err != nil {
				return err
			}
		}
		if verifyModelDir == "" {
			return fmt.Errorf("--model-dir is required")
		}

		proof, err := proofstore.Load(verifyModelDir)
		if err != nil {
			return err
		}

		metrics, err := parseMetrics(verifyMetrics)
		if err != nil {
			return err
		}

		config := verifier.Config{
			Metrics:      metrics,
			QueryBudget:  verifyBudget,
			Delta:        verifyDelta,
			ScheduleSeed: verifyScheduleSeed,
			Workers:      verifyWorkers,
			FailFast:     verifyFailFast,
			RunID:        verifyRunID,
		}

		if verifyWatermarkKey != "" {
			sp := infraWatermark.NewSignPattern()
			config.CheckWatermark = true
			config.Watermark = domainWatermark.DefaultConfig([]byte(verifyWatermarkKey))
			config.Detector = sp
			config.Embedder = sp
		} else if proof.Manifest.Watermarked {
			return fmt.Errorf("proof is watermarked; supply --watermark-key to verify it")
		}

		if verifyResults != "" {
			runs, err := openRunStore(cmd.Context(), verifyResults)
			if err != nil {
				return err
			}
			defer runs.Close()
			config.Runs = runs
		}

		if verifyFormat != "json" {
			config.Progress = func(done, total int) {
				fmt.Printf("\rVerifying intervals: %d/%d", done, total)
				if done == total {
					fmt.Println()
				}
			}
		}

		v := verifier.New(config)
		result, err := v.Verify(cmd.Context(), proof)
		if err != nil {
			return err
		}

		if verifyFormat == "json" {
			output, _ := json.MarshalIndent(result, "", "  ")
			fmt.Println(string(output))
		} else {
			fmt.Print(verifier.RenderText(result))
		}

		if !result.ProofValid {
			cmd.SilenceUsage = true
			return ErrProofInvalid
		}
		return nil
	},
}

// applyVerifyConfigFile loads the YAML config and fills in every flag the
// user did not set explicitly.
func applyVerifyConfigFile(cmd *cobra.Command) error {
	data, err := os.ReadFile(verifyConfigFile)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	var fc verifyFileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	flags := cmd.Flags()
	if !flags.Changed("model-dir") && fc.ModelDir != "" {
		verifyModelDir = fc.ModelDir
	}
	if !flags.Changed("dist") && len(fc.Metrics) > 0 {
		verifyMetrics = fc.Metrics
	}
	if !flags.Changed("q") {
		verifyBudget = fc.QueryBudget
	}
	if !flags.Changed("delta") {
		verifyDelta = fc.Delta
	}
	if !flags.Changed("schedule-seed") {
		verifyScheduleSeed = fc.ScheduleSeed
	}
	if !flags.Changed("workers") && fc.Workers != 0 {
		verifyWorkers = fc.Workers
	}
	if !flags.Changed("fail-fast") {
		verifyFailFast = fc.FailFast
	}
	if !flags.Changed("watermark-key") && fc.WatermarkKey != "" {
		verifyWatermarkKey = fc.WatermarkKey
	}
	if !flags.Changed("results") && fc.Results != "" {
		verifyResults = fc.Results
	}
	return nil
}

// parseMetrics resolves metric identifiers; empty means all four.
func parseMetrics(names []string) ([]pol.Metric, error) {
	if len(names) == 0 {
		return pol.AllMetrics(), nil
	}
	out := make([]pol.Metric, 0, len(names))
	for _, n := range names {
		m, err := pol.ParseMetric(n)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// openRunStore opens the results backend: "postgres" selects the Postgres
// store configured through PG* environment variables, anything else is a
// SQLite database path.
func openRunStore(ctx context.Context, target string) (runstore.Store, error) {
	if target == "postgres" {
		return runstore.NewPostgresStore(ctx, runstore.PostgresConfig{})
	}
	return runstore.NewSQLiteStore(target)
}

func init() {
	VerifyCmd.Flags().StringVarP(&verifyModelDir, "model-dir", "m", "", "Proof directory to verify")
	VerifyCmd.Flags().StringSliceVarP(&verifyMetrics, "dist", "d", nil, "Distance metrics to evaluate (1|2|inf|cos); default all")
	VerifyCmd.Flags().IntVarP(&verifyBudget, "q", "q", 0, "Query budget per epoch; <= 0 checks every interval")
	VerifyCmd.Flags().Float64Var(&verifyDelta, "delta", 0, "Additive slack on distance thresholds")
	VerifyCmd.Flags().Int64Var(&verifyScheduleSeed, "schedule-seed", 0, "Seed for the budgeted sampling schedule")
	VerifyCmd.Flags().IntVarP(&verifyWorkers, "workers", "w", 0, "Concurrent interval workers; <= 0 uses all CPUs")
	VerifyCmd.Flags().BoolVar(&verifyFailFast, "fail-fast", false, "Abort after the first invalid interval")
	VerifyCmd.Flags().StringVar(&verifyWatermarkKey, "watermark-key", "", "Secret key for watermark corroboration")
	VerifyCmd.Flags().StringVar(&verifyResults, "results", "", "Results backend: SQLite path or 'postgres'")
	VerifyCmd.Flags().StringVar(&verifyRunID, "run-id", "", "Run identifier; reuse to resume an interrupted run")
	VerifyCmd.Flags().StringVarP(&verifyConfigFile, "config", "c", "", "YAML config file")
	VerifyCmd.Flags().StringVarP(&verifyFormat, "output", "o", "text", "Output format (text|json)")
}
