package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	domainWatermark "github.com/ozgurural/SecurePoL-Watermarking/internal/domain/watermark"
	infraWatermark "github.com/ozgurural/SecurePoL-Watermarking/internal/infrastructure/watermark"
	"github.com/ozgurural/SecurePoL-Watermarking/internal/infrastructure/proofstore"
)

// Watermark command flags
var (
	watermarkModelDir    string
	watermarkKey         string
	watermarkCoordinates int
	watermarkEpsilon     float64
	watermarkJSON        bool
)

// WatermarkCmd is the parent command for watermark operations.
var WatermarkCmd = &cobra.Command{
	Use:   "watermark",
	Short: "Detect the keyed watermark in a recorded proof",
	Long: `Commands for the keyed sign-pattern watermark.

Embedding happens during recording (see 'record --watermark-key');
detection evaluates the final checkpoint of a recorded proof against
the key and reports a confidence and verdict.`,
}

// watermarkDetectCmd evaluates the watermark on a proof's final checkpoint.
var watermarkDetectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect the watermark in a proof's final checkpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		if watermarkModelDir == "" || watermarkKey == "" {
			return fmt.Errorf("--model-dir and --key are required")
		}

		proof, err := proofstore.Load(watermarkModelDir)
		if err != nil {
			return err
		}
		final := proof.Records[len(proof.Records)-1].Params

		config := domainWatermark.DefaultConfig([]byte(watermarkKey))
		if watermarkCoordinates > 0 {
			config.Coordinates = watermarkCoordinates
		}
		if watermarkEpsilon > 0 {
			config.Epsilon = watermarkEpsilon
		}

		detection, err := infraWatermark.NewSignPattern().Detect(final, config)
		if err != nil {
			return err
		}

		if watermarkJSON {
			output, _ := json.MarshalIndent(detection, "", "  ")
			fmt.Println(string(output))
			return nil
		}
		fmt.Printf("Watermark: %s (confidence %.3f)\n", detection.Verdict, detection.Confidence)
		return nil
	},
}

func init() {
	watermarkDetectCmd.Flags().StringVarP(&watermarkModelDir, "model-dir", "m", "", "Proof directory")
	watermarkDetectCmd.Flags().StringVar(&watermarkKey, "key", "", "Secret watermark key")
	watermarkDetectCmd.Flags().IntVar(&watermarkCoordinates, "coordinates", 0, "Watermark coordinate count (default 64)")
	watermarkDetectCmd.Flags().Float64Var(&watermarkEpsilon, "epsilon", 0, "Embedding magnitude (default 0.05)")
	watermarkDetectCmd.Flags().BoolVar(&watermarkJSON, "json", false, "JSON output")

	WatermarkCmd.AddCommand(watermarkDetectCmd)
}
