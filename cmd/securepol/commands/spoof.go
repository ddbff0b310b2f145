package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ozgurural/SecurePoL-Watermarking/internal/application/forger"
	"github.com/ozgurural/SecurePoL-Watermarking/internal/application/verifier"
	"github.com/ozgurural/SecurePoL-Watermarking/internal/domain/spoof"
	"github.com/ozgurural/SecurePoL-Watermarking/internal/infrastructure/proofstore"
)

// Spoof command flags
var (
	spoofTargetDir string
	spoofOutputDir string
	spoofStrategy  string
	spoofSteps     int
	spoofCut       float64
	spoofSeed      int64
	spoofVerify    bool
)

// SpoofCmd forges a proof of learning against a recorded target.
var SpoofCmd = &cobra.Command{
	Use:   "spoof",
	Short: "Forge a proof of learning against a recorded target",
	Long: `Forge a proof of learning that claims to have trained the target
proof's final model, without performing the equivalent computation.

Strategies:
  - interpolation: checkpoints on the line from a fresh init to the target
  - refinement:    T genuine fine-tuning steps spread over the trajectory
  - hybrid:        interpolation then refinement, limited by --cut

The forged proof is structurally well-formed; run it through 'verify'
to measure which checks reject it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if spoofTargetDir == "" || spoofOutputDir == "" {
			return fmt.Errorf("--target-dir and --output-dir are required")
		}

		strategy, err := spoof.ParseStrategy(spoofStrategy)
		if err != nil {
			return err
		}

		target, err := proofstore.Load(spoofTargetDir)
		if err != nil {
			return err
		}

		manifest := target.Manifest
		manifest.ProofID = ""
		manifest.Seed = spoofSeed
		manifest.Watermarked = false
		stolen := target.Records[len(target.Records)-1].Params

		f, err := forger.New(forger.Config{
			Strategy:    strategy,
			SpoofSteps:  spoofSteps,
			CutFraction: spoofCut,
			Manifest:    manifest,
			Target:      stolen,
		})
		if err != nil {
			return err
		}

		attempt, err := f.Forge(cmd.Context())
		if err != nil {
			return err
		}

		if err := proofstore.Save(spoofOutputDir, attempt.Proof); err != nil {
			return err
		}

		summary, _ := json.MarshalIndent(struct {
			ID          string  `json:"id"`
			Strategy    string  `json:"strategy"`
			SpoofSteps  int     `json:"spoofSteps"`
			CutFraction float64 `json:"cutFraction"`
			Checkpoints int     `json:"checkpoints"`
			ElapsedMS   int64   `json:"elapsedMs"`
		}{
			ID:          attempt.ID,
			Strategy:    string(attempt.Strategy),
			SpoofSteps:  attempt.SpoofSteps,
			CutFraction: attempt.CutFraction,
			Checkpoints: len(attempt.Proof.Records),
			ElapsedMS:   attempt.Elapsed.Milliseconds(),
		}, "", "  ")
		fmt.Println(string(summary))

		if spoofVerify {
			v := verifier.New(verifier.DefaultConfig())
			result, err := v.Verify(cmd.Context(), attempt.Proof)
			if err != nil {
				return err
			}
			fmt.Print(verifier.RenderText(result))
		}
		return nil
	},
}

func init() {
	SpoofCmd.Flags().StringVar(&spoofTargetDir, "target-dir", "", "Directory of the proof whose final model is stolen")
	SpoofCmd.Flags().StringVarP(&spoofOutputDir, "output-dir", "o", "", "Directory to write the forged proof into")
	SpoofCmd.Flags().StringVarP(&spoofStrategy, "strategy", "s", "interpolation", "Forgery strategy (interpolation|refinement|hybrid)")
	SpoofCmd.Flags().IntVarP(&spoofSteps, "t", "t", 50, "Spoof steps T: genuine fine-tuning steps to spend")
	SpoofCmd.Flags().Float64Var(&spoofCut, "cut", 0.5, "Resource-cut fraction for the hybrid strategy")
	SpoofCmd.Flags().Int64Var(&spoofSeed, "seed", 7, "Forger's claimed initialization seed")
	SpoofCmd.Flags().BoolVar(&spoofVerify, "verify", false, "Run full verification against the forged proof")
}
