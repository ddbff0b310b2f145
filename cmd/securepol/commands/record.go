package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ozgurural/SecurePoL-Watermarking/internal/application/recorder"
	"github.com/ozgurural/SecurePoL-Watermarking/internal/domain/pol"
	domainWatermark "github.com/ozgurural/SecurePoL-Watermarking/internal/domain/watermark"
	infraWatermark "github.com/ozgurural/SecurePoL-Watermarking/internal/infrastructure/watermark"
	"github.com/ozgurural/SecurePoL-Watermarking/internal/infrastructure/proofstore"
)

// Record command flags
var (
	recordOutputDir    string
	recordSeed         int64
	recordDatasetSeed  int64
	recordEpochs       int
	recordBatchSize    int
	recordSaveFreq     int
	recordLearningRate float64
	recordFeatures     int
	recordClasses      int
	recordDatasetSize  int
	recordWatermarkKey string
)

// RecordCmd trains the reference model and records a proof of learning.
var RecordCmd = &cobra.Command{
	Use:   "record",
	Short: "Train and record a proof of learning",
	Long: `Train the reference model deterministically from the given seeds and
record a proof of learning: the manifest, the reproducible initial state
and a checkpoint every k steps with the batch indices each interval
consumed.

With --watermark-key the keyed watermark is embedded into the final
checkpoint and the proof is marked accordingly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if recordOutputDir == "" {
			return fmt.Errorf("--output-dir is required")
		}

		manifest := pol.DefaultManifest()
		manifest.Seed = recordSeed
		manifest.DatasetSeed = recordDatasetSeed
		manifest.Epochs = recordEpochs
		manifest.BatchSize = recordBatchSize
		manifest.SaveFreq = recordSaveFreq
		manifest.LearningRate = recordLearningRate
		manifest.Features = recordFeatures
		manifest.Classes = recordClasses
		manifest.DatasetSize = recordDatasetSize

		config := recorder.Config{Manifest: manifest}
		if recordWatermarkKey != "" {
			config.Embed = true
			config.Watermark = domainWatermark.DefaultConfig([]byte(recordWatermarkKey))
			config.Embedder = infraWatermark.NewSignPattern()
		}
		config.Progress = func(step, total int) {
			fmt.Printf("\rRecording: step %d/%d", step, total)
			if step == total {
				fmt.Println()
			}
		}

		rec, err := recorder.New(config)
		if err != nil {
			return err
		}

		proof, err := rec.Record(cmd.Context())
		if err != nil {
			return err
		}

		if err := proofstore.Save(recordOutputDir, proof); err != nil {
			return err
		}

		fmt.Printf("Recorded proof %s: %d checkpoints over %d steps in %s\n",
			proof.ID, len(proof.Records), proof.Steps(), recordOutputDir)
		return nil
	},
}

func init() {
	RecordCmd.Flags().StringVarP(&recordOutputDir, "output-dir", "o", "", "Directory to write the proof into")
	RecordCmd.Flags().Int64Var(&recordSeed, "seed", 1, "Seed for initialization and batch order")
	RecordCmd.Flags().Int64Var(&recordDatasetSeed, "dataset-seed", 42, "Seed for the synthetic dataset")
	RecordCmd.Flags().IntVar(&recordEpochs, "epochs", 1, "Training epochs")
	RecordCmd.Flags().IntVar(&recordBatchSize, "batch-size", 128, "Batch size")
	RecordCmd.Flags().IntVarP(&recordSaveFreq, "save-freq", "k", 100, "Steps between checkpoints")
	RecordCmd.Flags().Float64Var(&recordLearningRate, "lr", 0.01, "Learning rate")
	RecordCmd.Flags().IntVar(&recordFeatures, "features", 32, "Input feature count")
	RecordCmd.Flags().IntVar(&recordClasses, "classes", 10, "Output class count")
	RecordCmd.Flags().IntVar(&recordDatasetSize, "dataset-size", 50000, "Synthetic dataset size")
	RecordCmd.Flags().StringVar(&recordWatermarkKey, "watermark-key", "", "Embed the keyed watermark into the final checkpoint")
}
