package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/esg/internal/scoring"
)

const defaultModelPath = "models/esg_model.json"

type predictOutput struct {
	Model             string  `json:"model"`
	PredictedESGScore float64 `json:"predicted_esg_score"`
}

// newPredictCmd scores one set of component values without touching the
// database, so it only reads MODEL_PATH rather than the full config.
func newPredictCmd() *cobra.Command {
	var (
		modelPath string
		features  scoring.Features
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict an overall ESG score from component scores",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			score, err := scoring.NewProvider(modelPath).Predict(features)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), predictOutput{
				Model:             modelPath,
				PredictedESGScore: score,
			})
		},
	}

	if p, ok := os.LookupEnv("MODEL_PATH"); ok && p != "" {
		modelPath = p
	} else {
		modelPath = defaultModelPath
	}

	cmd.Flags().StringVar(&modelPath, "model", modelPath, "Path to the scoring model JSON")
	cmd.Flags().Float64Var(&features[0], "sentiment", 0, "Sentiment score (required)")
	cmd.Flags().Float64Var(&features[1], "environmental", 0, "Environmental score (required)")
	cmd.Flags().Float64Var(&features[2], "social", 0, "Social score (required)")
	cmd.Flags().Float64Var(&features[3], "governance", 0, "Governance score (required)")
	for _, name := range []string{"sentiment", "environmental", "social", "governance"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}
