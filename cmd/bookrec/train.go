package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rushteam/bookrec/core"
)

const trainLongDesc string = `Train the cluster model from the catalog and publish it atomically.

Only catalog-listed books with category, genre and author set take part.
An empty catalog leaves any existing model untouched.`

type trainSummary struct {
	ArtifactID string    `json:"artifact_id"`
	TrainedAt  time.Time `json:"trained_at"`
	Items      int       `json:"items"`
	Clusters   int       `json:"clusters"`
	Vocabulary int       `json:"vocabulary"`
	Path       string    `json:"path"`
}

func NewTrainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Train and persist the cluster model",
		Long:  trainLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app, err := loadApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			a, err := app.Trainer.Train(ctx)
			if errors.Is(err, core.ErrEmptyCatalog) {
				fmt.Fprintln(cmd.OutOrStdout(), "no trainable items; existing model left untouched")
				return nil
			}
			if err != nil {
				return fmt.Errorf("training: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), trainSummary{
				ArtifactID: a.ID,
				TrainedAt:  a.TrainedAt,
				Items:      len(a.BookIDs),
				Clusters:   a.K(),
				Vocabulary: a.Vectorizer.Dimension(),
				Path:       app.Artifacts.Path,
			})
		},
	}
}
