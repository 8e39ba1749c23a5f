package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

const precomputeLongDesc string = `Extract cover-image vectors for every item that has an image but no vector yet,
and write them back to the catalog. Existing vectors are never overwritten:
rows whose stored value cannot be parsed are re-extracted but reported as skipped.
Per-item failures are counted and reported; they do not stop the run.`

func NewPrecomputeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "precompute",
		Short: "Extract and store missing cover-image vectors",
		Long:  precomputeLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app, err := loadApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			report, err := app.Precomputer.Run(ctx)
			if err != nil {
				return fmt.Errorf("precomputing features: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"candidates": report.Candidates,
				"written":    report.Written,
				"skipped":    report.Skipped,
				"failed":     report.Failed,
				"took":       report.Took.String(),
			})
		},
	}
}
