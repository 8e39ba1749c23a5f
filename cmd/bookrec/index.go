package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rushteam/bookrec/core"
)

func NewIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Rebuild the visual index and print its summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app, err := loadApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			idx, err := app.Service.RebuildIndex(ctx)
			if err != nil {
				return fmt.Errorf("building index: %w", err)
			}
			counts := map[core.Kind]int{}
			dim := 0
			for _, e := range idx.Entries {
				counts[e.Kind]++
				dim = len(e.Vector)
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"entries":    idx.Len(),
				"books":      counts[core.KindCatalog],
				"user_books": counts[core.KindPeer],
				"dimension":  dim,
				"built_at":   idx.BuiltAt,
			})
		},
	}
}
