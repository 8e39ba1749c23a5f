package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rushteam/bookrec/core"
	"github.com/rushteam/bookrec/feature"
	"github.com/rushteam/bookrec/pkg/conv"
)

type itemsResult struct {
	Status core.Status         `json:"status"`
	Reason string              `json:"reason,omitempty"`
	Cached bool                `json:"cached"`
	Items  []*core.CatalogItem `json:"items"`
}

type matchesResult struct {
	Status  core.Status  `json:"status"`
	Reason  string       `json:"reason,omitempty"`
	Cached  bool         `json:"cached"`
	Matches []core.Match `json:"matches"`
}

func NewRecommendCmd() *cobra.Command {
	var topN int
	cmd := &cobra.Command{
		Use:   "recommend <book-id>",
		Short: "Books sharing a cluster with the given book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid book id %q: %w", args[0], err)
			}
			ctx := cmd.Context()
			app, err := loadApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			items, outcome := app.Service.RecommendByItem(ctx, id, topN)
			return printJSON(cmd.OutOrStdout(), itemsResult{
				Status: outcome.Status,
				Reason: outcome.Reason,
				Cached: outcome.Cached,
				Items:  items,
			})
		},
	}
	cmd.Flags().IntVarP(&topN, "top", "k", core.DefaultTopN, "Number of results to return")
	return cmd
}

const similarLongDesc string = `Find books whose cover images look like the query image.

The query is a URL (http/https) or a local file path. Use --vector-file to
query with a precomputed vector (a JSON array) instead of an image.
Entries at or below the similarity threshold are never returned.

Example:
  bookrec similar https://example.com/cover.jpg
  bookrec similar ./cover.png --top 10
  bookrec similar --vector-file query.json`

func NewSimilarCmd() *cobra.Command {
	var (
		topN       int
		vectorFile string
	)
	cmd := &cobra.Command{
		Use:   "similar [image]",
		Short: "Books whose covers look like the query image",
		Long:  similarLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 0) == (vectorFile == "") {
				return fmt.Errorf("provide exactly one of an image argument or --vector-file")
			}
			ctx := cmd.Context()
			app, err := loadApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			var (
				matches []core.Match
				outcome core.Outcome
			)
			if vectorFile != "" {
				data, err := os.ReadFile(vectorFile)
				if err != nil {
					return fmt.Errorf("reading vector: %w", err)
				}
				vec, err := conv.ParseVectorJSON(data)
				if err != nil {
					return fmt.Errorf("parsing vector: %w", err)
				}
				matches, outcome = app.Service.RecommendByVector(ctx, vec, topN)
			} else {
				matches, outcome = app.Service.RecommendByVisualQuery(ctx, feature.SourceFromRef(args[0]), topN)
			}
			return printJSON(cmd.OutOrStdout(), matchesResult{
				Status:  outcome.Status,
				Reason:  outcome.Reason,
				Cached:  outcome.Cached,
				Matches: matches,
			})
		},
	}
	cmd.Flags().IntVarP(&topN, "top", "k", core.DefaultTopN, "Number of results to return")
	cmd.Flags().StringVar(&vectorFile, "vector-file", "", "Query with a JSON vector file instead of an image")
	return cmd
}
