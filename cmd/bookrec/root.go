package main

import (
	"context"
	"fmt"
	"io"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/rushteam/bookrec/config"
	"github.com/rushteam/bookrec/pkg/logging"
)

const bookrecLongDesc string = `bookrec recommends books by textual attributes and cover-image similarity.

Maintenance:
  bookrec train         Train and persist the cluster model
  bookrec precompute    Extract and store missing cover-image vectors
  bookrec index         Rebuild the visual index and print its summary

Queries:
  bookrec recommend <id>        Books sharing a cluster with <id>
  bookrec similar <image>       Books whose covers look like <image> (URL or path)`

const bookrecShortDesc string = "bookrec - content-based book recommendations"

// NewBookrecCmd 根命令
func NewBookrecCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "bookrec",
		Short:         bookrecShortDesc,
		Long:          bookrecLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringP("config", "c", "", "Path to the YAML config file (defaults apply when empty)")
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")

	cmd.AddCommand(
		NewTrainCmd(),
		NewPrecomputeCmd(),
		NewIndexCmd(),
		NewRecommendCmd(),
		NewSimilarCmd(),
	)
	return cmd
}

// loadApp 读取全局 flag，加载配置并装配组件。
func loadApp(ctx context.Context, cmd *cobra.Command) (*config.App, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("could not get config flag: %w", err)
	}
	debug, err := cmd.Flags().GetBool("debug")
	if err != nil {
		return nil, fmt.Errorf("could not get debug flag: %w", err)
	}

	cfg := config.Default()
	if path != "" {
		if cfg, err = config.Load(path); err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
	}
	if debug {
		cfg.Log.Level = "debug"
	}
	cfg.Log.Output = cmd.ErrOrStderr()

	app, err := config.Build(ctx, cfg, logging.New(cfg.Log))
	if err != nil {
		return nil, fmt.Errorf("building components: %w", err)
	}
	return app, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
