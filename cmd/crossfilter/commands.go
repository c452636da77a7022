package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"crossfilter/internal/blob"
	"crossfilter/internal/core"
	"crossfilter/internal/dataset"
	"crossfilter/plugins/gapminder"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "crossfilter",
		Short:         "Multi-page dashboard with a synchronized year range filter",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "dashboard layout YAML (default: built-in gapminder layout)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level: debug|info|warn|error")

	root.AddCommand(newServeCmd(opts), newValidateCmd(opts), newRenderCmd(opts))
	return root
}

func (o *rootOptions) loadConfig() (core.DashboardConfig, error) {
	if o.configPath == "" {
		return core.DefaultDashboardConfig(), nil
	}
	return core.LoadDashboardConfig(o.configPath)
}

func (o *rootOptions) newLogger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(o.logLevel)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", o.logLevel)
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})), nil
}

// datasetSource reads the gapminder CSV from the blob store when
// CROSSFILTER_DATASET_KEY is set and falls back to the embedded sample.
func datasetSource(ctx context.Context) (dataset.Source, blob.Store, error) {
	key := strings.TrimSpace(os.Getenv("CROSSFILTER_DATASET_KEY"))
	if key == "" {
		return dataset.EmbeddedSource{}, nil, nil
	}
	store, err := blob.Open(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("open blob store: %w", err)
	}
	return dataset.BlobSource{Store: store, Key: key}, store, nil
}

// buildService installs the gapminder plugin and builds the dashboard. The
// service, and with it any state store option, is closed on failure.
func buildService(ctx context.Context, cfg core.DashboardConfig, source dataset.Source, opts ...core.ServiceOption) (*core.Service, error) {
	svc := core.NewService(opts...)
	if _, err := svc.InstallPlugin(gapminder.New(source)); err != nil {
		return nil, err
	}
	if _, err := svc.BuildDashboard(ctx, cfg); err != nil {
		_ = svc.Close()
		return nil, err
	}
	return svc, nil
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [layout.yaml]",
		Short: "Validate a dashboard layout and build it against the dataset",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.configPath = args[0]
			}
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			source, _, err := datasetSource(cmd.Context())
			if err != nil {
				return err
			}
			svc, err := buildService(cmd.Context(), cfg, source)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()
			d, err := svc.Dashboard()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "dashboard %q ok: years %d-%d\n", d.Title(), d.Bounds().Min, d.Bounds().Max)
			for _, control := range d.Controls() {
				fmt.Fprintf(out, "  %s -> %s\n", control.ID, strings.Join(control.TargetFieldPaths, ", "))
			}
			return nil
		},
	}
}

type renderOptions struct {
	min, max int
}

func newRenderCmd(opts *rootOptions) *cobra.Command {
	ro := &renderOptions{}
	cmd := &cobra.Command{
		Use:   "render <component>",
		Short: "Render a component as JSON, optionally after moving its year range control",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			logger, err := opts.newLogger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			source, _, err := datasetSource(cmd.Context())
			if err != nil {
				return err
			}
			svc, err := buildService(cmd.Context(), cfg, source, core.WithLogger(core.NewSlogLogger(logger)))
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()
			artifact, err := renderComponent(cmd.Context(), svc, args[0], cmd.Flags().Changed("min"), cmd.Flags().Changed("max"), ro)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(artifact)
		},
	}
	cmd.Flags().IntVar(&ro.min, "min", 0, "first year of the range (default: dataset minimum)")
	cmd.Flags().IntVar(&ro.max, "max", 0, "last year of the range (default: dataset maximum)")
	return cmd
}

func renderComponent(ctx context.Context, svc *core.Service, componentID string, hasMin, hasMax bool, ro *renderOptions) (core.ChartArtifact, error) {
	sess, err := svc.CreateSession(ctx)
	if err != nil {
		return core.ChartArtifact{}, err
	}
	if hasMin || hasMax {
		value, _ := sess.Filter()
		if hasMin {
			value.Min = ro.min
		}
		if hasMax {
			value.Max = ro.max
		}
		controlID := ""
		for _, control := range sess.Dashboard().Controls() {
			if slices.Contains(control.TargetComponents(), componentID) {
				controlID = control.ID
				break
			}
		}
		if controlID == "" {
			return core.ChartArtifact{}, fmt.Errorf("component %s is not driven by a year range control", componentID)
		}
		if _, err := svc.Interact(ctx, sess.ID(), controlID, value); err != nil {
			return core.ChartArtifact{}, err
		}
	}
	return svc.Render(ctx, sess.ID(), componentID)
}
