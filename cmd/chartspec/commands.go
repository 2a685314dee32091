package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/ghodss/yaml"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/spektr-org/chartspec/catalog"
	"github.com/spektr-org/chartspec/embed"
	"github.com/spektr-org/chartspec/render"
	"github.com/spektr-org/chartspec/spec"
)

var cliJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// ============================================================================
// BATCH LOADING
// ============================================================================

// batch is what every command works on: targets in page order plus the
// page-level options a batch file may carry.
type batch struct {
	targets  []render.Target
	renderer string
	controls bool
}

// loadBatch reads the batch file at path, or the built-in catalog when
// path is empty.
func loadBatch(path string, average bool) (*batch, error) {
	if path == "" {
		targets, err := catalog.Targets()
		if err != nil {
			return nil, err
		}
		if average {
			if targets, err = withAverage(targets); err != nil {
				return nil, err
			}
		}
		return &batch{targets: targets}, nil
	}

	b, err := spec.LoadBatchFile(path)
	if err != nil {
		return nil, err
	}
	out := &batch{renderer: b.Renderer, controls: b.Controls}
	for _, c := range b.Charts {
		out.targets = append(out.targets, render.Target{Mount: c.Mount, Spec: c.Spec})
	}
	log.WithFields(log.Fields{"file": path, "charts": len(out.targets), "params": len(b.Params)}).Debug("📄 batch loaded")
	return out, nil
}

// withAverage swaps the catalog bar chart for the bar chart with its national
// average rule.
func withAverage(targets []render.Target) ([]render.Target, error) {
	for i, t := range targets {
		if t.Mount != catalog.MountBar {
			continue
		}
		avg, err := catalog.BarAverage(t.Spec)
		if err != nil {
			return nil, errors.Wrap(err, "catalog average overlay")
		}
		targets[i].Spec = avg
	}
	return targets, nil
}

func batchArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// output opens path for writing, or returns stdout for "" and "-".
func output(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create output")
	}
	return f, f.Close, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// ============================================================================
// BUILD
// ============================================================================

type builtChart struct {
	Mount string          `json:"mount"`
	Spec  *spec.ChartSpec `json:"spec"`
}

func newBuildCmd() *cobra.Command {
	var (
		out     string
		format  string
		pretty  bool
		average bool
	)
	cmd := &cobra.Command{
		Use:   "build [batch.yaml]",
		Short: "Validate a batch and print its Vega-Lite specs as JSON",
		Long: `Validate every chart of a batch file (or the built-in catalog when no file
is given) and print the encoded Vega-Lite specs, in mount order.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := loadBatch(batchArg(args), average)
			if err != nil {
				return err
			}
			charts := make([]builtChart, len(b.targets))
			for i, t := range b.targets {
				charts[i] = builtChart{Mount: t.Mount, Spec: t.Spec}
			}

			var data []byte
			if pretty {
				data, err = cliJSON.MarshalIndent(charts, "", "  ")
			} else {
				data, err = cliJSON.Marshal(charts)
			}
			if err != nil {
				return errors.Wrap(err, "encode batch")
			}
			switch format {
			case "json":
				data = append(data, '\n')
			case "yaml":
				if data, err = yaml.JSONToYAML(data); err != nil {
					return errors.Wrap(err, "encode batch as yaml")
				}
			default:
				return errors.Errorf("invalid --format %q (must be json or yaml)", format)
			}

			w, closeFn, err := output(cmd, out)
			if err != nil {
				return err
			}
			if _, err := w.Write(data); err != nil {
				closeFn()
				return errors.Wrap(err, "write batch")
			}
			return closeFn()
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default stdout)")
	cmd.Flags().StringVar(&format, "format", "json", "Output format: json, yaml")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "Indent the JSON output")
	cmd.Flags().BoolVar(&average, "average", false, "Catalog only: layer the national average onto the bar chart")
	return cmd
}

// ============================================================================
// CATALOG
// ============================================================================

func newCatalogCmd() *cobra.Command {
	var (
		mount   string
		average bool
	)
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List the built-in charts, or print one of them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := loadBatch("", average)
			if err != nil {
				return err
			}
			if mount == "" {
				for _, t := range b.targets {
					fmt.Fprintf(cmd.OutOrStdout(), "%-14s %s\n", t.Mount, t.Spec.Title().Text)
				}
				return nil
			}
			for _, t := range b.targets {
				if t.Mount != mount {
					continue
				}
				data, err := spec.Encode(t.Spec, true)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			return errors.Errorf("no catalog chart mounted at %q", mount)
		},
	}
	cmd.Flags().StringVar(&mount, "mount", "", "Print the spec mounted at this id (e.g. #map)")
	cmd.Flags().BoolVar(&average, "average", false, "Layer the national average onto the bar chart")
	return cmd
}

// ============================================================================
// PROBE
// ============================================================================

func newProbeCmd() *cobra.Command {
	var (
		cacheDir string
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "probe [batch.yaml]",
		Short: "Fetch every remote source and check the fields each chart reads",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := loadBatch(batchArg(args), false)
			if err != nil {
				return err
			}
			prober := embed.NewProber(embed.WithCacheDir(cacheDir), embed.WithProbeLogger(log.StandardLogger()))

			ctx, cancel := signalContext()
			defer cancel()
			check := func(ctx context.Context, t render.Target) error {
				return prober.Check(ctx, t.Spec)
			}
			outcome, err := render.RenderAll(ctx, b.targets, check,
				render.WithTimeout(timeout),
				render.WithLogger(log.StandardLogger()),
			)
			if err != nil {
				return err
			}

			for _, t := range b.targets {
				status := "ok"
				if f, failed := outcome.Failed(t.Mount); failed {
					status = errors.Cause(f.Err).Error()
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-14s %s\n", t.Mount, status)
			}
			if outcome.State != render.AllSucceeded {
				return errors.Errorf("probe: %s", outcome.State)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cacheDir, "cache-dir", os.Getenv("CHARTSPEC_CACHE_DIR"), "HTTP cache directory (default in-memory)")
	cmd.Flags().DurationVar(&timeout, "timeout", envDuration("CHARTSPEC_TIMEOUT", 30*time.Second), "Per-chart timeout")
	return cmd
}

// ============================================================================
// RENDER
// ============================================================================

func newRenderCmd() *cobra.Command {
	var (
		out      string
		title    string
		renderer string
		controls bool
		probe    bool
		average  bool
		cacheDir string
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "render [batch.yaml]",
		Short: "Render a batch into one HTML page",
		Long: `Render every chart of a batch file (or the built-in catalog) into a single
HTML page, one chart after another. A chart that fails is reported and
skipped; the others are still mounted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := loadBatch(batchArg(args), average)
			if err != nil {
				return err
			}

			opts := embed.RenderOptions{
				Renderer:                   embed.Renderer(b.renderer),
				InteractiveControlsVisible: b.controls,
			}
			if cmd.Flags().Changed("renderer") || opts.Renderer == "" {
				opts.Renderer = embed.Renderer(renderer)
			}
			if cmd.Flags().Changed("controls") {
				opts.InteractiveControlsVisible = controls
			}

			pageOpts := []embed.PageOption{embed.WithTitle(title), embed.WithLogger(log.StandardLogger())}
			if probe {
				pageOpts = append(pageOpts, embed.WithProber(
					embed.NewProber(embed.WithCacheDir(cacheDir), embed.WithProbeLogger(log.StandardLogger())),
				))
			}
			page, err := embed.NewPage(opts, pageOpts...)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()
			outcome, err := render.RenderAll(ctx, b.targets, page.Render,
				render.WithTimeout(timeout),
				render.WithLogger(log.StandardLogger()),
			)
			if err != nil {
				return err
			}
			outcome.Report(log.StandardLogger())
			if outcome.State == render.AllFailed {
				return errors.Wrap(outcome.Err(), "no chart rendered")
			}

			w, closeFn, err := output(cmd, out)
			if err != nil {
				return err
			}
			n, err := page.WriteTo(w)
			if err != nil {
				closeFn()
				return errors.Wrap(err, "write page")
			}
			log.WithFields(log.Fields{"bytes": n, "charts": len(page.Mounts())}).Info("📊 page written")
			return closeFn()
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output HTML file (default stdout)")
	cmd.Flags().StringVar(&title, "title", "Charts", "Page title")
	cmd.Flags().StringVar(&renderer, "renderer", string(embed.RendererCanvas), "Vega renderer: canvas or svg")
	cmd.Flags().BoolVar(&controls, "controls", false, "Show the embed action menu")
	cmd.Flags().BoolVar(&probe, "probe", false, "Fetch sources and check fields before mounting each chart")
	cmd.Flags().BoolVar(&average, "average", false, "Catalog only: layer the national average onto the bar chart")
	cmd.Flags().StringVar(&cacheDir, "cache-dir", os.Getenv("CHARTSPEC_CACHE_DIR"), "HTTP cache directory for --probe (default in-memory)")
	cmd.Flags().DurationVar(&timeout, "timeout", envDuration("CHARTSPEC_TIMEOUT", 30*time.Second), "Per-chart timeout")
	return cmd
}
