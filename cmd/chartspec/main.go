package main

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// ============================================================================
// CHARTSPEC CLI — Build, probe and render Vega-Lite chart batches
// ============================================================================

const version = "0.3.0"

var (
	logLevel  string
	logFormat string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.WithError(err).Error("❌ chartspec failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "chartspec",
		Short: "Build, probe and render Vega-Lite chart batches",
		Long: `chartspec validates declarative chart specs (fields and parameters are
checked before anything reaches a browser), shares interactive parameters
between charts, and renders a batch of charts into one page, one after another.

Environment:
  LOG_LEVEL            default for --log-level (info)
  CHARTSPEC_CACHE_DIR  default for --cache-dir
  CHARTSPEC_TIMEOUT    default for --timeout (e.g. 30s)`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setupLogging,
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", envOr("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text, json")

	root.AddCommand(
		newBuildCmd(),
		newRenderCmd(),
		newCatalogCmd(),
		newProbeCmd(),
		newVersionCmd(),
	)
	return root
}

func setupLogging(cmd *cobra.Command, args []string) error {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		return errors.Wrap(err, "--log-level")
	}
	log.SetLevel(level)
	log.SetOutput(cmd.ErrOrStderr())
	switch logFormat {
	case "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		return errors.Errorf("invalid --log-format %q (must be text or json)", logFormat)
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "chartspec %s\n", version)
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.WithField("err", err).Warnf("ignoring %s=%q", key, v)
		return fallback
	}
	return d
}
