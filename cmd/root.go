// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"firestige.xyz/pcapsift/internal/config"
	"firestige.xyz/pcapsift/internal/engine"
	"firestige.xyz/pcapsift/internal/log"
	"firestige.xyz/pcapsift/internal/metrics"
)

var (
	// Global flags
	configFile  string
	metricsFile string

	cfg           *config.GlobalConfig
	console       log.Logger
	metricsServer *metrics.Server
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pcapsift",
	Short: "pcapsift - extract transferred files from packet captures",
	Long: `pcapsift reconstructs TCP and UDP streams from a pcap or pcapng file,
extracts resources transferred over HTTP/1.x and HTTP/2, carves files
identified by signature, and packages them with a forensic report.

Typical workflow:
  pcapsift analyze dump.pcap
  pcapsift export --capture dump.pcap --manifest extracted_files/manifest.yaml --out .
  pcapsift purge dump.pcap`,
	Version:            "0.1.0",
	SilenceUsage:       true,
	SilenceErrors:      true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults apply when empty)")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "",
		"write metrics in text exposition format to this file on exit")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(carveCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(urlsCmd)
	rootCmd.AddCommand(endpointsCmd)
	rootCmd.AddCommand(purgeCmd)
}

// setup loads the configuration, installs the loggers and builds the
// engine unless one was injected.
func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(configFile)
	if err != nil {
		return err
	}
	cfg = loaded

	if err := log.Init(cfg.Log); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	console = log.NewConsole(cfg.Log.Console, cmd.ErrOrStderr())

	if eng == nil {
		SetEngine(engine.New(cfg.Analysis))
	}

	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
		if err := metricsServer.Start(cmd.Context()); err != nil {
			return err
		}
		console.Infof("metrics available at http://%s%s", metricsServer.Addr(), cfg.Metrics.Path)
	}
	return nil
}

func teardown(cmd *cobra.Command, args []string) error {
	if metricsServer != nil {
		if err := metricsServer.Stop(context.Background()); err != nil {
			slog.Warn("metrics server stop failed", "error", err)
		}
		metricsServer = nil
	}

	path := metricsFile
	if path == "" && cfg != nil {
		path = cfg.Metrics.Textfile
	}
	if path == "" {
		return nil
	}
	return metrics.WriteTextfile(path)
}
