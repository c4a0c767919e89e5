// Package cmd provides the CLI commands for memoryd.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/aman-cerp/agentmem/internal/logging"
	"github.com/aman-cerp/agentmem/pkg/version"
)

var (
	dataDir        string
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the memoryd CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "memoryd",
		Short:        "Persistent associative memory service for LLM agents",
		Long:         `memoryd stores entities, observations, and relationships for an LLM agent's long-term memory, and serves them over hybrid search, graph-RAG, and multi-hop retrieval (spec §4-§6).`,
		Version:      version.Version,
		SilenceUsage: true,
	}

	cmd.SetVersionTemplate("memoryd version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (default: ~/.memoryd)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.memoryd/logs/")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newDoctorCmd())

	return cmd
}

func startLogging(_ *cobra.Command, _ []string) error {
	level := "info"
	if debugMode {
		level = "debug"
	}
	cfg := logging.DefaultConfig()
	cfg.Level = level

	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		return err
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
