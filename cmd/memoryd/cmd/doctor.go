package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aman-cerp/agentmem/internal/lifecycle"
	"github.com/aman-cerp/agentmem/internal/output"
)

func newDoctorCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check whether the memory service can reach its dependencies",
		Long: `Run diagnostics against the configured data directory: open the
relational store, vector indexes, and full-text index, and report whether
the configured embedder and reranker are reachable.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

type doctorReport struct {
	DataDir       string   `json:"data_dir"`
	StoreOK       bool     `json:"store_ok"`
	EmbedderOK    bool     `json:"embedder_ok"`
	EmbedderModel string   `json:"embedder_model"`
	RerankerOK    bool     `json:"reranker_ok"`
	OllamaStatus  string   `json:"ollama_status,omitempty"`
	OllamaModels  []string `json:"ollama_models,omitempty"`
	Error         string   `json:"error,omitempty"`
}

func runDoctor(cmd *cobra.Command, jsonOutput bool) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	root, err := os.Getwd()
	if err != nil {
		return err
	}

	report := doctorReport{}
	c, err := buildCore(ctx, root)
	if err != nil {
		report.Error = err.Error()
		return printDoctorReport(cmd, report, jsonOutput)
	}
	defer c.Close(context.Background())

	report.DataDir = c.cfg.Server.DataDir
	report.StoreOK = true
	report.EmbedderModel = c.embedder.ModelName()
	report.EmbedderOK = c.embedder.Available(ctx)
	report.RerankerOK = c.reranker.Available(ctx)

	if c.cfg.Embeddings.Provider == "ollama" {
		mgr := lifecycle.NewOllamaManagerWithHost(c.cfg.Embeddings.OllamaHost)
		status, err := mgr.Status(ctx, c.cfg.Embeddings.Model)
		switch {
		case err != nil:
			report.OllamaStatus = "error: " + err.Error()
		case !status.Installed:
			report.OllamaStatus = "not installed\n" + lifecycle.InstallInstructions()
		case !status.Running:
			report.OllamaStatus = "installed, not running"
		case !status.HasModel:
			report.OllamaStatus = "running, missing model " + c.cfg.Embeddings.Model
		default:
			report.OllamaStatus = "ready"
			report.OllamaModels = status.Models
		}
	}

	return printDoctorReport(cmd, report, jsonOutput)
}

func printDoctorReport(cmd *cobra.Command, report doctorReport, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	w := output.New(cmd.OutOrStdout())
	if report.Error != "" {
		w.Error(report.Error)
		return nil
	}

	w.Statusf("", "data dir:  %s", report.DataDir)
	printCheck(w, "store", report.StoreOK, "")
	printCheck(w, "embedder", report.EmbedderOK, report.EmbedderModel)
	printCheck(w, "reranker", report.RerankerOK, "")
	if report.OllamaStatus != "" {
		w.Statusf("", "ollama:    %s", report.OllamaStatus)
	}
	return nil
}

func printCheck(w *output.Writer, label string, ok bool, detail string) {
	msg := label
	if detail != "" {
		msg = fmt.Sprintf("%s (%s)", label, detail)
	}
	if ok {
		w.Success(msg)
	} else {
		w.Warning(msg + ": unavailable")
	}
}
