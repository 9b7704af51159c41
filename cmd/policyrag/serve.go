package main

import (
	"context"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"policyrag/internal/domain"
	"policyrag/internal/mcpserver"
	"policyrag/internal/server"
	"policyrag/internal/tui"
)

var (
	serveAddr   string
	serveIngest string
	mcpIngest   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serves the JSON API:

  POST /ingest                       {"path": "...", "force": false}
  POST /query                        {"question": "..."}
  POST /retrieve                     {"question": "...", "k": 8, "threshold": 0.4}
  POST /generate-evaluation-dataset  {"base_path": "...", "output_file": "...", "num_questions": 30}
  POST /run-evaluation               {"evaluation_dataset_path": "..."}
  GET  /documents
  GET  /healthz
  GET  /metrics`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var tuiCmd = &cobra.Command{
	Use:   "tui [folder]",
	Short: "Interactive question answering in the terminal",
	Long:  `Starts the terminal UI. When a folder is given its PDFs are ingested first.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTUI,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP server over stdio",
	Long: `Exposes ask_policy_question, retrieve_policy_chunks and
list_policy_documents as Model Context Protocol tools over stdio.

Example client configuration:
  {
    "mcpServers": {
      "policyrag": {"command": "/path/to/policyrag", "args": ["mcp"]}
    }
  }`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	serveCmd.Flags().StringVar(&serveIngest, "ingest", "", "ingest this folder before serving")
	mcpCmd.Flags().StringVar(&mcpIngest, "ingest", "", "ingest this folder before serving")
	rootCmd.AddCommand(serveCmd, tuiCmd, mcpCmd)
}

func preload(ctx context.Context, folder string) error {
	if folder == "" {
		return nil
	}
	svc, err := rt.Ingest(ctx)
	if err != nil {
		return err
	}
	report, err := svc.IngestFolder(ctx, folder, false)
	if err != nil {
		return err
	}
	rt.log.Info("Preloaded documents.", "folder", folder, "ingested", report.Ingested, "skipped", report.Skipped, "failed", report.Failed)
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if err := preload(ctx, serveIngest); err != nil {
		return err
	}
	svc, err := rt.Ingest(ctx)
	if err != nil {
		return err
	}
	ans, err := rt.Answerer(ctx)
	if err != nil {
		return err
	}
	ret, err := rt.Retriever(ctx)
	if err != nil {
		return err
	}
	ev, err := rt.Evaluator(ctx)
	if err != nil {
		return err
	}
	addr := serveAddr
	if addr == "" {
		addr = rt.cfg.Server.Addr
	}
	return server.Run(ctx, addr, server.Deps{
		Ingester:  svc,
		Answerer:  ans,
		Retriever: ret,
		Evaluator: ev,
		Metrics:   rt.metrics.Handler(),
		Logger:    rt.log,
	})
}

func runTUI(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if len(args) == 1 {
		if err := preload(ctx, args[0]); err != nil {
			return err
		}
	}
	ans, err := rt.Answerer(ctx)
	if err != nil {
		return err
	}
	summary := "No documents ingested."
	if led, err := rt.Ledger(); err == nil {
		if docs, err := led.List(ctx); err == nil && len(docs) > 0 {
			summary = pluralize(len(docs), "document") + " indexed."
		}
	}
	_, err = tea.NewProgram(tui.New(ctx, ans, summary), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

func runMCP(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if err := preload(ctx, mcpIngest); err != nil {
		return err
	}
	ans, err := rt.Answerer(ctx)
	if err != nil {
		return err
	}
	ret, err := rt.Retriever(ctx)
	if err != nil {
		return err
	}
	led, err := rt.Ledger()
	if err != nil {
		return err
	}
	s, err := mcpserver.NewServer(&mcpserver.Ports{Answerer: ans, Retriever: ret, Documents: ledgerLister{led}})
	if err != nil {
		return err
	}
	return s.Run(ctx)
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.Itoa(n) + " " + noun + "s"
}

// ledgerLister lets the MCP server list documents without building the
// ingestion pipeline.
type ledgerLister struct {
	domain.Ledger
}

func (l ledgerLister) Documents(ctx context.Context) ([]domain.IngestionRecord, error) {
	return l.List(ctx)
}
