package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"policyrag/internal/config"
	"policyrag/internal/logging"
)

var (
	cfgPath  string
	logLevel string
	rt       *app
)

var rootCmd = &cobra.Command{
	Use:   "policyrag",
	Short: "Question answering over PDF policy documents",
	Long: `policyrag ingests PDF policy documents into a vector index and answers
questions grounded in the retrieved chunks, with document and page citations.

Configuration is read from --config, ./config.yaml or
~/.config/policyrag/config.yaml. A .env file in the working directory is
loaded first, so API keys can live there.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.SetOut(os.Stdout)
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}

func setup(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	rt = newApp(cfg, logging.New(cfg.Log, os.Stderr))
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
