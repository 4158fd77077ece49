// Package main provides the parley CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/richinex/parley/cli"
	"github.com/richinex/parley/config"
	"github.com/richinex/parley/tools"
)

var (
	// Global flags
	configPath string
	logLevel   string
	logFormat  string
	modelFlag  string
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
	}

	rootCmd := &cobra.Command{
		Use:   "parley",
		Short: "Matrix chat-room assistant backed by interchangeable LLM providers",
		Long: `parley joins Matrix rooms and answers chat commands with LLM completions.

Each participant in each room gets a separate conversation thread. Models
are routed to OpenAI-compatible, Anthropic or Gemini endpoints by the
providers section of the config file, and the model may call tools
(built-in or from MCP servers) before answering.`,
		SilenceUsage: true,
		RunE:         runBot,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", os.Getenv("PARLEY_LOG_LEVEL"), "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (text, json)")
	rootCmd.PersistentFlags().StringVarP(&modelFlag, "model", "m", "", "Override the default model")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(modelsCmd())
	rootCmd.AddCommand(toolsCmd())
	rootCmd.AddCommand(checkCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig finds and parses the config file, applying flag overrides.
func loadConfig() (*config.Config, string, error) {
	path, err := config.FindConfig(configPath)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load %s: %w", path, err)
	}
	if modelFlag != "" {
		cfg.LLM.DefaultModel = modelFlag
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}
	return cfg, path, nil
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to the homeserver and serve chat commands",
		RunE:  runBot,
	}
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := cli.NewApp(ctx, cfg, path, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("shutdown incomplete", "error", err)
		}
	}()

	logger.Info("starting", "config", path, "model", cfg.LLM.DefaultModel)
	if err := app.Run(ctx); err != nil {
		return fmt.Errorf("sync stopped: %w", err)
	}
	logger.Info("shut down")
	return nil
}

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "Print the model routing table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			routes, err := cfg.Routes()
			if err != nil {
				return err
			}
			return cli.ListModels(cmd.OutOrStdout(), routes, cfg.LLM.DefaultModel)
		},
	}
}

func toolsCmd() *cobra.Command {
	var schema bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List built-in tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := tools.Options{OpenAI: tools.OpenAIToolConfig{APIKey: os.Getenv(config.APIKeyEnv("openai"))}}
			if cfg, _, err := loadConfig(); err == nil {
				opts.Enabled = cfg.Tools.Enabled
				opts.OpenAI.APIKey = cfg.OpenAIKey()
			}
			registry, err := tools.WithDefaults(opts)
			if err != nil {
				return err
			}
			return cli.ListTools(cmd.OutOrStdout(), registry, schema)
		},
	}

	cmd.Flags().BoolVar(&schema, "schema", false, "Print JSON tool definitions")
	return cmd
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", path)
			return nil
		},
	}
}
