package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kirillkom/webrag/internal/config"
	"github.com/kirillkom/webrag/internal/observability/logging"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "webrag",
		Short:         "Crawl web pages into a searchable chunk index",
		Long:          "webrag fetches pages, extracts their main content, chunks and embeds it, and serves similarity search over the result.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(demoCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(mcpCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "run")
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads configuration and installs the process logger. Logs go to
// stderr so stdout stays free for command output and the MCP transport.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(logging.New(os.Stderr, "webrag", cfg.LogLevel, cfg.LogFormat))
	return cfg, nil
}
