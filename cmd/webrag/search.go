package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/webrag/internal/bootstrap"
	"github.com/kirillkom/webrag/internal/core/domain"
	"github.com/kirillkom/webrag/internal/core/ports"
)

func searchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Print the chunks most similar to a query as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			k, _ := cmd.Flags().GetInt("k")
			if k < 0 {
				k = cfg.TopK
			}

			app, err := bootstrap.NewSearchApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}
			results, err := app.Search.Search(cmd.Context(), strings.Join(args, " "), k)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		},
	}
	cmd.Flags().IntP("k", "k", -1, "Number of results (defaults to TOP_K)")
	return cmd
}

func demoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Interactive question loop over the built index",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			app, err := bootstrap.NewSearchApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}
			return demoLoop(cmd.Context(), app.Search, cfg.TopK, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

// demoLoop answers one query per line until quit, exit, q or EOF.
func demoLoop(ctx context.Context, searcher ports.ChunkSearcher, k int, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "\nEnter your question (or 'quit' to exit): ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		query := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(query) {
		case "quit", "exit", "q":
			return nil
		case "":
			continue
		}

		results, err := searcher.Search(ctx, query, k)
		if err != nil {
			fmt.Fprintf(out, "Search failed: %v\n", err)
			continue
		}
		printResults(out, results)
	}
}

func printResults(out io.Writer, results []domain.QueryResult) {
	if len(results) == 0 {
		fmt.Fprintln(out, "No results.")
		return
	}
	for i, r := range results {
		fmt.Fprintf(out, "\n%d. score=%.4f source=%s\n", i+1, r.Score, r.SourceURL)
		if len(r.HeadingPath) > 0 {
			fmt.Fprintf(out, "   section: %s\n", strings.Join(r.HeadingPath, " > "))
		}
		fmt.Fprintf(out, "   %s\n", preview(r.Text, 200))
	}
}

func preview(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

