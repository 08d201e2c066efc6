package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newSearchCommand() *cobra.Command {
	var ownerID int64
	var limit int

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search notes by meaning and keywords",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine()
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			query := strings.Join(args, " ")
			results, err := eng.ranker.Search(cmd.Context(), ownerID, query)
			if err != nil {
				return fmt.Errorf("search notes: %w", err)
			}

			if len(results) == 0 {
				fmt.Println("No notes found.")
				return nil
			}
			if limit > 0 && len(results) > limit {
				results = results[:limit]
			}

			bold := color.New(color.Bold)
			for i, result := range results {
				if _, err := bold.Printf("%d. %s", i+1, result.Note.Title); err != nil {
					return fmt.Errorf("print result title: %w", err)
				}
				fmt.Printf("  (score %.3f", result.Score)
				if result.LexicalMatch {
					fmt.Printf(", keyword match")
				}
				fmt.Println(")")

				if snippet := makeSnippet(result.Note.PlainContent); snippet != "" {
					fmt.Printf("   %s\n", snippet)
				}
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&ownerID, "owner", 1, "Owner ID whose notes are searched")
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of results to print (0 for all)")
	return cmd
}

// makeSnippet returns the first line of content, shortened for terminal output.
func makeSnippet(content string) string {
	line := content
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimSpace(line)
	const maxSnippetLength = 80
	if len(line) > maxSnippetLength {
		line = line[:maxSnippetLength] + "..."
	}
	return line
}
