package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newAnalyzeCommand() *cobra.Command {
	var ownerID int64
	var inputFile string

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Suggest a folder and tags for captured content",
		Long:  "Reads content from --file or stdin and prints organization suggestions without modifying any note.",
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readContent(inputFile)
			if err != nil {
				return err
			}

			eng, err := newEngine()
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			suggestion, err := eng.analyzer.Analyze(cmd.Context(), ownerID, content)
			if err != nil {
				return fmt.Errorf("analyze content: %w", err)
			}

			bold := color.New(color.Bold)
			if suggestion.HeuristicOnly {
				fmt.Println("(embedding provider unavailable; suggestions use structural signals only)")
			}

			if suggestion.Folder == nil {
				fmt.Println("Folder: no suggestion")
			} else {
				if _, err := bold.Printf("Folder: %s", suggestion.Folder.Name); err != nil {
					return fmt.Errorf("print folder suggestion: %w", err)
				}
				if suggestion.Folder.FolderID == nil {
					fmt.Printf("  (new, confidence %.2f, %s)\n", suggestion.Folder.Confidence, suggestion.Folder.Reason)
				} else {
					fmt.Printf("  (existing #%d, confidence %.2f, %s)\n", *suggestion.Folder.FolderID, suggestion.Folder.Confidence, suggestion.Folder.Reason)
				}
			}

			if len(suggestion.Tags) == 0 {
				fmt.Println("Tags: no suggestions")
				return nil
			}
			fmt.Println("Tags:")
			for _, tag := range suggestion.Tags {
				fmt.Printf("  - %s (confidence %.2f, %s)\n", tag.Name, tag.Confidence, tag.Reason)
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&ownerID, "owner", 1, "Owner ID whose folders and tags are candidates")
	cmd.Flags().StringVar(&inputFile, "file", "", "Read content from this file instead of stdin")
	return cmd
}

func readContent(inputFile string) (string, error) {
	if inputFile != "" {
		content, err := os.ReadFile(inputFile)
		if err != nil {
			return "", fmt.Errorf("os.ReadFile(%s) > %w", inputFile, err)
		}
		return string(content), nil
	}

	content, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(content), nil
}
