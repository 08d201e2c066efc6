package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/quillnotes/quill/internal/importer"
	"github.com/quillnotes/quill/internal/pdf"
)

func newNotesCommand() *cobra.Command {
	notesCmd := &cobra.Command{
		Use:   "notes",
		Short: "Note management commands",
	}

	notesCmd.AddCommand(
		newNotesImportCommand(),
		newNotesExportPDFCommand(),
	)
	return notesCmd
}

func newNotesImportCommand() *cobra.Command {
	var ownerID int64

	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import notes from a YAML seed file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine()
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			count, err := importer.NewImporter(eng.repo).ImportFile(cmd.Context(), ownerID, args[0])
			if err != nil {
				return fmt.Errorf("import notes: %w", err)
			}
			fmt.Printf("Imported %d notes.\n", count)
			return nil
		},
	}

	cmd.Flags().Int64Var(&ownerID, "owner", 1, "Owner ID the notes are imported for")
	return cmd
}

func newNotesExportPDFCommand() *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:   "export-pdf [note-id]",
		Short: "Export a note as a PDF file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			noteID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid note ID %q: %w", args[0], err)
			}

			eng, err := newEngine()
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			n, err := eng.repo.FindNote(cmd.Context(), noteID)
			if err != nil {
				return fmt.Errorf("find note: %w", err)
			}
			if n == nil {
				return fmt.Errorf("note %d not found", noteID)
			}

			pdfPath, err := pdf.ExportNote(*n, outputDir)
			if err != nil {
				return fmt.Errorf("export note to PDF: %w", err)
			}
			fmt.Printf("Exported to %s\n", pdfPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&outputDir, "output-dir", ".", "Directory the PDF is written into")
	return cmd
}
