package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quillnotes/quill/internal/embedding"
)

func newMaintenanceCommand() *cobra.Command {
	maintenanceCmd := &cobra.Command{
		Use:   "maintenance",
		Short: "Maintenance commands",
	}

	maintenanceCmd.AddCommand(newRegenerateEmbeddingsCommand())
	return maintenanceCmd
}

func newRegenerateEmbeddingsCommand() *cobra.Command {
	var ownerID int64
	var warm bool

	cmd := &cobra.Command{
		Use:   "regenerate-embeddings",
		Short: "Mark every stored embedding stale so it is recomputed on next use",
		Long: "Marks all embeddings stale without deleting them. Stored vectors keep serving " +
			"as a fallback until a fresh one is computed. With --warm, recomputes embeddings " +
			"for the owner's notes immediately instead of waiting for the next search.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			eng, err := newEngine()
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			count, err := eng.cache.InvalidateAll(ctx)
			if err != nil {
				return fmt.Errorf("invalidate embeddings: %w", err)
			}
			fmt.Printf("Marked %d embeddings stale.\n", count)

			if !warm {
				return nil
			}

			notes, err := eng.repo.FindNotesByOwner(ctx, ownerID)
			if err != nil {
				return fmt.Errorf("find notes: %w", err)
			}

			recomputed := 0
			skipped := 0
			for i := range notes {
				if _, err := eng.cache.GetOrCompute(ctx, &notes[i]); err != nil {
					if errors.Is(err, embedding.ErrProviderUnavailable) || errors.Is(err, embedding.ErrInvalidInput) {
						skipped++
						continue
					}
					return fmt.Errorf("recompute embedding for note %d: %w", notes[i].ID, err)
				}
				recomputed++
			}
			fmt.Printf("Recomputed %d embeddings", recomputed)
			if skipped > 0 {
				fmt.Printf(" (%d unavailable, will retry on next use)", skipped)
			}
			fmt.Println(".")
			return nil
		},
	}

	cmd.Flags().Int64Var(&ownerID, "owner", 1, "Owner ID whose notes are warmed with --warm")
	cmd.Flags().BoolVar(&warm, "warm", false, "Recompute embeddings immediately after invalidation")
	return cmd
}
