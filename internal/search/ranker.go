// Package search ranks an owner's notes against a query by blending vector
// similarity with a lexical match bonus.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/quillnotes/quill/internal/embedding"
	"github.com/quillnotes/quill/internal/normalize"
	"github.com/quillnotes/quill/internal/note"
)

// Config holds the ranking weights. SemanticWeight must exceed LexicalWeight
// so lexical matches boost but never fully override semantic ranking.
type Config struct {
	SemanticWeight  float64
	LexicalWeight   float64
	ProviderTimeout time.Duration
}

// Result is one ranked note with its blended score.
type Result struct {
	Note          note.Note `json:"note"`
	Score         float64   `json:"score"`
	SemanticScore float64   `json:"semantic_score"`
	LexicalMatch  bool      `json:"lexical_match"`
}

// Ranker executes semantic search over an owner's notes.
type Ranker struct {
	repo     note.Repository
	cache    *embedding.Cache
	provider embedding.Provider
	cfg      Config
}

// NewRanker creates a ranker over the repository, embedding cache and provider.
func NewRanker(repo note.Repository, cache *embedding.Cache, provider embedding.Provider, cfg Config) *Ranker {
	return &Ranker{
		repo:     repo,
		cache:    cache,
		provider: provider,
		cfg:      cfg,
	}
}

// Search returns the owner's notes ordered by blended relevance. The ordering
// is total and deterministic: score descending, then most recent content
// update, then title, then id. Notes whose embedding cannot be obtained still
// participate with a semantic term of zero; they are never dropped. Given the
// same candidate set and query, repeated calls produce identical results.
func (r *Ranker) Search(ctx context.Context, ownerID int64, query string) ([]Result, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, fmt.Errorf("empty query: %w", embedding.ErrInvalidInput)
	}

	notes, err := r.repo.FindNotesByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("repo.FindNotesByOwner() > %w", err)
	}

	// Queries are ephemeral: one embedding per call, never cached. A provider
	// failure here degrades the whole call to lexical-only scoring.
	embedCtx, cancel := context.WithTimeout(ctx, r.cfg.ProviderTimeout)
	queryVector, embedErr := r.provider.Embed(embedCtx, trimmed)
	cancel()
	if embedErr != nil {
		slog.Default().Debug("query embedding unavailable, scoring lexically only",
			"ownerID", ownerID,
			"error", embedErr)
	}

	lowered := strings.ToLower(trimmed)
	results := make([]Result, 0, len(notes))
	for i := range notes {
		n := notes[i]

		semantic := 0.0
		if embedErr == nil {
			vector, err := r.cache.GetOrCompute(ctx, &n)
			if err != nil {
				slog.Default().Debug("note embedding unavailable, scoring lexically only",
					"noteID", n.ID,
					"error", err)
			} else {
				semantic = embedding.Cosine(queryVector, vector)
			}
		}

		lexical := lexicalMatch(&n, lowered)
		score := r.cfg.SemanticWeight * semantic
		if lexical {
			score += r.cfg.LexicalWeight
		}
		results = append(results, Result{
			Note:          n,
			Score:         score,
			SemanticScore: semantic,
			LexicalMatch:  lexical,
		})
	}

	sortResults(results)
	return results, nil
}

// lexicalMatch reports whether the query appears case-insensitively in the
// note's title, plain content, a tag name, or its folder name.
func lexicalMatch(n *note.Note, loweredQuery string) bool {
	if strings.Contains(strings.ToLower(n.Title), loweredQuery) {
		return true
	}
	plain := n.PlainContent
	if plain == "" {
		plain = normalize.Normalize(n.Content)
	}
	if strings.Contains(strings.ToLower(plain), loweredQuery) {
		return true
	}
	for _, tag := range n.Tags {
		if strings.Contains(strings.ToLower(tag.Name), loweredQuery) {
			return true
		}
	}
	if n.Folder != nil && strings.Contains(strings.ToLower(n.Folder.Name), loweredQuery) {
		return true
	}
	return false
}

func sortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if !results[i].Note.ContentUpdatedAt.Equal(results[j].Note.ContentUpdatedAt) {
			return results[i].Note.ContentUpdatedAt.After(results[j].Note.ContentUpdatedAt)
		}
		if results[i].Note.Title != results[j].Note.Title {
			return results[i].Note.Title < results[j].Note.Title
		}
		return results[i].Note.ID < results[j].Note.ID
	})
}
