package main

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/quillnotes/quill/internal/config"
	"github.com/quillnotes/quill/internal/database"
	"github.com/quillnotes/quill/internal/embedding"
	"github.com/quillnotes/quill/internal/embedding/openai"
	"github.com/quillnotes/quill/internal/note"
	"github.com/quillnotes/quill/internal/organize"
	"github.com/quillnotes/quill/internal/search"
)

// engine bundles the long-lived dependencies CLI commands operate on.
type engine struct {
	db       *sqlx.DB
	repo     note.Repository
	provider embedding.Provider
	cache    *embedding.Cache
	analyzer *organize.Analyzer
	ranker   *search.Ranker
}

func (e *engine) Close() error {
	return e.db.Close()
}

// newEngine loads the configuration and wires the repository, embedding
// provider, cache, analyzer, and ranker used by every command.
func newEngine() (*engine, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	repo := note.NewDBRepository(db)
	provider := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.EmbeddingModel, cfg.OpenAI.MaxRetryAttempts)
	cache := embedding.NewCache(repo, provider, cfg.OpenAI.ProviderTimeout())

	analyzer := organize.NewAnalyzer(repo, cache, provider, organize.Config{
		FolderThreshold:        cfg.Engine.FolderThreshold,
		ParentAttachThreshold:  cfg.Engine.ParentAttachThreshold,
		TagThreshold:           cfg.Engine.TagThreshold,
		TagTopK:                cfg.Engine.TagTopK,
		HeuristicConfidenceCap: cfg.Engine.HeuristicConfidenceCap,
		ProviderTimeout:        cfg.OpenAI.ProviderTimeout(),
		CentroidTTL:            cfg.Engine.CentroidTTL(),
	})
	ranker := search.NewRanker(repo, cache, provider, search.Config{
		SemanticWeight:  cfg.Engine.SemanticWeight,
		LexicalWeight:   cfg.Engine.LexicalWeight,
		ProviderTimeout: cfg.OpenAI.ProviderTimeout(),
	})

	return &engine{
		db:       db,
		repo:     repo,
		provider: provider,
		cache:    cache,
		analyzer: analyzer,
		ranker:   ranker,
	}, nil
}
