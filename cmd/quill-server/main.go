package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/quillnotes/quill/internal/bootstrap"
	"github.com/quillnotes/quill/internal/config"
	"github.com/quillnotes/quill/internal/database"
	"github.com/quillnotes/quill/internal/embedding"
	"github.com/quillnotes/quill/internal/embedding/openai"
	"github.com/quillnotes/quill/internal/note"
	"github.com/quillnotes/quill/internal/organize"
	"github.com/quillnotes/quill/internal/search"
	"github.com/quillnotes/quill/internal/server"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:           "quill-server",
		Short:         "Quill note organization and search HTTP server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
	rootCmd.Flags().StringVar(&configFile, "config", "", "config file path")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	app := bootstrap.New()

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("config.Load() > %w", err)
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("database.Open() > %w", err)
	}
	app.AddShutdownHook(func(context.Context) error { return db.Close() })

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

	mux := http.NewServeMux()
	server.NewHandler(ranker, analyzer, cache).Register(mux)

	handler := server.RequestID(server.CORS(cfg.Server.AllowedOrigin, h2c.NewHandler(mux, &http2.Server{})))
	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: handler,
	}
	app.AddShutdownHook(srv.Shutdown)

	return app.Run(ctx, func(ctx context.Context) error {
		log.Printf("Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
}
