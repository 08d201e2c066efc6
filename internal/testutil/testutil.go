// Package testutil provides shared test helpers for creating config files and note fixtures.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quillnotes/quill/internal/note"
)

// SetupTestConfig creates a minimal config file for testing.
// Returns the path to the generated config file.
func SetupTestConfig(t *testing.T, tmpDir string) string {
	t.Helper()

	configContent := `database:
  host: localhost
  port: 3306
  database: quill_test
openai:
  embedding_model: text-embedding-3-small
  timeout_seconds: 5
  max_retry_attempts: 1
engine:
  semantic_weight: 0.7
  lexical_weight: 0.3
  folder_threshold: 0.75
  parent_attach_threshold: 0.6
  tag_threshold: 0.65
  tag_top_k: 5
  heuristic_confidence_cap: 0.4
  centroid_ttl_seconds: 300
server:
  address: ":8080"
  allowed_origin: "*"
`

	cfgPath := filepath.Join(tmpDir, "config.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(configContent), 0644))
	return cfgPath
}

// SetupTestConfigWithAPIKey creates a config file and sets a fake OpenAI API key
// in the environment for tests that require API key validation to pass.
func SetupTestConfigWithAPIKey(t *testing.T, tmpDir string) string {
	t.Helper()
	cfgPath := SetupTestConfig(t, tmpDir)
	t.Setenv("OPENAI_API_KEY", "fake-key-for-testing")
	return cfgPath
}

// NoteOption configures optional fields when creating a note fixture.
type NoteOption func(*noteConfig)

type noteConfig struct {
	folderID  *int64
	tags      []string
	updatedAt time.Time
}

// WithNoteFolder places the note fixture in the given folder.
func WithNoteFolder(folderID int64) NoteOption {
	return func(cfg *noteConfig) {
		cfg.folderID = &folderID
	}
}

// WithNoteTags attaches tags to the note fixture, creating them if needed.
func WithNoteTags(tags ...string) NoteOption {
	return func(cfg *noteConfig) {
		cfg.tags = tags
	}
}

// WithNoteUpdatedAt overrides the content timestamp of the note fixture.
func WithNoteUpdatedAt(at time.Time) NoteOption {
	return func(cfg *noteConfig) {
		cfg.updatedAt = at
	}
}

// CreateNote creates a note in the repository with sensible defaults.
// By default the note is at the root, untagged, and timestamped now.
func CreateNote(t *testing.T, repo note.Repository, ownerID int64, title, content string, opts ...NoteOption) note.Note {
	t.Helper()

	cfg := noteConfig{
		updatedAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx := context.Background()
	n := note.Note{
		OwnerID:          ownerID,
		Title:            title,
		Content:          content,
		PlainContent:     content,
		FolderID:         cfg.folderID,
		ContentUpdatedAt: cfg.updatedAt,
	}
	for _, name := range cfg.tags {
		tag, err := repo.FindOrCreateTag(ctx, ownerID, name)
		require.NoError(t, err, "tag %s should be creatable", name)
		n.Tags = append(n.Tags, *tag)
	}
	require.NoError(t, repo.CreateNote(ctx, &n))
	return n
}

// CreateFolder creates a folder in the repository, failing the test on error.
func CreateFolder(t *testing.T, repo note.Repository, ownerID int64, name string, parentID *int64) note.Folder {
	t.Helper()

	f := note.Folder{
		OwnerID:  ownerID,
		Name:     name,
		ParentID: parentID,
		Color:    note.FolderColorGray,
	}
	require.NoError(t, repo.CreateFolder(context.Background(), &f), "folder %s should be creatable", name)
	return f
}

// Vector builds a normalized-ish embedding vector whose direction is determined
// by the given components. Handy for making notes that cosine-cluster together.
func Vector(components ...float32) []float32 {
	v := make([]float32, len(components))
	copy(v, components)
	return v
}

// SeedEmbedding stores an embedding record for a note, failing the test on error.
func SeedEmbedding(t *testing.T, repo note.Repository, n note.Note, vector []float32, modelID string) {
	t.Helper()

	applied, err := repo.UpsertEmbedding(context.Background(), &note.EmbeddingRecord{
		NoteID:          n.ID,
		Vector:          vector,
		SourceUpdatedAt: n.ContentUpdatedAt,
		ModelID:         modelID,
	})
	require.NoError(t, err)
	require.True(t, applied, fmt.Sprintf("embedding for note %d should be stored", n.ID))
}
