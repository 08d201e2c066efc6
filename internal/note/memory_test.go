package note

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository_notes(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	tag, err := repo.FindOrCreateTag(ctx, 1, "Python")
	require.NoError(t, err)
	assert.Equal(t, "python", tag.Name)

	// The same name resolves to the same tag, regardless of case.
	again, err := repo.FindOrCreateTag(ctx, 1, "  PYTHON ")
	require.NoError(t, err)
	assert.Equal(t, tag.ID, again.ID)

	// A different owner gets a distinct tag.
	other, err := repo.FindOrCreateTag(ctx, 2, "python")
	require.NoError(t, err)
	assert.NotEqual(t, tag.ID, other.ID)

	folder := Folder{OwnerID: 1, Name: "Programming", Color: FolderColorBlue}
	require.NoError(t, repo.CreateFolder(ctx, &folder))

	n := Note{
		OwnerID:  1,
		Title:    "Quicksort",
		Content:  "def quicksort(xs): ...",
		FolderID: &folder.ID,
		Tags:     []Tag{*tag},
	}
	require.NoError(t, repo.CreateNote(ctx, &n))
	assert.NotZero(t, n.ID)
	assert.False(t, n.ContentUpdatedAt.IsZero())

	found, err := repo.FindNote(ctx, n.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "Quicksort", found.Title)
	require.Len(t, found.Tags, 1)
	assert.Equal(t, "python", found.Tags[0].Name)
	require.NotNil(t, found.Folder)
	assert.Equal(t, "Programming", found.Folder.Name)

	missing, err := repo.FindNote(ctx, 9999)
	require.NoError(t, err)
	assert.Nil(t, missing)

	byOwner, err := repo.FindNotesByOwner(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, byOwner, 1)

	empty, err := repo.FindNotesByOwner(ctx, 42)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemoryRepository_UpdateNoteContent(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	n := Note{
		OwnerID:          1,
		Title:            "Quicksort",
		Content:          "original",
		ContentUpdatedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.CreateNote(ctx, &n))
	before := n.ContentUpdatedAt

	// Writing identical content does not bump the timestamp.
	require.NoError(t, repo.UpdateNoteContent(ctx, n.ID, "original", "original"))
	found, err := repo.FindNote(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, before, found.ContentUpdatedAt)

	// Changing the content does.
	require.NoError(t, repo.UpdateNoteContent(ctx, n.ID, "edited", "edited"))
	found, err = repo.FindNote(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "edited", found.Content)
	assert.True(t, found.ContentUpdatedAt.After(before))

	// A title edit never touches the content timestamp.
	contentUpdatedAt := found.ContentUpdatedAt
	require.NoError(t, repo.UpdateNoteTitle(ctx, n.ID, "Quicksort, revisited"))
	found, err = repo.FindNote(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "Quicksort, revisited", found.Title)
	assert.Equal(t, contentUpdatedAt, found.ContentUpdatedAt)
}

func TestMemoryRepository_CreateFolder_depth(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	root := Folder{OwnerID: 1, Name: "Studies"}
	require.NoError(t, repo.CreateFolder(ctx, &root))
	assert.Equal(t, 0, root.Depth)

	child := Folder{OwnerID: 1, Name: "Math", ParentID: &root.ID}
	require.NoError(t, repo.CreateFolder(ctx, &child))
	assert.Equal(t, 1, child.Depth)

	grandchild := Folder{OwnerID: 1, Name: "Calculus", ParentID: &child.ID}
	require.NoError(t, repo.CreateFolder(ctx, &grandchild))
	assert.Equal(t, 2, grandchild.Depth)

	tooDeep := Folder{OwnerID: 1, Name: "Derivatives", ParentID: &grandchild.ID}
	assert.ErrorIs(t, repo.CreateFolder(ctx, &tooDeep), ErrFolderTooDeep)

	nestedDefault := Folder{OwnerID: 1, Name: "Notes", ParentID: &root.ID, IsDefault: true}
	assert.ErrorIs(t, repo.CreateFolder(ctx, &nestedDefault), ErrDefaultFolderNested)
}

func TestMemoryRepository_UpsertEmbedding(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("newer write wins", func(t *testing.T) {
		repo := NewMemoryRepository()

		applied, err := repo.UpsertEmbedding(ctx, &EmbeddingRecord{
			NoteID: 1, Vector: []float32{1, 0}, SourceUpdatedAt: now, ModelID: "m",
		})
		require.NoError(t, err)
		assert.True(t, applied)

		applied, err = repo.UpsertEmbedding(ctx, &EmbeddingRecord{
			NoteID: 1, Vector: []float32{0, 1}, SourceUpdatedAt: now.Add(time.Minute), ModelID: "m",
		})
		require.NoError(t, err)
		assert.True(t, applied)

		rec, err := repo.FindEmbedding(ctx, 1)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, []float32{0, 1}, rec.Vector)
	})

	t.Run("older write is discarded", func(t *testing.T) {
		repo := NewMemoryRepository()

		applied, err := repo.UpsertEmbedding(ctx, &EmbeddingRecord{
			NoteID: 1, Vector: []float32{0, 1}, SourceUpdatedAt: now.Add(time.Minute), ModelID: "m",
		})
		require.NoError(t, err)
		assert.True(t, applied)

		applied, err = repo.UpsertEmbedding(ctx, &EmbeddingRecord{
			NoteID: 1, Vector: []float32{1, 0}, SourceUpdatedAt: now, ModelID: "m",
		})
		require.NoError(t, err)
		assert.False(t, applied)

		rec, err := repo.FindEmbedding(ctx, 1)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, []float32{0, 1}, rec.Vector)
		assert.Equal(t, now.Add(time.Minute), rec.SourceUpdatedAt)
	})

	t.Run("equal timestamps apply", func(t *testing.T) {
		repo := NewMemoryRepository()

		_, err := repo.UpsertEmbedding(ctx, &EmbeddingRecord{
			NoteID: 1, Vector: []float32{1, 0}, SourceUpdatedAt: now, ModelID: "old-model",
		})
		require.NoError(t, err)

		// A same-timestamp write still lands, which lets a model migration
		// replace vectors without touching note timestamps.
		applied, err := repo.UpsertEmbedding(ctx, &EmbeddingRecord{
			NoteID: 1, Vector: []float32{0, 1}, SourceUpdatedAt: now, ModelID: "new-model",
		})
		require.NoError(t, err)
		assert.True(t, applied)

		rec, err := repo.FindEmbedding(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "new-model", rec.ModelID)
	})
}

func TestMemoryRepository_InvalidateAllEmbeddings(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	repo := NewMemoryRepository()

	for id := int64(1); id <= 3; id++ {
		_, err := repo.UpsertEmbedding(ctx, &EmbeddingRecord{
			NoteID: id, Vector: []float32{1}, SourceUpdatedAt: now, ModelID: "m",
		})
		require.NoError(t, err)
	}

	count, err := repo.InvalidateAllEmbeddings(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	// Vectors survive; only the source timestamps are rewound.
	rec, err := repo.FindEmbedding(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, []float32{1}, rec.Vector)
	assert.True(t, rec.SourceUpdatedAt.Before(now))
}
