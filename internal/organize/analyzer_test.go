package organize_test

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/quillnotes/quill/internal/embedding"
	mock_embedding "github.com/quillnotes/quill/internal/mocks/embedding"
	"github.com/quillnotes/quill/internal/note"
	"github.com/quillnotes/quill/internal/organize"
	"github.com/quillnotes/quill/internal/testutil"
)

const testModelID = "text-embedding-3-small"

func testConfig() organize.Config {
	return organize.Config{
		FolderThreshold:        0.75,
		ParentAttachThreshold:  0.6,
		TagThreshold:           0.65,
		TagTopK:                5,
		HeuristicConfidenceCap: 0.4,
		ProviderTimeout:        time.Second,
		CentroidTTL:            time.Minute,
	}
}

func TestAnalyzer_Analyze_emptyContent(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := mock_embedding.NewMockProvider(ctrl)
	provider.EXPECT().ModelID().Return(testModelID).AnyTimes()

	repo := note.NewMemoryRepository()
	cache := embedding.NewCache(repo, provider, time.Second)
	analyzer := organize.NewAnalyzer(repo, cache, provider, testConfig())

	_, err := analyzer.Analyze(context.Background(), 1, "  \n\t ")
	assert.ErrorIs(t, err, embedding.ErrInvalidInput)
}

func TestAnalyzer_Analyze_matchesExistingFolderAndTag(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := mock_embedding.NewMockProvider(ctrl)
	provider.EXPECT().ModelID().Return(testModelID).AnyTimes()
	// Only the candidate text is embedded; every note has a fresh cached vector.
	provider.EXPECT().Embed(gomock.Any(), gomock.Any()).Return([]float32{1, 0, 0}, nil).Times(1)

	repo := note.NewMemoryRepository()
	programming := testutil.CreateFolder(t, repo, 1, "Programming", nil)

	n1 := testutil.CreateNote(t, repo, 1, "Quicksort", "def quicksort(xs): ...",
		testutil.WithNoteFolder(programming.ID), testutil.WithNoteTags("python"))
	n2 := testutil.CreateNote(t, repo, 1, "Merge Sort", "def merge(a, b): ...",
		testutil.WithNoteFolder(programming.ID), testutil.WithNoteTags("python"))
	testutil.SeedEmbedding(t, repo, n1, []float32{1, 0, 0}, testModelID)
	testutil.SeedEmbedding(t, repo, n2, []float32{0.9, 0.1, 0}, testModelID)

	cache := embedding.NewCache(repo, provider, time.Second)
	analyzer := organize.NewAnalyzer(repo, cache, provider, testConfig())

	got, err := analyzer.Analyze(context.Background(), 1, "# Heapsort\n\n```python\ndef heapsort(xs):\n    pass\n```")
	require.NoError(t, err)

	assert.False(t, got.HeuristicOnly)
	require.NotNil(t, got.Folder)
	require.NotNil(t, got.Folder.FolderID)
	assert.Equal(t, programming.ID, *got.Folder.FolderID)
	assert.Equal(t, "Programming", got.Folder.Name)
	assert.GreaterOrEqual(t, got.Folder.Confidence, 0.75)

	require.NotEmpty(t, got.Tags)
	assert.Equal(t, "python", got.Tags[0].Name)
	require.NotNil(t, got.Tags[0].TagID, "the existing python tag should be referenced by id")
}

func TestAnalyzer_Analyze_proposesNewFolderFromLanguage(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := mock_embedding.NewMockProvider(ctrl)
	provider.EXPECT().ModelID().Return(testModelID).AnyTimes()
	provider.EXPECT().Embed(gomock.Any(), gomock.Any()).Return([]float32{1, 0, 0}, nil).Times(1)

	repo := note.NewMemoryRepository()
	// The owner only has an unrelated folder whose centroid is orthogonal to
	// the candidate, so neither match nor parent attachment applies.
	mathFolder := testutil.CreateFolder(t, repo, 1, "Math", nil)
	n := testutil.CreateNote(t, repo, 1, "Derivative Rules", "The power rule...",
		testutil.WithNoteFolder(mathFolder.ID))
	testutil.SeedEmbedding(t, repo, n, []float32{0, 1, 0}, testModelID)

	cache := embedding.NewCache(repo, provider, time.Second)
	analyzer := organize.NewAnalyzer(repo, cache, provider, testConfig())

	got, err := analyzer.Analyze(context.Background(), 1, "```python\ndef quicksort(xs):\n    pass\n```")
	require.NoError(t, err)

	require.NotNil(t, got.Folder)
	assert.Nil(t, got.Folder.FolderID)
	assert.Equal(t, "Python", got.Folder.Name)
	assert.Nil(t, got.Folder.ParentID)
	assert.Equal(t, 0, got.Folder.Depth)
	assert.InDelta(t, 0.6, got.Folder.Confidence, 1e-9)

	require.Len(t, got.Tags, 1)
	assert.Equal(t, "python", got.Tags[0].Name)
	assert.Nil(t, got.Tags[0].TagID, "the python tag does not exist yet")
	assert.InDelta(t, 0.9, got.Tags[0].Confidence, 1e-9)
}

func TestAnalyzer_Analyze_clampsNewFolderDepth(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := mock_embedding.NewMockProvider(ctrl)
	provider.EXPECT().ModelID().Return(testModelID).AnyTimes()
	provider.EXPECT().Embed(gomock.Any(), gomock.Any()).Return([]float32{1, 0, 0}, nil).Times(1)

	repo := note.NewMemoryRepository()
	studies := testutil.CreateFolder(t, repo, 1, "Studies", nil)
	cs := testutil.CreateFolder(t, repo, 1, "CS", &studies.ID)
	algorithms := testutil.CreateFolder(t, repo, 1, "Algorithms", &cs.ID)

	// Similarity to the deepest folder lands between the attach and match
	// thresholds: cos([1,0,0], [1,1,0]) ~ 0.707.
	n := testutil.CreateNote(t, repo, 1, "Graph Traversal", "BFS and DFS...",
		testutil.WithNoteFolder(algorithms.ID))
	testutil.SeedEmbedding(t, repo, n, []float32{1, 1, 0}, testModelID)

	cache := embedding.NewCache(repo, provider, time.Second)
	analyzer := organize.NewAnalyzer(repo, cache, provider, testConfig())

	got, err := analyzer.Analyze(context.Background(), 1, "```python\ndef dijkstra(g):\n    pass\n```")
	require.NoError(t, err)

	require.NotNil(t, got.Folder)
	assert.Nil(t, got.Folder.FolderID)
	assert.Equal(t, "Python", got.Folder.Name)
	// Attaching under Algorithms (depth 2) would exceed the depth limit, so
	// the proposal walks up to CS.
	require.NotNil(t, got.Folder.ParentID)
	assert.Equal(t, cs.ID, *got.Folder.ParentID)
	assert.Equal(t, 2, got.Folder.Depth)
}

func TestAnalyzer_Analyze_heuristicFallback(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := mock_embedding.NewMockProvider(ctrl)
	provider.EXPECT().ModelID().Return(testModelID).AnyTimes()
	provider.EXPECT().Embed(gomock.Any(), gomock.Any()).
		Return(nil, embedding.ErrProviderUnavailable).AnyTimes()

	repo := note.NewMemoryRepository()
	cache := embedding.NewCache(repo, provider, time.Second)
	analyzer := organize.NewAnalyzer(repo, cache, provider, testConfig())

	got, err := analyzer.Analyze(context.Background(), 1,
		"```python\nimport numpy\n```\n\nThe loss is $$L = \\sum r^2$$")
	require.NoError(t, err, "provider failure must not fail the operation")

	assert.True(t, got.HeuristicOnly)
	require.NotNil(t, got.Folder)
	assert.Equal(t, "Python", got.Folder.Name)
	assert.InDelta(t, 0.4, got.Folder.Confidence, 1e-9, "confidence is capped in heuristic mode")

	require.Len(t, got.Tags, 2)
	assert.Equal(t, "math", got.Tags[0].Name)
	assert.Equal(t, "python", got.Tags[1].Name)
	for _, tag := range got.Tags {
		assert.LessOrEqual(t, tag.Confidence, 0.4)
	}
}

func TestAnalyzer_Analyze_multibyteHeadingLabelStaysValidUTF8(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := mock_embedding.NewMockProvider(ctrl)
	provider.EXPECT().ModelID().Return(testModelID).AnyTimes()
	provider.EXPECT().Embed(gomock.Any(), gomock.Any()).
		Return(nil, embedding.ErrProviderUnavailable).AnyTimes()

	repo := note.NewMemoryRepository()
	cache := embedding.NewCache(repo, provider, time.Second)
	analyzer := organize.NewAnalyzer(repo, cache, provider, testConfig())

	// A multibyte rune straddles the label length limit.
	heading := strings.Repeat("a", 39) + "あいうえお"
	got, err := analyzer.Analyze(context.Background(), 1,
		"# "+heading+"\n\nNotes from today's reading session.")
	require.NoError(t, err)

	require.NotNil(t, got.Folder)
	assert.True(t, utf8.ValidString(got.Folder.Name))
	assert.Equal(t, strings.Repeat("a", 39)+"あ", got.Folder.Name)
}

func TestAnalyzer_Analyze_noSignalsNoMatchesIsEmptyButValid(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := mock_embedding.NewMockProvider(ctrl)
	provider.EXPECT().ModelID().Return(testModelID).AnyTimes()
	provider.EXPECT().Embed(gomock.Any(), gomock.Any()).Return([]float32{1, 0, 0}, nil).Times(1)

	repo := note.NewMemoryRepository()
	cache := embedding.NewCache(repo, provider, time.Second)
	analyzer := organize.NewAnalyzer(repo, cache, provider, testConfig())

	got, err := analyzer.Analyze(context.Background(), 1, "Remember to water the plants.")
	require.NoError(t, err)

	assert.False(t, got.HeuristicOnly)
	assert.Nil(t, got.Folder)
	assert.Empty(t, got.Tags)
}
