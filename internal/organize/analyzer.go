package organize

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	gocache "github.com/patrickmn/go-cache"

	"github.com/quillnotes/quill/internal/embedding"
	"github.com/quillnotes/quill/internal/normalize"
	"github.com/quillnotes/quill/internal/note"
)

// Config holds the product-tunable parameters of the analyzer. Thresholds
// and confidences are in [0,1].
type Config struct {
	// FolderThreshold is the minimum centroid similarity to suggest an
	// existing folder.
	FolderThreshold float64
	// ParentAttachThreshold is the minimum similarity to attach a proposed
	// new folder under the best-matching existing folder instead of the root.
	// Expected to be below FolderThreshold.
	ParentAttachThreshold float64
	// TagThreshold is the minimum centroid similarity for a tag suggestion.
	// Tags are a weaker commitment than the folder, so this sits below
	// FolderThreshold.
	TagThreshold float64
	// TagTopK caps the number of similarity-ranked tag suggestions.
	TagTopK int
	// HeuristicConfidenceCap bounds all confidences when embeddings are
	// unavailable and only structural signals remain.
	HeuristicConfidenceCap float64
	// ProviderTimeout bounds the candidate-text embedding call.
	ProviderTimeout time.Duration
	// CentroidTTL is how long computed folder/tag centroids are memoized.
	CentroidTTL time.Duration
}

const (
	languageFolderConfidence = 0.6
	headingFolderConfidence  = 0.5
	signalTagConfidence      = 0.9
	mathTagConfidence        = 0.7
)

// Suggestion is the transient result of analyzing captured content. It never
// mutates a note; the caller decides whether to apply it.
type Suggestion struct {
	Folder        *FolderSuggestion `json:"folder,omitempty"`
	Tags          []TagSuggestion   `json:"tags,omitempty"`
	HeuristicOnly bool              `json:"heuristic_only"`
}

// FolderSuggestion proposes either an existing folder (FolderID set) or a new
// folder with the given name, parent and depth.
type FolderSuggestion struct {
	FolderID   *int64  `json:"folder_id,omitempty"`
	Name       string  `json:"name"`
	ParentID   *int64  `json:"parent_id,omitempty"`
	Depth      int     `json:"depth"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// TagSuggestion proposes a tag by name; TagID is set when the tag already exists.
type TagSuggestion struct {
	TagID      *int64  `json:"tag_id,omitempty"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// Analyzer builds organization suggestions for captured content.
type Analyzer struct {
	repo      note.Repository
	cache     *embedding.Cache
	provider  embedding.Provider
	centroids *gocache.Cache
	cfg       Config
}

// NewAnalyzer creates an analyzer over the repository, embedding cache and provider.
func NewAnalyzer(repo note.Repository, cache *embedding.Cache, provider embedding.Provider, cfg Config) *Analyzer {
	return &Analyzer{
		repo:      repo,
		cache:     cache,
		provider:  provider,
		centroids: gocache.New(cfg.CentroidTTL, 2*cfg.CentroidTTL),
		cfg:       cfg,
	}
}

// Analyze proposes a folder and tags for the raw content. Embedding failures
// degrade to structural-signal-only suggestions; the operation only errors on
// empty input or a repository failure.
func (a *Analyzer) Analyze(ctx context.Context, ownerID int64, raw string) (Suggestion, error) {
	plain := normalize.Normalize(raw)
	if plain == "" {
		return Suggestion{}, fmt.Errorf("empty content: %w", embedding.ErrInvalidInput)
	}
	sig := Detect(plain)

	folders, err := a.repo.FindFoldersByOwner(ctx, ownerID)
	if err != nil {
		return Suggestion{}, fmt.Errorf("repo.FindFoldersByOwner() > %w", err)
	}
	tags, err := a.repo.FindTagsByOwner(ctx, ownerID)
	if err != nil {
		return Suggestion{}, fmt.Errorf("repo.FindTagsByOwner() > %w", err)
	}

	suggestion, err := a.embeddingBased(ctx, ownerID, plain, sig, folders, tags)
	if err != nil {
		slog.Default().Debug("embedding-based analysis unavailable, falling back to structural signals",
			"ownerID", ownerID,
			"error", err)
		suggestion = heuristicOnly(sig, tags, a.cfg.HeuristicConfidenceCap)
	}
	sortTags(suggestion.Tags)
	return suggestion, nil
}

func (a *Analyzer) embeddingBased(ctx context.Context, ownerID int64, plain string, sig Signals, folders []note.Folder, tags []note.Tag) (Suggestion, error) {
	embedCtx, cancel := context.WithTimeout(ctx, a.cfg.ProviderTimeout)
	defer cancel()
	// Candidate text has no note identity yet, so this embedding is never cached.
	vector, err := a.provider.Embed(embedCtx, plain)
	if err != nil {
		return Suggestion{}, fmt.Errorf("provider.Embed() > %w", err)
	}

	set, err := a.centroidSet(ctx, ownerID)
	if err != nil {
		return Suggestion{}, err
	}

	suggestion := Suggestion{
		Folder: a.suggestFolder(vector, sig, folders, set.folders),
		Tags:   a.suggestTags(vector, sig, tags, set.tags, signalTagConfidence),
	}
	return suggestion, nil
}

// heuristicOnly is the pure fallback layer: structural signals alone, with a
// lower confidence ceiling and the HeuristicOnly flag set. Content with no
// signals yields an empty but valid suggestion.
func heuristicOnly(sig Signals, tags []note.Tag, ceiling float64) Suggestion {
	suggestion := Suggestion{HeuristicOnly: true}

	if folder := newFolderFromSignals(sig, nil, 0); folder != nil {
		folder.Confidence = math.Min(folder.Confidence, ceiling)
		suggestion.Folder = folder
	}
	for _, tag := range signalTags(sig, tags, signalTagConfidence) {
		tag.Confidence = math.Min(tag.Confidence, ceiling)
		suggestion.Tags = append(suggestion.Tags, tag)
	}
	return suggestion
}

func (a *Analyzer) suggestFolder(vector []float32, sig Signals, folders []note.Folder, centroids map[int64][]float32) *FolderSuggestion {
	folderByID := make(map[int64]*note.Folder, len(folders))
	for i := range folders {
		folderByID[folders[i].ID] = &folders[i]
	}

	bestID, bestSim := bestMatch(vector, centroids, func(id int64) string {
		if f, ok := folderByID[id]; ok {
			return f.Name
		}
		return ""
	})

	if bestID != 0 && bestSim >= a.cfg.FolderThreshold {
		folder := folderByID[bestID]
		if folder == nil {
			return nil
		}
		id := folder.ID
		return &FolderSuggestion{
			FolderID:   &id,
			Name:       folder.Name,
			ParentID:   folder.ParentID,
			Depth:      folder.Depth,
			Confidence: clamp01(bestSim),
			Reason:     "matched existing folder by content similarity",
		}
	}

	// Below threshold: propose a new folder labeled from structural signals,
	// attached under the best match only when it is a confident parent topic.
	var parentID *int64
	depth := 0
	if bestID != 0 && bestSim >= a.cfg.ParentAttachThreshold {
		if parent := folderByID[bestID]; parent != nil {
			parentID, depth = clampToMaxDepth(parent, folderByID)
		}
	}
	return newFolderFromSignals(sig, parentID, depth)
}

// clampToMaxDepth walks up the parent chain until a child attached there
// stays within MaxFolderDepth. An invalid folder is never proposed.
func clampToMaxDepth(parent *note.Folder, folderByID map[int64]*note.Folder) (*int64, int) {
	for parent != nil && parent.Depth >= note.MaxFolderDepth {
		if parent.ParentID == nil {
			return nil, 0
		}
		parent = folderByID[*parent.ParentID]
	}
	if parent == nil {
		return nil, 0
	}
	id := parent.ID
	return &id, parent.Depth + 1
}

func newFolderFromSignals(sig Signals, parentID *int64, depth int) *FolderSuggestion {
	switch {
	case sig.Language != "":
		return &FolderSuggestion{
			Name:       capitalize(sig.Language),
			ParentID:   parentID,
			Depth:      depth,
			Confidence: languageFolderConfidence,
			Reason:     "new folder named after detected code language",
		}
	case sig.FirstHeading != "":
		return &FolderSuggestion{
			Name:       shortLabel(sig.FirstHeading),
			ParentID:   parentID,
			Depth:      depth,
			Confidence: headingFolderConfidence,
			Reason:     "new folder named after first heading",
		}
	}
	return nil
}

func (a *Analyzer) suggestTags(vector []float32, sig Signals, tags []note.Tag, centroids map[int64][]float32, signalConfidence float64) []TagSuggestion {
	tagByID := make(map[int64]*note.Tag, len(tags))
	for i := range tags {
		tagByID[tags[i].ID] = &tags[i]
	}

	type scoredTag struct {
		tag *note.Tag
		sim float64
	}
	var scored []scoredTag
	for id, centroid := range centroids {
		tag := tagByID[id]
		if tag == nil {
			continue
		}
		if sim := embedding.Cosine(vector, centroid); sim >= a.cfg.TagThreshold {
			scored = append(scored, scoredTag{tag: tag, sim: sim})
		}
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].sim != scored[j].sim {
			return scored[i].sim > scored[j].sim
		}
		return scored[i].tag.Name < scored[j].tag.Name
	})
	if a.cfg.TagTopK > 0 && len(scored) > a.cfg.TagTopK {
		scored = scored[:a.cfg.TagTopK]
	}

	suggestions := make([]TagSuggestion, 0, len(scored)+2)
	seen := make(map[string]bool, len(scored)+2)
	for _, s := range scored {
		id := s.tag.ID
		suggestions = append(suggestions, TagSuggestion{
			TagID:      &id,
			Name:       s.tag.Name,
			Confidence: clamp01(s.sim),
			Reason:     "matched existing tag by content similarity",
		})
		seen[s.tag.Name] = true
	}
	for _, tag := range signalTags(sig, tags, signalConfidence) {
		if !seen[tag.Name] {
			suggestions = append(suggestions, tag)
			seen[tag.Name] = true
		}
	}
	return suggestions
}

// signalTags are deterministic tag candidates injected from structural
// signals even absent embedding support.
func signalTags(sig Signals, tags []note.Tag, confidence float64) []TagSuggestion {
	var suggestions []TagSuggestion
	if sig.Language != "" {
		suggestions = append(suggestions, TagSuggestion{
			TagID:      existingTagID(tags, sig.Language),
			Name:       sig.Language,
			Confidence: confidence,
			Reason:     "detected code language",
		})
	}
	if sig.HasMath {
		suggestions = append(suggestions, TagSuggestion{
			TagID:      existingTagID(tags, "math"),
			Name:       "math",
			Confidence: math.Min(confidence, mathTagConfidence),
			Reason:     "detected math delimiters",
		})
	}
	return suggestions
}

func existingTagID(tags []note.Tag, name string) *int64 {
	for i := range tags {
		if tags[i].Name == name {
			id := tags[i].ID
			return &id
		}
	}
	return nil
}

func bestMatch(vector []float32, centroids map[int64][]float32, nameOf func(int64) string) (int64, float64) {
	var bestID int64
	bestSim := math.Inf(-1)
	for id, centroid := range centroids {
		sim := embedding.Cosine(vector, centroid)
		if sim > bestSim || (sim == bestSim && bestID != 0 && nameOf(id) < nameOf(bestID)) {
			bestID = id
			bestSim = sim
		}
	}
	if bestID == 0 {
		return 0, 0
	}
	return bestID, bestSim
}

// sortTags orders suggestions by confidence descending, breaking ties by
// lexical order of the label for determinism.
func sortTags(tags []TagSuggestion) {
	sort.Slice(tags, func(i, j int) bool {
		if tags[i].Confidence != tags[j].Confidence {
			return tags[i].Confidence > tags[j].Confidence
		}
		return tags[i].Name < tags[j].Name
	})
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// shortLabel trims a heading down to a usable folder name. The cut is on a
// rune boundary so multibyte headings stay valid UTF-8.
func shortLabel(heading string) string {
	const maxLabel = 40
	label := strings.TrimSpace(heading)
	if runes := []rune(label); len(runes) > maxLabel {
		label = strings.TrimSpace(string(runes[:maxLabel]))
	}
	return label
}

type centroidSet struct {
	folders map[int64][]float32
	tags    map[int64][]float32
}

// centroidSet computes (or returns memoized) per-folder and per-tag centroid
// vectors for an owner. Notes whose vectors cannot be obtained are skipped;
// folders and tags with no embedded notes get no centroid and are skipped for
// similarity.
func (a *Analyzer) centroidSet(ctx context.Context, ownerID int64) (*centroidSet, error) {
	key := strconv.FormatInt(ownerID, 10)
	if cached, ok := a.centroids.Get(key); ok {
		return cached.(*centroidSet), nil
	}

	notes, err := a.repo.FindNotesByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("repo.FindNotesByOwner() > %w", err)
	}

	folderVectors := make(map[int64][][]float32)
	tagVectors := make(map[int64][][]float32)
	for i := range notes {
		n := &notes[i]
		vector, err := a.cache.GetOrCompute(ctx, n)
		if err != nil {
			slog.Default().Debug("skipping note without obtainable vector",
				"noteID", n.ID,
				"error", err)
			continue
		}
		if n.FolderID != nil {
			folderVectors[*n.FolderID] = append(folderVectors[*n.FolderID], vector)
		}
		for _, tag := range n.Tags {
			tagVectors[tag.ID] = append(tagVectors[tag.ID], vector)
		}
	}

	set := &centroidSet{
		folders: make(map[int64][]float32, len(folderVectors)),
		tags:    make(map[int64][]float32, len(tagVectors)),
	}
	for id, vectors := range folderVectors {
		if centroid := embedding.Centroid(vectors); centroid != nil {
			set.folders[id] = centroid
		}
	}
	for id, vectors := range tagVectors {
		if centroid := embedding.Centroid(vectors); centroid != nil {
			set.tags[id] = centroid
		}
	}

	a.centroids.Set(key, set, gocache.DefaultExpiration)
	return set, nil
}
