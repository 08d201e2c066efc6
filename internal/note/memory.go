package note

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryRepository is an in-memory Repository used in tests and local runs.
// It applies the same write rules as the database-backed implementation,
// including the timestamp-guarded embedding upsert.
type MemoryRepository struct {
	mu         sync.RWMutex
	notes      map[int64]Note
	folders    map[int64]Folder
	tags       map[int64]Tag
	noteTags   map[int64][]int64
	embeddings map[int64]EmbeddingRecord
	nextID     int64
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		notes:      make(map[int64]Note),
		folders:    make(map[int64]Folder),
		tags:       make(map[int64]Tag),
		noteTags:   make(map[int64][]int64),
		embeddings: make(map[int64]EmbeddingRecord),
		nextID:     1,
	}
}

func (r *MemoryRepository) allocateID() int64 {
	id := r.nextID
	r.nextID++
	return id
}

// FindNote returns a note by id with tags and folder attached, or nil if not found.
func (r *MemoryRepository) FindNote(_ context.Context, id int64) (*Note, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.notes[id]
	if !ok {
		return nil, nil
	}
	loaded := r.withRelations(n)
	return &loaded, nil
}

// FindNotesByOwner returns all notes for an owner ordered by id.
func (r *MemoryRepository) FindNotesByOwner(_ context.Context, ownerID int64) ([]Note, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var notes []Note
	for _, n := range r.notes {
		if n.OwnerID == ownerID {
			notes = append(notes, r.withRelations(n))
		}
	}
	sort.Slice(notes, func(i, j int) bool { return notes[i].ID < notes[j].ID })
	return notes, nil
}

// FindFoldersByOwner returns all folders for an owner ordered by id.
func (r *MemoryRepository) FindFoldersByOwner(_ context.Context, ownerID int64) ([]Folder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var folders []Folder
	for _, f := range r.folders {
		if f.OwnerID == ownerID {
			folders = append(folders, f)
		}
	}
	sort.Slice(folders, func(i, j int) bool { return folders[i].ID < folders[j].ID })
	return folders, nil
}

// FindTagsByOwner returns all tags for an owner ordered by id.
func (r *MemoryRepository) FindTagsByOwner(_ context.Context, ownerID int64) ([]Tag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var tags []Tag
	for _, t := range r.tags {
		if t.OwnerID == ownerID {
			tags = append(tags, t)
		}
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].ID < tags[j].ID })
	return tags, nil
}

// CreateNote stores a note and its tag links.
func (r *MemoryRepository) CreateNote(_ context.Context, n *Note) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n.ID = r.allocateID()
	if n.ContentUpdatedAt.IsZero() {
		n.ContentUpdatedAt = time.Now().UTC()
	}
	for _, tag := range n.Tags {
		r.noteTags[n.ID] = append(r.noteTags[n.ID], tag.ID)
	}
	stored := *n
	stored.Tags = nil
	stored.Folder = nil
	r.notes[n.ID] = stored
	return nil
}

// CreateFolder stores a folder, computing and enforcing its depth from the parent.
func (r *MemoryRepository) CreateFolder(_ context.Context, f *Folder) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if f.IsDefault && f.ParentID != nil {
		return ErrDefaultFolderNested
	}
	var parent *Folder
	if f.ParentID != nil {
		p, ok := r.folders[*f.ParentID]
		if !ok {
			return fmt.Errorf("parent folder %d not found", *f.ParentID)
		}
		parent = &p
	}
	depth, err := ChildDepth(parent)
	if err != nil {
		return err
	}
	f.Depth = depth
	f.ID = r.allocateID()
	r.folders[f.ID] = *f
	return nil
}

// FindOrCreateTag returns the owner's tag with the normalized name, creating it if needed.
func (r *MemoryRepository) FindOrCreateTag(_ context.Context, ownerID int64, name string) (*Tag, error) {
	normalized, err := NormalizeTagName(name)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.tags {
		if t.OwnerID == ownerID && t.Name == normalized {
			tag := t
			return &tag, nil
		}
	}
	tag := Tag{ID: r.allocateID(), OwnerID: ownerID, Name: normalized}
	r.tags[tag.ID] = tag
	return &tag, nil
}

// UpdateNoteContent updates a note's body and bumps content_updated_at only
// when the body actually changes.
func (r *MemoryRepository) UpdateNoteContent(_ context.Context, id int64, content, plainContent string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.notes[id]
	if !ok {
		return fmt.Errorf("note %d not found", id)
	}
	if n.Content == content {
		return nil
	}
	n.Content = content
	n.PlainContent = plainContent
	n.ContentUpdatedAt = time.Now().UTC()
	r.notes[id] = n
	return nil
}

// UpdateNoteTitle updates a note's title without touching content_updated_at.
func (r *MemoryRepository) UpdateNoteTitle(_ context.Context, id int64, title string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.notes[id]
	if !ok {
		return fmt.Errorf("note %d not found", id)
	}
	n.Title = title
	r.notes[id] = n
	return nil
}

// FindEmbedding returns the cached embedding record for a note, or nil if none exists.
func (r *MemoryRepository) FindEmbedding(_ context.Context, noteID int64) (*EmbeddingRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.embeddings[noteID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// UpsertEmbedding applies the last-writer-by-source-timestamp rule. Returns
// false when the incoming record is older than the stored one.
func (r *MemoryRepository) UpsertEmbedding(_ context.Context, record *EmbeddingRecord) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.embeddings[record.NoteID]
	if ok && record.SourceUpdatedAt.Before(stored.SourceUpdatedAt) {
		return false, nil
	}
	r.embeddings[record.NoteID] = *record
	return true, nil
}

// InvalidateAllEmbeddings rewinds every record's source timestamp to the epoch.
func (r *MemoryRepository) InvalidateAllEmbeddings(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	epoch := time.Unix(1, 0).UTC()
	var count int64
	for id, rec := range r.embeddings {
		rec.SourceUpdatedAt = epoch
		r.embeddings[id] = rec
		count++
	}
	return count, nil
}

func (r *MemoryRepository) withRelations(n Note) Note {
	for _, tagID := range r.noteTags[n.ID] {
		if t, ok := r.tags[tagID]; ok {
			n.Tags = append(n.Tags, t)
		}
	}
	sort.Slice(n.Tags, func(i, j int) bool { return n.Tags[i].Name < n.Tags[j].Name })
	if n.FolderID != nil {
		if f, ok := r.folders[*n.FolderID]; ok {
			folder := f
			n.Folder = &folder
		}
	}
	return n
}
