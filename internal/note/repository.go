package note

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jmoiron/sqlx"
)

// Repository defines persistence operations for notes, folders, tags and
// cached embeddings. The engine treats it as a collaborator; it never holds
// live back-references between entities.
type Repository interface {
	FindNote(ctx context.Context, id int64) (*Note, error)
	FindNotesByOwner(ctx context.Context, ownerID int64) ([]Note, error)
	FindFoldersByOwner(ctx context.Context, ownerID int64) ([]Folder, error)
	FindTagsByOwner(ctx context.Context, ownerID int64) ([]Tag, error)
	CreateNote(ctx context.Context, n *Note) error
	CreateFolder(ctx context.Context, f *Folder) error
	FindOrCreateTag(ctx context.Context, ownerID int64, name string) (*Tag, error)
	UpdateNoteContent(ctx context.Context, id int64, content, plainContent string) error
	UpdateNoteTitle(ctx context.Context, id int64, title string) error
	FindEmbedding(ctx context.Context, noteID int64) (*EmbeddingRecord, error)
	UpsertEmbedding(ctx context.Context, record *EmbeddingRecord) (bool, error)
	InvalidateAllEmbeddings(ctx context.Context) (int64, error)
}

// DBRepository implements Repository using MySQL.
type DBRepository struct {
	db *sqlx.DB
}

// NewDBRepository creates a new DBRepository.
func NewDBRepository(db *sqlx.DB) *DBRepository {
	return &DBRepository{db: db}
}

type dbEmbedding struct {
	NoteID          int64     `db:"note_id"`
	Vector          []byte    `db:"vector"`
	SourceUpdatedAt time.Time `db:"source_updated_at"`
	ModelID         string    `db:"model_id"`
}

// FindNote returns a note by id with its tags and folder loaded, or nil if not found.
func (r *DBRepository) FindNote(ctx context.Context, id int64) (*Note, error) {
	var n Note
	err := r.db.GetContext(ctx, &n, "SELECT * FROM notes WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("db.GetContext(note) > %w", err)
	}
	notes := []Note{n}
	if err := r.loadRelations(ctx, notes); err != nil {
		return nil, err
	}
	return &notes[0], nil
}

// FindNotesByOwner returns all notes for an owner with tags and folders loaded.
func (r *DBRepository) FindNotesByOwner(ctx context.Context, ownerID int64) ([]Note, error) {
	var notes []Note
	if err := r.db.SelectContext(ctx, &notes, "SELECT * FROM notes WHERE owner_id = ? ORDER BY id", ownerID); err != nil {
		return nil, fmt.Errorf("db.SelectContext(notes) > %w", err)
	}
	if err := r.loadRelations(ctx, notes); err != nil {
		return nil, err
	}
	return notes, nil
}

// FindFoldersByOwner returns all folders for an owner.
func (r *DBRepository) FindFoldersByOwner(ctx context.Context, ownerID int64) ([]Folder, error) {
	var folders []Folder
	if err := r.db.SelectContext(ctx, &folders, "SELECT * FROM folders WHERE owner_id = ? ORDER BY id", ownerID); err != nil {
		return nil, fmt.Errorf("db.SelectContext(folders) > %w", err)
	}
	return folders, nil
}

// FindTagsByOwner returns all tags for an owner.
func (r *DBRepository) FindTagsByOwner(ctx context.Context, ownerID int64) ([]Tag, error) {
	var tags []Tag
	if err := r.db.SelectContext(ctx, &tags, "SELECT * FROM tags WHERE owner_id = ? ORDER BY id", ownerID); err != nil {
		return nil, fmt.Errorf("db.SelectContext(tags) > %w", err)
	}
	return tags, nil
}

// CreateNote inserts a note and its tag links in a transaction.
func (r *DBRepository) CreateNote(ctx context.Context, n *Note) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("db.BeginTxx() > %w", err)
	}
	defer tx.Rollback()

	if n.ContentUpdatedAt.IsZero() {
		n.ContentUpdatedAt = time.Now().UTC()
	}
	result, err := tx.ExecContext(ctx,
		`INSERT INTO notes (owner_id, title, content, plain_content, content_updated_at, folder_id, is_auto_organized, ai_suggestions)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.OwnerID, n.Title, n.Content, n.PlainContent, n.ContentUpdatedAt, n.FolderID, n.IsAutoOrganized, n.AISuggestions)
	if err != nil {
		return fmt.Errorf("tx.ExecContext(insert note) > %w", err)
	}
	noteID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("result.LastInsertId() > %w", err)
	}
	n.ID = noteID

	for _, tag := range n.Tags {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO note_tags (note_id, tag_id) VALUES (?, ?)", noteID, tag.ID); err != nil {
			return fmt.Errorf("tx.ExecContext(insert note_tag) > %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("tx.Commit() > %w", err)
	}
	return nil
}

// CreateFolder inserts a folder, computing and enforcing its depth from the parent.
func (r *DBRepository) CreateFolder(ctx context.Context, f *Folder) error {
	if f.IsDefault && f.ParentID != nil {
		return ErrDefaultFolderNested
	}
	var parent *Folder
	if f.ParentID != nil {
		var p Folder
		err := r.db.GetContext(ctx, &p, "SELECT * FROM folders WHERE id = ?", *f.ParentID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("parent folder %d not found", *f.ParentID)
		}
		if err != nil {
			return fmt.Errorf("db.GetContext(parent folder) > %w", err)
		}
		parent = &p
	}
	depth, err := ChildDepth(parent)
	if err != nil {
		return err
	}
	f.Depth = depth

	result, err := r.db.ExecContext(ctx,
		"INSERT INTO folders (owner_id, name, color, parent_id, depth, is_default) VALUES (?, ?, ?, ?, ?, ?)",
		f.OwnerID, f.Name, f.Color, f.ParentID, f.Depth, f.IsDefault)
	if err != nil {
		return fmt.Errorf("db.ExecContext(insert folder) > %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("result.LastInsertId() > %w", err)
	}
	f.ID = id
	return nil
}

// FindOrCreateTag returns the owner's tag with the normalized name, creating it if needed.
func (r *DBRepository) FindOrCreateTag(ctx context.Context, ownerID int64, name string) (*Tag, error) {
	normalized, err := NormalizeTagName(name)
	if err != nil {
		return nil, err
	}

	var tag Tag
	err = r.db.GetContext(ctx, &tag, "SELECT * FROM tags WHERE owner_id = ? AND name = ?", ownerID, normalized)
	if err == nil {
		return &tag, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("db.GetContext(tag) > %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		"INSERT INTO tags (owner_id, name) VALUES (?, ?)", ownerID, normalized)
	if err != nil {
		return nil, fmt.Errorf("db.ExecContext(insert tag) > %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("result.LastInsertId() > %w", err)
	}
	return &Tag{ID: id, OwnerID: ownerID, Name: normalized}, nil
}

// UpdateNoteContent updates a note's body and bumps content_updated_at.
// A write with an identical body is a no-op so the staleness signal only
// moves on real content changes.
func (r *DBRepository) UpdateNoteContent(ctx context.Context, id int64, content, plainContent string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE notes SET content = ?, plain_content = ?, content_updated_at = NOW(6) WHERE id = ? AND content <> ?",
		content, plainContent, id, content)
	if err != nil {
		return fmt.Errorf("db.ExecContext(update note content) > %w", err)
	}
	return nil
}

// UpdateNoteTitle updates a note's title without touching content_updated_at.
func (r *DBRepository) UpdateNoteTitle(ctx context.Context, id int64, title string) error {
	_, err := r.db.ExecContext(ctx, "UPDATE notes SET title = ? WHERE id = ?", title, id)
	if err != nil {
		return fmt.Errorf("db.ExecContext(update note title) > %w", err)
	}
	return nil
}

// FindEmbedding returns the cached embedding record for a note, or nil if none exists.
func (r *DBRepository) FindEmbedding(ctx context.Context, noteID int64) (*EmbeddingRecord, error) {
	var row dbEmbedding
	err := r.db.GetContext(ctx, &row, "SELECT * FROM note_embeddings WHERE note_id = ?", noteID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("db.GetContext(note_embedding) > %w", err)
	}
	return &EmbeddingRecord{
		NoteID:          row.NoteID,
		Vector:          decodeVector(row.Vector),
		SourceUpdatedAt: row.SourceUpdatedAt,
		ModelID:         row.ModelID,
	}, nil
}

// UpsertEmbedding writes an embedding record unless a newer one is already
// stored. Ordering is by source timestamp, not wall-clock completion, so
// out-of-order completion of concurrent recomputations cannot regress the
// cache. Returns false when the write was discarded in favor of a newer record.
func (r *DBRepository) UpsertEmbedding(ctx context.Context, record *EmbeddingRecord) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO note_embeddings (note_id, vector, source_updated_at, model_id)
		 VALUES (?, ?, ?, ?) AS incoming
		 ON DUPLICATE KEY UPDATE
		   vector = IF(incoming.source_updated_at >= note_embeddings.source_updated_at, incoming.vector, note_embeddings.vector),
		   model_id = IF(incoming.source_updated_at >= note_embeddings.source_updated_at, incoming.model_id, note_embeddings.model_id),
		   source_updated_at = IF(incoming.source_updated_at >= note_embeddings.source_updated_at, incoming.source_updated_at, note_embeddings.source_updated_at)`,
		record.NoteID, encodeVector(record.Vector), record.SourceUpdatedAt, record.ModelID)
	if err != nil {
		return false, fmt.Errorf("db.ExecContext(upsert note_embedding) > %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("result.RowsAffected() > %w", err)
	}
	return rows > 0, nil
}

// InvalidateAllEmbeddings rewinds every record's source timestamp to the epoch
// so each note recomputes lazily on next access. Records are kept, not
// deleted, which makes the operation cheap and safe under live traffic.
func (r *DBRepository) InvalidateAllEmbeddings(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"UPDATE note_embeddings SET source_updated_at = '1970-01-01 00:00:01'")
	if err != nil {
		return 0, fmt.Errorf("db.ExecContext(invalidate note_embeddings) > %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("result.RowsAffected() > %w", err)
	}
	return rows, nil
}

func (r *DBRepository) loadRelations(ctx context.Context, notes []Note) error {
	if len(notes) == 0 {
		return nil
	}

	noteIDs := make([]int64, len(notes))
	noteMap := make(map[int64]*Note, len(notes))
	folderIDs := make([]int64, 0, len(notes))
	for i := range notes {
		noteIDs[i] = notes[i].ID
		noteMap[notes[i].ID] = &notes[i]
		if notes[i].FolderID != nil {
			folderIDs = append(folderIDs, *notes[i].FolderID)
		}
	}

	query, args, err := sqlx.In(
		`SELECT nt.note_id AS note_id, t.id AS id, t.owner_id AS owner_id, t.name AS name, t.created_at AS created_at, t.updated_at AS updated_at
		 FROM tags t JOIN note_tags nt ON t.id = nt.tag_id
		 WHERE nt.note_id IN (?) ORDER BY t.name`, noteIDs)
	if err != nil {
		return fmt.Errorf("sqlx.In(note_tags) > %w", err)
	}
	var rows []struct {
		NoteID int64 `db:"note_id"`
		Tag
	}
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("db.SelectContext(note_tags) > %w", err)
	}
	for _, row := range rows {
		n := noteMap[row.NoteID]
		n.Tags = append(n.Tags, row.Tag)
	}

	if len(folderIDs) == 0 {
		return nil
	}
	query, args, err = sqlx.In("SELECT * FROM folders WHERE id IN (?)", folderIDs)
	if err != nil {
		return fmt.Errorf("sqlx.In(folders) > %w", err)
	}
	var folders []Folder
	if err := r.db.SelectContext(ctx, &folders, r.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("db.SelectContext(folders) > %w", err)
	}
	folderMap := make(map[int64]*Folder, len(folders))
	for i := range folders {
		folderMap[folders[i].ID] = &folders[i]
	}
	for i := range notes {
		if notes[i].FolderID != nil {
			notes[i].Folder = folderMap[*notes[i].FolderID]
		}
	}
	return nil
}

func encodeVector(vector []float32) []byte {
	buf := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	vector := make([]float32, len(buf)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return vector
}
