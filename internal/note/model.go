// Package note provides the note, folder and tag domain models and
// repository interfaces backing the organization and search engine.
package note

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// MaxFolderDepth is the deepest allowed folder nesting (root=0, child=1, grandchild=2).
	MaxFolderDepth = 2

	// MaxTagNameLength is the longest allowed normalized tag name.
	MaxTagNameLength = 50
)

var (
	// ErrFolderTooDeep is returned when a folder create or move would exceed MaxFolderDepth.
	ErrFolderTooDeep = errors.New("folder nesting exceeds maximum depth")

	// ErrEmptyTagName is returned when a tag name normalizes to the empty string.
	ErrEmptyTagName = errors.New("tag name is empty")

	// ErrTagNameTooLong is returned when a tag name exceeds MaxTagNameLength after normalization.
	ErrTagNameTooLong = errors.New("tag name exceeds maximum length")

	// ErrDefaultFolderNested is returned when a default folder would be created
	// under a parent. The default folder always lives at the root.
	ErrDefaultFolderNested = errors.New("default folder cannot have a parent")
)

// Note represents a single note owned by a user.
//
// ContentUpdatedAt changes if and only if the content body changes. It is the
// sole staleness signal for the embedding cache, so metadata-only edits must
// never touch it.
type Note struct {
	ID               int64     `db:"id" yaml:"id"`
	OwnerID          int64     `db:"owner_id" yaml:"owner_id"`
	Title            string    `db:"title" yaml:"title"`
	Content          string    `db:"content" yaml:"content"`
	PlainContent     string    `db:"plain_content" yaml:"plain_content,omitempty"`
	ContentUpdatedAt time.Time `db:"content_updated_at" yaml:"content_updated_at"`
	FolderID         *int64    `db:"folder_id" yaml:"folder_id,omitempty"`
	IsAutoOrganized  bool      `db:"is_auto_organized" yaml:"is_auto_organized"`
	AISuggestions    []byte    `db:"ai_suggestions" yaml:"-"`
	CreatedAt        time.Time `db:"created_at" yaml:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" yaml:"updated_at"`
	Tags             []Tag     `db:"-" yaml:"tags,omitempty"`
	Folder           *Folder   `db:"-" yaml:"-"`
}

// FolderColor is the display color of a folder.
type FolderColor string

const (
	FolderColorGray   FolderColor = "gray"
	FolderColorRed    FolderColor = "red"
	FolderColorOrange FolderColor = "orange"
	FolderColorYellow FolderColor = "yellow"
	FolderColorGreen  FolderColor = "green"
	FolderColorBlue   FolderColor = "blue"
	FolderColorPurple FolderColor = "purple"
	FolderColorPink   FolderColor = "pink"
)

// Folder represents a folder in a user's folder tree.
// Each user has exactly one default folder, which is never deleted and never
// reparented below depth 0.
type Folder struct {
	ID        int64       `db:"id" yaml:"id"`
	OwnerID   int64       `db:"owner_id" yaml:"owner_id"`
	Name      string      `db:"name" yaml:"name"`
	Color     FolderColor `db:"color" yaml:"color"`
	ParentID  *int64      `db:"parent_id" yaml:"parent_id,omitempty"`
	Depth     int         `db:"depth" yaml:"depth"`
	IsDefault bool        `db:"is_default" yaml:"is_default"`
	CreatedAt time.Time   `db:"created_at" yaml:"created_at"`
	UpdatedAt time.Time   `db:"updated_at" yaml:"updated_at"`
}

// ChildDepth returns the depth a new child of parent would have.
// A nil parent means a root folder. Returns ErrFolderTooDeep when the
// resulting depth would exceed MaxFolderDepth; callers must reject the write.
func ChildDepth(parent *Folder) (int, error) {
	if parent == nil {
		return 0, nil
	}
	depth := parent.Depth + 1
	if depth > MaxFolderDepth {
		return 0, fmt.Errorf("parent %q at depth %d: %w", parent.Name, parent.Depth, ErrFolderTooDeep)
	}
	return depth, nil
}

// Tag represents a user-scoped tag. Names are unique per owner.
type Tag struct {
	ID        int64     `db:"id" yaml:"id"`
	OwnerID   int64     `db:"owner_id" yaml:"owner_id"`
	Name      string    `db:"name" yaml:"name"`
	CreatedAt time.Time `db:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `db:"updated_at" yaml:"updated_at"`
}

// NormalizeTagName lowercases and trims a tag name and enforces the length limit.
func NormalizeTagName(name string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "", ErrEmptyTagName
	}
	if len(normalized) > MaxTagNameLength {
		return "", fmt.Errorf("%q: %w", normalized, ErrTagNameTooLong)
	}
	return normalized, nil
}

// EmbeddingRecord is the cached embedding for a single note.
//
// A record never outlives its note: deleting the note deletes the record.
// SourceUpdatedAt is the ContentUpdatedAt the vector was computed from;
// a record is valid only while SourceUpdatedAt >= the note's ContentUpdatedAt
// and ModelID matches the active embedding model.
type EmbeddingRecord struct {
	NoteID          int64     `db:"note_id"`
	Vector          []float32 `db:"-"`
	SourceUpdatedAt time.Time `db:"source_updated_at"`
	ModelID         string    `db:"model_id"`
}
