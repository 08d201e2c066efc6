// Package importer loads seed notes from YAML files into the store.
package importer

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/quillnotes/quill/internal/normalize"
	"github.com/quillnotes/quill/internal/note"
)

// NoteSeed is one note in a seed file.
type NoteSeed struct {
	Title   string   `yaml:"title"`
	Content string   `yaml:"content"`
	Folder  string   `yaml:"folder,omitempty"`
	Tags    []string `yaml:"tags,omitempty"`
}

// Seed is the root document of a seed file.
type Seed struct {
	Notes []NoteSeed `yaml:"notes"`
}

// Importer writes seed notes through the repository, creating folders and
// tags as needed.
type Importer struct {
	repo note.Repository
}

// NewImporter creates a new Importer.
func NewImporter(repo note.Repository) *Importer {
	return &Importer{repo: repo}
}

// ImportFile imports all notes from the YAML file for the owner and returns
// the number of notes created. Folders named in seeds are created at the
// root when missing.
func (im *Importer) ImportFile(ctx context.Context, ownerID int64, path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("os.ReadFile(%s) > %w", path, err)
	}

	var seed Seed
	if err := yaml.Unmarshal(content, &seed); err != nil {
		return 0, fmt.Errorf("yaml.Unmarshal() > %w", err)
	}

	folders, err := im.repo.FindFoldersByOwner(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("repo.FindFoldersByOwner() > %w", err)
	}
	folderByName := make(map[string]int64, len(folders))
	for _, folder := range folders {
		folderByName[folder.Name] = folder.ID
	}

	imported := 0
	for _, noteSeed := range seed.Notes {
		n := note.Note{
			OwnerID:      ownerID,
			Title:        noteSeed.Title,
			Content:      noteSeed.Content,
			PlainContent: normalize.Normalize(noteSeed.Content),
		}

		if noteSeed.Folder != "" {
			folderID, ok := folderByName[noteSeed.Folder]
			if !ok {
				folder := note.Folder{
					OwnerID: ownerID,
					Name:    noteSeed.Folder,
					Color:   note.FolderColorGray,
				}
				if err := im.repo.CreateFolder(ctx, &folder); err != nil {
					return imported, fmt.Errorf("repo.CreateFolder(%s) > %w", noteSeed.Folder, err)
				}
				folderID = folder.ID
				folderByName[folder.Name] = folderID
			}
			n.FolderID = &folderID
		}

		for _, tagName := range noteSeed.Tags {
			tag, err := im.repo.FindOrCreateTag(ctx, ownerID, tagName)
			if err != nil {
				return imported, fmt.Errorf("repo.FindOrCreateTag(%s) > %w", tagName, err)
			}
			n.Tags = append(n.Tags, *tag)
		}

		if err := im.repo.CreateNote(ctx, &n); err != nil {
			return imported, fmt.Errorf("repo.CreateNote(%s) > %w", n.Title, err)
		}
		imported++
	}

	return imported, nil
}
