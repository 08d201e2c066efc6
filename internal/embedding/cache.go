package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/quillnotes/quill/internal/normalize"
	"github.com/quillnotes/quill/internal/note"
)

// Store is the persistence surface the cache needs.
type Store interface {
	FindEmbedding(ctx context.Context, noteID int64) (*note.EmbeddingRecord, error)
	UpsertEmbedding(ctx context.Context, record *note.EmbeddingRecord) (bool, error)
	InvalidateAllEmbeddings(ctx context.Context) (int64, error)
}

// State classifies a cached record relative to its note.
type State int

const (
	StateMissing State = iota
	StateStale
	StateFresh
)

// Classify is the cache's staleness transition function. A record is fresh
// iff its source timestamp is at least the note's content timestamp and it
// was computed with the active model; anything else is stale or missing.
func Classify(record *note.EmbeddingRecord, contentUpdatedAt time.Time, modelID string) State {
	if record == nil {
		return StateMissing
	}
	if record.ModelID != modelID || record.SourceUpdatedAt.Before(contentUpdatedAt) {
		return StateStale
	}
	return StateFresh
}

// Cache serves per-note embedding vectors, recomputing lazily on miss or
// staleness. Concurrent recomputation for the same note is coalesced through
// singleflight; correctness does not depend on it because the store orders
// writes by source timestamp.
type Cache struct {
	store    Store
	provider Provider
	timeout  time.Duration
	group    singleflight.Group
}

// NewCache creates a cache over the given store and provider. timeout bounds
// each provider call.
func NewCache(store Store, provider Provider, timeout time.Duration) *Cache {
	return &Cache{
		store:    store,
		provider: provider,
		timeout:  timeout,
	}
}

// ModelID returns the active embedding model identifier.
func (c *Cache) ModelID() string {
	return c.provider.ModelID()
}

// GetOrCompute returns the note's embedding vector. A fresh cache hit makes
// no provider call. On miss or staleness the content is normalized, embedded
// and stored tagged with the note's current ContentUpdatedAt. If the provider
// fails and a previous vector exists, that last-known-good vector is returned
// instead; with no previous vector the failure propagates.
func (c *Cache) GetOrCompute(ctx context.Context, n *note.Note) ([]float32, error) {
	record, err := c.store.FindEmbedding(ctx, n.ID)
	if err != nil {
		return nil, fmt.Errorf("store.FindEmbedding() > %w", err)
	}
	if Classify(record, n.ContentUpdatedAt, c.provider.ModelID()) == StateFresh {
		return record.Vector, nil
	}

	vector, err := c.recompute(ctx, n)
	if err != nil {
		// Only provider failures degrade to the last known good vector.
		// Invalid input is the caller's problem and always surfaces.
		if record != nil && !errors.Is(err, ErrInvalidInput) {
			slog.Default().Debug("embedding recomputation failed, keeping last known good vector",
				"noteID", n.ID,
				"error", err)
			return record.Vector, nil
		}
		return nil, err
	}
	return vector, nil
}

// InvalidateAll marks every cached record stale without deleting it, forcing
// lazy recomputation on next read. Returns the number of records affected.
// Safe to run while serving traffic and idempotent.
func (c *Cache) InvalidateAll(ctx context.Context) (int64, error) {
	count, err := c.store.InvalidateAllEmbeddings(ctx)
	if err != nil {
		return 0, fmt.Errorf("store.InvalidateAllEmbeddings() > %w", err)
	}
	return count, nil
}

func (c *Cache) recompute(ctx context.Context, n *note.Note) ([]float32, error) {
	result, err, _ := c.group.Do(strconv.FormatInt(n.ID, 10), func() (interface{}, error) {
		text := normalize.Normalize(n.Content)
		if text == "" {
			return nil, fmt.Errorf("note %d has no content: %w", n.ID, ErrInvalidInput)
		}

		embedCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		vector, err := c.provider.Embed(embedCtx, text)
		if err != nil {
			return nil, fmt.Errorf("provider.Embed() > %w", err)
		}

		record := &note.EmbeddingRecord{
			NoteID:          n.ID,
			Vector:          vector,
			SourceUpdatedAt: n.ContentUpdatedAt,
			ModelID:         c.provider.ModelID(),
		}
		applied, err := c.store.UpsertEmbedding(ctx, record)
		if err != nil {
			return nil, fmt.Errorf("store.UpsertEmbedding() > %w", err)
		}
		if !applied {
			// A writer with a newer source timestamp won; use its record.
			newer, err := c.store.FindEmbedding(ctx, n.ID)
			if err == nil && newer != nil {
				return newer.Vector, nil
			}
		}
		return vector, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]float32), nil
}
