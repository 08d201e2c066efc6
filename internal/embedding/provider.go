// Package embedding maintains per-note embedding vectors: the provider
// boundary, the staleness-checked cache, and the vector math used by
// organization and search.
package embedding

import (
	"context"
	"errors"
)

//go:generate mockgen -source=provider.go -destination=../mocks/embedding/mock_provider.go -package=mock_embedding

// Provider turns normalized text into a fixed-length vector. Calls are
// network-bound and may fail transiently; implementations wrap any failure in
// ErrProviderUnavailable so callers can degrade instead of hard-failing.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ModelID() string
}

var (
	// ErrProviderUnavailable marks embedding backend failures: unreachable,
	// over quota, timed out, or a malformed response.
	ErrProviderUnavailable = errors.New("embedding provider unavailable")

	// ErrInvalidInput marks empty or non-text content passed to an engine
	// operation. Surfaced to the caller, never retried.
	ErrInvalidInput = errors.New("invalid input")
)
