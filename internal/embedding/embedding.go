// Package embedding turns work-item text into fixed-length vectors for
// semantic search. The default embedder is local and deterministic; an Azure
// OpenAI embedder can be selected through configuration. Both produce
// 384-dimension vectors.
package embedding

import (
	"context"
	"errors"
)

// ErrNotReady is returned when a query needs the model before lazy
// initialisation has completed (or after it failed).
var ErrNotReady = errors.New("embedding model not ready")

// Embedder computes a fixed-length vector for a text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dim() int
	Name() string
}
