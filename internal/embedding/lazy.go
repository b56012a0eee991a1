package embedding

import (
	"context"
	"fmt"
	"sync"
)

// Lazy defers construction of an Embedder until first use. Construction can
// be expensive (remote client setup, credential checks), so servers pre-warm
// it in the background after the MCP handshake instead of paying the cost on
// the first search.
type Lazy struct {
	name    string
	dim     int
	factory func() (Embedder, error)

	mu       sync.Mutex
	embedder Embedder
	initErr  error
	done     bool
}

// NewLazy wraps factory. name and dim are known statically so callers can
// describe the embedder before it exists.
func NewLazy(name string, dim int, factory func() (Embedder, error)) *Lazy {
	return &Lazy{name: name, dim: dim, factory: factory}
}

func (l *Lazy) Name() string { return l.name }

func (l *Lazy) Dim() int { return l.dim }

// Ready reports whether the underlying embedder initialised successfully.
func (l *Lazy) Ready() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done && l.initErr == nil
}

// Prewarm initialises the embedder and runs one throwaway embedding so model
// state is hot. Safe to call concurrently with queries.
func (l *Lazy) Prewarm(ctx context.Context) error {
	e, err := l.get()
	if err != nil {
		return err
	}
	_, err = e.Embed(ctx, "warm up")
	return err
}

// Embed initialises on first call, then delegates.
func (l *Lazy) Embed(ctx context.Context, text string) ([]float32, error) {
	e, err := l.get()
	if err != nil {
		return nil, err
	}
	return e.Embed(ctx, text)
}

func (l *Lazy) get() (Embedder, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.done {
		l.embedder, l.initErr = l.factory()
		l.done = true
	}
	if l.initErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotReady, l.initErr)
	}
	return l.embedder, nil
}
