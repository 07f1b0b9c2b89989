// Package embedding turns document content into vectors for the similarity index.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/yungbote/docsync-backend/internal/platform/logger"
)

// Embedder maps a text to a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Provider is the batch embedding call of the model API.
type Provider interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

type cachedEmbedder struct {
	log      *logger.Logger
	provider Provider
	cache    *lru.Cache[string, []float32]
}

// NewCachedEmbedder wraps provider with an LRU keyed by the content hash, so
// re-ingesting or re-indexing unchanged documents does not call the API again.
func NewCachedEmbedder(log *logger.Logger, provider Provider, size int) (Embedder, error) {
	if provider == nil {
		return nil, fmt.Errorf("embedding provider required")
	}
	if size <= 0 {
		size = 512
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &cachedEmbedder{
		log:      log.With("service", "Embedder"),
		provider: provider,
		cache:    cache,
	}, nil
}

func (e *cachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := contentKey(text)
	if vec, ok := e.cache.Get(key); ok {
		return vec, nil
	}
	vecs, err := e.provider.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("embed: provider returned no vector")
	}
	e.cache.Add(key, vecs[0])
	e.log.Debug("embedded content", "chars", len(text), "dim", len(vecs[0]))
	return vecs[0], nil
}

func contentKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
