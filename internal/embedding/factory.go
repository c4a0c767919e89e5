package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/aman-cerp/agentmem/internal/config"
)

// New builds the embedder stack described by cfg: a provider (ollama or
// static), wrapped in a TTL cache, wrapped in a serial queue so exactly one
// inference runs at a time.
func New(ctx context.Context, cfg config.EmbeddingsConfig) (Embedder, error) {
	var provider Embedder
	var err error

	switch cfg.Provider {
	case "", "ollama":
		oc := DefaultOllamaConfig()
		oc.Host = cfg.OllamaHost
		oc.Model = cfg.Model
		oc.BatchSize = cfg.BatchSize
		provider, err = NewOllamaEmbedder(ctx, oc)
	case "static":
		provider = NewStaticEmbedder()
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	cached := NewCachedEmbedder(provider, cfg.CacheSize, time.Duration(cfg.CacheTTLSeconds)*time.Second)
	return NewSerialQueue(cached), nil
}
