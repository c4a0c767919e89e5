package rerank

import (
	"context"
	"time"

	"github.com/aman-cerp/agentmem/internal/config"
)

// New builds the reranker described by cfg: a no-op passthrough when no
// endpoint is configured, otherwise an HTTP cross-encoder client, wrapped
// in FailSoft and a serial queue so reranking never blocks on itself and
// never raises to the caller.
func New(ctx context.Context, cfg config.RerankerConfig) (Reranker, error) {
	if cfg.Endpoint == "" {
		return Wrap(NoOpReranker{}), nil
	}

	timeout := DefaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	client, err := NewHTTPReranker(ctx, HTTPConfig{
		Endpoint:        cfg.Endpoint,
		Model:           cfg.Model,
		Timeout:         timeout,
		SkipHealthCheck: cfg.SkipHealthCheck,
	})
	if err != nil {
		return nil, err
	}

	return Wrap(NewSerialQueue(client)), nil
}
