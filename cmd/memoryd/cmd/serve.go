package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aman-cerp/agentmem/internal/adaptive"
	"github.com/aman-cerp/agentmem/internal/cache"
	"github.com/aman-cerp/agentmem/internal/config"
	"github.com/aman-cerp/agentmem/internal/embedding"
	"github.com/aman-cerp/agentmem/internal/facade"
	"github.com/aman-cerp/agentmem/internal/mcp"
	"github.com/aman-cerp/agentmem/internal/metrics"
	"github.com/aman-cerp/agentmem/internal/profiling"
	"github.com/aman-cerp/agentmem/internal/rerank"
	"github.com/aman-cerp/agentmem/internal/search"
	"github.com/aman-cerp/agentmem/internal/store"
)

func newServeCmd() *cobra.Command {
	var transport string
	var cpuProfile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the memory service's tool-call server",
		Long:  `Start memoryd as an MCP-style server exposing mutate_memory, query_memory, analyze_graph, and manage_system over stdio (spec §6).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if cpuProfile != "" {
				cleanup, err := profiling.NewProfiler().StartCPU(cpuProfile)
				if err != nil {
					return fmt.Errorf("start cpu profile: %w", err)
				}
				defer cleanup()
			}

			return runServe(ctx, transport)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport to serve on (stdio)")
	cmd.Flags().StringVar(&cpuProfile, "cpuprofile", "", "Write a CPU profile to this path before exiting")
	return cmd
}

// core bundles every component a running memoryd instance needs, so
// serve and doctor can share one construction path.
type core struct {
	cfg        *config.Config
	relational store.RelationalStore
	content    store.VectorStore
	name       store.VectorStore
	fullText   store.FullTextIndex
	embedder   embedding.Embedder
	reranker   rerank.Reranker
	facade     *facade.Facade
	metrics    *metrics.Metrics
	shutdown   func(context.Context) error
}

func buildCore(ctx context.Context, dir string) (*core, error) {
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dataDir != "" {
		cfg.Server.DataDir = dataDir
	}
	if err := os.MkdirAll(cfg.Server.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	rs, err := store.NewSQLiteStore(filepath.Join(cfg.Server.DataDir, "memory.db"))
	if err != nil {
		return nil, fmt.Errorf("open relational store: %w", err)
	}
	breaker := store.NewBreakerStore(rs, store.BreakerConfig{})

	emb, err := embedding.New(ctx, cfg.Embeddings)
	if err != nil {
		_ = rs.Close()
		return nil, fmt.Errorf("build embedder: %w", err)
	}

	vecCfg := store.VectorStoreConfig{
		Dimensions:     emb.Dimensions(),
		Metric:         vectorMetric(cfg.Vector.Distance),
		M:              cfg.Vector.M,
		EfConstruction: cfg.Vector.EfConstruction,
		EfSearch:       cfg.Vector.EfSearch,
	}

	content, err := store.NewHNSWStore(vecCfg)
	if err != nil {
		_ = rs.Close()
		return nil, fmt.Errorf("open content vector store: %w", err)
	}
	nameIdx, err := store.NewHNSWStore(vecCfg)
	if err != nil {
		_ = rs.Close()
		_ = content.Close()
		return nil, fmt.Errorf("open name vector store: %w", err)
	}

	ft, err := store.NewBleveFullTextIndex(filepath.Join(cfg.Server.DataDir, "fulltext.bleve"), store.DefaultBM25Config())
	if err != nil {
		_ = rs.Close()
		_ = content.Close()
		_ = nameIdx.Close()
		return nil, fmt.Errorf("open fulltext index: %w", err)
	}

	rr, err := rerank.New(ctx, cfg.Reranker)
	if err != nil {
		_ = rs.Close()
		_ = content.Close()
		_ = nameIdx.Close()
		_ = ft.Close()
		return nil, fmt.Errorf("build reranker: %w", err)
	}

	met, shutdown, err := metrics.InitProvider(ctx, metrics.ProviderConfig{ServiceName: "memoryd"})
	if err != nil {
		slog.Warn("metrics_disabled", slog.String("error", err.Error()))
		met, shutdown = nil, func(context.Context) error { return nil }
	}

	c := cache.New(rs, cache.Options{
		MemoryTTL:        time.Duration(cfg.Cache.MemoryTTLSeconds) * time.Second,
		EnableNearHit:    cfg.Cache.EnableSemanticNearHit,
		NearHitThreshold: cfg.Cache.NearHitThreshold,
	})

	pipeline := &search.Pipeline{
		Embedder:    emb,
		Relational:  breaker,
		Content:     content,
		Name:        nameIdx,
		FullText:    ft,
		Cache:       c,
		Reranker:    rr,
		Weights:     search.Weights{BM25: cfg.Search.BM25Weight, Semantic: cfg.Search.VectorWeight, Graph: cfg.Search.GraphWeight},
		RRFConstant: cfg.Search.RRFConstant,
		FusionMode:  search.FusionRRF,
		Metrics:     met,
	}
	indexer := &search.Indexer{Embedder: emb, Relational: rs, Content: content, Name: nameIdx, FullText: ft}
	selector := adaptive.NewSelector(breaker, cfg.Adaptive.Epsilon)
	if err := selector.Load(ctx); err != nil {
		slog.Warn("selector_load_failed", slog.String("error", err.Error()))
	}

	f := facade.New(breaker, c, emb, pipeline, indexer, selector)
	f.Metrics = met

	return &core{
		cfg:        cfg,
		relational: rs,
		content:    content,
		name:       nameIdx,
		fullText:   ft,
		embedder:   emb,
		reranker:   rr,
		facade:     f,
		metrics:    met,
		shutdown:   shutdown,
	}, nil
}

func (c *core) Close(ctx context.Context) {
	_ = c.fullText.Close()
	_ = c.name.Close()
	_ = c.content.Close()
	_ = c.relational.Close()
	_ = c.shutdown(ctx)
}

// vectorMetric translates config.VectorConfig.Distance ("cosine"/"l2")
// into the store package's short metric names ("cos"/"l2").
func vectorMetric(distance string) string {
	if distance == "l2" {
		return "l2"
	}
	return "cos"
}

func runServe(ctx context.Context, transport string) error {
	root, err := os.Getwd()
	if err != nil {
		return err
	}

	c, err := buildCore(ctx, root)
	if err != nil {
		return err
	}
	defer c.Close(context.Background())

	server := mcp.NewServer(c.facade)
	return server.Serve(ctx, transport)
}
