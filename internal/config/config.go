// Package config loads the memory core's tunables: hybrid-search weights,
// cache TTLs, adaptive-selector parameters, and vector-index geometry.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete runtime configuration for the memory service.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Cache      CacheConfig      `yaml:"cache" json:"cache"`
	Adaptive   AdaptiveConfig   `yaml:"adaptive" json:"adaptive"`
	Vector     VectorConfig     `yaml:"vector" json:"vector"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Reranker   RerankerConfig   `yaml:"reranker" json:"reranker"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// SearchConfig configures hybrid-search fusion.
type SearchConfig struct {
	// BM25Weight, VectorWeight, and GraphWeight must sum to 1.0.
	BM25Weight   float64 `yaml:"bm25_weight" json:"bm25_weight"`
	VectorWeight float64 `yaml:"vector_weight" json:"vector_weight"`
	GraphWeight  float64 `yaml:"graph_weight" json:"graph_weight"`

	// RRFConstant is the RRF fusion smoothing parameter k (default 60).
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`

	MaxResults int `yaml:"max_results" json:"max_results"`
}

// CacheConfig configures the two-tier retrieval cache.
type CacheConfig struct {
	MemoryTTLSeconds      int     `yaml:"memory_ttl_seconds" json:"memory_ttl_seconds"`
	EnableSemanticNearHit bool    `yaml:"enable_semantic_near_hit" json:"enable_semantic_near_hit"`
	NearHitThreshold      float64 `yaml:"near_hit_threshold" json:"near_hit_threshold"`
}

// AdaptiveConfig configures the ε-greedy strategy selector.
type AdaptiveConfig struct {
	Epsilon     float64 `yaml:"epsilon" json:"epsilon"`
	RewardDecay float64 `yaml:"reward_decay" json:"reward_decay"`
	CostPenalty float64 `yaml:"cost_penalty" json:"cost_penalty"`
}

// VectorConfig configures the HNSW index geometry.
type VectorConfig struct {
	M              int    `yaml:"m" json:"m"`
	EfConstruction int    `yaml:"ef_construction" json:"ef_construction"`
	EfSearch       int    `yaml:"ef_search" json:"ef_search"`
	Distance       string `yaml:"distance" json:"distance"` // "cosine" or "l2"
}

// EmbeddingsConfig configures the embedding backend.
type EmbeddingsConfig struct {
	Provider        string `yaml:"provider" json:"provider"` // "ollama" or "static"
	Model           string `yaml:"model" json:"model"`
	OllamaHost      string `yaml:"ollama_host" json:"ollama_host"`
	BatchSize       int    `yaml:"batch_size" json:"batch_size"`
	CacheSize       int    `yaml:"cache_size" json:"cache_size"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds" json:"cache_ttl_seconds"`
}

// RerankerConfig configures the cross-encoder reranker.
type RerankerConfig struct {
	Model     string `yaml:"model" json:"model"`
	BatchSize int    `yaml:"batch_size" json:"batch_size"`
	// Endpoint is the cross-encoder server URL. Empty disables reranking;
	// search requests with rerank=true then fall back to a no-op reranker.
	Endpoint        string `yaml:"endpoint" json:"endpoint"`
	TimeoutSeconds  int    `yaml:"timeout_seconds" json:"timeout_seconds"`
	SkipHealthCheck bool   `yaml:"-" json:"-"`
}

// ServerConfig configures the façade transport.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
	DataDir   string `yaml:"data_dir" json:"data_dir"`
}

// NewConfig returns defaults matching the open-question decisions in DESIGN.md.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Search: SearchConfig{
			BM25Weight:   0.4,
			VectorWeight: 0.4,
			GraphWeight:  0.2,
			RRFConstant:  60,
			MaxResults:   20,
		},
		Cache: CacheConfig{
			MemoryTTLSeconds:      300,
			EnableSemanticNearHit: false,
			NearHitThreshold:      0.95,
		},
		Adaptive: AdaptiveConfig{
			Epsilon:     0.1,
			RewardDecay: 0.8,
			CostPenalty: 0.15,
		},
		Vector: VectorConfig{
			M:              16,
			EfConstruction: 200,
			EfSearch:       64,
			Distance:       "cosine",
		},
		Embeddings: EmbeddingsConfig{
			Provider:        "",
			Model:           "nomic-embed-text",
			OllamaHost:      "",
			BatchSize:       32,
			CacheSize:       1000,
			CacheTTLSeconds: 3600,
		},
		Reranker: RerankerConfig{
			Model:          "",
			BatchSize:      16,
			Endpoint:       "",
			TimeoutSeconds: 30,
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
			DataDir:   defaultDataDir(),
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".memoryd")
	}
	return filepath.Join(home, ".memoryd")
}

// Load loads configuration applied in order of increasing precedence:
//  1. Hardcoded defaults
//  2. Project config (.memoryd.yaml in dir)
//  3. Environment variables
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{".memoryd.yaml", ".memoryd.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return c.loadYAML(path)
		}
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith overlays non-zero values from other onto c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Search.BM25Weight != 0 {
		c.Search.BM25Weight = other.Search.BM25Weight
	}
	if other.Search.VectorWeight != 0 {
		c.Search.VectorWeight = other.Search.VectorWeight
	}
	if other.Search.GraphWeight != 0 {
		c.Search.GraphWeight = other.Search.GraphWeight
	}
	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}
	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
	}

	if other.Cache.MemoryTTLSeconds != 0 {
		c.Cache.MemoryTTLSeconds = other.Cache.MemoryTTLSeconds
	}
	if other.Cache.NearHitThreshold != 0 {
		c.Cache.NearHitThreshold = other.Cache.NearHitThreshold
	}

	if other.Adaptive.Epsilon != 0 {
		c.Adaptive.Epsilon = other.Adaptive.Epsilon
	}
	if other.Adaptive.RewardDecay != 0 {
		c.Adaptive.RewardDecay = other.Adaptive.RewardDecay
	}
	if other.Adaptive.CostPenalty != 0 {
		c.Adaptive.CostPenalty = other.Adaptive.CostPenalty
	}

	if other.Vector.M != 0 {
		c.Vector.M = other.Vector.M
	}
	if other.Vector.EfConstruction != 0 {
		c.Vector.EfConstruction = other.Vector.EfConstruction
	}
	if other.Vector.EfSearch != 0 {
		c.Vector.EfSearch = other.Vector.EfSearch
	}
	if other.Vector.Distance != "" {
		c.Vector.Distance = other.Vector.Distance
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}
	if other.Embeddings.CacheTTLSeconds != 0 {
		c.Embeddings.CacheTTLSeconds = other.Embeddings.CacheTTLSeconds
	}

	if other.Reranker.Model != "" {
		c.Reranker.Model = other.Reranker.Model
	}
	if other.Reranker.BatchSize != 0 {
		c.Reranker.BatchSize = other.Reranker.BatchSize
	}
	if other.Reranker.Endpoint != "" {
		c.Reranker.Endpoint = other.Reranker.Endpoint
	}
	if other.Reranker.TimeoutSeconds != 0 {
		c.Reranker.TimeoutSeconds = other.Reranker.TimeoutSeconds
	}

	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
	if other.Server.DataDir != "" {
		c.Server.DataDir = other.Server.DataDir
	}
}

// applyEnvOverrides applies EMBEDDING_MODEL/RERANKER_MODEL and MEMORYD_*
// environment variable overrides, highest precedence.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("RERANKER_MODEL"); v != "" {
		c.Reranker.Model = v
	}
	if v := os.Getenv("RERANKER_ENDPOINT"); v != "" {
		c.Reranker.Endpoint = v
	}
	if v := os.Getenv("MEMORYD_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("MEMORYD_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("MEMORYD_TRANSPORT"); v != "" {
		c.Server.Transport = v
	}
	if v := os.Getenv("MEMORYD_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFConstant = k
		}
	}
	if v := os.Getenv("MEMORYD_ADAPTIVE_EPSILON"); v != "" {
		if e, err := strconv.ParseFloat(v, 64); err == nil && e >= 0 && e <= 1 {
			c.Adaptive.Epsilon = e
		}
	}
}

// Validate checks invariants the search and adaptive components rely on.
func (c *Config) Validate() error {
	sum := c.Search.BM25Weight + c.Search.VectorWeight + c.Search.GraphWeight
	if math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("search weights must sum to 1.0, got %.2f", sum)
	}
	if c.Search.MaxResults < 0 {
		return fmt.Errorf("max_results must be non-negative, got %d", c.Search.MaxResults)
	}
	if c.Adaptive.Epsilon < 0 || c.Adaptive.Epsilon > 1 {
		return fmt.Errorf("adaptive.epsilon must be between 0 and 1, got %f", c.Adaptive.Epsilon)
	}

	validTransports := map[string]bool{"stdio": true, "sse": true}
	if !validTransports[strings.ToLower(c.Server.Transport)] {
		return fmt.Errorf("server.transport must be 'stdio' or 'sse', got %s", c.Server.Transport)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	if c.Vector.Distance != "cosine" && c.Vector.Distance != "l2" {
		return fmt.Errorf("vector.distance must be 'cosine' or 'l2', got %s", c.Vector.Distance)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
