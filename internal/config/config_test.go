package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_WeightsSumToOne(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.Validate())
}

func TestLoad_ProjectFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	yamlContent := "search:\n  rrf_constant: 100\nadaptive:\n  epsilon: 0.2\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".memoryd.yaml"), []byte(yamlContent), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Search.RRFConstant)
	assert.Equal(t, 0.2, cfg.Adaptive.Epsilon)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	yamlContent := "embeddings:\n  model: all-minilm\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".memoryd.yaml"), []byte(yamlContent), 0o644))
	t.Setenv("EMBEDDING_MODEL", "mxbai-embed-large")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "mxbai-embed-large", cfg.Embeddings.Model)
}

func TestValidate_RejectsBadWeightSum(t *testing.T) {
	cfg := NewConfig()
	cfg.Search.BM25Weight = 0.9
	assert.Error(t, cfg.Validate())
}
