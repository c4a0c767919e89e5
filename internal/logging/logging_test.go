package logging

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetup_WritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Level:         "debug",
		FilePath:      filepath.Join(dir, "memoryd.log"),
		MaxSizeMB:     1,
		MaxFiles:      2,
		WriteToStderr: false,
	}

	logger, cleanup, err := Setup(cfg)
	require.NoError(t, err)
	defer cleanup()

	logger.Info("embedding cache miss", "entity_id", "e1")
	require.FileExists(t, cfg.FilePath)
}

func TestParseLevel_UnknownDefaultsToInfo(t *testing.T) {
	require.Equal(t, parseLevel("info"), parseLevel("bogus"))
}
