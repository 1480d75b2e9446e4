package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jogakdal/tbeg/pkg/tbeg/model"
)

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, model.DefaultConfig(), cfg)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tbeg.yaml")
	content := "streaming_mode: enabled\nstreaming_row_threshold: 1000\nmissing_data_behavior: throw\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, model.StreamingEnabled, cfg.StreamingMode)
	assert.Equal(t, 1000, cfg.StreamingRowThreshold)
	assert.Equal(t, model.MissingDataThrow, cfg.MissingDataBehavior)
}
