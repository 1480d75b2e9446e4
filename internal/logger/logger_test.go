package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_ConsoleOnly(t *testing.T) {
	l, err := Init(Options{Verbose: true})
	require.NoError(t, err)
	assert.False(t, l.GetLevel().String() == "")
}

func TestInit_WithFileSink(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tbeg.log")

	l, err := Init(Options{FilePath: path})
	require.NoError(t, err)
	l.Info().Msg("hello")
	Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}
