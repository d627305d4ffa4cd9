package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_DisabledDiscards(t *testing.T) {
	l, err := New(Options{})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zap.ErrorLevel))
}

func TestNew_BadOptions(t *testing.T) {
	_, err := New(Options{Enabled: true, Level: "loud"})
	require.Error(t, err)

	_, err = New(Options{Enabled: true, Format: "xml"})
	require.Error(t, err)
}

func TestInit_WritesJSONFile(t *testing.T) {
	saved := L
	defer func() { L = saved }()

	path := filepath.Join(t.TempDir(), "blockmem.log")
	require.NoError(t, Init(Options{
		Enabled:  true,
		Level:    "debug",
		Format:   "json",
		Filename: path,
	}))

	Info("chunk created", zap.Int("capacity", 4096))
	Debug("trace")
	require.NoError(t, Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"chunk created"`)
	assert.Contains(t, string(data), `"capacity":4096`)
	assert.Contains(t, string(data), `"msg":"trace"`)
}

func TestInit_LevelFilters(t *testing.T) {
	saved := L
	defer func() { L = saved }()

	path := filepath.Join(t.TempDir(), "warn.log")
	require.NoError(t, Init(Options{Enabled: true, Level: "warn", Filename: path}))

	Info("hidden")
	Warn("shown")
	Named("blockalloc").Error("named")
	require.NoError(t, Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")
	assert.Contains(t, string(data), "blockalloc")
}
