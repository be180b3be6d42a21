package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewRunWritesToStableFile(t *testing.T) {
	dir := t.TempDir()

	log, err := NewRun("prod", dir, "import")
	require.NoError(t, err)

	assert.NotEmpty(t, log.RunID)
	assert.Equal(t, filepath.Join(dir, "import-"+log.RunID+".log"), log.Path)

	log.With("course", 12).Info("course imported", "new_id", 40)
	require.NoError(t, log.Close())

	data, err := os.ReadFile(log.Path)
	require.NoError(t, err)

	line := strings.TrimSpace(string(data))
	assert.Contains(t, line, `"msg":"course imported"`)
	assert.Contains(t, line, `"course":12`)
	assert.Contains(t, line, `"run_id":"`+log.RunID+`"`)
}

func TestLevelsPerMode(t *testing.T) {
	prod, err := New("production")
	require.NoError(t, err)
	assert.False(t, prod.SugaredLogger.Desugar().Core().Enabled(zap.DebugLevel))
	assert.True(t, prod.SugaredLogger.Desugar().Core().Enabled(zap.InfoLevel))

	dev, err := New("development")
	require.NoError(t, err)
	assert.True(t, dev.SugaredLogger.Desugar().Core().Enabled(zap.DebugLevel))
}

func TestRunFileKeepsDebugInProduction(t *testing.T) {
	log, err := NewRun("prod", t.TempDir(), "export")
	require.NoError(t, err)

	log.Debug("ref resolved", "old_id", 7)
	require.NoError(t, log.Close())

	data, err := os.ReadFile(log.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"ref resolved"`)
}

func TestNopLogger(t *testing.T) {
	log := NewNop()
	log.Warn("nothing happens", "k", "v")
	assert.NoError(t, log.Close())
	assert.Empty(t, log.Path)
}
