package telemetry_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chatmod/chatmod/internal/setup/config"
	"github.com/chatmod/chatmod/internal/setup/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerCreatesLatestSymlink(t *testing.T) {
	t.Parallel()

	logDir := t.TempDir()
	lm := telemetry.NewManager(logDir, &config.Debug{LogLevel: "info", MaxLogsToKeep: 5})

	logger, err := lm.GetLogger()
	require.NoError(t, err)
	require.NotNil(t, logger)

	target, err := os.Readlink(filepath.Join(logDir, "latest"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(lm.GetCurrentSessionDir()), target)

	_, err = os.Stat(filepath.Join(logDir, "latest", "main.log"))
	require.NoError(t, err)
}

func TestManagerDefaultsEmptyLogLevel(t *testing.T) {
	t.Parallel()

	lm := telemetry.NewManager(t.TempDir(), &config.Debug{MaxLogsToKeep: 5})

	logger, err := lm.GetLogger()
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestManagerRotationSparesLatestSymlink(t *testing.T) {
	t.Parallel()

	logDir := t.TempDir()

	for _, name := range []string{"2000-01-01_00-00-00", "2000-01-02_00-00-00"} {
		require.NoError(t, os.Mkdir(filepath.Join(logDir, name), 0o755))
	}

	lm := telemetry.NewManager(logDir, &config.Debug{LogLevel: "debug", MaxLogsToKeep: 1})

	_, err := lm.GetLogger()
	require.NoError(t, err)

	_, err = os.Readlink(filepath.Join(logDir, "latest"))
	require.NoError(t, err)
	assert.DirExists(t, lm.GetCurrentSessionDir())
}
