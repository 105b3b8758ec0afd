package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "opsboard.log")
	require.NoError(t, Init(Config{Level: "debug", OutputFile: path, MaxSize: 1}))
	assert.Equal(t, path, CurrentLogFile())
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())

	Quiet()
	WithField("module", "test").Info("hello file")
	logrus.WithField("module", "poll").Warn("from the std logger")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello file")
	assert.Contains(t, string(data), "module=poll")
}

func TestInit_UnknownLevelFallsBackToInfo(t *testing.T) {
	require.NoError(t, Init(Config{Level: "chatty"}))
	assert.Equal(t, logrus.InfoLevel, Logger.GetLevel())
	assert.Empty(t, CurrentLogFile())
	Quiet()
}
