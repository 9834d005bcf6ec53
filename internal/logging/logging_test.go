package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alznet/niev/internal/config"
)

func TestSetup(t *testing.T) {
	defer func() {
		logrus.SetLevel(logrus.InfoLevel)
		logrus.SetFormatter(&logrus.TextFormatter{})
		logrus.SetOutput(os.Stderr)
	}()

	require.NoError(t, Setup(config.LoggingConfig{Level: "debug", Format: "json"}))
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logrus.StandardLogger().Formatter)

	require.NoError(t, Setup(config.LoggingConfig{}))
	assert.Equal(t, logrus.InfoLevel, logrus.GetLevel())

	assert.Error(t, Setup(config.LoggingConfig{Level: "loud"}))
}

func TestOutputWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "niev.log")
	out := Output(config.LoggingConfig{File: path, MaxSizeMB: 1})
	assert.NotEqual(t, os.Stderr, out)

	_, err := out.Write([]byte("hello\n"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))

	assert.Equal(t, os.Stderr, Output(config.LoggingConfig{}))
}
