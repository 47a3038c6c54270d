package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/elonfeng/toonrank/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupStderr(t *testing.T) {
	closer, err := Setup(config.LogConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)
	t.Cleanup(func() { closer.Close() })

	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logrus.StandardLogger().Formatter)
}

func TestSetupFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "toonrank.log")
	closer, err := Setup(config.LogConfig{Level: "info", File: path, MaxSizeMB: 1})
	require.NoError(t, err)

	logrus.WithField("query", "tom and jerry").Info("resolved")
	require.NoError(t, closer.Close())
	logrus.SetOutput(os.Stderr)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "tom and jerry")
}

func TestSetupRejectsBadValues(t *testing.T) {
	_, err := Setup(config.LogConfig{Level: "loud"})
	assert.Error(t, err)

	_, err = Setup(config.LogConfig{Level: "info", Format: "xml"})
	assert.Error(t, err)
}
