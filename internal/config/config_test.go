package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/victornm/olympiad/internal/config"
)

type testConfig struct {
	HTTP struct {
		Port int32
	}

	Session struct {
		WarningCeiling int
		Autosave       bool
	}

	Proctoring struct {
		CaptureInterval time.Duration
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
http:
  port: 8080
session:
  autosave: true
proctoring:
  captureinterval: 45s
`), 0o600))

	var c testConfig
	c.Session.WarningCeiling = 5

	require.NoError(t, config.Load(file, &c))
	require.EqualValues(t, 8080, c.HTTP.Port)
	require.True(t, c.Session.Autosave)
	require.Equal(t, 5, c.Session.WarningCeiling, "default should survive when the file does not set it")
	require.Equal(t, 45*time.Second, c.Proctoring.CaptureInterval)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")

	var c testConfig
	c.HTTP.Port = 8080

	require.NoError(t, config.Load("", &c))
	require.EqualValues(t, 9090, c.HTTP.Port)
}

func TestLoad_MissingFile(t *testing.T) {
	var c testConfig
	require.Error(t, config.Load(filepath.Join(t.TempDir(), "nope.yaml"), &c))
}
