package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("RUI3_CONFIG", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.Equal(t, "current", cfg.Radio.Revision)
	assert.Equal(t, uint32(868000000), cfg.Radio.Frequency)
	assert.Equal(t, time.Second, cfg.Session.CommandTimeout)
	assert.Equal(t, 3, cfg.Session.Retries)
	assert.Equal(t, 20*time.Millisecond, cfg.Session.PollInterval)
	assert.False(t, cfg.Redis.Enabled)
	assert.Empty(t, cfg.Database.DSN)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gw.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
serial:
  device: /dev/ttyACM1
  baudRate: 9600
radio:
  revision: legacy
  spreadingFactor: 12
session:
  retries: 5
gateway:
  dutyCyclePerSec: 0.5
`), 0o600))
	t.Setenv("RUI3_HTTP_ADDR", ":9999")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyACM1", cfg.Serial.Device)
	assert.Equal(t, 9600, cfg.Serial.BaudRate)
	assert.Equal(t, "legacy", cfg.Radio.Revision)
	assert.Equal(t, uint8(12), cfg.Radio.SpreadingFactor)
	assert.Equal(t, 5, cfg.Session.Retries)
	assert.InDelta(t, 0.5, cfg.Gateway.DutyCyclePerSec, 1e-9)
	assert.Equal(t, ":9999", cfg.HTTP.Addr)
}

func TestLoad_BrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("serial: [\n"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}
