package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 9090\n"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "show", cfg.Scan.Action)
	assert.Equal(t, []string{"EH", "BU", "TU", "TG"}, cfg.Scan.Families)
	assert.Equal(t, 8, cfg.Scan.Concurrency)
	assert.True(t, cfg.Scan.SaveRaw)
	assert.Equal(t, 5000, cfg.SSH.TerminalHeight)
	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Same(t, cfg, Get())
	assert.Equal(t, "0.0.0.0:9090", cfg.GetServerAddr())
}

func TestLoadFileValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
scan:
  action: set-time
  families: [TG]
  time_shift: 2.5
  concurrency: 4
session:
  command_timeout: 45s
  error_hints: ["Error:"]
ssh:
  dial_timeout: 2s
`))
	require.NoError(t, err)
	assert.Equal(t, "set-time", cfg.Scan.Action)
	assert.Equal(t, 2.5, cfg.Scan.TimeShift)

	opts := cfg.SessionOptions()
	assert.Equal(t, 45*time.Second, opts.CommandTimeout)
	assert.Equal(t, []string{"Error:"}, opts.ErrorHints)
	assert.Zero(t, opts.IdleTimeout)

	ssh := cfg.SSHClient()
	assert.Equal(t, 2*time.Second, ssh.Timeout)
	assert.Equal(t, "vt100", ssh.Terminal)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("BATCHSCAN_SCAN_CONCURRENCY", "3")
	cfg, err := Load(writeConfig(t, "scan:\n  concurrency: 10\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Scan.Concurrency)
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"action":  "scan:\n  action: reboot\n",
		"family":  "scan:\n  families: [XX]\n",
		"workers": "scan:\n  concurrency: 0\n",
		"batch":   "scan:\n  batch_size: -1\n",
		"backend": "storage:\n  backend: s3\n",
	}
	for name, body := range cases {
		_, err := Load(writeConfig(t, body))
		assert.Error(t, err, name)
	}
}

func TestMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
