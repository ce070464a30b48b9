package service

import (
	"context"
	"fmt"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sshcollectorpro/batchscanner/internal/config"
	"github.com/sshcollectorpro/batchscanner/internal/database"
	"github.com/sshcollectorpro/batchscanner/pkg/session"
	"github.com/sshcollectorpro/batchscanner/simulate"
)

// pipeDialer serves simulated devices over in-memory connections, keyed by
// address. Unknown addresses refuse the connection.
type pipeDialer map[string]*simulate.Device

func (d pipeDialer) Dial(_ context.Context, address, username, password string) (session.Shell, string, error) {
	dev, ok := d[address]
	if !ok {
		return nil, "", fmt.Errorf("dial tcp %s: %w", address, syscall.ECONNREFUSED)
	}
	if username != "admin" || password != "admin" {
		return nil, dev.BannerText(), fmt.Errorf("ssh: handshake failed: ssh: unable to authenticate, attempted methods [none password]")
	}
	return simulate.Pipe(dev), dev.BannerText(), nil
}

func sampleDialer() (pipeDialer, map[string]*simulate.Device) {
	net := simulate.SampleNetwork()
	return pipeDialer{
		"10.0.0.1": net["pop-1"],
		"10.0.0.2": net["eh-1"],
		"10.0.0.3": net["bu-1"],
		"10.0.0.4": net["tu-1"],
	}, net
}

func fastOptions() session.Options {
	return session.Options{
		CommandTimeout: 5 * time.Second,
		IdleTimeout:    time.Second,
		PromptTimeout:  500 * time.Millisecond,
		PromptRetries:  2,
	}
}

func target(addr string) Target {
	return Target{Address: addr, Username: DefaultUsername, Password: DefaultPassword}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	opts := fastOptions()
	return &config.Config{
		Session: config.SessionConfig{
			CommandTimeout: opts.CommandTimeout,
			IdleTimeout:    opts.IdleTimeout,
			PromptTimeout:  opts.PromptTimeout,
			PromptRetries:  opts.PromptRetries,
		},
		Scan: config.ScanConfig{
			Action:              ActionShow,
			Families:            []string{"EH", "BU", "TU", "TG"},
			IncludeSubordinates: true,
			Concurrency:         4,
			BatchSize:           2,
			LogTail:             2,
			SaveRaw:             true,
		},
		Storage: config.StorageConfig{
			Backend: "local",
			Local:   config.LocalStorageConfig{BaseDir: filepath.Join(dir, "raw"), MkdirIfMissing: true},
		},
		Export: config.ExportConfig{Dir: filepath.Join(dir, "export")},
	}
}

func initDB(t *testing.T) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scan.db")
	require.NoError(t, database.InitSQLite(config.SQLiteConfig{Path: path, BusyTimeout: 5 * time.Second}))
	t.Cleanup(func() { _ = database.Close() })
}
