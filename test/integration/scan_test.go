package integration

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshcollectorpro/batchscanner/internal/config"
	"github.com/sshcollectorpro/batchscanner/internal/service"
	"github.com/sshcollectorpro/batchscanner/simulate"
)

// startNetwork 在随机本地端口上启动内置模拟网络
func startNetwork(t *testing.T, tweak func(*simulate.Config)) *simulate.Manager {
	t.Helper()
	cfg := simulate.DefaultConfig()
	for ns, n := range cfg.Namespace {
		n.Listen = "127.0.0.1:0"
		cfg.Namespace[ns] = n
	}
	if tweak != nil {
		tweak(cfg)
	}
	mgr, err := simulate.Start(cfg)
	require.NoError(t, err)
	t.Cleanup(mgr.Stop)
	return mgr
}

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		SSH: config.SSHConfig{DialTimeout: 3 * time.Second, AuthTimeout: 3 * time.Second},
		Session: config.SessionConfig{
			CommandTimeout: 10 * time.Second,
			IdleTimeout:    time.Second,
			PromptTimeout:  time.Second,
			PromptRetries:  2,
		},
		Scan: config.ScanConfig{
			Action:              service.ActionShow,
			Families:            []string{"EH", "BU", "TU", "TG"},
			IncludeSubordinates: true,
			Concurrency:         4,
			BatchSize:           4,
			LogTail:             2,
		},
		Storage: config.StorageConfig{Backend: "local", Local: config.LocalStorageConfig{BaseDir: filepath.Join(dir, "raw"), MkdirIfMissing: true}},
		Export:  config.ExportConfig{Dir: filepath.Join(dir, "export")},
	}
}

func collectRows(req *service.ScanRequest) func() map[string]service.ReportRow {
	var mu sync.Mutex
	rows := make(map[string]service.ReportRow)
	req.OnRecord = func(r service.Record) {
		mu.Lock()
		defer mu.Unlock()
		for _, row := range r.Rows {
			rows[row.TargetID] = row
		}
	}
	return func() map[string]service.ReportRow {
		mu.Lock()
		defer mu.Unlock()
		return rows
	}
}

// TestShowOverSSH 经真实 SSH 传输扫描全部模拟设备，包括 TG 隧道
func TestShowOverSSH(t *testing.T) {
	mgr := startNetwork(t, nil)
	svc := service.NewBatchService(testConfig(t))

	var targets []service.Target
	for _, ns := range []string{"tg", "eh", "bu", "tu"} {
		targets = append(targets, service.Target{Address: mgr.Addr(ns), Username: "admin", Password: "admin"})
	}
	req := svc.NewRequest(targets)
	rows := collectRows(&req)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	report, err := svc.Run(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, 4, report.Connected)
	assert.Zero(t, report.Unreachable)
	assert.Equal(t, 5, report.Documents)

	got := rows()
	require.Contains(t, got, "pop-1 → cn-1")
	assert.Equal(t, "TG", got["pop-1 → cn-1"].Family)
	assert.Equal(t, "BU", got["bu-1"].Family)
	assert.Equal(t, "FT0000042", got["tu-1"].SerialNumber)
	assert.Zero(t, got["eh-1"].Failed)
}

// TestWrongPassword 认证失败的设备记为不可达，横幅中的身份信息保留
func TestWrongPassword(t *testing.T) {
	mgr := startNetwork(t, nil)
	svc := service.NewBatchService(testConfig(t))

	req := svc.NewRequest([]service.Target{{Address: mgr.Addr("eh"), Username: "admin", Password: "wrong"}})
	rows := collectRows(&req)
	report, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Unreachable)

	row := rows()[mgr.Addr("eh")]
	assert.Equal(t, service.StateUnreachable, row.State)
	assert.Equal(t, "EH-710TX", row.Model)
	assert.Contains(t, row.LastError, "authentication")
}

// TestCommandTimeoutInterruptsDevice 命令超时后该设备会话中断，其余设备不受影响
func TestCommandTimeoutInterruptsDevice(t *testing.T) {
	mgr := startNetwork(t, func(c *simulate.Config) {
		c.Devices["tu-1"].Stall = []string{"show log"}
	})
	svc := service.NewBatchService(testConfig(t))

	req := svc.NewRequest([]service.Target{
		{Address: mgr.Addr("tu"), Username: "admin", Password: "admin"},
		{Address: mgr.Addr("eh"), Username: "admin", Password: "admin"},
	})
	rows := collectRows(&req)

	start := time.Now()
	report, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 30*time.Second)
	assert.Equal(t, 2, report.Documents)
	assert.Equal(t, 1, report.FailedCommands)

	tu := rows()["tu-1"]
	assert.Equal(t, service.StateDisconnected, tu.State)
	assert.False(t, tu.Connected)
	assert.Equal(t, 1, tu.Failed)
	assert.Contains(t, tu.LastError, "timeout")
	assert.NotZero(t, tu.Atoms)

	eh := rows()["eh-1"]
	assert.Zero(t, eh.Failed)
	assert.Empty(t, eh.LastError)
	assert.True(t, eh.Connected)
}
