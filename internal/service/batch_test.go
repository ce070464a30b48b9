package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshcollectorpro/batchscanner/internal/model"
)

func newTestService(t *testing.T) *BatchService {
	t.Helper()
	d, _ := sampleDialer()
	return NewBatchService(testConfig(t)).WithDialer(d)
}

func sampleTargets() []Target {
	return []Target{target("10.0.0.1"), target("10.0.0.2"), target("10.0.0.3"), target("10.0.0.4"), target("10.0.0.9")}
}

func TestRunShow(t *testing.T) {
	initDB(t)
	svc := newTestService(t)

	var mu sync.Mutex
	var seen []string
	req := svc.NewRequest(sampleTargets())
	req.TaskID = "t-show"
	req.OnRecord = func(r Record) {
		mu.Lock()
		seen = append(seen, r.Address)
		mu.Unlock()
	}
	report, err := svc.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, model.TaskStatusSuccess, report.Status)
	assert.Equal(t, 5, report.Total)
	assert.Equal(t, 4, report.Connected)
	assert.Equal(t, 1, report.Unreachable)
	assert.Equal(t, 5, report.Documents)
	assert.NotZero(t, report.Commands)
	assert.ElementsMatch(t, []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4", "10.0.0.9"}, seen)
	assert.Zero(t, svc.Running())

	names := make([]string, 0, len(report.Files))
	for _, f := range report.Files {
		_, err := os.Stat(f)
		require.NoError(t, err)
		names = append(names, filepath.Base(f))
	}
	assert.Contains(t, names, "t-show_devices.csv")
	assert.Contains(t, names, "t-show_commands.csv")
	assert.Contains(t, names, "t-show_Links.csv")
	assert.Contains(t, names, "t-show_System_Status.csv")
	assert.Contains(t, names, "t-show_Terminals.csv")

	task, err := svc.GetTask("t-show")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusSuccess, task.Status)
	assert.Equal(t, 4, task.Connected)
	assert.Equal(t, 1, task.Unreachable)
	assert.Equal(t, "show", task.Action)
	assert.True(t, strings.HasPrefix(task.Targets, "10.0.0.1,10.0.0.2"))

	devices, err := svc.ListDevices("t-show")
	require.NoError(t, err)
	require.Len(t, devices, 6)
	byTarget := make(map[string]model.DeviceResult)
	for _, d := range devices {
		byTarget[d.TargetID] = d
	}
	assert.Equal(t, 1, byTarget["pop-1 → cn-1"].Depth)
	assert.Equal(t, "TG", byTarget["pop-1"].Family)
	assert.Equal(t, "BU", byTarget["bu-1"].Family)
	assert.Equal(t, "unreachable", byTarget["10.0.0.9"].State)
	assert.Contains(t, byTarget["10.0.0.9"].LastError, "connection refused")
	assert.Contains(t, byTarget["eh-1"].RawPaths, "file://")
	assert.Equal(t, "[]", byTarget["eh-1"].Errors)

	cmds, err := svc.ListCommands("t-show", "10.0.0.2")
	require.NoError(t, err)
	require.NotEmpty(t, cmds)
	assert.Equal(t, "show system", cmds[0].Command)

	cmds, err = svc.ListCommands("t-show", "pop-1 → cn-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"show", "quit"}, []string{cmds[0].Command, cmds[1].Command})

	radio, err := svc.ListAtoms("t-show", "Radio")
	require.NoError(t, err)
	require.Len(t, radio, 1)
	assert.Equal(t, "eh-1", radio[0].TargetID)
	assert.Contains(t, radio[0].Fields, `"rssi":"-42"`)
}

func TestRunSavesRawOutput(t *testing.T) {
	svc := newTestService(t)
	var mu sync.Mutex
	records := make(map[string]Record)
	req := svc.NewRequest([]Target{target("10.0.0.2")})
	req.OnRecord = func(r Record) {
		mu.Lock()
		records[r.Address] = r
		mu.Unlock()
	}
	_, err := svc.Run(context.Background(), req)
	require.NoError(t, err)

	raw := records["10.0.0.2"].RawPaths["eh-1"]
	require.NotEmpty(t, raw)
	uri := raw["show sw"]
	require.True(t, strings.HasPrefix(uri, "file://"), uri)
	assert.True(t, strings.HasSuffix(uri, filepath.Join(req.TaskID, "eh-1", "show_sw.txt")), uri)
	body, err := os.ReadFile(strings.TrimPrefix(uri, "file://"))
	require.NoError(t, err)
	assert.Contains(t, string(body), "7.7.12-13214-f614d18")
}

func TestRunFamilyFilter(t *testing.T) {
	svc := newTestService(t)
	req := svc.NewRequest([]Target{target("10.0.0.1"), target("10.0.0.2")})
	req.Families = []string{"eh"}
	report, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Connected)
	assert.Equal(t, 1, report.Documents)
}

func TestRunSetTime(t *testing.T) {
	svc := newTestService(t)
	req := svc.NewRequest([]Target{target("10.0.0.1"), target("10.0.0.2")})
	req.Action = ActionSetTime
	req.TimeShift = -1
	report, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Zero(t, report.Documents)
	// eh-1: time and date; pop-1: discovery, both hops and the cn-4 attempt
	assert.Equal(t, 11, report.Commands)
	assert.Equal(t, 1, report.FailedCommands)
}

func TestRunScriptBatch(t *testing.T) {
	svc := newTestService(t)
	req := svc.NewRequest([]Target{target("10.0.0.4")})
	req.Action = ActionScript
	req.Script = []string{"show sw", "# comment", "show nothing"}
	report, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Commands)
	assert.Equal(t, 1, report.FailedCommands)
}

func TestRunScanOnlyIdentifies(t *testing.T) {
	svc := newTestService(t)
	req := svc.NewRequest([]Target{target("10.0.0.2"), target("10.0.0.3")})
	req.Action = ActionScan
	var mu sync.Mutex
	var rows []ReportRow
	req.OnRecord = func(r Record) {
		mu.Lock()
		rows = append(rows, r.Rows...)
		mu.Unlock()
	}
	report, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Zero(t, report.Documents)
	// bu-1 has no banner: identity comes from "show inventory 1"
	assert.Equal(t, 1, report.Commands)
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.NotEmpty(t, r.Model)
		assert.NotEmpty(t, r.SerialNumber)
	}
}

func TestRunCancelled(t *testing.T) {
	svc := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := svc.Run(ctx, svc.NewRequest(sampleTargets()))
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusCancelled, report.Status)
	assert.Zero(t, report.Connected)
	assert.Empty(t, report.Files)
}

func TestSubmit(t *testing.T) {
	initDB(t)
	svc := newTestService(t)
	id, err := svc.Submit(svc.NewRequest([]Target{target("10.0.0.4")}))
	require.NoError(t, err)
	require.NotEmpty(t, id)
	svc.Wait()

	task, err := svc.GetTask(id)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusSuccess, task.Status)
	assert.Equal(t, 1, task.Total)
	assert.Equal(t, 1, task.Documents)
	assert.False(t, task.EndTime.IsZero())

	assert.Error(t, svc.Cancel(id))
}

func TestRequestValidation(t *testing.T) {
	svc := newTestService(t)
	cases := map[string]func(*ScanRequest){
		"unknown action": func(r *ScanRequest) { r.Action = "reboot" },
		"no targets":     func(r *ScanRequest) { r.Targets = nil },
		"empty script":   func(r *ScanRequest) { r.Action = ActionScript },
		"unknown family": func(r *ScanRequest) { r.Families = []string{"XX"} },
	}
	for name, mutate := range cases {
		req := svc.NewRequest([]Target{target("10.0.0.2")})
		mutate(&req)
		_, err := svc.Run(context.Background(), req)
		assert.Error(t, err, name)
	}

	_, err := svc.GetTask("missing")
	assert.Error(t, err)
}
