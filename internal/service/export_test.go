package service

import (
	"bytes"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshcollectorpro/batchscanner/pkg/atom"
	"github.com/sshcollectorpro/batchscanner/pkg/session"
)

func ehDocument(route, name string) *atom.Document {
	doc := atom.NewDocument(route, session.Identity{Name: name, Model: "EH-710TX", Family: session.FamilyEH})
	sys := atom.NewSection("System", atom.KindStatus)
	_ = sys.Append(atom.Status{Name: name, Location: "roof", UpDays: "1.5"})
	doc.Add(sys)
	eth := atom.NewSection("Ethernet", atom.KindEthernet)
	_ = eth.Append(atom.Ethernet{Port: "eth1", Oper: "up", Speed: "1000xfd"})
	_ = eth.Append(atom.Ethernet{Port: "eth2", Oper: "down"})
	doc.Add(eth)
	doc.Add(atom.NewSection("Radio", atom.KindRadio))
	return doc
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestFileKey(t *testing.T) {
	assert.Equal(t, "Ethernet", FileKey(atom.NewSection("Ethernet", atom.KindEthernet)))
	assert.Equal(t, "System", FileKey(atom.NewSection("System", atom.KindSystem)))
	assert.Equal(t, "System_Status", FileKey(atom.NewSection("System", atom.KindStatus)))
	assert.Equal(t, "Links", FileKey(atom.NewSection("Links", atom.KindLink)))
}

func TestCSVExporterAppends(t *testing.T) {
	dir := t.TempDir()
	e := NewCSVExporter(dir, "t1", "2024-05-01")

	rec := func(addr, name string) Record {
		return Record{
			Address:   addr,
			Rows:      []ReportRow{{Address: addr, TargetID: name, Name: name, State: StateDisconnected, Connected: true, Commands: 2, Failed: 1}},
			Documents: []*atom.Document{ehDocument(name, name)},
			Commands: []session.Command{
				{Text: "show system", TargetID: name, Success: true},
				{Text: "show rf", TargetID: name, Kind: session.KindTimeout, Error: "no prompt"},
			},
		}
	}
	require.NoError(t, e.Append([]Record{rec("10.0.0.2", "eh-1")}))
	require.NoError(t, e.Append([]Record{rec("10.0.0.3", "eh-2")}))

	files := e.Files()
	assert.Equal(t, []string{
		filepath.Join(dir, "t1_Ethernet.csv"),
		filepath.Join(dir, "t1_System_Status.csv"),
		filepath.Join(dir, "t1_commands.csv"),
		filepath.Join(dir, "t1_devices.csv"),
	}, files)

	eth := readCSV(t, filepath.Join(dir, "t1_Ethernet.csv"))
	require.Len(t, eth, 5)
	assert.Equal(t, []string{"date", "route", "name", "port", "oper", "speed"}, eth[0])
	assert.Equal(t, []string{"2024-05-01", "eh-1", "eh-1", "eth1", "up", "1000xfd"}, eth[1])
	assert.Equal(t, "eh-2", eth[4][2])

	devices := readCSV(t, filepath.Join(dir, "t1_devices.csv"))
	require.Len(t, devices, 3)
	assert.Equal(t, DeviceHeader, devices[0])
	assert.Equal(t, "10.0.0.3", devices[2][1])
	assert.Equal(t, "1", devices[2][12])

	commands := readCSV(t, filepath.Join(dir, "t1_commands.csv"))
	require.Len(t, commands, 5)
	assert.Equal(t, CommandHeader, commands[0])
	assert.Equal(t, []string{"show rf", "false", "timeout", "no prompt"}, commands[2][3:7])

	// empty sections never produce a file
	_, err := os.Stat(filepath.Join(dir, "t1_Radio.csv"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestCSVExporterNoRecords(t *testing.T) {
	e := NewCSVExporter(t.TempDir(), "t2", "2024-05-01")
	require.NoError(t, e.Append(nil))
	assert.Empty(t, e.Files())
}

func TestRender(t *testing.T) {
	doc := ehDocument("pop-1 → eh-1", "eh-1")
	doc.Fail(errors.New("section Radio: malformed"))

	var buf bytes.Buffer
	require.NoError(t, RenderDocument(&buf, doc))
	out := buf.String()
	assert.Contains(t, out, "# pop-1 → eh-1")
	assert.Contains(t, out, "[Ethernet]")
	assert.NotContains(t, out, "[Radio]")
	assert.Regexp(t, `eth2\s+down\s+-`, out)
	assert.Contains(t, out, "! section Radio: malformed")

	buf.Reset()
	require.NoError(t, RenderReport(&buf, []ReportRow{
		{TargetID: "10.0.0.9", State: StateUnreachable, LastError: "connection refused"},
	}))
	assert.Contains(t, buf.String(), "ROUTE")
	assert.Regexp(t, `10\.0\.0\.9\s+-\s+-\s+-\s+unreachable\s+0\s+0\s+0\s+connection refused`, buf.String())
}
