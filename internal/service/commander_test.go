package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshcollectorpro/batchscanner/pkg/atom"
	"github.com/sshcollectorpro/batchscanner/pkg/session"
	"github.com/sshcollectorpro/batchscanner/pkg/ssh"
	"github.com/sshcollectorpro/batchscanner/simulate"
)

func connect(t *testing.T, d session.Dialer, addr string, subordinates bool) *Commander {
	t.Helper()
	c := Connect(context.Background(), d, target(addr), CommanderOptions{Session: fastOptions(), Subordinates: subordinates})
	t.Cleanup(c.Disconnect)
	return c
}

func commandTexts(cmds []session.Command) []string {
	out := make([]string, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, c.TargetID+": "+c.Text)
	}
	return out
}

func TestShowEtherHaul(t *testing.T) {
	d, _ := sampleDialer()
	c := connect(t, d, "10.0.0.2", true)
	require.Equal(t, StateConnected, c.State())
	assert.Equal(t, session.FamilyEH, c.Identity().Family)
	assert.Equal(t, "F544140339", c.Identity().SerialNumber)

	docs := c.Show(context.Background())
	require.Len(t, docs, 1)
	doc := docs[0]
	assert.Equal(t, "eh-1", doc.TargetID)
	assert.Equal(t, atom.Software{Active: "7.7.12", Offline: "7.4.13"}, doc.Section("Software").Atoms[0])
	assert.Equal(t, 4, doc.Section("Ethernet").Len())
	assert.Empty(t, c.Errors())

	// no tunnel support: no discovery commands
	for _, cmd := range c.Commands() {
		assert.NotContains(t, cmd.Text, "radio-common")
	}

	rows := c.Report()
	require.Len(t, rows, 1)
	assert.Equal(t, "10.0.0.2", rows[0].Address)
	assert.Equal(t, "eh-1", rows[0].TargetID)
	assert.Equal(t, "EH-710TX", rows[0].Model)
	assert.Equal(t, len(c.Commands()), rows[0].Commands)
	assert.Zero(t, rows[0].Failed)
	assert.Equal(t, doc.AtomCount(), rows[0].Atoms)
	assert.True(t, rows[0].Connected)
}

func TestShowTraversesSubordinates(t *testing.T) {
	d, _ := sampleDialer()
	c := connect(t, d, "10.0.0.1", true)
	assert.Equal(t, session.FamilyTG, c.Identity().Family)

	docs := c.Show(context.Background())
	require.Len(t, docs, 2)
	assert.Equal(t, "pop-1", docs[0].TargetID)
	assert.Equal(t, "pop-1 → cn-1", docs[1].TargetID)
	assert.Equal(t, "cn-1", docs[1].Name())
	assert.NotZero(t, docs[1].Section("Links").Len())

	// cn-4 is an active cn link but not reachable through the tunnel
	var tunnel int
	for _, err := range c.Errors() {
		if session.IsKind(err, session.KindTunnel) {
			tunnel++
		}
	}
	assert.Equal(t, 1, tunnel)
	assert.True(t, session.IsKind(c.LastError(), session.KindTunnel))
	assert.Contains(t, c.LastError().Error(), "cn-4")
	assert.True(t, c.Connected())
	assert.Equal(t, "MH-T265@pop-1>", c.sess.Prompt())

	texts := commandTexts(c.Commands())
	assert.Equal(t, []string{
		"pop-1: show",
		"pop-1: show radio-common",
		"pop-1: show radio-dn",
		"pop-1: connect cn-1",
		"pop-1 → cn-1: show",
		"pop-1 → cn-1: quit",
		"pop-1: connect cn-4",
	}, texts)

	rows := c.Report()
	require.Len(t, rows, 2)
	assert.Equal(t, 0, rows[0].Depth)
	assert.Equal(t, 1, rows[1].Depth)
	assert.Equal(t, "cn-1", rows[1].Name)
	assert.Equal(t, 2, rows[1].Commands)
	assert.Contains(t, rows[0].LastError, "cn-4")
	assert.NotContains(t, rows[1].LastError, "cn-4")
}

func TestShowWithoutTraversal(t *testing.T) {
	d, _ := sampleDialer()
	c := connect(t, d, "10.0.0.1", false)
	docs := c.Show(context.Background())
	require.Len(t, docs, 1)
	assert.Len(t, c.Commands(), 1)
}

func TestMisprovisionedLinkIsSkipped(t *testing.T) {
	d, net := sampleDialer()
	net["pop-1"].LinkAs("cn-4", net["eh-1"])

	c := connect(t, d, "10.0.0.1", true)
	docs := c.Show(context.Background())
	require.Len(t, docs, 2)
	require.Error(t, c.LastError())
	assert.Contains(t, c.LastError().Error(), "reached 'eh-1>'")
	assert.True(t, c.Connected())
	assert.Equal(t, 0, c.sess.Depth())
}

func TestHopOutFailureStopsTraversal(t *testing.T) {
	d, net := sampleDialer()
	net["cn-1"].Stall = []string{"quit"}
	net["pop-1"].LinkAs("cn-4", &simulate.Device{Name: "cn-4", Model: "MH-T265", Responses: map[string]string{"show": ""}})

	c := connect(t, d, "10.0.0.1", true)
	docs := c.Show(context.Background())
	require.Len(t, docs, 2)
	assert.Equal(t, StateDisconnected, c.State())
	assert.False(t, c.Connected())
	assert.True(t, session.IsKind(c.LastError(), session.KindTunnel))
	for _, row := range c.Report() {
		assert.Equal(t, StateDisconnected, row.State, row.TargetID)
		assert.False(t, row.Connected, "a torn-down session is not reported connected: %s", row.TargetID)
	}

	for _, cmd := range c.Commands() {
		assert.NotEqual(t, "connect cn-4", cmd.Text)
	}
	// further actions are no-ops
	assert.Nil(t, c.Show(context.Background()))
	assert.Nil(t, c.RunScript(context.Background(), []string{"show system"}))
}

func TestSetTimeOfDay(t *testing.T) {
	d, _ := sampleDialer()
	eh := connect(t, d, "10.0.0.2", true)
	cmds := eh.SetTimeOfDay(context.Background(), 0)
	require.Len(t, cmds, 2)
	assert.True(t, strings.HasPrefix(cmds[0].Text, "set system time "))
	assert.True(t, strings.HasPrefix(cmds[1].Text, "set system date "))
	assert.True(t, cmds[0].Success && cmds[1].Success)

	tg := connect(t, d, "10.0.0.1", true)
	cmds = tg.SetTimeOfDay(context.Background(), 2.5)
	require.Len(t, cmds, 4)
	assert.Equal(t, "pop-1", cmds[0].TargetID)
	assert.Equal(t, "pop-1 → cn-1", cmds[2].TargetID)
	assert.True(t, strings.HasPrefix(cmds[2].Text, "set time "))

	want := time.Now().Add(150 * time.Minute).Format("2006-01-02")
	tomorrow := time.Now().Add(150*time.Minute + time.Minute).Format("2006-01-02")
	assert.Contains(t, []string{"set date " + want, "set date " + tomorrow}, cmds[1].Text)
}

func TestRunScript(t *testing.T) {
	d, _ := sampleDialer()
	c := connect(t, d, "10.0.0.1", true)
	cmds := c.RunScript(context.Background(), []string{"# check", "show system", "", "bogus command"})
	require.Len(t, cmds, 4)
	assert.True(t, cmds[0].Success)
	assert.False(t, cmds[1].Success)
	assert.Contains(t, cmds[1].Error, "Invalid input")
	assert.Equal(t, "pop-1 → cn-1", cmds[2].TargetID)
	assert.True(t, cmds[2].Success)
	assert.False(t, cmds[3].Success)
	assert.True(t, c.Connected())
}

func TestUnreachable(t *testing.T) {
	d, _ := sampleDialer()
	c := connect(t, d, "10.9.9.9", true)
	assert.Equal(t, StateUnreachable, c.State())
	assert.False(t, c.Connected())
	assert.Nil(t, c.Show(context.Background()))
	assert.Nil(t, c.SetTimeOfDay(context.Background(), 0))
	assert.Empty(t, c.Commands())
	assert.Empty(t, c.Documents())
	assert.True(t, session.IsKind(c.LastError(), session.KindConnection))

	rows := c.Report()
	require.Len(t, rows, 1)
	assert.Equal(t, "10.9.9.9", rows[0].TargetID)
	assert.False(t, rows[0].Connected)
	assert.Equal(t, StateUnreachable, rows[0].State)
	assert.Contains(t, rows[0].LastError, "connection refused")

	c.Disconnect()
	assert.Equal(t, StateUnreachable, c.State())
}

func TestAuthFailureKeepsBannerIdentity(t *testing.T) {
	d, _ := sampleDialer()
	c := Connect(context.Background(), d, Target{Address: "10.0.0.2", Username: "admin", Password: "nope"},
		CommanderOptions{Session: fastOptions()})
	assert.Equal(t, StateUnreachable, c.State())
	assert.True(t, session.IsKind(c.LastError(), session.KindAuthentication))
	rows := c.Report()
	assert.Equal(t, "EH-710TX", rows[0].Model)
	assert.Equal(t, "F544140339", rows[0].SerialNumber)
	assert.Equal(t, "EH", rows[0].Family)
}

func TestDisconnect(t *testing.T) {
	d, _ := sampleDialer()
	c := connect(t, d, "10.0.0.4", true)
	require.True(t, c.Connected())
	c.Disconnect()
	assert.Equal(t, StateDisconnected, c.State())
	assert.False(t, c.Connected())
	assert.Nil(t, c.Show(context.Background()))
}

func TestConnectOverSSH(t *testing.T) {
	srv, err := simulate.NewServer(simulate.SampleNetwork()["tu-1"], simulate.Credentials{Username: "admin", Password: "admin"}, "")
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	c := Connect(ctx, session.SSHDialer{Config: ssh.DefaultConfig()}, target(srv.Addr()), CommanderOptions{Session: fastOptions()})
	defer c.Disconnect()
	require.Equal(t, StateConnected, c.State(), "%v", c.LastError())

	docs := c.Show(ctx)
	require.Len(t, docs, 1)
	assert.Equal(t, session.FamilyTU, c.Identity().Family)
	assert.Equal(t, 1, docs[0].Section("Terminals").Len())
	assert.False(t, errors.Is(c.LastError(), context.DeadlineExceeded))
}
