package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshcollectorpro/batchscanner/pkg/ssh"
	"github.com/sshcollectorpro/batchscanner/simulate"
)

func TestErrorFormatting(t *testing.T) {
	err := TunnelError("hop-in", "pop-1 → cn-1", errors.New("unable to tunnel into 'cn-2'"))
	assert.Equal(t, "tunnel error during hop-in on 'pop-1 → cn-1': unable to tunnel into 'cn-2'", err.Error())

	wrapped := fmt.Errorf("batch: %w", err)
	assert.True(t, IsKind(wrapped, KindTunnel))
	assert.False(t, IsKind(wrapped, KindTimeout))
	assert.Equal(t, KindTunnel, KindOf(wrapped))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestClassifyDialError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
		msg  string
	}{
		{"refused", &net.OpError{Op: "dial", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}, KindConnection, "connection refused"},
		{"reset", fmt.Errorf("read: %w", syscall.ECONNRESET), KindConnection, "connection reset"},
		{"eof", io.EOF, KindConnection, "connection reset"},
		{"unreachable", fmt.Errorf("dial: %w", syscall.EHOSTUNREACH), KindConnection, "host unreachable"},
		{"auth", errors.New("ssh: handshake failed: ssh: unable to authenticate, attempted methods [none password]"), KindAuthentication, "unable to authenticate"},
		{"timeout", &net.OpError{Op: "dial", Err: timeoutErr{}}, KindTimeout, "i/o timeout"},
		{"other", errors.New("boom"), KindConnection, "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ClassifyDialError("connect", "192.0.2.1", tt.err)
			require.NotNil(t, err)
			assert.Equal(t, tt.kind, err.Kind)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}

	se := TimeoutError("read", "x", errors.New("late"))
	assert.Same(t, se, ClassifyDialError("connect", "y", se))
	assert.Nil(t, ClassifyDialError("connect", "y", nil))
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func closedPort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestDialRefused(t *testing.T) {
	addr := closedPort(t)
	s, err := Dial(context.Background(), SSHDialer{}, addr, "admin", "admin", testOptions())
	require.Error(t, err)
	require.NotNil(t, s)
	assert.True(t, IsKind(err, KindConnection))
	assert.Contains(t, err.Error(), "connection refused")
	assert.False(t, s.Connected())
	assert.Equal(t, err, s.LastError())
	assert.False(t, s.Identity().Known())
	assert.Equal(t, addr, s.TargetID())
}

func startServer(t *testing.T, dev *simulate.Device) string {
	t.Helper()
	srv, err := simulate.NewServer(dev, simulate.Credentials{Username: "admin", Password: "admin"}, "")
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)
	return srv.Addr()
}

func TestDialAuthFailureKeepsBannerIdentity(t *testing.T) {
	addr := startServer(t, simulate.SampleNetwork()["eh-1"])

	s, err := Dial(context.Background(), SSHDialer{}, addr, "admin", "wrong", testOptions())
	require.Error(t, err)
	assert.True(t, IsKind(err, KindAuthentication))
	assert.False(t, s.Connected())
	id := s.Identity()
	assert.Equal(t, "EH-710TX", id.Model)
	assert.Equal(t, "F544140339", id.SerialNumber)
	assert.Equal(t, FamilyEH, id.Family)
}

func TestDialOverSSH(t *testing.T) {
	addr := startServer(t, simulate.SampleNetwork()["pop-1"])

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	d := SSHDialer{Config: ssh.DefaultConfig()}
	s, err := Dial(ctx, d, addr, "admin", "admin", testOptions())
	require.NoError(t, err)
	defer s.Close()

	assert.True(t, s.Connected())
	assert.Equal(t, "MH-T265@pop-1>", s.Prompt())
	assert.Equal(t, "F123456789", s.Identity().SerialNumber)

	cmd := s.Send(ctx, "show radio-dn")
	require.True(t, cmd.Success, cmd.Error)
	assert.Contains(t, cmd.Response, "configured cn-4 {")

	require.NoError(t, s.HopIn(ctx, "cn-1"))
	assert.Equal(t, "pop-1 → cn-1", s.TargetID())
	require.NoError(t, s.HopOut(ctx))
}

func TestSplitHostPort(t *testing.T) {
	h, p := splitHostPort("10.0.0.1", 0)
	assert.Equal(t, "10.0.0.1", h)
	assert.Equal(t, 22, p)
	h, p = splitHostPort("10.0.0.1:2201", 22)
	assert.Equal(t, "10.0.0.1", h)
	assert.Equal(t, 2201, p)
	_, p = splitHostPort("radio.example:x", 830)
	assert.Equal(t, 830, p)
}
