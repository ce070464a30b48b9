package simulate

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshcollectorpro/batchscanner/pkg/ssh"
)

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig("simulate.yaml")
	require.NoError(t, err)
	assert.Equal(t, "admin", cfg.Username)
	assert.Len(t, cfg.Namespace, 4)
	assert.Equal(t, "pop-1", cfg.Namespace["tg"].Root)
	assert.Equal(t, 4, cfg.Namespace["tu"].MaxConn)

	devices, err := cfg.Resolve()
	require.NoError(t, err)
	require.Contains(t, devices, "pop-1")
	assert.Equal(t, []string{"cn-1"}, devices["pop-1"].Children)
	assert.Equal(t, []string{"show rf"}, devices["tu-1"].Stall)
	out, ok := devices["eh-1"].Output("show rf")
	assert.True(t, ok)
	assert.Contains(t, out, "rf operational")
}

func TestResolveUnknownChild(t *testing.T) {
	cfg := &Config{Devices: map[string]*Device{"a": {Children: []string{"missing"}}}}
	_, err := cfg.Resolve()
	assert.Error(t, err)
}

func TestServerShell(t *testing.T) {
	root := SampleNetwork()["pop-1"]
	srv, err := NewServer(root, Credentials{Username: "admin", Password: "admin"}, "")
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	defer srv.Stop()

	host, port := splitAddr(t, srv.Addr())
	client := ssh.NewClient(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, client.Connect(ctx, &ssh.ConnectionInfo{Host: host, Port: port, Username: "admin", Password: "admin"}))
	assert.Equal(t, "MH-T265, S/N: F123456789, Ver: 2.1.1-30521-ab12cd3\n", client.Banner())

	shell, err := client.OpenShell()
	require.NoError(t, err)
	defer shell.Close()

	buf := make([]byte, 64)
	n, err := io.ReadAtLeast(shell, buf, len("MH-T265@pop-1> "))
	require.NoError(t, err)
	assert.Equal(t, "MH-T265@pop-1> ", string(buf[:n]))
}

func TestServerRejectsBadPasswordButSendsBanner(t *testing.T) {
	root := SampleNetwork()["eh-1"]
	srv, err := NewServer(root, Credentials{Username: "admin", Password: "admin"}, "")
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	defer srv.Stop()

	host, port := splitAddr(t, srv.Addr())
	client := ssh.NewClient(nil)
	err = client.Connect(context.Background(), &ssh.ConnectionInfo{Host: host, Port: port, Username: "admin", Password: "wrong"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to authenticate")
	assert.True(t, strings.HasPrefix(client.Banner(), "EH-710TX, S/N: F544140339"))
}

func splitAddr(t *testing.T, addr string) (string, int) {
	t.Helper()
	i := strings.LastIndex(addr, ":")
	require.Positive(t, i)
	var port int
	for _, c := range addr[i+1:] {
		port = port*10 + int(c-'0')
	}
	return addr[:i], port
}
