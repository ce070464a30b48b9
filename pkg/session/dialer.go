package session

import (
	"context"
	"net"
	"strconv"

	"github.com/sshcollectorpro/batchscanner/pkg/ssh"
)

// Dialer 在设备上打开交互式 shell；认证失败时也返回横幅
type Dialer interface {
	Dial(ctx context.Context, address, username, password string) (Shell, string, error)
}

// SSHDialer 通过 SSH 连接设备
type SSHDialer struct {
	Config *ssh.Config
	Port   int
}

func (d SSHDialer) Dial(ctx context.Context, address, username, password string) (Shell, string, error) {
	host, port := splitHostPort(address, d.Port)
	client := ssh.NewClient(d.Config)
	info := &ssh.ConnectionInfo{Host: host, Port: port, Username: username, Password: password}
	if err := client.Connect(ctx, info); err != nil {
		return nil, client.Banner(), err
	}
	shell, err := client.OpenShell()
	if err != nil {
		_ = client.Close()
		return nil, client.Banner(), err
	}
	return shell, client.Banner(), nil
}

func splitHostPort(address string, defaultPort int) (string, int) {
	if defaultPort <= 0 {
		defaultPort = 22
	}
	host, p, err := net.SplitHostPort(address)
	if err != nil {
		return address, defaultPort
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return host, defaultPort
	}
	return host, port
}

// Dial 连接 address 并绑定 Session。总是返回 Session：
// err 非空时会话处于断开状态，但保留横幅中得到的身份信息
func Dial(ctx context.Context, d Dialer, address, username, password string, opts Options) (*Session, error) {
	s := New(address, opts)
	shell, banner, err := d.Dial(ctx, address, username, password)
	if err != nil {
		e := ClassifyDialError("connect", address, err)
		s.Fail(banner, e)
		return s, e
	}
	if err := s.Attach(ctx, shell, banner); err != nil {
		return s, err
	}
	return s, nil
}
